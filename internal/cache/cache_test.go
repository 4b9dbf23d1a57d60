package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("GetSetRoundTrip", func(t *testing.T) {
		c := NewMemoryCache(0)

		// Initially a miss
		got, err := c.Get(ctx, "impl-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Fatalf("expected nil on miss, got %v", got)
		}

		rc := &ResolvedCall{
			Endpoint:        "https://api.groq.com/openai/v1",
			Credential:      "sk-test",
			ProviderName:    "groq",
			ModelName:       "llama-3.3-70b",
			ProviderModelID: "llama-3.3-70b-versatile",
			WireFamily:      "openai",
			Defaults:        map[string]any{"temperature": 0.7},
			CachedAt:        time.Now().UTC(),
		}
		if err := c.Set(ctx, "impl-1", rc); err != nil {
			t.Fatalf("unexpected error on set: %v", err)
		}

		got, err = c.Get(ctx, "impl-1")
		if err != nil {
			t.Fatalf("unexpected error on get: %v", err)
		}
		if got == nil {
			t.Fatal("expected hit, got nil")
		}
		if got.ProviderModelID != "llama-3.3-70b-versatile" {
			t.Errorf("ProviderModelID = %q", got.ProviderModelID)
		}
		if got.Defaults["temperature"] != 0.7 {
			t.Errorf("Defaults = %v", got.Defaults)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		c := NewMemoryCache(0)
		if err := c.Set(ctx, "impl-2", &ResolvedCall{ProviderName: "xai"}); err != nil {
			t.Fatal(err)
		}
		if err := c.Delete(ctx, "impl-2"); err != nil {
			t.Fatal(err)
		}
		got, err := c.Get(ctx, "impl-2")
		if err != nil {
			t.Fatal(err)
		}
		if got != nil {
			t.Fatal("expected miss after delete")
		}
	})

	t.Run("Expiry", func(t *testing.T) {
		c := NewMemoryCache(10 * time.Millisecond)
		if err := c.Set(ctx, "impl-3", &ResolvedCall{ProviderName: "anthropic"}); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
		got, err := c.Get(ctx, "impl-3")
		if err != nil {
			t.Fatal(err)
		}
		if got != nil {
			t.Fatal("expected miss after TTL expiry")
		}
	})
}
