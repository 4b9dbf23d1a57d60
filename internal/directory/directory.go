// Package directory resolves model implementation ids into callable
// provider targets: endpoint, credential, wire family and default
// parameters.
package directory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"multichat/internal/cache"
	"multichat/internal/core"
	"multichat/internal/store"
	"multichat/internal/wire"
)

// Store is the subset of the persistence layer resolution needs.
type Store interface {
	GetImplementation(ctx context.Context, id uuid.UUID) (*store.ModelImplementation, error)
	GetProvider(ctx context.Context, id uuid.UUID) (*store.Provider, error)
	GetModel(ctx context.Context, id uuid.UUID) (*store.Model, error)
	ListAPIKeys(ctx context.Context, providerID uuid.UUID) ([]store.APIKey, error)
}

// Resolution is a fully resolved implementation, ready to dispatch.
type Resolution struct {
	Call      wire.CallConfig
	ModelName string
}

// Directory looks up implementations and assembles call targets. An
// optional cache short-circuits repeated lookups for hot implementations.
type Directory struct {
	store  Store
	cache  cache.Cache
	logger *slog.Logger
}

// New creates a directory. cache may be nil to disable caching.
func New(st Store, c cache.Cache, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{store: st, cache: c, logger: logger}
}

// Resolve maps an implementation id to its call target. It fails with a
// not found error for unknown ids, an unavailable error for disabled
// implementations and a credential error when the provider has no keys.
func (d *Directory) Resolve(ctx context.Context, implID uuid.UUID) (*Resolution, error) {
	if d.cache != nil {
		cached, err := d.cache.Get(ctx, implID.String())
		if err != nil {
			d.logger.Warn("resolution cache read failed", "implementation_id", implID, "error", err)
		} else if cached != nil {
			res, err := resolutionFromCache(cached)
			if err == nil {
				return res, nil
			}
			d.logger.Warn("discarding bad cache entry", "implementation_id", implID, "error", err)
		}
	}

	impl, err := d.store.GetImplementation(ctx, implID)
	if err != nil {
		return nil, err
	}
	if impl == nil {
		return nil, core.NewNotFoundError(fmt.Sprintf("model implementation %s not found", implID))
	}
	if !impl.IsAvailable {
		return nil, core.NewUnavailableError(fmt.Sprintf("model implementation %s is not available", implID))
	}

	provider, err := d.store.GetProvider(ctx, impl.ProviderID)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, core.NewNotFoundError(fmt.Sprintf("provider %s not found for implementation %s", impl.ProviderID, implID))
	}

	model, err := d.store.GetModel(ctx, impl.ModelID)
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, core.NewNotFoundError(fmt.Sprintf("model %s not found for implementation %s", impl.ModelID, implID))
	}

	family, err := wire.ParseFamily(provider.WireFamily)
	if err != nil {
		return nil, core.NewUnavailableError(fmt.Sprintf("provider %s: %v", provider.Name, err))
	}

	keys, err := d.store.ListAPIKeys(ctx, provider.ID)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, core.NewNoCredentialError(provider.Name,
			fmt.Sprintf("provider %s has no API keys configured", provider.Name))
	}
	// Keys come back in insertion order; the first one is the active one.
	credential := keys[0].Key

	res := &Resolution{
		Call: wire.CallConfig{
			Endpoint:        provider.BaseURL,
			Credential:      credential,
			ProviderName:    provider.Name,
			ProviderModelID: impl.ProviderModelID,
			Family:          family,
			Defaults:        impl.CustomParameters,
		},
		ModelName: model.Name,
	}

	if d.cache != nil {
		entry := &cache.ResolvedCall{
			Endpoint:        res.Call.Endpoint,
			Credential:      res.Call.Credential,
			ProviderName:    res.Call.ProviderName,
			ModelName:       res.ModelName,
			ProviderModelID: res.Call.ProviderModelID,
			WireFamily:      provider.WireFamily,
			Defaults:        res.Call.Defaults,
			CachedAt:        time.Now().UTC(),
		}
		if err := d.cache.Set(ctx, implID.String(), entry); err != nil {
			d.logger.Warn("resolution cache write failed", "implementation_id", implID, "error", err)
		}
	}
	return res, nil
}

// Invalidate drops the cached resolution for one implementation. CRUD
// handlers call it when an implementation changes, and once per
// implementation of a provider when the provider or its keys change.
func (d *Directory) Invalidate(ctx context.Context, implID uuid.UUID) {
	if d.cache == nil {
		return
	}
	if err := d.cache.Delete(ctx, implID.String()); err != nil {
		d.logger.Warn("resolution cache invalidation failed", "implementation_id", implID, "error", err)
	}
}

func resolutionFromCache(rc *cache.ResolvedCall) (*Resolution, error) {
	family, err := wire.ParseFamily(rc.WireFamily)
	if err != nil {
		return nil, err
	}
	return &Resolution{
		Call: wire.CallConfig{
			Endpoint:        rc.Endpoint,
			Credential:      rc.Credential,
			ProviderName:    rc.ProviderName,
			ProviderModelID: rc.ProviderModelID,
			Family:          family,
			Defaults:        core.Params(rc.Defaults),
		},
		ModelName: rc.ModelName,
	}, nil
}
