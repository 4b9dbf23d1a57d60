package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"multichat/internal/core"
)

// SeedFile describes the YAML bootstrap document. Providers, models and
// implementations are matched by name, so re-running the seed against a
// populated store is a no-op for existing entries.
type SeedFile struct {
	Providers []SeedProvider `yaml:"providers"`
	Models    []SeedModel    `yaml:"models"`
}

type SeedProvider struct {
	Name        string        `yaml:"name"`
	BaseURL     string        `yaml:"base_url"`
	Description string        `yaml:"description"`
	WireFamily  string        `yaml:"wire_family"`
	APIKeys     []SeedAPIKey  `yaml:"api_keys"`
}

type SeedAPIKey struct {
	Alias  string `yaml:"alias"`
	Key    string `yaml:"key"`
	KeyEnv string `yaml:"key_env"`
}

type SeedModel struct {
	Name            string               `yaml:"name"`
	Description     string               `yaml:"description"`
	Family          string               `yaml:"family"`
	Capabilities    []string             `yaml:"capabilities"`
	Implementations []SeedImplementation `yaml:"implementations"`
}

type SeedImplementation struct {
	Provider         string         `yaml:"provider"`
	ProviderModelID  string         `yaml:"provider_model_id"`
	Version          string         `yaml:"version"`
	ContextWindow    int            `yaml:"context_window"`
	Available        *bool          `yaml:"available"`
	CustomParameters map[string]any `yaml:"custom_parameters"`
}

// Seed loads the YAML file at path and creates any providers, keys, models
// and implementations not already present. Key material can be given inline
// or referenced from the environment via key_env; keys whose environment
// variable is unset are skipped.
func Seed(ctx context.Context, st Store, path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	providers, err := st.ListProviders(ctx)
	if err != nil {
		return err
	}
	providerByName := make(map[string]*Provider, len(providers))
	for i := range providers {
		providerByName[providers[i].Name] = &providers[i]
	}

	for _, sp := range file.Providers {
		p, ok := providerByName[sp.Name]
		if !ok {
			p = &Provider{
				Name:        sp.Name,
				BaseURL:     sp.BaseURL,
				Description: sp.Description,
				WireFamily:  sp.WireFamily,
			}
			if err := st.CreateProvider(ctx, p); err != nil {
				return fmt.Errorf("failed to seed provider %q: %w", sp.Name, err)
			}
			providerByName[sp.Name] = p
			logger.Info("seeded provider", "name", sp.Name, "wire_family", p.WireFamily)
		}

		existing, err := st.ListAPIKeys(ctx, p.ID)
		if err != nil {
			return err
		}
		aliases := make(map[string]bool, len(existing))
		for _, k := range existing {
			aliases[k.Alias] = true
		}
		for _, sk := range sp.APIKeys {
			if aliases[sk.Alias] {
				continue
			}
			secret := sk.Key
			if sk.KeyEnv != "" {
				secret = os.Getenv(sk.KeyEnv)
			}
			if secret == "" {
				logger.Warn("skipping api key without material", "provider", sp.Name, "alias", sk.Alias, "key_env", sk.KeyEnv)
				continue
			}
			key := &APIKey{ProviderID: p.ID, Alias: sk.Alias, Key: secret}
			if err := st.CreateAPIKey(ctx, key); err != nil {
				return fmt.Errorf("failed to seed api key %q for provider %q: %w", sk.Alias, sp.Name, err)
			}
			logger.Info("seeded api key", "provider", sp.Name, "alias", sk.Alias)
		}
	}

	models, err := st.ListModels(ctx)
	if err != nil {
		return err
	}
	modelByName := make(map[string]*Model, len(models))
	for i := range models {
		modelByName[models[i].Name] = &models[i]
	}

	impls, err := st.ListImplementations(ctx)
	if err != nil {
		return err
	}
	type implKey struct {
		provider, model string
	}
	haveImpl := make(map[implKey]bool, len(impls))
	for _, impl := range impls {
		haveImpl[implKey{impl.ProviderID.String(), impl.ModelID.String()}] = true
	}

	for _, sm := range file.Models {
		m, ok := modelByName[sm.Name]
		if !ok {
			m = &Model{
				Name:         sm.Name,
				Description:  sm.Description,
				Family:       sm.Family,
				Capabilities: sm.Capabilities,
			}
			if err := st.CreateModel(ctx, m); err != nil {
				return fmt.Errorf("failed to seed model %q: %w", sm.Name, err)
			}
			modelByName[sm.Name] = m
			logger.Info("seeded model", "name", sm.Name)
		}

		for _, si := range sm.Implementations {
			p, ok := providerByName[si.Provider]
			if !ok {
				return fmt.Errorf("model %q references unknown provider %q", sm.Name, si.Provider)
			}
			if haveImpl[implKey{p.ID.String(), m.ID.String()}] {
				continue
			}
			available := true
			if si.Available != nil {
				available = *si.Available
			}
			impl := &ModelImplementation{
				ProviderID:       p.ID,
				ModelID:          m.ID,
				ProviderModelID:  si.ProviderModelID,
				Version:          si.Version,
				ContextWindow:    si.ContextWindow,
				IsAvailable:      available,
				CustomParameters: core.Params(si.CustomParameters),
			}
			if err := st.CreateImplementation(ctx, impl); err != nil {
				return fmt.Errorf("failed to seed implementation of %q on %q: %w", sm.Name, si.Provider, err)
			}
			haveImpl[implKey{p.ID.String(), m.ID.String()}] = true
			logger.Info("seeded implementation", "model", sm.Name, "provider", si.Provider, "provider_model_id", si.ProviderModelID)
		}
	}
	return nil
}
