package engines

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-visibility/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-visibility/pkg/config"
	"github.com/ekaya-inc/ekaya-visibility/pkg/models"
)

// Registry resolves engines to their queriers.
type Registry struct {
	queriers map[models.Engine]Querier
}

// NewRegistry builds a querier for every engine that has credentials
// configured. Engines without credentials are left out and report
// apperrors.ErrEngineNotConfigured from Get.
func NewRegistry(ctx context.Context, cfg *config.EnginesConfig, breakerCfg CircuitBreakerConfig, logger *zap.Logger) (*Registry, error) {
	r := &Registry{queriers: make(map[models.Engine]Querier)}

	for name, engineCfg := range cfg.ByName() {
		engine := models.Engine(name)
		if !engineCfg.Enabled() {
			logger.Info("Engine not configured", zap.String("engine", name))
			continue
		}

		client, err := NewClient(ctx, engineCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("engine %s: %w", name, err)
		}
		r.queriers[engine] = NewQuerier(engine, client, NewCircuitBreaker(breakerCfg), logger)
		logger.Info("Engine configured",
			zap.String("engine", name),
			zap.String("provider", engineCfg.Provider),
			zap.String("model", engineCfg.Model))
	}

	return r, nil
}

// NewClient creates the provider client described by cfg.
func NewClient(ctx context.Context, cfg *config.EngineConfig, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI, config.ProviderAzure:
		return NewOpenAIClient(OpenAIConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
			Azure:   cfg.Provider == config.ProviderAzure,
		}, logger)
	case config.ProviderAnthropic:
		return NewAnthropicClient(AnthropicConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		}, logger)
	case config.ProviderGemini:
		return NewGeminiClient(ctx, GeminiConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}

// Get returns the querier for engine.
func (r *Registry) Get(engine models.Engine) (Querier, error) {
	q, ok := r.queriers[engine]
	if !ok {
		return nil, fmt.Errorf("%s: %w", engine, apperrors.ErrEngineNotConfigured)
	}
	return q, nil
}

// Configured lists engines that can be queried, sorted by name.
func (r *Registry) Configured() []models.Engine {
	engines := make([]models.Engine, 0, len(r.queriers))
	for e := range r.queriers {
		engines = append(engines, e)
	}
	sort.Slice(engines, func(i, j int) bool { return engines[i] < engines[j] })
	return engines
}
