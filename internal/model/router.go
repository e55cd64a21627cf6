package model

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/harunnryd/tabletalk/internal/config"
	talkErrors "github.com/harunnryd/tabletalk/internal/errors"
	"github.com/harunnryd/tabletalk/internal/logger"
	"github.com/harunnryd/tabletalk/internal/model/contract"
	anthropicProvider "github.com/harunnryd/tabletalk/internal/model/providers/anthropic"
	geminiProvider "github.com/harunnryd/tabletalk/internal/model/providers/gemini"
	openaiProvider "github.com/harunnryd/tabletalk/internal/model/providers/openai"
)

// DefaultModelRouter resolves CompletionRequest.Model to a configured provider
// and falls back to models.fallback when the primary fails.
type DefaultModelRouter struct {
	cfg       config.ModelsConfig
	providers map[string]Provider
	mu        sync.RWMutex
}

func NewModelRouter(cfg config.ModelsConfig) (*DefaultModelRouter, error) {
	router := &DefaultModelRouter{
		cfg:       cfg,
		providers: make(map[string]Provider),
	}

	if err := router.initProviders(); err != nil {
		return nil, err
	}

	return router, nil
}

// NewModelRouterWithProviders builds a router over already constructed providers.
func NewModelRouterWithProviders(cfg config.ModelsConfig, providers ...Provider) *DefaultModelRouter {
	router := &DefaultModelRouter{
		cfg:       cfg,
		providers: make(map[string]Provider, len(providers)),
	}
	for _, p := range providers {
		router.providers[p.Name()] = p
	}
	return router
}

// Complete routes a completion request to the provider registered for req.Model,
// or to models.default when the request names no model.
func (r *DefaultModelRouter) Complete(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = r.cfg.Default
	}
	traceID := logger.GetTraceID(ctx)

	slog.Debug("Routing completion request", "model", model, "messages", len(req.Messages), "tools", len(req.Tools), "trace_id", traceID)

	provider, resolved, err := r.resolveProvider(ctx, model)
	if err != nil {
		return nil, err
	}

	return r.executeWithFallback(ctx, resolved, provider, req, traceID)
}

func (r *DefaultModelRouter) ListModels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]string, 0, len(r.providers))
	for name := range r.providers {
		models = append(models, name)
	}
	sort.Strings(models)

	return models
}

func (r *DefaultModelRouter) Health(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, provider := range r.providers {
		if err := provider.Health(ctx); err != nil {
			slog.Warn("Provider unhealthy", "provider", name, "error", err)
			return talkErrors.Transient(fmt.Sprintf("provider %s unhealthy", name))
		}
	}

	return nil
}

func (r *DefaultModelRouter) initProviders() error {
	for _, entry := range r.cfg.Registry {
		provider, err := createProvider(entry)
		if err != nil {
			slog.Warn("Failed to create provider", "provider", entry.Provider, "model", entry.Name, "error", err)
			continue
		}

		r.providers[entry.Name] = provider
		slog.Debug("Provider initialized", "name", entry.Name, "type", entry.Provider)
	}

	if len(r.providers) == 0 && len(r.cfg.Registry) > 0 {
		return talkErrors.Internal("no providers initialized")
	}

	return nil
}

func (r *DefaultModelRouter) resolveProvider(ctx context.Context, model string) (Provider, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", talkErrors.Wrap(ctx.Err(), "provider resolution cancelled")
	default:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if provider, exists := r.providers[model]; exists {
		return provider, model, nil
	}

	slog.Warn("Model not found", "model", model)

	if r.cfg.Fallback != "" && model != r.cfg.Fallback {
		if fallbackProvider, ok := r.providers[r.cfg.Fallback]; ok {
			slog.Info("Trying fallback model", "model", model, "fallback", r.cfg.Fallback)
			return fallbackProvider, r.cfg.Fallback, nil
		}
	}

	return nil, "", talkErrors.NotFound(fmt.Sprintf("model %s not found", model))
}

func (r *DefaultModelRouter) executeWithFallback(ctx context.Context, model string, provider Provider, req contract.CompletionRequest, traceID string) (*contract.CompletionResponse, error) {
	maxAttempts := r.cfg.MaxFallbackAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	currentModel := model
	currentProvider := provider
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, talkErrors.Wrap(ctx.Err(), "request execution cancelled")
		default:
		}

		req.Model = currentModel
		start := time.Now()
		resp, err := currentProvider.Generate(ctx, req)
		if err == nil {
			slog.Info("Completion finished",
				"model", currentModel,
				"attempt", attempt+1,
				"tool_calls", len(resp.ToolCalls),
				"prompt_tokens", resp.Usage.PromptTokens,
				"completion_tokens", resp.Usage.CompletionTokens,
				"duration", time.Since(start),
				"trace_id", traceID,
			)
			return resp, nil
		}

		lastErr = err
		slog.Error("Provider request failed", "model", currentModel, "attempt", attempt+1, "error", err, "trace_id", traceID)

		if r.cfg.Fallback == "" || currentModel == r.cfg.Fallback {
			break
		}

		r.mu.RLock()
		fallbackProvider, exists := r.providers[r.cfg.Fallback]
		r.mu.RUnlock()
		if !exists {
			break
		}

		slog.Info("Attempting fallback", "from", currentModel, "to", r.cfg.Fallback)
		currentModel = r.cfg.Fallback
		currentProvider = fallbackProvider
	}

	return nil, talkErrors.Wrap(lastErr, "provider request failed")
}

func createProvider(entry config.ModelRegistry) (Provider, error) {
	timeout, err := entry.RequestTimeoutDuration()
	if err != nil {
		return nil, talkErrors.InvalidInput(fmt.Sprintf("invalid request_timeout for model %s: %v", entry.Name, err))
	}

	switch entry.Provider {
	case "openai":
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultOpenAIBaseURL
		}

		if entry.APIKey == "" {
			return nil, talkErrors.InvalidInput("API key required for OpenAI provider")
		}

		return NewProviderAdapter(openaiProvider.New(entry.APIKey, baseURL, entry.APIVersion), entry.Name, "openai", timeout), nil

	case "ollama":
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultOllamaBaseURL
		}

		apiKey := entry.APIKey
		if apiKey == "" {
			apiKey = config.DefaultOllamaAPIKey
		}

		return NewProviderAdapter(openaiProvider.New(apiKey, baseURL, ""), entry.Name, "ollama", timeout), nil

	case "anthropic":
		if entry.APIKey == "" {
			return nil, talkErrors.InvalidInput("API key required for Anthropic provider")
		}

		maxTokens := entry.MaxTokens
		if maxTokens <= 0 {
			maxTokens = config.DefaultModelMaxTokens
		}

		return NewProviderAdapter(anthropicProvider.New(entry.APIKey, entry.BaseURL, maxTokens), entry.Name, "anthropic", timeout), nil

	case "gemini":
		if entry.APIKey == "" {
			return nil, talkErrors.InvalidInput("API key required for Gemini provider")
		}

		provider, err := geminiProvider.New(entry.APIKey, timeout)
		if err != nil {
			return nil, talkErrors.WrapWithCategory(err, "failed to create Gemini provider", talkErrors.ErrInternal)
		}

		return NewProviderAdapter(provider, entry.Name, "gemini", timeout), nil

	default:
		return nil, talkErrors.InvalidInput(fmt.Sprintf("unknown provider type: %s", entry.Provider))
	}
}
