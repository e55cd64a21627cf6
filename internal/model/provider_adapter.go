package model

import (
	"context"
	"fmt"
	"time"

	talkErrors "github.com/harunnryd/tabletalk/internal/errors"
	"github.com/harunnryd/tabletalk/internal/model/contract"
)

// ProviderAdapter wraps an SDK-specific generator to satisfy Provider. It bounds
// every request with the configured timeout and maps SDK errors onto the
// taxonomy so callers can decide whether to retry.
type ProviderAdapter struct {
	provider     generator
	name         string
	providerType string
	timeout      time.Duration
	mapper       talkErrors.ErrorMapper
}

func NewProviderAdapter(provider generator, name, providerType string, timeout time.Duration) *ProviderAdapter {
	return &ProviderAdapter{
		provider:     provider,
		name:         name,
		providerType: providerType,
		timeout:      timeout,
		mapper:       talkErrors.NewDefaultErrorMapper(),
	}
}

func (a *ProviderAdapter) Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	if a.provider == nil {
		return nil, talkErrors.Internal(fmt.Sprintf("provider %s has no client", a.name))
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	if req.Model == "" {
		req.Model = a.name
	}

	resp, err := a.provider.Generate(ctx, req)
	if err != nil {
		return nil, a.mapper.MapError(err)
	}
	if resp == nil {
		return nil, talkErrors.Internal(fmt.Sprintf("provider %s returned no response", a.name))
	}
	return resp, nil
}

func (a *ProviderAdapter) Name() string {
	return a.name
}

func (a *ProviderAdapter) Type() string {
	return a.providerType
}

func (a *ProviderAdapter) Health(ctx context.Context) error {
	if a.provider == nil {
		return talkErrors.Internal(fmt.Sprintf("provider %s has no client", a.name))
	}
	return nil
}
