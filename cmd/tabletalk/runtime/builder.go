package runtime

import (
	"context"
	"fmt"

	"github.com/harunnryd/tabletalk/internal/config"
	"github.com/harunnryd/tabletalk/internal/model"
	"github.com/harunnryd/tabletalk/internal/present"
)

type RuntimeBuilder interface {
	WithContext(ctx context.Context) RuntimeBuilder
	WithConfig(cfg *config.Config) RuntimeBuilder
	WithPresenter(p present.Presenter) RuntimeBuilder
	WithGateway(g model.Gateway) RuntimeBuilder
	WithoutLoop() RuntimeBuilder
	Build() (*RuntimeComponents, error)
}

type DefaultRuntimeBuilder struct {
	ctx  context.Context
	cfg  *config.Config
	opts Options
}

func NewRuntimeBuilder() RuntimeBuilder {
	return &DefaultRuntimeBuilder{}
}

func (b *DefaultRuntimeBuilder) WithContext(ctx context.Context) RuntimeBuilder {
	b.ctx = ctx
	return b
}

func (b *DefaultRuntimeBuilder) WithConfig(cfg *config.Config) RuntimeBuilder {
	b.cfg = cfg
	return b
}

func (b *DefaultRuntimeBuilder) WithPresenter(p present.Presenter) RuntimeBuilder {
	b.opts.Presenter = p
	return b
}

// WithGateway replaces the configured model router.
func (b *DefaultRuntimeBuilder) WithGateway(g model.Gateway) RuntimeBuilder {
	b.opts.Gateway = g
	return b
}

// WithoutLoop skips the gateway and the conversation loop, for surfaces that
// only drive the tools.
func (b *DefaultRuntimeBuilder) WithoutLoop() RuntimeBuilder {
	b.opts.SkipLoop = true
	return b
}

func (b *DefaultRuntimeBuilder) Build() (*RuntimeComponents, error) {
	if b.ctx == nil {
		b.ctx = context.Background()
	}

	if b.cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	return NewRuntimeComponents(b.ctx, b.cfg, b.opts)
}
