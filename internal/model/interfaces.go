package model

import (
	"context"

	"github.com/harunnryd/tabletalk/internal/model/contract"
)

// Gateway is the stateless LLM completion service the conversation loop talks to.
// Every call carries the complete history.
type Gateway interface {
	Complete(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error)
}

type ModelRouter interface {
	Gateway
	ListModels() []string
	Health(ctx context.Context) error
}

type Provider interface {
	Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error)
	Name() string
	Type() string
	Health(ctx context.Context) error
}

// generator is what each SDK-specific package in providers/ implements.
type generator interface {
	Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error)
}
