package main

import (
	"fmt"

	"github.com/harunnryd/tabletalk/cmd/tabletalk/runtime"

	"github.com/spf13/cobra"
)

// executeWithRuntime builds the runtime for a command, runs fn and tears the
// runtime down. configure may adjust the builder before it runs.
func executeWithRuntime(cmd *cobra.Command, configure func(runtime.RuntimeBuilder) runtime.RuntimeBuilder, fn func(*runtime.RuntimeComponents) error) error {
	loadedCfg, err := loadConfigForCommand(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	signals := NewSignalHandler(cmd.Context())
	signals.Start()
	defer signals.Stop()

	builder := runtime.NewRuntimeBuilder().
		WithContext(signals.Context()).
		WithConfig(loadedCfg)
	if configure != nil {
		builder = configure(builder)
	}

	components, err := builder.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	defer components.Stop()

	return fn(components)
}
