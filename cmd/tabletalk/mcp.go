package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/harunnryd/tabletalk/cmd/tabletalk/runtime"
	"github.com/harunnryd/tabletalk/internal/mcpserve"
	"github.com/harunnryd/tabletalk/internal/present"

	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the tools over MCP stdio",
	Long:  `Expose the configured tools to an MCP client on stdin/stdout. Tables and chart notices go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		loadedCfg, err := loadConfigForCommand(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		callTimeout, err := loadedCfg.Connector.QueryTimeoutDuration()
		if err != nil {
			return fmt.Errorf("parse connector.query_timeout: %w", err)
		}

		stderr := present.NewTerminal(os.Stderr, filepath.Join(loadedCfg.Artifacts.Dir, "charts"), present.DefaultMaxRows)
		configure := func(b runtime.RuntimeBuilder) runtime.RuntimeBuilder {
			return b.WithPresenter(stderr).WithoutLoop()
		}
		return executeWithRuntime(cmd, configure, func(r *runtime.RuntimeComponents) error {
			return mcpserve.New(loadedCfg.MCP, r.Dispatcher, r.Session).
				WithCallTimeout(callTimeout).
				Serve()
		})
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
