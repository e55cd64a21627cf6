package main

import (
	"os"

	"github.com/harunnryd/tabletalk/cmd/tabletalk/runtime"

	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation about the table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWithRuntime(cmd, nil, func(r *runtime.RuntimeComponents) error {
			return runtime.NewREPL(r, os.Stdin, os.Stdout).Start()
		})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
