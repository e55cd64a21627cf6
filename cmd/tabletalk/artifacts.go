package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/harunnryd/tabletalk/internal/artifact"
	"github.com/harunnryd/tabletalk/internal/dataset"
	"github.com/harunnryd/tabletalk/internal/present"

	"github.com/spf13/cobra"
)

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "Inspect persisted query results",
}

var artifactsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List side files in artifacts.dir",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := artifactStoreForCommand(cmd)
		if err != nil {
			return err
		}

		paths, err := store.List()
		if err != nil {
			return fmt.Errorf("failed to list artifacts: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(paths) == 0 {
			fmt.Fprintf(out, "No side files in %s.\n", store.Dir())
			return nil
		}

		t := &dataset.Table{Columns: []dataset.Column{
			{Name: "file", Kind: dataset.KindString},
			{Name: "bytes", Kind: dataset.KindInt},
			{Name: "modified", Kind: dataset.KindTime},
		}}
		for _, p := range paths {
			info, err := os.Stat(p)
			if err != nil {
				continue
			}
			t.Rows = append(t.Rows, []any{filepath.Base(p), info.Size(), info.ModTime()})
		}
		fmt.Fprintln(out, present.NewTableRenderer(0).WithoutTruncation().Render(t))
		return nil
	},
}

var artifactsShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Print a persisted query result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outputFormat, _ := cmd.Flags().GetString("output")
		maxRows, _ := cmd.Flags().GetInt("max-rows")
		format, err := present.ParseOutputFormat(outputFormat)
		if err != nil {
			return err
		}

		store, err := artifactStoreForCommand(cmd)
		if err != nil {
			return err
		}

		path := args[0]
		if !filepath.IsAbs(path) && filepath.Dir(path) == "." {
			path = filepath.Join(store.Dir(), path)
		}
		t, err := store.Read(path)
		if err != nil {
			return fmt.Errorf("failed to read artifact: %w", err)
		}

		output, err := present.Format(t, format, maxRows)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), output)
		return nil
	},
}

func artifactStoreForCommand(cmd *cobra.Command) (*artifact.Store, error) {
	loadedCfg, err := loadConfigForCommand(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return artifact.NewStore(loadedCfg.Artifacts)
}

func init() {
	artifactsShowCmd.Flags().StringP("output", "o", "table", "Output format (table|json|yaml)")
	artifactsShowCmd.Flags().Int("max-rows", present.DefaultMaxRows, "Row limit for the table format (0 = all)")
	artifactsCmd.AddCommand(artifactsLsCmd)
	artifactsCmd.AddCommand(artifactsShowCmd)
	rootCmd.AddCommand(artifactsCmd)
}
