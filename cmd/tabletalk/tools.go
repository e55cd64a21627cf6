package main

import (
	"fmt"
	"strings"

	"github.com/harunnryd/tabletalk/cmd/tabletalk/runtime"
	"github.com/harunnryd/tabletalk/internal/dataset"
	"github.com/harunnryd/tabletalk/internal/present"
	"github.com/harunnryd/tabletalk/internal/tool"

	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect the tools offered to the model",
}

var toolsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List enabled tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		outputFormat, _ := cmd.Flags().GetString("output")
		capability, _ := cmd.Flags().GetString("capability")

		format, err := present.ParseOutputFormat(outputFormat)
		if err != nil {
			return err
		}

		configure := func(b runtime.RuntimeBuilder) runtime.RuntimeBuilder { return b.WithoutLoop() }
		return executeWithRuntime(cmd, configure, func(r *runtime.RuntimeComponents) error {
			output, err := present.Format(toolsTable(r.Registry.GetDescriptors(), capability), format, 0)
			if err != nil {
				return fmt.Errorf("failed to format output: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		})
	},
}

// toolsTable lays descriptors out one row per tool, keeping only those that
// declare capability when it is set.
func toolsTable(descriptors []tool.ToolDescriptor, capability string) *dataset.Table {
	t := &dataset.Table{Columns: []dataset.Column{
		{Name: "name", Kind: dataset.KindString},
		{Name: "risk", Kind: dataset.KindString},
		{Name: "source", Kind: dataset.KindString},
		{Name: "capabilities", Kind: dataset.KindString},
		{Name: "required", Kind: dataset.KindString},
	}}
	for _, d := range descriptors {
		if capability != "" && !d.HasCapability(capability) {
			continue
		}
		t.Rows = append(t.Rows, []any{
			d.Definition.Name,
			string(d.Metadata.Risk),
			d.Metadata.Source,
			strings.Join(d.Metadata.Capabilities, ", "),
			strings.Join(requiredParams(d.Definition.Parameters), ", "),
		})
	}
	return t
}

func requiredParams(params map[string]interface{}) []string {
	switch req := params["required"].(type) {
	case []string:
		return req
	case []interface{}:
		out := make([]string, 0, len(req))
		for _, v := range req {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func init() {
	toolsLsCmd.Flags().StringP("output", "o", "table", "Output format (table|json|yaml)")
	toolsLsCmd.Flags().String("capability", "", "Only list tools declaring this capability")
	toolsCmd.AddCommand(toolsLsCmd)
	rootCmd.AddCommand(toolsCmd)
}
