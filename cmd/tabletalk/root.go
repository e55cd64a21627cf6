package main

import (
	"fmt"
	"os"

	"github.com/harunnryd/tabletalk/internal/config"
	"github.com/harunnryd/tabletalk/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "tabletalk",
	Short: "Talk to a database table",
	Long:  `tabletalk answers questions about one database table through an LLM that can describe it, query it and chart the results.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cmd)
		if err != nil {
			return err
		}

		logger.Setup(cfg.Log.Level)
		return nil
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tabletalk/config.yaml)")
	rootCmd.PersistentFlags().String("log.level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("table.db", "", "database (catalog) of the target table")
	rootCmd.PersistentFlags().String("table.schema", "", "schema of the target table")
	rootCmd.PersistentFlags().String("table.table", "", "target table name")
	rootCmd.PersistentFlags().String("connector.driver", config.DefaultConnectorDriver, "SQL driver (sqlite, databricks)")
	rootCmd.PersistentFlags().String("connector.path", "", "database file for the sqlite driver")
	rootCmd.PersistentFlags().String("models.default", config.DefaultModelDefault, "model id sent to the gateway")
}
