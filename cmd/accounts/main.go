package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"nrkgo.com/accounts/internal/config"
	"nrkgo.com/accounts/internal/obs"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "accounts",
	Short:         "Accounts and identity service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), obs.Build())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "configuration file (yaml, json or toml)")
	rootCmd.AddCommand(serveCmd, migrateCmd, versionCmd)
}

// loadConfig reads configuration and installs the process logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if _, err := obs.Configure(obs.LogConfig{
		Level:  cfg.Log.Level,
		Output: cfg.Log.Output,
		Path:   cfg.Log.Path,
	}); err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
