// Package main provides the specsheet CLI: the HTTP API server and one-shot
// scrape, reconcile and export commands.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonathan/specsheet/internal/config"
	"github.com/jonathan/specsheet/internal/logging"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configFile string
	logLevel   string
	logFormat  string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "specsheet",
		Short:         "Vehicle specification extraction and export",
		Long:          "specsheet scrapes three vehicle-data sites, reconciles their specification tables into one and fills the result into ODT templates.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Config file (default ./specsheet.yaml if present)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format: auto, json, console")

	cmd.AddCommand(
		newServeCmd(opts),
		newProcessCmd(opts),
		newReconcileCmd(opts),
		newLanguagesCmd(opts),
		newMarkersCmd(opts),
		newCheckConfigCmd(opts),
	)
	return cmd
}

// load reads the configuration and configures the default logger.
func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}

	logger := logging.New(cmd.ErrOrStderr(), cfg.Log.Logging())
	logging.SetDefault(logger)
	cmd.SetContext(logging.WithLogger(cmd.Context(), logging.Default()))

	o.cfg = cfg
	return nil
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
