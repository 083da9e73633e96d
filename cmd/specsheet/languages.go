package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/specsheet/internal/observability"
)

func newLanguagesCmd(root *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "languages",
		Short: "List the export languages and their templates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := observability.DetectFormat(format)
			if err != nil {
				return err
			}
			catalog := root.cfg.Templates.Catalog()
			p := observability.NewPrinter(cmd.OutOrStdout())
			if f == observability.FormatJSON {
				return p.JSON(map[string]any{"default": catalog.Default(), "languages": catalog.Languages()})
			}
			return p.PrintLanguages(catalog)
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "Output format: table or json")
	return cmd
}
