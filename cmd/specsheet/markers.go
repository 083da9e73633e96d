package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/jonathan/specsheet/internal/observability"
	"github.com/jonathan/specsheet/internal/rendering"
)

func newMarkersCmd(root *rootOptions) *cobra.Command {
	var (
		language string
		template string
		format   string
	)
	cmd := &cobra.Command{
		Use:   "markers",
		Short: "List the {{B<n>}} markers found in a template",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := observability.DetectFormat(format)
			if err != nil {
				return err
			}

			path := template
			switch {
			case path != "" && language != "":
				return errors.New("use either --language or --template, not both")
			case path == "":
				if language == "" {
					language = root.cfg.Templates.Catalog().Default()
				}
				if path, err = root.cfg.Templates.Catalog().Path(language); err != nil {
					return err
				}
			}

			markers, err := rendering.DiscoverPlaceholders(path)
			if err != nil {
				return err
			}
			p := observability.NewPrinter(cmd.OutOrStdout())
			if f == observability.FormatJSON {
				return p.JSON(map[string]any{"template": path, "markers": markers})
			}
			p.PrintMarkers(path, markers)
			return nil
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "Catalog language (default: first configured)")
	cmd.Flags().StringVar(&template, "template", "", "Path to an ODT template")
	cmd.Flags().StringVar(&format, "format", "", "Output format: table or json")
	return cmd
}
