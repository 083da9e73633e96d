package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/specsheet/internal/pipeline"
	"github.com/jonathan/specsheet/internal/types"
)

func newProcessCmd(root *rootOptions) *cobra.Command {
	var (
		req     types.ProcessRequest
		verbose bool
		output  resultOptions
	)
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Scrape the sources and print the reconciled table",
		Long: `Scrape up to three vehicle pages, normalize each site's table and merge
them by key. The final value of each row comes from site 2, then site 1,
then site 3. Sources that fail are reported and skipped.`,
		Example: `  specsheet process --site1 https://... --site2 https://... --export Inglés`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := req.Validate(); err != nil {
				return err
			}
			opts, err := pipeline.OptionsFromRequest(&req)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, root.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if verbose {
				opts.OnProgress = func(e pipeline.ProgressEvent) {
					fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", e.Step, e.Message)
				}
			}
			run, err := a.processor.Process(ctx, opts)
			if err != nil {
				return err
			}
			return output.finish(ctx, cmd.OutOrStdout(), a.exporter, run.Rows, run.Warnings)
		},
	}

	cmd.Flags().StringVar(&req.Site1URL, "site1", "", "Site 1 page URL")
	cmd.Flags().StringVar(&req.Site2URL, "site2", "", "Site 2 page URL")
	cmd.Flags().StringVar(&req.Site3URL, "site3", "", "Site 3 page URL")
	cmd.Flags().StringVarP(&req.Transmission, "transmission", "t", "", "Site 2 column: default, manual or automatic")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print progress to stderr")
	output.bind(cmd)
	return cmd
}
