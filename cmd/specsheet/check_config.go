package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/specsheet/internal/transform"
	"github.com/jonathan/specsheet/internal/types"
)

func newCheckConfigCmd(root *rootOptions) *cobra.Command {
	var show string
	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and site transformers",
		Long: `Validate the loaded configuration and the site transformer files,
including any overrides in transform.dir. With --show, print the effective
transformer of one site as YAML.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := root.cfg
			if err := cfg.Validate(); err != nil {
				return err
			}
			set, err := transform.Load(cfg.Transform.Dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if show != "" {
				id, err := types.ParseSourceID(show)
				if err != nil {
					return err
				}
				t, _ := set.Get(id)
				data, err := transform.Marshal(t.Config())
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}

			file := cfg.File
			if file == "" {
				file = "(defaults)"
			}
			fmt.Fprintf(out, "config:       %s\n", file)
			for _, id := range types.AllSources {
				t, _ := set.Get(id)
				fmt.Fprintf(out, "%-13s %d rename rules, %d drops\n", id.String()+":", len(t.Config().Rename), len(t.Config().Drop))
			}
			fmt.Fprintf(out, "languages:    %d\n", len(cfg.Templates.Languages))
			fmt.Fprintln(out, "ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&show, "show", "", "Print the effective transformer of a site (site1, site2, site3)")
	return cmd
}
