package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/specsheet/internal/pipeline"
	"github.com/jonathan/specsheet/internal/reconcile"
	"github.com/jonathan/specsheet/internal/types"
)

func newReconcileCmd(root *rootOptions) *cobra.Command {
	var (
		input    string
		priority []string
		output   resultOptions
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Merge source tables read from a JSON file",
		Long: `Merge up to three source tables without scraping. The input has the shape
{"tables": {"site1": [{"key": "...", "value": "..."}], ...}}; a null value
or one of reconcile.null_markers (default "None") is treated as missing.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}
			var req types.ReconcileRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return fmt.Errorf("failed to parse input: %w", err)
			}
			if len(priority) > 0 {
				req.Priority = priority
			}
			if len(req.Priority) == 0 {
				req.Priority = root.cfg.Reconcile.Priority
			}
			if len(req.NullMarkers) == 0 {
				req.NullMarkers = root.cfg.Reconcile.NullMarkers
			}
			if err := req.Validate(); err != nil {
				return err
			}

			ids, err := req.PriorityIDs()
			if err != nil {
				return err
			}
			rows := reconcile.New(reconcile.WithPriority(ids)).Merge(req.SourceTables())

			exporter := pipeline.NewExporter(root.cfg.Templates.Catalog(), root.cfg.Style, nil)
			return output.finish(cmd.Context(), cmd.OutOrStdout(), exporter, rows, nil)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "JSON file with the source tables (required)")
	cmd.Flags().StringSliceVar(&priority, "priority", nil, "Source precedence, e.g. site2,site1,site3")
	if err := cmd.MarkFlagRequired("input"); err != nil {
		panic(fmt.Sprintf("failed to mark input flag as required: %v", err))
	}
	output.bind(cmd)
	return cmd
}
