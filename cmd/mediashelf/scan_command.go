package main

import (
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"mediashelf/internal/library"
	"mediashelf/internal/reconcile"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one reconcile cycle now",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.newLogger()
			if err != nil {
				return err
			}
			orch, err := ctx.buildOrchestrator(logger)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res := orch.Run(runCtx)
			if res.State == reconcile.CycleFailed {
				if res.Err != nil {
					return fmt.Errorf("cycle %s failed: %w", res.CycleID, res.Err)
				}
				return fmt.Errorf("cycle %s failed", res.CycleID)
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, struct {
					CycleID string               `json:"cycle_id"`
					State   string               `json:"state"`
					Report  library.ChangeReport `json:"report"`
				}{res.CycleID, res.State, res.Report})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cycle %s finished: %s\n", res.CycleID, res.State)
			fmt.Fprintln(out, renderChangeReport(res.Report))
			for _, warning := range res.Report.Warnings {
				fmt.Fprintf(out, "warning: %s\n", warning)
			}
			return nil
		},
	}
}

func renderChangeReport(report library.ChangeReport) string {
	headers := []string{"Matched", "Ambiguous", "Unmatched", "Moved", "Orphaned", "Removed"}
	row := []string{
		strconv.Itoa(report.Matched),
		strconv.Itoa(report.Ambiguous),
		strconv.Itoa(report.Unmatched),
		strconv.Itoa(report.Moved),
		strconv.Itoa(report.Orphaned),
		strconv.Itoa(report.Removed),
	}
	aligns := []columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignRight}
	return renderTable(headers, [][]string{row}, aligns)
}
