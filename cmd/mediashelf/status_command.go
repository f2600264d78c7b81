package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mediashelf/internal/library"
	"mediashelf/internal/reconcile"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show library and engine state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			libStore, err := ctx.openStore()
			if err != nil {
				return err
			}

			snap, err := libStore.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			last, err := libStore.LastCycle(cmd.Context())
			if err != nil {
				return err
			}

			counts := countItems(snap)
			if ctx.jsonOutput() {
				payload := map[string]any{
					"database":   cfg.DatabasePath(),
					"roots":      cfg.Scanner.Roots,
					"items":      counts,
					"files":      len(snap.Links),
					"unresolved": len(snap.Unresolved),
				}
				if last != nil {
					payload["last_cycle"] = map[string]any{
						"id":          last.ID,
						"state":       last.State,
						"started_at":  last.StartedAt,
						"finished_at": last.FinishedAt,
						"report":      last.Report,
						"error":       last.Error,
					}
				}
				return writeJSON(cmd, payload)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderStatusLine("Database", statusInfo, cfg.DatabasePath(), colorize))
			fmt.Fprintln(out, renderStatusLine("Roots", statusInfo, strings.Join(cfg.Scanner.Roots, ", "), colorize))
			fmt.Fprintln(out, renderStatusLine("Library", statusInfo, fmt.Sprintf(
				"%d movies, %d shows, %d episodes, %d files",
				counts["movies"], counts["shows"], counts["episodes"], len(snap.Links)), colorize))

			backlogKind := statusOK
			if len(snap.Unresolved) > 0 {
				backlogKind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine("Unresolved", backlogKind, fmt.Sprintf("%d files", len(snap.Unresolved)), colorize))

			if last == nil {
				fmt.Fprintln(out, renderStatusLine("Last cycle", statusInfo, "never run", colorize))
				return nil
			}
			kind := statusOK
			switch last.State {
			case reconcile.CycleFailed:
				kind = statusError
			case reconcile.CyclePartialSuccess:
				kind = statusWarn
			}
			detail := fmt.Sprintf("%s at %s", last.State, last.StartedAt.Local().Format(time.RFC1123))
			if last.Error != "" {
				detail += ": " + last.Error
			}
			fmt.Fprintln(out, renderStatusLine("Last cycle", kind, detail, colorize))
			return nil
		},
	}
}

func countItems(snap library.Snapshot) map[string]int {
	counts := map[string]int{"movies": 0, "shows": 0, "seasons": 0, "episodes": 0}
	for _, item := range snap.Items {
		switch item.Kind {
		case library.KindMovie:
			counts["movies"]++
		case library.KindShow:
			counts["shows"]++
		case library.KindSeason:
			counts["seasons"]++
		case library.KindEpisode:
			counts["episodes"]++
		}
	}
	return counts
}
