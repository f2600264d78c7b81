package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newWatchedCommand(ctx *commandContext) *cobra.Command {
	watchedCmd := &cobra.Command{
		Use:   "watched",
		Short: "Record and inspect playback state",
	}

	watchedCmd.AddCommand(newWatchedMarkCommand(ctx))
	watchedCmd.AddCommand(newWatchedClearCommand(ctx))
	watchedCmd.AddCommand(newWatchedProgressCommand(ctx))
	watchedCmd.AddCommand(newWatchedNextCommand(ctx))
	return watchedCmd
}

func newWatchedMarkCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mark <item-id>",
		Short: "Mark an item watched",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := ctx.openWatchStore()
			if err != nil {
				return err
			}
			if err := ws.MarkWatched(cmd.Context(), args[0], time.Now().UTC()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s marked watched\n", args[0])
			return nil
		},
	}
}

func newWatchedClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <item-id>",
		Short: "Clear an item's watch record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := ctx.openWatchStore()
			if err != nil {
				return err
			}
			if err := ws.MarkUnwatched(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s cleared\n", args[0])
			return nil
		},
	}
}

func newWatchedProgressCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <item-id> <position-seconds> <duration-seconds>",
		Short: "Record a playback position report",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			position, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("parse position: %w", err)
			}
			duration, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("parse duration: %w", err)
			}

			ws, err := ctx.openWatchStore()
			if err != nil {
				return err
			}
			entry, err := ws.RecordProgress(cmd.Context(), args[0], position, duration, time.Now().UTC())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, entry)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s (%.0fs of %.0fs)\n",
				entry.ItemID, entry.State, entry.PositionSeconds, entry.DurationSeconds)
			return nil
		},
	}
}

func newWatchedNextCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "next <show-id>",
		Short: "Show the next unwatched episode of a show",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			libStore, err := ctx.openStore()
			if err != nil {
				return err
			}
			ws, err := ctx.openWatchStore()
			if err != nil {
				return err
			}

			nextID, err := ws.NextEpisode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if nextID == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "All episodes watched.")
				return nil
			}
			episode, err := libStore.ItemByID(cmd.Context(), nextID)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, episode)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", episode.ID, ordinalLabel(*episode), episode.Title)
			return nil
		},
	}
}
