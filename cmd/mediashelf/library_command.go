package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mediashelf/internal/library"
	"mediashelf/internal/watchstate"
)

func newLibraryCommand(ctx *commandContext) *cobra.Command {
	var kindFlag string
	var unwatchedFlag bool

	libraryCmd := &cobra.Command{
		Use:   "library [query]",
		Short: "List movies and shows, optionally filtered by title",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			libStore, err := ctx.openStore()
			if err != nil {
				return err
			}
			ws, err := ctx.openWatchStore()
			if err != nil {
				return err
			}

			var items []library.Item
			if len(args) == 1 {
				items, err = libStore.FindTopLevel(cmd.Context(), args[0])
			} else {
				items, err = libStore.TopLevel(cmd.Context())
			}
			if err != nil {
				return err
			}

			type entry struct {
				ID      string `json:"id"`
				Kind    string `json:"kind"`
				Title   string `json:"title"`
				Year    *int   `json:"year,omitempty"`
				Watched string `json:"watched"`
			}
			entries := make([]entry, 0, len(items))
			for _, item := range items {
				if kindFlag != "" && string(item.Kind) != kindFlag {
					continue
				}
				state, err := watchLabel(cmd.Context(), ws, item)
				if err != nil {
					return err
				}
				if unwatchedFlag && !strings.HasPrefix(state, string(watchstate.Unwatched)) {
					continue
				}
				entries = append(entries, entry{
					ID:      item.ID,
					Kind:    string(item.Kind),
					Title:   item.Title,
					Year:    item.Year,
					Watched: state,
				})
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, entries)
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				year := ""
				if e.Year != nil {
					year = strconv.Itoa(*e.Year)
				}
				rows = append(rows, []string{e.ID, e.Kind, e.Title, year, e.Watched})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Kind", "Title", "Year", "Watched"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
			return nil
		},
	}

	libraryCmd.Flags().StringVar(&kindFlag, "kind", "", "Only list items of this kind (movie or show)")
	libraryCmd.Flags().BoolVar(&unwatchedFlag, "unwatched", false, "Only list items not yet watched")

	libraryCmd.AddCommand(newLibraryShowCommand(ctx))
	return libraryCmd
}

func newLibraryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <item-id>",
		Short: "Show one item with its children and backing files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			libStore, err := ctx.openStore()
			if err != nil {
				return err
			}

			item, err := libStore.ItemByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			children, err := libStore.Children(cmd.Context(), item.ID)
			if err != nil {
				return err
			}
			links, err := libStore.LinksForItem(cmd.Context(), item.ID)
			if err != nil {
				return err
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]any{
					"item":     item,
					"children": children,
					"files":    links,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)", item.Title, item.Kind)
			if item.Year != nil {
				fmt.Fprintf(out, " [%d]", *item.Year)
			}
			fmt.Fprintln(out)
			if item.Overview != "" {
				fmt.Fprintln(out, item.Overview)
			}

			if len(children) > 0 {
				rows := make([][]string, 0, len(children))
				for _, child := range children {
					rows = append(rows, []string{child.ID, string(child.Kind), ordinalLabel(child), child.Title})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Kind", "Number", "Title"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
			}
			for _, link := range links {
				fmt.Fprintf(out, "file: %s\n", link.Path)
			}
			return nil
		},
	}
}

func ordinalLabel(item library.Item) string {
	switch item.Kind {
	case library.KindSeason:
		if item.SeasonNum != nil {
			return strconv.Itoa(*item.SeasonNum)
		}
	case library.KindEpisode:
		if item.SeasonNum != nil && item.EpisodeNum != nil {
			return fmt.Sprintf("S%02dE%02d", *item.SeasonNum, *item.EpisodeNum)
		}
	}
	return ""
}

// watchLabel renders a movie's stored state or a show's derived rollup.
func watchLabel(ctx context.Context, ws *watchstate.Store, item library.Item) (string, error) {
	if item.Kind == library.KindShow {
		rollup, err := ws.ShowRollup(ctx, item.ID)
		if err != nil {
			return "", err
		}
		if rollup.Episodes == 0 {
			return string(rollup.State), nil
		}
		return fmt.Sprintf("%s (%d/%d)", rollup.State, rollup.Watched, rollup.Episodes), nil
	}
	entry, err := ws.Get(ctx, item.ID)
	if err != nil {
		return "", err
	}
	if entry == nil {
		return string(watchstate.Unwatched), nil
	}
	return string(entry.State), nil
}
