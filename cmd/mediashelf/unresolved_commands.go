package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mediashelf/internal/config"
	"mediashelf/internal/library"
)

func newUnresolvedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unresolved",
		Short: "List files awaiting a match decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			libStore, err := ctx.openStore()
			if err != nil {
				return err
			}
			files, err := libStore.Unresolved(cmd.Context())
			if err != nil {
				return err
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, files)
			}

			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(out, "No unresolved files.")
				return nil
			}
			rows := make([][]string, 0, len(files))
			for _, f := range files {
				rows = append(rows, []string{
					f.Path,
					string(f.Reason),
					guessLabel(f.Guess),
					candidateSummary(f.Candidates),
					yesNo(f.SkipMatch),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Path", "Reason", "Guess", "Candidates", "Skip"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft}))
			return nil
		},
	}
}

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var titleFlag string
	var yearFlag int

	cmd := &cobra.Command{
		Use:   "resolve <path> <provider-id>",
		Short: "Assign an identity to an unresolved file",
		Long: "Pick one of the stored candidates by provider ID, or supply --title for an " +
			"identity the provider never offered. Season and episode ordinals come from " +
			"the filename guess.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			libStore, err := ctx.openStore()
			if err != nil {
				return err
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			providerID := strings.TrimSpace(args[1])

			unresolved, err := libStore.UnresolvedByPath(cmd.Context(), path)
			if err != nil {
				return err
			}

			identity, err := resolveIdentity(unresolved, providerID, titleFlag, yearFlag)
			if err != nil {
				return err
			}

			itemID, err := libStore.ResolveFile(cmd.Context(), path, identity, time.Now().UTC(), uuid.NewString)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Resolved %s -> %s (%s)\n", path, identity.Title, itemID)
			return nil
		},
	}

	cmd.Flags().StringVar(&titleFlag, "title", "", "Title for an identity not in the candidate list")
	cmd.Flags().IntVar(&yearFlag, "year", 0, "Release year for a manual identity")
	return cmd
}

// resolveIdentity builds the identity to apply: a stored candidate when the
// provider ID matches one, otherwise a manual identity from the flags.
func resolveIdentity(unresolved *library.UnresolvedFile, providerID, title string, year int) (library.Identity, error) {
	for _, candidate := range unresolved.Candidates {
		if candidate.ProviderID != providerID {
			continue
		}
		identity := library.Identity{
			Kind:       candidate.Kind,
			ProviderID: candidate.ProviderID,
			Title:      candidate.Title,
			Year:       candidate.Year,
		}
		// Show candidates resolve an episode file down to its ordinal slot.
		if candidate.Kind == library.KindShow || unresolved.Guess.Kind == library.KindEpisode {
			identity.Kind = library.KindEpisode
			identity.Season = unresolved.Guess.Season
			identity.Episode = unresolved.Guess.Episode
			if identity.Season == nil || identity.Episode == nil {
				return library.Identity{}, fmt.Errorf("file %s has no season/episode guess; cannot resolve against a show", unresolved.Path)
			}
		}
		return identity, nil
	}

	if strings.TrimSpace(title) == "" {
		return library.Identity{}, fmt.Errorf("provider id %s is not among the stored candidates; pass --title to resolve manually", providerID)
	}
	identity := library.Identity{
		Kind:       library.KindMovie,
		ProviderID: providerID,
		Title:      strings.TrimSpace(title),
	}
	if year > 0 {
		identity.Year = library.IntPtr(year)
	}
	if unresolved.Guess.Kind == library.KindEpisode {
		identity.Kind = library.KindEpisode
		identity.Season = unresolved.Guess.Season
		identity.Episode = unresolved.Guess.Episode
	}
	return identity, nil
}

func newSkipCommand(ctx *commandContext) *cobra.Command {
	var clear bool

	cmd := &cobra.Command{
		Use:   "skip <path>",
		Short: "Pin a file out of automatic matching",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			libStore, err := ctx.openStore()
			if err != nil {
				return err
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			if err := libStore.SetSkipMatch(cmd.Context(), path, !clear); err != nil {
				return err
			}
			if clear {
				fmt.Fprintf(cmd.OutOrStdout(), "%s will be matched again on the next cycle\n", path)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s pinned out of matching\n", path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&clear, "clear", false, "Re-enable matching for the file")
	return cmd
}

func guessLabel(guess library.Guess) string {
	if guess.Title == "" {
		return ""
	}
	label := guess.Title
	if guess.Year != nil {
		label += " (" + strconv.Itoa(*guess.Year) + ")"
	}
	if guess.Season != nil && guess.Episode != nil {
		label += fmt.Sprintf(" S%02dE%02d", *guess.Season, *guess.Episode)
	}
	return label
}

func candidateSummary(candidates []library.Candidate) string {
	if len(candidates) == 0 {
		return ""
	}
	parts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		part := fmt.Sprintf("%s %s", c.ProviderID, c.Title)
		if c.Year != nil {
			part += fmt.Sprintf(" (%d)", *c.Year)
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "; ")
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
