package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newCollectionCommand(ctx *commandContext) *cobra.Command {
	collectionCmd := &cobra.Command{
		Use:   "collection",
		Short: "Manage named item collections",
	}

	collectionCmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create an empty collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			libStore, err := ctx.openStore()
			if err != nil {
				return err
			}
			col, err := libStore.CreateCollection(cmd.Context(), strings.TrimSpace(args[0]), time.Now().UTC(), uuid.NewString)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created collection %q (%s)\n", col.Name, col.ID)
			return nil
		},
	})

	collectionCmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a collection (items are untouched)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			libStore, err := ctx.openStore()
			if err != nil {
				return err
			}
			if err := libStore.DeleteCollection(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted collection %q\n", args[0])
			return nil
		},
	})

	collectionCmd.AddCommand(&cobra.Command{
		Use:   "add <name> <item-id>",
		Short: "Append a movie or show to a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			libStore, err := ctx.openStore()
			if err != nil {
				return err
			}
			if err := libStore.AddToCollection(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s to %q\n", args[1], args[0])
			return nil
		},
	})

	collectionCmd.AddCommand(&cobra.Command{
		Use:   "remove <name> <item-id>",
		Short: "Remove an item from a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			libStore, err := ctx.openStore()
			if err != nil {
				return err
			}
			if err := libStore.RemoveFromCollection(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %q\n", args[1], args[0])
			return nil
		},
	})

	collectionCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List collections and their members",
		RunE: func(cmd *cobra.Command, args []string) error {
			libStore, err := ctx.openStore()
			if err != nil {
				return err
			}
			collections, err := libStore.Collections(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, collections)
			}
			rows := make([][]string, 0, len(collections))
			for _, col := range collections {
				rows = append(rows, []string{
					col.Name,
					strconv.Itoa(len(col.ItemIDs)),
					strings.Join(col.ItemIDs, ", "),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Name", "Items", "Members"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft}))
			return nil
		},
	})

	return collectionCmd
}
