package main

import (
	"fmt"

	"chatlog-cli/internal/history"

	"github.com/spf13/cobra"
)

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <source.jsonl> <target.db>",
		Short: "Load JSON-lines history into a SQLite store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := history.NewFileSource(args[0])
			if err != nil {
				return err
			}
			msgs, err := file.Load(cmd.Context())
			if err != nil {
				return err
			}
			db, err := history.OpenSQLite(args[1])
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := db.Import(cmd.Context(), msgs)
			if err != nil {
				return err
			}
			total, err := db.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d messages (%d stored)\n", n, len(msgs), total)
			return nil
		},
	}
}
