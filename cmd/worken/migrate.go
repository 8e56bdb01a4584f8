package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database schema migrations",
	Long: `Create the pgvector extension, the tables and the HNSW similarity index.

Migrations are idempotent. The embedding column is sized from
embeddings.dimension; changing the dimension of an existing schema fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.db == nil {
			return fmt.Errorf("migrate requires database.driver=postgres, got %q", a.cfg.Database.Driver)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
		return nil
	},
}
