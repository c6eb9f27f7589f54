package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long:  "Creates the job, directory, and trace tables. With the sqlite driver only the job tables exist.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if cfg.Store.Driver == "postgres" {
			env, err := initPipeline(ctx)
			if err != nil {
				return err
			}
			defer env.Close()
			fmt.Println("Migrated job, directory, and trace tables.")
			return nil
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		fmt.Println("Migrated job tables.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
