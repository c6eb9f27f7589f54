package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/azar84/business-directory-cli/internal/normalize"
)

var companiesCmd = &cobra.Command{
	Use:   "companies",
	Short: "Inspect directory entries",
}

// -- companies show --

var companiesShowCmd = &cobra.Command{
	Use:   "show <website-or-identity>",
	Short: "Show a directory entry by website",
	Long:  "Looks up a company by its normalized website identity; any URL form that maps to the same identity finds the same entry.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		identity := normalize.WebsiteIdentity(args[0])
		c, err := env.Dir.GetByIdentity(ctx, identity)
		if err != nil {
			return eris.Wrap(err, "companies show")
		}
		if c == nil {
			return eris.Errorf("no company with identity %q", identity)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	},
}

// -- companies trail --

var companiesTrailCmd = &cobra.Command{
	Use:   "trail <company-id>",
	Short: "Show the provenance trail of a directory entry",
	Long:  "Lists every classification verdict that created or updated the entry, most recent first.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		companyID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("invalid company id %q", args[0])
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		trail, err := env.Recorder.TrailForCompany(ctx, companyID)
		if err != nil {
			return eris.Wrap(err, "companies trail")
		}
		if len(trail) == 0 {
			fmt.Fprintln(os.Stderr, "No trail entries found.")
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(trail)
	},
}

func init() {
	companiesCmd.AddCommand(companiesShowCmd)
	companiesCmd.AddCommand(companiesTrailCmd)
	rootCmd.AddCommand(companiesCmd)
}
