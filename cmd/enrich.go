package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich <website-url>",
	Short: "Enrich a single website into the directory",
	Long:  "Submits the website to the classification source, polls the job to completion, normalizes the payload, and creates or merges the matching directory entry.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cmd.Flags().Changed("dry-run") {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			cfg.Enrich.DryRun = dryRun
		}
		if cmd.Flags().Changed("min-confidence") {
			minConf, _ := cmd.Flags().GetFloat64("min-confidence")
			cfg.Enrich.MinConfidence = minConf
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Enricher.EnrichWebsite(ctx, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	enrichCmd.Flags().Bool("dry-run", false, "run the pipeline without writing to the directory")
	enrichCmd.Flags().Float64("min-confidence", 0, "override the confidence floor for this run")
	rootCmd.AddCommand(enrichCmd)
}
