package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/azar84/business-directory-cli/internal/model"
)

var batchCmd = &cobra.Command{
	Use:   "batch <results-file.json>",
	Short: "Process a batch of search results",
	Long:  "Reads search results from a JSON file, classifies each URL, resolves accepted ones into the directory, and records the full provenance trail.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		results, err := readSearchResults(args[0])
		if err != nil {
			return err
		}

		query, _ := cmd.Flags().GetString("query")
		if query == "" && len(results) > 0 {
			query = results[0].Query
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Enricher.ProcessResults(ctx, query, results)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Processed %d results: %d accepted, %d rejected, %d errored\n",
			summary.Total, summary.Accepted, summary.Rejected, summary.Errored)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

// readSearchResults loads search results from a JSON file: either a bare
// array or an object with a "results" key.
func readSearchResults(path string) ([]model.SearchResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}

	var results []model.SearchResult
	if err := json.Unmarshal(data, &results); err == nil {
		return results, nil
	}

	var wrapper struct {
		Results []model.SearchResult `json:"results"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrapf(err, "parse %s", path)
	}
	if len(wrapper.Results) == 0 {
		return nil, eris.Errorf("%s contains no search results", path)
	}
	return wrapper.Results, nil
}

func init() {
	batchCmd.Flags().String("query", "", "search query the results came from (for the provenance trail)")
	rootCmd.AddCommand(batchCmd)
}
