package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/azar84/business-directory-cli/internal/model"
	"github.com/azar84/business-directory-cli/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage enrichment jobs",
	Long:  "Commands for listing, viewing, awaiting, and cancelling enrichment jobs.",
}

// -- jobs list --

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrichment jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		state, _ := cmd.Flags().GetString("state")
		batchRef, _ := cmd.Flags().GetString("batch")
		review, _ := cmd.Flags().GetBool("review")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.JobFilter{
			State:    model.JobState(state),
			BatchRef: batchRef,
			Limit:    limit,
		}
		if review {
			filter.NeedsReview = &review
		}

		jobs, err := st.ListJobs(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "jobs list")
		}

		if len(jobs) == 0 {
			fmt.Fprintln(os.Stderr, "No jobs found.")
			return nil
		}

		formatJobsList(os.Stdout, jobs)
		return nil
	},
}

// -- jobs review --

var jobsReviewCmd = &cobra.Command{
	Use:   "review",
	Short: "List jobs flagged for manual review",
	Long:  "Shows jobs whose result payload could not be normalized. Each one keeps its raw payload for inspection via jobs status.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		review := true
		jobs, err := st.ListJobs(ctx, store.JobFilter{NeedsReview: &review, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "jobs review")
		}

		if len(jobs) == 0 {
			fmt.Fprintln(os.Stderr, "Review queue is empty.")
			return nil
		}

		formatJobsList(os.Stdout, jobs)
		return nil
	},
}

// -- jobs status --

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show full details of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		j, err := st.GetJob(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "jobs status")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(j)
	},
}

// -- jobs await --

var jobsAwaitCmd = &cobra.Command{
	Use:   "await <job-id>",
	Short: "Poll a job until it reaches a terminal state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		mgr := initManager(st)
		j, err := mgr.Await(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "jobs await")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(j)
	},
}

// -- jobs cancel --

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a job locally",
	Long:  "Marks the job cancelled in the local store. The source keeps running the remote job; its result is discarded.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		mgr := initManager(st)
		if err := mgr.Cancel(ctx, args[0]); err != nil {
			return eris.Wrap(err, "jobs cancel")
		}
		fmt.Printf("Job %s cancelled.\n", args[0])
		return nil
	},
}

// -- jobs submit-batch --

var jobsSubmitBatchCmd = &cobra.Command{
	Use:   "submit-batch <results-file.json>",
	Short: "Submit a batch of search results as one remote job",
	Long:  "Queues the whole batch as a single job on the classification source for later status checks, without waiting or resolving.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		results, err := readSearchResults(args[0])
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		batchRef, _ := cmd.Flags().GetString("ref")
		mgr := initManager(st)
		j, err := mgr.SubmitBatch(ctx, results, batchRef)
		if err != nil {
			return eris.Wrap(err, "jobs submit-batch")
		}

		fmt.Printf("Submitted batch of %d results as job %s (remote %s).\n", len(results), j.ID, j.RemoteID)
		return nil
	},
}

func init() {
	jobsListCmd.Flags().String("state", "", "filter by job state (queued, processing, completed, failed, timed_out, cancelled)")
	jobsListCmd.Flags().String("batch", "", "filter by batch reference")
	jobsListCmd.Flags().Bool("review", false, "only jobs flagged for manual review")
	jobsListCmd.Flags().Int("limit", 50, "max number of jobs to display")

	jobsReviewCmd.Flags().Int("limit", 50, "max number of jobs to display")
	jobsSubmitBatchCmd.Flags().String("ref", "", "batch reference for tracking")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsReviewCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsAwaitCmd)
	jobsCmd.AddCommand(jobsCancelCmd)
	jobsCmd.AddCommand(jobsSubmitBatchCmd)
	rootCmd.AddCommand(jobsCmd)
}

// formatJobsList writes a tabular list of jobs to w.
func formatJobsList(out io.Writer, jobs []model.EnrichmentJob) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTARGET\tSTATE\tPROGRESS\tREVIEW\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t------\t-----\t--------\t------\t-------")

	for _, j := range jobs {
		target := j.TargetURL
		if target == "" && j.BatchRef != "" {
			target = "batch:" + j.BatchRef
		}
		if len(target) > 40 {
			target = target[:37] + "..."
		}

		review := ""
		if j.NeedsReview {
			review = "yes"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\t%s\n",
			truncateID(j.ID),
			target,
			j.State,
			j.Progress,
			review,
			j.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
