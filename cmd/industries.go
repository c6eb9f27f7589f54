package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/azar84/business-directory-cli/internal/taxonomy"
)

var industriesCmd = &cobra.Command{
	Use:   "industries",
	Short: "List the canonical industry taxonomy",
	Long:  "Prints the fixed taxonomy table that classification categories are resolved against. Entries outside this table are never stored.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		formatIndustries(os.Stdout, taxonomy.All())
		return nil
	},
}

func formatIndustries(out io.Writer, industries []taxonomy.Industry) {
	fmt.Fprintf(out, "Taxonomy version %s, %d industries\n\n", taxonomy.Version, len(industries))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CODE\tTITLE\tSUB-INDUSTRIES")
	_, _ = fmt.Fprintln(w, "----\t-----\t--------------")
	for _, ind := range industries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", ind.Code, ind.Title, strings.Join(ind.SubIndustries, ", "))
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(industriesCmd)
}
