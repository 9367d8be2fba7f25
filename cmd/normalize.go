package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/company-intel/internal/normalize"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize <name...>",
	Short: "Show the canonical form of company names",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatNormalized(cmd.OutOrStdout(), args)
		return nil
	},
}

// formatNormalized prints each raw name with its normalized form, slug and
// ticker guess.
func formatNormalized(w io.Writer, names []string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INPUT\tNORMALIZED\tSLUG\tTICKER")
	for _, raw := range names {
		n := normalize.Name(raw)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", raw, n, normalize.Slug(n), normalize.Ticker(n))
	}
	_ = tw.Flush()
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
}
