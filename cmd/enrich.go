package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/company-intel/internal/config"
	"github.com/sells-group/company-intel/internal/enrich"
	"github.com/sells-group/company-intel/internal/ingest"
	"github.com/sells-group/company-intel/internal/normalize"
	"github.com/sells-group/company-intel/internal/report"
)

var (
	enrichInput     string
	enrichColumn    string
	enrichSheet     string
	enrichNames     string
	enrichMarket    bool
	enrichBatchSize int
	enrichTopN      int
	enrichOutput    string
	enrichFormat    string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich [name...]",
	Short: "Enrich company names and export a report",
	Long: `Looks up every company in the input, merges what each source knows
and writes a report with suggested competitors.

Names come from --input (CSV or XLSX with a company_name column, or a text
file with one name per line; "-" reads stdin), --names, or arguments.

Examples:
  company-intel enrich --input companies.csv
  company-intel enrich --names "Acme Ltd,Globex Inc" --market --output out.json
  cat names.txt | company-intel enrich --input -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyEnrichFlags(cmd, cfg)
		if err := cfg.Validate("enrich"); err != nil {
			return err
		}

		output := enrichOutput
		if output == "" {
			output = cfg.Export.Output
		}
		format, err := outputFormat(output, enrichFormat, cfg.Export.Format)
		if err != nil {
			return err
		}

		names, err := collectNames(cmd, args, cmd.InOrStdin(), stdinIsPiped())
		if err != nil {
			return err
		}
		if len(names) == 0 {
			return eris.New("enrich: no company names supplied")
		}

		env, err := initEnrich(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		rep, stats := env.Orchestrator.Run(ctx, names)
		if err := report.WriteFile(output, rep, format); err != nil {
			return err
		}

		printStats(cmd.OutOrStdout(), stats)
		fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", output)
		return nil
	},
}

// applyEnrichFlags copies explicitly set flags over config values.
func applyEnrichFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("market") {
		c.Enrich.IncludeMarket = enrichMarket
	}
	if flags.Changed("batch-size") {
		c.Enrich.BatchSize = enrichBatchSize
	}
	if flags.Changed("top-n") {
		c.Similarity.TopN = enrichTopN
	}
}

// outputFormat resolves the report format from the flag, then the output
// extension, then config.
func outputFormat(output, flag, fallback string) (report.Format, error) {
	if flag != "" {
		return report.ParseFormat(flag)
	}
	def, err := report.ParseFormat(fallback)
	if err != nil {
		return "", err
	}
	if output == "" {
		return def, nil
	}
	return report.FormatFor(output, def), nil
}

// collectNames gathers input names from --input, --names and args, in that
// order, deduplicated. With none of those, piped stdin is read as text.
func collectNames(cmd *cobra.Command, args []string, stdin io.Reader, piped bool) ([]string, error) {
	ctx := cmd.Context()
	opts := ingest.Options{Column: enrichColumn, SheetName: enrichSheet}

	input := enrichInput
	if input == "" && enrichNames == "" && len(args) == 0 && piped {
		input = "-"
	}

	var names []string
	switch input {
	case "":
	case "-":
		opts.Format = ingest.FormatText
		got, err := ingest.Read(ctx, stdin, opts)
		if err != nil {
			return nil, err
		}
		names = append(names, got...)
	default:
		got, err := ingest.ReadFile(ctx, input, opts)
		if err != nil {
			return nil, err
		}
		names = append(names, got...)
	}

	if enrichNames != "" {
		names = append(names, strings.Split(enrichNames, ",")...)
	}
	names = append(names, args...)
	return normalize.Dedupe(names), nil
}

func printStats(w io.Writer, stats enrich.Stats) {
	fmt.Fprintf(w, "Run %s: %d companies in %d batches, %d fields filled (%s)\n",
		stats.RunID, stats.Companies, stats.Batches, stats.FieldsFilled, stats.Duration.Round(time.Millisecond))

	providers := make([]string, 0, len(stats.Providers))
	for name := range stats.Providers {
		providers = append(providers, name)
	}
	sort.Strings(providers)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tHITS\tMISSES\tERRORS")
	for _, name := range providers {
		ps := stats.Providers[name]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", name, ps.Hits, ps.Misses, ps.Errors)
	}
	_ = tw.Flush()
}

func init() {
	enrichCmd.Flags().StringVarP(&enrichInput, "input", "i", "", "input file (csv, xlsx or text; - for stdin)")
	enrichCmd.Flags().StringVar(&enrichColumn, "column", ingest.DefaultColumn, "column holding company names")
	enrichCmd.Flags().StringVar(&enrichSheet, "sheet", "", "worksheet name for xlsx input (default first sheet)")
	enrichCmd.Flags().StringVar(&enrichNames, "names", "", "comma-separated company names")
	enrichCmd.Flags().BoolVar(&enrichMarket, "market", false, "include market data lookups")
	enrichCmd.Flags().IntVar(&enrichBatchSize, "batch-size", 0, "companies enriched concurrently (default from config)")
	enrichCmd.Flags().IntVar(&enrichTopN, "top-n", 0, "competitors suggested per company (default from config)")
	enrichCmd.Flags().StringVarP(&enrichOutput, "output", "o", "", "output path (default from config)")
	enrichCmd.Flags().StringVar(&enrichFormat, "format", "", "output format: xlsx, json or yaml (default from extension)")
	rootCmd.AddCommand(enrichCmd)
}

// stdinIsPiped reports whether stdin is a pipe or file rather than a terminal.
func stdinIsPiped() bool {
	fi, err := os.Stdin.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice == 0
}
