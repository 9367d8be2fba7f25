package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/report"
	"github.com/sells-group/company-intel/internal/similarity"
)

var (
	competitorsTopN   int
	competitorsStem   bool
	competitorsOutput string
)

var competitorsCmd = &cobra.Command{
	Use:   "competitors <report.json|report.yaml>",
	Short: "Rebuild the competitor map of a saved report",
	Long: `Reads a JSON or YAML report written by "enrich", recomputes the
competitor suggestions with the given settings and writes the report back
out (to --output, or stdout as JSON).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := loadReport(args[0])
		if err != nil {
			return err
		}

		topN := cfg.Similarity.TopN
		if cmd.Flags().Changed("top-n") {
			topN = competitorsTopN
		}
		stem := cfg.Similarity.Stem || competitorsStem
		rebuildCompetitors(rep, similarity.Options{TopN: topN, Stem: stem})

		if competitorsOutput == "" {
			return report.WriteJSON(cmd.OutOrStdout(), rep)
		}
		format := report.FormatFor(competitorsOutput, report.FormatJSON)
		return report.WriteFile(competitorsOutput, rep, format)
	},
}

// loadReport decodes a report saved as JSON or YAML.
func loadReport(path string) (*model.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "competitors: read %s", path)
	}

	var rep model.Report
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &rep)
	default:
		err = json.Unmarshal(data, &rep)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "competitors: decode %s", path)
	}
	return &rep, nil
}

// rebuildCompetitors recomputes the competitor map and each record's list.
func rebuildCompetitors(rep *model.Report, opts similarity.Options) {
	rep.Competitors = similarity.Build(rep.Companies, opts)
	for i := range rep.Companies {
		rep.Companies[i].Competitors = rep.Competitors[rep.Companies[i].CompanyName]
	}
}

func init() {
	competitorsCmd.Flags().IntVar(&competitorsTopN, "top-n", similarity.DefaultTopN, "competitors suggested per company")
	competitorsCmd.Flags().BoolVar(&competitorsStem, "stem", false, "stem profile terms before comparing")
	competitorsCmd.Flags().StringVarP(&competitorsOutput, "output", "o", "", "output path (json, yaml or xlsx)")
	rootCmd.AddCommand(competitorsCmd)
}
