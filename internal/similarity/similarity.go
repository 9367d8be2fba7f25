// Package similarity suggests competitors by comparing company profiles
// (industry and country text) with TF-IDF weighted cosine similarity.
package similarity

import (
	"slices"
	"strings"

	"github.com/sells-group/company-intel/internal/model"
)

// DefaultTopN is the number of competitors suggested per company.
const DefaultTopN = 5

// Options tunes the competitor builder.
type Options struct {
	// TopN caps each competitor list. Zero or less uses DefaultTopN.
	TopN int
	// Stem reduces terms with the English snowball stemmer.
	Stem bool
}

// Matrix returns the pairwise cosine similarity of profiles. Rows for
// profiles with no usable terms are all zero, diagonal included; every other
// diagonal entry is exactly 1.
func Matrix(profiles []string, stem bool) [][]float64 {
	vecs := vectorize(tokenizeAll(profiles, stem))
	m := make([][]float64, len(vecs))
	for i := range m {
		m[i] = make([]float64, len(vecs))
	}
	for i := range vecs {
		if vecs[i].empty() {
			continue
		}
		m[i][i] = 1
		for j := i + 1; j < len(vecs); j++ {
			if vecs[j].empty() {
				continue
			}
			s := cosine(vecs[i], vecs[j])
			m[i][j], m[j][i] = s, s
		}
	}
	return m
}

// Build ranks, for every record, the other records by profile similarity.
// Records with an empty profile get an empty list and are never offered as
// candidates. With fewer than two usable profiles every list is empty. Ties
// keep input order. A name shared by several records appears once in any
// list, and the first such record's list wins.
func Build(records []model.EnrichedCompany, opts Options) model.CompetitorMap {
	topN := opts.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}

	out := make(model.CompetitorMap, len(records))
	for _, r := range records {
		out[r.CompanyName] = []string{}
	}

	profiles := make([]string, len(records))
	for i, r := range records {
		profiles[i] = strings.TrimSpace(r.Profile())
	}
	m := Matrix(profiles, opts.Stem)

	var active []int
	for i := range m {
		if m[i][i] > 0 {
			active = append(active, i)
		}
	}
	if len(active) < 2 {
		return out
	}

	done := make(map[string]bool, len(records))
	for _, i := range active {
		name := records[i].CompanyName
		if done[name] {
			continue
		}
		done[name] = true

		candidates := make([]int, 0, len(active)-1)
		for _, j := range active {
			if j != i && records[j].CompanyName != name {
				candidates = append(candidates, j)
			}
		}
		slices.SortStableFunc(candidates, func(a, b int) int {
			switch {
			case m[i][a] > m[i][b]:
				return -1
			case m[i][a] < m[i][b]:
				return 1
			}
			return 0
		})
		list := make([]string, 0, topN)
		for _, j := range candidates {
			if len(list) == topN {
				break
			}
			if !slices.Contains(list, records[j].CompanyName) {
				list = append(list, records[j].CompanyName)
			}
		}
		out[name] = list
	}
	return out
}

func tokenizeAll(profiles []string, stem bool) [][]string {
	docs := make([][]string, len(profiles))
	for i, p := range profiles {
		docs[i] = Tokenize(p, stem)
	}
	return docs
}
