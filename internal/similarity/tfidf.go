package similarity

import (
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/kljensen/snowball"
	"go.uber.org/zap"
)

// tokenPattern matches runs of two or more letters, digits or underscores.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Tokenize lowercases text and splits it into terms, dropping English stop
// words. When stem is set each term is reduced with the English snowball
// stemmer.
func Tokenize(text string, stem bool) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if _, stop := englishStopWords[tok]; stop {
			continue
		}
		if stem {
			s, err := snowball.Stem(tok, "english", false)
			if err != nil {
				zap.L().Debug("similarity: stem failed", zap.String("token", tok), zap.Error(err))
			} else if s != "" {
				tok = s
			}
		}
		out = append(out, tok)
	}
	return out
}

// vector is a sparse L2-normalized term weight vector. Terms are sorted so
// sums over a vector always run in the same order and equal profiles score
// identically against any other profile.
type vector struct {
	terms   []string
	weights []float64
}

func (v vector) empty() bool {
	return len(v.terms) == 0
}

// vectorize builds smoothed TF-IDF vectors for docs. Term frequency is the
// raw count; idf is ln((1+n)/(1+df))+1. Documents with no terms get an empty
// vector.
func vectorize(docs [][]string) []vector {
	n := len(docs)
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{}, len(doc))
		for _, t := range doc {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			df[t]++
		}
	}

	out := make([]vector, n)
	for i, doc := range docs {
		if len(doc) == 0 {
			continue
		}
		tf := make(map[string]float64, len(doc))
		for _, t := range doc {
			tf[t]++
		}
		terms := make([]string, 0, len(tf))
		for t := range tf {
			terms = append(terms, t)
		}
		slices.Sort(terms)

		weights := make([]float64, len(terms))
		var norm float64
		for k, t := range terms {
			w := tf[t] * (math.Log(float64(1+n)/float64(1+df[t])) + 1)
			weights[k] = w
			norm += w * w
		}
		norm = math.Sqrt(norm)
		for k := range weights {
			weights[k] /= norm
		}
		out[i] = vector{terms: terms, weights: weights}
	}
	return out
}

// cosine is the dot product of two normalized vectors, merged over their
// sorted terms.
func cosine(a, b vector) float64 {
	var dot float64
	i, j := 0, 0
	for i < len(a.terms) && j < len(b.terms) {
		switch strings.Compare(a.terms[i], b.terms[j]) {
		case 0:
			dot += a.weights[i] * b.weights[j]
			i++
			j++
		case -1:
			i++
		default:
			j++
		}
	}
	return dot
}
