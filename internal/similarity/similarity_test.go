package similarity

import (
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-intel/internal/model"
)

func company(name, industry, country string) model.EnrichedCompany {
	c := model.NewEnrichedCompany(name, name)
	c.Industry = model.String(industry)
	c.Country = model.String(country)
	return c
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"software", "usa"}, Tokenize("The Software of USA", false))
	assert.Equal(t, []string{"bank", "uk"}, Tokenize("Banking UK", true))
	assert.Empty(t, Tokenize("a I of", false))
}

func TestMatrix_UnitDiagonalAndSymmetric(t *testing.T) {
	m := Matrix([]string{"Software USA", "Software Germany", "Retail USA", ""}, false)
	require.Len(t, m, 4)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, 1.0, m[i][i], 1e-9)
		for j := range m {
			assert.InDelta(t, m[i][j], m[j][i], 1e-12)
		}
	}
	assert.Equal(t, 0.0, m[3][3])
	assert.Greater(t, m[0][1], 0.0)
	assert.Less(t, m[0][1], 1.0)
}

func TestMatrix_SmoothIDFWeights(t *testing.T) {
	// "a b" vs "a": idf(a)=1, idf(b)=ln(3/2)+1.
	m := Matrix([]string{"alpha beta", "alpha"}, false)
	idfB := math.Log(1.5) + 1
	want := 1 / math.Sqrt(1+idfB*idfB)
	assert.InDelta(t, want, m[0][1], 1e-12)
}

func TestBuild_IdenticalProfiles(t *testing.T) {
	got := Build([]model.EnrichedCompany{
		company("Acme", "Software", "USA"),
		company("Globex", "Software", "USA"),
	}, Options{TopN: 1})

	want := model.CompetitorMap{"Acme": {"Globex"}, "Globex": {"Acme"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Build() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_RankingAndTies(t *testing.T) {
	records := []model.EnrichedCompany{
		company("A", "Software", "USA"),
		company("B", "Retail", "France"),
		company("C", "Software", "Germany"),
		company("D", "Software", "Germany"),
		company("E", "Retail", "Spain"),
	}
	got := Build(records, Options{})

	assert.Equal(t, []string{"C", "D", "B", "E"}, got["A"])
	assert.Equal(t, "D", got["C"][0])
	assert.Equal(t, []string{"E", "A", "C", "D"}, got["B"])
}

func TestBuild_TopN(t *testing.T) {
	records := []model.EnrichedCompany{
		company("A", "Software", "USA"),
		company("B", "Software", "USA"),
		company("C", "Software", "USA"),
	}
	got := Build(records, Options{TopN: 1})
	assert.Equal(t, []string{"B"}, got["A"])
	assert.Equal(t, []string{"A"}, got["C"])
}

func TestBuild_EmptyProfilesExcluded(t *testing.T) {
	records := []model.EnrichedCompany{
		company("A", "Software", "USA"),
		model.NewEnrichedCompany("Ghost", "Ghost"),
		company("B", "Software", "Canada"),
	}
	got := Build(records, Options{})
	assert.Equal(t, []string{"B"}, got["A"])
	assert.Equal(t, []string{"A"}, got["B"])
	assert.Equal(t, []string{}, got["Ghost"])
}

func TestBuild_FewerThanTwoProfiles(t *testing.T) {
	got := Build([]model.EnrichedCompany{
		company("A", "Software", "USA"),
		model.NewEnrichedCompany("B", "B"),
	}, Options{})
	want := model.CompetitorMap{"A": {}, "B": {}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Build() mismatch (-want +got):\n%s", diff)
	}

	assert.Empty(t, Build(nil, Options{}))
}

func TestBuild_AllEmpty(t *testing.T) {
	got := Build([]model.EnrichedCompany{
		model.NewEnrichedCompany("Acme", "Acme Ltd"),
		model.NewEnrichedCompany("Globex", "Globex Inc"),
	}, Options{})
	want := model.CompetitorMap{"Acme": {}, "Globex": {}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Build() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_DuplicateNamesNotSelfCompetitors(t *testing.T) {
	got := Build([]model.EnrichedCompany{
		company("Acme", "Software", "USA"),
		company("Acme", "Software", "USA"),
		company("Globex", "Software", "USA"),
	}, Options{})
	assert.Equal(t, []string{"Globex"}, got["Acme"])
	assert.Equal(t, []string{"Acme"}, got["Globex"])
}

func TestBuild_EqualCandidatesKeepRowOrder(t *testing.T) {
	records := []model.EnrichedCompany{
		company("A", "alpha beta gamma delta epsilon zeta", "eta theta iota"),
	}
	want := make([]string, 0, 5)
	for i := range 8 {
		name := fmt.Sprintf("B%d", i)
		records = append(records, company(name, "alpha beta gamma delta kappa lambda", "eta mu nu"))
		if i < 5 {
			want = append(want, name)
		}
	}

	for range 200 {
		got := Build(records, Options{TopN: 5})
		if diff := cmp.Diff(want, got["A"]); diff != "" {
			t.Fatalf("competitors of A (-want +got):\n%s", diff)
		}
	}
}

func TestMatrix_EqualProfilesScoreIdentically(t *testing.T) {
	profiles := []string{"alpha beta gamma delta epsilon zeta eta theta iota"}
	for range 6 {
		profiles = append(profiles, "alpha beta gamma delta kappa lambda eta mu nu")
	}

	m := Matrix(profiles, false)
	for j := 2; j < len(profiles); j++ {
		assert.Equal(t, m[0][1], m[0][j], "row %d", j)
	}
}
