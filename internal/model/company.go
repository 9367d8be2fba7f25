package model

import (
	"time"
)

// RunStatus represents the current state of an enrichment run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusEnriching RunStatus = "enriching"
	RunStatusComplete  RunStatus = "complete"
	RunStatusFailed    RunStatus = "failed"
)

// EnrichedCompany is the merged record for one normalized company name.
type EnrichedCompany struct {
	CompanyName string `json:"company_name" yaml:"company_name"`
	// Query is the raw input string the record was built from.
	Query      string `json:"query,omitempty" yaml:"query,omitempty"`
	Attributes `yaml:",inline"`
	// Competitors holds the ranked potential competitors once the
	// similarity map has been built.
	Competitors []string `json:"potential_competitors" yaml:"potential_competitors"`
	// Sources lists providers that contributed at least one field, in merge order.
	Sources []string `json:"sources,omitempty" yaml:"sources,omitempty"`
}

// NewEnrichedCompany returns a record with only the company name populated.
func NewEnrichedCompany(name, query string) EnrichedCompany {
	return EnrichedCompany{CompanyName: name, Query: query, Competitors: []string{}}
}

// Merge gap-fills the record from a provider result and records the
// provider as a source when it changed any field, including one that held a
// falsy value such as false or 0.
func (c *EnrichedCompany) Merge(source string, incoming Attributes) *EnrichedCompany {
	if c.Attributes.merge(incoming) > 0 && source != "" {
		c.Sources = append(c.Sources, source)
	}
	return c
}

// Profile returns the industry + country text used for similarity scoring.
func (c EnrichedCompany) Profile() string {
	var industry, country string
	if c.Industry != nil {
		industry = *c.Industry
	}
	if c.Country != nil {
		country = *c.Country
	}
	return industry + " " + country
}

// CompetitorMap maps company name to ranked competitor names.
type CompetitorMap map[string][]string

// Report is the complete output of one enrichment run.
type Report struct {
	RunID       string            `json:"run_id" yaml:"run_id"`
	Status      RunStatus         `json:"status" yaml:"status"`
	GeneratedAt time.Time         `json:"generated_at" yaml:"generated_at"`
	Companies   []EnrichedCompany `json:"companies" yaml:"companies"`
	Competitors CompetitorMap     `json:"competitors" yaml:"competitors"`
}

// Coverage returns the number of non-null attributes per company name.
func (r Report) Coverage() map[string]int {
	out := make(map[string]int, len(r.Companies))
	for _, c := range r.Companies {
		out[c.CompanyName] += c.Filled()
	}
	return out
}
