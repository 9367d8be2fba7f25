package model

import (
	"strconv"
)

// Field keys recognized across providers. The order of FieldKeys is the
// canonical column order used by reports and coverage counts.
const (
	FieldCompanyType       = "company_type"
	FieldJurisdiction      = "jurisdiction"
	FieldIncorporationDate = "incorporation_date"
	FieldCompanyStatus     = "company_status"
	FieldRegistrationID    = "registration_id"
	FieldRegistryURL       = "registry_url"
	FieldWebsite           = "website"
	FieldFoundingYear      = "founding_year"
	FieldHeadquarters      = "headquarters"
	FieldAnnualRevenue     = "annual_revenue"
	FieldMarketCap         = "market_cap"
	FieldIndustry          = "industry"
	FieldCountry           = "country"
	FieldIsPublic          = "is_public"
)

// FieldKeys lists every attribute key in canonical order.
var FieldKeys = []string{
	FieldCompanyType,
	FieldJurisdiction,
	FieldIncorporationDate,
	FieldCompanyStatus,
	FieldRegistrationID,
	FieldRegistryURL,
	FieldWebsite,
	FieldFoundingYear,
	FieldHeadquarters,
	FieldAnnualRevenue,
	FieldMarketCap,
	FieldIndustry,
	FieldCountry,
	FieldIsPublic,
}

// Attributes is the fixed set of company attributes a provider can supply.
// A nil field means the provider had nothing for it.
type Attributes struct {
	CompanyType       *string  `json:"company_type" yaml:"company_type"`
	Jurisdiction      *string  `json:"jurisdiction" yaml:"jurisdiction"`
	IncorporationDate *string  `json:"incorporation_date" yaml:"incorporation_date"`
	CompanyStatus     *string  `json:"company_status" yaml:"company_status"`
	RegistrationID    *string  `json:"registration_id" yaml:"registration_id"`
	RegistryURL       *string  `json:"registry_url" yaml:"registry_url"`
	Website           *string  `json:"website" yaml:"website"`
	FoundingYear      *string  `json:"founding_year" yaml:"founding_year"`
	Headquarters      *string  `json:"headquarters" yaml:"headquarters"`
	AnnualRevenue     *float64 `json:"annual_revenue" yaml:"annual_revenue"`
	MarketCap         *float64 `json:"market_cap" yaml:"market_cap"`
	Industry          *string  `json:"industry" yaml:"industry"`
	Country           *string  `json:"country" yaml:"country"`
	IsPublic          *bool    `json:"is_public" yaml:"is_public"`
}

// Merge gap-fills a from incoming: a field is copied only when the receiver's
// value is falsy (nil, "", 0 or false) and incoming has a value. Set fields
// are never overwritten. Returns the receiver for chaining.
func (a *Attributes) Merge(incoming Attributes) *Attributes {
	a.merge(incoming)
	return a
}

// merge reports how many fields incoming changed.
func (a *Attributes) merge(incoming Attributes) int {
	changed := 0
	for _, ok := range []bool{
		fill(&a.CompanyType, incoming.CompanyType),
		fill(&a.Jurisdiction, incoming.Jurisdiction),
		fill(&a.IncorporationDate, incoming.IncorporationDate),
		fill(&a.CompanyStatus, incoming.CompanyStatus),
		fill(&a.RegistrationID, incoming.RegistrationID),
		fill(&a.RegistryURL, incoming.RegistryURL),
		fill(&a.Website, incoming.Website),
		fill(&a.FoundingYear, incoming.FoundingYear),
		fill(&a.Headquarters, incoming.Headquarters),
		fill(&a.AnnualRevenue, incoming.AnnualRevenue),
		fill(&a.MarketCap, incoming.MarketCap),
		fill(&a.Industry, incoming.Industry),
		fill(&a.Country, incoming.Country),
		fill(&a.IsPublic, incoming.IsPublic),
	} {
		if ok {
			changed++
		}
	}
	return changed
}

// fill copies src into a falsy dst and reports whether the value changed.
func fill[T comparable](dst **T, src *T) bool {
	if src == nil {
		return false
	}
	var zero T
	if *dst != nil && **dst != zero {
		return false
	}
	changed := *dst == nil || **dst != *src
	v := *src
	*dst = &v
	return changed
}

// FieldValue pairs an attribute key with its value (nil when unset).
type FieldValue struct {
	Key   string
	Value any
}

// Fields returns every attribute in canonical order.
func (a Attributes) Fields() []FieldValue {
	return []FieldValue{
		{FieldCompanyType, deref(a.CompanyType)},
		{FieldJurisdiction, deref(a.Jurisdiction)},
		{FieldIncorporationDate, deref(a.IncorporationDate)},
		{FieldCompanyStatus, deref(a.CompanyStatus)},
		{FieldRegistrationID, deref(a.RegistrationID)},
		{FieldRegistryURL, deref(a.RegistryURL)},
		{FieldWebsite, deref(a.Website)},
		{FieldFoundingYear, deref(a.FoundingYear)},
		{FieldHeadquarters, deref(a.Headquarters)},
		{FieldAnnualRevenue, deref(a.AnnualRevenue)},
		{FieldMarketCap, deref(a.MarketCap)},
		{FieldIndustry, deref(a.Industry)},
		{FieldCountry, deref(a.Country)},
		{FieldIsPublic, deref(a.IsPublic)},
	}
}

// Get returns the value for key, or nil if the key is unset or unknown.
func (a Attributes) Get(key string) any {
	for _, f := range a.Fields() {
		if f.Key == key {
			return f.Value
		}
	}
	return nil
}

// Filled returns the number of non-null attributes.
func (a Attributes) Filled() int {
	n := 0
	for _, f := range a.Fields() {
		if f.Value != nil {
			n++
		}
	}
	return n
}

// IsEmpty reports whether no attribute is set.
func (a Attributes) IsEmpty() bool {
	return a.Filled() == 0
}

// FormatValue renders an attribute value for tabular output. Nil renders as "".
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// String returns a pointer to s, or nil when s is empty. Providers use it so
// blank upstream values stay null.
func String(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Float returns a pointer to f.
func Float(f float64) *float64 {
	return &f
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}
