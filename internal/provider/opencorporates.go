package provider

import (
	"context"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-intel/internal/fetcher"
	"github.com/sells-group/company-intel/internal/model"
)

const defaultOpenCorporatesURL = "https://api.opencorporates.com/v0.4"

// OpenCorporates resolves legal registry data from the OpenCorporates
// company search.
type OpenCorporates struct {
	f    fetcher.Getter
	opts options
}

// NewOpenCorporates creates the registry adapter.
func NewOpenCorporates(f fetcher.Getter, opts ...Option) *OpenCorporates {
	return &OpenCorporates{
		f: f,
		opts: applyOptions(options{
			baseURL: defaultOpenCorporatesURL,
			timeout: 15 * time.Second,
		}, opts),
	}
}

// Name implements Provider.
func (o *OpenCorporates) Name() string { return NameOpenCorporates }

type ocSearchResponse struct {
	Results struct {
		Companies []struct {
			Company ocCompany `json:"company"`
		} `json:"companies"`
	} `json:"results"`
}

type ocCompany struct {
	CompanyType       string `json:"company_type"`
	JurisdictionCode  string `json:"jurisdiction_code"`
	IncorporationDate string `json:"incorporation_date"`
	CurrentStatus     string `json:"current_status"`
	CompanyNumber     string `json:"company_number"`
	RegistryURL       string `json:"registry_url"`
}

// Resolve implements Provider. Only the first search hit is used.
func (o *OpenCorporates) Resolve(ctx context.Context, name string) (model.Attributes, error) {
	q := url.Values{"q": {name}}
	if o.opts.apiToken != "" {
		q.Set("api_token", o.opts.apiToken)
	}

	resp := o.f.Get(ctx, fetcher.Request{
		URL:     o.opts.baseURL + "/companies/search",
		Query:   q,
		Headers: map[string]string{"Accept": "application/json"},
		Timeout: o.opts.timeout,
	})
	if !resp.OK() {
		return model.Attributes{}, fetchErr(NameOpenCorporates, resp)
	}

	var body ocSearchResponse
	if !resp.Decode(&body) {
		return model.Attributes{}, eris.New("opencorporates: decode search response")
	}
	if len(body.Results.Companies) == 0 {
		return model.Attributes{}, nil
	}

	c := body.Results.Companies[0].Company
	return model.Attributes{
		CompanyType:       text(c.CompanyType),
		Jurisdiction:      text(c.JurisdictionCode),
		IncorporationDate: text(c.IncorporationDate),
		CompanyStatus:     text(c.CurrentStatus),
		RegistrationID:    text(c.CompanyNumber),
		RegistryURL:       text(c.RegistryURL),
	}, nil
}
