package provider

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"

	"github.com/sells-group/company-intel/internal/fetcher"
	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/normalize"
)

const defaultYahooURL = "https://query2.finance.yahoo.com"

// Yahoo resolves market data from the Yahoo Finance quote summary. The
// company name is turned into a ticker guess, so it mostly helps for names
// that are their own symbol.
type Yahoo struct {
	f    fetcher.Getter
	opts options
}

// NewYahoo creates the market-data adapter.
func NewYahoo(f fetcher.Getter, opts ...Option) *Yahoo {
	return &Yahoo{
		f: f,
		opts: applyOptions(options{
			baseURL: defaultYahooURL,
			timeout: 20 * time.Second,
		}, opts),
	}
}

// Name implements Provider.
func (y *Yahoo) Name() string { return NameYahoo }

// Resolve implements Provider.
func (y *Yahoo) Resolve(ctx context.Context, name string) (model.Attributes, error) {
	ticker := normalize.Ticker(name)
	if ticker == "" {
		return model.Attributes{}, nil
	}

	resp := y.f.Get(ctx, fetcher.Request{
		URL:     y.opts.baseURL + "/v10/finance/quoteSummary/" + url.PathEscape(ticker),
		Query:   url.Values{"modules": {"price,summaryProfile,financialData"}},
		Headers: map[string]string{"Accept": "application/json"},
		Timeout: y.opts.timeout,
	})
	if !resp.OK() {
		return model.Attributes{}, fetchErr(NameYahoo, resp)
	}
	if !gjson.ValidBytes(resp.Body) {
		return model.Attributes{}, eris.New("yahoo: invalid quote summary")
	}

	result := gjson.GetBytes(resp.Body, "quoteSummary.result.0")
	if !result.Exists() {
		return model.Attributes{}, nil
	}

	attrs := model.Attributes{
		AnnualRevenue: rawNumber(result.Get("financialData.totalRevenue")),
		MarketCap:     rawNumber(result.Get("price.marketCap")),
		Industry:      text(result.Get("summaryProfile.industry").String()),
		Country:       text(result.Get("summaryProfile.country").String()),
	}
	if qt := result.Get("price.quoteType"); qt.Exists() {
		attrs.IsPublic = model.Bool(strings.EqualFold(qt.String(), "equity"))
	}
	return attrs, nil
}

// rawNumber reads Yahoo's {"raw": 123, "fmt": "123"} number shape, also
// accepting a bare number.
func rawNumber(v gjson.Result) *float64 {
	if raw := v.Get("raw"); raw.Type == gjson.Number {
		return model.Float(raw.Float())
	}
	if v.Type == gjson.Number {
		return model.Float(v.Float())
	}
	return nil
}
