package provider

import (
	"context"
	"net/url"
	"regexp"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"

	"github.com/sells-group/company-intel/internal/fetcher"
	"github.com/sells-group/company-intel/internal/model"
)

const (
	defaultWikidataURL    = "https://www.wikidata.org"
	defaultWikidataAPIURL = "https://www.wikidata.org/w/api.php"
)

// Wikidata claim properties.
const (
	propWebsite      = "P856"
	propInception    = "P571"
	propHeadquarters = "P159"
)

var (
	entityIDPattern = regexp.MustCompile(`^[QP]\d+$`)
	yearPattern     = regexp.MustCompile(`\d{4}`)
)

// Wikidata resolves website, founding year and headquarters from the
// Wikidata knowledge base.
type Wikidata struct {
	f    fetcher.Getter
	opts options
}

// NewWikidata creates the knowledge-base adapter. WithBaseURL sets the host
// serving Special:EntityData, WithAPIURL the action API endpoint.
func NewWikidata(f fetcher.Getter, opts ...Option) *Wikidata {
	return &Wikidata{
		f: f,
		opts: applyOptions(options{
			baseURL: defaultWikidataURL,
			apiURL:  defaultWikidataAPIURL,
			timeout: 10 * time.Second,
		}, opts),
	}
}

// Name implements Provider.
func (w *Wikidata) Name() string { return NameWikidata }

// Resolve implements Provider. It searches for the best-matching entity and
// reads its claims.
func (w *Wikidata) Resolve(ctx context.Context, name string) (model.Attributes, error) {
	id, err := w.search(ctx, name)
	if err != nil || id == "" {
		return model.Attributes{}, err
	}

	resp := w.f.Get(ctx, fetcher.Request{
		URL:     w.opts.baseURL + "/wiki/Special:EntityData/" + id + ".json",
		Timeout: w.opts.timeout,
	})
	if !resp.OK() {
		return model.Attributes{}, fetchErr(NameWikidata, resp)
	}
	if !gjson.ValidBytes(resp.Body) {
		return model.Attributes{}, eris.Errorf("wikidata: invalid entity document for %s", id)
	}

	claims := gjson.GetBytes(resp.Body, "entities."+id+".claims")
	attrs := model.Attributes{
		Website:      text(claimValue(claims, propWebsite).String()),
		FoundingYear: foundingYear(claimValue(claims, propInception)),
	}

	hq := claimValue(claims, propHeadquarters)
	switch {
	case hq.Type == gjson.String:
		attrs.Headquarters = text(hq.String())
	case hq.Get("id").Exists():
		attrs.Headquarters = text(w.label(ctx, hq.Get("id").String()))
	}

	return attrs, nil
}

func (w *Wikidata) search(ctx context.Context, name string) (string, error) {
	resp := w.f.Get(ctx, fetcher.Request{
		URL: w.opts.apiURL,
		Query: url.Values{
			"action":   {"wbsearchentities"},
			"search":   {name},
			"language": {"en"},
			"format":   {"json"},
			"limit":    {"1"},
		},
		Timeout: w.opts.timeout,
	})
	if !resp.OK() {
		return "", fetchErr(NameWikidata, resp)
	}
	if !gjson.ValidBytes(resp.Body) {
		return "", eris.New("wikidata: invalid search response")
	}

	id := gjson.GetBytes(resp.Body, "search.0.id").String()
	if id != "" && !entityIDPattern.MatchString(id) {
		return "", eris.Errorf("wikidata: unexpected entity id %q", id)
	}
	return id, nil
}

// label returns the English label of an item, falling back to the id itself.
func (w *Wikidata) label(ctx context.Context, id string) string {
	if !entityIDPattern.MatchString(id) {
		return id
	}
	resp := w.f.Get(ctx, fetcher.Request{
		URL: w.opts.apiURL,
		Query: url.Values{
			"action":    {"wbgetentities"},
			"ids":       {id},
			"props":     {"labels"},
			"languages": {"en"},
			"format":    {"json"},
		},
		Timeout: w.opts.timeout,
	})
	if !resp.OK() {
		return id
	}
	if label := gjson.GetBytes(resp.Body, "entities."+id+".labels.en.value").String(); label != "" {
		return label
	}
	return id
}

// claimValue returns the datavalue of the first statement for property pid.
func claimValue(claims gjson.Result, pid string) gjson.Result {
	return claims.Get(pid + ".0.mainsnak.datavalue.value")
}

// foundingYear reads the year from a time value such as
// "+1998-09-04T00:00:00Z". Plain strings are scanned for a 4-digit run.
func foundingYear(v gjson.Result) *string {
	if !v.Exists() {
		return nil
	}
	raw := v.String()
	if t := v.Get("time"); t.Exists() {
		raw = t.String()
		if len(raw) >= 5 && yearPattern.MatchString(raw[1:5]) {
			return model.String(raw[1:5])
		}
	}
	return model.String(yearPattern.FindString(raw))
}
