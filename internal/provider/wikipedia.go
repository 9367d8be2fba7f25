package provider

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/company-intel/internal/fetcher"
	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/normalize"
)

const defaultWikipediaURL = "https://en.wikipedia.org"

// Wikipedia scrapes the article infobox for founding year and headquarters.
type Wikipedia struct {
	f    fetcher.Getter
	opts options
}

// NewWikipedia creates the infobox adapter.
func NewWikipedia(f fetcher.Getter, opts ...Option) *Wikipedia {
	return &Wikipedia{
		f: f,
		opts: applyOptions(options{
			baseURL: defaultWikipediaURL,
			timeout: 15 * time.Second,
		}, opts),
	}
}

// Name implements Provider.
func (w *Wikipedia) Name() string { return NameWikipedia }

// Resolve implements Provider. A missing article or an article without an
// infobox yields an empty result.
func (w *Wikipedia) Resolve(ctx context.Context, name string) (model.Attributes, error) {
	slug := normalize.Slug(name)
	if slug == "" {
		return model.Attributes{}, nil
	}

	resp := w.f.Get(ctx, fetcher.Request{
		URL:     w.opts.baseURL + "/wiki/" + url.PathEscape(slug),
		Headers: map[string]string{"Accept": "text/html"},
		Timeout: w.opts.timeout,
	})
	if !resp.OK() {
		return model.Attributes{}, fetchErr(NameWikipedia, resp)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return model.Attributes{}, eris.Wrap(err, "wikipedia: parse html")
	}
	return parseInfobox(doc), nil
}

// parseInfobox reads the first .infobox table. Each row pairs a th label
// with a td value; the first matching row per field wins.
func parseInfobox(doc *goquery.Document) model.Attributes {
	var attrs model.Attributes

	infobox := doc.Find(".infobox").First()
	if infobox.Length() == 0 {
		return attrs
	}

	infobox.Find("tr").Each(func(_ int, row *goquery.Selection) {
		th := row.Find("th").First()
		td := row.Find("td").First()
		if th.Length() == 0 || td.Length() == 0 {
			return
		}
		// Footnote markers and inline styles would leak into the text.
		td.Find("sup.reference, style, .noprint").Remove()

		label := th.Text()
		value := strings.Join(strings.Fields(td.Text()), " ")

		if strings.Contains(label, "Founded") && attrs.FoundingYear == nil {
			attrs.FoundingYear = model.String(yearPattern.FindString(value))
		}
		if strings.Contains(label, "Headquarters") && attrs.Headquarters == nil {
			attrs.Headquarters = text(value)
		}
	})
	return attrs
}
