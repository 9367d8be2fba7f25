package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const wdEntityJSON = `{
  "entities": {
    "Q42": {
      "id": "Q42",
      "claims": {
        "P856": [{"mainsnak": {"datavalue": {"value": "https://acme.example", "type": "string"}}}],
        "P571": [{"mainsnak": {"datavalue": {"value": {"time": "+1998-09-04T00:00:00Z", "precision": 11}, "type": "time"}}}],
        "P159": [{"mainsnak": {"datavalue": {"value": {"entity-type": "item", "numeric-id": 62, "id": "Q62"}, "type": "wikibase-entityid"}}}]
      }
    }
  }
}`

func newWikidataServer(t *testing.T, labels bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/w/api.php", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch q.Get("action") {
		case "wbsearchentities":
			assert.Equal(t, "en", q.Get("language"))
			assert.Equal(t, "1", q.Get("limit"))
			if q.Get("search") == "Nobody" {
				_, _ = w.Write([]byte(`{"search":[]}`))
				return
			}
			_, _ = w.Write([]byte(`{"search":[{"id":"Q42","label":"Acme"}]}`))
		case "wbgetentities":
			assert.Equal(t, "Q62", q.Get("ids"))
			if !labels {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write([]byte(`{"entities":{"Q62":{"labels":{"en":{"language":"en","value":"San Francisco"}}}}}`))
		default:
			t.Errorf("unexpected action %q", q.Get("action"))
		}
	})
	mux.HandleFunc("/wiki/Special:EntityData/Q42.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(wdEntityJSON))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestWikidata_Resolve(t *testing.T) {
	srv := newWikidataServer(t, true)
	wd := NewWikidata(newTestFetcher(t), WithBaseURL(srv.URL), WithAPIURL(srv.URL+"/w/api.php"))
	assert.Equal(t, NameWikidata, wd.Name())

	attrs, err := wd.Resolve(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, "https://acme.example", *attrs.Website)
	assert.Equal(t, "1998", *attrs.FoundingYear)
	assert.Equal(t, "San Francisco", *attrs.Headquarters)
	assert.Nil(t, attrs.Industry)
}

func TestWikidata_HeadquartersFallsBackToItemID(t *testing.T) {
	srv := newWikidataServer(t, false)
	wd := NewWikidata(newTestFetcher(t), WithBaseURL(srv.URL), WithAPIURL(srv.URL+"/w/api.php"))

	attrs, err := wd.Resolve(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, "Q62", *attrs.Headquarters)
}

func TestWikidata_NoSearchHit(t *testing.T) {
	srv := newWikidataServer(t, true)
	wd := NewWikidata(newTestFetcher(t), WithBaseURL(srv.URL), WithAPIURL(srv.URL+"/w/api.php"))

	attrs, err := wd.Resolve(context.Background(), "Nobody")
	require.NoError(t, err)
	assert.True(t, attrs.IsEmpty())
}

func TestWikidata_MissingClaims(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/w/api.php", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"search":[{"id":"Q7"}]}`))
	})
	mux.HandleFunc("/wiki/Special:EntityData/Q7.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"entities":{"Q7":{"claims":{"P856":[{"mainsnak":{"snaktype":"novalue"}}]}}}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	wd := NewWikidata(newTestFetcher(t), WithBaseURL(srv.URL), WithAPIURL(srv.URL+"/w/api.php"))
	attrs, err := wd.Resolve(context.Background(), "Sparse")
	require.NoError(t, err)
	assert.True(t, attrs.IsEmpty())
}

func TestWikidata_SearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wd := NewWikidata(newTestFetcher(t), WithBaseURL(srv.URL), WithAPIURL(srv.URL+"/w/api.php"))
	attrs, err := wd.Resolve(context.Background(), "Acme")
	require.Error(t, err)
	assert.True(t, attrs.IsEmpty())
}

func TestFoundingYear(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{"time value", `{"v":{"time":"+2004-02-04T00:00:00Z"}}`, "2004"},
		{"plain string", `{"v":"founded in 1886"}`, "1886"},
		{"no year", `{"v":"unknown"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := foundingYear(gjson.Get(tt.json, "v"))
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
	assert.Nil(t, foundingYear(gjson.Get(`{}`, "v")))
}
