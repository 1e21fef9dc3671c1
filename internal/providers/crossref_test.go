package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholartech/scholargraph/internal/fetch"
	"github.com/scholartech/scholargraph/pkg/scholar"
)

const crossrefSearchBody = `{
  "message": {
    "items": [
      {
        "DOI": "10.5555/JATS",
        "title": ["Tagged Abstract Handling"],
        "abstract": "<jats:p>Markup is <jats:bold>stripped</jats:bold> here.</jats:p>",
        "container-title": ["Journal of Markup"],
        "URL": "https://doi.org/10.5555/jats",
        "score": 55.0,
        "is-referenced-by-count": 12,
        "references-count": 31,
        "issued": {"date-parts": [[2018, 6, 1]]},
        "author": [
          {"given": "Grace", "family": "Hopper", "ORCID": "https://orcid.org/0000-0001"},
          {"given": "", "family": ""}
        ],
        "link": [
          {"URL": "https://example.org/jats.html", "content-type": "text/html"},
          {"URL": "https://example.org/jats.pdf", "content-type": "application/pdf"}
        ],
        "license": [{"URL": "https://creativecommons.org/licenses/by/4.0/"}],
        "subject": ["Computer Science"]
      },
      {
        "DOI": "10.5555/bare",
        "title": []
      }
    ]
  }
}`

func TestCrossrefSearchWorksMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works", r.URL.Path)
		assert.Equal(t, "markup handling", r.URL.Query().Get("query"))
		assert.Equal(t, "4", r.URL.Query().Get("rows"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(crossrefSearchBody))
	}))
	defer srv.Close()

	c := NewCrossref(srv.URL, fetch.New(fetch.Options{}))
	works, err := c.SearchWorks(context.Background(), "markup handling", 4)
	require.NoError(t, err)
	require.Len(t, works, 2)

	w := works[0]
	assert.Equal(t, scholar.ProviderCrossref, w.Provider)
	assert.Equal(t, "10.5555/jats", w.DOI, "DOI lowercased")
	assert.Equal(t, "Tagged Abstract Handling", w.Title)
	assert.Equal(t, "Markup is stripped here.", w.Abstract, "JATS tags removed")
	assert.Equal(t, "Journal of Markup", w.Venue)
	assert.Equal(t, 2018, w.Year, "year from first issued date-part")
	assert.Equal(t, 12, w.CitationCount)
	assert.Equal(t, 31, w.ReferenceCount)
	assert.InDelta(t, 0.55, w.Relevance, 1e-9, "native score divided by 100")
	require.Len(t, w.Authors, 1, "empty author names skipped")
	assert.Equal(t, "Grace Hopper", w.Authors[0].Name)
	assert.Equal(t, "https://orcid.org/0000-0001", w.Authors[0].ProviderAuthorID)
	assert.True(t, w.OpenAccess.IsOpen)
	assert.Equal(t, "https://example.org/jats.pdf", w.OpenAccess.PDFURL, "pdf link preferred over html")
	assert.Equal(t, "https://creativecommons.org/licenses/by/4.0/", w.OpenAccess.License)
	assert.Equal(t, []string{"Computer Science"}, w.FieldsOfStudy)
	assert.Equal(t, "10.5555/jats", w.ExternalIDs["doi"])

	bare := works[1]
	assert.Equal(t, "Untitled", bare.Title)
	assert.Equal(t, 0, bare.Year)
	assert.Equal(t, defaultRelevanceCrossref, bare.Relevance)
	assert.False(t, bare.OpenAccess.IsOpen)
}

func TestCrossrefScoreClamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":{"items":[{"DOI":"10.1/x","title":["Hot"],"score":9000}]}}`))
	}))
	defer srv.Close()

	c := NewCrossref(srv.URL, fetch.New(fetch.Options{}))
	works, err := c.SearchWorks(context.Background(), "hot", 1)
	require.NoError(t, err)
	require.Len(t, works, 1)
	assert.Equal(t, 1.0, works[0].Relevance)
}

func TestCrossrefUpstreamErrorSurfacesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	c := NewCrossref(srv.URL, fetch.New(fetch.Options{}))
	_, err := c.SearchWorks(context.Background(), "anything", 1)
	require.Error(t, err)

	provErr, ok := err.(*scholar.ProviderError)
	require.True(t, ok)
	assert.Equal(t, scholar.ProviderCrossref, provErr.Provider)
	assert.Equal(t, http.StatusTooManyRequests, provErr.HTTPStatus)
}
