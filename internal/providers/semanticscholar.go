package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/scholartech/scholargraph/internal/fetch"
	"github.com/scholartech/scholargraph/pkg/logging"
	"github.com/scholartech/scholargraph/pkg/scholar"
)

const semanticScholarFields = "title,abstract,year,venue,externalIds,citationCount," +
	"influentialCitationCount,referenceCount,authors,isOpenAccess,openAccessPdf,fieldsOfStudy,url"

// SemanticScholar is the catalog supplying influential citation counts and
// curated fields of study.
type SemanticScholar struct {
	baseURL string
	apiKey  string
	client  *fetch.Client
	log     zerolog.Logger
}

// NewSemanticScholar creates the Semantic Scholar adapter. apiKey may be
// empty; the public tier simply rate-limits harder.
func NewSemanticScholar(baseURL, apiKey string, client *fetch.Client) *SemanticScholar {
	return &SemanticScholar{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  client,
		log:     logging.GetProviderLogger(string(scholar.ProviderSemanticScholar)),
	}
}

// Tag implements SearchProvider.
func (s *SemanticScholar) Tag() scholar.Provider { return scholar.ProviderSemanticScholar }

type semanticScholarResponse struct {
	Data []semanticScholarPaper `json:"data"`
}

type semanticScholarPaper struct {
	PaperID                  string         `json:"paperId"`
	Title                    string         `json:"title"`
	Abstract                 string         `json:"abstract"`
	Year                     int            `json:"year"`
	Venue                    string         `json:"venue"`
	URL                      string         `json:"url"`
	CitationCount            int            `json:"citationCount"`
	InfluentialCitationCount int            `json:"influentialCitationCount"`
	ReferenceCount           int            `json:"referenceCount"`
	IsOpenAccess             bool           `json:"isOpenAccess"`
	ExternalIDs              map[string]any `json:"externalIds"`
	OpenAccessPdf            *struct {
		URL     string `json:"url"`
		License string `json:"license"`
	} `json:"openAccessPdf"`
	Authors []struct {
		AuthorID string `json:"authorId"`
		Name     string `json:"name"`
	} `json:"authors"`
	FieldsOfStudy []string `json:"fieldsOfStudy"`
}

// SearchWorks queries the paper relevance-search endpoint.
func (s *SemanticScholar) SearchWorks(ctx context.Context, query string, limit int) ([]scholar.ProviderWork, error) {
	endpoint := fmt.Sprintf("%s/paper/search?query=%s&limit=%d&fields=%s",
		s.baseURL, url.QueryEscape(query), limit, url.QueryEscape(semanticScholarFields))

	req := fetch.Request{URL: endpoint, Provider: scholar.ProviderSemanticScholar}
	if s.apiKey != "" {
		req.Header = http.Header{"X-Api-Key": []string{s.apiKey}}
	}

	var resp semanticScholarResponse
	if err := s.client.DoJSON(ctx, req, &resp); err != nil {
		return nil, err
	}

	works := make([]scholar.ProviderWork, 0, len(resp.Data))
	for _, raw := range resp.Data {
		works = append(works, s.normalize(raw, endpoint))
	}
	s.log.Debug().Str("query", query).Int("count", len(works)).Msg("Search complete")
	return works, nil
}

func (s *SemanticScholar) normalize(raw semanticScholarPaper, sourceURL string) scholar.ProviderWork {
	work := scholar.ProviderWork{
		Provider:                 scholar.ProviderSemanticScholar,
		ProviderID:               raw.PaperID,
		Title:                    fallbackTitle(raw.Title),
		Abstract:                 scholar.NormalizeWhitespace(raw.Abstract),
		Year:                     scholar.ParseYear(raw.Year),
		Venue:                    raw.Venue,
		URL:                      raw.URL,
		CitationCount:            raw.CitationCount,
		InfluentialCitationCount: raw.InfluentialCitationCount,
		ReferenceCount:           raw.ReferenceCount,
		Relevance:                defaultRelevanceSemanticScholar,
		SourceURL:                sourceURL,
		ExternalIDs:              map[string]string{},
		FieldsOfStudy:            raw.FieldsOfStudy,
	}
	// externalIds mixes string ids (DOI, ArXiv) with numeric ones (CorpusId);
	// only the string ids are carried over.
	for k, v := range raw.ExternalIDs {
		id, ok := v.(string)
		if !ok {
			continue
		}
		if k == "DOI" {
			work.DOI = scholar.NormalizeDOI(id)
			work.ExternalIDs["doi"] = work.DOI
			continue
		}
		work.ExternalIDs[k] = id
	}
	work.OpenAccess.IsOpen = raw.IsOpenAccess
	if raw.OpenAccessPdf != nil {
		work.OpenAccess.PDFURL = raw.OpenAccessPdf.URL
		work.OpenAccess.License = raw.OpenAccessPdf.License
	}
	for _, a := range raw.Authors {
		work.Authors = append(work.Authors, scholar.Author{Name: a.Name, ProviderAuthorID: a.AuthorID})
	}
	return work
}
