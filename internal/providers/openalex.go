package providers

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/scholartech/scholargraph/internal/fetch"
	"github.com/scholartech/scholargraph/pkg/logging"
	"github.com/scholartech/scholargraph/pkg/scholar"
)

// OpenAlex is the catalog with inverted-index abstracts and the only one
// exposing a direct DOI lookup endpoint.
type OpenAlex struct {
	baseURL string
	client  *fetch.Client
	log     zerolog.Logger
}

// NewOpenAlex creates the OpenAlex adapter.
func NewOpenAlex(baseURL string, client *fetch.Client) *OpenAlex {
	return &OpenAlex{
		baseURL: baseURL,
		client:  client,
		log:     logging.GetProviderLogger(string(scholar.ProviderOpenAlex)),
	}
}

// Tag implements SearchProvider.
func (o *OpenAlex) Tag() scholar.Provider { return scholar.ProviderOpenAlex }

type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID                    string           `json:"id"`
	DisplayName           string           `json:"display_name"`
	PublicationYear       int              `json:"publication_year"`
	DOI                   string           `json:"doi"`
	RelevanceScore        float64          `json:"relevance_score"`
	CitedByCount          int              `json:"cited_by_count"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
	ReferencedWorks       []string         `json:"referenced_works"`
	PrimaryLocation       *openAlexLoc     `json:"primary_location"`
	OpenAccess            struct {
		IsOA  bool   `json:"is_oa"`
		OAURL string `json:"oa_url"`
	} `json:"open_access"`
	Authorships []struct {
		Author struct {
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
	IDs    map[string]string `json:"ids"`
	Topics []struct {
		DisplayName string `json:"display_name"`
	} `json:"topics"`
}

type openAlexLoc struct {
	LandingPageURL string `json:"landing_page_url"`
	PDFURL         string `json:"pdf_url"`
	License        string `json:"license"`
	Source         *struct {
		DisplayName string `json:"display_name"`
	} `json:"source"`
}

// SearchWorks queries the works search endpoint.
func (o *OpenAlex) SearchWorks(ctx context.Context, query string, limit int) ([]scholar.ProviderWork, error) {
	endpoint := fmt.Sprintf("%s/works?search=%s&per-page=%d", o.baseURL, url.QueryEscape(query), limit)

	var resp openAlexResponse
	if err := o.client.DoJSON(ctx, fetch.Request{URL: endpoint, Provider: scholar.ProviderOpenAlex}, &resp); err != nil {
		return nil, err
	}

	works := make([]scholar.ProviderWork, 0, len(resp.Results))
	for _, raw := range resp.Results {
		works = append(works, o.normalize(raw, endpoint))
	}
	o.log.Debug().Str("query", query).Int("count", len(works)).Msg("Search complete")
	return works, nil
}

// GetWorkByDOI hits the direct DOI endpoint. A 404 is a miss, not an error.
func (o *OpenAlex) GetWorkByDOI(ctx context.Context, doi string) (*scholar.ProviderWork, error) {
	doi = scholar.NormalizeDOI(doi)
	if doi == "" {
		return nil, nil
	}
	endpoint := fmt.Sprintf("%s/works/https://doi.org/%s", o.baseURL, url.PathEscape(doi))

	var raw openAlexWork
	if err := o.client.DoJSON(ctx, fetch.Request{URL: endpoint, Provider: scholar.ProviderOpenAlex}, &raw); err != nil {
		if pe, ok := err.(*scholar.ProviderError); ok && pe.HTTPStatus == 404 {
			return nil, nil
		}
		return nil, err
	}
	work := o.normalize(raw, endpoint)
	return &work, nil
}

func (o *OpenAlex) normalize(raw openAlexWork, sourceURL string) scholar.ProviderWork {
	work := scholar.ProviderWork{
		Provider:      scholar.ProviderOpenAlex,
		ProviderID:    raw.ID,
		Title:         fallbackTitle(raw.DisplayName),
		Abstract:      decodeInvertedIndex(raw.AbstractInvertedIndex),
		Year:          scholar.ParseYear(raw.PublicationYear),
		DOI:           scholar.NormalizeDOI(raw.DOI),
		CitationCount: raw.CitedByCount,
		Relevance:     defaultRelevanceOpenAlex,
		SourceURL:     sourceURL,
		ExternalIDs:   map[string]string{},
	}
	if raw.RelevanceScore > 0 {
		// OpenAlex relevance is unbounded; squash into [0,1].
		work.Relevance = scholar.Clamp(raw.RelevanceScore/10, 0, 1)
	}
	work.ReferenceCount = len(raw.ReferencedWorks)

	if loc := raw.PrimaryLocation; loc != nil {
		work.URL = loc.LandingPageURL
		if loc.Source != nil {
			work.Venue = loc.Source.DisplayName
		}
		work.OpenAccess.PDFURL = loc.PDFURL
		work.OpenAccess.License = loc.License
	}
	work.OpenAccess.IsOpen = raw.OpenAccess.IsOA
	if work.OpenAccess.PDFURL == "" {
		work.OpenAccess.PDFURL = raw.OpenAccess.OAURL
	}

	for _, a := range raw.Authorships {
		work.Authors = append(work.Authors, scholar.Author{
			Name:             a.Author.DisplayName,
			ProviderAuthorID: a.Author.ID,
		})
	}
	for k, v := range raw.IDs {
		if k == "doi" {
			v = scholar.NormalizeDOI(v)
		}
		work.ExternalIDs[k] = v
	}
	if work.DOI != "" {
		work.ExternalIDs["doi"] = work.DOI
	}
	for _, t := range raw.Topics {
		if t.DisplayName != "" {
			work.FieldsOfStudy = append(work.FieldsOfStudy, t.DisplayName)
		}
	}
	return work
}
