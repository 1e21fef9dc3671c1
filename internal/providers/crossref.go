package providers

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/scholartech/scholargraph/internal/fetch"
	"github.com/scholartech/scholargraph/pkg/logging"
	"github.com/scholartech/scholargraph/pkg/scholar"
)

// Crossref is the catalog whose abstracts arrive as JATS-tagged markup; all
// tags are stripped before storage.
type Crossref struct {
	baseURL string
	client  *fetch.Client
	log     zerolog.Logger
}

// NewCrossref creates the Crossref adapter.
func NewCrossref(baseURL string, client *fetch.Client) *Crossref {
	return &Crossref{
		baseURL: baseURL,
		client:  client,
		log:     logging.GetProviderLogger(string(scholar.ProviderCrossref)),
	}
}

// Tag implements SearchProvider.
func (c *Crossref) Tag() scholar.Provider { return scholar.ProviderCrossref }

type crossrefResponse struct {
	Message struct {
		Items []crossrefWork `json:"items"`
	} `json:"message"`
}

type crossrefWork struct {
	DOI            string   `json:"DOI"`
	Title          []string `json:"title"`
	Abstract       string   `json:"abstract"`
	ContainerTitle []string `json:"container-title"`
	URL            string   `json:"URL"`
	Score          float64  `json:"score"`
	ReferencedBy   int      `json:"is-referenced-by-count"`
	ReferenceCount int      `json:"references-count"`
	Issued         struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"issued"`
	Author []struct {
		Given  string `json:"given"`
		Family string `json:"family"`
		ORCID  string `json:"ORCID"`
	} `json:"author"`
	Link []struct {
		URL         string `json:"URL"`
		ContentType string `json:"content-type"`
	} `json:"link"`
	License []struct {
		URL string `json:"URL"`
	} `json:"license"`
	Subject []string `json:"subject"`
}

// SearchWorks queries the works endpoint.
func (c *Crossref) SearchWorks(ctx context.Context, query string, limit int) ([]scholar.ProviderWork, error) {
	endpoint := fmt.Sprintf("%s/works?query=%s&rows=%d", c.baseURL, url.QueryEscape(query), limit)

	var resp crossrefResponse
	if err := c.client.DoJSON(ctx, fetch.Request{URL: endpoint, Provider: scholar.ProviderCrossref}, &resp); err != nil {
		return nil, err
	}

	works := make([]scholar.ProviderWork, 0, len(resp.Message.Items))
	for _, raw := range resp.Message.Items {
		works = append(works, c.normalize(raw, endpoint))
	}
	c.log.Debug().Str("query", query).Int("count", len(works)).Msg("Search complete")
	return works, nil
}

func (c *Crossref) normalize(raw crossrefWork, sourceURL string) scholar.ProviderWork {
	title := ""
	if len(raw.Title) > 0 {
		title = raw.Title[0]
	}
	work := scholar.ProviderWork{
		Provider:       scholar.ProviderCrossref,
		ProviderID:     scholar.NormalizeDOI(raw.DOI),
		Title:          fallbackTitle(title),
		Abstract:       stripMarkup(raw.Abstract),
		DOI:            scholar.NormalizeDOI(raw.DOI),
		URL:            raw.URL,
		CitationCount:  raw.ReferencedBy,
		ReferenceCount: raw.ReferenceCount,
		Relevance:      defaultRelevanceCrossref,
		SourceURL:      sourceURL,
		ExternalIDs:    map[string]string{},
	}
	if raw.Score > 0 {
		// Crossref scores are unbounded lexical scores; squash into [0,1].
		work.Relevance = scholar.Clamp(raw.Score/100, 0, 1)
	}
	if len(raw.ContainerTitle) > 0 {
		work.Venue = raw.ContainerTitle[0]
	}
	if parts := raw.Issued.DateParts; len(parts) > 0 && len(parts[0]) > 0 {
		work.Year = scholar.ParseYear(parts[0][0])
	}
	for _, a := range raw.Author {
		name := strings.TrimSpace(a.Given + " " + a.Family)
		if name == "" {
			continue
		}
		work.Authors = append(work.Authors, scholar.Author{Name: name, ProviderAuthorID: a.ORCID})
	}
	for _, l := range raw.Link {
		if strings.Contains(l.ContentType, "pdf") {
			work.OpenAccess.PDFURL = l.URL
			work.OpenAccess.IsOpen = true
			break
		}
	}
	if len(raw.License) > 0 {
		work.OpenAccess.License = raw.License[0].URL
	}
	work.FieldsOfStudy = append(work.FieldsOfStudy, raw.Subject...)
	if work.DOI != "" {
		work.ExternalIDs["doi"] = work.DOI
	}
	return work
}
