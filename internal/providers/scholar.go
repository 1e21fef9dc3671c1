package providers

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/scholartech/scholargraph/internal/fetch"
	"github.com/scholartech/scholargraph/pkg/logging"
	"github.com/scholartech/scholargraph/pkg/scholar"
)

var (
	citedByRe     = regexp.MustCompile(`Cited by (\d+)`)
	titleMarkerRe = regexp.MustCompile(`^\[[A-Z]+\]\s*`)
)

// GoogleScholar scrapes result pages with goquery. It never authenticates
// and treats challenge interstitials as a blocked scrape, not a soft miss.
type GoogleScholar struct {
	baseURL string
	client  *fetch.Client
	log     zerolog.Logger
}

// NewGoogleScholar creates the scraping adapter.
func NewGoogleScholar(baseURL string, client *fetch.Client) *GoogleScholar {
	return &GoogleScholar{
		baseURL: baseURL,
		client:  client,
		log:     logging.GetProviderLogger(string(scholar.ProviderGoogleScholar)),
	}
}

// Tag implements SearchProvider.
func (g *GoogleScholar) Tag() scholar.Provider { return scholar.ProviderGoogleScholar }

// ScholarResult is one scraped organic result, used by the keyword and
// advanced search tools.
type ScholarResult struct {
	Title     string `json:"title"`
	URL       string `json:"url,omitempty"`
	Snippet   string `json:"snippet,omitempty"`
	ByLine    string `json:"byline,omitempty"`
	Year      int    `json:"year,omitempty"`
	CitedBy   int    `json:"citedBy"`
	PDFURL    string `json:"pdfUrl,omitempty"`
	DOI       string `json:"doi,omitempty"`
	Authors   string `json:"authors,omitempty"`
	Position  int    `json:"position"`
}

// AuthorPublication is one row of an author profile's publication table.
type AuthorPublication struct {
	Title   string `json:"title"`
	Venue   string `json:"venue,omitempty"`
	Year    int    `json:"year,omitempty"`
	CitedBy int    `json:"citedBy"`
}

// AuthorInfo is a scraped author profile.
type AuthorInfo struct {
	Name         string              `json:"name"`
	Affiliation  string              `json:"affiliation,omitempty"`
	Interests    []string            `json:"interests,omitempty"`
	CitedBy      int                 `json:"citedBy"`
	HIndex       int                 `json:"hIndex"`
	I10Index     int                 `json:"i10Index"`
	ProfileURL   string              `json:"profileUrl,omitempty"`
	Publications []AuthorPublication `json:"publications,omitempty"`
}

// AdvancedQuery carries the advanced-search tool's refinements.
type AdvancedQuery struct {
	Query        string
	Author       string
	ExactPhrase  string
	ExcludeWords []string
	TitleOnly    bool
	YearMin      int
	YearMax      int
}

// SearchWorks implements SearchProvider by scraping one result page and
// mapping rows onto ProviderWork.
func (g *GoogleScholar) SearchWorks(ctx context.Context, query string, limit int) ([]scholar.ProviderWork, error) {
	results, err := g.SearchKeywords(ctx, query, limit, 0, "en")
	if err != nil {
		return nil, err
	}
	works := make([]scholar.ProviderWork, 0, len(results))
	for i, r := range results {
		work := scholar.ProviderWork{
			Provider:      scholar.ProviderGoogleScholar,
			ProviderID:    fmt.Sprintf("gs-%d-%s", i, scholar.NormalizeTitle(r.Title)),
			Title:         fallbackTitle(r.Title),
			Abstract:      r.Snippet,
			Year:          r.Year,
			URL:           r.URL,
			DOI:           r.DOI,
			CitationCount: r.CitedBy,
			Relevance:     defaultRelevanceScholar,
			SourceURL:     g.baseURL,
			ExternalIDs:   map[string]string{},
		}
		for _, name := range splitByLineAuthors(r.Authors) {
			work.Authors = append(work.Authors, scholar.Author{Name: name})
		}
		if r.PDFURL != "" {
			work.OpenAccess.IsOpen = true
			work.OpenAccess.PDFURL = r.PDFURL
		}
		works = append(works, work)
	}
	return works, nil
}

// SearchKeywords scrapes the plain keyword search page.
func (g *GoogleScholar) SearchKeywords(ctx context.Context, query string, num, start int, language string) ([]ScholarResult, error) {
	if num <= 0 {
		num = 5
	}
	endpoint := fmt.Sprintf("%s/scholar?q=%s&num=%d&start=%d&hl=%s",
		g.baseURL, url.QueryEscape(query), num, start, url.QueryEscape(language))
	doc, err := g.fetchPage(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return g.parseResults(doc, num), nil
}

// SearchAdvanced builds the refined query string and scrapes it.
func (g *GoogleScholar) SearchAdvanced(ctx context.Context, q AdvancedQuery, num, start int, language string) ([]ScholarResult, error) {
	var parts []string
	if q.Query != "" {
		parts = append(parts, q.Query)
	}
	if q.ExactPhrase != "" {
		parts = append(parts, fmt.Sprintf("%q", q.ExactPhrase))
	}
	if q.Author != "" {
		parts = append(parts, fmt.Sprintf(`author:%q`, q.Author))
	}
	for _, w := range q.ExcludeWords {
		if w != "" {
			parts = append(parts, "-"+w)
		}
	}
	combined := strings.Join(parts, " ")
	if q.TitleOnly && combined != "" {
		combined = "intitle:" + combined
	}
	if num <= 0 {
		num = 5
	}

	endpoint := fmt.Sprintf("%s/scholar?q=%s&num=%d&start=%d&hl=%s",
		g.baseURL, url.QueryEscape(combined), num, start, url.QueryEscape(language))
	if q.YearMin > 0 {
		endpoint += fmt.Sprintf("&as_ylo=%d", q.YearMin)
	}
	if q.YearMax > 0 {
		endpoint += fmt.Sprintf("&as_yhi=%d", q.YearMax)
	}
	doc, err := g.fetchPage(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return g.parseResults(doc, num), nil
}

// GetAuthorInfo resolves an author profile and scrapes its publication table.
func (g *GoogleScholar) GetAuthorInfo(ctx context.Context, name string, maxPublications int, language string) (*AuthorInfo, error) {
	searchURL := fmt.Sprintf("%s/citations?view_op=search_authors&mauthors=%s&hl=%s",
		g.baseURL, url.QueryEscape(name), url.QueryEscape(language))
	doc, err := g.fetchPage(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	profileHref, ok := doc.Find("h3.gs_ai_name a").First().Attr("href")
	if !ok {
		return nil, &scholar.NotFoundError{Kind: "author", ID: name}
	}
	profileURL := g.baseURL + profileHref
	profile, err := g.fetchPage(ctx, profileURL)
	if err != nil {
		return nil, err
	}

	info := &AuthorInfo{
		Name:        scholar.NormalizeWhitespace(profile.Find("#gsc_prf_in").Text()),
		Affiliation: scholar.NormalizeWhitespace(profile.Find(".gsc_prf_il").First().Text()),
		ProfileURL:  profileURL,
	}
	profile.Find("#gsc_prf_int a").Each(func(_ int, s *goquery.Selection) {
		info.Interests = append(info.Interests, strings.TrimSpace(s.Text()))
	})

	// The stats table rows are: citations, h-index, i10-index.
	stats := profile.Find("td.gsc_rsb_std")
	if stats.Length() >= 5 {
		info.CitedBy = atoiSafe(stats.Eq(0).Text())
		info.HIndex = atoiSafe(stats.Eq(2).Text())
		info.I10Index = atoiSafe(stats.Eq(4).Text())
	}

	profile.Find("tr.gsc_a_tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		if maxPublications > 0 && i >= maxPublications {
			return false
		}
		pub := AuthorPublication{
			Title:   scholar.NormalizeWhitespace(row.Find("td.gsc_a_t a").Text()),
			Venue:   scholar.NormalizeWhitespace(row.Find("td.gsc_a_t div.gs_gray").Last().Text()),
			Year:    atoiSafe(row.Find("td.gsc_a_y").Text()),
			CitedBy: atoiSafe(row.Find("td.gsc_a_c a").Text()),
		}
		if pub.Title != "" {
			info.Publications = append(info.Publications, pub)
		}
		return true
	})

	return info, nil
}

func (g *GoogleScholar) fetchPage(ctx context.Context, endpoint string) (*goquery.Document, error) {
	res, err := g.client.Fetch(ctx, fetch.Request{URL: endpoint, Provider: scholar.ProviderGoogleScholar})
	if err != nil {
		return nil, err
	}
	if blocked(res.Body) {
		g.log.Warn().Str("url", endpoint).Msg("Scrape blocked by challenge page")
		return nil, &scholar.ProviderError{
			Provider: scholar.ProviderGoogleScholar,
			URL:      endpoint,
			Err:      &scholar.ScrapeBlockedError{URL: endpoint},
		}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, &scholar.ProviderError{Provider: scholar.ProviderGoogleScholar, URL: endpoint, Err: err}
	}
	return doc, nil
}

// blocked detects anti-automation challenge pages.
func blocked(body []byte) bool {
	lower := bytes.ToLower(body)
	return bytes.Contains(lower, []byte("gs_captcha")) ||
		bytes.Contains(lower, []byte("unusual traffic")) ||
		bytes.Contains(lower, []byte("id=\"recaptcha\""))
}

func (g *GoogleScholar) parseResults(doc *goquery.Document, limit int) []ScholarResult {
	var results []ScholarResult
	rows := doc.Find("div.gs_r.gs_or.gs_scl")
	if rows.Length() == 0 {
		rows = doc.Find("div.gs_ri")
	}
	rows.EachWithBreak(func(i int, s *goquery.Selection) bool {
		if limit > 0 && len(results) >= limit {
			return false
		}
		titleSel := s.Find("h3.gs_rt")
		title := scholar.NormalizeWhitespace(titleSel.Text())
		// Strip the [PDF]/[HTML]/[BOOK] availability markers.
		title = strings.TrimSpace(titleMarkerRe.ReplaceAllString(title, ""))
		if title == "" {
			return true
		}
		link, _ := titleSel.Find("a").First().Attr("href")
		byline := scholar.NormalizeWhitespace(s.Find("div.gs_a").First().Text())
		snippet := scholar.NormalizeWhitespace(s.Find("div.gs_rs").First().Text())

		r := ScholarResult{
			Title:    title,
			URL:      link,
			Snippet:  snippet,
			ByLine:   byline,
			Authors:  authorsFromByLine(byline),
			Year:     scholar.ParseYearString(byline),
			DOI:      scholar.NormalizeDOI(scholar.DOIPattern.FindString(link)),
			Position: len(results),
		}
		if m := citedByRe.FindStringSubmatch(s.Find("div.gs_fl").Text()); len(m) == 2 {
			r.CitedBy = atoiSafe(m[1])
		}
		if pdf, ok := s.Closest("div.gs_r").Find("div.gs_or_ggsm a").First().Attr("href"); ok {
			r.PDFURL = pdf
		}
		results = append(results, r)
		return true
	})
	return results
}

// authorsFromByLine keeps only the author segment of the "A, B - venue, year
// - publisher" byline.
func authorsFromByLine(byline string) string {
	if idx := strings.Index(byline, " - "); idx >= 0 {
		return strings.TrimSpace(byline[:idx])
	}
	return strings.TrimSpace(byline)
}

func splitByLineAuthors(authors string) []string {
	var out []string
	for _, a := range strings.Split(authors, ",") {
		a = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(a), "…"))
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func atoiSafe(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
