package ingest

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/scholartech/scholargraph/internal/fetch"
	"github.com/scholartech/scholargraph/pkg/scholar"
)

var pdfMagic = []byte("%PDF")

const noPDFURLMessage = "Unable to resolve a downloadable PDF URL from input."

// resolveAndAcquire turns an ingestion source into a readable local PDF path.
// Local paths are used in place; remote candidates are tried in priority
// order until one downloads and validates. cleanup is non-nil only for
// downloaded files and removes the temp file.
func (e *Engine) resolveAndAcquire(ctx context.Context, source scholar.IngestionSource) (path string, license scholar.LicenseState, provenance []scholar.ProvenanceRecord, cleanup func(), err error) {
	if source.LocalPDFPath != "" {
		if !e.opts.AllowLocalPDFs {
			return "", scholar.LicenseUnknown, nil, nil, &scholar.IngestionError{Message: "Local PDF ingestion is disabled."}
		}
		abs, err := filepath.Abs(source.LocalPDFPath)
		if err != nil {
			return "", scholar.LicenseUnknown, nil, nil, err
		}
		if _, err := os.Stat(abs); err != nil {
			return "", scholar.LicenseUnknown, nil, nil, &scholar.IngestionError{Message: fmt.Sprintf("Local PDF is not readable: %v", err)}
		}
		provenance = append(provenance, scholar.ProvenanceRecord{
			Provider:   "ingestion",
			SourceURL:  "file://" + abs,
			FetchedAt:  time.Now().UTC(),
			Confidence: 1,
		})
		return abs, scholar.LicenseUserProvided, provenance, nil, nil
	}

	if !e.opts.AllowRemotePDFs {
		return "", scholar.LicenseUnknown, nil, nil, &scholar.IngestionError{Message: "Remote PDF ingestion is disabled."}
	}

	candidates := e.pdfCandidates(ctx, source)
	if len(candidates) == 0 {
		return "", scholar.LicenseUnknown, nil, nil, &scholar.IngestionError{Message: noPDFURLMessage}
	}

	var lastErr error
	for _, candidate := range candidates {
		localPath, cleanupFn, err := e.download(ctx, candidate)
		if err != nil {
			lastErr = err
			e.log.Debug().Str("url", candidate).Err(err).Msg("PDF candidate rejected")
			continue
		}
		provenance = append(provenance, scholar.ProvenanceRecord{
			Provider:   "ingestion",
			SourceURL:  candidate,
			FetchedAt:  time.Now().UTC(),
			Confidence: 1,
		})
		// Remote acquisition only downloads openly reachable PDFs.
		return localPath, scholar.LicenseOpenAccess, provenance, cleanupFn, nil
	}
	return "", scholar.LicenseUnknown, nil, nil, &scholar.IngestionError{
		Message: noPDFURLMessage,
		Err:     lastErr,
	}
}

// pdfCandidates builds the ordered candidate list: explicit pdfUrl, the
// catalog open-access link for a DOI, landing URLs that already end in .pdf,
// then landing-page discovery.
func (e *Engine) pdfCandidates(ctx context.Context, source scholar.IngestionSource) []string {
	var candidates []string
	seen := make(map[string]bool)
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u != "" && !seen[u] {
			seen[u] = true
			candidates = append(candidates, u)
		}
	}

	add(source.PDFURL)

	var landingURLs []string
	if source.PaperURL != "" {
		landingURLs = append(landingURLs, source.PaperURL)
	}

	if source.DOI != "" && e.graph != nil {
		canonical, err := e.graph.ResolveByDOI(ctx, source.DOI)
		if err != nil {
			e.log.Warn().Str("doi", source.DOI).Err(err).Msg("DOI resolution failed during ingestion")
		} else if canonical != nil {
			if canonical.OpenAccess.PDFURL != "" {
				add(canonical.OpenAccess.PDFURL)
			}
			if canonical.URL != "" {
				landingURLs = append(landingURLs, canonical.URL)
			}
		}
	}

	for _, landing := range landingURLs {
		if looksLikePDFURL(landing) {
			add(landing)
			continue
		}
		for _, discovered := range e.discoverFromLanding(ctx, landing) {
			add(discovered)
		}
	}
	return candidates
}

// discoverFromLanding fetches an HTML landing page and scans it for PDF
// pointers, resolving relative links against the final URL after redirects.
func (e *Engine) discoverFromLanding(ctx context.Context, landingURL string) []string {
	res, err := e.client.Fetch(ctx, fetch.Request{URL: landingURL})
	if err != nil {
		e.log.Debug().Str("url", landingURL).Err(err).Msg("Landing page fetch failed")
		return nil
	}
	if bytes.HasPrefix(res.Body, pdfMagic) {
		// The landing URL itself served a PDF.
		return []string{res.FinalURL}
	}

	base, err := url.Parse(res.FinalURL)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil
	}

	var found []string
	resolve := func(ref string) {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			return
		}
		u, err := url.Parse(ref)
		if err != nil {
			return
		}
		found = append(found, base.ResolveReference(u).String())
	}

	if v, ok := doc.Find(`meta[name="citation_pdf_url"]`).Attr("content"); ok {
		resolve(v)
	}
	if v, ok := doc.Find(`meta[property="og:pdf"]`).Attr("content"); ok {
		resolve(v)
	}
	if v, ok := doc.Find(`link[type="application/pdf"]`).Attr("href"); ok {
		resolve(v)
	}
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if looksLikePDFURL(href) {
			resolve(href)
			return false
		}
		return true
	})
	return found
}

// download fetches a candidate and validates that the payload is a PDF by
// content type or the %PDF magic prefix.
func (e *Engine) download(ctx context.Context, pdfURL string) (string, func(), error) {
	res, err := e.client.Download(ctx, fetch.Request{URL: pdfURL})
	if err != nil {
		return "", nil, err
	}
	isPDF := strings.Contains(strings.ToLower(res.ContentType), "application/pdf") ||
		bytes.HasPrefix(res.Body, pdfMagic)
	if !isPDF {
		return "", nil, fmt.Errorf("downloaded content from %s is not a PDF (content type %q)", pdfURL, res.ContentType)
	}

	f, err := os.CreateTemp("", "scholargraph-*.pdf")
	if err != nil {
		return "", nil, err
	}
	if _, err := f.Write(res.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, err
	}
	name := f.Name()
	return name, func() { os.Remove(name) }, nil
}

func looksLikePDFURL(u string) bool {
	trimmed := u
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return strings.HasSuffix(strings.ToLower(trimmed), ".pdf")
}
