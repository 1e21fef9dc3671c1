// Package scholar defines the shared data model for the ScholarGraph engine:
// per-provider records, merged canonical works, ingestion jobs, parsed
// documents and citation entries. All cross-package communication happens
// through these types; components own their tables and hand out copies.
package scholar

import (
	"time"
)

// Provider identifies one of the upstream scholarly catalogs.
type Provider string

const (
	ProviderOpenAlex        Provider = "openalex"
	ProviderCrossref        Provider = "crossref"
	ProviderSemanticScholar Provider = "semanticscholar"
	ProviderGoogleScholar   Provider = "googlescholar"
)

// AllProviders lists every registered provider tag in fan-out order.
var AllProviders = []Provider{
	ProviderOpenAlex,
	ProviderCrossref,
	ProviderSemanticScholar,
	ProviderGoogleScholar,
}

// Author is a single contributor as reported by a provider.
type Author struct {
	Name             string `json:"name"`
	ProviderAuthorID string `json:"providerAuthorId,omitempty"`
}

// OpenAccess describes the open-access state of a work.
type OpenAccess struct {
	IsOpen  bool   `json:"isOpen"`
	PDFURL  string `json:"pdfUrl,omitempty"`
	License string `json:"license,omitempty"`
}

// ProviderWork is a raw per-provider record after adapter normalization.
// Title is never empty ("Untitled" fallback); DOI is lowercased with the
// doi.org prefix stripped. Year 0 means unknown.
type ProviderWork struct {
	Provider                 Provider          `json:"provider"`
	ProviderID               string            `json:"providerId"`
	Title                    string            `json:"title"`
	Abstract                 string            `json:"abstract,omitempty"`
	Year                     int               `json:"year,omitempty"`
	Venue                    string            `json:"venue,omitempty"`
	DOI                      string            `json:"doi,omitempty"`
	URL                      string            `json:"url,omitempty"`
	CitationCount            int               `json:"citationCount"`
	InfluentialCitationCount int               `json:"influentialCitationCount"`
	ReferenceCount           int               `json:"referenceCount"`
	Authors                  []Author          `json:"authors"`
	OpenAccess               OpenAccess        `json:"openAccess"`
	ExternalIDs              map[string]string `json:"externalIds,omitempty"`
	FieldsOfStudy            []string          `json:"fieldsOfStudy,omitempty"`
	Relevance                float64           `json:"relevance"`
	SourceURL                string            `json:"sourceUrl,omitempty"`
}

// ProvenanceRecord is one append-only entry per contributing provider.
type ProvenanceRecord struct {
	Provider   Provider  `json:"provider"`
	SourceURL  string    `json:"sourceUrl,omitempty"`
	FetchedAt  time.Time `json:"fetchedAt"`
	Confidence float64   `json:"confidence"`
}

// CanonicalWork is the merged cross-provider representation of a single
// publication. Identity is the DOI when present, otherwise (normalized
// title, year).
type CanonicalWork struct {
	PaperID                  string             `json:"paperId"`
	Title                    string             `json:"title"`
	Abstract                 string             `json:"abstract,omitempty"`
	Year                     int                `json:"year,omitempty"`
	Venue                    string             `json:"venue,omitempty"`
	DOI                      string             `json:"doi,omitempty"`
	URL                      string             `json:"url,omitempty"`
	CitationCount            int                `json:"citationCount"`
	InfluentialCitationCount int                `json:"influentialCitationCount"`
	ReferenceCount           int                `json:"referenceCount"`
	Authors                  []Author           `json:"authors"`
	OpenAccess               OpenAccess         `json:"openAccess"`
	ExternalIDs              map[string]string  `json:"externalIds,omitempty"`
	FieldsOfStudy            []string           `json:"fieldsOfStudy,omitempty"`
	Score                    float64            `json:"score"`
	BlendedScore             float64            `json:"blendedScore"`
	Provenance               []ProvenanceRecord `json:"provenance"`
}

// Clone returns a deep copy so cached entries stay immutable under caller
// mutation.
func (w *CanonicalWork) Clone() *CanonicalWork {
	out := *w
	out.Authors = append([]Author(nil), w.Authors...)
	out.FieldsOfStudy = append([]string(nil), w.FieldsOfStudy...)
	out.Provenance = append([]ProvenanceRecord(nil), w.Provenance...)
	if w.ExternalIDs != nil {
		out.ExternalIDs = make(map[string]string, len(w.ExternalIDs))
		for k, v := range w.ExternalIDs {
			out.ExternalIDs[k] = v
		}
	}
	return &out
}

// ProviderFailure records a recovered per-provider error during fan-out.
type ProviderFailure struct {
	Provider Provider `json:"provider"`
	Message  string   `json:"message"`
}

// SearchResult is the aggregator's ranked answer to one search call.
type SearchResult struct {
	Query          string            `json:"query"`
	Results        []*CanonicalWork  `json:"results"`
	Total          int               `json:"total"`
	ProviderErrors []ProviderFailure `json:"providerErrors,omitempty"`
	CacheHit       bool              `json:"cacheHit"`
}

// Clone deep-copies the search result for cache round-trips.
func (r *SearchResult) Clone() *SearchResult {
	out := *r
	out.Results = make([]*CanonicalWork, len(r.Results))
	for i, w := range r.Results {
		out.Results[i] = w.Clone()
	}
	out.ProviderErrors = append([]ProviderFailure(nil), r.ProviderErrors...)
	return &out
}

// JobStatus is the ingestion job state machine's state. Transitions are
// monotonically forward: queued -> running -> succeeded | failed.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether a status can never change again.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// LicenseState tracks how the engine came to hold a PDF.
type LicenseState string

const (
	LicenseUnknown      LicenseState = "unknown"
	LicenseOpenAccess   LicenseState = "open_access"
	LicenseUserProvided LicenseState = "user_provided"
)

// IngestionSource holds the caller-supplied seeds for one ingestion request.
type IngestionSource struct {
	DOI          string `json:"doi,omitempty"`
	PaperURL     string `json:"paperUrl,omitempty"`
	PDFURL       string `json:"pdfUrl,omitempty"`
	LocalPDFPath string `json:"localPdfPath,omitempty"`
	ParseMode    string `json:"parseMode,omitempty"`
	OCREnabled   bool   `json:"ocrEnabled,omitempty"`
}

// Empty reports whether no source seed was supplied.
func (s IngestionSource) Empty() bool {
	return s.DOI == "" && s.PaperURL == "" && s.PDFURL == "" && s.LocalPDFPath == ""
}

// IngestionJob is the persistent (process-lifetime) record of one ingestion.
type IngestionJob struct {
	JobID            string             `json:"jobId"`
	DocumentID       string             `json:"documentId"`
	Status           JobStatus          `json:"status"`
	CreatedAt        time.Time          `json:"createdAt"`
	StartedAt        *time.Time         `json:"startedAt,omitempty"`
	CompletedAt      *time.Time         `json:"completedAt,omitempty"`
	Source           IngestionSource    `json:"source"`
	ParserName       string             `json:"parserName,omitempty"`
	ParserConfidence float64            `json:"parserConfidence,omitempty"`
	LicenseState     LicenseState       `json:"licenseState"`
	Error            string             `json:"error,omitempty"`
	Warnings         []string           `json:"warnings,omitempty"`
	Provenance       []ProvenanceRecord `json:"provenance,omitempty"`
}

// Clone copies a job so table reads never alias engine-owned state.
func (j *IngestionJob) Clone() *IngestionJob {
	out := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	out.Warnings = append([]string(nil), j.Warnings...)
	out.Provenance = append([]ProvenanceRecord(nil), j.Provenance...)
	return &out
}

// ParserInfo describes the parse strategy that produced a document.
type ParserInfo struct {
	Name       string  `json:"name"`
	Version    string  `json:"version"`
	Confidence float64 `json:"confidence"`
}

// SectionChunk is one contiguous, heading-labelled slice of a document.
type SectionChunk struct {
	ID        string `json:"id"`
	Heading   string `json:"heading"`
	Text      string `json:"text"`
	PageStart int    `json:"pageStart,omitempty"`
	PageEnd   int    `json:"pageEnd,omitempty"`
}

// ParsedReference is one bibliography entry recovered from a document.
type ParsedReference struct {
	RawText string   `json:"rawText"`
	DOI     string   `json:"doi,omitempty"`
	Title   string   `json:"title,omitempty"`
	Year    int      `json:"year,omitempty"`
	Authors []string `json:"authors,omitempty"`
}

// ParsedDocument is the stored result of a successful ingestion.
type ParsedDocument struct {
	DocumentID string             `json:"documentId"`
	Source     IngestionSource    `json:"source"`
	Parser     ParserInfo         `json:"parser"`
	Title      string             `json:"title,omitempty"`
	Abstract   string             `json:"abstract,omitempty"`
	FullText   string             `json:"fullText"`
	Sections   []SectionChunk     `json:"sections"`
	References []ParsedReference  `json:"references"`
	Tables     []string           `json:"tables,omitempty"`
	Equations  []string           `json:"equations,omitempty"`
	Figures    []string           `json:"figures,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
	Provenance []ProvenanceRecord `json:"provenance,omitempty"`
}

// CommonStyleEntry is the style-neutral bibliographic record handed to the
// style adapter (a CSL-like shape).
type CommonStyleEntry struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"`
	Title          string   `json:"title"`
	Authors        []Author `json:"authors"`
	Year           int      `json:"year,omitempty"`
	ContainerTitle string   `json:"containerTitle,omitempty"`
	DOI            string   `json:"doi,omitempty"`
	URL            string   `json:"url,omitempty"`
}

// ReferenceEntry is one bibliographic entry materialized in a requested style.
type ReferenceEntry struct {
	ID               string           `json:"id"`
	Entry            CommonStyleEntry `json:"commonStyleObject"`
	FormattedText    string           `json:"formattedText"`
	StructuredExport string           `json:"structuredExport"`
	SourceWork       *CanonicalWork   `json:"sourceWork,omitempty"`
}

// CitationCandidate is one scored suggestion from the citation engine.
type CitationCandidate struct {
	Work           *CanonicalWork `json:"work"`
	RelevanceScore float64        `json:"relevanceScore"`
	Rationale      string         `json:"rationale"`
	MatchedContext string         `json:"matchedContext"`
}

// ExtractedFinding is one classified sentence from a parsed document.
type ExtractedFinding struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	SectionID  string  `json:"sectionId"`
}

// GranularPaperDetails is the extraction service's output.
type GranularPaperDetails struct {
	DocumentID  string             `json:"documentId"`
	Claims      []ExtractedFinding `json:"claims"`
	Methods     []ExtractedFinding `json:"methods"`
	Limitations []ExtractedFinding `json:"limitations"`
	Datasets    []string           `json:"datasets"`
	Metrics     []string           `json:"metrics"`
	References  []ParsedReference  `json:"references,omitempty"`
}
