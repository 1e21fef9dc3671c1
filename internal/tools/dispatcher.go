// Package tools implements the fixed tool catalog and its dispatcher:
// argument validation, polymorphic-input normalization, calls into the core
// components, and structured result/error envelopes. Core exceptions never
// escape a dispatch.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/scholartech/scholargraph/internal/cite"
	"github.com/scholartech/scholargraph/internal/extract"
	"github.com/scholartech/scholargraph/internal/graph"
	"github.com/scholartech/scholargraph/internal/ingest"
	"github.com/scholartech/scholargraph/internal/providers"
	"github.com/scholartech/scholargraph/pkg/logging"
	"github.com/scholartech/scholargraph/pkg/scholar"
)

// ContentBlock is one text block of a tool result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallResult is the envelope returned for every tool invocation, success or
// failure.
type CallResult struct {
	Content           []ContentBlock `json:"content"`
	StructuredContent any            `json:"structuredContent,omitempty"`
	IsError           bool           `json:"isError,omitempty"`
}

// Deps collects the core components the dispatcher calls into.
type Deps struct {
	Graph   *graph.Aggregator
	Scholar *providers.GoogleScholar
	Ingest  *ingest.Engine
	Cite    *cite.Engine
}

type handler func(ctx context.Context, args Args) (any, error)

// Dispatcher routes tool calls by name.
type Dispatcher struct {
	deps     Deps
	handlers map[string]handler
	log      zerolog.Logger
}

// NewDispatcher wires the catalog to the core components.
func NewDispatcher(deps Deps) *Dispatcher {
	d := &Dispatcher{
		deps: deps,
		log:  logging.GetLogger("tools"),
	}
	d.handlers = map[string]handler{
		"search_literature_graph":         d.searchLiteratureGraph,
		"search_google_scholar_key_words": d.searchScholarKeywords,
		"search_google_scholar_advanced":  d.searchScholarAdvanced,
		"get_author_info":                 d.getAuthorInfo,
		"ingest_paper_fulltext":           d.ingestPaperFulltext,
		"get_ingestion_status":            d.getIngestionStatus,
		"extract_granular_paper_details":  d.extractGranularDetails,
		"suggest_contextual_citations":    d.suggestContextualCitations,
		"build_reference_list":            d.buildReferenceList,
		"validate_manuscript_citations":   d.validateManuscriptCitations,
	}
	return d
}

// Tools returns the advertised catalog.
func (d *Dispatcher) Tools() []Tool { return Catalog }

// Dispatch validates and executes one tool call. Errors are converted into
// error envelopes; this method never panics outward and never returns an
// error alongside a result.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args Args) (result *CallResult) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Str("tool", name).Interface("panic", r).Msg("Tool handler panicked")
			result = errorResult("internal_error", "Internal server error", nil)
		}
	}()

	h, ok := d.handlers[name]
	if !ok {
		return errorResult("validation_error", fmt.Sprintf("unknown tool %q", name), nil)
	}
	if args == nil {
		args = Args{}
	}

	payload, err := h(ctx, args)
	if err != nil {
		kind, details := classifyError(err)
		d.log.Warn().Str("tool", name).Str("kind", kind).Err(err).Msg("Tool call failed")
		return errorResult(kind, err.Error(), details)
	}
	return successResult(payload)
}

func successResult(payload any) *CallResult {
	text, err := json.Marshal(payload)
	if err != nil {
		return errorResult("internal_error", "failed to serialize tool result", nil)
	}
	return &CallResult{
		Content:           []ContentBlock{{Type: "text", Text: string(text)}},
		StructuredContent: payload,
	}
}

func errorResult(kind, message string, details any) *CallResult {
	payload := map[string]any{
		"error": map[string]any{
			"kind":    kind,
			"message": message,
		},
	}
	if details != nil {
		payload["error"].(map[string]any)["details"] = details
	}
	text, _ := json.Marshal(payload)
	return &CallResult{
		Content:           []ContentBlock{{Type: "text", Text: string(text)}},
		StructuredContent: payload,
		IsError:           true,
	}
}

func classifyError(err error) (kind string, details any) {
	var (
		validationErr *scholar.ValidationError
		notFoundErr   *scholar.NotFoundError
		ingestionErr  *scholar.IngestionError
		providerErr   *scholar.ProviderError
		blockedErr    *scholar.ScrapeBlockedError
	)
	switch {
	case errors.As(err, &validationErr):
		if validationErr.Field != "" {
			details = map[string]any{"field": validationErr.Field}
		}
		return "validation_error", details
	case errors.As(err, &notFoundErr):
		return "not_found", map[string]any{"kind": notFoundErr.Kind, "id": notFoundErr.ID}
	case errors.As(err, &ingestionErr):
		return "ingestion_error", nil
	case errors.As(err, &blockedErr):
		return "provider_error", map[string]any{"blocked": true}
	case errors.As(err, &providerErr):
		return "provider_error", map[string]any{"provider": string(providerErr.Provider)}
	default:
		return "internal_error", nil
	}
}

func (d *Dispatcher) searchLiteratureGraph(ctx context.Context, args Args) (any, error) {
	query, err := args.stringField("query", true, "")
	if err != nil {
		return nil, err
	}
	limit, err := args.intField("limit", 10, 1, 100)
	if err != nil {
		return nil, err
	}
	yearMin, yearMax, err := args.yearRangeField("year_range")
	if err != nil {
		return nil, err
	}
	fields, err := args.stringListField("fields_of_study")
	if err != nil {
		return nil, err
	}
	rawSources, err := args.stringListField("sources")
	if err != nil {
		return nil, err
	}
	sources, err := parseSources(rawSources)
	if err != nil {
		return nil, err
	}

	return d.deps.Graph.SearchGraph(ctx, graph.SearchInput{
		Query:         query,
		Limit:         limit,
		YearMin:       yearMin,
		YearMax:       yearMax,
		FieldsOfStudy: fields,
		Sources:       sources,
	})
}

func parseSources(raw []string) ([]scholar.Provider, error) {
	var sources []scholar.Provider
	for _, s := range raw {
		tag := scholar.Provider(s)
		known := false
		for _, p := range scholar.AllProviders {
			if tag == p {
				known = true
				break
			}
		}
		if !known {
			return nil, &scholar.ValidationError{Field: "sources", Message: fmt.Sprintf("unknown provider %q", s)}
		}
		sources = append(sources, tag)
	}
	return sources, nil
}

func (d *Dispatcher) searchScholarKeywords(ctx context.Context, args Args) (any, error) {
	query, err := args.stringField("query", true, "")
	if err != nil {
		return nil, err
	}
	num, err := args.intField("num_results", 5, 1, 20)
	if err != nil {
		return nil, err
	}
	start, err := args.intField("start", 0, 0, 1000)
	if err != nil {
		return nil, err
	}
	language, err := args.stringField("language", false, "en")
	if err != nil {
		return nil, err
	}
	results, err := d.deps.Scholar.SearchKeywords(ctx, query, num, start, language)
	if err != nil {
		return nil, err
	}
	return map[string]any{"query": query, "results": results, "total": len(results)}, nil
}

func (d *Dispatcher) searchScholarAdvanced(ctx context.Context, args Args) (any, error) {
	query, err := args.stringField("query", true, "")
	if err != nil {
		return nil, err
	}
	author, err := args.stringField("author", false, "")
	if err != nil {
		return nil, err
	}
	exactPhrase, err := args.stringField("exact_phrase", false, "")
	if err != nil {
		return nil, err
	}
	excludeWords, err := args.stringListField("exclude_words")
	if err != nil {
		return nil, err
	}
	titleOnly, err := args.boolField("title_only", false)
	if err != nil {
		return nil, err
	}
	yearMin, yearMax, err := args.yearRangeField("year_range")
	if err != nil {
		return nil, err
	}
	num, err := args.intField("num_results", 5, 1, 20)
	if err != nil {
		return nil, err
	}
	start, err := args.intField("start", 0, 0, 1000)
	if err != nil {
		return nil, err
	}
	language, err := args.stringField("language", false, "en")
	if err != nil {
		return nil, err
	}

	results, err := d.deps.Scholar.SearchAdvanced(ctx, providers.AdvancedQuery{
		Query:        query,
		Author:       author,
		ExactPhrase:  exactPhrase,
		ExcludeWords: excludeWords,
		TitleOnly:    titleOnly,
		YearMin:      yearMin,
		YearMax:      yearMax,
	}, num, start, language)
	if err != nil {
		return nil, err
	}
	return map[string]any{"query": query, "results": results, "total": len(results)}, nil
}

func (d *Dispatcher) getAuthorInfo(ctx context.Context, args Args) (any, error) {
	name, err := args.stringField("author_name", true, "")
	if err != nil {
		return nil, err
	}
	maxPubs, err := args.intField("max_publications", 5, 0, 100)
	if err != nil {
		return nil, err
	}
	language, err := args.stringField("language", false, "en")
	if err != nil {
		return nil, err
	}
	return d.deps.Scholar.GetAuthorInfo(ctx, name, maxPubs, language)
}

func (d *Dispatcher) ingestPaperFulltext(ctx context.Context, args Args) (any, error) {
	doi, err := args.stringField("doi", false, "")
	if err != nil {
		return nil, err
	}
	paperURL, err := args.stringField("paper_url", false, "")
	if err != nil {
		return nil, err
	}
	pdfURL, err := args.stringField("pdf_url", false, "")
	if err != nil {
		return nil, err
	}
	localPath, err := args.stringField("local_pdf_path", false, "")
	if err != nil {
		return nil, err
	}
	parseMode, err := args.stringField("parse_mode", false, "auto")
	if err != nil {
		return nil, err
	}
	switch parseMode {
	case "auto", "structured", "simple":
	default:
		return nil, &scholar.ValidationError{Field: "parse_mode", Message: "must be one of auto, structured, simple"}
	}
	ocrEnabled, err := args.boolField("ocr_enabled", true)
	if err != nil {
		return nil, err
	}

	job, err := d.deps.Ingest.Enqueue(scholar.IngestionSource{
		DOI:          doi,
		PaperURL:     paperURL,
		PDFURL:       pdfURL,
		LocalPDFPath: localPath,
		ParseMode:    parseMode,
		OCREnabled:   ocrEnabled,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"job_id":      job.JobID,
		"document_id": job.DocumentID,
		"status":      job.Status,
	}, nil
}

func (d *Dispatcher) getIngestionStatus(ctx context.Context, args Args) (any, error) {
	jobID, err := args.stringField("job_id", true, "")
	if err != nil {
		return nil, err
	}
	job, err := d.deps.Ingest.GetJob(jobID)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{"job": job}
	if job.Status == scholar.JobSucceeded {
		if doc, err := d.deps.Ingest.GetDocument(job.DocumentID); err == nil {
			payload["document_summary"] = documentSummary(doc)
		}
	}
	return payload, nil
}

// documentSummary is the compact shape attached to a succeeded status
// response.
func documentSummary(doc *scholar.ParsedDocument) map[string]any {
	abstract := doc.Abstract
	if len(abstract) > 500 {
		abstract = abstract[:500]
	}
	return map[string]any{
		"document_id":     doc.DocumentID,
		"title":           doc.Title,
		"abstract":        abstract,
		"section_count":   len(doc.Sections),
		"reference_count": len(doc.References),
		"parser":          doc.Parser,
	}
}

func (d *Dispatcher) extractGranularDetails(ctx context.Context, args Args) (any, error) {
	documentID, err := args.stringField("document_id", true, "")
	if err != nil {
		return nil, err
	}
	sections, err := args.stringListField("sections")
	if err != nil {
		return nil, err
	}
	includeRefs, err := args.boolField("include_references", true)
	if err != nil {
		return nil, err
	}

	doc, err := d.deps.Ingest.GetDocument(documentID)
	if err != nil {
		return nil, err
	}
	return extract.Extract(doc, extract.Request{
		Sections:          sections,
		IncludeReferences: includeRefs,
	}), nil
}

func (d *Dispatcher) suggestContextualCitations(ctx context.Context, args Args) (any, error) {
	manuscript, err := args.stringField("manuscript_text", true, "")
	if err != nil {
		return nil, err
	}
	cursorContext, err := args.stringField("cursor_context", false, "")
	if err != nil {
		return nil, err
	}
	style, err := args.stringField("style", false, "apa")
	if err != nil {
		return nil, err
	}
	if !cite.ValidStyle(cite.Style(style)) {
		return nil, &scholar.ValidationError{Field: "style", Message: fmt.Sprintf("unsupported style %q", style)}
	}
	k, err := args.intField("k", 10, 1, 30)
	if err != nil {
		return nil, err
	}
	recencyBias, err := args.floatField("recency_bias", 0.5, 0, 1)
	if err != nil {
		return nil, err
	}

	return d.deps.Cite.Suggest(ctx, cite.SuggestInput{
		ManuscriptText: manuscript,
		CursorContext:  cursorContext,
		Style:          cite.Style(style),
		K:              k,
		RecencyBias:    recencyBias,
	})
}

func (d *Dispatcher) buildReferenceList(ctx context.Context, args Args) (any, error) {
	style, err := args.stringField("style", false, "apa")
	if err != nil {
		return nil, err
	}
	locale, err := args.stringField("locale", false, "en-US")
	if err != nil {
		return nil, err
	}
	manuscript, err := args.stringField("manuscript_text", false, "")
	if err != nil {
		return nil, err
	}

	var works []*scholar.CanonicalWork
	if raw, ok := args["works"]; ok && raw != nil {
		if err := decodeField(raw, &works); err != nil {
			return nil, &scholar.ValidationError{Field: "works", Message: "expected a list of canonical work objects"}
		}
	}
	if len(works) == 0 && manuscript == "" {
		return nil, &scholar.ValidationError{Message: "either works or manuscript_text is required"}
	}

	return d.deps.Cite.BuildList(ctx, cite.ListInput{
		Style:          cite.Style(style),
		Locale:         locale,
		ManuscriptText: manuscript,
		Works:          works,
	})
}

func (d *Dispatcher) validateManuscriptCitations(ctx context.Context, args Args) (any, error) {
	manuscript, err := args.stringField("manuscript_text", true, "")
	if err != nil {
		return nil, err
	}
	style, err := args.stringField("style", false, "")
	if err != nil {
		return nil, err
	}
	if style != "" && !cite.ValidStyle(cite.Style(style)) {
		return nil, &scholar.ValidationError{Field: "style", Message: fmt.Sprintf("unsupported style %q", style)}
	}

	raw, ok := args["references"]
	if !ok || raw == nil {
		return nil, &scholar.ValidationError{Field: "references", Message: "required argument missing"}
	}
	var references []cite.ReferenceInput
	if err := decodeField(raw, &references); err != nil {
		return nil, &scholar.ValidationError{Field: "references", Message: "expected a list of {id?, formatted, bibtex?} objects"}
	}
	for i, ref := range references {
		if ref.Formatted == "" {
			return nil, &scholar.ValidationError{Field: "references", Message: fmt.Sprintf("entry %d is missing formatted text", i+1)}
		}
	}

	return cite.Validate(manuscript, references, cite.ValidateOptions{
		ExpectedStyle: cite.Style(style),
	}), nil
}
