package tools

// Tool describes one catalog entry as advertised to clients.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

func obj(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func strEnum(description string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": description, "enum": values}
}

func integer(description string, fallback int) map[string]any {
	return map[string]any{"type": "integer", "description": description, "default": fallback}
}

func number(description string, fallback float64) map[string]any {
	return map[string]any{"type": "number", "description": description, "default": fallback}
}

func boolean(description string, fallback bool) map[string]any {
	return map[string]any{"type": "boolean", "description": description, "default": fallback}
}

func strList(description string) map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": description}
}

var yearRangeSchema = map[string]any{
	"description": "Publication year range, either [start, end] or {start, end}",
	"oneOf": []any{
		map[string]any{"type": "array", "items": map[string]any{"type": "integer"}, "minItems": 2, "maxItems": 2},
		obj(map[string]any{
			"start": map[string]any{"type": "integer"},
			"end":   map[string]any{"type": "integer"},
		}),
	},
}

// Catalog is the fixed tool list. Names and argument keys are contract.
var Catalog = []Tool{
	{
		Name:        "search_literature_graph",
		Description: "Federated literature search across scholarly catalogs with deduplication and blended ranking.",
		InputSchema: obj(map[string]any{
			"query":           str("Free-text search query"),
			"year_range":      yearRangeSchema,
			"fields_of_study": strList("Restrict results to these fields of study"),
			"limit":           integer("Maximum number of canonical works to return", 10),
			"sources":         strList("Provider subset: openalex, crossref, semanticscholar, googlescholar"),
		}, "query"),
	},
	{
		Name:        "search_google_scholar_key_words",
		Description: "Keyword search against Google Scholar result pages.",
		InputSchema: obj(map[string]any{
			"query":       str("Keyword query"),
			"num_results": integer("Number of results", 5),
			"start":       integer("Result offset for pagination", 0),
			"language":    str("Interface language code"),
		}, "query"),
	},
	{
		Name:        "search_google_scholar_advanced",
		Description: "Google Scholar search with author, phrase, exclusion and year refinements.",
		InputSchema: obj(map[string]any{
			"query":         str("Base query"),
			"author":        str("Restrict to an author name"),
			"year_range":    yearRangeSchema,
			"exact_phrase":  str("Phrase that must appear verbatim"),
			"exclude_words": strList("Words to exclude"),
			"title_only":    boolean("Match the title only", false),
			"num_results":   integer("Number of results", 5),
			"start":         integer("Result offset for pagination", 0),
			"language":      str("Interface language code"),
		}, "query"),
	},
	{
		Name:        "get_author_info",
		Description: "Scrape a Google Scholar author profile: affiliation, citation stats and top publications.",
		InputSchema: obj(map[string]any{
			"author_name":      str("Author display name to look up"),
			"max_publications": integer("Maximum publications to include", 5),
			"language":         str("Interface language code"),
		}, "author_name"),
	},
	{
		Name:        "ingest_paper_fulltext",
		Description: "Queue asynchronous full-text ingestion of a paper from a DOI, landing page, PDF URL or local file.",
		InputSchema: obj(map[string]any{
			"doi":            str("DOI of the paper"),
			"paper_url":      str("Landing page URL"),
			"pdf_url":        str("Direct PDF URL"),
			"local_pdf_path": str("Path to a local PDF file"),
			"parse_mode":     strEnum("Parser selection", "auto", "structured", "simple"),
			"ocr_enabled":    boolean("Reserved for future OCR parse modes", true),
		}),
	},
	{
		Name:        "get_ingestion_status",
		Description: "Report the state of an ingestion job; includes a document summary once succeeded.",
		InputSchema: obj(map[string]any{
			"job_id": str("Job identifier returned by ingest_paper_fulltext"),
		}, "job_id"),
	},
	{
		Name:        "extract_granular_paper_details",
		Description: "Extract claims, methods, limitations, datasets and metrics from an ingested document.",
		InputSchema: obj(map[string]any{
			"document_id":        str("Document identifier"),
			"sections":           strList("Restrict extraction to sections whose heading contains any of these names"),
			"include_references": boolean("Include the parsed reference list", true),
		}, "document_id"),
	},
	{
		Name:        "suggest_contextual_citations",
		Description: "Suggest citations for the text around the cursor, ranked by context overlap, citations and recency.",
		InputSchema: obj(map[string]any{
			"manuscript_text": str("Full manuscript text"),
			"cursor_context":  str("Text immediately around the cursor; preferred over the manuscript tail"),
			"style":           strEnum("Citation style", "apa", "ieee", "chicago", "vancouver"),
			"k":               integer("Number of suggestions", 10),
			"recency_bias":    number("Weight of publication recency in [0,1]", 0.5),
		}, "manuscript_text"),
	},
	{
		Name:        "build_reference_list",
		Description: "Build a deduplicated, style-formatted reference list from explicit works or a manuscript.",
		InputSchema: obj(map[string]any{
			"style":           strEnum("Citation style", "apa", "ieee", "chicago", "vancouver"),
			"locale":          str("BCP 47 locale for formatting"),
			"manuscript_text": str("Manuscript to derive references from when works are not given"),
			"works":           map[string]any{"type": "array", "items": map[string]any{"type": "object"}, "description": "Explicit canonical works to format"},
		}),
	},
	{
		Name:        "validate_manuscript_citations",
		Description: "Cross-check inline citations against a reference list and report style and completeness diagnostics.",
		InputSchema: obj(map[string]any{
			"manuscript_text": str("Manuscript text containing inline citations"),
			"style":           strEnum("Expected citation style", "apa", "ieee", "chicago", "vancouver"),
			"references": map[string]any{
				"type": "array",
				"items": obj(map[string]any{
					"id":        str("Caller-side identifier"),
					"formatted": str("Formatted reference text"),
					"bibtex":    str("Optional structured record"),
				}, "formatted"),
				"description": "Reference list to validate against",
			},
		}, "manuscript_text", "references"),
	},
}
