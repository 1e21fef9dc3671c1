package scholar

import (
	"errors"
	"fmt"
)

// ProviderError reports a failed outbound request to a catalog. The
// aggregator recovers these locally; they never fail a federated search.
type ProviderError struct {
	Provider    Provider
	HTTPStatus  int
	URL         string
	BodySnippet string
	Err         error
}

func (e *ProviderError) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("provider %s: HTTP %d from %s: %s", e.Provider, e.HTTPStatus, e.URL, e.BodySnippet)
	}
	if e.Err != nil {
		return fmt.Sprintf("provider %s: request to %s failed: %v", e.Provider, e.URL, e.Err)
	}
	return fmt.Sprintf("provider %s: request to %s failed", e.Provider, e.URL)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ScrapeBlockedError indicates the HTML-scraper provider hit an
// anti-automation challenge page. Surfaces as a ProviderError upstream.
type ScrapeBlockedError struct {
	URL string
}

func (e *ScrapeBlockedError) Error() string {
	return fmt.Sprintf("scholar scrape blocked by anti-automation challenge at %s", e.URL)
}

// IngestionError is a terminal ingestion failure: unresolvable source,
// unretrievable PDF, or an exhausted parser chain.
type IngestionError struct {
	Message string
	Err     error
}

func (e *IngestionError) Error() string { return e.Message }
func (e *IngestionError) Unwrap() error { return e.Err }

// NotFoundError reports an unknown job, document or session identifier.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ValidationError reports tool arguments that violate their schema.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
