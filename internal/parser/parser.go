// Package parser implements the ordered PDF parsing chain: a structured
// remote full-text service when configured, and a lightweight local
// extractor as the fallback of last resort.
package parser

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/scholartech/scholargraph/pkg/logging"
	"github.com/scholartech/scholargraph/pkg/scholar"
)

// Output is the common result shape of every parse strategy.
type Output struct {
	ParserName    string
	ParserVersion string
	Confidence    float64
	Title         string
	Abstract      string
	FullText      string
	Sections      []scholar.SectionChunk
	References    []scholar.ParsedReference
}

// Parser is one strategy in the chain.
type Parser interface {
	Name() string
	Parse(ctx context.Context, pdfPath string) (*Output, error)
}

// Mode selects the requested parser order.
type Mode string

const (
	ModeAuto       Mode = "auto"
	ModeStructured Mode = "structured"
	ModeSimple     Mode = "simple"
)

// Chain holds the available strategies.
type Chain struct {
	structured Parser // nil when no endpoint is configured
	simple     Parser
	log        zerolog.Logger
}

// NewChain builds the chain. structured may be nil.
func NewChain(structured, simple Parser) *Chain {
	return &Chain{
		structured: structured,
		simple:     simple,
		log:        logging.GetLogger("parser"),
	}
}

// Resolve returns the parser order for a mode. The structured parser is
// skipped when unconfigured.
func (c *Chain) Resolve(mode Mode) []Parser {
	var order []Parser
	switch mode {
	case ModeSimple:
		order = []Parser{c.simple}
	default: // auto and structured share the same order
		if c.structured != nil {
			order = append(order, c.structured)
		}
		order = append(order, c.simple)
	}
	return order
}

// Run tries each parser in order. Individual failures log a warning and move
// on; when every strategy fails the chain fails as an ingestion error.
// warnings collects per-parser failure messages for the job record.
func (c *Chain) Run(ctx context.Context, mode Mode, pdfPath string) (*Output, []string, error) {
	var warnings []string
	for _, p := range c.Resolve(mode) {
		out, err := p.Parse(ctx, pdfPath)
		if err == nil {
			return out, warnings, nil
		}
		if ctx.Err() != nil {
			return nil, warnings, ctx.Err()
		}
		c.log.Warn().Str("parser", p.Name()).Err(err).Msg("Parser failed, trying next")
		warnings = append(warnings, fmt.Sprintf("parser %s failed: %v", p.Name(), err))
	}
	return nil, warnings, &scholar.IngestionError{Message: "All parsers failed to extract document text."}
}
