package parser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/scholartech/scholargraph/pkg/scholar"
)

const (
	simpleParserName    = "simple"
	simpleParserVersion = "ledongthuc-pdf"
	simpleConfidence    = 0.62

	referenceTailLines = 120
	minReferenceChars  = 30
	maxReferences      = 60
	abstractWindow     = 6
)

var (
	headingRe   = regexp.MustCompile(`(?i)^(abstract|introduction|background|related work|method(s)?|materials|results|discussion|conclusion|limitations|references)\b`)
	abstractRe  = regexp.MustCompile(`(?i)^abstract:?`)
	referenceRe = regexp.MustCompile(`(?i)^references\b`)
)

// SimpleParser extracts text locally and applies line-oriented heuristics
// for title, abstract, sections and references.
type SimpleParser struct {
	MaxPages int
}

// NewSimpleParser creates the lightweight local parser.
func NewSimpleParser() *SimpleParser {
	return &SimpleParser{MaxPages: 1000}
}

// Name implements Parser.
func (p *SimpleParser) Name() string { return simpleParserName }

// Parse implements Parser. Empty extracted text is a failure, never an empty
// document.
func (p *SimpleParser) Parse(ctx context.Context, pdfPath string) (*Output, error) {
	raw, err := p.extractText(ctx, pdfPath)
	if err != nil {
		return nil, err
	}
	fullText := scholar.NormalizeWhitespace(raw)
	if fullText == "" {
		return nil, fmt.Errorf("parser produced empty text for %s", pdfPath)
	}

	lines := nonEmptyLines(raw)
	out := &Output{
		ParserName:    simpleParserName,
		ParserVersion: simpleParserVersion,
		Confidence:    simpleConfidence,
		FullText:      fullText,
		Sections:      splitSections(lines),
		References:    extractReferences(lines),
	}
	if len(lines) > 0 {
		out.Title = lines[0]
	}
	for i, line := range lines {
		if abstractRe.MatchString(line) {
			end := i + abstractWindow
			if end > len(lines) {
				end = len(lines)
			}
			out.Abstract = scholar.NormalizeWhitespace(strings.Join(lines[i:end], " "))
			break
		}
	}
	return out, nil
}

func (p *SimpleParser) extractText(ctx context.Context, pdfPath string) (string, error) {
	f, reader, err := pdf.Open(pdfPath)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if p.MaxPages > 0 && i > p.MaxPages {
			break
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A damaged page should not sink the whole document.
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func nonEmptyLines(raw string) []string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// splitSections groups lines under heading-heuristic boundaries, starting
// with an implicit "Body" heading.
func splitSections(lines []string) []scholar.SectionChunk {
	var sections []scholar.SectionChunk
	heading := "Body"
	var current []string

	push := func() {
		body := scholar.NormalizeWhitespace(strings.Join(current, " "))
		if body == "" {
			return
		}
		sections = append(sections, scholar.SectionChunk{
			ID:      sectionID(heading, body),
			Heading: heading,
			Text:    body,
		})
	}

	for _, line := range lines {
		if headingRe.MatchString(line) {
			if len(current) > 0 {
				push()
			}
			heading = line
			current = current[:0]
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		push()
	}
	return sections
}

// extractReferences takes everything after an explicit References heading,
// or the trailing lines when none exists.
func extractReferences(lines []string) []scholar.ParsedReference {
	refStart := -1
	for i, line := range lines {
		if referenceRe.MatchString(line) {
			refStart = i
			break
		}
	}
	var source []string
	if refStart >= 0 {
		source = lines[refStart+1:]
	} else if len(lines) > referenceTailLines {
		source = lines[len(lines)-referenceTailLines:]
	} else {
		source = lines
	}

	var refs []scholar.ParsedReference
	for _, line := range source {
		if len(refs) >= maxReferences {
			break
		}
		if len(line) <= minReferenceChars {
			continue
		}
		refs = append(refs, scholar.ParsedReference{
			RawText: line,
			DOI:     scholar.NormalizeDOI(scholar.DOIPattern.FindString(line)),
			Year:    scholar.ParseYearString(line),
		})
	}
	return refs
}

func sectionID(heading, body string) string {
	max := len(body)
	if max > 200 {
		max = 200
	}
	sum := sha256.Sum256([]byte(heading + "|" + body[:max]))
	return "section_" + hex.EncodeToString(sum[:6])
}
