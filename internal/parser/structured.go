package parser

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/scholartech/scholargraph/pkg/logging"
	"github.com/scholartech/scholargraph/pkg/scholar"
)

const (
	structuredParserName    = "structured"
	structuredParserVersion = "tei-fulltext"

	structuredConfidenceFull  = 0.85
	structuredConfidenceEmpty = 0.65
)

// StructuredParser posts the PDF to a remote full-text document service
// (GROBID-compatible) and maps the TEI response onto the common output.
type StructuredParser struct {
	endpoint   string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewStructuredParser creates the remote parser for the configured endpoint.
func NewStructuredParser(endpoint string, timeout time.Duration) *StructuredParser {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &StructuredParser{
		endpoint:   strings.TrimRight(endpoint, "/") + "/api/processFulltextDocument",
		httpClient: &http.Client{Timeout: timeout},
		log:        logging.GetLogger("parser.structured"),
	}
}

// Name implements Parser.
func (p *StructuredParser) Name() string { return structuredParserName }

// Parse implements Parser.
func (p *StructuredParser) Parse(ctx context.Context, pdfPath string) (*Output, error) {
	payload, contentType, err := multipartPDF(pdfPath)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/xml")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("structured parser request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024*1024))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("structured parser returned HTTP %d", resp.StatusCode)
	}
	return p.mapTEI(body)
}

func multipartPDF(pdfPath string) (io.Reader, string, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("input", "document.pdf")
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

type teiDocument struct {
	Header struct {
		Title    []teiText `xml:"fileDesc>titleStmt>title"`
		Abstract teiText   `xml:"profileDesc>abstract"`
	} `xml:"teiHeader"`
	Text struct {
		Body struct {
			Divs []teiDiv `xml:"div"`
		} `xml:"body"`
		Back struct {
			Bibliography []teiBibl `xml:"div>listBibl>biblStruct"`
		} `xml:"back"`
	} `xml:"text"`
}

type teiDiv struct {
	Head       teiText   `xml:"head"`
	Paragraphs []teiText `xml:"p"`
}

type teiBibl struct {
	Titles  []teiText `xml:"analytic>title"`
	Authors []struct {
		Forename string `xml:"persName>forename"`
		Surname  string `xml:"persName>surname"`
	} `xml:"analytic>author"`
	Full string `xml:",innerxml"`
}

type teiText struct {
	Content string `xml:",chardata"`
	Inner   string `xml:",innerxml"`
}

func (p *StructuredParser) mapTEI(body []byte) (*Output, error) {
	var doc teiDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("structured parser returned unparseable XML: %w", err)
	}

	out := &Output{
		ParserName:    structuredParserName,
		ParserVersion: structuredParserVersion,
		Abstract:      scholar.NormalizeWhitespace(stripXML(doc.Header.Abstract.Inner)),
	}
	if len(doc.Header.Title) > 0 {
		out.Title = scholar.NormalizeWhitespace(doc.Header.Title[0].Content)
	}

	var full strings.Builder
	for _, div := range doc.Text.Body.Divs {
		heading := scholar.NormalizeWhitespace(div.Head.Content)
		var paras strings.Builder
		for _, para := range div.Paragraphs {
			paras.WriteString(stripXML(para.Inner))
			paras.WriteByte(' ')
		}
		text := scholar.NormalizeWhitespace(paras.String())
		if text == "" {
			continue
		}
		if heading == "" {
			heading = "Body"
		}
		out.Sections = append(out.Sections, scholar.SectionChunk{
			ID:      teiSectionID(heading, text),
			Heading: heading,
			Text:    text,
		})
		full.WriteString(text)
		full.WriteByte(' ')
	}
	out.FullText = scholar.NormalizeWhitespace(full.String())

	for _, bibl := range doc.Text.Back.Bibliography {
		raw := scholar.NormalizeWhitespace(stripXML(bibl.Full))
		if raw == "" {
			continue
		}
		ref := scholar.ParsedReference{
			RawText: raw,
			DOI:     scholar.NormalizeDOI(scholar.DOIPattern.FindString(raw)),
			Year:    scholar.ParseYearString(raw),
		}
		if len(bibl.Titles) > 0 {
			ref.Title = scholar.NormalizeWhitespace(bibl.Titles[0].Content)
		}
		for _, a := range bibl.Authors {
			name := scholar.NormalizeWhitespace(a.Forename + " " + a.Surname)
			if name != "" {
				ref.Authors = append(ref.Authors, name)
			}
		}
		out.References = append(out.References, ref)
	}

	if out.FullText != "" {
		out.Confidence = structuredConfidenceFull
	} else {
		out.Confidence = structuredConfidenceEmpty
	}
	if out.FullText == "" && out.Abstract == "" && len(out.References) == 0 {
		return nil, fmt.Errorf("structured parser produced an empty document")
	}
	return out, nil
}

// stripXML drops every tag, keeping character data.
func stripXML(s string) string {
	dec := xml.NewDecoder(strings.NewReader("<root>" + s + "</root>"))
	var b strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		if cd, ok := tok.(xml.CharData); ok {
			b.Write(cd)
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func teiSectionID(heading, text string) string {
	max := len(text)
	if max > 200 {
		max = 200
	}
	sum := sha256.Sum256([]byte(heading + "|" + text[:max]))
	return "section_" + hex.EncodeToString(sum[:6])
}
