package cite

import (
	"fmt"
	"strings"

	"github.com/scholartech/scholargraph/pkg/scholar"
)

// Style identifies a supported bibliographic style.
type Style string

const (
	StyleAPA       Style = "apa"
	StyleIEEE      Style = "ieee"
	StyleChicago   Style = "chicago"
	StyleVancouver Style = "vancouver"
)

// AllStyles lists the accepted style names in catalog order.
var AllStyles = []Style{StyleAPA, StyleIEEE, StyleChicago, StyleVancouver}

// ValidStyle reports whether s names a supported style.
func ValidStyle(s Style) bool {
	for _, known := range AllStyles {
		if s == known {
			return true
		}
	}
	return false
}

// NumericStyle reports whether the style cites by bracketed ordinal.
func NumericStyle(s Style) bool { return s == StyleIEEE || s == StyleVancouver }

// commonEntry maps a canonical work onto the style-neutral record all
// formatters consume.
func commonEntry(work *scholar.CanonicalWork) scholar.CommonStyleEntry {
	id := work.DOI
	if id == "" {
		id = work.PaperID
	}
	return scholar.CommonStyleEntry{
		ID:             id,
		Type:           "article-journal",
		Title:          work.Title,
		Authors:        append([]scholar.Author(nil), work.Authors...),
		Year:           work.Year,
		ContainerTitle: work.Venue,
		DOI:            work.DOI,
		URL:            work.URL,
	}
}

// formatEntry renders one entry in the requested style. Unknown styles are an
// error so callers can apply the textual fallback.
func formatEntry(entry scholar.CommonStyleEntry, style Style) (string, error) {
	switch style {
	case StyleAPA:
		return formatAPA(entry), nil
	case StyleIEEE:
		return formatIEEE(entry), nil
	case StyleChicago:
		return formatChicago(entry), nil
	case StyleVancouver:
		return formatVancouver(entry), nil
	default:
		return "", fmt.Errorf("unsupported citation style %q", style)
	}
}

// fallbackEntry is the minimal rendition used when a style adapter fails.
func fallbackEntry(entry scholar.CommonStyleEntry) string {
	author := "Unknown"
	if len(entry.Authors) > 0 && entry.Authors[0].Name != "" {
		author = entry.Authors[0].Name
	}
	return fmt.Sprintf("%s (%s). %s.", author, yearOrND(entry.Year), entry.Title)
}

func formatAPA(e scholar.CommonStyleEntry) string {
	var b strings.Builder
	b.WriteString(joinAuthors(e.Authors, apaAuthor, ", ", ", & "))
	fmt.Fprintf(&b, " (%s). %s.", yearOrND(e.Year), e.Title)
	if e.ContainerTitle != "" {
		fmt.Fprintf(&b, " %s.", e.ContainerTitle)
	}
	if e.DOI != "" {
		fmt.Fprintf(&b, " https://doi.org/%s", e.DOI)
	} else if e.URL != "" {
		fmt.Fprintf(&b, " %s", e.URL)
	}
	return strings.TrimSpace(b.String())
}

func formatIEEE(e scholar.CommonStyleEntry) string {
	var b strings.Builder
	b.WriteString(joinAuthors(e.Authors, ieeeAuthor, ", ", " and "))
	fmt.Fprintf(&b, ", %q,", e.Title)
	if e.ContainerTitle != "" {
		fmt.Fprintf(&b, " %s,", e.ContainerTitle)
	}
	fmt.Fprintf(&b, " %s", yearOrND(e.Year))
	if e.DOI != "" {
		fmt.Fprintf(&b, ", doi: %s", e.DOI)
	}
	return strings.TrimSpace(b.String()) + "."
}

func formatChicago(e scholar.CommonStyleEntry) string {
	var b strings.Builder
	b.WriteString(joinAuthors(e.Authors, chicagoAuthor, ", ", ", and "))
	fmt.Fprintf(&b, ". %q.", e.Title)
	if e.ContainerTitle != "" {
		fmt.Fprintf(&b, " %s", e.ContainerTitle)
	}
	fmt.Fprintf(&b, " (%s).", yearOrND(e.Year))
	if e.DOI != "" {
		fmt.Fprintf(&b, " https://doi.org/%s.", e.DOI)
	}
	return strings.TrimSpace(b.String())
}

func formatVancouver(e scholar.CommonStyleEntry) string {
	var b strings.Builder
	b.WriteString(joinAuthors(e.Authors, vancouverAuthor, ", ", ", "))
	fmt.Fprintf(&b, ". %s.", e.Title)
	if e.ContainerTitle != "" {
		fmt.Fprintf(&b, " %s.", e.ContainerTitle)
	}
	fmt.Fprintf(&b, " %s.", yearOrND(e.Year))
	if e.DOI != "" {
		fmt.Fprintf(&b, " doi:%s.", e.DOI)
	}
	return strings.TrimSpace(b.String())
}

// bibtexEntry renders the structured export for one entry.
func bibtexEntry(e scholar.CommonStyleEntry) string {
	key := bibtexKey(e)
	var b strings.Builder
	fmt.Fprintf(&b, "@article{%s,\n", key)
	fmt.Fprintf(&b, "  title = {%s},\n", e.Title)
	if len(e.Authors) > 0 {
		names := make([]string, 0, len(e.Authors))
		for _, a := range e.Authors {
			if a.Name != "" {
				names = append(names, a.Name)
			}
		}
		fmt.Fprintf(&b, "  author = {%s},\n", strings.Join(names, " and "))
	}
	if e.Year != 0 {
		fmt.Fprintf(&b, "  year = {%d},\n", e.Year)
	}
	if e.ContainerTitle != "" {
		fmt.Fprintf(&b, "  journal = {%s},\n", e.ContainerTitle)
	}
	if e.DOI != "" {
		fmt.Fprintf(&b, "  doi = {%s},\n", e.DOI)
	}
	if e.URL != "" {
		fmt.Fprintf(&b, "  url = {%s},\n", e.URL)
	}
	b.WriteString("}")
	return b.String()
}

// bibtexStub is the minimal export used alongside the textual fallback.
func bibtexStub(e scholar.CommonStyleEntry) string {
	return fmt.Sprintf("@misc{%s,\n  title = {%s},\n}", bibtexKey(e), e.Title)
}

func bibtexKey(e scholar.CommonStyleEntry) string {
	surnamePart := "anon"
	if len(e.Authors) > 0 {
		if s := Surname(e.Authors[0].Name); s != "" {
			surnamePart = strings.ToLower(s)
		}
	}
	yearPart := "nd"
	if e.Year != 0 {
		yearPart = fmt.Sprintf("%d", e.Year)
	}
	return surnamePart + yearPart
}

// Surname returns the final whitespace-separated token of a display name.
func Surname(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func yearOrND(year int) string {
	if year == 0 {
		return "n.d."
	}
	return fmt.Sprintf("%d", year)
}

func joinAuthors(authors []scholar.Author, render func(scholar.Author) string, sep, lastSep string) string {
	rendered := make([]string, 0, len(authors))
	for _, a := range authors {
		if s := render(a); s != "" {
			rendered = append(rendered, s)
		}
	}
	switch len(rendered) {
	case 0:
		return "Unknown"
	case 1:
		return rendered[0]
	default:
		return strings.Join(rendered[:len(rendered)-1], sep) + lastSep + rendered[len(rendered)-1]
	}
}

// apaAuthor renders "Surname, F."
func apaAuthor(a scholar.Author) string {
	fields := strings.Fields(a.Name)
	if len(fields) == 0 {
		return ""
	}
	if len(fields) == 1 {
		return fields[0]
	}
	surname := fields[len(fields)-1]
	initials := make([]string, 0, len(fields)-1)
	for _, given := range fields[:len(fields)-1] {
		initials = append(initials, string([]rune(given)[0])+".")
	}
	return surname + ", " + strings.Join(initials, " ")
}

// ieeeAuthor renders "F. Surname".
func ieeeAuthor(a scholar.Author) string {
	fields := strings.Fields(a.Name)
	if len(fields) == 0 {
		return ""
	}
	if len(fields) == 1 {
		return fields[0]
	}
	surname := fields[len(fields)-1]
	initials := make([]string, 0, len(fields)-1)
	for _, given := range fields[:len(fields)-1] {
		initials = append(initials, string([]rune(given)[0])+".")
	}
	return strings.Join(initials, " ") + " " + surname
}

// chicagoAuthor renders the full "Surname, Given" form.
func chicagoAuthor(a scholar.Author) string {
	fields := strings.Fields(a.Name)
	if len(fields) == 0 {
		return ""
	}
	if len(fields) == 1 {
		return fields[0]
	}
	surname := fields[len(fields)-1]
	return surname + ", " + strings.Join(fields[:len(fields)-1], " ")
}

// vancouverAuthor renders "Surname FM" with bare initials.
func vancouverAuthor(a scholar.Author) string {
	fields := strings.Fields(a.Name)
	if len(fields) == 0 {
		return ""
	}
	if len(fields) == 1 {
		return fields[0]
	}
	surname := fields[len(fields)-1]
	var initials strings.Builder
	for _, given := range fields[:len(fields)-1] {
		initials.WriteRune([]rune(given)[0])
	}
	return surname + " " + initials.String()
}
