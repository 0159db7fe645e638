// Package changelog models a Keep-a-Changelog document well enough to
// promote its Unreleased section into a dated release without disturbing
// entry text.
package changelog

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Unreleased is the title of the pending-changes section.
const Unreleased = "Unreleased"

// DateLayout formats release dates in headings.
const DateLayout = "2006-01-02"

var (
	// ErrChangelogParse marks structural problems with the document.
	ErrChangelogParse = errors.New("changelog: parse error")
	// ErrInvalidVersion reports a release version that cannot be used.
	ErrInvalidVersion = errors.New("changelog: invalid version")
)

// ParseError locates a structural problem. Line is 1-based; zero means the
// problem concerns the document as a whole.
type ParseError struct {
	Line int
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("changelog: line %d: %s", e.Line, e.Msg)
	}
	return "changelog: " + e.Msg
}

// Is matches ErrChangelogParse.
func (e *ParseError) Is(target error) bool { return target == ErrChangelogParse }

func (e *ParseError) Unwrap() error { return e.Err }

var (
	headingPattern = regexp.MustCompile(`^(#{2,3})\s+\[([^\]]+)\](?:\s+-\s+(\d{4}-\d{2}-\d{2}))?\s*$`)
	escapedPattern = regexp.MustCompile(`^#{2,3}\s+\\\[`)
	linkPattern    = regexp.MustCompile(`^\[([^\]]+)\]:\s*(\S+)\s*$`)
)

// Normalize replaces escaped square brackets with literal ones. Markdown
// formatters escape the brackets in release headings; applying Normalize
// twice yields the same bytes as applying it once.
func Normalize(data []byte) []byte {
	out := strings.ReplaceAll(string(data), `\[`, "[")
	out = strings.ReplaceAll(out, `\]`, "]")
	return []byte(out)
}

// Section is one bracketed release heading plus the lines under it.
type Section struct {
	Level int
	Title string
	Date  string
	Body  []string

	raw string
	ln  int
}

// IsUnreleased reports whether the section holds pending changes.
func (s Section) IsUnreleased() bool { return strings.EqualFold(s.Title, Unreleased) }

// Heading renders the section heading.
func (s Section) Heading() string {
	if s.raw != "" {
		return strings.TrimSuffix(s.raw, "\r")
	}
	h := strings.Repeat("#", s.Level) + " [" + s.Title + "]"
	if s.Date != "" {
		h += " - " + s.Date
	}
	return h
}

// Empty reports whether the section carries no entry text.
func (s Section) Empty() bool {
	for _, line := range s.Body {
		if strings.TrimSpace(line) != "" {
			return false
		}
	}
	return true
}

// Link is a markdown reference definition from the document footer.
type Link struct {
	Label string
	URL   string
}

// footerLine is one raw line of the footer. Lines that define a link carry
// it parsed; edited links are re-rendered, everything else is kept as is.
type footerLine struct {
	raw    string
	link   Link
	isLink bool
	edited bool
}

// Document is a parsed changelog. Body and preamble lines keep their
// original terminators; synthesized lines use the document's own.
type Document struct {
	Preamble []string
	Sections []Section

	footer          []footerLine
	cr              string
	trailingNewline bool
}

// Parse reads a changelog. The document must contain exactly one Unreleased
// section, ahead of every released one. Headings that still carry escaped
// brackets are rejected; run Normalize first.
func Parse(data []byte) (*Document, error) {
	text := string(data)
	doc := &Document{trailingNewline: strings.HasSuffix(text, "\n")}
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	if text == "" {
		lines = nil
	}
	if len(lines) > 0 && strings.HasSuffix(lines[0], "\r") {
		doc.cr = "\r"
	}

	footer := footerStart(lines)
	var current *Section
	for i, line := range lines[:footer] {
		line = strings.TrimSuffix(line, "\r")
		if escapedPattern.MatchString(line) {
			return nil, &ParseError{Line: i + 1, Msg: "heading contains escaped brackets"}
		}
		m := headingPattern.FindStringSubmatch(line)
		if m == nil {
			if current == nil {
				doc.Preamble = append(doc.Preamble, lines[i])
			} else {
				current.Body = append(current.Body, lines[i])
			}
			continue
		}
		doc.Sections = append(doc.Sections, Section{
			Level: len(m[1]),
			Title: strings.TrimSpace(m[2]),
			Date:  m[3],
			raw:   lines[i],
			ln:    i + 1,
		})
		current = &doc.Sections[len(doc.Sections)-1]
	}
	for _, line := range lines[footer:] {
		fl := footerLine{raw: line}
		if m := linkPattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			fl.link = Link{Label: m[1], URL: m[2]}
			fl.isLink = true
		}
		doc.footer = append(doc.footer, fl)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// footerStart finds the first line of the trailing block of link
// references. Blank lines inside the block belong to it.
func footerStart(lines []string) int {
	start := len(lines)
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		if !linkPattern.MatchString(trimmed) {
			break
		}
		start = i
	}
	return start
}

func (d *Document) validate() error {
	unreleased := -1
	for i, s := range d.Sections {
		if !s.IsUnreleased() {
			continue
		}
		if unreleased >= 0 {
			return &ParseError{Line: s.ln, Msg: "duplicate Unreleased section"}
		}
		unreleased = i
	}
	if unreleased < 0 {
		return &ParseError{Msg: "no Unreleased section"}
	}
	if unreleased != 0 {
		return &ParseError{Line: d.Sections[unreleased].ln, Msg: "Unreleased section must precede every release"}
	}
	return nil
}

// Unreleased returns the pending-changes section.
func (d *Document) Unreleased() *Section {
	for i := range d.Sections {
		if d.Sections[i].IsUnreleased() {
			return &d.Sections[i]
		}
	}
	return nil
}

// Releases returns the released sections, newest first.
func (d *Document) Releases() []Section {
	out := make([]Section, 0, len(d.Sections))
	for _, s := range d.Sections {
		if !s.IsUnreleased() {
			out = append(out, s)
		}
	}
	return out
}

// Links returns the footer's reference definitions in document order.
func (d *Document) Links() []Link {
	var links []Link
	for _, fl := range d.footer {
		if fl.isLink {
			links = append(links, fl.link)
		}
	}
	return links
}

// Link returns the URL of the reference with label.
func (d *Document) Link(label string) (string, bool) {
	for _, l := range d.Links() {
		if strings.EqualFold(l.Label, label) {
			return l.URL, true
		}
	}
	return "", false
}

// Bytes renders the document. Untouched headings, body lines and footer
// lines are reproduced verbatim.
func (d *Document) Bytes() []byte {
	var lines []string
	lines = append(lines, d.Preamble...)
	for _, s := range d.Sections {
		if s.raw != "" {
			lines = append(lines, s.raw)
		} else {
			lines = append(lines, s.Heading()+d.cr)
		}
		lines = append(lines, s.Body...)
	}
	for _, fl := range d.footer {
		if fl.edited {
			lines = append(lines, "["+fl.link.Label+"]: "+fl.link.URL+d.cr)
		} else {
			lines = append(lines, fl.raw)
		}
	}
	out := strings.Join(lines, "\n")
	if d.trailingNewline {
		out += "\n"
	}
	return []byte(out)
}
