package changelog

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Bump keywords accepted by Release in place of an explicit version.
const (
	BumpMajor = "major"
	BumpMinor = "minor"
	BumpPatch = "patch"
)

var comparePattern = regexp.MustCompile(`^(.+)/compare/(.+)\.\.\.HEAD$`)

// Latest returns the newest released version, or nil when nothing has been
// released or no released title is a semantic version.
func (d *Document) Latest() *semver.Version {
	for _, s := range d.Releases() {
		if v, err := semver.NewVersion(s.Title); err == nil {
			return v
		}
	}
	return nil
}

// ResolveVersion turns an explicit version or a bump keyword into the next
// release version. The result must sort after every released version.
func (d *Document) ResolveVersion(spec string) (*semver.Version, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, &ParseError{Msg: "release version is required", Err: ErrInvalidVersion}
	}
	latest := d.Latest()
	var next semver.Version
	switch strings.ToLower(spec) {
	case BumpMajor, BumpMinor, BumpPatch:
		base := semver.New(0, 0, 0, "", "")
		if latest != nil {
			base = latest
		}
		switch strings.ToLower(spec) {
		case BumpMajor:
			next = base.IncMajor()
		case BumpMinor:
			next = base.IncMinor()
		default:
			next = base.IncPatch()
		}
	default:
		v, err := semver.StrictNewVersion(strings.TrimPrefix(spec, "v"))
		if err != nil {
			return nil, &ParseError{Msg: fmt.Sprintf("version %q: %v", spec, err), Err: ErrInvalidVersion}
		}
		next = *v
	}
	for _, s := range d.Releases() {
		if s.Title == next.String() {
			return nil, &ParseError{Line: s.ln, Msg: fmt.Sprintf("version %s already released", next), Err: ErrInvalidVersion}
		}
	}
	if latest != nil && !next.GreaterThan(latest) {
		return nil, &ParseError{Msg: fmt.Sprintf("version %s does not follow %s", next, latest), Err: ErrInvalidVersion}
	}
	return &next, nil
}

// Release promotes the Unreleased section to a section headed by the
// resolved version and date, then opens a fresh empty Unreleased section at
// the same heading depth. Entry text is kept as is. Compare links in the
// footer are advanced when present. It returns the version released.
func (d *Document) Release(spec string, date time.Time) (string, error) {
	current := d.Unreleased()
	if current == nil {
		return "", &ParseError{Msg: "no Unreleased section"}
	}
	if current.Empty() {
		return "", &ParseError{Line: current.ln, Msg: "Unreleased section has no entries"}
	}
	next, err := d.ResolveVersion(spec)
	if err != nil {
		return "", err
	}
	var previous string
	if latest := d.Latest(); latest != nil {
		previous = latest.Original()
	}

	version := next.String()
	idx := 0
	for i := range d.Sections {
		if d.Sections[i].IsUnreleased() {
			idx = i
			break
		}
	}
	released := d.Sections[idx]
	released.Title = version
	released.Date = date.Format(DateLayout)
	released.raw = ""
	fresh := Section{Level: released.Level, Title: Unreleased, Body: []string{d.cr}}

	sections := make([]Section, 0, len(d.Sections)+1)
	sections = append(sections, d.Sections[:idx]...)
	sections = append(sections, fresh, released)
	sections = append(sections, d.Sections[idx+1:]...)
	d.Sections = sections

	d.advanceLinks(version, previous)
	return version, nil
}

func (d *Document) advanceLinks(version, previous string) {
	at := -1
	for i, fl := range d.footer {
		if fl.isLink && strings.EqualFold(fl.link.Label, Unreleased) {
			at = i
			break
		}
	}
	if at < 0 {
		return
	}
	m := comparePattern.FindStringSubmatch(d.footer[at].link.URL)
	if m == nil {
		return
	}
	base, from := m[1], m[2]
	prefix := ""
	if strings.HasPrefix(from, "v") {
		prefix = "v"
	}
	tag := prefix + version
	released := Link{Label: version}
	if previous != "" {
		released.URL = fmt.Sprintf("%s/compare/%s%s...%s", base, prefix, strings.TrimPrefix(previous, "v"), tag)
	} else {
		released.URL = fmt.Sprintf("%s/compare/%s...%s", base, from, tag)
	}
	d.footer[at].link.URL = fmt.Sprintf("%s/compare/%s...HEAD", base, tag)
	d.footer[at].edited = true

	footer := make([]footerLine, 0, len(d.footer)+1)
	footer = append(footer, d.footer[:at+1]...)
	footer = append(footer, footerLine{link: released, isLink: true, edited: true})
	footer = append(footer, d.footer[at+1:]...)
	d.footer = footer
}
