// Package requirements parses pip style requirements manifests.
//
// A manifest is a plain text file with one entry per line. An entry is a
// package name optionally followed by extras, version specifiers, an
// environment marker and a trailing comment:
//
//	numpy>=1.26.0          # core
//	plotly==6.2.0
//	requests[socks]>=2.31 ; python_version >= "3.9"
//
// Comment-only lines double as section headers: every entry belongs to the
// most recent comment-only line above it. Lines starting with "-" are pip
// options and bare URLs are direct references; both are recorded but are not
// entries.
//
// Parse is lenient in the way pip is not: it keeps going after a bad line and
// returns every syntax error it found in an ErrorList alongside the partially
// parsed File.
package requirements

import (
	"fmt"
	"os"
	"strings"
)

// LineKind classifies a logical manifest line.
type LineKind int

const (
	BlankLine LineKind = iota
	CommentLine
	RequirementLine
	OptionLine
	ReferenceLine
	InvalidLine
)

func (k LineKind) String() string {
	switch k {
	case BlankLine:
		return "blank"
	case CommentLine:
		return "comment"
	case RequirementLine:
		return "requirement"
	case OptionLine:
		return "option"
	case ReferenceLine:
		return "reference"
	case InvalidLine:
		return "invalid"
	}
	return fmt.Sprintf("LineKind(%d)", int(k))
}

// Line is one logical line. Continued lines are joined and keep the number
// of their first physical line.
type Line struct {
	Number int
	Raw    string
	Kind   LineKind
}

// Specifier is a single version clause such as ">=1.26.0".
type Specifier struct {
	Op      string
	Version string
}

func (s Specifier) String() string { return s.Op + s.Version }

// Requirement is a manifest entry.
type Requirement struct {
	Name       string
	Normalized string
	Extras     []string
	Specifiers []Specifier
	URL        string
	Marker     string
	Comment    string
	Section    string
	Line       int

	// GluedComment is set when the trailing comment's "#" was not preceded
	// by whitespace. pip does not treat such a "#" as a comment.
	GluedComment bool
}

// Pinned reports whether the entry is constrained to exactly one version.
func (r *Requirement) Pinned() bool {
	return len(r.Specifiers) == 1 && (r.Specifiers[0].Op == "==" || r.Specifiers[0].Op == "===")
}

// Constraint renders the specifiers the way they appear in a manifest.
func (r *Requirement) Constraint() string {
	parts := make([]string, len(r.Specifiers))
	for i, s := range r.Specifiers {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}

func (r *Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if len(r.Extras) > 0 {
		b.WriteString("[" + strings.Join(r.Extras, ",") + "]")
	}
	if r.URL != "" {
		b.WriteString(" @ " + r.URL)
	}
	b.WriteString(r.Constraint())
	if r.Marker != "" {
		b.WriteString("; " + r.Marker)
	}
	return b.String()
}

// Option is a pip option line such as "-r base.txt" or "--index-url ...".
type Option struct {
	Flag  string
	Value string
	Line  int
}

// Section is a comment header grouping the entries below it.
type Section struct {
	Title string
	Line  int
}

// File is a parsed manifest.
type File struct {
	Name         string
	Lines        []*Line
	Requirements []*Requirement
	Options      []*Option
	Sections     []Section

	index map[string][]*Requirement
}

// Lookup returns the entries for a package, matched by normalized name.
func (f *File) Lookup(name string) []*Requirement {
	return f.index[NormalizeName(name)]
}

// Names returns the normalized package names in manifest order, without
// repetition.
func (f *File) Names() []string {
	seen := make(map[string]bool, len(f.Requirements))
	var names []string
	for _, r := range f.Requirements {
		if !seen[r.Normalized] {
			seen[r.Normalized] = true
			names = append(names, r.Normalized)
		}
	}
	return names
}

// SyntaxError is a positioned parse error.
type SyntaxError struct {
	Filename string
	Line     int
	Msg      string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Filename, e.Line, e.Msg)
}

// ErrorList collects every syntax error of one manifest.
type ErrorList []*SyntaxError

func (l ErrorList) Error() string {
	msgs := make([]string, len(l))
	for i, e := range l {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

// ParseFile reads and parses the manifest at path.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, data)
}

// Parse parses manifest content. The returned File is never nil; when some
// lines are malformed the error is an ErrorList and the File holds every
// line that did parse.
func Parse(name string, data []byte) (*File, error) {
	p := &parser{
		file: &File{Name: name, index: make(map[string][]*Requirement)},
	}

	for _, ll := range logicalLines(string(data)) {
		p.parseLine(ll.number, ll.text)
	}

	if len(p.errs) > 0 {
		return p.file, p.errs
	}
	return p.file, nil
}

type parser struct {
	file    *File
	section string
	errs    ErrorList
}

func (p *parser) errorf(line int, format string, args ...any) {
	p.errs = append(p.errs, &SyntaxError{
		Filename: p.file.Name,
		Line:     line,
		Msg:      fmt.Sprintf(format, args...),
	})
}

func (p *parser) parseLine(number int, raw string) {
	line := &Line{Number: number, Raw: raw}
	p.file.Lines = append(p.file.Lines, line)

	text := strings.TrimSpace(raw)
	switch {
	case text == "":
		line.Kind = BlankLine
		return
	case text[0] == '#':
		line.Kind = CommentLine
		if title := strings.TrimSpace(strings.TrimLeft(text, "#")); title != "" {
			p.section = title
			p.file.Sections = append(p.file.Sections, Section{Title: title, Line: number})
		}
		return
	}

	body, comment, glued := splitComment(text)

	switch {
	case body[0] == '-':
		line.Kind = OptionLine
		p.file.Options = append(p.file.Options, parseOption(body, number))
		return
	case isReference(body):
		line.Kind = ReferenceLine
		return
	}

	req, err := parseRequirement(body)
	if err != nil {
		line.Kind = InvalidLine
		p.errorf(number, "%v", err)
		return
	}

	line.Kind = RequirementLine
	req.Comment = comment
	req.GluedComment = glued
	req.Section = p.section
	req.Line = number

	p.file.Requirements = append(p.file.Requirements, req)
	p.file.index[req.Normalized] = append(p.file.index[req.Normalized], req)
}

type logicalLine struct {
	number int
	text   string
}

// logicalLines splits content into lines and joins backslash continuations.
func logicalLines(content string) []logicalLine {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	physical := strings.Split(content, "\n")
	if n := len(physical); n > 0 && physical[n-1] == "" {
		physical = physical[:n-1]
	}

	var (
		out     []logicalLine
		pending strings.Builder
		start   int
	)
	for i, l := range physical {
		if pending.Len() == 0 {
			start = i + 1
		}
		trimmed := strings.TrimRight(l, " \t")
		if strings.HasSuffix(trimmed, `\`) && !strings.HasPrefix(strings.TrimSpace(l), "#") {
			pending.WriteString(strings.TrimSuffix(trimmed, `\`))
			continue
		}
		pending.WriteString(l)
		out = append(out, logicalLine{number: start, text: pending.String()})
		pending.Reset()
	}
	if pending.Len() > 0 {
		out = append(out, logicalLine{number: start, text: pending.String()})
	}
	return out
}

// splitComment separates a trailing comment from the entry text. glued is
// true when the "#" was attached to the preceding token. A "#" inside a URL
// is a fragment such as "#sha256=..." and never starts a comment.
func splitComment(text string) (body, comment string, glued bool) {
	for start := 0; ; {
		i := strings.IndexByte(text[start:], '#')
		if i < 0 {
			return text, "", false
		}
		i += start

		if i > 0 && text[i-1] != ' ' && text[i-1] != '\t' {
			if inURL(text[:i]) {
				start = i + 1
				continue
			}
			glued = true
		}
		return strings.TrimSpace(text[:i]), strings.TrimSpace(text[i+1:]), glued
	}
}

// inURL reports whether the last token of prefix is a URL.
func inURL(prefix string) bool {
	token := prefix[strings.LastIndexAny(prefix, " \t")+1:]
	return strings.Contains(token, "://")
}

func parseOption(body string, number int) *Option {
	i := strings.IndexAny(body, " \t=")
	if i < 0 {
		return &Option{Flag: body, Line: number}
	}
	return &Option{Flag: body[:i], Value: strings.TrimSpace(body[i+1:]), Line: number}
}

func isReference(body string) bool {
	head, _, _ := strings.Cut(body, " ")
	return strings.Contains(head, "://") || strings.HasPrefix(head, "git+") ||
		strings.HasPrefix(head, ".") || strings.HasPrefix(head, "/")
}

// operators is ordered so that longer operators match first.
var operators = []string{"===", "~=", "==", "!=", "<=", ">=", "<", ">"}

func parseRequirement(body string) (*Requirement, error) {
	m := nameRE.FindString(body)
	if m == "" {
		return nil, fmt.Errorf("invalid package name in %q", body)
	}
	if !ValidName(m) {
		return nil, fmt.Errorf("invalid package name %q", m)
	}

	req := &Requirement{Name: m, Normalized: NormalizeName(m)}
	rest := strings.TrimSpace(body[len(m):])

	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return nil, fmt.Errorf("unterminated extras for %q", m)
		}
		for _, extra := range strings.Split(rest[1:end], ",") {
			extra = strings.TrimSpace(extra)
			if !ValidName(extra) {
				return nil, fmt.Errorf("invalid extra %q for %q", extra, m)
			}
			req.Extras = append(req.Extras, extra)
		}
		rest = strings.TrimSpace(rest[end+1:])
	}

	if spec, marker, found := strings.Cut(rest, ";"); found {
		req.Marker = strings.TrimSpace(marker)
		if req.Marker == "" {
			return nil, fmt.Errorf("empty environment marker for %q", m)
		}
		rest = strings.TrimSpace(spec)
	}

	if strings.HasPrefix(rest, "@") {
		req.URL = strings.TrimSpace(rest[1:])
		if req.URL == "" {
			return nil, fmt.Errorf("empty direct reference for %q", m)
		}
		return req, nil
	}

	if rest == "" {
		return req, nil
	}

	for _, clause := range strings.Split(rest, ",") {
		spec, err := parseSpecifier(strings.TrimSpace(clause))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m, err)
		}
		req.Specifiers = append(req.Specifiers, spec)
	}

	return req, nil
}

func parseSpecifier(clause string) (Specifier, error) {
	for _, op := range operators {
		if !strings.HasPrefix(clause, op) {
			continue
		}
		version := strings.TrimSpace(clause[len(op):])
		switch {
		case version == "":
			return Specifier{}, fmt.Errorf("missing version after %q", op)
		case strings.ContainsAny(version, " \t"):
			return Specifier{}, fmt.Errorf("unexpected whitespace in version %q", version)
		}
		return Specifier{Op: op, Version: version}, nil
	}
	return Specifier{}, fmt.Errorf("missing version operator in %q", clause)
}
