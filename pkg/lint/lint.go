// Package lint checks parsed requirements manifests for well-formedness.
//
// Every rule produces api.Diagnostic values. Rules only look at the parsed
// manifest; nothing here touches the network or the filesystem.
package lint

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/simonkienzler/reqsniffer/pkg/api"
	"github.com/simonkienzler/reqsniffer/pkg/requirements"
)

// Rule identifiers as they appear in reports.
const (
	RuleParse         = "parse"
	RuleEntryFormat   = "entry-format"
	RuleVersionSyntax = "version-syntax"
	RuleDuplicate     = "duplicate"
	RuleConflict      = "conflict"
	RuleCommentFormat = "comment-format"
	RuleUnconstrained = "unconstrained"
)

// DefaultOperators are the only operators a plain manifest entry may use.
var DefaultOperators = []string{"==", ">="}

type Options struct {
	// AllowedOperators restricts the version operators of an entry. Empty
	// means DefaultOperators.
	AllowedOperators []string
	// AllowOptions accepts pip option lines and direct references.
	AllowOptions bool
	// RequireConstraints reports entries without any version constraint.
	RequireConstraints bool
}

func (o Options) operators() []string {
	if len(o.AllowedOperators) == 0 {
		return DefaultOperators
	}
	return o.AllowedOperators
}

func (o Options) allows(op string) bool {
	for _, allowed := range o.operators() {
		if op == allowed {
			return true
		}
	}
	return false
}

// Lint runs every rule against f and returns the diagnostics ordered by
// line.
func Lint(f *requirements.File, opts Options) []api.Diagnostic {
	var diags []api.Diagnostic
	if !opts.AllowOptions {
		diags = append(diags, checkNonEntries(f)...)
	}

	for _, r := range f.Requirements {
		diags = append(diags, checkEntry(r, opts)...)
	}
	diags = append(diags, checkDuplicates(f)...)

	sortDiagnostics(diags)
	return diags
}

// checkNonEntries reports option and direct reference lines, which are not
// a plain name with an optional version.
func checkNonEntries(f *requirements.File) []api.Diagnostic {
	var diags []api.Diagnostic
	for _, line := range f.Lines {
		switch line.Kind {
		case requirements.OptionLine:
			diags = append(diags, errorAt(RuleEntryFormat, line.Number, "",
				"pip option %q is not a package entry", strings.TrimSpace(line.Raw)))
		case requirements.ReferenceLine:
			diags = append(diags, errorAt(RuleEntryFormat, line.Number, "",
				"direct reference %q is not a package entry", strings.TrimSpace(line.Raw)))
		}
	}
	return diags
}

// ParseDiagnostics converts the error returned by requirements.Parse into
// diagnostics. An error that is not an ErrorList yields a single diagnostic
// without a line.
func ParseDiagnostics(err error) []api.Diagnostic {
	if err == nil {
		return nil
	}

	var list requirements.ErrorList
	if !errors.As(err, &list) {
		return []api.Diagnostic{errorAt(RuleParse, 0, "", "%v", err)}
	}

	diags := make([]api.Diagnostic, 0, len(list))
	for _, e := range list {
		diags = append(diags, errorAt(RuleParse, e.Line, "", "%s", e.Msg))
	}
	return diags
}

func checkEntry(r *requirements.Requirement, opts Options) []api.Diagnostic {
	var diags []api.Diagnostic
	add := func(rule string, sev api.Severity, format string, args ...any) {
		diags = append(diags, api.Diagnostic{
			Rule:     rule,
			Severity: sev,
			Line:     r.Line,
			Package:  r.Normalized,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	if len(r.Extras) > 0 {
		add(RuleEntryFormat, api.SeverityError, "extras [%s] are not allowed", strings.Join(r.Extras, ","))
	}
	if r.Marker != "" {
		add(RuleEntryFormat, api.SeverityError, "environment marker %q is not allowed", r.Marker)
	}
	if r.URL != "" {
		add(RuleEntryFormat, api.SeverityError, "direct reference %q is not allowed", r.URL)
	}
	if len(r.Specifiers) > 1 {
		add(RuleEntryFormat, api.SeverityError, "expected at most one version specifier, got %q", r.Constraint())
	}

	for _, s := range r.Specifiers {
		if !opts.allows(s.Op) {
			add(RuleEntryFormat, api.SeverityError, "operator %q is not allowed, use one of %s",
				s.Op, strings.Join(opts.operators(), " "))
		}
		if !requirements.ValidSpecifierVersion(s.Op, s.Version) {
			add(RuleVersionSyntax, api.SeverityError, "%q is not a valid version", s.Version)
		}
	}

	if r.GluedComment {
		add(RuleCommentFormat, api.SeverityError, "\"#\" must be preceded by whitespace to start a comment")
	}

	if opts.RequireConstraints && len(r.Specifiers) == 0 && r.URL == "" {
		add(RuleUnconstrained, api.SeverityWarning, "no version constraint")
	}

	return diags
}

// checkDuplicates compares every repeated entry with all entries of the same
// name above it, so a conflict is found even when an earlier entry is
// unconstrained.
func checkDuplicates(f *requirements.File) []api.Diagnostic {
	var diags []api.Diagnostic

	for _, name := range f.Names() {
		entries := f.Lookup(name)

		for k := 1; k < len(entries); k++ {
			r, prior := entries[k], entries[:k]
			d := api.Diagnostic{Line: r.Line, Package: name}

			if other := conflicting(prior, r); other != nil {
				d.Rule, d.Severity = RuleConflict, api.SeverityError
				d.Message = fmt.Sprintf("%q conflicts with %q on line %d",
					r.Constraint(), other.Constraint(), other.Line)
				diags = append(diags, d)
				continue
			}

			first := prior[0]
			d.Rule, d.Severity = RuleDuplicate, api.SeverityWarning
			if sameConstraint(first, r) {
				d.Message = fmt.Sprintf("already listed on line %d", first.Line)
			} else {
				d.Message = fmt.Sprintf("already listed on line %d as %q, now %q",
					first.Line, first.Constraint(), r.Constraint())
			}
			diags = append(diags, d)
		}
	}

	return diags
}

// conflicting returns the earlier entry r cannot be satisfied together with.
// When every pair is fine but all of them together leave no version, the
// first entry is returned.
func conflicting(prior []*requirements.Requirement, r *requirements.Requirement) *requirements.Requirement {
	for _, p := range prior {
		if !compatible(p, r) {
			return p
		}
	}
	if !compatible(append(append([]*requirements.Requirement{}, prior...), r)...) {
		return prior[0]
	}
	return nil
}

func sameConstraint(a, b *requirements.Requirement) bool {
	return a.Constraint() == b.Constraint() && a.URL == b.URL
}

func errorAt(rule string, line int, pkg, format string, args ...any) api.Diagnostic {
	return api.Diagnostic{
		Rule:     rule,
		Severity: api.SeverityError,
		Line:     line,
		Package:  pkg,
		Message:  fmt.Sprintf(format, args...),
	}
}

func sortDiagnostics(diags []api.Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		return diags[i].Line < diags[j].Line
	})
}
