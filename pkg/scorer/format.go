package scorer

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/simonkienzler/reqsniffer/pkg/api"
)

type Format string

const (
	FormatPretty Format = "pretty"
	FormatJSON   Format = "json"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatPretty, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q, expected %q or %q", s, FormatPretty, FormatJSON)
}

// Render writes reports to w in the given format.
func Render(w io.Writer, format Format, reports []*api.Report, verbose bool) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	case FormatPretty, "":
		_, err := io.WriteString(w, newPrettyPrinter(w).render(reports, verbose))
		return err
	}
	return fmt.Errorf("unknown output format %q", format)
}

type prettyPrinter struct {
	header    lipgloss.Style
	section   lipgloss.Style
	name      lipgloss.Style
	actual    lipgloss.Style
	preferred lipgloss.Style
	score     lipgloss.Style
	err       lipgloss.Style
	warn      lipgloss.Style
}

func newPrettyPrinter(w io.Writer) *prettyPrinter {
	r := lipgloss.NewRenderer(w)
	return &prettyPrinter{
		header:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("5")),
		section:   r.NewStyle().Italic(true).Foreground(lipgloss.Color("7")),
		name:      r.NewStyle().Foreground(lipgloss.Color("4")),
		actual:    r.NewStyle().Foreground(lipgloss.Color("1")),
		preferred: r.NewStyle().Foreground(lipgloss.Color("2")),
		score:     r.NewStyle().Foreground(lipgloss.Color("6")),
		err:       r.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
		warn:      r.NewStyle().Foreground(lipgloss.Color("3")),
	}
}

func (p *prettyPrinter) render(reports []*api.Report, verbose bool) string {
	var b strings.Builder
	for _, r := range reports {
		b.WriteString(p.formatHeader(r.Path))
		if verbose {
			b.WriteString(p.formatPackages(r.Packages))
		}
		b.WriteString(p.formatDiagnostics(r.Diagnostics))
		b.WriteString(p.formatSummary(r))
	}
	return b.String()
}

func (p *prettyPrinter) formatHeader(path string) string {
	return "\n  " + p.header.Render(path) + "\n"
}

func (p *prettyPrinter) formatPackages(pkgs []*api.Package) string {
	var b strings.Builder
	section := ""
	for _, pkg := range pkgs {
		if pkg.Section != section {
			section = pkg.Section
			b.WriteString("\n  " + p.section.Render("# "+section) + "\n")
		}
		b.WriteString(p.formatPackage(pkg))
	}
	return b.String()
}

func (p *prettyPrinter) formatPackage(pkg *api.Package) string {
	var b strings.Builder
	b.WriteString("  » " + p.name.Render(pkg.Name) + "\n")

	constraint := pkg.Constraint
	if constraint == "" {
		constraint = "any"
	}
	b.WriteString("    └─ constraint: " + p.actual.Render(constraint) + "\n")
	if pkg.PreferredVersion != nil {
		b.WriteString("    └─ preferred:  " + p.preferred.Render(pkg.PreferredVersion.String()) + "\n")
	}
	if pkg.Latest != nil {
		b.WriteString("    └─ latest:     " + p.preferred.Render(*pkg.Latest) + "\n")
	}
	b.WriteString("    └─ score:      " + p.score.Render(fmt.Sprint(pkg.Score)) + "\n")
	return b.String()
}

func (p *prettyPrinter) formatDiagnostics(diags []api.Diagnostic) string {
	if len(diags) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")
	for _, d := range diags {
		label := p.warn.Render("warning")
		if d.Severity == api.SeverityError {
			label = p.err.Render("error")
		}
		where := ""
		if d.Line > 0 {
			where = fmt.Sprintf("line %d: ", d.Line)
		}
		if d.Package != "" {
			where += d.Package + ": "
		}
		fmt.Fprintf(&b, "  %s %s%s [%s]\n", label, where, d.Message, d.Rule)
	}
	return b.String()
}

func (p *prettyPrinter) formatSummary(r *api.Report) string {
	return fmt.Sprintf("\n  %s  %d errors, %d warnings\n",
		p.header.Render(fmt.Sprintf("Final Score: %d", r.Score)),
		r.Count(api.SeverityError), r.Count(api.SeverityWarning))
}
