package simulator

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type printer struct {
	title lipgloss.Style
	label lipgloss.Style
	hit   lipgloss.Style
	miss  lipgloss.Style
}

func newPrinter(w io.Writer) *printer {
	r := lipgloss.NewRenderer(w)
	return &printer{
		title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("5")),
		label: r.NewStyle().Foreground(lipgloss.Color("4")),
		hit:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
		miss:  r.NewStyle().Foreground(lipgloss.Color("2")),
	}
}

func (p *printer) row(b *strings.Builder, label, format string, args ...any) {
	fmt.Fprintf(b, "  %s %s\n", p.label.Render(fmt.Sprintf("%-14s", label+":")), fmt.Sprintf(format, args...))
}

// RenderOutcome writes a single delivery, as indented JSON when asJSON is
// set.
func RenderOutcome(w io.Writer, o *Outcome, asJSON bool) error {
	if asJSON {
		return encodeJSON(w, o)
	}

	p := newPrinter(w)
	var b strings.Builder
	b.WriteString(p.title.Render("Delivery") + "\n")
	p.row(&b, "speed", "%.1f km/h", o.Params.Speed*3.6)
	p.row(&b, "angles", "vertical %.1f°, horizontal %.1f°, seam %.1f°", o.Params.AngleY, o.Params.AngleZ, o.Params.SeamAngle)
	p.row(&b, "bounce", "e=%.2f, mu=%.2f", o.Params.Restitution, o.Params.Friction)
	if o.BounceX >= 0 {
		p.row(&b, "pitched at", "%.2f m", o.BounceX)
	} else {
		p.row(&b, "pitched at", "full toss")
	}
	p.row(&b, "max height", "%.2f m", o.MaxHeight)
	p.row(&b, "swing", "%.2f m", o.Swing)
	p.row(&b, "final", "x=%.2f y=%.2f z=%.2f", o.FinalX, o.FinalY, o.FinalZ)
	if o.HitStumps {
		p.row(&b, "result", "%s", p.hit.Render("hit stumps"))
	} else {
		p.row(&b, "result", "%s", p.miss.Render("missed"))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderStats writes the aggregate figures of a dataset.
func RenderStats(w io.Writer, st Stats, asJSON bool) error {
	if asJSON {
		return encodeJSON(w, st)
	}

	p := newPrinter(w)
	var b strings.Builder
	b.WriteString(p.title.Render("Dataset") + "\n")
	p.row(&b, "deliveries", "%d of %d attempts (%.1f%%)", st.Deliveries, st.Attempts, st.SuccessRate*100)
	p.row(&b, "stumps hit", "%d (%.1f%%)", st.Hits, st.HitRate*100)
	p.row(&b, "mean swing", "%.2f m", st.MeanSwing)
	p.row(&b, "mean bounce", "%.2f m", st.MeanBounceX)
	p.row(&b, "max height", "%.2f m", st.MaxHeight)
	p.row(&b, "median z", "%.2f m", st.MedianFinalZ)

	_, err := io.WriteString(w, b.String())
	return err
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
