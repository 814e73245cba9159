package simulator

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var logColumns = []string{"time (s)", "x (m)", "y (m)", "z (m)", "vx (m/s)", "vy (m/s)", "vz (m/s)", "v (m/s)"}

// WriteLog writes a trajectory as CSV. The first line is a "#" comment with
// the delivery parameters, followed by a header row and one row per sample.
func WriteLog(w io.Writer, t *Trajectory) error {
	if _, err := fmt.Fprintf(w, "# %s\n", t.Params); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(logColumns); err != nil {
		return err
	}
	row := make([]string, len(logColumns))
	for _, s := range t.Samples {
		for i, v := range []float64{s.Time, s.X, s.Y, s.Z, s.VX, s.VY, s.VZ, s.Speed()} {
			row[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadLog reads a trajectory written by WriteLog.
func ReadLog(r io.Reader) (*Trajectory, error) {
	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("reading parameter header: %w", err)
	}
	params, err := parseParams(header)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = len(logColumns)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading samples: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("missing column header")
	}

	t := &Trajectory{Params: params, Samples: make([]Sample, 0, len(rows)-1)}
	for n, row := range rows[1:] {
		var vals [7]float64
		for i := range vals {
			if vals[i], err = strconv.ParseFloat(row[i], 64); err != nil {
				return nil, fmt.Errorf("row %d, column %q: %w", n+1, logColumns[i], err)
			}
		}
		t.Samples = append(t.Samples, Sample{
			Time: vals[0], X: vals[1], Y: vals[2], Z: vals[3],
			VX: vals[4], VY: vals[5], VZ: vals[6],
		})
		if n > 0 && t.Samples[n].VY > 0 && t.Samples[n-1].VY < 0 {
			t.Bounced = true
		}
	}
	return t, nil
}

func parseParams(line string) (Params, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "#") {
		return Params{}, fmt.Errorf("expected parameter comment, got %q", line)
	}

	var p Params
	fields := map[string]*float64{
		"v0":         &p.Speed,
		"angle_y":    &p.AngleY,
		"angle_z":    &p.AngleZ,
		"seam_angle": &p.SeamAngle,
		"e":          &p.Restitution,
		"mu":         &p.Friction,
	}
	for _, item := range strings.Split(strings.TrimPrefix(line, "#"), ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(item), "=")
		if !ok {
			return Params{}, fmt.Errorf("malformed parameter %q", item)
		}
		dst, known := fields[key]
		if !known {
			continue
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Params{}, fmt.Errorf("parameter %s: %w", key, err)
		}
		*dst = v
	}
	return p, nil
}
