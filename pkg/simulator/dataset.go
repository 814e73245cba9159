package simulator

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"

	"github.com/montanaflynn/stats"
	"go.trai.ch/zerr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (r Range) sample(rng *rand.Rand) float64 {
	return r.Min + rng.Float64()*(r.Max-r.Min)
}

// Ranges bound the randomly drawn parameters of a dataset.
type Ranges struct {
	Speed       Range `yaml:"speed"`
	AngleY      Range `yaml:"angleY"`
	AngleZ      Range `yaml:"angleZ"`
	SeamAngle   Range `yaml:"seamAngle"`
	Restitution Range `yaml:"restitution"`
	Friction    Range `yaml:"friction"`
}

func DefaultRanges() Ranges {
	return Ranges{
		Speed:       Range{30, 42},
		AngleY:      Range{-10, 0},
		AngleZ:      Range{-5, 5},
		SeamAngle:   Range{-90, 90},
		Restitution: Range{0.5, 0.8},
		Friction:    Range{0.5, 0.8},
	}
}

func (r Ranges) draw(rng *rand.Rand) Params {
	return Params{
		Speed:       r.Speed.sample(rng),
		AngleY:      r.AngleY.sample(rng),
		AngleZ:      r.AngleZ.sample(rng),
		SeamAngle:   r.SeamAngle.sample(rng),
		Restitution: r.Restitution.sample(rng),
		Friction:    r.Friction.sample(rng),
	}
}

// Record is one accepted delivery of a dataset.
type Record struct {
	*Outcome
	LogFile string `json:"log_file,omitempty"`
}

type Dataset struct {
	Records  []Record
	Attempts int
}

// Stats are the aggregate figures of a dataset.
type Stats struct {
	Deliveries   int     `json:"deliveries"`
	Attempts     int     `json:"attempts"`
	SuccessRate  float64 `json:"success_rate"`
	Hits         int     `json:"hits"`
	HitRate      float64 `json:"hit_rate"`
	MeanSwing    float64 `json:"mean_swing_m"`
	MeanBounceX  float64 `json:"mean_bounce_x_m"`
	MaxHeight    float64 `json:"max_height_m"`
	MedianFinalZ float64 `json:"median_final_z_m"`
}

// Stats computes the aggregate figures. Deliveries without a bounce are left
// out of the bounce mean.
func (d *Dataset) Stats() (Stats, error) {
	st := Stats{Deliveries: len(d.Records), Attempts: d.Attempts}
	if d.Attempts > 0 {
		st.SuccessRate = float64(len(d.Records)) / float64(d.Attempts)
	}
	if len(d.Records) == 0 {
		return st, nil
	}

	var swing, bounceX, height, finalZ stats.Float64Data
	for _, r := range d.Records {
		if r.HitStumps {
			st.Hits++
		}
		swing = append(swing, r.Swing)
		height = append(height, r.MaxHeight)
		finalZ = append(finalZ, r.FinalZ)
		if r.BounceX >= 0 {
			bounceX = append(bounceX, r.BounceX)
		}
	}
	st.HitRate = float64(st.Hits) / float64(len(d.Records))

	var err error
	if st.MeanSwing, err = stats.Mean(swing); err != nil {
		return st, zerr.Wrap(err, "mean swing")
	}
	if st.MaxHeight, err = stats.Max(height); err != nil {
		return st, zerr.Wrap(err, "max height")
	}
	if st.MedianFinalZ, err = stats.Median(finalZ); err != nil {
		return st, zerr.Wrap(err, "median final z")
	}
	if len(bounceX) > 0 {
		if st.MeanBounceX, err = stats.Mean(bounceX); err != nil {
			return st, zerr.Wrap(err, "mean bounce")
		}
	}
	return st, nil
}

// Generator produces datasets of random deliveries.
type Generator struct {
	Simulator *Simulator
	Ranges    Ranges
	Rand      *rand.Rand
	Logger    *zap.Logger

	// LogDir receives one CSV log per accepted delivery when set.
	LogDir      string
	Concurrency int
}

// Generate draws deliveries until n of them reach at least halfway down the
// pitch without leaving it, giving up after 2n attempts. Parameters are
// drawn in order from Rand, so a seeded generator is reproducible whatever
// the concurrency.
func (g *Generator) Generate(ctx context.Context, n int) (*Dataset, error) {
	if n <= 0 {
		return nil, fmt.Errorf("number of deliveries must be positive, got %d", n)
	}
	logger := g.logger()
	if g.LogDir != "" {
		if err := os.MkdirAll(g.LogDir, 0o755); err != nil {
			return nil, zerr.With(zerr.Wrap(err, "creating log directory"), "dir", g.LogDir)
		}
	}

	ds := &Dataset{}
	maxAttempts := 2 * n

	for len(ds.Records) < n && ds.Attempts < maxAttempts {
		batch := min(n-len(ds.Records), maxAttempts-ds.Attempts)
		params := make([]Params, batch)
		for i := range params {
			params[i] = g.Ranges.draw(g.Rand)
		}
		ds.Attempts += batch

		outcomes, err := g.evaluate(ctx, params)
		if err != nil {
			return nil, err
		}

		for _, o := range outcomes {
			if o == nil || o.FinalX < g.Simulator.Physics.PitchLength/2 {
				continue
			}
			rec := Record{Outcome: o}
			if g.LogDir != "" {
				rec.LogFile = filepath.Join(g.LogDir, fmt.Sprintf("sim_%04d.csv", len(ds.Records)))
				if err := writeLogFile(rec.LogFile, o.Trajectory); err != nil {
					return nil, err
				}
			}
			ds.Records = append(ds.Records, rec)

			if len(ds.Records)%50 == 0 {
				logger.Info("Generated deliveries", zap.Int("valid", len(ds.Records)), zap.Int("target", n))
			}
		}
	}

	logger.Debug("Dataset complete",
		zap.Int("valid", len(ds.Records)),
		zap.Int("attempts", ds.Attempts))
	return ds, nil
}

// evaluate runs the deliveries concurrently. Deliveries that leave the pitch
// yield a nil outcome.
func (g *Generator) evaluate(ctx context.Context, params []Params) ([]*Outcome, error) {
	outcomes := make([]*Outcome, len(params))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(g.Concurrency, 1))
	for i, p := range params {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			o, err := g.Simulator.Evaluate(p)
			switch {
			case errors.Is(err, ErrLeftPitch):
				return nil
			case err != nil:
				return zerr.With(zerr.Wrap(err, "simulating delivery"), "params", p.String())
			}
			outcomes[i] = o
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func writeLogFile(path string, t *Trajectory) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "creating log file"), "path", path)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteLog(f, t)
}

var datasetColumns = []string{
	"initial_speed_mps", "initial_vertical_angle_deg", "initial_horizontal_angle_deg",
	"seam_angle_deg", "coefficient_of_restitution", "friction_factor",
	"final_x_position_m", "final_z_position_m", "final_y_position_m",
	"bounce_x_position_m", "max_height_m", "swing_distance_m", "hit_stumps",
	"log_file",
}

// WriteCSV writes one row per record with the parameters and outcome.
func (d *Dataset) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(datasetColumns); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for _, r := range d.Records {
		p := r.Params
		row := []string{
			f(p.Speed), f(p.AngleY), f(p.AngleZ), f(p.SeamAngle), f(p.Restitution), f(p.Friction),
			f(r.FinalX), f(r.FinalZ), f(r.FinalY), f(r.BounceX), f(r.MaxHeight), f(r.Swing),
			strconv.FormatBool(r.HitStumps), r.LogFile,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (g *Generator) logger() *zap.Logger {
	if g.Logger == nil {
		return zap.NewNop()
	}
	return g.Logger
}
