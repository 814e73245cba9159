package simulator

import "math"

// Stump geometry at the batsman's end.
const (
	StumpHeight = 0.71
	// StumpHalfWidth is how far from the middle stump a ball still hits the
	// wicket.
	StumpHalfWidth = 0.15
	// stumpWindow is the tolerance around the stump line when looking for the
	// sample that crosses it.
	stumpWindow = 0.1
	// groundContact is the height below which a sample counts as touching
	// the pitch.
	groundContact = 0.05
)

// Outcome summarises a delivery.
type Outcome struct {
	Params Params `json:"params"`

	FinalX    float64 `json:"final_x_position_m"`
	FinalY    float64 `json:"final_y_position_m"`
	FinalZ    float64 `json:"final_z_position_m"`
	MaxHeight float64 `json:"max_height_m"`
	Swing     float64 `json:"swing_distance_m"`
	HitStumps bool    `json:"hit_stumps"`

	// BounceX is -1 when the ball never bounced.
	BounceX float64 `json:"bounce_x_position_m"`

	Trajectory *Trajectory `json:"-"`
}

// Evaluate simulates p and measures the result. The swing is the lateral
// distance to the same delivery bowled with the seam upright.
func (s *Simulator) Evaluate(p Params) (*Outcome, error) {
	t, err := s.Simulate(p)
	if err != nil {
		return nil, err
	}

	final := t.Final()
	o := &Outcome{
		Params:     p,
		FinalX:     final.X,
		FinalY:     final.Y,
		FinalZ:     final.Z,
		HitStumps:  s.HitsStumps(t),
		BounceX:    -1,
		Trajectory: t,
	}

	from := 0
	if i := bounceIndex(t.Samples); i >= 0 {
		o.BounceX = t.Samples[i].X
		from = i
	}
	o.MaxHeight = maxHeight(t.Samples[from:])

	upright := p
	upright.SeamAngle = 0
	if plain, err := s.Simulate(upright); err == nil {
		o.Swing = final.Z - plain.Final().Z
	}

	return o, nil
}

// HitsStumps reports whether the ball passes the stump line low and
// straight enough to hit the wicket.
func (s *Simulator) HitsStumps(t *Trajectory) bool {
	for _, smp := range t.Samples {
		if math.Abs(smp.X-s.Physics.PitchLength) <= stumpWindow {
			return smp.Y <= StumpHeight && math.Abs(smp.Z) <= StumpHalfWidth
		}
	}
	return false
}

// bounceIndex returns the first sample where the ball comes off the ground,
// or -1.
func bounceIndex(samples []Sample) int {
	for i := 1; i < len(samples); i++ {
		if samples[i].Y < groundContact && samples[i-1].VY < 0 && samples[i].VY >= 0 {
			return i
		}
	}
	return -1
}

func maxHeight(samples []Sample) float64 {
	h := math.Inf(-1)
	for _, smp := range samples {
		h = math.Max(h, smp.Y)
	}
	return h
}
