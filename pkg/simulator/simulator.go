package simulator

import (
	"errors"
	"math"
)

// ErrLeftPitch is returned when the ball drifts off the side of the pitch
// before reaching the batsman's end.
var ErrLeftPitch = errors.New("ball left the pitch before reaching the stumps")

// minBounceSpeed is the vertical speed after the bounce below which the ball
// is considered dead.
const minBounceSpeed = 0.2

// Sample is the state of the ball at one time step.
type Sample struct {
	Time float64 `json:"t"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
	VX   float64 `json:"vx"`
	VY   float64 `json:"vy"`
	VZ   float64 `json:"vz"`
}

// Speed is the magnitude of the velocity.
func (s Sample) Speed() float64 {
	return math.Sqrt(s.VX*s.VX + s.VY*s.VY + s.VZ*s.VZ)
}

type Trajectory struct {
	Params  Params
	Samples []Sample
	Bounced bool
}

// Final is the last recorded state.
func (t *Trajectory) Final() Sample {
	return t.Samples[len(t.Samples)-1]
}

type Simulator struct {
	Physics Physics
}

func New(physics Physics) *Simulator {
	return &Simulator{Physics: physics}
}

// Simulate integrates the flight of one delivery with a fixed time step.
//
// The ball bounces once when it first reaches the ground: the vertical
// velocity is reversed and scaled by the restitution, the horizontal ones by
// the friction. The run ends when the ball passes the batsman's end, dies
// after the bounce, drops well below the surface or runs out of time.
func (s *Simulator) Simulate(p Params) (*Trajectory, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	ph := s.Physics
	if err := ph.Validate(); err != nil {
		return nil, err
	}

	angleY, angleZ := radians(p.AngleY), radians(p.AngleZ)
	dt := ph.TimeStep
	steps := int(ph.MaxTime / dt)

	// aerodynamic forces share the factor 0.5*rho*A*|v|^2
	aero := 0.5 * ph.AirDensity * ph.Area()
	swingLift := ph.MaxSeamLift * math.Sin(radians(p.SeamAngle))

	cur := Sample{
		Y:  ph.ReleaseHeight,
		Z:  ph.ReleaseOffset,
		VX: p.Speed * math.Cos(angleY) * math.Cos(angleZ),
		VY: p.Speed * math.Sin(angleY),
		VZ: p.Speed * math.Cos(angleY) * math.Sin(angleZ),
	}
	t := &Trajectory{Params: p, Samples: make([]Sample, 0, steps)}
	t.Samples = append(t.Samples, cur)

	for i := 1; i < steps-1; i++ {
		if cur.X > ph.PitchLength || math.Abs(cur.Z) > ph.lateralLimit() {
			if cur.X < ph.PitchLength {
				return nil, ErrLeftPitch
			}
			break
		}
		if cur.Y < -1 {
			break
		}

		if !t.Bounced && cur.Y > 0 && cur.Y+cur.VY*dt <= 0 {
			t.Bounced = true
			cur = bounce(cur, dt, p)
			cur.Time = float64(i) * dt
			t.Samples = append(t.Samples, cur)
			if math.Abs(cur.VY) < minBounceSpeed {
				break
			}
			continue
		}

		cur = step(cur, dt, aero*ph.DragCoeff, aero*swingLift, ph)
		cur.Time = float64(i) * dt
		t.Samples = append(t.Samples, cur)
	}

	return t, nil
}

// bounce resolves the impact within the step: the ball travels to the
// ground, loses speed and spends the rest of the step moving upwards.
func bounce(cur Sample, dt float64, p Params) Sample {
	hit := -cur.Y / cur.VY
	rest := dt - hit

	out := Sample{
		VX: cur.VX * p.Friction,
		VY: -cur.VY * p.Restitution,
		VZ: cur.VZ * p.Friction,
	}
	out.X = cur.X + cur.VX*hit + out.VX*rest
	out.Y = out.VY * rest
	out.Z = cur.Z + cur.VZ*hit + out.VZ*rest
	return out
}

// step advances one explicit Euler step under drag, seam swing and gravity.
// Swing always pushes along +z; the seam angle sets its sign and strength.
func step(cur Sample, dt, drag, swing float64, ph Physics) Sample {
	v := cur.Speed()
	dragForce := drag * v * v / (v + 1e-8)

	ax := -dragForce * cur.VX / ph.BallMass
	ay := -dragForce*cur.VY/ph.BallMass - ph.Gravity
	az := (-dragForce*cur.VZ + swing*v*v) / ph.BallMass

	return Sample{
		X:  cur.X + cur.VX*dt,
		Y:  cur.Y + cur.VY*dt,
		Z:  cur.Z + cur.VZ*dt,
		VX: cur.VX + ax*dt,
		VY: cur.VY + ay*dt,
		VZ: cur.VZ + az*dt,
	}
}
