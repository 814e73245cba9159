// Package simulator models a bowled cricket ball: its flight under drag and
// seam swing, a single bounce on the pitch, and whether it would hit the
// stumps at the batsman's end.
//
// Coordinates: x runs down the pitch from the bowler's stumps, y is height
// above the pitch and z is the lateral offset from the middle stump.
package simulator

import (
	"errors"
	"fmt"
	"math"
)

// Physics holds the constants of the model. DefaultPhysics matches a regular
// men's ball on a standard pitch.
type Physics struct {
	Gravity       float64 `yaml:"gravity"`
	AirDensity    float64 `yaml:"airDensity"`
	BallRadius    float64 `yaml:"ballRadius"`
	BallMass      float64 `yaml:"ballMass"`
	DragCoeff     float64 `yaml:"dragCoeff"`
	MaxSeamLift   float64 `yaml:"maxSeamLift"`
	TimeStep      float64 `yaml:"timeStep"`
	MaxTime       float64 `yaml:"maxTime"`
	ReleaseHeight float64 `yaml:"releaseHeight"`
	ReleaseOffset float64 `yaml:"releaseOffset"`
	PitchLength   float64 `yaml:"pitchLength"`
	PitchWidth    float64 `yaml:"pitchWidth"`
	PitchMargin   float64 `yaml:"pitchMargin"`
}

func DefaultPhysics() Physics {
	return Physics{
		Gravity:       9.81,
		AirDensity:    1.225,
		BallRadius:    0.036,
		BallMass:      0.156,
		DragCoeff:     0.5,
		MaxSeamLift:   0.25,
		TimeStep:      0.001,
		MaxTime:       2.0,
		ReleaseHeight: 2.0,
		ReleaseOffset: 0.75,
		PitchLength:   20.12,
		PitchWidth:    3.0,
	}
}

// Area is the cross-section of the ball.
func (p Physics) Area() float64 {
	return math.Pi * p.BallRadius * p.BallRadius
}

// lateralLimit is how far the ball may drift sideways before it has left the
// pitch.
func (p Physics) lateralLimit() float64 {
	return p.PitchWidth/2 + p.PitchMargin
}

func (p Physics) Validate() error {
	var errs []error
	if p.TimeStep <= 0 || p.MaxTime <= p.TimeStep {
		errs = append(errs, fmt.Errorf("time step %g must be positive and below max time %g", p.TimeStep, p.MaxTime))
	}
	if p.BallMass <= 0 {
		errs = append(errs, fmt.Errorf("ball mass %g must be positive", p.BallMass))
	}
	if p.PitchLength <= 0 || p.PitchWidth <= 0 {
		errs = append(errs, fmt.Errorf("pitch %gx%g must have a positive size", p.PitchLength, p.PitchWidth))
	}
	return errors.Join(errs...)
}

// Params describe a single delivery. Angles are in degrees.
type Params struct {
	Speed       float64 `json:"initial_speed_mps" yaml:"speed"`
	AngleY      float64 `json:"initial_vertical_angle_deg" yaml:"angleY"`
	AngleZ      float64 `json:"initial_horizontal_angle_deg" yaml:"angleZ"`
	SeamAngle   float64 `json:"seam_angle_deg" yaml:"seamAngle"`
	Restitution float64 `json:"coefficient_of_restitution" yaml:"restitution"`
	Friction    float64 `json:"friction_factor" yaml:"friction"`
}

// DefaultParams is a 130 km/h delivery, released slightly downwards with
// the seam at 20 degrees.
func DefaultParams() Params {
	return Params{
		Speed:       130 / 3.6,
		AngleY:      -5,
		AngleZ:      0,
		SeamAngle:   20,
		Restitution: 0.7,
		Friction:    0.8,
	}
}

func (p Params) Validate() error {
	var errs []error
	if p.Speed <= 0 {
		errs = append(errs, fmt.Errorf("speed %g must be positive", p.Speed))
	}
	if p.Restitution < 0 || p.Restitution > 1 {
		errs = append(errs, fmt.Errorf("restitution %g must be within [0, 1]", p.Restitution))
	}
	if p.Friction < 0 || p.Friction > 1 {
		errs = append(errs, fmt.Errorf("friction %g must be within [0, 1]", p.Friction))
	}
	return errors.Join(errs...)
}

func (p Params) String() string {
	return fmt.Sprintf("v0=%g, angle_y=%g, angle_z=%g, seam_angle=%g, e=%g, mu=%g",
		p.Speed, p.AngleY, p.AngleZ, p.SeamAngle, p.Restitution, p.Friction)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
