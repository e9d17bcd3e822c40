package telemetry

import (
	"github.com/mcuadros/go-defaults"
)

// Profile is the user profile sent with a plan request. Zero fields take
// the defaults.
type Profile struct {
	Age          int     `json:"age,omitempty" yaml:"age" default:"30"`
	Gender       string  `json:"gender,omitempty" yaml:"gender" default:"Male"`
	Height       float64 `json:"height,omitempty" yaml:"height" default:"170"`
	Weight       float64 `json:"weight,omitempty" yaml:"weight" default:"70"`
	FitnessLevel string  `json:"fitness_level,omitempty" yaml:"fitness_level" default:"beginner"`
	FitnessGoal  string  `json:"fitness_goal,omitempty" yaml:"fitness_goal" default:"general_fitness"`
}

// DefaultProfile returns the built-in profile defaults.
func DefaultProfile() Profile {
	p := Profile{}
	defaults.SetDefaults(&p)
	return p
}

// WithDefaults returns p with every zero field taken from base.
func (p Profile) WithDefaults(base Profile) Profile {
	if p.Age == 0 {
		p.Age = base.Age
	}
	if p.Gender == "" {
		p.Gender = base.Gender
	}
	if p.Height == 0 {
		p.Height = base.Height
	}
	if p.Weight == 0 {
		p.Weight = base.Weight
	}
	if p.FitnessLevel == "" {
		p.FitnessLevel = base.FitnessLevel
	}
	if p.FitnessGoal == "" {
		p.FitnessGoal = base.FitnessGoal
	}
	return p
}
