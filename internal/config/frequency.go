package config

import (
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"
)

// Frequency is a physic.Frequency usable as a YAML scalar and a pflag
// value, written like "30Hz" or "500mHz". A bare number is in hertz.
type Frequency struct {
	physic.Frequency
}

// Type implements pflag.Value.
func (f *Frequency) Type() string {
	return "frequency"
}

func (f *Frequency) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	return f.Set(s)
}

func (f Frequency) MarshalYAML() (any, error) {
	return f.String(), nil
}
