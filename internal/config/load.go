package config

import (
	"bytes"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadPolicy reads the policy file at path. An empty path gives the default
// policy.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return NewDefaultPolicy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePolicy(data)
}

// Encode renders the policy as YAML, for logging the effective policy.
func (p *Policy) Encode() (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	err := enc.Encode(p)
	if err != nil {
		return "", err
	}

	return buf.String(), nil
}
