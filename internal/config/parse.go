package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParsePolicy reads a policy document and applies it over the default
// policy: a route in the document replaces the default route with the same
// method and path. Routes not known to the service are rejected, as are
// documents with unknown fields.
func ParsePolicy(data []byte) (*Policy, error) {
	var doc Policy

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("policy document is invalid: %w", err)
	}

	sanitizePolicy(&doc)

	policy := NewDefaultPolicy()
	if err := mergePolicy(policy, &doc); err != nil {
		return nil, err
	}

	return policy, nil
}

// Method and path are normalized; permissions are compared exactly and are
// left as written.
func sanitizePolicy(p *Policy) {
	for i := range p.Routes {
		p.Routes[i].Method = strings.ToUpper(strings.TrimSpace(p.Routes[i].Method))
		p.Routes[i].Path = strings.TrimSpace(p.Routes[i].Path)
		p.Routes[i].Permission = strings.TrimSpace(p.Routes[i].Permission)
	}
}

func mergePolicy(base, overrides *Policy) error {
	index := make(map[string]int, len(base.Routes))
	for i, r := range base.Routes {
		index[r.Pattern()] = i
	}

	for _, r := range overrides.Routes {
		i, ok := index[r.Pattern()]
		if !ok {
			return fmt.Errorf("policy route %q is not a known route", r.Pattern())
		}
		base.Routes[i].Permission = r.Permission
	}

	return nil
}
