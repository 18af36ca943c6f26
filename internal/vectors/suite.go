package vectors

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

type format int

const (
	formatJSON format = iota
	formatYAML
)

func formatFor(path string) (format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON, nil
	case ".yaml", ".yml":
		return formatYAML, nil
	default:
		return 0, fmt.Errorf("unsupported suite extension %q (expected .json, .yaml or .yml)", filepath.Ext(path))
	}
}

// Load reads a suite from path, picking the codec from the file extension.
// Cases without expectations have them computed on load.
func Load(path string) (*Suite, error) {
	f, err := formatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite: %w", err)
	}
	s, err := decode(data, f)
	if err != nil {
		return nil, fmt.Errorf("parse suite %s: %w", path, err)
	}
	return s, nil
}

func decode(data []byte, f format) (*Suite, error) {
	var s Suite
	switch f {
	case formatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&s); err != nil {
			return nil, err
		}
	case formatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil {
			return nil, err
		}
	}
	if s.Version == 0 {
		s.Version = SuiteVersion
	}
	if s.Version != SuiteVersion {
		return nil, fmt.Errorf("unsupported suite version %d", s.Version)
	}
	for i := range s.Cases {
		c := &s.Cases[i]
		if c.Expected == nil && c.ExpectedNoBias == nil {
			if err := c.Shape.Check(make([]float32, c.Shape.OutputLen()), c.Input, c.Weight, c.Bias); err != nil {
				return nil, fmt.Errorf("case %q: %w", c.Name, err)
			}
			c.compute()
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// Save writes s to path in the format implied by its extension.
func Save(path string, s *Suite) error {
	f, err := formatFor(path)
	if err != nil {
		return err
	}
	if s.Version == 0 {
		s.Version = SuiteVersion
	}
	var data []byte
	switch f {
	case formatJSON:
		data, err = json.MarshalIndent(s, "", "  ")
		data = append(data, '\n')
	case formatYAML:
		data, err = yaml.Marshal(s)
	}
	if err != nil {
		return fmt.Errorf("encode suite: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create suite dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write suite: %w", err)
	}
	return nil
}
