package presets

import (
	_ "embed"
	"fmt"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// Preset is an example architecture description shipped with the binary.
type Preset struct {
	Value       string `yaml:"value" json:"value"`
	Label       string `yaml:"label" json:"label"`
	Description string `yaml:"description" json:"description"`
}

//go:embed presets.yaml
var raw []byte

var (
	once    sync.Once
	catalog []Preset
	loadErr error
)

// Parse decodes a preset list from YAML.
func Parse(data []byte) ([]Preset, error) {
	var out []Preset
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	seen := make(map[string]bool, len(out))
	for _, p := range out {
		if p.Value == "" {
			return nil, fmt.Errorf("parse presets: preset %q has no value", p.Label)
		}
		if seen[p.Value] {
			return nil, fmt.Errorf("parse presets: duplicate value %q", p.Value)
		}
		seen[p.Value] = true
	}
	return out, nil
}

func load() ([]Preset, error) {
	once.Do(func() {
		catalog, loadErr = Parse(raw)
	})
	return catalog, loadErr
}

// All returns the embedded presets in display order.
func All() ([]Preset, error) {
	list, err := load()
	if err != nil {
		return nil, err
	}
	return slices.Clone(list), nil
}

// Find looks a preset up by value.
func Find(value string) (Preset, bool) {
	list, err := load()
	if err != nil {
		return Preset{}, false
	}
	for _, p := range list {
		if p.Value == value {
			return p, true
		}
	}
	return Preset{}, false
}
