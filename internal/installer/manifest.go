package installer

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const ManifestFile = "splits.yaml"

// Manifest records what a fetch session put on disk so an installer can pick
// the set up without further input.
type Manifest struct {
	Version  string  `yaml:"version"`
	Variant  string  `yaml:"variant"`
	ABI      string  `yaml:"abi"`
	Language string  `yaml:"lang"`
	Theme    string  `yaml:"theme"`
	Splits   []Split `yaml:"splits"`
}

type Split struct {
	Stage string `yaml:"stage"`
	File  string `yaml:"file"`
	Size  int64  `yaml:"size,omitempty"`
}

// Base returns the theme split, which carries the base manifest and has to be
// installed first.
func (m *Manifest) Base() (Split, bool) {
	for _, s := range m.Splits {
		if s.Stage == "theme" {
			return s, true
		}
	}
	return Split{}, false
}

// Ordered returns the splits with the base first, the rest in fetch order.
func (m *Manifest) Ordered() []Split {
	ordered := make([]Split, 0, len(m.Splits))
	if base, ok := m.Base(); ok {
		ordered = append(ordered, base)
	}
	for _, s := range m.Splits {
		if s.Stage != "theme" {
			ordered = append(ordered, s)
		}
	}
	return ordered
}

func WriteManifest(dir string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("error encoding manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0644); err != nil {
		return fmt.Errorf("error writing manifest: %v", err)
	}
	return nil
}

func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("error reading manifest: %v", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("error parsing manifest: %v", err)
	}
	if len(m.Splits) == 0 {
		return nil, fmt.Errorf("manifest in %s lists no splits", dir)
	}
	for _, s := range m.Splits {
		if _, err := os.Stat(filepath.Join(dir, s.File)); err != nil {
			return nil, fmt.Errorf("split %s missing: %v", s.File, err)
		}
	}
	return &m, nil
}
