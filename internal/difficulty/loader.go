package difficulty

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads the difficulties section of a YAML catalog file:
//
//	difficulties:
//	  - key: normal
//	    name: Geógrafo
//	    base_xp: 100
//	    xp_multiplier: 1.5
//	    max_level: 100
//	    reward_multiplier: 1.2
//
// Other top-level sections are ignored.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read difficulty catalog: %w", err)
	}
	return Parse(data)
}

// Parse is LoadFile for an in-memory document.
func Parse(data []byte) (*Catalog, error) {
	var doc struct {
		Difficulties []Difficulty `yaml:"difficulties"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse difficulty catalog: %w", err)
	}
	if len(doc.Difficulties) == 0 {
		return nil, fmt.Errorf("difficulty catalog has no difficulties")
	}

	c, err := NewCatalog(doc.Difficulties...)
	if err != nil {
		return nil, fmt.Errorf("build difficulty catalog: %w", err)
	}

	slog.Debug("difficulty catalog loaded", "tiers", len(c.keys))
	return c, nil
}
