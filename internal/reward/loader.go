package reward

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads the rewards section of a YAML catalog file:
//
//	rewards:
//	  universal:
//	    - {level: 5, title: "{name} Novato", badge: "Insignia {key} 1"}
//	  exclusive:
//	    - {level: 30, title: Leyenda Geográfica, badge: Globo de Oro, feature: custom_theme}
//
// A file without a rewards section yields the built-in catalog.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reward catalog: %w", err)
	}
	return Parse(data)
}

// Parse is LoadFile for an in-memory document.
func Parse(data []byte) (*Catalog, error) {
	var doc struct {
		Rewards *struct {
			Universal []Tier `yaml:"universal"`
			Exclusive []Tier `yaml:"exclusive"`
		} `yaml:"rewards"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse reward catalog: %w", err)
	}
	if doc.Rewards == nil {
		return Default(), nil
	}
	return NewCatalog(doc.Rewards.Universal, doc.Rewards.Exclusive)
}
