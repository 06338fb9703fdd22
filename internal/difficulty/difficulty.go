// Package difficulty holds the catalog of difficulty tiers that tune the
// progression curve and reward scaling.
package difficulty

import (
	"fmt"
	"math"
)

// DefaultKey is the tier used when a key is missing or unknown.
const DefaultKey = "normal"

// Difficulty is one named tier of progression constants.
type Difficulty struct {
	Key              string  `yaml:"key" json:"key"`
	Name             string  `yaml:"name" json:"name"`
	BaseXP           int64   `yaml:"base_xp" json:"base_xp"`
	XPMultiplier     float64 `yaml:"xp_multiplier" json:"xp_multiplier"`
	MaxLevel         int     `yaml:"max_level" json:"max_level"`
	RewardMultiplier float64 `yaml:"reward_multiplier" json:"reward_multiplier"`
	ExclusiveRewards bool    `yaml:"exclusive_rewards" json:"exclusive_rewards"`
	Description      string  `yaml:"description" json:"description"`
}

// Info is the presentation view of a tier offered to a difficulty picker.
type Info struct {
	Name             string  `json:"name"`
	Description      string  `json:"description"`
	RewardMultiplier float64 `json:"reward_multiplier"`
	ExclusiveRewards bool    `json:"exclusive_rewards"`
}

// Details is the full view of the active tier shown on the stats page.
type Details struct {
	Info
	BaseXP   int64 `json:"base_xp"`
	MaxLevel int   `json:"max_level"`
}

// Info returns the picker view of d.
func (d Difficulty) Info() Info {
	return Info{
		Name:             d.Name,
		Description:      d.Description,
		RewardMultiplier: d.RewardMultiplier,
		ExclusiveRewards: d.ExclusiveRewards,
	}
}

// Details returns the stats view of d.
func (d Difficulty) Details() Details {
	return Details{Info: d.Info(), BaseXP: d.BaseXP, MaxLevel: d.MaxLevel}
}

func (d Difficulty) validate() error {
	switch {
	case d.Key == "":
		return fmt.Errorf("difficulty key is empty")
	case d.BaseXP <= 0:
		return fmt.Errorf("difficulty %q: base_xp must be positive, got %d", d.Key, d.BaseXP)
	case !(d.XPMultiplier > 1) || math.IsInf(d.XPMultiplier, 1):
		return fmt.Errorf("difficulty %q: xp_multiplier must be a finite number greater than 1, got %v", d.Key, d.XPMultiplier)
	case d.MaxLevel < 1:
		return fmt.Errorf("difficulty %q: max_level must be at least 1, got %d", d.Key, d.MaxLevel)
	case d.RewardMultiplier < 0:
		return fmt.Errorf("difficulty %q: reward_multiplier must not be negative, got %v", d.Key, d.RewardMultiplier)
	}
	return nil
}

// Catalog is an immutable set of tiers. The zero value is not usable; build
// one with NewCatalog or Default.
type Catalog struct {
	tiers map[string]Difficulty
	keys  []string
}

// NewCatalog builds a catalog from tiers. A tier keyed DefaultKey is required
// because unknown keys resolve to it.
func NewCatalog(tiers ...Difficulty) (*Catalog, error) {
	c := &Catalog{tiers: make(map[string]Difficulty, len(tiers))}
	for _, d := range tiers {
		if err := d.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.tiers[d.Key]; dup {
			return nil, fmt.Errorf("duplicate difficulty %q", d.Key)
		}
		c.tiers[d.Key] = d
		c.keys = append(c.keys, d.Key)
	}
	if _, ok := c.tiers[DefaultKey]; !ok {
		return nil, fmt.Errorf("catalog must define the %q difficulty", DefaultKey)
	}
	return c, nil
}

// Default returns the built-in easy/normal/hard catalog.
func Default() *Catalog {
	c, err := NewCatalog(builtin()...)
	if err != nil {
		panic(fmt.Sprintf("built-in difficulty catalog: %v", err))
	}
	return c
}

func builtin() []Difficulty {
	return []Difficulty{
		{
			Key:              "easy",
			Name:             "Explorador",
			BaseXP:           80,
			XPMultiplier:     1.3,
			MaxLevel:         120,
			RewardMultiplier: 1.0,
			Description:      "Progresión más rápida, ideal para explorar y aprender",
		},
		{
			Key:              "normal",
			Name:             "Geógrafo",
			BaseXP:           100,
			XPMultiplier:     1.5,
			MaxLevel:         100,
			RewardMultiplier: 1.2,
			Description:      "Progresión equilibrada, la experiencia clásica",
		},
		{
			Key:              "hard",
			Name:             "Maestro",
			BaseXP:           150,
			XPMultiplier:     1.8,
			MaxLevel:         80,
			RewardMultiplier: 1.5,
			ExclusiveRewards: true,
			Description:      "Progresión desafiante con recompensas exclusivas",
		},
	}
}

// Get returns the tier for key. Unknown keys silently resolve to the
// DefaultKey tier.
func (c *Catalog) Get(key string) Difficulty {
	if d, ok := c.tiers[key]; ok {
		return d
	}
	return c.tiers[DefaultKey]
}

// Lookup is Get without the fallback.
func (c *Catalog) Lookup(key string) (Difficulty, bool) {
	d, ok := c.tiers[key]
	return d, ok
}

// Keys returns tier keys in registration order.
func (c *Catalog) Keys() []string {
	return append([]string(nil), c.keys...)
}

// ListAvailable returns the picker view of every tier, keyed by tier key.
func (c *Catalog) ListAvailable() map[string]Info {
	out := make(map[string]Info, len(c.tiers))
	for k, d := range c.tiers {
		out[k] = d.Info()
	}
	return out
}

// All returns every tier in registration order.
func (c *Catalog) All() []Difficulty {
	out := make([]Difficulty, 0, len(c.keys))
	for _, k := range c.keys {
		out = append(out, c.tiers[k])
	}
	return out
}
