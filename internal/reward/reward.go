// Package reward derives the titles, badges and features a level unlocks.
// Rewards are cumulative: everything unlocked at a lower level stays unlocked.
package reward

import (
	"fmt"
	"sort"
	"strings"

	"github.com/geograpy/geograpy/internal/difficulty"
)

// Feature flags unlocked by the built-in tiers.
const (
	FeatureCustomProfile       = "custom_profile"
	FeatureCreateCustomQuizzes = "create_custom_quizzes"
	FeatureCustomTheme         = "custom_theme"
	FeatureCreateChallenges    = "create_challenges"
)

// LevelRewards lists everything unlocked up to a level, in the order the
// thresholds were crossed.
type LevelRewards struct {
	Titles   []string `json:"titles"`
	Badges   []string `json:"badges"`
	Features []string `json:"features"`
}

// Empty reports whether nothing is unlocked.
func (r LevelRewards) Empty() bool {
	return len(r.Titles) == 0 && len(r.Badges) == 0 && len(r.Features) == 0
}

// Tier is one reward threshold. Title and Badge may contain the {name}
// and {key} placeholders, replaced with the difficulty's display name and
// key. Feature is optional.
type Tier struct {
	Level   int    `yaml:"level" json:"level"`
	Title   string `yaml:"title" json:"title"`
	Badge   string `yaml:"badge" json:"badge"`
	Feature string `yaml:"feature,omitempty" json:"feature,omitempty"`
}

// Catalog holds the universal tiers every difficulty earns and the
// exclusive tiers only difficulties with ExclusiveRewards earn.
type Catalog struct {
	universal []Tier
	exclusive []Tier
}

// NewCatalog builds a catalog. Tiers are sorted by level so iteration
// order always matches threshold order.
func NewCatalog(universal, exclusive []Tier) (*Catalog, error) {
	u, err := sortedTiers(universal)
	if err != nil {
		return nil, fmt.Errorf("universal tiers: %w", err)
	}
	e, err := sortedTiers(exclusive)
	if err != nil {
		return nil, fmt.Errorf("exclusive tiers: %w", err)
	}
	return &Catalog{universal: u, exclusive: e}, nil
}

func sortedTiers(tiers []Tier) ([]Tier, error) {
	out := append([]Tier(nil), tiers...)
	for _, t := range out {
		if t.Level < 1 {
			return nil, fmt.Errorf("tier level must be at least 1, got %d", t.Level)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}

// Default returns the built-in reward tables.
func Default() *Catalog {
	c, err := NewCatalog(
		[]Tier{
			{Level: 5, Title: "{name} Novato", Badge: "Insignia {key} 1"},
			{Level: 10, Title: "{name} Aprendiz", Badge: "Insignia {key} 2"},
			{Level: 25, Title: "{name} Experto", Badge: "Insignia {key} 3", Feature: FeatureCustomProfile},
			{Level: 50, Title: "{name} Legendario", Badge: "Insignia {key} 4", Feature: FeatureCreateCustomQuizzes},
		},
		[]Tier{
			{Level: 5, Title: "Maestro Intrépido", Badge: "Corona de Espinas"},
			{Level: 15, Title: "Sabio de la Geografía", Badge: "Pergamino de la Sabiduría"},
			{Level: 30, Title: "Leyenda Geográfica", Badge: "Globo de Oro", Feature: FeatureCustomTheme},
			{Level: 60, Title: "Deidad Geográfica", Badge: "Jardin del Edén", Feature: FeatureCreateChallenges},
		},
	)
	if err != nil {
		panic(fmt.Sprintf("built-in reward catalog: %v", err))
	}
	return c
}

// RewardsForLevel returns everything unlocked at level for d.
func (c *Catalog) RewardsForLevel(level int, d difficulty.Difficulty) LevelRewards {
	r := LevelRewards{Titles: []string{}, Badges: []string{}, Features: []string{}}
	names := strings.NewReplacer("{name}", d.Name, "{key}", d.Key)

	collect := func(tiers []Tier) {
		for _, t := range tiers {
			if t.Level > level {
				return
			}
			if t.Title != "" {
				r.Titles = append(r.Titles, names.Replace(t.Title))
			}
			if t.Badge != "" {
				r.Badges = append(r.Badges, names.Replace(t.Badge))
			}
			if t.Feature != "" {
				r.Features = append(r.Features, t.Feature)
			}
		}
	}

	collect(c.universal)
	if d.ExclusiveRewards {
		collect(c.exclusive)
	}
	return r
}

// NextUnlock returns the lowest threshold above level that d can still
// reach, or false when nothing is left.
func (c *Catalog) NextUnlock(level int, d difficulty.Difficulty) (int, bool) {
	next := 0
	consider := func(tiers []Tier) {
		for _, t := range tiers {
			if t.Level > level && t.Level <= d.MaxLevel {
				if next == 0 || t.Level < next {
					next = t.Level
				}
				return
			}
		}
	}

	consider(c.universal)
	if d.ExclusiveRewards {
		consider(c.exclusive)
	}
	return next, next != 0
}

// Unlocked returns the rewards present in after but not in before. Callers
// use it to announce what a level-up just unlocked.
func Unlocked(before, after LevelRewards) LevelRewards {
	return LevelRewards{
		Titles:   subtract(after.Titles, before.Titles),
		Badges:   subtract(after.Badges, before.Badges),
		Features: subtract(after.Features, before.Features),
	}
}

func subtract(all, have []string) []string {
	seen := make(map[string]int, len(have))
	for _, h := range have {
		seen[h]++
	}
	out := []string{}
	for _, a := range all {
		if seen[a] > 0 {
			seen[a]--
			continue
		}
		out = append(out, a)
	}
	return out
}
