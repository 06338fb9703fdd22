package level

import (
	"math/big"

	"github.com/geograpy/geograpy/internal/difficulty"
	"github.com/geograpy/geograpy/internal/exam"
	"github.com/geograpy/geograpy/internal/reward"
)

// LevelSystem is the progression contract for one difficulty tier.
type LevelSystem interface {
	Difficulty() difficulty.Difficulty
	XPRequiredForLevel(level int) *big.Int
	ProgressFor(totalXP *big.Int) Progress
	ExamRewards(examBaseXP, correct, total int) (exam.Rewards, error)
	LevelRewards(level int) reward.LevelRewards
}

// System implements LevelSystem on top of an Engine and a reward catalog.
type System struct {
	*Engine
	rewards *reward.Catalog
}

var _ LevelSystem = (*System)(nil)

// NewSystem builds the system for d. A nil catalog means reward.Default().
func NewSystem(d difficulty.Difficulty, rewards *reward.Catalog) *System {
	if rewards == nil {
		rewards = reward.Default()
	}
	return &System{Engine: NewEngine(d), rewards: rewards}
}

// ExamRewards scores one exam attempt under the system's difficulty.
func (s *System) ExamRewards(examBaseXP, correct, total int) (exam.Rewards, error) {
	return exam.Compute(examBaseXP, correct, total, s.d)
}

// LevelRewards returns everything unlocked at level.
func (s *System) LevelRewards(level int) reward.LevelRewards {
	return s.rewards.RewardsForLevel(level, s.d)
}

// NextUnlock returns the next level that unlocks a reward.
func (s *System) NextUnlock(level int) (int, bool) {
	return s.rewards.NextUnlock(level, s.d)
}
