// Package exam converts one exam attempt into an XP award.
package exam

import (
	"errors"
	"fmt"
	"math"

	"github.com/geograpy/geograpy/internal/difficulty"
)

// Bonus policy. Accuracy thresholds are inclusive and checked high to low.
const (
	CompletionBonusRate   = 0.10
	HighAccuracyThreshold = 0.90
	HighAccuracyBonusRate = 0.50
	MidAccuracyThreshold  = 0.75
	MidAccuracyBonusRate  = 0.25
)

var (
	// ErrNoQuestions is returned when an attempt has no questions, so
	// accuracy is undefined.
	ErrNoQuestions = errors.New("exam has no questions")
	// ErrInvalidResult is returned for negative counts or more correct
	// answers than questions.
	ErrInvalidResult = errors.New("invalid exam result")
)

// Rewards is the XP breakdown for one attempt. Every component is already
// scaled by the difficulty's reward multiplier; Accuracy is a percentage.
type Rewards struct {
	BaseXP          int     `json:"base_xp"`
	CompletionBonus int     `json:"completion_bonus"`
	AccuracyBonus   int     `json:"accuracy_bonus"`
	TotalXP         int     `json:"total_xp"`
	Accuracy        float64 `json:"accuracy"`
}

// Compute returns the rewards for answering correct of total questions in
// an exam worth examBaseXP, under d.
//
// Each component is truncated on its own before summing. Reward totals
// depend on that order.
func Compute(examBaseXP, correct, total int, d difficulty.Difficulty) (Rewards, error) {
	if total == 0 {
		return Rewards{}, ErrNoQuestions
	}
	if examBaseXP < 0 || correct < 0 || total < 0 || correct > total {
		return Rewards{}, fmt.Errorf("%w: base_xp=%d correct=%d total=%d", ErrInvalidResult, examBaseXP, correct, total)
	}

	accuracy := float64(correct) / float64(total)
	base := float64(examBaseXP)

	completion := truncate(base * CompletionBonusRate)

	accuracyBonus := 0
	switch {
	case accuracy >= HighAccuracyThreshold:
		accuracyBonus = truncate(base * HighAccuracyBonusRate)
	case accuracy >= MidAccuracyThreshold:
		accuracyBonus = truncate(base * MidAccuracyBonusRate)
	}

	earned := truncate(base * accuracy * d.RewardMultiplier)
	completion = ScaleXP(completion, d.RewardMultiplier)
	accuracyBonus = ScaleXP(accuracyBonus, d.RewardMultiplier)

	return Rewards{
		BaseXP:          earned,
		CompletionBonus: completion,
		AccuracyBonus:   accuracyBonus,
		TotalXP:         earned + completion + accuracyBonus,
		Accuracy:        accuracy * 100,
	}, nil
}

// ScaleXP multiplies xp by multiplier and truncates toward zero.
func ScaleXP(xp int, multiplier float64) int {
	return truncate(float64(xp) * multiplier)
}

func truncate(v float64) int {
	if v >= math.MaxInt {
		return math.MaxInt
	}
	return int(math.Trunc(v))
}
