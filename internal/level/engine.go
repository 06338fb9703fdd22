// Package level turns cumulative XP into a level on a geometric cost curve.
package level

import (
	"math"
	"math/big"

	"github.com/geograpy/geograpy/internal/difficulty"
)

const powPrec = 256

// Progress describes where a total XP value sits on the level curve. XP
// amounts are arbitrary precision: the hard tier's costs near its cap pass
// 10^22 and do not fit in an int64.
type Progress struct {
	Level              int      `json:"level"`
	CurrentXP          *big.Int `json:"current_xp"`
	XPForNext          *big.Int `json:"xp_for_next"`
	TotalXP            *big.Int `json:"total_xp"`
	ProgressPercentage float64  `json:"progress_percentage"`
}

// XPToNext is the XP still missing for the next level. It goes negative
// once the level cap is reached and XP keeps accumulating.
func (p Progress) XPToNext() *big.Int {
	return new(big.Int).Sub(orZero(p.XPForNext), orZero(p.CurrentXP))
}

// Engine computes level progress for one difficulty. It is immutable and
// safe for concurrent use.
type Engine struct {
	d     difficulty.Difficulty
	costs []*big.Int // costs[l] is the XP needed to go from level l-1 to l
}

// NewEngine precomputes the cost curve of d up to one level past its cap.
func NewEngine(d difficulty.Difficulty) *Engine {
	e := &Engine{d: d}
	e.costs = make([]*big.Int, max(d.MaxLevel+2, 2))
	e.costs[0], e.costs[1] = new(big.Int), new(big.Int)
	for l := 2; l < len(e.costs); l++ {
		e.costs[l] = e.cost(l)
	}
	return e
}

// Difficulty returns the tier the engine was built for.
func (e *Engine) Difficulty() difficulty.Difficulty {
	return e.d
}

// XPRequiredForLevel returns the XP needed to advance from level-1 to
// level: 0 for level <= 1, otherwise floor(base_xp * xp_multiplier^(level-1)).
// The result is a fresh value the caller may modify.
func (e *Engine) XPRequiredForLevel(level int) *big.Int {
	return new(big.Int).Set(e.costAt(level))
}

func (e *Engine) costAt(level int) *big.Int {
	switch {
	case level <= 1:
		return e.costs[0]
	case level < len(e.costs):
		return e.costs[level]
	}
	return e.cost(level)
}

// cost truncates the float64 product base*mult^(level-1), which is exact
// as an integer. Products past the float64 range keep full precision.
func (e *Engine) cost(level int) *big.Int {
	p := pow(e.d.XPMultiplier, level-1)
	f, _ := p.Float64()
	if v := float64(e.d.BaseXP) * f; !math.IsInf(v, 0) && !math.IsNaN(v) {
		n, _ := new(big.Float).SetFloat64(v).Int(nil)
		return n
	}
	n, _ := new(big.Float).SetPrec(powPrec).Mul(p, new(big.Float).SetInt64(e.d.BaseXP)).Int(nil)
	return n
}

// ProgressFor walks the cost curve from level 1 until totalXP no longer
// covers the next level or the difficulty's max level is reached. The walk
// is bounded by the max level, not by the size of totalXP.
//
// At the cap, XP keeps accumulating in CurrentXP against the fixed cost of
// the next (unreachable) level, so ProgressPercentage can exceed 100.
// Negative and nil totals are treated as 0.
func (e *Engine) ProgressFor(totalXP *big.Int) Progress {
	total := new(big.Int)
	if totalXP != nil && totalXP.Sign() > 0 {
		total.Set(totalXP)
	}

	level := 1
	current := new(big.Int).Set(total)
	next := e.costAt(2)

	for level < e.d.MaxLevel && next.Cmp(current) <= 0 {
		current.Sub(current, next)
		level++
		next = e.costAt(level + 1)
	}

	return Progress{
		Level:              level,
		CurrentXP:          current,
		XPForNext:          new(big.Int).Set(next),
		TotalXP:            total,
		ProgressPercentage: percentage(current, next),
	}
}

// ProgressForXP is ProgressFor for totals that fit in an int64.
func (e *Engine) ProgressForXP(totalXP int64) Progress {
	return e.ProgressFor(big.NewInt(totalXP))
}

// percentage returns current/next*100 with the quotient rounded once to
// float64. A zero cost reads as 100.
func percentage(current, next *big.Int) float64 {
	if next.Sign() <= 0 {
		return 100
	}
	q := new(big.Float).SetPrec(53).Quo(new(big.Float).SetInt(current), new(big.Float).SetInt(next))
	f, _ := q.Float64()
	return f * 100
}

// pow returns x^n at 256-bit precision. math.Pow can be off by a few ulps
// for large n, which shifts truncated costs by one XP.
func pow(x float64, n int) *big.Float {
	base := new(big.Float).SetPrec(powPrec).SetFloat64(x)
	acc := new(big.Float).SetPrec(powPrec).SetFloat64(1)
	for ; n > 0; n >>= 1 {
		if n&1 == 1 {
			acc.Mul(acc, base)
		}
		base.Mul(base, base)
	}
	return acc
}

func orZero(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return n
}
