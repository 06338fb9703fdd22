// Package progress persists per-user progress records.
package progress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/geograpy/geograpy/internal/difficulty"
)

// Well-known record keys. Records are free-form; any other key is kept as is.
const (
	KeyTotalXP         = "total_xp"
	KeyDifficulty      = "difficulty"
	KeyExamsCompleted  = "exams_completed"
	KeyAverageAccuracy = "average_accuracy"
	KeyLastAccuracy    = "last_accuracy"
	KeyLastCorrect     = "last_correct"
	KeyLastTotal       = "last_total"
	KeyCorrectTotal    = "correct_answers_total"
	KeyQuestionsTotal  = "questions_total"

	DailyXPPrefix = "daily_xp_"
	DateLayout    = "2006-01-02"
)

// Record is one user's progress document. Missing keys read as their zero
// value, and a missing difficulty reads as difficulty.DefaultKey.
type Record map[string]any

// TotalXP returns the cumulative XP. It is never nil and never shares
// storage with the record.
func (r Record) TotalXP() *big.Int { return toBigInt(r[KeyTotalXP]) }

// SetTotalXP stores the cumulative XP as an exact JSON number. A nil
// value stores 0.
func (r Record) SetTotalXP(v *big.Int) {
	if v == nil {
		v = new(big.Int)
	}
	r[KeyTotalXP] = json.Number(v.String())
}

// Difficulty returns the chosen difficulty key.
func (r Record) Difficulty() string {
	if s, ok := r[KeyDifficulty].(string); ok && s != "" {
		return s
	}
	return difficulty.DefaultKey
}

// HasDifficulty reports whether the user picked a difficulty explicitly.
func (r Record) HasDifficulty() bool {
	s, ok := r[KeyDifficulty].(string)
	return ok && s != ""
}

// SetDifficulty stores the chosen difficulty key.
func (r Record) SetDifficulty(key string) { r[KeyDifficulty] = key }

// ClearDifficulty forgets the chosen difficulty.
func (r Record) ClearDifficulty() { delete(r, KeyDifficulty) }

func (r Record) ExamsCompleted() int64    { return toInt64(r[KeyExamsCompleted]) }
func (r Record) AverageAccuracy() float64 { return toFloat64(r[KeyAverageAccuracy]) }
func (r Record) LastAccuracy() float64    { return toFloat64(r[KeyLastAccuracy]) }

// Int returns an integer-valued key, 0 when absent or not numeric.
func (r Record) Int(key string) int64 { return toInt64(r[key]) }

// Float returns a number-valued key, 0 when absent or not numeric.
func (r Record) Float(key string) float64 { return toFloat64(r[key]) }

// DailyKey is the record key holding the XP earned on day.
func DailyKey(day time.Time) string {
	return DailyXPPrefix + day.Format(DateLayout)
}

// DailyXP returns the XP earned on day.
func (r Record) DailyXP(day time.Time) int64 { return toInt64(r[DailyKey(day)]) }

// AddDailyXP adds xp to the counter of day.
func (r Record) AddDailyXP(day time.Time, xp int64) {
	r[DailyKey(day)] = r.DailyXP(day) + xp
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return Record{}
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, v := range t {
			m[k] = cloneValue(v)
		}
		return m
	case Record:
		return t.Clone()
	case *big.Int:
		if t != nil {
			return new(big.Int).Set(t)
		}
	case []any:
		s := make([]any, len(t))
		for i, v := range t {
			s[i] = cloneValue(v)
		}
		return s
	}
	return v
}

// Encode renders r as indented JSON.
func Encode(r Record) ([]byte, error) {
	if r == nil {
		r = Record{}
	}
	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encode progress record: %w", err)
	}
	return data, nil
}

// Decode parses a JSON document into a Record. Numbers are kept as
// json.Number so large XP totals survive the round trip exactly.
func Decode(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode progress record: %w", err)
	}
	if rec == nil {
		rec = Record{}
	}
	return rec, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return clampFloat(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return clampFloat(f)
		}
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i
		}
	}
	return 0
}

// toBigInt reads an integer of any size. Fractional values truncate toward
// zero; non-numeric values read as 0.
func toBigInt(v any) *big.Int {
	switch n := v.(type) {
	case *big.Int:
		if n != nil {
			return new(big.Int).Set(n)
		}
	case int:
		return big.NewInt(int64(n))
	case int32:
		return big.NewInt(int64(n))
	case int64:
		return big.NewInt(n)
	case float64:
		return floatToBigInt(n)
	case json.Number:
		return parseBigInt(string(n))
	case string:
		return parseBigInt(n)
	}
	return new(big.Int)
}

func parseBigInt(s string) *big.Int {
	if i, ok := new(big.Int).SetString(s, 10); ok {
		return i
	}
	// Exponent or fraction forms such as 1e20 or 150.0.
	f, _, err := big.ParseFloat(s, 10, 256, big.ToZero)
	if err != nil || f.IsInf() {
		return new(big.Int)
	}
	i, _ := f.Int(nil)
	return i
}

func floatToBigInt(f float64) *big.Int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return new(big.Int)
	}
	i, _ := big.NewFloat(f).Int(nil)
	return i
}

func clampFloat(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return 0
}
