// Package tracker applies exam results to stored progress and answers the
// stats and difficulty-selection queries built on top of it.
package tracker

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/geograpy/geograpy/internal/difficulty"
	"github.com/geograpy/geograpy/internal/exam"
	"github.com/geograpy/geograpy/internal/level"
	"github.com/geograpy/geograpy/internal/progress"
	"github.com/geograpy/geograpy/internal/reward"
)

const historyDays = 7

var (
	// ErrEmptyUserID is returned when no user id is given.
	ErrEmptyUserID = errors.New("user id is empty")
	// ErrDifficultyLocked is returned when a user already picked a
	// difficulty and tries to pick again without a reset.
	ErrDifficultyLocked = errors.New("difficulty already selected")
	// ErrNotSaved is returned when a write the caller asked for was not
	// persisted.
	ErrNotSaved = errors.New("progress not saved")
	// ErrLoadFailed is returned when the stored record could not be read.
	// Nothing is written in that case.
	ErrLoadFailed = errors.New("progress not loaded")
)

// Config holds dependencies for the tracker service.
type Config struct {
	Store        progress.Store
	Difficulties *difficulty.Catalog // default difficulty.Default()
	Rewards      *reward.Catalog     // default reward.Default()
	Events       EventLogger         // default NopEventLogger
	Now          func() time.Time    // default time.Now
}

// Service serializes progress updates per user and derives level and
// reward state from the stored totals.
type Service struct {
	store        progress.Store
	difficulties *difficulty.Catalog
	systems      map[string]*level.System
	events       EventLogger
	now          func() time.Time

	locks userLocks
}

// New creates a tracker service. A nil Store means an in-memory store.
func New(cfg Config) *Service {
	store := cfg.Store
	if store == nil {
		store = progress.NewPersistence(progress.NewMemoryBackend())
	}
	difficulties := cfg.Difficulties
	if difficulties == nil {
		difficulties = difficulty.Default()
	}
	rewards := cfg.Rewards
	if rewards == nil {
		rewards = reward.Default()
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	systems := make(map[string]*level.System)
	for _, d := range difficulties.All() {
		systems[d.Key] = level.NewSystem(d, rewards)
	}

	return &Service{
		store:        store,
		difficulties: difficulties,
		systems:      systems,
		events:       events,
		now:          now,
		locks:        userLocks{m: make(map[string]*userLock)},
	}
}

// ExamResult is what the exam flow reports when a quiz ends.
type ExamResult struct {
	BaseXP  int `json:"base_xp"`
	Correct int `json:"correct_answers"`
	Total   int `json:"total_questions"`
}

// Outcome describes what one exam did to a user's progress.
type Outcome struct {
	UserID     string              `json:"user_id"`
	Difficulty string              `json:"difficulty"`
	Rewards    exam.Rewards        `json:"rewards"`
	Before     level.Progress      `json:"before"`
	After      level.Progress      `json:"after"`
	LeveledUp  bool                `json:"leveled_up"`
	Unlocked   reward.LevelRewards `json:"unlocked"`
	// Trend compares accuracy with the previous exam: -1, 0 or 1. It is
	// 0 when there is no previous exam.
	Trend int  `json:"trend"`
	Saved bool `json:"saved"`
}

// System returns the level system for a difficulty key, falling back to
// the default tier.
func (s *Service) System(key string) *level.System {
	return s.systems[s.difficulties.Get(key).Key]
}

// RecordExam scores res under the user's difficulty and adds the award to
// their progress. Invalid results and unreadable records leave the store
// untouched. A failed save is reported through Outcome.Saved.
func (s *Service) RecordExam(userID string, res ExamResult) (Outcome, error) {
	if userID == "" {
		return Outcome{}, ErrEmptyUserID
	}

	unlock := s.lock(userID)
	defer unlock()

	rec, err := s.load(userID)
	if err != nil {
		return Outcome{}, err
	}
	sys := s.System(rec.Difficulty())

	rw, err := sys.ExamRewards(res.BaseXP, res.Correct, res.Total)
	if err != nil {
		return Outcome{}, fmt.Errorf("score exam: %w", err)
	}

	now := s.now()
	current := exam.Score{Correct: res.Correct, Total: res.Total, XPEarned: rw.TotalXP}
	previous := exam.Score{
		Correct: int(rec.Int(progress.KeyLastCorrect)),
		Total:   int(rec.Int(progress.KeyLastTotal)),
	}
	trend, err := exam.CompareAccuracy(current, previous)
	if err != nil {
		trend = 0
	}

	lifetime := exam.AddScores(lifetimeScore(rec), current)
	beforeXP := rec.TotalXP()
	afterXP := new(big.Int).Add(beforeXP, big.NewInt(int64(rw.TotalXP)))

	n := rec.ExamsCompleted()
	rec.SetTotalXP(afterXP)
	rec[progress.KeyExamsCompleted] = n + 1
	rec[progress.KeyAverageAccuracy] = (rec.AverageAccuracy()*float64(n) + rw.Accuracy) / float64(n+1)
	rec[progress.KeyLastAccuracy] = rw.Accuracy
	rec[progress.KeyLastCorrect] = res.Correct
	rec[progress.KeyLastTotal] = res.Total
	rec[progress.KeyCorrectTotal] = lifetime.Correct
	rec[progress.KeyQuestionsTotal] = lifetime.Total
	rec.AddDailyXP(now, int64(rw.TotalXP))

	saved := s.store.Save(userID, rec)

	before := sys.ProgressFor(beforeXP)
	after := sys.ProgressFor(afterXP)
	out := Outcome{
		UserID:     userID,
		Difficulty: sys.Difficulty().Key,
		Rewards:    rw,
		Before:     before,
		After:      after,
		LeveledUp:  after.Level > before.Level,
		Unlocked:   reward.Unlocked(sys.LevelRewards(before.Level), sys.LevelRewards(after.Level)),
		Trend:      trend,
		Saved:      saved,
	}

	slog.Info("exam recorded",
		"user_id", userID,
		"difficulty", out.Difficulty,
		"xp", rw.TotalXP,
		"total_xp", afterXP,
		"level", after.Level,
		"saved", saved,
	)
	s.emit(out, now)

	return out, nil
}

func (s *Service) emit(out Outcome, at time.Time) {
	events := []Event{{
		UserID:    out.UserID,
		EventType: EventExamCompleted,
		CreatedAt: at,
		Data: map[string]any{
			"difficulty": out.Difficulty,
			"xp":         out.Rewards.TotalXP,
			"accuracy":   out.Rewards.Accuracy,
			"saved":      out.Saved,
		},
	}}
	if out.LeveledUp {
		events = append(events, Event{
			UserID:    out.UserID,
			EventType: EventLevelUp,
			CreatedAt: at,
			Data: map[string]any{
				"from": out.Before.Level,
				"to":   out.After.Level,
			},
		})
	}
	if !out.Unlocked.Empty() {
		events = append(events, Event{
			UserID:    out.UserID,
			EventType: EventRewardUnlocked,
			CreatedAt: at,
			Data: map[string]any{
				"level":    out.After.Level,
				"titles":   out.Unlocked.Titles,
				"badges":   out.Unlocked.Badges,
				"features": out.Unlocked.Features,
			},
		})
	}

	for _, e := range events {
		if err := s.events.LogEvent(e); err != nil {
			slog.Warn("failed to log event", "type", e.EventType, "user_id", e.UserID, "error", err)
		}
	}
}

// DayXP is the XP earned on one calendar day.
type DayXP struct {
	Date string `json:"date"`
	XP   int64  `json:"xp"`
}

// Stats is the read-only view shown on a user's stats page.
type Stats struct {
	UserID           string              `json:"user_id"`
	DifficultyKey    string              `json:"difficulty_key"`
	DifficultyChosen bool                `json:"difficulty_chosen"`
	Difficulty       difficulty.Details  `json:"difficulty"`
	Progress         level.Progress      `json:"progress"`
	Rewards          reward.LevelRewards `json:"rewards"`
	ExamsCompleted   int64               `json:"exams_completed"`
	AverageAccuracy  float64             `json:"average_accuracy"`
	LastAccuracy     float64             `json:"last_accuracy"`
	Lifetime         exam.Score          `json:"lifetime"`
	DailyXP          []DayXP             `json:"daily_xp"`
	NextUnlock       int                 `json:"next_unlock,omitempty"`
}

// Stats returns the user's current progress. Unknown users get the
// zero-progress view of the default tier.
func (s *Service) Stats(userID string) Stats {
	rec := s.store.Load(userID)
	sys := s.System(rec.Difficulty())
	d := sys.Difficulty()
	p := sys.ProgressFor(rec.TotalXP())

	st := Stats{
		UserID:           userID,
		DifficultyKey:    d.Key,
		DifficultyChosen: rec.HasDifficulty(),
		Difficulty:       d.Details(),
		Progress:         p,
		Rewards:          sys.LevelRewards(p.Level),
		ExamsCompleted:   rec.ExamsCompleted(),
		AverageAccuracy:  rec.AverageAccuracy(),
		LastAccuracy:     rec.LastAccuracy(),
		Lifetime:         lifetimeScore(rec),
		DailyXP:          make([]DayXP, 0, historyDays),
	}
	if total := rec.TotalXP(); total.IsInt64() && total.Int64() <= math.MaxInt {
		st.Lifetime.XPEarned = int(total.Int64())
	}

	today := s.now()
	for i := historyDays - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		st.DailyXP = append(st.DailyXP, DayXP{
			Date: day.Format(progress.DateLayout),
			XP:   rec.DailyXP(day),
		})
	}

	if next, ok := sys.NextUnlock(p.Level); ok {
		st.NextUnlock = next
	}
	return st
}

// Difficulties lists the tiers a user can pick from.
func (s *Service) Difficulties() map[string]difficulty.Info {
	return s.difficulties.ListAvailable()
}

// SelectDifficulty stores the user's tier. Unknown keys resolve to the
// default tier. The choice is made once; ResetDifficulty unlocks it.
func (s *Service) SelectDifficulty(userID, key string) (difficulty.Difficulty, error) {
	if userID == "" {
		return difficulty.Difficulty{}, ErrEmptyUserID
	}

	unlock := s.lock(userID)
	defer unlock()

	rec, err := s.load(userID)
	if err != nil {
		return difficulty.Difficulty{}, err
	}
	if rec.HasDifficulty() {
		return s.difficulties.Get(rec.Difficulty()), ErrDifficultyLocked
	}

	d := s.difficulties.Get(key)
	if d.Key != key {
		slog.Warn("unknown difficulty, using default", "user_id", userID, "requested", key, "difficulty", d.Key)
	}
	rec.SetDifficulty(d.Key)
	if !s.store.Save(userID, rec) {
		return d, ErrNotSaved
	}

	slog.Info("difficulty selected", "user_id", userID, "difficulty", d.Key)
	return d, nil
}

// ResetDifficulty forgets the user's tier. Total XP is kept and is
// re-evaluated on the default curve until a new tier is picked.
func (s *Service) ResetDifficulty(userID string) error {
	if userID == "" {
		return ErrEmptyUserID
	}

	unlock := s.lock(userID)
	defer unlock()

	rec, err := s.load(userID)
	if err != nil {
		return err
	}
	if !rec.HasDifficulty() {
		return nil
	}
	rec.ClearDifficulty()
	if !s.store.Save(userID, rec) {
		return ErrNotSaved
	}

	slog.Info("difficulty reset", "user_id", userID)
	return nil
}

// load reads the record a read-modify-write cycle starts from.
func (s *Service) load(userID string) (progress.Record, error) {
	rec, err := s.store.Get(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	if rec == nil {
		rec = progress.Record{}
	}
	return rec, nil
}

// lock serializes read-modify-write cycles for one user.
func (s *Service) lock(userID string) func() {
	return s.locks.lock(userID)
}

// userLocks holds one mutex per user with a cycle in flight. Entries are
// reference counted and dropped when the last holder or waiter releases, so
// the table is bounded by the number of concurrent callers.
type userLocks struct {
	mu sync.Mutex
	m  map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	ul, ok := l.m[userID]
	if !ok {
		ul = &userLock{}
		l.m[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()

		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.m, userID)
		}
		l.mu.Unlock()
	}
}

func (l *userLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

func lifetimeScore(rec progress.Record) exam.Score {
	return exam.Score{
		Correct: int(rec.Int(progress.KeyCorrectTotal)),
		Total:   int(rec.Int(progress.KeyQuestionsTotal)),
	}
}
