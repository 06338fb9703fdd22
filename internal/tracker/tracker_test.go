package tracker_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geograpy/geograpy/internal/exam"
	"github.com/geograpy/geograpy/internal/progress"
	"github.com/geograpy/geograpy/internal/tracker"
)

var day = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newService(t *testing.T) (*tracker.Service, *progress.MemoryBackend, *tracker.MemoryEventLogger, *clock) {
	t.Helper()
	backend := progress.NewMemoryBackend()
	events := tracker.NewMemoryEventLogger()
	c := &clock{t: day}
	svc := tracker.New(tracker.Config{
		Store:  progress.NewPersistence(backend),
		Events: events,
		Now:    c.Now,
	})
	return svc, backend, events, c
}

// readOnlyStore loads normally but never saves.
type readOnlyStore struct {
	progress.Store
}

func (readOnlyStore) Save(string, progress.Record) bool { return false }

// flakyBackend fails its next reads, one per armed failure, with a transport error.
type flakyBackend struct {
	*progress.MemoryBackend

	mu    sync.Mutex
	fails int
}

var errConnReset = errors.New("connection reset by peer")

func (b *flakyBackend) Get(ctx context.Context, userID string) (progress.Record, error) {
	b.mu.Lock()
	fail := b.fails > 0
	if fail {
		b.fails--
	}
	b.mu.Unlock()

	if fail {
		return nil, errConnReset
	}
	return b.MemoryBackend.Get(ctx, userID)
}

// newFlakyService seeds user 42 with a veteran hard-tier record and arms one
// failing read.
func newFlakyService(t *testing.T) (*tracker.Service, *flakyBackend, *tracker.MemoryEventLogger) {
	t.Helper()
	backend := &flakyBackend{MemoryBackend: progress.NewMemoryBackend(), fails: 1}
	seed, err := progress.Decode([]byte(`{"total_xp":50000,"difficulty":"hard","exams_completed":40}`))
	require.NoError(t, err)
	require.NoError(t, backend.Put(t.Context(), "42", seed))

	events := tracker.NewMemoryEventLogger()
	svc := tracker.New(tracker.Config{
		Store:  progress.NewPersistence(backend),
		Events: events,
		Now:    (&clock{t: day}).Now,
	})
	return svc, backend, events
}

func requireSeedIntact(t *testing.T, backend *flakyBackend) {
	t.Helper()
	rec, err := backend.MemoryBackend.Get(t.Context(), "42")
	require.NoError(t, err)
	assert.Equal(t, int64(50000), rec.TotalXP().Int64())
	assert.Equal(t, "hard", rec.Difficulty())
	assert.Equal(t, int64(40), rec.ExamsCompleted())
}

func TestRecordExam_FirstExam(t *testing.T) {
	svc, backend, _, _ := newService(t)

	out, err := svc.RecordExam("42", tracker.ExamResult{BaseXP: 100, Correct: 8, Total: 10})
	require.NoError(t, err)

	assert.Equal(t, 138, out.Rewards.TotalXP)
	assert.Equal(t, "normal", out.Difficulty)
	assert.Equal(t, 1, out.Before.Level)
	assert.Zero(t, out.Before.TotalXP.Sign())
	assert.Equal(t, 1, out.After.Level)
	assert.Equal(t, int64(138), out.After.CurrentXP.Int64())
	assert.False(t, out.LeveledUp)
	assert.True(t, out.Unlocked.Empty())
	assert.Equal(t, 0, out.Trend)
	assert.True(t, out.Saved)

	rec, err := backend.Get(t.Context(), "42")
	require.NoError(t, err)
	assert.Equal(t, int64(138), rec.TotalXP().Int64())
	assert.Equal(t, int64(1), rec.ExamsCompleted())
	assert.InDelta(t, 80.0, rec.AverageAccuracy(), 1e-9)
	assert.InDelta(t, 80.0, rec.LastAccuracy(), 1e-9)
	assert.Equal(t, int64(138), rec.DailyXP(day))
	assert.Equal(t, int64(8), rec.Int(progress.KeyCorrectTotal))
	assert.Equal(t, int64(10), rec.Int(progress.KeyQuestionsTotal))
	assert.False(t, rec.HasDifficulty(), "recording an exam does not pick a difficulty")
}

func TestRecordExam_Accumulates(t *testing.T) {
	svc, backend, events, _ := newService(t)

	_, err := svc.RecordExam("42", tracker.ExamResult{BaseXP: 100, Correct: 8, Total: 10})
	require.NoError(t, err)
	out, err := svc.RecordExam("42", tracker.ExamResult{BaseXP: 100, Correct: 10, Total: 10})
	require.NoError(t, err)

	assert.Equal(t, 192, out.Rewards.TotalXP)
	assert.Equal(t, int64(330), out.After.TotalXP.Int64())
	assert.Equal(t, 2, out.After.Level)
	assert.Equal(t, int64(180), out.After.CurrentXP.Int64())
	assert.True(t, out.LeveledUp)
	assert.Equal(t, 1, out.Trend)

	rec, err := backend.Get(t.Context(), "42")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.ExamsCompleted())
	assert.InDelta(t, 90.0, rec.AverageAccuracy(), 1e-9)
	assert.InDelta(t, 100.0, rec.LastAccuracy(), 1e-9)
	assert.Equal(t, int64(330), rec.DailyXP(day))
	assert.Equal(t, int64(18), rec.Int(progress.KeyCorrectTotal))
	assert.Equal(t, int64(20), rec.Int(progress.KeyQuestionsTotal))

	assert.Len(t, events.OfType(tracker.EventExamCompleted), 2)
	assert.Len(t, events.OfType(tracker.EventLevelUp), 1)
	assert.Empty(t, events.OfType(tracker.EventRewardUnlocked))
}

func TestRecordExam_TrendDown(t *testing.T) {
	svc, _, _, _ := newService(t)

	_, err := svc.RecordExam("42", tracker.ExamResult{BaseXP: 100, Correct: 8, Total: 10})
	require.NoError(t, err)
	out, err := svc.RecordExam("42", tracker.ExamResult{BaseXP: 100, Correct: 3, Total: 10})
	require.NoError(t, err)

	assert.Equal(t, -1, out.Trend)
}

func TestRecordExam_UnlocksRewards(t *testing.T) {
	svc, _, events, _ := newService(t)

	out, err := svc.RecordExam("42", tracker.ExamResult{BaseXP: 1000, Correct: 10, Total: 10})
	require.NoError(t, err)

	assert.Equal(t, 1920, out.Rewards.TotalXP)
	assert.Equal(t, 5, out.After.Level)
	assert.True(t, out.LeveledUp)
	assert.Equal(t, []string{"Geógrafo Novato"}, out.Unlocked.Titles)
	assert.Equal(t, []string{"Insignia normal 1"}, out.Unlocked.Badges)
	assert.Empty(t, out.Unlocked.Features)

	unlocked := events.OfType(tracker.EventRewardUnlocked)
	require.Len(t, unlocked, 1)
	assert.Equal(t, 5, unlocked[0].Data["level"])
	assert.Equal(t, day, unlocked[0].CreatedAt)

	levelUps := events.OfType(tracker.EventLevelUp)
	require.Len(t, levelUps, 1)
	assert.Equal(t, 1, levelUps[0].Data["from"])
	assert.Equal(t, 5, levelUps[0].Data["to"])
}

func TestRecordExam_UsesSelectedDifficulty(t *testing.T) {
	svc, _, _, _ := newService(t)

	_, err := svc.SelectDifficulty("42", "hard")
	require.NoError(t, err)

	out, err := svc.RecordExam("42", tracker.ExamResult{BaseXP: 100, Correct: 8, Total: 10})
	require.NoError(t, err)
	assert.Equal(t, "hard", out.Difficulty)
	assert.Equal(t, 172, out.Rewards.TotalXP)
}

func TestRecordExam_InvalidResultLeavesStoreUntouched(t *testing.T) {
	tests := []struct {
		name    string
		result  tracker.ExamResult
		wantErr error
	}{
		{"no-questions", tracker.ExamResult{BaseXP: 100, Correct: 0, Total: 0}, exam.ErrNoQuestions},
		{"too-many-correct", tracker.ExamResult{BaseXP: 100, Correct: 11, Total: 10}, exam.ErrInvalidResult},
		{"negative-base", tracker.ExamResult{BaseXP: -1, Correct: 1, Total: 1}, exam.ErrInvalidResult},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, backend, events, _ := newService(t)

			_, err := svc.RecordExam("42", tt.result)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, backend.Users())
			assert.Empty(t, events.Events())
		})
	}
}

func TestRecordExam_EmptyUserID(t *testing.T) {
	svc, _, _, _ := newService(t)

	_, err := svc.RecordExam("", tracker.ExamResult{BaseXP: 100, Correct: 1, Total: 1})
	assert.ErrorIs(t, err, tracker.ErrEmptyUserID)
}

func TestRecordExam_SaveFailure(t *testing.T) {
	backend := progress.NewMemoryBackend()
	svc := tracker.New(tracker.Config{
		Store: readOnlyStore{progress.NewPersistence(backend)},
	})

	out, err := svc.RecordExam("42", tracker.ExamResult{BaseXP: 100, Correct: 8, Total: 10})
	require.NoError(t, err)
	assert.False(t, out.Saved)
	assert.Equal(t, int64(138), out.After.TotalXP.Int64())
	assert.Empty(t, backend.Users())
}

func TestRecordExam_LoadFailureKeepsStoredProgress(t *testing.T) {
	svc, backend, events := newFlakyService(t)

	_, err := svc.RecordExam("42", tracker.ExamResult{BaseXP: 100, Correct: 8, Total: 10})
	assert.ErrorIs(t, err, tracker.ErrLoadFailed)
	assert.ErrorIs(t, err, errConnReset)
	requireSeedIntact(t, backend)
	assert.Empty(t, events.Events())

	// The backend recovers; the award lands on top of the stored total.
	out, err := svc.RecordExam("42", tracker.ExamResult{BaseXP: 100, Correct: 8, Total: 10})
	require.NoError(t, err)
	assert.Equal(t, "hard", out.Difficulty)
	assert.Equal(t, int64(50000), out.Before.TotalXP.Int64())
	assert.Equal(t, int64(50172), out.After.TotalXP.Int64())

	rec, err := backend.MemoryBackend.Get(t.Context(), "42")
	require.NoError(t, err)
	assert.Equal(t, int64(50172), rec.TotalXP().Int64())
	assert.Equal(t, int64(41), rec.ExamsCompleted())
}

func TestSelectDifficulty_LoadFailureKeepsStoredProgress(t *testing.T) {
	svc, backend, _ := newFlakyService(t)

	_, err := svc.SelectDifficulty("42", "easy")
	assert.ErrorIs(t, err, tracker.ErrLoadFailed)
	assert.NotErrorIs(t, err, tracker.ErrDifficultyLocked)
	requireSeedIntact(t, backend)

	_, err = svc.SelectDifficulty("42", "easy")
	assert.ErrorIs(t, err, tracker.ErrDifficultyLocked)
	requireSeedIntact(t, backend)
}

func TestResetDifficulty_LoadFailureKeepsStoredProgress(t *testing.T) {
	svc, backend, _ := newFlakyService(t)

	assert.ErrorIs(t, svc.ResetDifficulty("42"), tracker.ErrLoadFailed)
	requireSeedIntact(t, backend)

	require.NoError(t, svc.ResetDifficulty("42"))
	rec, err := backend.MemoryBackend.Get(t.Context(), "42")
	require.NoError(t, err)
	assert.False(t, rec.HasDifficulty())
	assert.Equal(t, int64(50000), rec.TotalXP().Int64())
}

func TestRecordExam_TotalBeyondInt64(t *testing.T) {
	backend := progress.NewMemoryBackend()
	seed, err := progress.Decode([]byte(`{"total_xp":1e20,"difficulty":"normal"}`))
	require.NoError(t, err)
	require.NoError(t, backend.Put(t.Context(), "42", seed))
	svc := tracker.New(tracker.Config{Store: progress.NewPersistence(backend)})

	out, err := svc.RecordExam("42", tracker.ExamResult{BaseXP: 100, Correct: 8, Total: 10})
	require.NoError(t, err)
	assert.Equal(t, "100000000000000000000", out.Before.TotalXP.String())
	assert.Equal(t, "100000000000000000138", out.After.TotalXP.String())
	assert.Equal(t, 100, out.After.Level)
	assert.Equal(t, 1, out.After.TotalXP.Cmp(out.Before.TotalXP))

	rec, err := backend.Get(t.Context(), "42")
	require.NoError(t, err)
	assert.Equal(t, "100000000000000000138", rec.TotalXP().String())

	st := svc.Stats("42")
	assert.Equal(t, "100000000000000000138", st.Progress.TotalXP.String())
	assert.Equal(t, 0, st.Lifetime.XPEarned)
}

func TestRecordExam_HardTierReachesCap(t *testing.T) {
	backend := progress.NewMemoryBackend()
	// One XP short of the hard tier's cumulative cost to level 80.
	seed, err := progress.Decode([]byte(`{"total_xp":49522399615534443402269,"difficulty":"hard"}`))
	require.NoError(t, err)
	require.NoError(t, backend.Put(t.Context(), "42", seed))
	svc := tracker.New(tracker.Config{Store: progress.NewPersistence(backend)})

	out, err := svc.RecordExam("42", tracker.ExamResult{BaseXP: 100, Correct: 8, Total: 10})
	require.NoError(t, err)
	assert.Equal(t, 79, out.Before.Level)
	assert.Equal(t, 80, out.After.Level)
	assert.True(t, out.LeveledUp)
	assert.Equal(t, int64(171), out.After.CurrentXP.Int64())
}

func TestRecordExam_ConcurrentSameUser(t *testing.T) {
	svc, backend, _, _ := newService(t)

	const n = 50
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordExam("42", tracker.ExamResult{BaseXP: 100, Correct: 8, Total: 10})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := backend.Get(t.Context(), "42")
	require.NoError(t, err)
	assert.Equal(t, int64(n*138), rec.TotalXP().Int64())
	assert.Equal(t, int64(n), rec.ExamsCompleted())
	assert.Zero(t, tracker.ActiveLocks(svc))
}

func TestService_LockTableDrains(t *testing.T) {
	svc, _, _, _ := newService(t)

	var wg sync.WaitGroup
	for i := range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i%40)
			_, err := svc.RecordExam(user, tracker.ExamResult{BaseXP: 10, Correct: 1, Total: 1})
			assert.NoError(t, err)
			if i%3 == 0 {
				_, _ = svc.SelectDifficulty(user, "easy")
			}
			if i%5 == 0 {
				assert.NoError(t, svc.ResetDifficulty(user))
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, tracker.ActiveLocks(svc))
}

func TestStats_UnknownUser(t *testing.T) {
	svc, _, _, _ := newService(t)

	st := svc.Stats("nobody")
	assert.Equal(t, "normal", st.DifficultyKey)
	assert.False(t, st.DifficultyChosen)
	assert.Equal(t, "Geógrafo", st.Difficulty.Name)
	assert.Equal(t, 1, st.Progress.Level)
	assert.Equal(t, int64(150), st.Progress.XPForNext.Int64())
	assert.True(t, st.Rewards.Empty())
	assert.Equal(t, 5, st.NextUnlock)
	assert.Len(t, st.DailyXP, 7)
}

func TestStats_DailySeries(t *testing.T) {
	svc, _, _, c := newService(t)

	_, err := svc.RecordExam("42", tracker.ExamResult{BaseXP: 100, Correct: 8, Total: 10})
	require.NoError(t, err)

	c.t = day.AddDate(0, 0, 1)
	_, err = svc.RecordExam("42", tracker.ExamResult{BaseXP: 100, Correct: 10, Total: 10})
	require.NoError(t, err)

	st := svc.Stats("42")
	require.Len(t, st.DailyXP, 7)
	assert.Equal(t, "2026-03-09", st.DailyXP[0].Date)
	assert.Equal(t, "2026-03-14", st.DailyXP[5].Date)
	assert.Equal(t, int64(138), st.DailyXP[5].XP)
	assert.Equal(t, "2026-03-15", st.DailyXP[6].Date)
	assert.Equal(t, int64(192), st.DailyXP[6].XP)
	assert.Equal(t, int64(0), st.DailyXP[0].XP)

	assert.Equal(t, int64(2), st.ExamsCompleted)
	assert.InDelta(t, 90.0, st.AverageAccuracy, 1e-9)
	assert.Equal(t, exam.Score{Correct: 18, Total: 20, XPEarned: 330}, st.Lifetime)
	assert.Equal(t, 2, st.Progress.Level)
}

func TestStats_NextUnlockRespectsCap(t *testing.T) {
	backend := progress.NewMemoryBackend()
	require.NoError(t, backend.Put(t.Context(), "42", progress.Record{
		progress.KeyTotalXP:    int64(math.MaxInt64),
		progress.KeyDifficulty: "easy",
	}))
	svc := tracker.New(tracker.Config{Store: progress.NewPersistence(backend)})

	st := svc.Stats("42")
	assert.Equal(t, 120, st.Progress.Level)
	assert.Equal(t, 0, st.NextUnlock)
	assert.Len(t, st.Rewards.Titles, 4)
}

func TestSelectDifficulty(t *testing.T) {
	svc, backend, _, _ := newService(t)

	d, err := svc.SelectDifficulty("42", "easy")
	require.NoError(t, err)
	assert.Equal(t, "easy", d.Key)

	d, err = svc.SelectDifficulty("42", "hard")
	assert.ErrorIs(t, err, tracker.ErrDifficultyLocked)
	assert.Equal(t, "easy", d.Key)

	require.NoError(t, svc.ResetDifficulty("42"))
	rec, err := backend.Get(t.Context(), "42")
	require.NoError(t, err)
	assert.False(t, rec.HasDifficulty())

	d, err = svc.SelectDifficulty("42", "hard")
	require.NoError(t, err)
	assert.Equal(t, "hard", d.Key)
	assert.True(t, svc.Stats("42").DifficultyChosen)
}

func TestSelectDifficulty_UnknownKeyStoresDefault(t *testing.T) {
	svc, backend, _, _ := newService(t)

	d, err := svc.SelectDifficulty("42", "nightmare")
	require.NoError(t, err)
	assert.Equal(t, "normal", d.Key)

	rec, err := backend.Get(t.Context(), "42")
	require.NoError(t, err)
	assert.Equal(t, "normal", rec[progress.KeyDifficulty])
}

func TestSelectDifficulty_KeepsProgress(t *testing.T) {
	svc, _, _, _ := newService(t)

	_, err := svc.RecordExam("42", tracker.ExamResult{BaseXP: 100, Correct: 8, Total: 10})
	require.NoError(t, err)
	_, err = svc.SelectDifficulty("42", "easy")
	require.NoError(t, err)

	st := svc.Stats("42")
	assert.Equal(t, int64(138), st.Progress.TotalXP.Int64())
	assert.Equal(t, "easy", st.DifficultyKey)
	assert.Equal(t, 2, st.Progress.Level)
}

func TestSelectDifficulty_SaveFailure(t *testing.T) {
	svc := tracker.New(tracker.Config{
		Store: readOnlyStore{progress.NewPersistence(progress.NewMemoryBackend())},
	})

	_, err := svc.SelectDifficulty("42", "hard")
	assert.ErrorIs(t, err, tracker.ErrNotSaved)
}

func TestResetDifficulty_NothingToReset(t *testing.T) {
	svc, backend, _, _ := newService(t)

	require.NoError(t, svc.ResetDifficulty("42"))
	assert.Empty(t, backend.Users())
	assert.ErrorIs(t, svc.ResetDifficulty(""), tracker.ErrEmptyUserID)
}

func TestDifficulties(t *testing.T) {
	svc, _, _, _ := newService(t)

	list := svc.Difficulties()
	require.Len(t, list, 3)
	assert.True(t, list["hard"].ExclusiveRewards)
	assert.Equal(t, 1.0, list["easy"].RewardMultiplier)
}
