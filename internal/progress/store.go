package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const defaultTimeout = 5 * time.Second

// ErrNotFound is returned by a Backend when no record exists for a user.
var ErrNotFound = errors.New("progress record not found")

// Store loads and saves progress records. Load never fails: a missing or
// unreadable record yields an empty Record, which suits read-only views.
// Get tells the two apart: a missing record is an empty Record and a nil
// error, anything else is an error. Read-modify-write callers must use Get
// so a backend failure is never saved back as an empty record.
// Save reports failure as false. Each Save overwrites the whole record
// (last write wins).
type Store interface {
	Load(userID string) Record
	Get(userID string) (Record, error)
	Save(userID string, rec Record) bool
}

// Backend is the storage driver behind a Store.
type Backend interface {
	Get(ctx context.Context, userID string) (Record, error)
	Put(ctx context.Context, userID string, rec Record) error
	Close() error
}

// Persistence adapts a Backend to the Store contract, logging the errors
// the contract swallows.
type Persistence struct {
	backend Backend
	timeout time.Duration
}

var _ Store = (*Persistence)(nil)

// NewPersistence wraps backend.
func NewPersistence(backend Backend) *Persistence {
	return &Persistence{backend: backend, timeout: defaultTimeout}
}

// WithTimeout sets the per-call backend deadline.
func (p *Persistence) WithTimeout(d time.Duration) *Persistence {
	if d > 0 {
		p.timeout = d
	}
	return p
}

// Load returns the stored record for userID, or an empty one.
func (p *Persistence) Load(userID string) Record {
	rec, err := p.Get(userID)
	if err != nil {
		return Record{}
	}
	return rec
}

// Get returns the stored record for userID. A missing record is an empty
// Record and a nil error.
func (p *Persistence) Get(userID string) (Record, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	rec, err := p.backend.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Record{}, nil
	}
	if err != nil {
		slog.Error("failed to load progress", "user_id", userID, "error", err)
		return nil, fmt.Errorf("load progress for %q: %w", userID, err)
	}
	if rec == nil {
		return Record{}, nil
	}

	if err := Validate(rec); err != nil {
		slog.Warn("progress record does not match schema", "user_id", userID, "error", err)
	}
	return rec, nil
}

// Save overwrites the record for userID.
func (p *Persistence) Save(userID string, rec Record) bool {
	if err := Validate(rec); err != nil {
		slog.Warn("saving progress record that does not match schema", "user_id", userID, "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.backend.Put(ctx, userID, rec); err != nil {
		slog.Error("failed to save progress", "user_id", userID, "error", err)
		return false
	}
	return true
}

// Close releases the backend.
func (p *Persistence) Close() error {
	return p.backend.Close()
}
