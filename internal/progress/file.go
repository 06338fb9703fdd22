package progress

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"golang.org/x/crypto/blake2b"
)

var safeUserID = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

// FileBackend stores one progress_<user>.json document per user in a
// directory.
type FileBackend struct {
	dir string
}

// NewFileBackend creates dir if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		return nil, fmt.Errorf("progress directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create progress directory: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

// Path returns the file holding userID's record. IDs that are not plain
// file-name characters are replaced by their BLAKE2b-256 digest.
func (b *FileBackend) Path(userID string) string {
	name := userID
	if !safeUserID.MatchString(userID) {
		sum := blake2b.Sum256([]byte(userID))
		name = "h-" + hex.EncodeToString(sum[:])
	}
	return filepath.Join(b.dir, "progress_"+name+".json")
}

func (b *FileBackend) Get(ctx context.Context, userID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(b.Path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read progress file: %w", err)
	}
	return Decode(data)
}

// Put writes through a temp file and renames it over the old record so a
// crash never leaves a half-written document.
func (b *FileBackend) Put(ctx context.Context, userID string, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := Encode(rec)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(b.dir, ".progress-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp progress file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write progress file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync progress file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close progress file: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.Path(userID)); err != nil {
		return fmt.Errorf("replace progress file: %w", err)
	}
	return nil
}

func (b *FileBackend) Close() error { return nil }
