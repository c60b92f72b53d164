package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/alex-user-go/rates/internal/ratelimit"
)

// lockRetry is how often a blocked cycle retries the file lock.
const lockRetry = 5 * time.Millisecond

// FileStore keeps all buckets in one JSON file. Each cycle holds the store
// mutex and an OS lock on a sidecar "<path>.lock" file from load to save, so
// the server and limiterctl (or several replicas) never interleave. Saves
// replace the file through a rename so readers never see a partial write.
type FileStore struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
}

// NewFileStore creates a store at path, creating its directory if needed.
func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	return &FileStore{path: path, lock: flock.New(path + ".lock")}, nil
}

// Path returns the state file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Update(ctx context.Context, fn func(ratelimit.Buckets) error) error {
	unlock, err := s.acquire(ctx, true)
	if err != nil {
		return err
	}
	defer unlock()

	buckets, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(buckets); err != nil {
		return err
	}
	return s.save(buckets)
}

func (s *FileStore) View(ctx context.Context, fn func(ratelimit.Buckets) error) error {
	unlock, err := s.acquire(ctx, false)
	if err != nil {
		return err
	}
	defer unlock()

	buckets, err := s.load()
	if err != nil {
		return err
	}
	return fn(buckets)
}

// Clear removes the state file.
func (s *FileStore) Clear(ctx context.Context) error {
	unlock, err := s.acquire(ctx, true)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}

// acquire takes the process mutex, then the file lock: exclusive for
// writers, shared for readers.
func (s *FileStore) acquire(ctx context.Context, exclusive bool) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()

	try := s.lock.TryRLockContext
	if exclusive {
		try = s.lock.TryLockContext
	}
	locked, err := try(ctx, lockRetry)
	if err != nil || !locked {
		s.mu.Unlock()
		if err == nil {
			err = errors.New("state file lock not acquired")
		}
		return nil, fmt.Errorf("failed to lock state file: %w", err)
	}

	return func() {
		_ = s.lock.Unlock()
		s.mu.Unlock()
	}, nil
}

func (s *FileStore) load() (ratelimit.Buckets, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(ratelimit.Buckets), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	return decode(data), nil
}

func (s *FileStore) save(buckets ratelimit.Buckets) error {
	data, err := encode(buckets)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
