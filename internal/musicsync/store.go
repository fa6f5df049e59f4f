package musicsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// DefaultStoreName is the cursor file name used when only a directory is configured.
const DefaultStoreName = "music_sync_cache.json"

const lockRetryDelay = 50 * time.Millisecond

// Cursor is the persisted music position for one video key.
type Cursor struct {
	LastMusicStart float64 `json:"last_music_start"`
}

// Entry pairs a video key with its cursor.
type Entry struct {
	Video  string `json:"video"`
	Cursor Cursor `json:"cursor"`
}

// Store persists cursors as a JSON object keyed by video basename. Updates
// are read-modify-write under an exclusive file lock, so several processes
// sharing the file never lose an advance.
type Store struct {
	path string
	lock *flock.Flock
	// mu serializes goroutines of this process; flock alone is per file descriptor.
	mu sync.Mutex
}

// NewStore prepares a store at path. The file is created on the first update.
func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("music cursor path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cursor directory: %w", err)
	}
	return &Store{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

// Path returns the cursor file location.
func (s *Store) Path() string {
	return s.path
}

// Get returns the cursor for key. Missing keys report the zero cursor and false.
func (s *Store) Get(ctx context.Context, key string) (Cursor, bool, error) {
	var (
		cursor Cursor
		found  bool
	)
	err := s.withLock(ctx, func() error {
		cursor, found = s.read()[key]
		return nil
	})
	return cursor, found, err
}

// Entries lists every stored cursor sorted by video key.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := s.withLock(ctx, func() error {
		for video, cursor := range s.read() {
			entries = append(entries, Entry{Video: video, Cursor: cursor})
		}
		return nil
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].Video < entries[j].Video })
	return entries, err
}

// Advance applies fn to the current cursor for key and persists the result.
// The lock is held while fn runs, so fn sees the latest value and no other
// update can interleave. When fn fails nothing is written.
func (s *Store) Advance(ctx context.Context, key string, fn func(Cursor) (Cursor, error)) (Cursor, error) {
	if strings.TrimSpace(key) == "" {
		return Cursor{}, errors.New("cursor key cannot be empty")
	}

	var next Cursor
	err := s.withLock(ctx, func() error {
		entries := s.read()
		updated, err := fn(entries[key])
		if err != nil {
			next = entries[key]
			return err
		}
		entries[key] = updated
		if err := s.write(entries); err != nil {
			return fmt.Errorf("persist cursor: %w", err)
		}
		next = updated
		return nil
	})
	return next, err
}

// Set overwrites the cursor for key.
func (s *Store) Set(ctx context.Context, key string, cursor Cursor) error {
	_, err := s.Advance(ctx, key, func(Cursor) (Cursor, error) { return cursor, nil })
	return err
}

// Remove deletes the cursor for key so the next sync starts from zero.
func (s *Store) Remove(ctx context.Context, key string) error {
	return s.withLock(ctx, func() error {
		entries := s.read()
		if _, ok := entries[key]; !ok {
			return fmt.Errorf("no cursor for %q", key)
		}
		delete(entries, key)
		return s.write(entries)
	})
}

func (s *Store) withLock(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire cursor lock: %w", err)
	}
	if !locked {
		return errors.New("acquire cursor lock: not acquired")
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			log.Printf("[MusicSync] Warning: failed to release cursor lock: %v", err)
		}
	}()

	return fn()
}

// read loads the store. A missing, empty or malformed file is an empty store.
func (s *Store) read() map[string]Cursor {
	entries := make(map[string]Cursor)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Printf("[MusicSync] Warning: failed to read %s, starting empty: %v", s.path, err)
		}
		return entries
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return entries
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Printf("[MusicSync] Warning: malformed cursor file %s, starting empty: %v", s.path, err)
		return make(map[string]Cursor)
	}
	if entries == nil {
		entries = make(map[string]Cursor)
	}
	return entries
}

// write replaces the store file atomically via a temp file in the same directory.
func (s *Store) write(entries map[string]Cursor) error {
	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal cursors: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
