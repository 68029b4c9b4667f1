// Package storage provides append-only, file-based JSON record storage.
//
// Records live in directories addressed by a path slice. Each record is a
// JSON file named by its zero-padded sequence number, so directory order is
// append order. Records are never rewritten or removed.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

var (
	ErrNotFound = errors.New("not found")
)

const seqWidth = 12

// Storage provides file-based append-only JSON storage.
type Storage struct {
	basePath string
	mu       sync.Mutex
	locks    map[string]*sync.Mutex
}

// New creates a new Storage instance.
func New(basePath string) *Storage {
	return &Storage{
		basePath: basePath,
		locks:    make(map[string]*sync.Mutex),
	}
}

// pathToDir converts a path slice to a directory path.
func (s *Storage) pathToDir(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...)
}

// Append writes a new record at the end of the directory at path. build
// receives the sequence number the record will have (1-based) and returns
// the value to store. Appends to the same directory are serialized, both
// within the process and across processes.
func (s *Storage) Append(ctx context.Context, path []string, build func(seq int64) any) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	dir := s.pathToDir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	mu := s.dirMutex(dir)
	mu.Lock()
	defer mu.Unlock()

	unlock, err := lockDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer unlock()

	last, err := lastSequence(dir)
	if err != nil {
		return 0, err
	}
	seq := last + 1

	data, err := json.Marshal(build(seq))
	if err != nil {
		return 0, fmt.Errorf("failed to marshal: %w", err)
	}

	if err := writeAtomic(filepath.Join(dir, recordName(seq)), data); err != nil {
		return 0, err
	}
	return seq, nil
}

// Scan calls fn for every record at path in append order.
func (s *Storage) Scan(ctx context.Context, path []string, fn func(seq int64, data json.RawMessage) error) error {
	dir := s.pathToDir(path)

	seqs, err := sequences(dir)
	if err != nil {
		return err
	}

	for _, seq := range seqs {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := os.ReadFile(filepath.Join(dir, recordName(seq)))
		if err != nil {
			return fmt.Errorf("failed to read record %d: %w", seq, err)
		}
		if err := fn(seq, json.RawMessage(data)); err != nil {
			return err
		}
	}
	return nil
}

// Get decodes the record with the given sequence number into v.
func (s *Storage) Get(ctx context.Context, path []string, seq int64, v any) error {
	data, err := os.ReadFile(filepath.Join(s.pathToDir(path), recordName(seq)))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal: %w", err)
	}
	return nil
}

// List returns the names of the sub-directories at path, sorted.
func (s *Storage) List(ctx context.Context, path []string) ([]string, error) {
	entries, err := os.ReadDir(s.pathToDir(path))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var items []string
	for _, entry := range entries {
		if entry.IsDir() {
			items = append(items, entry.Name())
		}
	}
	return items, nil
}

// Exists checks if any record exists at path.
func (s *Storage) Exists(ctx context.Context, path []string) bool {
	seqs, err := sequences(s.pathToDir(path))
	return err == nil && len(seqs) > 0
}

func (s *Storage) dirMutex(dir string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	mu, ok := s.locks[dir]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[dir] = mu
	}
	return mu
}

func recordName(seq int64) string {
	return fmt.Sprintf("%0*d.json", seqWidth, seq)
}

// sequences returns the record sequence numbers in dir, ascending.
func sequences(dir string) ([]int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var seqs []int64
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		seq, err := strconv.ParseInt(strings.TrimSuffix(name, ".json"), 10, 64)
		if err != nil {
			continue
		}
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}

func lastSequence(dir string) (int64, error) {
	seqs, err := sequences(dir)
	if err != nil {
		return 0, err
	}
	if len(seqs) == 0 {
		return 0, nil
	}
	return seqs[len(seqs)-1], nil
}

// writeAtomic writes to a temp file first, then renames it into place.
func writeAtomic(path string, data []byte) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("record %s already exists", filepath.Base(path))
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}
