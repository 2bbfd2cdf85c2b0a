package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lysyi3m/wokeometro/app/scoring"
)

var _ TitleRepository = (*FileStore)(nil)

const backupTimeLayout = "20060102T150405.000000000Z"

// FileStore keeps the catalog as one JSON array on disk. Every write snapshots
// the previous file into the backup directory and replaces the document through
// a temporary file and a rename. Writes are serialised within the process only;
// separate processes writing the same path race and the last write wins.
type FileStore struct {
	path      string
	backupDir string
	now       func() time.Time

	mu     sync.RWMutex
	titles []Title
}

func NewFileStore(path, backupDir string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("data file path is required")
	}
	if backupDir == "" {
		backupDir = filepath.Join(filepath.Dir(path), "backups")
	}

	s := &FileStore{
		path:      path,
		backupDir: backupDir,
		now:       time.Now,
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) BackupDir() string {
	return s.backupDir
}

// Reload re-reads the document from disk. A missing file reads as an empty catalog.
func (s *FileStore) Reload() error {
	titles, err := s.read()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.titles = titles
	s.mu.Unlock()

	slog.Debug("Store loaded", "path", s.path, "titles", len(titles))
	return nil
}

func (s *FileStore) All() []Title {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Title, len(s.titles))
	for i := range s.titles {
		out[i] = s.titles[i].clone()
	}
	return out
}

func (s *FileStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.titles)
}

// Get looks a title up by exact identifier.
func (s *FileStore) Get(id string) (*Title, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx := indexOf(s.titles, id); idx >= 0 {
		t := s.titles[idx].clone()
		return &t, nil
	}
	return nil, ErrNotFound
}

// Find is the lenient lookup used for links: trimmed exact match first, then a
// case and accent insensitive match.
func (s *FileStore) Find(id string) (*Title, error) {
	want := strings.TrimSpace(id)
	if want == "" {
		return nil, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx := indexOf(s.titles, want); idx >= 0 {
		t := s.titles[idx].clone()
		return &t, nil
	}

	normalized := scoring.Normalize(want)
	for i := range s.titles {
		if scoring.Normalize(s.titles[i].ID) == normalized {
			t := s.titles[i].clone()
			return &t, nil
		}
	}

	return nil, ErrNotFound
}

// Update runs one read-modify-write cycle against the file on disk for the
// title with the exact identifier id.
func (s *FileStore) Update(ctx context.Context, id string, fn UpdateFunc) (*Title, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	titles, err := s.read()
	if err != nil {
		return nil, err
	}

	idx := indexOf(titles, id)
	if idx < 0 {
		return nil, ErrNotFound
	}

	updated := titles[idx].clone()
	if err := fn(&updated); err != nil {
		return nil, err
	}
	// The identifier is immutable once assigned.
	updated.ID = titles[idx].ID
	titles[idx] = updated

	if err := s.write(ctx, titles); err != nil {
		return nil, err
	}

	s.titles = titles
	result := updated.clone()
	return &result, nil
}

// Mutate runs one read-modify-write cycle over the whole catalog as currently
// on disk. The batch tasks use it so that their checkpoints merge into the
// latest document instead of overwriting it with a stale snapshot. Nothing is
// written when fn reports no change.
func (s *FileStore) Mutate(ctx context.Context, fn MutateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	titles, err := s.read()
	if err != nil {
		return err
	}

	next, changed, err := fn(titles)
	if err != nil {
		return err
	}
	if !changed {
		s.titles = titles
		return nil
	}

	for i := range next {
		normalizeLoaded(&next[i])
	}

	if err := s.write(ctx, next); err != nil {
		return err
	}

	s.titles = next
	return nil
}

func (s *FileStore) read() ([]Title, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Title{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrMalformedStore
	}

	var titles []Title
	if err := json.Unmarshal(trimmed, &titles); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedStore, err)
	}

	for i := range titles {
		normalizeLoaded(&titles[i])
	}

	return titles, nil
}

func (s *FileStore) write(ctx context.Context, titles []Title) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(titles); err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}

	if err := s.backup(); err != nil {
		return fmt.Errorf("failed to back up store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace store: %w", err)
	}

	slog.Debug("Store written", "path", s.path, "titles", len(titles))
	return nil
}

// backup copies the current document, if any, to a timestamped file whose name
// sorts after every earlier backup.
func (s *FileStore) backup() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return err
	}

	base := strings.TrimSuffix(filepath.Base(s.path), filepath.Ext(s.path))
	name := fmt.Sprintf("%s.%s.json", base, s.now().UTC().Format(backupTimeLayout))

	return os.WriteFile(filepath.Join(s.backupDir, name), data, 0o644)
}

func indexOf(titles []Title, id string) int {
	for i := range titles {
		if titles[i].ID == id {
			return i
		}
	}
	return -1
}

func (t *Title) clone() Title {
	c := *t
	c.Genres = cloneStrings(t.Genres)
	c.Keywords = cloneStrings(t.Keywords)
	c.Flags = cloneStrings(t.Flags)
	if t.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(t.Extra))
		for k, v := range t.Extra {
			c.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
