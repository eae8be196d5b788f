package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"taskdesk/internal/models"
	"taskdesk/internal/storage"
)

// Format is the encoding of the backing file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the encoding from the file extension. Anything that is
// not .yaml or .yml is JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// document mirrors the backing file layout.
type document struct {
	Tasks       []storage.Record `json:"tasks" yaml:"tasks"`
	LastUpdated *string          `json:"last_updated" yaml:"last_updated"`
}

// Store keeps the task collection in a single JSON or YAML file. The file is
// replaced atomically on every save and guarded by an advisory lock held for
// the lifetime of the Store.
type Store struct {
	path   string
	format Format
	lock   *flock.Flock
	logger *slog.Logger
	now    func() time.Time
}

// Open prepares the backing file at path and takes ownership of it.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("empty data file path")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := ensureDir(path); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", path, storage.ErrLocked)
	}

	return &Store{
		path:   path,
		format: FormatForPath(path),
		lock:   lock,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Close releases the file lock.
func (s *Store) Close() error {
	if s.lock == nil {
		return nil
	}
	return s.lock.Unlock()
}

// Load reads the backing file. A missing file yields an empty snapshot.
func (s *Store) Load(_ context.Context) (storage.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("data file not found; starting empty", slog.String("path", s.path))
		return storage.Snapshot{}, nil
	}
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("read %s: %w", s.path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return storage.Snapshot{}, fmt.Errorf("decode %s: empty file", s.path)
	}

	var doc document
	switch s.format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("decode %s: %w", s.path, err)
	}

	tasks, err := storage.DecodeRecords(doc.Tasks, s.now())
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("decode %s: %w", s.path, err)
	}

	snap := storage.Snapshot{Tasks: tasks}
	if doc.LastUpdated != nil {
		if ts, err := models.ParseTimestamp(*doc.LastUpdated); err == nil {
			snap.LastUpdated = ts
		} else {
			s.logger.Warn("ignoring malformed last_updated", slog.String("path", s.path), slog.String("error", err.Error()))
		}
	}
	return snap, nil
}

// Save writes the whole snapshot, replacing the previous file contents.
func (s *Store) Save(_ context.Context, snap storage.Snapshot) error {
	updated := snap.LastUpdated.String()
	doc := document{
		Tasks:       storage.EncodeRecords(snap.Tasks),
		LastUpdated: &updated,
	}

	var (
		data []byte
		err  error
	)
	switch s.format {
	case FormatYAML:
		data, err = yaml.Marshal(doc)
	case FormatJSON:
		data, err = json.MarshalIndent(doc, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}

	if err := writeFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// writeFileAtomic writes data to a temporary sibling and renames it over path
// so readers never observe a partially written file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
