package resume

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

// Store reads and writes the record at a single well-known path.
type Store struct {
	path   string
	logger *zap.Logger
}

// NewStore creates a Store. A leading ~ in path is expanded.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("resume: empty path")
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expanding resume path %q: %w", path, err)
	}
	return &Store{path: expanded, logger: logger.Named("resume")}, nil
}

// Path is the expanded location of the record.
func (s *Store) Path() string { return s.path }

// Save atomically replaces the record: it is written to a sibling temp file
// and renamed over the target.
func (s *Store) Save(rec Record) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating resume directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding resume record: %w", err)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(s.path)+"."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating temp resume file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing temp resume file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing temp resume file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing temp resume file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing resume file: %w", err)
	}

	s.logger.Debug("Resume state saved.", zap.String("mode", string(rec.Mode)), zap.String("path", s.path))
	return nil
}

// Load reads the record. A missing file yields ok == false and no error.
func (s *Store) Load() (rec Record, ok bool, err error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("reading resume file: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("parsing resume file %s: %w", s.path, err)
	}
	return rec, true, nil
}

// Clear removes the record. A missing file is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing resume file: %w", err)
	}
	s.logger.Debug("Resume state cleared.", zap.String("path", s.path))
	return nil
}
