package sqlite

import (
	"context"
	"log/slog"
	"sync"
)

// Store owns the process-wide database handle. Init may be called again with
// a different path; the previous handle is closed only after the new one is
// open and migrated.
type Store struct {
	mu     sync.RWMutex
	db     *DB
	logger *slog.Logger
	opts   []MigrateOption
}

func NewStore(logger *slog.Logger, opts ...MigrateOption) *Store {
	return &Store{logger: logger, opts: opts}
}

// Init opens path, migrates it to LatestVersion and makes it the active database.
func (s *Store) Init(ctx context.Context, path string) error {
	db, err := OpenDB(path, s.logger)
	if err != nil {
		return err
	}
	version, err := EnsureSchema(ctx, db, s.opts...)
	if err != nil {
		db.Close()
		return err
	}

	s.mu.Lock()
	prev := s.db
	s.db = db
	s.mu.Unlock()

	db.Logger.Info("database ready", "path", path, "schema_version", version)
	if prev != nil {
		if err := prev.Close(); err != nil {
			db.Logger.Warn("close previous database", "path", prev.Path, "error", err)
		}
	}
	return nil
}

// DB returns the active database or ErrNotInitialized.
func (s *Store) DB() (*DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

// Path returns the active database path, or "" before Init.
func (s *Store) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ""
	}
	return s.db.Path
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.Close()
	s.db = nil
	return err
}
