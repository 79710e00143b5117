// Package filestore persists projects as directories of JSON files.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/clusterbench/internal/domain/constraint"
	"github.com/rpggio/clusterbench/internal/domain/project"
	"github.com/rpggio/clusterbench/internal/repository"
)

const (
	metadataFile    = "metadata.json"
	settingsFile    = "settings.json"
	textsFile       = "texts.json"
	constraintsFile = "constraints.json"
	statusFile      = "status.json"

	loadAttempts = 5
)

type settingsDoc struct {
	Version  int64                    `json:"version"`
	Settings map[int]project.Settings `json:"settings"`
}

type textsDoc struct {
	Version int64                   `json:"version"`
	Texts   map[string]project.Text `json:"texts"`
}

type constraintsDoc struct {
	Version     int64                            `json:"version"`
	Constraints map[string]constraint.Constraint `json:"constraints"`
}

type statusDoc struct {
	Version int64 `json:"version"`
	project.Status
}

// Store implements project.Store on the local filesystem under <dir>/projects.
type Store struct {
	root   string
	logger *slog.Logger

	// locks serialise writers per project; Load takes the read side so a reader
	// in this process never observes a commit in flight.
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// New creates the projects directory if needed and returns a store rooted at dataDir.
func New(dataDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	root := filepath.Join(dataDir, "projects")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{
		root:   root,
		logger: logger.With("component", "filestore"),
		locks:  make(map[string]*sync.RWMutex),
	}, nil
}

func (s *Store) rw(id string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.RWMutex{}
		s.locks[id] = m
	}
	return m
}

func (s *Store) lock(id string) func() {
	m := s.rw(id)
	m.Lock()
	return m.Unlock
}

func (s *Store) rlock(id string) func() {
	m := s.rw(id)
	m.RLock()
	return m.RUnlock
}

func (s *Store) dir(id string) (string, error) {
	if !constraint.ValidID(id) {
		return "", fmt.Errorf("project %q: %w", id, repository.ErrNotFound)
	}
	return filepath.Join(s.root, id), nil
}

// Create writes the initial snapshot of a new project at version 1.
func (s *Store) Create(ctx context.Context, snap *project.Snapshot) error {
	id := snap.Metadata.ID
	if !constraint.ValidID(id) {
		return fmt.Errorf("project id %q: %w", id, repository.ErrInvalidInput)
	}
	dir := filepath.Join(s.root, id)

	unlock := s.lock(id)
	defer unlock()

	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("project %q: %w", id, repository.ErrAlreadyExists)
		}
		return fmt.Errorf("create project dir: %w", err)
	}
	snap.Metadata.Version = 1
	if err := writeSnapshot(dir, snap); err != nil {
		os.RemoveAll(dir)
		snap.Metadata.Version = 0
		return err
	}
	return nil
}

// Commit writes snap and the given artifacts as one journaled change when snap's
// version matches the stored version, and bumps it.
func (s *Store) Commit(ctx context.Context, snap *project.Snapshot, artifacts ...project.Artifact) error {
	dir, err := s.dir(snap.Metadata.ID)
	if err != nil {
		return err
	}
	extra := make([]stagedDoc, 0, len(artifacts))
	for _, a := range artifacts {
		if a.IterationID < 0 {
			return fmt.Errorf("iteration %d: %w", a.IterationID, repository.ErrInvalidInput)
		}
		extra = append(extra, stagedDoc{name: a.Kind.FileName(a.IterationID), doc: a.Value})
	}

	unlock := s.lock(snap.Metadata.ID)
	defer unlock()

	if _, err := replayJournal(dir); err != nil {
		return fmt.Errorf("replay commit journal: %w", err)
	}
	var meta project.Metadata
	if err := readJSON(filepath.Join(dir, metadataFile), &meta); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("project %q: %w", snap.Metadata.ID, repository.ErrNotFound)
		}
		return fmt.Errorf("read metadata: %w", err)
	}
	if meta.Version != snap.Metadata.Version {
		return fmt.Errorf("project %q at version %d, snapshot at %d: %w",
			snap.Metadata.ID, meta.Version, snap.Metadata.Version, repository.ErrConflict)
	}

	snap.Metadata.Version++
	if err := writeSnapshot(dir, snap, extra...); err != nil {
		snap.Metadata.Version--
		return err
	}
	return nil
}

// writeSnapshot commits the artifacts and payload files first and metadata last.
func writeSnapshot(dir string, snap *project.Snapshot, artifacts ...stagedDoc) error {
	return commitJournal(dir, snap.Metadata.Version, snapshotDocs(snap, artifacts))
}

func snapshotDocs(snap *project.Snapshot, artifacts []stagedDoc) []stagedDoc {
	v := snap.Metadata.Version
	docs := make([]stagedDoc, 0, len(artifacts)+5)
	docs = append(docs, artifacts...)
	return append(docs,
		stagedDoc{settingsFile, settingsDoc{Version: v, Settings: snap.Settings}},
		stagedDoc{textsFile, textsDoc{Version: v, Texts: snap.Texts}},
		stagedDoc{constraintsFile, constraintsDoc{Version: v, Constraints: snap.Constraints}},
		stagedDoc{statusFile, statusDoc{Version: v, Status: snap.Status}},
		stagedDoc{metadataFile, snap.Metadata},
	)
}

// Load reads a consistent snapshot, retrying while a commit from another process
// is in flight. A commit left half applied by a crash is completed from its journal.
func (s *Store) Load(ctx context.Context, id string) (*project.Snapshot, error) {
	dir, err := s.dir(id)
	if err != nil {
		return nil, err
	}
	if hasJournal(dir) {
		if _, err := s.replay(id, dir); err != nil {
			return nil, fmt.Errorf("load project %q: %w", id, err)
		}
	}
	snap, err := s.read(ctx, id, dir)
	if !errors.Is(err, errTorn) {
		return snap, err
	}
	replayed, rerr := s.replay(id, dir)
	if rerr != nil {
		return nil, fmt.Errorf("load project %q: %w", id, rerr)
	}
	if !replayed {
		return nil, err
	}
	return s.read(ctx, id, dir)
}

func (s *Store) read(ctx context.Context, id, dir string) (*project.Snapshot, error) {
	unlock := s.rlock(id)
	defer unlock()
	var lastErr error
	for attempt := 0; attempt < loadAttempts; attempt++ {
		snap, err := readSnapshot(dir)
		if err == nil {
			return snap, nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("project %q: %w", id, repository.ErrNotFound)
		}
		lastErr = err
		if !errors.Is(err, errTorn) {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 5 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("load project %q: %w", id, lastErr)
}

// replay completes an interrupted commit of the project, if one is journaled.
func (s *Store) replay(id, dir string) (bool, error) {
	unlock := s.lock(id)
	defer unlock()
	replayed, err := replayJournal(dir)
	if err != nil {
		return false, fmt.Errorf("replay commit journal: %w", err)
	}
	if replayed {
		s.logger.Warn("completed interrupted commit", "project_id", id)
	}
	return replayed, nil
}

var errTorn = errors.New("snapshot files disagree on version")

func readSnapshot(dir string) (*project.Snapshot, error) {
	var meta project.Metadata
	if err := readJSON(filepath.Join(dir, metadataFile), &meta); err != nil {
		return nil, err
	}
	var (
		settings    settingsDoc
		texts       textsDoc
		constraints constraintsDoc
		status      statusDoc
	)
	reads := []struct {
		name    string
		doc     any
		version *int64
	}{
		{settingsFile, &settings, &settings.Version},
		{textsFile, &texts, &texts.Version},
		{constraintsFile, &constraints, &constraints.Version},
		{statusFile, &status, &status.Version},
	}
	for _, r := range reads {
		if err := readJSON(filepath.Join(dir, r.name), r.doc); err != nil {
			return nil, err
		}
		if *r.version != meta.Version {
			return nil, fmt.Errorf("%w: %s at %d, metadata at %d", errTorn, r.name, *r.version, meta.Version)
		}
	}

	snap := &project.Snapshot{
		Metadata:    meta,
		Settings:    settings.Settings,
		Texts:       texts.Texts,
		Constraints: constraints.Constraints,
		Status:      status.Status,
	}
	if snap.Settings == nil {
		snap.Settings = map[int]project.Settings{}
	}
	if snap.Texts == nil {
		snap.Texts = map[string]project.Text{}
	}
	if snap.Constraints == nil {
		snap.Constraints = map[string]constraint.Constraint{}
	}
	return snap, nil
}

// List returns the ids of all projects, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read projects dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() || !constraint.ValidID(e.Name()) {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), metadataFile)); err != nil {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a project directory. The directory is renamed first so readers
// never see a half-deleted project.
func (s *Store) Delete(ctx context.Context, id string) error {
	dir, err := s.dir(id)
	if err != nil {
		return err
	}
	unlock := s.lock(id)
	defer unlock()

	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("project %q: %w", id, repository.ErrNotFound)
		}
		return fmt.Errorf("stat project: %w", err)
	}
	trash := filepath.Join(s.root, ".deleted-"+id+"-"+uuid.NewString()[:8])
	if err := os.Rename(dir, trash); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if err := os.RemoveAll(trash); err != nil {
		s.logger.Warn("failed to remove deleted project", "path", trash, "error", err)
	}
	return nil
}

// DiscardStaged settles an interrupted write: a journaled commit is completed,
// then any remaining staged temp files are removed.
func (s *Store) DiscardStaged(ctx context.Context, id string) error {
	dir, err := s.dir(id)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("project %q: %w", id, repository.ErrNotFound)
		}
		return fmt.Errorf("stat project dir: %w", err)
	}
	if _, err := s.replay(id, dir); err != nil {
		return err
	}

	unlock := s.lock(id)
	defer unlock()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read project dir: %w", err)
	}
	for _, e := range entries {
		if !isStaged(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove staged file: %w", err)
		}
		s.logger.Info("discarded staged file", "project_id", id, "file", e.Name())
	}
	return nil
}
