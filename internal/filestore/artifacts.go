package filestore

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rpggio/clusterbench/internal/domain/project"
	"github.com/rpggio/clusterbench/internal/repository"
)

func (s *Store) artifactPath(id string, kind project.ArtifactKind, iteration int) (string, error) {
	dir, err := s.dir(id)
	if err != nil {
		return "", err
	}
	if iteration < 0 {
		return "", fmt.Errorf("iteration %d: %w", iteration, repository.ErrInvalidInput)
	}
	return filepath.Join(dir, kind.FileName(iteration)), nil
}

// ReadArtifact decodes a per-iteration result into v.
func (s *Store) ReadArtifact(ctx context.Context, id string, kind project.ArtifactKind, iteration int, v any) error {
	path, err := s.artifactPath(id, kind, iteration)
	if err != nil {
		return err
	}
	if err := readJSON(path, v); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", filepath.Base(path), repository.ErrNotFound)
		}
		return err
	}
	return nil
}

// RemoveArtifact deletes a per-iteration result. Missing files are not an error.
func (s *Store) RemoveArtifact(ctx context.Context, id string, kind project.ArtifactKind, iteration int) error {
	path, err := s.artifactPath(id, kind, iteration)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", filepath.Base(path), err)
	}
	return nil
}

// HasArtifact reports whether a per-iteration result exists.
func (s *Store) HasArtifact(ctx context.Context, id string, kind project.ArtifactKind, iteration int) (bool, error) {
	path, err := s.artifactPath(id, kind, iteration)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// OpenFile returns the raw content of one file of a project directory.
func (s *Store) OpenFile(ctx context.Context, id, name string) ([]byte, error) {
	dir, err := s.dir(id)
	if err != nil {
		return nil, err
	}
	if name == "" || filepath.Base(name) != name || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("file %q: %w", name, repository.ErrNotFound)
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("file %q: %w", name, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// Archive writes a zip of the project's files, rooted at the project id.
func (s *Store) Archive(ctx context.Context, id string, w io.Writer) error {
	dir, err := s.dir(id)
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("project %q: %w", id, repository.ErrNotFound)
		}
		return fmt.Errorf("read project dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	zw := zip.NewWriter(w)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("read %s: %w", name, err)
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: id + "/" + name, Method: zip.Deflate})
		if err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
		if _, err := fw.Write(data); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	return nil
}
