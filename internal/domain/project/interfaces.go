package project

import (
	"context"
	"io"
)

// Store persists project snapshots and per-iteration artifacts.
type Store interface {
	Create(ctx context.Context, snap *Snapshot) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
	Load(ctx context.Context, id string) (*Snapshot, error)
	// Commit writes snap and the artifacts together if snap's version still
	// matches the stored one, then advances snap's version.
	Commit(ctx context.Context, snap *Snapshot, artifacts ...Artifact) error
	OpenFile(ctx context.Context, id, name string) ([]byte, error)

	ReadArtifact(ctx context.Context, id string, kind ArtifactKind, iteration int, v any) error
	RemoveArtifact(ctx context.Context, id string, kind ArtifactKind, iteration int) error
	HasArtifact(ctx context.Context, id string, kind ArtifactKind, iteration int) (bool, error)

	Archive(ctx context.Context, id string, w io.Writer) error
	DiscardStaged(ctx context.Context, id string) error
}

// Scheduler runs background jobs.
type Scheduler interface {
	Enqueue(job Job) error
	// Cancel interrupts the running job of a project, if any.
	Cancel(projectID string)
	// Pending reports whether a job of the project is queued or running.
	Pending(projectID string) bool
}
