package filestore

import (
	"path/filepath"

	"github.com/rpggio/clusterbench/internal/domain/project"
)

// CommitPartially writes the next version of snap the way Commit does but stops
// after n renames, leaving the files as a crash in the middle of a commit would.
// A negative n also skips writing the journal.
func (s *Store) CommitPartially(snap *project.Snapshot, n int) error {
	dir, err := s.dir(snap.Metadata.ID)
	if err != nil {
		return err
	}
	next := *snap
	next.Metadata.Version++
	j, err := stage(dir, next.Metadata.Version, snapshotDocs(&next, nil))
	if err != nil {
		return err
	}
	if n < 0 {
		return nil
	}
	if err := writeJSONAtomic(filepath.Join(dir, journalFile), j); err != nil {
		return err
	}
	return j.apply(dir, n)
}

const JournalFile = journalFile
