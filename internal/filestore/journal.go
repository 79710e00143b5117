package filestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// journalFile names the staged files of a commit. Once it is on disk the commit
// is decided: recovery renames whatever is still staged. Without it, staged
// files are leftovers and get removed.
const journalFile = ".commit.json"

type journal struct {
	Version int64          `json:"version"`
	Renames []journalEntry `json:"renames"`
}

type journalEntry struct {
	Staged string `json:"staged"`
	Target string `json:"target"`
}

type stagedDoc struct {
	name string
	doc  any
}

// stageFile writes data to a synced temp file in dir and returns its base name.
func stageFile(dir string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, stagedPattern)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return filepath.Base(name), nil
}

// stage writes every document to its own staged file. On error nothing is left behind.
func stage(dir string, version int64, docs []stagedDoc) (*journal, error) {
	j := &journal{Version: version}
	for _, d := range docs {
		data, err := encodeJSON(d.doc)
		if err == nil {
			var staged string
			staged, err = stageFile(dir, data)
			if err == nil {
				j.Renames = append(j.Renames, journalEntry{Staged: staged, Target: d.name})
				continue
			}
		}
		j.discard(dir)
		return nil, fmt.Errorf("stage %s: %w", d.name, err)
	}
	return j, nil
}

// commitJournal stages docs, records the journal, then moves every staged file
// into place. Metadata goes last so its version is the commit marker readers see.
func commitJournal(dir string, version int64, docs []stagedDoc) error {
	j, err := stage(dir, version, docs)
	if err != nil {
		return err
	}
	if err := writeJSONAtomic(filepath.Join(dir, journalFile), j); err != nil {
		j.discard(dir)
		return fmt.Errorf("write commit journal: %w", err)
	}
	syncDir(dir)
	return j.finish(dir)
}

// apply renames the first n staged files. A staged file that is already gone was
// moved by an earlier attempt.
func (j *journal) apply(dir string, n int) error {
	for _, e := range j.Renames[:n] {
		if err := os.Rename(filepath.Join(dir, e.Staged), filepath.Join(dir, e.Target)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("rename %s: %w", e.Target, err)
		}
	}
	return nil
}

// finish moves every staged file into place and drops the journal.
func (j *journal) finish(dir string) error {
	if err := j.apply(dir, len(j.Renames)); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(dir, journalFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove commit journal: %w", err)
	}
	return nil
}

func (j *journal) discard(dir string) {
	for _, e := range j.Renames {
		os.Remove(filepath.Join(dir, e.Staged))
	}
}

// replayJournal completes a commit interrupted after its journal was written.
// It reports whether a journal was found.
func replayJournal(dir string) (bool, error) {
	var j journal
	if err := readJSON(filepath.Join(dir, journalFile), &j); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, j.finish(dir)
}

func hasJournal(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, journalFile))
	return err == nil
}

// syncDir flushes directory entries where the platform supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}
