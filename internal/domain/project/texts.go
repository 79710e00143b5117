package project

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rpggio/clusterbench/internal/domain/activity"
	"github.com/rpggio/clusterbench/internal/domain/constraint"
)

// TextInput is one row of an import.
type TextInput struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ValidateText checks a text id and value.
func ValidateText(id, value string) error {
	if !constraint.ValidID(id) {
		return fmt.Errorf("%w: invalid text id %q", ErrBadRequest, id)
	}
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: text %q is empty", ErrBadRequest, id)
	}
	return nil
}

// ParseTextsCSV reads "id,text" rows. A leading "id,text" header is skipped.
func ParseTextsCSV(r io.Reader) ([]TextInput, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows []TextInput
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: parse csv: %v", ErrBadRequest, err)
		}
		if len(record) != 2 {
			return nil, fmt.Errorf("%w: csv line %d has %d fields, want 2", ErrBadRequest, line, len(record))
		}
		if line == 1 && strings.EqualFold(record[0], "id") && strings.EqualFold(record[1], "text") {
			continue
		}
		rows = append(rows, TextInput{ID: strings.TrimSpace(record[0]), Text: record[1]})
	}
	return rows, nil
}

// ImportTextsCSV parses a CSV body and imports it.
func (s *Service) ImportTextsCSV(ctx context.Context, projectID string, r io.Reader) (*Snapshot, error) {
	rows, err := ParseTextsCSV(r)
	if err != nil {
		return nil, err
	}
	return s.ImportTexts(ctx, projectID, rows)
}

// ImportTexts adds texts to a project that has not started annotating yet.
func (s *Service) ImportTexts(ctx context.Context, projectID string, rows []TextInput) (*Snapshot, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no texts to import", ErrBadRequest)
	}
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		if err := ValidateText(row.ID, row.Text); err != nil {
			return nil, err
		}
		if seen[row.ID] {
			return nil, fmt.Errorf("text %q %w in import", row.ID, ErrAlreadyExists)
		}
		seen[row.ID] = true
	}

	snap, err := s.mutate(ctx, projectID, func(snap *Snapshot, _ *constraint.Graph) error {
		if err := guard(ActionImportTexts, snap.Status.State); err != nil {
			return err
		}
		for _, row := range rows {
			if _, ok := snap.Texts[row.ID]; ok {
				return fmt.Errorf("text %q %w", row.ID, ErrAlreadyExists)
			}
		}
		for _, row := range rows {
			snap.Texts[row.ID] = Text{ID: row.ID, Original: row.Text, Preprocessed: row.Text}
		}
		if snap.Status.State == StateInitializationWithErrors {
			snap.Status.State = StateInitializationWithPendingModelization
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, snap, activity.TypeTextsImported, nil, fmt.Sprintf("imported %d texts", len(rows)))
	return snap, nil
}

// RenameText replaces the value of a text.
func (s *Service) RenameText(ctx context.Context, projectID, textID, value string) (*Snapshot, error) {
	if err := ValidateText(textID, value); err != nil {
		return nil, err
	}
	return s.editText(ctx, projectID, textID, "renamed", func(snap *Snapshot, t *Text) error {
		if t.IsDeleted {
			return fmt.Errorf("%w: text %q is deleted", ErrBadState, textID)
		}
		t.Original = value
		t.Preprocessed = value
		return nil
	})
}

// DeleteText marks a text deleted and hides every constraint involving it.
func (s *Service) DeleteText(ctx context.Context, projectID, textID string) (*Snapshot, error) {
	return s.editText(ctx, projectID, textID, "deleted", func(snap *Snapshot, t *Text) error {
		if t.IsDeleted {
			return errNoChange
		}
		t.IsDeleted = true
		for id, c := range snap.Constraints {
			if c.TextIDA == textID || c.TextIDB == textID {
				c.IsHidden = true
				snap.Constraints[id] = c
			}
		}
		return nil
	})
}

// UndeleteText restores a deleted text. Its constraints stay hidden until
// explicitly unhidden.
func (s *Service) UndeleteText(ctx context.Context, projectID, textID string) (*Snapshot, error) {
	return s.editText(ctx, projectID, textID, "restored", func(snap *Snapshot, t *Text) error {
		if !t.IsDeleted {
			return errNoChange
		}
		t.IsDeleted = false
		return nil
	})
}

func (s *Service) editText(ctx context.Context, projectID, textID, verb string, edit func(snap *Snapshot, t *Text) error) (*Snapshot, error) {
	snap, err := s.mutate(ctx, projectID, func(snap *Snapshot, _ *constraint.Graph) error {
		state := snap.Status.State
		if err := guard(ActionEditText, state); err != nil {
			return err
		}
		next, ok := invalidateModelization(state, snap.Status.IterationID)
		if !ok {
			return badState(string(ActionEditText), state)
		}
		t, ok := snap.Texts[textID]
		if !ok {
			return ErrTextNotFound
		}
		if err := edit(snap, &t); err != nil {
			return err
		}
		snap.Texts[textID] = t
		snap.Status.State = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	subject := textID
	s.record(ctx, snap, activity.TypeTextUpdated, &subject, verb+" text "+textID)
	return snap, nil
}
