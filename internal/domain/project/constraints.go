package project

import (
	"context"
	"fmt"
	"slices"

	"github.com/rpggio/clusterbench/internal/domain/activity"
	"github.com/rpggio/clusterbench/internal/domain/constraint"
)

// AnnotateConstraint sets the type of a constraint, or abstains when typ is nil.
// An unknown canonical id inserts a manual constraint for the current iteration.
func (s *Service) AnnotateConstraint(ctx context.Context, projectID, constraintID string, typ *constraint.Type) (*Snapshot, error) {
	a, b, err := constraint.ParseID(constraintID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if typ != nil {
		if err := typ.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
	}

	snap, err := s.mutate(ctx, projectID, func(snap *Snapshot, g *constraint.Graph) error {
		state := snap.Status.State
		if err := guard(ActionAnnotate, state); err != nil {
			return err
		}
		if err := requireActiveTexts(snap, a, b); err != nil {
			return err
		}

		c, exists := snap.Constraints[constraintID]
		if !exists {
			c = constraint.New(a, b, snap.Status.IterationID)
		}
		wasActive := c.Active()
		now := s.nowMS()

		edited := c
		edited.Type = typ
		edited.IsHidden = typ == nil
		edited.DateOfUpdate = &now

		graphChanged := false
		switch {
		case typ == nil:
			graphChanged = wasActive
		case !wasActive:
			if err := g.Check(a, b, *typ); err != nil {
				return err
			}
			graphChanged = g.Implied(a, b) == constraint.ImpliedUnknown
		case *c.Type != *typ:
			others := make([]constraint.Constraint, 0, len(snap.Constraints))
			for id, other := range snap.Constraints {
				if id != constraintID {
					others = append(others, other)
				}
			}
			_, conflicts := constraint.Rebuild(append(others, edited))
			if slices.Contains(conflicts, constraintID) {
				return fmt.Errorf("%w: %s cannot become %s", ErrInconsistent, constraintID, *typ)
			}
			graphChanged = true
		}

		snap.Constraints[constraintID] = edited
		advanceAnnotationState(snap, graphChanged)
		return nil
	})
	if err != nil {
		return nil, err
	}

	subject := constraintID
	label := "abstained on"
	if typ != nil {
		label = "annotated " + string(*typ)
	}
	s.record(ctx, snap, activity.TypeConstraintAnnotated, &subject, label+" "+constraintID)
	return snap, nil
}

// UnhideConstraint makes a hidden constraint visible again after re-validating it.
func (s *Service) UnhideConstraint(ctx context.Context, projectID, constraintID string) (*Snapshot, error) {
	snap, err := s.mutate(ctx, projectID, func(snap *Snapshot, g *constraint.Graph) error {
		if err := guard(ActionAnnotate, snap.Status.State); err != nil {
			return err
		}
		c, ok := snap.Constraints[constraintID]
		if !ok {
			return ErrConstraintNotFound
		}
		if !c.IsHidden {
			return errNoChange
		}
		if err := requireActiveTexts(snap, c.TextIDA, c.TextIDB); err != nil {
			return err
		}
		graphChanged := false
		if c.Type != nil {
			if err := g.Check(c.TextIDA, c.TextIDB, *c.Type); err != nil {
				return err
			}
			graphChanged = g.Implied(c.TextIDA, c.TextIDB) == constraint.ImpliedUnknown
		}
		c.IsHidden = false
		snap.Constraints[constraintID] = c
		advanceAnnotationState(snap, graphChanged)
		return nil
	})
	if err != nil {
		return nil, err
	}
	subject := constraintID
	s.record(ctx, snap, activity.TypeConstraintUpdated, &subject, "unhid "+constraintID)
	return snap, nil
}

// CommentConstraint replaces the free-text comment of a constraint.
func (s *Service) CommentConstraint(ctx context.Context, projectID, constraintID, comment string) (*Snapshot, error) {
	return s.editConstraintMeta(ctx, projectID, constraintID, "commented", func(c *constraint.Constraint) {
		c.Comment = comment
	})
}

// ReviewConstraint sets or clears the to-review flag.
func (s *Service) ReviewConstraint(ctx context.Context, projectID, constraintID string, toReview bool) (*Snapshot, error) {
	verb := "unflagged"
	if toReview {
		verb = "flagged for review"
	}
	return s.editConstraintMeta(ctx, projectID, constraintID, verb, func(c *constraint.Constraint) {
		c.ToReview = toReview
	})
}

func (s *Service) editConstraintMeta(ctx context.Context, projectID, constraintID, verb string, edit func(c *constraint.Constraint)) (*Snapshot, error) {
	snap, err := s.mutate(ctx, projectID, func(snap *Snapshot, _ *constraint.Graph) error {
		if err := guard(ActionEditConstraintMeta, snap.Status.State); err != nil {
			return err
		}
		c, ok := snap.Constraints[constraintID]
		if !ok {
			return ErrConstraintNotFound
		}
		edit(&c)
		snap.Constraints[constraintID] = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	subject := constraintID
	s.record(ctx, snap, activity.TypeConstraintUpdated, &subject, verb+" "+constraintID)
	return snap, nil
}

// ApproveConstraints closes the annotation of the current batch.
func (s *Service) ApproveConstraints(ctx context.Context, projectID string) (*Snapshot, error) {
	snap, err := s.mutate(ctx, projectID, func(snap *Snapshot, _ *constraint.Graph) error {
		state := snap.Status.State
		if err := guard(ActionApproveConstraints, state); err != nil {
			return err
		}
		if state == StateClusteringTodo {
			return errNoChange
		}
		if n := snap.PendingInIteration(snap.Status.IterationID); n > 0 {
			return fmt.Errorf("%w: %d constraints still pending", ErrBadState, n)
		}
		snap.Status.State = StateClusteringTodo
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, snap, activity.TypeConstraintsApproved, nil, "approved constraints")
	return snap, nil
}

func requireActiveTexts(snap *Snapshot, ids ...string) error {
	for _, id := range ids {
		t, ok := snap.Texts[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrTextNotFound, id)
		}
		if t.IsDeleted {
			return fmt.Errorf("%w: text %s is deleted", ErrBadState, id)
		}
	}
	return nil
}

func advanceAnnotationState(snap *Snapshot, graphChanged bool) {
	if graphChanged && snap.Status.State == StateAnnotationWithUpToDateModelization {
		snap.Status.State = StateAnnotationWithOutdatedModelization
	}
	if snap.PendingInIteration(snap.Status.IterationID) == 0 {
		snap.Status.State = afterAnnotationBatch(snap.Status.State)
	}
}
