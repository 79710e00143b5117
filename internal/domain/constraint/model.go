package constraint

import (
	"fmt"
	"regexp"
	"strings"
)

// Type is the annotation carried by a constraint.
type Type string

const (
	MustLink   Type = "MUST_LINK"
	CannotLink Type = "CANNOT_LINK"
)

// Implication is the relation between two texts derived from the graph.
type Implication string

const (
	ImpliedMustLink   Implication = "MUST_LINK"
	ImpliedCannotLink Implication = "CANNOT_LINK"
	ImpliedUnknown    Implication = "UNKNOWN"
)

// Constraint is a pairwise annotation between two texts.
// A nil Type with IsHidden false is pending; nil with IsHidden true is an abstention.
type Constraint struct {
	ID                  string `json:"constraint_id"`
	TextIDA             string `json:"text_id_a"`
	TextIDB             string `json:"text_id_b"`
	Type                *Type  `json:"type"`
	IsHidden            bool   `json:"is_hidden"`
	ToReview            bool   `json:"to_review"`
	Comment             string `json:"comment"`
	DateOfUpdate        *int64 `json:"date_of_update"`
	IterationOfSampling int    `json:"iteration_of_sampling"`
}

var textIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidID reports whether id is usable as a text or project identifier.
func ValidID(id string) bool {
	return textIDPattern.MatchString(id)
}

// Canonical orders a pair of text ids.
func Canonical(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// ID builds the canonical constraint id for a pair of texts.
func ID(a, b string) string {
	a, b = Canonical(a, b)
	return "(" + a + "," + b + ")"
}

// ParseID splits a canonical constraint id into its text ids.
func ParseID(id string) (string, string, error) {
	if !strings.HasPrefix(id, "(") || !strings.HasSuffix(id, ")") {
		return "", "", fmt.Errorf("%w: malformed constraint id %q", ErrInvalid, id)
	}
	parts := strings.Split(id[1:len(id)-1], ",")
	if len(parts) != 2 || !ValidID(parts[0]) || !ValidID(parts[1]) {
		return "", "", fmt.Errorf("%w: malformed constraint id %q", ErrInvalid, id)
	}
	if parts[0] == parts[1] {
		return "", "", fmt.Errorf("%w: constraint on a single text %q", ErrInvalid, id)
	}
	if ID(parts[0], parts[1]) != id {
		return "", "", fmt.Errorf("%w: constraint id %q is not canonical", ErrInvalid, id)
	}
	return parts[0], parts[1], nil
}

// New returns a pending constraint for the given pair.
func New(a, b string, iteration int) Constraint {
	a, b = Canonical(a, b)
	return Constraint{
		ID:                  ID(a, b),
		TextIDA:             a,
		TextIDB:             b,
		IterationOfSampling: iteration,
	}
}

// Pending reports whether the constraint still awaits an annotation.
func (c Constraint) Pending() bool {
	return c.Type == nil && !c.IsHidden
}

// Active reports whether the constraint participates in the graph.
func (c Constraint) Active() bool {
	return c.Type != nil && !c.IsHidden
}

// Validate checks the structural invariants of a constraint.
func (c Constraint) Validate() error {
	if c.TextIDA == c.TextIDB {
		return fmt.Errorf("%w: constraint %q links a text to itself", ErrInvalid, c.ID)
	}
	if c.TextIDA > c.TextIDB {
		return fmt.Errorf("%w: constraint %q is not in canonical order", ErrInvalid, c.ID)
	}
	if c.ID != ID(c.TextIDA, c.TextIDB) {
		return fmt.Errorf("%w: constraint id %q does not match its texts", ErrInvalid, c.ID)
	}
	if c.Type != nil {
		if err := c.Type.Validate(); err != nil {
			return err
		}
	}
	if c.IterationOfSampling < 0 {
		return fmt.Errorf("%w: negative sampling iteration", ErrInvalid)
	}
	return nil
}

// Validate checks that t is a known annotation.
func (t Type) Validate() error {
	switch t {
	case MustLink, CannotLink:
		return nil
	default:
		return fmt.Errorf("%w: unknown constraint type %q", ErrInvalid, string(t))
	}
}

// TypePtr is a helper for building annotations.
func TypePtr(t Type) *Type {
	return &t
}
