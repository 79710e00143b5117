package constraint

import "errors"

var (
	ErrInvalid      = errors.New("invalid constraint")
	ErrInconsistent = errors.New("constraint contradicts the constraint graph")
)
