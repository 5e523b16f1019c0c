package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrNodeNotFound  = errors.New("node not found")
	ErrInvalidBatch  = errors.New("invalid batch")
	ErrInvalidDoc    = errors.New("invalid document")
)
