package documents

import "errors"

var (
	ErrNotFound     = errors.New("document not found")
	ErrForbidden    = errors.New("not allowed to access this document")
	ErrNotReady     = errors.New("document has no stored file")
	ErrInvalidInput = errors.New("invalid input")
)
