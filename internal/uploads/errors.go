package uploads

import "errors"

var (
	ErrNotFound         = errors.New("upload task not found")
	ErrActiveTaskExists = errors.New("document already has an upload in progress")
	ErrConflict         = errors.New("upload task state conflict")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnknownOwner     = errors.New("owner does not exist")
	ErrTooLarge         = errors.New("file exceeds the maximum upload size")
)
