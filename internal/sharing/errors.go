package sharing

import "errors"

var (
	ErrNotFound         = errors.New("share grant not found")
	ErrDocumentNotFound = errors.New("document not found")
	ErrForbidden        = errors.New("not allowed to manage shares for this document")
	ErrUnknownGrantee   = errors.New("grantee does not exist")
	ErrOwnerGrantee     = errors.New("cannot share a document with its owner")
	ErrInvalidInput     = errors.New("invalid input")
)
