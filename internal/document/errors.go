package document

import "errors"

var (
	// ErrDocumentLoad is returned when a document is missing, corrupt or not a supported format.
	ErrDocumentLoad = errors.New("document load failed")
)
