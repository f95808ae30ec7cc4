package index

import "errors"

var (
	// ErrIndexBuild is fatal to activating a document session.
	ErrIndexBuild = errors.New("index build failed")
	// ErrRetrieval is recoverable: the query is aborted but the collection stays usable.
	ErrRetrieval = errors.New("could not search the document")
)
