package rag

import "errors"

var (
	// ErrNotReady is returned when a question arrives before a document has
	// been loaded and indexed.
	ErrNotReady = errors.New("session is not ready: load a document first")

	// ErrEmptyQuestion is returned for blank questions.
	ErrEmptyQuestion = errors.New("question is empty")
)
