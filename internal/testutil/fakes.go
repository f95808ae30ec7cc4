// Package testutil provides deterministic fakes for the model servers used in tests.
package testutil

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// HashDimension is the vector size produced by HashEmbedder.
const HashDimension = 64

// HashEmbedder maps each word to a bucket, so texts sharing words have a
// positive cosine similarity. It never calls the network.
type HashEmbedder struct {
	mu    sync.Mutex
	Calls int
	// Err, when set, is returned by every call.
	Err error
}

// GenerateEmbeddings returns one bag-of-words vector per text.
func (e *HashEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.Calls++
	err := e.Err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, HashDimension)
		for _, word := range Words(text) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(word))
			vec[h.Sum32()%HashDimension]++
		}
		out[i] = vec
	}
	return out, nil
}

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "what": {}, "of": {}, "and": {}, "to": {}, "in": {},
}

// Words lowercases text and splits it into words without stopwords.
func Words(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := fields[:0]
	for _, f := range fields {
		if _, ok := stopwords[f]; !ok {
			words = append(words, f)
		}
	}
	return words
}

// ErrUnavailable simulates an unreachable backend.
var ErrUnavailable = errors.New("backend unavailable")
