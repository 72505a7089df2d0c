// Package id generates TypeID-based identifiers for queuectl entities.
//
// Generated IDs are K-sortable (UUIDv7-based), globally unique and URL-safe
// in the format "prefix_suffix". Job IDs supplied by callers are arbitrary
// strings and never pass through this package.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for generated identifiers.
const (
	PrefixJob    Prefix = "job"
	PrefixWorker Prefix = "wkr"
)

// New generates a new identifier with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) string {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return tid.String()
}

// NewJobID generates a new unique job ID.
func NewJobID() string { return New(PrefixJob) }

// NewWorkerID generates a new unique worker ID.
func NewWorkerID() string { return New(PrefixWorker) }

// HasPrefix reports whether s is a well-formed TypeID carrying prefix.
func HasPrefix(s string, prefix Prefix) bool {
	tid, err := typeid.Parse(s)
	if err != nil {
		return false
	}
	return tid.Prefix() == string(prefix)
}
