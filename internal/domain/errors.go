package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when a referenced post does not exist.
	ErrNotFound = errors.New("post not found")

	// ErrUnauthenticated is returned when an operation needs an actor and
	// none was supplied.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// ValidationError carries one or more messages per rejected field.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
}

// Has reports whether the given field was rejected.
func (e *ValidationError) Has(field string) bool {
	return len(e.Fields[field]) > 0
}

// First returns the first message for a field, or "".
func (e *ValidationError) First(field string) string {
	if msgs := e.Fields[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// Error implements the error interface. Fields are listed in name order so
// the text is stable.
func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, strings.Join(e.Fields[name], "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Summary is the human-readable headline for the error: the first message,
// plus a count of the remaining ones.
func (e *ValidationError) Summary() string {
	names := make([]string, 0, len(e.Fields))
	total := 0
	for name, msgs := range e.Fields {
		names = append(names, name)
		total += len(msgs)
	}
	if total == 0 {
		return "The given data was invalid."
	}
	sort.Strings(names)

	first := e.First(names[0])
	if total == 1 {
		return first
	}
	if total == 2 {
		return fmt.Sprintf("%s (and 1 more error)", first)
	}
	return fmt.Sprintf("%s (and %d more errors)", first, total-1)
}
