package domain

import "errors"

// Sentinel errors for bundle operations
var (
	// ErrTransport indicates a document store exchange could not complete
	ErrTransport = errors.New("document store is unreachable")

	// ErrMalformed indicates a document store answered with a body that could not be parsed
	ErrMalformed = errors.New("malformed document store response")

	// ErrNoResult indicates an operation ran out of steps without producing a response
	ErrNoResult = errors.New("operation produced no result")
)

// ReasonBookNotInBundle is the conflict reason for removing an absent book
const ReasonBookNotInBundle = "Bundle does not contain that book."
