package command

import "errors"

// Failure taxonomy shared by parsers, controllers, and stores. Callers
// classify with errors.Is and surface only sanitized text to end users.
var (
	// ErrNotFound covers missing fragments, the "last" shorthand with no
	// fragments for the user, and parser ids that no longer resolve.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput marks content a parser does not support, such as a
	// binary payload handed to a text-only parser.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDecodeFailure marks a structural parse failure: a regexp that did
	// not match, or an external decode call that produced nothing usable.
	ErrDecodeFailure = errors.New("decode failure")

	// ErrAuthorizationDenied marks a failed permission check.
	ErrAuthorizationDenied = errors.New("authorization denied")
)
