package trash

import "errors"

var (
	// ErrInvalidPath marks a source path that is relative, empty, has no base
	// name, or overlaps the store itself.
	ErrInvalidPath = errors.New("invalid source path")
	// ErrMoveFailed marks a failed rename into the files area.
	ErrMoveFailed = errors.New("move into trash failed")
	// ErrCrossDevice marks a source on a different filesystem than the store.
	ErrCrossDevice = errors.New("source is on a different filesystem")
	// ErrRecordFailed marks a failed metadata record write or commit.
	ErrRecordFailed = errors.New("metadata record failed")
	// ErrMalformedRecord marks a record that cannot be parsed.
	ErrMalformedRecord = errors.New("malformed metadata record")
)
