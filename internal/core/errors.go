// ABOUTME: Sentinel errors shared by the relay services
// ABOUTME: User-correctable conditions are sentinels; internal failures wrap
package core

import "errors"

var (
	// ErrNameConflict means a persona name violated the naming rules or is
	// already taken. User-correctable, never logged as an error.
	ErrNameConflict = errors.New("name taken or reserved")

	// ErrNotFound means a persona, endpoint, or user lookup missed.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyConnected means the caller's identity already holds a
	// connection.
	ErrAlreadyConnected = errors.New("already in a connection")

	// ErrTargetConnected means the counterpart already holds a connection.
	ErrTargetConnected = errors.New("target is already in a connection")

	// ErrNotConnected means a disconnect found no edge.
	ErrNotConnected = errors.New("not connected")

	// ErrNotPermitted means a settings or permission gate rejected the
	// operation (target refuses anonymous DMs, no channel send permission).
	ErrNotPermitted = errors.New("not permitted")

	// ErrRewriteUnavailable means the text rewriting service could not
	// produce a replacement. Fatal for the in-flight message: relaying
	// un-anonymized text when anonymization was requested is worse than
	// dropping it.
	ErrRewriteUnavailable = errors.New("rewriting service unavailable")
)
