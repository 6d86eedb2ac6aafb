package domain

import "errors"

var (
	// ErrStreamNotFound means no stream record matches the given id or uid.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrStreamDeleted means the stream exists but is soft-deleted and can
	// no longer receive lifecycle events or mutations.
	ErrStreamDeleted = errors.New("stream is deleted")

	// ErrInvalidTransition means the event is not legal from the stream's
	// current status.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrMalformedMessage means a queue message body does not parse as its
	// queue's schema. Such messages are dead-lettered, never retried.
	ErrMalformedMessage = errors.New("malformed message")
)
