package types

import "errors"

var (
	// ErrConversationNotFound is returned when an operation references a
	// conversation ID that does not exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrRepositoryUnavailable signals that the place store could not be
	// reached. Callers degrade to an empty candidate set instead of failing
	// the turn.
	ErrRepositoryUnavailable = errors.New("place repository unavailable")
)
