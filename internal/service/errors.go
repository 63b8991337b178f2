package service

import "errors"

var (
	// ErrStoreUnavailable wraps any failure talking to the data store.
	// The write path aborts without partial writes; retrying on the next trigger is safe.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrConcurrentUpdate means another writer changed the access state first.
	ErrConcurrentUpdate = errors.New("concurrent access state update")

	ErrPaymentNotFound = errors.New("payment not found")
	ErrStudentNotFound = errors.New("student not found")

	// telegram linking conflicts
	ErrStudentAlreadyLinked = errors.New("student already linked to another chat")
	ErrChatAlreadyLinked    = errors.New("chat already linked to another student")

	// webhook payload errors
	ErrUnknownEvent = errors.New("unknown payment event")
	ErrInvalidEvent = errors.New("invalid payment event")
)
