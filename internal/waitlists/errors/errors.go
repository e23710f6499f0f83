package errors

import "errors"

var (
	ErrNotFound = errors.New("waitlist not found")

	ErrUserNotFound = errors.New("waitlist user not found")

	// ErrDuplicateUser is returned when the email is already on the waitlist.
	ErrDuplicateUser = errors.New("waitlist user already exists")

	// ErrAlreadyLeft is returned when a user was accepted or rejected before.
	ErrAlreadyLeft = errors.New("waitlist user already left")

	ErrLockHeld = errors.New("waitlist lock is held by another writer")

	// ErrWriteConflict is returned when a concurrent transaction touched the
	// same documents.
	ErrWriteConflict = errors.New("concurrent write conflict")
)
