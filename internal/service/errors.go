package service

import (
	"errors"
	"fmt"
)

// Error classes. Every service error matches exactly one of these with errors.Is,
// which is what the HTTP and realtime layers switch on.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

// Specific errors
var (
	ErrAuthenticationFailed   = fmt.Errorf("%w: invalid username or password", ErrUnauthorized)
	ErrHashingFailed          = errors.New("failed to hash password")
	ErrTokenGeneration        = errors.New("failed to generate authentication token")
	ErrUserNotFound           = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrSelfFollow             = fmt.Errorf("%w: cannot follow yourself", ErrValidation)
	ErrAlreadyFollowing       = fmt.Errorf("%w: already following this user", ErrConflict)
	ErrNotFollowing           = fmt.Errorf("%w: not following this user", ErrConflict)
	ErrPlanNotFound           = fmt.Errorf("%w: plan not found", ErrNotFound)
	ErrOwnerCannotParticipate = fmt.Errorf("%w: plan owner cannot participate in own plan", ErrForbidden)
	ErrAlreadyParticipant     = fmt.Errorf("%w: already participating in this plan", ErrConflict)
	ErrPlanBusy               = fmt.Errorf("%w: plan is being updated, try again", ErrConflict)
	ErrChatRoomNotFound       = fmt.Errorf("%w: chat room not found", ErrNotFound)
	ErrNotRoomMember          = fmt.Errorf("%w: not a member of this chat room", ErrForbidden)
	ErrStorageUnavailable     = errors.New("file storage is not configured")
	ErrImageKeyMismatch       = fmt.Errorf("%w: object key does not belong to this user", ErrForbidden)
)

// FieldConflictError names the unique field that caused a Conflict.
type FieldConflictError struct {
	Field string
}

func (e *FieldConflictError) Error() string {
	return fmt.Sprintf("%s already exists", e.Field)
}

func (e *FieldConflictError) Is(target error) bool {
	return target == ErrConflict
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
