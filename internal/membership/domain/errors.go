package domain

import (
	"errors"
	"fmt"
)

// Validation errors are user-correctable; callers surface them with their message.
var (
	ErrAlreadyMember      = errors.New("user is already a member of this team")
	ErrInvalidRole        = errors.New("invalid role")
	ErrCannotRemoveOwner  = errors.New("cannot remove the team owner")
	ErrOwnerRoleImmutable = errors.New("the owner role cannot be changed or granted")
	ErrUserNotMember      = errors.New("user is not a member of this team")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrTeamNameTaken      = errors.New("a team with this name already exists for the owner")
	ErrInvalidStatus      = errors.New("invalid task status")
	ErrUserExists         = errors.New("a user with this email or username already exists")
)

// Not-found errors for referenced entities.
var (
	ErrTeamNotFound = errors.New("team not found")
	ErrUserNotFound = errors.New("user not found")
	ErrTaskNotFound = errors.New("task not found")
)

// ErrInvariantViolation matches any *InvariantViolation via errors.Is.
var ErrInvariantViolation = errors.New("team ownership invariant violated")

// InvariantViolation reports state that the lifecycle should have made impossible.
// It signals a bug or data corruption, not a user mistake.
type InvariantViolation struct {
	TeamID string
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("team ownership invariant violated for team %s: %s", e.TeamID, e.Detail)
}

// Is makes errors.Is(err, ErrInvariantViolation) true for any *InvariantViolation.
func (e *InvariantViolation) Is(target error) bool {
	return target == ErrInvariantViolation
}

var validationErrors = []error{
	ErrAlreadyMember,
	ErrInvalidRole,
	ErrCannotRemoveOwner,
	ErrOwnerRoleImmutable,
	ErrUserNotMember,
	ErrPermissionDenied,
	ErrTeamNameTaken,
	ErrInvalidStatus,
	ErrUserExists,
	ErrTeamNotFound,
	ErrUserNotFound,
	ErrTaskNotFound,
}

// IsValidation reports whether err is a user-correctable failure (validation or not-found).
func IsValidation(err error) bool {
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}
