package auth

import "errors"

// Failure kinds shared by the credential, token and authorization layers.
// Callers match them with errors.Is; wrapped messages add detail only.
var (
	ErrInvalidRole        = errors.New("auth: invalid role")
	ErrWeakPassword       = errors.New("auth: weak password")
	ErrPasswordReused     = errors.New("auth: password reused")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrTokenInvalid       = errors.New("auth: token invalid")
	ErrTokenReused        = errors.New("auth: token reused")
	ErrInsufficientRole   = errors.New("auth: insufficient role")
	ErrNotTeamMember      = errors.New("auth: not a team member")
	ErrNotFound           = errors.New("auth: not found")

	ErrInvalidInput      = errors.New("auth: invalid input")
	ErrConflict          = errors.New("auth: already exists")
	ErrAssigneeNotMember = errors.New("auth: assignee is not a member of the team")

	// ErrUnavailable marks a transient storage failure. It is never an
	// authorization outcome.
	ErrUnavailable = errors.New("auth: storage unavailable")
)

// IsDenied reports whether err is an authorization denial.
func IsDenied(err error) bool {
	return errors.Is(err, ErrInsufficientRole) || errors.Is(err, ErrNotTeamMember)
}

// IsTokenFailure reports whether err came from token verification or rotation.
func IsTokenFailure(err error) bool {
	return errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrTokenInvalid) || errors.Is(err, ErrTokenReused)
}
