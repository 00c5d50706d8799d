package engine

import "errors"

var (
	// ErrInvalidCredentials carries one constant message no matter whether
	// the user is unknown, disabled, or supplied a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidRefresh covers unknown and revoked refresh tokens alike.
	ErrInvalidRefresh = errors.New("invalid refresh token")

	ErrRefreshExpired = errors.New("refresh token expired")

	// ErrStorage is surfaced for store or resolver failures; the cause is
	// logged but never leaked to the client.
	ErrStorage = errors.New("storage unavailable")
)

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
