package principal

import (
	"context"
	"errors"
)

// ErrAuthFailed is returned for every credential failure: unknown user,
// wrong password, disabled account. Callers must not be able to tell
// these apart.
var ErrAuthFailed = errors.New("authentication failed")

var ErrUnknownPrincipal = errors.New("unknown principal")

type Info struct {
	Roles   []string
	Enabled bool
}

// Resolver is the identity store consulted by the auth engine and the
// access gate. The service does not manage user records itself.
type Resolver interface {
	Authenticate(ctx context.Context, username, password string) error
	Describe(ctx context.Context, username string) (Info, error)
}
