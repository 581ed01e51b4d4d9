package driven

import "context"

// Authenticator performs a full login against the identity provider and
// returns a fresh session id. Implementations hold no session state between calls.
type Authenticator interface {
	Login(ctx context.Context) (string, error)
}
