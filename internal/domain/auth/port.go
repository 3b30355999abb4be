package auth

import "context"

// Verifier resolves a bearer token into the identity it was issued for.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}
