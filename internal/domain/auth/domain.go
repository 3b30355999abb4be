package auth

import "errors"

var ErrUnauthenticated = errors.New("unauthenticated")
