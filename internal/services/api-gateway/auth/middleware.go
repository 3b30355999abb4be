package auth

import (
	"context"
	"net/http"
	"strings"

	jwtauth "github.com/NordCoder/Taskboard/internal/auth"
	domain "github.com/NordCoder/Taskboard/internal/domain/auth"
	"github.com/gin-gonic/gin"
)

type ctxKey int

const userIDKey ctxKey = 1

// ginUserIDKey is where Middleware stores the identity on the gin context.
const ginUserIDKey = "user_id"

const (
	TokenQueryParam = "access_token"
	TokenCookieName = "token"
)

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

func UserIDFromCtx(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// TokenFromRequest looks for a bearer header first, then the access_token
// query parameter, then the token cookie.
func TokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if tok := jwtauth.BearerToken(r.Header.Get("Authorization")); tok != "" {
		return tok
	}
	if tok := strings.TrimSpace(r.URL.Query().Get(TokenQueryParam)); tok != "" {
		return tok
	}
	if c, err := r.Cookie(TokenCookieName); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

// Authenticate resolves the identity behind the request's token.
func Authenticate(r *http.Request, v domain.Verifier) (string, error) {
	tok := TokenFromRequest(r)
	if tok == "" {
		return "", domain.ErrUnauthenticated
	}
	return v.Verify(r.Context(), tok)
}

// Middleware rejects requests without a valid token with 401 and otherwise
// stores the token subject on both the gin and the request context.
func Middleware(v domain.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := Authenticate(c.Request, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(ginUserIDKey, uid)
		c.Request = c.Request.WithContext(WithUserID(c.Request.Context(), uid))
		c.Next()
	}
}

// RequireSubject lets through only the listed identities and answers 403 to
// everyone else. It must run after Middleware.
func RequireSubject(allowed ...string) gin.HandlerFunc {
	set := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return func(c *gin.Context) {
		if _, ok := set[UserID(c)]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not allowed to use this route"})
			return
		}
		c.Next()
	}
}

// UserID returns the identity stored by Middleware.
func UserID(c *gin.Context) string {
	if id, ok := c.Get(ginUserIDKey); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	id, _ := UserIDFromCtx(c.Request.Context())
	return id
}
