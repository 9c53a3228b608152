package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/thebtf/promptvault/pkg/models"
)

type contextKey string

const ownerIDKey contextKey = "ownerID"

// WithOwnerID returns a context carrying the authenticated user id.
func WithOwnerID(ctx context.Context, ownerID int64) context.Context {
	return context.WithValue(ctx, ownerIDKey, ownerID)
}

// OwnerID returns the authenticated user id stored in ctx.
func OwnerID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ownerIDKey).(int64)
	return id, ok && id > 0
}

// Middleware requires a valid "Authorization: Bearer <token>" header and
// stores the token's user id in the request context. Rejections are written
// with fail.
func Middleware(tokens *Tokens, fail func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				fail(w, r, models.ErrUnauthorized)
				return
			}

			claims, err := tokens.Parse(token)
			if err != nil {
				fail(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithOwnerID(r.Context(), claims.UserID)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
