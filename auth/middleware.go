package auth

import (
	"charity-chat/domain"
	"charity-chat/errors"
	"context"
	"net/http"
	"strings"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller resolved from a token.
type Identity struct {
	ID   string
	Kind domain.Kind
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// TokenFromRequest reads the bearer header first, then the token and
// secret_token query parameters used by browsers that cannot set headers.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	q := r.URL.Query()
	if token := q.Get("token"); token != "" {
		return token
	}
	return q.Get("secret_token")
}

// Middleware resolves the token and injects the identity into the request
// context. onError writes the rejection so transports keep one error format.
func Middleware(issuer *TokenIssuer, onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := issuer.ValidateToken(TokenFromRequest(r))
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireSelf fails with ErrNotParticipant unless id is the caller itself.
func RequireSelf(ctx context.Context, id string) (Identity, error) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return Identity{}, errors.ErrAuthRequired
	}
	if id != "" && id != identity.ID {
		return Identity{}, errors.ErrNotParticipant
	}
	return identity, nil
}
