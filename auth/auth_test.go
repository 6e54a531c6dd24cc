package auth

import (
	"charity-chat/domain"
	"charity-chat/errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHashAndCompare(t *testing.T) {
	req := require.New(t)
	password := "MonMotDePasseTr0pSûr!"

	hash, err := HashPassword(password)
	req.NoError(err)
	req.True(strings.HasPrefix(hash, "$argon2id$"))

	match, err := ComparePassword(password, hash)
	req.NoError(err)
	req.True(match)

	match, err = ComparePassword("MauvaisMDP", hash)
	req.NoError(err)
	req.False(match)

	_, err = ComparePassword(password, "not-a-hash")
	req.ErrorIs(err, errors.ErrInvalidCredentials)
}

func TestRegistrationValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     RegisterUserRequest
		wantErr error
	}{
		{"Valid request", RegisterUserRequest{"Ana", "Lopez", "test@example.com", "ComplexPass123!"}, nil},
		{"Missing apellido", RegisterUserRequest{"Ana", "", "test@example.com", "ComplexPass123!"}, errors.ErrValidation},
		{"Invalid email", RegisterUserRequest{"Ana", "Lopez", "notanemail", "ComplexPass123!"}, errors.ErrValidation},
		{"Password too short", RegisterUserRequest{"Ana", "Lopez", "test@example.com", "Short1!"}, errors.ErrValidation},
		{"Missing digit", RegisterUserRequest{"Ana", "Lopez", "test@example.com", "NoDigitPass!!"}, errors.ErrInvalidPassword},
		{"Missing special char", RegisterUserRequest{"Ana", "Lopez", "test@example.com", "NoSpecialChar123"}, errors.ErrInvalidPassword},
		{"Missing uppercase", RegisterUserRequest{"Ana", "Lopez", "test@example.com", "nouppercase123!"}, errors.ErrInvalidPassword},
		{"Password too long", RegisterUserRequest{"Ana", "Lopez", "test@example.com", strings.Repeat("a", 73)}, errors.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			err := ValidateRegisterUser(tt.req)
			if tt.wantErr == nil {
				req.NoError(err)
				return
			}
			req.ErrorIs(err, tt.wantErr)
		})
	}
}

func TestCharityRegistrationValidation(t *testing.T) {
	req := require.New(t)
	valid := RegisterCharityRequest{Nombre: "Cruz Azul", Email: "info@cruz.org", Password: "ComplexPass123!"}
	req.NoError(ValidateRegisterCharity(valid))

	noName := valid
	noName.Nombre = ""
	req.ErrorIs(ValidateRegisterCharity(noName), errors.ErrValidation)
}

func TestTokenRoundTrip(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer("test-secret", time.Hour)

	token, err := issuer.GenerateToken("user-123", domain.KindCharity)
	req.NoError(err)

	identity, err := issuer.ValidateToken(token)
	req.NoError(err)
	req.Equal(Identity{ID: "user-123", Kind: domain.KindCharity}, identity)

	other := NewTokenIssuer("another-secret", time.Hour)
	_, err = other.ValidateToken(token)
	req.ErrorIs(err, errors.ErrAuthRequired)

	_, err = issuer.ValidateToken("")
	req.ErrorIs(err, errors.ErrAuthRequired)
}

func TestToken_Expired(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer("test-secret", time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, err := issuer.GenerateToken("user-123", domain.KindUser)
	req.NoError(err)

	issuer.now = time.Now
	_, err = issuer.ValidateToken(token)
	req.ErrorIs(err, errors.ErrAuthRequired)
}

func TestMiddleware(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)
	token, err := issuer.GenerateToken("user-1", domain.KindUser)
	require.NoError(t, err)

	var seen Identity
	handler := Middleware(issuer, func(w http.ResponseWriter, r *http.Request, err error) {
		w.WriteHeader(errors.MapToHTTPStatus(err))
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		build  func() *http.Request
		status int
	}{
		{"bearer header", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/profile", nil)
			r.Header.Set("Authorization", "Bearer "+token)
			return r
		}, http.StatusNoContent},
		{"secret_token query", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/profile?secret_token="+token, nil)
		}, http.StatusNoContent},
		{"token query", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/socket?token="+token, nil)
		}, http.StatusNoContent},
		{"missing token", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/profile", nil)
		}, http.StatusUnauthorized},
		{"garbage token", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/profile?secret_token=abc", nil)
		}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			seen = Identity{}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, tt.build())
			req.Equal(tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				req.Equal("user-1", seen.ID)
			}
		})
	}
}

func TestRequireSelf(t *testing.T) {
	req := require.New(t)
	ctx := WithIdentity(t.Context(), Identity{ID: "a", Kind: domain.KindUser})

	_, err := RequireSelf(ctx, "a")
	req.NoError(err)
	_, err = RequireSelf(ctx, "b")
	req.ErrorIs(err, errors.ErrNotParticipant)
	_, err = RequireSelf(t.Context(), "a")
	req.ErrorIs(err, errors.ErrAuthRequired)
}

func BenchmarkHashPassword(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = HashPassword("A-very-long-and-complex-password-for-bench-123!")
	}
}
