package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micromaend/bidding-service/internal/domain/bids"
)

func TestMiddleware(t *testing.T) {
	signer := newTokenSigner(t)
	verifier, err := NewVerifier(signer.publicPEM, testIssuer)
	require.NoError(t, err)

	userID := uuid.New()
	var captured struct {
		principal bids.Principal
		ok        bool
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.principal, captured.ok = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := Middleware(verifier)(next)

	t.Run("ValidTokenInjectsPrincipal", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signer.sign(t, validClaims(userID, true)))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.True(t, captured.ok)
		assert.Equal(t, userID, captured.principal.UserID)
		assert.True(t, captured.principal.Admin)
	})

	t.Run("MissingHeaderIsUnauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("MalformedHeaderIsUnauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Token abc")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("GarbageTokenIsUnauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer not.a.token")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("NonUUIDSubjectIsUnauthorized", func(t *testing.T) {
		claims := validClaims(userID, false)
		claims.Subject = "not-a-uuid"
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signer.sign(t, claims))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestPrincipalFromContextMissing(t *testing.T) {
	_, ok := PrincipalFromContext(t.Context())
	assert.False(t, ok)
}
