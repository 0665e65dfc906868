package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-pettag/internal/logger"
	"ms-pettag/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, id models.Identity, ttl time.Duration) string {
	t.Helper()
	tok, err := SignHMAC(secret, id, ttl)
	require.NoError(t, err)
	return tok
}

func newRouter() http.Handler {
	v := NewHMACVerifier(secret)
	r := chi.NewRouter()
	whoami := func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())
		w.Write([]byte(id.UserID + "|" + id.Role))
	}
	r.With(Optional(v)).Get("/public", whoami)
	r.Group(func(r chi.Router) {
		r.Use(Middleware(v, logger.NewNop()))
		r.Get("/private", whoami)
		r.With(RequireAdmin).Get("/admin", whoami)
	})
	return r
}

func do(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware(t *testing.T) {
	h := newRouter()
	user := sign(t, models.Identity{UserID: "u-1", Role: "user"}, time.Hour)

	rec := do(t, h, "/private", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "AuthenticationError")

	rec = do(t, h, "/private", user)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-1|user", rec.Body.String())

	expired := sign(t, models.Identity{UserID: "u-1"}, -time.Minute)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, "/private", expired).Code)

	forged, err := SignHMAC("other-secret", models.Identity{UserID: "u-1", Role: "admin"}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, "/private", forged).Code)
}

func TestRequireAdmin(t *testing.T) {
	h := newRouter()

	rec := do(t, h, "/admin", sign(t, models.Identity{UserID: "u-1", Role: "user"}, time.Hour))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "AuthorizationError")

	rec = do(t, h, "/admin", sign(t, models.Identity{UserID: "a-1", Role: "ADMIN"}, time.Hour))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a-1|admin", rec.Body.String())
}

func TestOptional(t *testing.T) {
	h := newRouter()

	assert.Equal(t, "|", do(t, h, "/public", "").Body.String())
	assert.Equal(t, "|", do(t, h, "/public", "garbage").Body.String())
	assert.Equal(t, "u-2|user", do(t, h, "/public", sign(t, models.Identity{UserID: "u-2"}, time.Hour)).Body.String())
}

func TestHMACVerifier_RejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{ID: "u-1", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = NewHMACVerifier(secret).Verify(context.Background(), tok)
	assert.Error(t, err)
}

func TestHMACVerifier_SubjectFallback(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "sub-7",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	id, err := NewHMACVerifier(secret).Verify(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "sub-7", id.UserID)
	assert.Equal(t, models.RoleUser, id.Role)
}

func TestExtractTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := ExtractTokenFromRequest(req)
	assert.Error(t, err)

	req.Header.Set("Authorization", "Basic abc")
	_, err = ExtractTokenFromRequest(req)
	assert.Error(t, err)

	req.Header.Set("Authorization", "bearer abc")
	tok, err := ExtractTokenFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
}
