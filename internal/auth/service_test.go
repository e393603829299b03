// internal/auth/service_test.go
package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidateAdminToken(t *testing.T) {
	service := NewService("unit-test-secret", nil)

	token, expiresAt, err := service.IssueAdminToken("ops@ispnexus", time.Hour)
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := service.ValidateAdminToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@ispnexus", claims.RegisteredClaims.Subject)
}

func TestValidateAdminTokenWrongSecret(t *testing.T) {
	issuer := NewService("secret-a", nil)
	verifier := NewService("secret-b", nil)

	token, _, err := issuer.IssueAdminToken("ops", time.Hour)
	require.NoError(t, err)

	_, err = verifier.ValidateAdminToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateAdminTokenExpired(t *testing.T) {
	service := NewService("unit-test-secret", nil)

	token, _, err := service.IssueAdminToken("ops", -time.Minute)
	require.NoError(t, err)

	_, err = service.ValidateAdminToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateAdminTokenGarbage(t *testing.T) {
	service := NewService("unit-test-secret", nil)

	_, err := service.ValidateAdminToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateServiceKey(t *testing.T) {
	service := NewService("unit-test-secret", []string{"billing-svc-key", "crm-svc-key"})

	assert.NoError(t, service.ValidateServiceKey("billing-svc-key"))
	assert.NoError(t, service.ValidateServiceKey("crm-svc-key"))
	assert.ErrorIs(t, service.ValidateServiceKey("unknown-key"), ErrInvalidKey)
	assert.ErrorIs(t, service.ValidateServiceKey(""), ErrInvalidKey)
}

func TestAdminAuthMiddleware(t *testing.T) {
	service := NewService("unit-test-secret", nil)
	middleware := NewMiddleware(service)

	var sawClaims bool
	handler := middleware.AdminAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawClaims = GetAdminClaims(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	// No token.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/webhooks", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid token.
	token, _, err := service.IssueAdminToken("ops", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/webhooks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, sawClaims)
}

func TestServiceKeyMiddleware(t *testing.T) {
	service := NewService("unit-test-secret", []string{"billing-svc-key"})
	middleware := NewMiddleware(service)

	handler := middleware.ServiceKeyMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	// Bearer form.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
	req.Header.Set("Authorization", "Bearer billing-svc-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	// Header form.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
	req.Header.Set("X-API-Key", "billing-svc-key")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	// Wrong key.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// No key.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
