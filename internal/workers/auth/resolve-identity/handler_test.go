// internal/workers/auth/resolve-identity/handler_test.go
package resolveidentity

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagement-workers/internal/cache"
	"engagement-workers/internal/common/config"
	"engagement-workers/internal/common/errors"
	"engagement-workers/internal/common/logger"
	"engagement-workers/internal/identity"
	"engagement-workers/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

const (
	volunteerRolePattern = `SELECT name FROM volunteers WHERE id = \$1`
	ngoRolePattern       = `SELECT name FROM ngos WHERE id = \$1`
)

// keycloakStub counts introspection calls and serves canned responses for the
// introspection, token, and admin account endpoints.
type keycloakStub struct {
	srv              *httptest.Server
	introspectCalls  int
	introspectBody   string
	introspectStatus int
	accountBody      string
}

func newKeycloakStub(t *testing.T) *keycloakStub {
	stub := &keycloakStub{
		introspectStatus: http.StatusOK,
		accountBody:      `{"id":"vol-1","username":"asha","firstName":"Asha","lastName":"Rao"}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/realms/test/protocol/openid-connect/token/introspect", func(w http.ResponseWriter, r *http.Request) {
		stub.introspectCalls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(stub.introspectStatus)
		_, _ = w.Write([]byte(stub.introspectBody))
	})
	mux.HandleFunc("/realms/test/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"svc-token","expires_in":300,"token_type":"Bearer"}`))
	})
	mux.HandleFunc("/admin/realms/test/users/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(stub.accountBody))
	})

	stub.srv = httptest.NewServer(mux)
	t.Cleanup(stub.srv.Close)
	return stub
}

func setupHandler(t *testing.T) (*Handler, sqlmock.Sqlmock, *keycloakStub) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	stub := newKeycloakStub(t)

	idCfg := config.IdentityConfig{}
	idCfg.Keycloak.URL = stub.srv.URL
	idCfg.Keycloak.Realm = "test"
	idCfg.Keycloak.ClientID = "workers"
	idCfg.Keycloak.ClientSecret = "secret"

	log := logger.NewTestLogger(t)
	cfg := &Config{CacheTTL: time.Minute, Timeout: 5 * time.Second}
	handler := NewHandler(cfg, db, identity.NewClient(idCfg), cache.New(rdb, log), log)
	return handler, mock, stub
}

func activeToken(sub string) string {
	// Expiry far enough out that the configured TTL wins.
	exp := strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10)
	return `{"active":true,"sub":"` + sub + `","username":"asha","exp":` + exp + `}`
}

// ==========================
// Resolution Tests
// ==========================

func TestExecute(t *testing.T) {
	handler, mock, stub := setupHandler(t)
	stub.introspectBody = activeToken("vol-1")

	mock.ExpectQuery(volunteerRolePattern).
		WithArgs("vol-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Asha Rao"))

	output, err := handler.Execute(context.Background(), &Input{Token: "token-abc"})
	require.NoError(t, err)

	assert.Equal(t, "vol-1", output.IdentityID)
	assert.Equal(t, models.RoleVolunteer, output.Role)
	assert.Equal(t, "Asha Rao", output.ResolvedName)
	assert.Equal(t, 1, stub.introspectCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteServesSecondCallFromCache(t *testing.T) {
	handler, mock, stub := setupHandler(t)
	stub.introspectBody = activeToken("vol-1")

	mock.ExpectQuery(volunteerRolePattern).
		WithArgs("vol-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Asha Rao"))

	_, err := handler.Execute(context.Background(), &Input{Token: "token-abc"})
	require.NoError(t, err)

	// Same token again: no introspection, no SQL.
	output, err := handler.Execute(context.Background(), &Input{Token: "token-abc"})
	require.NoError(t, err)
	assert.Equal(t, "vol-1", output.IdentityID)
	assert.Equal(t, 1, stub.introspectCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteNGORole(t *testing.T) {
	handler, mock, stub := setupHandler(t)
	stub.introspectBody = activeToken("ngo-1")

	mock.ExpectQuery(volunteerRolePattern).
		WithArgs("ngo-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(ngoRolePattern).
		WithArgs("ngo-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Green Earth"))

	output, err := handler.Execute(context.Background(), &Input{Token: "token-ngo"})
	require.NoError(t, err)

	assert.Equal(t, models.RoleNGO, output.Role)
	assert.Equal(t, "Green Earth", output.ResolvedName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteNameFromProvider(t *testing.T) {
	handler, mock, stub := setupHandler(t)
	stub.introspectBody = activeToken("vol-1")

	// Local row exists but carries no display name.
	mock.ExpectQuery(volunteerRolePattern).
		WithArgs("vol-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow(""))

	output, err := handler.Execute(context.Background(), &Input{Token: "token-abc"})
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", output.ResolvedName)
}

// ==========================
// Failure Tests
// ==========================

func TestExecuteMissingToken(t *testing.T) {
	handler, _, _ := setupHandler(t)

	_, err := handler.Execute(context.Background(), &Input{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))
}

func TestExecuteInactiveToken(t *testing.T) {
	handler, _, stub := setupHandler(t)
	stub.introspectBody = `{"active":false}`

	_, err := handler.Execute(context.Background(), &Input{Token: "expired"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, "TOKEN_INVALID"))

	bpmnErr := errors.AsBPMN(err)
	assert.False(t, bpmnErr.Retryable)
}

func TestExecuteUnknownSubject(t *testing.T) {
	handler, mock, stub := setupHandler(t)
	stub.introspectBody = activeToken("ghost-1")

	mock.ExpectQuery(volunteerRolePattern).
		WithArgs("ghost-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(ngoRolePattern).
		WithArgs("ghost-1").
		WillReturnError(sql.ErrNoRows)

	_, err := handler.Execute(context.Background(), &Input{Token: "token-ghost"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestExecuteProviderDown(t *testing.T) {
	handler, _, stub := setupHandler(t)
	stub.introspectStatus = http.StatusServiceUnavailable
	stub.introspectBody = `{"error":"maintenance"}`

	_, err := handler.Execute(context.Background(), &Input{Token: "token-abc"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeIdentityResolutionFailed))

	bpmnErr := errors.AsBPMN(err)
	assert.True(t, bpmnErr.Retryable)
	assert.Equal(t, 2, bpmnErr.Retries)
}
