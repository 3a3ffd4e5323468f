package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/passhport/passhportd/internal/config"
	"github.com/passhport/passhportd/internal/handler"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	out, err := execute(t, "token", "--subject", "alice", "--ttl", "1h")
	require.NoError(t, err)

	raw := strings.TrimSpace(out)
	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return []byte("s3cret"), nil })
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
}

func TestTokenCommand_NoSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := execute(t, "token")
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestMigrateAndMaintainCommands(t *testing.T) {
	t.Setenv("DB_TYPE", "sqlite")
	t.Setenv("DB_CONN", filepath.Join(t.TempDir(), "passhport.db"))

	_, err := execute(t, "migrate")
	require.NoError(t, err)

	_, err = execute(t, "maintain")
	assert.NoError(t, err)
}

func TestBadConfig(t *testing.T) {
	t.Setenv("DB_TYPE", "oracle")

	_, err := execute(t, "migrate")
	assert.ErrorContains(t, err, "invalid config")
}

func TestHTTPHandler_LogsUnroutedRequests(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	h := newHTTPHandler(handler.NewHandler(nil, logger), &config.Config{}, logger)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/user/create", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, buf.String(), `"status":405`)
	assert.Contains(t, buf.String(), `"path":"/user/create"`)

	buf.Reset()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, buf.String(), `"status":404`)
}
