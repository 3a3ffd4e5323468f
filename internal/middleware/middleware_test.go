package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/passhport/passhportd/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoSubject() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("subject=" + Subject(r.Context())))
	})
}

func serve(h http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/user/list", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	h := AuthMiddleware(&config.Config{})(echoSubject())

	rec := serve(h, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "subject=", rec.Body.String())
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	cfg := &config.Config{JWTSecret: "s3cret"}
	h := AuthMiddleware(cfg)(echoSubject())

	token, err := IssueToken("s3cret", "admin", time.Hour)
	require.NoError(t, err)

	rec := serve(h, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "subject=admin", rec.Body.String())
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	cfg := &config.Config{JWTSecret: "s3cret"}
	h := AuthMiddleware(cfg)(echoSubject())

	wrongSecret, err := IssueToken("other", "admin", time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken("s3cret", "admin", -time.Minute)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "admin"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	wrongAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Subject:   "admin",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	tests := map[string]string{
		"missing header": "",
		"basic auth":     "Basic YWRtaW46YWRtaW4=",
		"garbage":        "Bearer not.a.token",
		"wrong secret":   "Bearer " + wrongSecret,
		"expired":        "Bearer " + expired,
		"no expiry":      "Bearer " + noExpiry,
		"wrong alg":      "Bearer " + wrongAlg,
	}
	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			rec := serve(h, header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "ERROR:")
			assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestIssueToken_RequiresSecret(t *testing.T) {
	_, err := IssueToken("", "admin", time.Hour)
	assert.Error(t, err)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	h := LoggingMiddleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusExpectationFailed)
	}))
	rec := serve(h, "")

	assert.Equal(t, http.StatusExpectationFailed, rec.Code)
	assert.Contains(t, buf.String(), `"status":417`)
	assert.Contains(t, buf.String(), `"path":"/user/list"`)
	assert.Contains(t, buf.String(), `"level":"warning"`)
}
