package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iurnickita/warehouse/internal/auth/config"
)

func TestMiddleware(t *testing.T) {
	a := NewAuth(config.Config{JWTSecret: "secret", TokenTTL: time.Hour}, zap.NewNop())
	h := a.Middleware(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get(HeaderUserCodeKey)))
	})

	tok, err := a.IssueToken("clerk-1")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   int
		body   string
	}{
		{name: "valid", header: "Bearer " + tok, code: http.StatusOK, body: "clerk-1"},
		{name: "missing", header: "", code: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer abc", code: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic " + tok, code: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/racks", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			// подмена заголовка клиентом не проходит
			r.Header.Set(HeaderUserCodeKey, "intruder")
			w := httptest.NewRecorder()
			h(w, r)
			require.Equal(t, tt.code, w.Code)
			if tt.body != "" {
				require.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestMiddlewareDisabled(t *testing.T) {
	a := NewAuth(config.Config{}, zap.NewNop())
	h := a.Middleware(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get(HeaderUserCodeKey)))
	})
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/api/racks", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, anonymousUser, w.Body.String())
}
