package logger

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iurnickita/warehouse/internal/logger/config"
)

func TestNewZapLog(t *testing.T) {
	zl, err := NewZapLog(config.Config{LogLevel: "debug"})
	require.NoError(t, err)
	require.NotNil(t, zl)

	_, err = NewZapLog(config.Config{LogLevel: "loud"})
	require.Error(t, err)
}

func TestRequestLogMdlw(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := RequestLogMdlw(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.Equal(t, `{"rackId":"A-01"}`, string(body))
		http.Error(w, "rack capacity exceeded", http.StatusConflict)
	}, zap.New(core))

	r := httptest.NewRequest(http.MethodPost, "/api/shipments/S-1/assign-boxes", strings.NewReader(`{"rackId":"A-01"}`))
	w := httptest.NewRecorder()
	h(w, r)

	require.Equal(t, http.StatusConflict, w.Code)
	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "got incoming HTTP request", entries[0].Message)
	require.Equal(t, int64(http.StatusConflict), entries[1].ContextMap()["code"])
}
