package gzip

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func TestGzipMiddleware(t *testing.T) {
	echo := func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
	srv := httptest.NewServer(GzipMiddleware(echo))
	defer srv.Close()

	t.Run("compressed request and response", func(t *testing.T) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, err := zw.Write([]byte(`{"shipmentId":"S-1"}`))
		require.NoError(t, err)
		require.NoError(t, zw.Close())

		req, err := http.NewRequest(http.MethodPost, srv.URL, &buf)
		require.NoError(t, err)
		req.Header.Set("Content-Encoding", "gzip")
		req.Header.Set("Accept-Encoding", "gzip")

		// Transport сам не распаковывает, если Accept-Encoding задан явно
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))

		zr, err := gzip.NewReader(resp.Body)
		require.NoError(t, err)
		body, err := io.ReadAll(zr)
		require.NoError(t, err)
		require.JSONEq(t, `{"shipmentId":"S-1"}`, string(body))
	})

	t.Run("broken gzip body", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, srv.URL, bytes.NewBufferString("plain"))
		require.NoError(t, err)
		req.Header.Set("Content-Encoding", "gzip")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
