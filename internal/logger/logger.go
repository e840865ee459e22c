package logger

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/iurnickita/warehouse/internal/logger/config"
)

// maxBodyLog сколько байт тела запроса и ответа попадает в журнал.
const maxBodyLog = 2048

func NewZapLog(cfg config.Config) (*zap.Logger, error) {
	// преобразуем текстовый уровень логирования в zap.AtomicLevel
	lvl, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zapcfg := zap.NewProductionConfig()
	zapcfg.Level = lvl
	if cfg.Development {
		zapcfg.Development = true
		zapcfg.Encoding = "console"
	}
	zl, err := zapcfg.Build()
	if err != nil {
		return nil, err
	}
	return zl.With(zap.String("app", "warehouse")), nil
}

// middleware-логер для входящих HTTP-запросов.
func RequestLogMdlw(h http.HandlerFunc, zaplog *zap.Logger) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		// request body
		bodyBytes, _ := io.ReadAll(r.Body)
		r.Body.Close() //  must close
		r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		zaplog.Info("got incoming HTTP request",
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method),
			zap.String("remote", r.RemoteAddr),
			zap.ByteString("body", truncate(bodyBytes)),
		)

		wl := NewResponseWriterLogger(w)

		handlerStart := time.Now()
		h(wl, r)
		handlerDuration := time.Since(handlerStart)

		fields := []zap.Field{
			zap.String("path", r.URL.Path),
			zap.Int("code", wl.statusCode),
			zap.ByteString("body", truncate(wl.body)),
			zap.Int("length", wl.length),
			zap.Duration("duration", handlerDuration),
		}
		if wl.statusCode >= http.StatusInternalServerError {
			zaplog.Error("send HTTP response", fields...)
			return
		}
		zaplog.Info("send HTTP response", fields...)
	})
}

func truncate(b []byte) []byte {
	if len(b) > maxBodyLog {
		return b[:maxBodyLog]
	}
	return b
}

type responseWriterLogger struct {
	http.ResponseWriter
	statusCode int
	length     int
	body       []byte
}

func NewResponseWriterLogger(w http.ResponseWriter) *responseWriterLogger {
	return &responseWriterLogger{w, http.StatusOK, 0, []byte{}}
}

func (wl *responseWriterLogger) WriteHeader(code int) {
	wl.statusCode = code
	wl.ResponseWriter.WriteHeader(code)
}

func (wl *responseWriterLogger) Write(b []byte) (n int, err error) {
	if len(wl.body) < maxBodyLog {
		wl.body = append(wl.body, b...)
	}
	n, err = wl.ResponseWriter.Write(b)
	wl.length += n
	return
}
