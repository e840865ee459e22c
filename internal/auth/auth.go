package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/iurnickita/warehouse/internal/auth/config"
	"github.com/iurnickita/warehouse/internal/token"
)

type Auth interface {
	// IssueToken токен для сотрудника, выдаётся из командной строки.
	IssueToken(userCode string) (string, error)
	Middleware(h http.HandlerFunc) http.HandlerFunc
}

const (
	HeaderUserCodeKey = "X-User-Code"
	anonymousUser     = "anonymous"
)

var ErrNoToken = errors.New("authorization bearer token required")

type auth struct {
	cfg    config.Config
	zaplog *zap.Logger
}

func NewAuth(cfg config.Config, zaplog *zap.Logger) Auth {
	if cfg.JWTSecret == "" {
		zaplog.Warn("JWT secret is empty, requests are not authenticated")
	}
	return &auth{cfg: cfg, zaplog: zaplog}
}

func (a *auth) IssueToken(userCode string) (string, error) {
	return token.BuildJWTString(a.cfg.JWTSecret, userCode, a.cfg.TokenTTL)
}

func (a *auth) Middleware(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// получение кода сотрудника
		userCode, err := a.getUserCode(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		// записываем
		r.Header.Set(HeaderUserCodeKey, userCode)

		// передаём управление хендлеру
		h.ServeHTTP(w, r)
	}
}

func (a *auth) getUserCode(r *http.Request) (string, error) {
	if a.cfg.JWTSecret == "" {
		return anonymousUser, nil
	}
	bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || bearer == "" {
		return "", ErrNoToken
	}
	return token.GetUserCode(a.cfg.JWTSecret, bearer)
}
