package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/iurnickita/warehouse/internal/auth"
	"github.com/iurnickita/warehouse/internal/boxes"
	"github.com/iurnickita/warehouse/internal/catalog"
	"github.com/iurnickita/warehouse/internal/charges"
	"github.com/iurnickita/warehouse/internal/gzip"
	"github.com/iurnickita/warehouse/internal/handler/config"
	"github.com/iurnickita/warehouse/internal/invoice"
	"github.com/iurnickita/warehouse/internal/lock"
	"github.com/iurnickita/warehouse/internal/logger"
	"github.com/iurnickita/warehouse/internal/rack"
	"github.com/iurnickita/warehouse/internal/release"
	"github.com/iurnickita/warehouse/internal/service"
)

// Serve слушает до отмены ctx, затем завершает запросы в работе.
func Serve(ctx context.Context, cfg config.Config, auth auth.Auth, service service.Service, zaplog *zap.Logger) error {
	h, err := newHandler(cfg, auth, service, zaplog)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           h.newRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		zaplog.Info("server started", zap.String("addr", cfg.ServerAddr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err = <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type handler struct {
	auth     auth.Auth
	service  service.Service
	limiter  *stdlib.Middleware
	validate *validator.Validate
	zaplog   *zap.Logger
}

func newHandler(cfg config.Config, auth auth.Auth, service service.Service, zaplog *zap.Logger) (*handler, error) {
	h := &handler{
		auth:     auth,
		service:  service,
		validate: newValidator(),
		zaplog:   zaplog,
	}
	if cfg.RateLimit != "" {
		rate, err := limiter.NewRateFromFormatted(cfg.RateLimit)
		if err != nil {
			return nil, fmt.Errorf("rate limit %q: %w", cfg.RateLimit, err)
		}
		h.limiter = stdlib.NewMiddleware(limiter.New(memory.NewStore(), rate))
	}
	return h, nil
}

func (h *handler) newRouter() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /api/racks", h.mdlw(h.ListRacks))
	mux.Handle("POST /api/racks", h.mdlw(h.CreateRack))

	mux.Handle("POST /api/shipments", h.mdlw(h.CreateShipment))
	mux.Handle("GET /api/shipments/{id}", h.mdlw(h.GetShipment))
	mux.Handle("POST /api/shipments/{id}/assign-boxes", h.mdlw(h.AssignBoxes))
	mux.Handle("POST /api/shipments/{id}/release-boxes", h.mdlw(h.ReleaseBoxes))

	mux.Handle("GET /api/billing/settings", h.mdlw(h.GetSettings))
	mux.Handle("PUT /api/billing/settings", h.mdlw(h.PutSettings))
	mux.Handle("GET /api/billing/charge-types", h.mdlw(h.ListChargeTypes))
	mux.Handle("POST /api/billing/charge-types", h.mdlw(h.CreateChargeType))
	mux.Handle("POST /api/billing/invoices", h.mdlw(h.CreateInvoice))
	mux.Handle("GET /api/billing/invoices/{id}", h.mdlw(h.GetInvoice))
	mux.Handle("GET /api/billing/invoices/number/{number}", h.mdlw(h.GetInvoiceByNumber))
	mux.Handle("POST /api/billing/invoices/{id}/payments", h.mdlw(h.RecordPayment))

	mux.Handle("POST /api/withdrawals", h.mdlw(h.CreateWithdrawal))
	mux.Handle("GET /api/withdrawals", h.mdlw(h.ListWithdrawals))

	mux.Handle("POST /api/releases", h.mdlw(h.DraftRelease))
	mux.Handle("PUT /api/releases/{id}", h.mdlw(h.RedraftRelease))
	mux.Handle("GET /api/releases/{id}", h.mdlw(h.GetRelease))
	mux.Handle("POST /api/releases/{id}/execute", h.mdlw(h.ExecuteRelease))
	mux.Handle("POST /api/releases/{id}/resume", h.mdlw(h.ResumeRelease))

	return mux
}

// mdlw лимит запросов, gzip, журнал, проверка токена.
func (h *handler) mdlw(fn http.HandlerFunc) http.Handler {
	var next http.Handler = gzip.GzipMiddleware(logger.RequestLogMdlw(h.auth.Middleware(fn), h.zaplog))
	if h.limiter != nil {
		next = h.limiter.Handler(next)
	}
	return next
}

func newValidator() *validator.Validate {
	v := validator.New()
	// в сообщениях об ошибках имена полей JSON
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode читает JSON тела запроса и проверяет теги validate.
func (h *handler) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &requestError{msg: "invalid JSON: " + err.Error()}
	}
	if err := h.validate.Struct(v); err != nil {
		return &requestError{msg: validationMessage(err)}
	}
	return nil
}

type requestError struct {
	msg string
}

func (e *requestError) Error() string {
	return e.msg
}

// validationMessage поле: правило, через точку с запятой.
func validationMessage(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}
	fields := make([]string, 0, len(validationErrors))
	for _, ve := range validationErrors {
		fields = append(fields, ve.Field()+": "+ve.Tag())
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, "; ")
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(responseJSON)
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.zaplog.Error("request failed", zap.Error(err))
	}
	http.Error(w, err.Error(), status)
}

func errorStatus(err error) int {
	var reqErr *requestError
	var validationErr *release.ValidationError
	var partialErr *release.PartialFailureError
	switch {
	case errors.As(err, &partialErr):
		return http.StatusInternalServerError
	case errors.As(err, &reqErr), errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, invoice.ErrInvalidAmount):
		return http.StatusUnprocessableEntity
	case isAny(err,
		rack.ErrNotFound,
		boxes.ErrShipmentNotFound,
		boxes.ErrBoxNotFound,
		invoice.ErrNotFound,
		invoice.ErrShipmentMissing,
		release.ErrRunNotFound):
		return http.StatusNotFound
	case isAny(err,
		rack.ErrCapacityExceeded,
		rack.ErrAlreadyExists,
		boxes.ErrShipmentExists,
		boxes.ErrBoxReleased,
		boxes.ErrNothingToRelease,
		boxes.ErrNotEnoughBoxes,
		invoice.ErrOverPayment,
		catalog.ErrChargeTypeExists,
		release.ErrInvalidState,
		lock.ErrNotObtained):
		return http.StatusConflict
	case isAny(err,
		service.ErrInsufficientData,
		service.ErrCollectorID,
		service.ErrReleasePhotos,
		rack.ErrInvalidCapacity,
		rack.ErrInvalidCount,
		boxes.ErrInvalidShipment,
		boxes.ErrInvalidSelection,
		catalog.ErrInvalidSettings,
		catalog.ErrInvalidChargeType,
		charges.ErrUnknownChargeType,
		charges.ErrInactiveChargeType,
		charges.ErrInvalidKind,
		charges.ErrInvalidBoxes,
		charges.ErrInvalidCustom,
		charges.ErrInvalidLine,
		invoice.ErrNoLines,
		invoice.ErrInvalidNumber):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func isAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// userCode сотрудник из токена.
func userCode(r *http.Request) string {
	return r.Header.Get(auth.HeaderUserCodeKey)
}
