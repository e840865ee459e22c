package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/iurnickita/warehouse/internal/api"
)

// StatusError ответ сервера с кодом ошибки.
type StatusError struct {
	Code int
	Msg  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Msg)
}

type Client interface {
	DraftRelease(ctx context.Context, req api.ReleaseDraftJSONRequest) (api.ReleaseJSONResponse, error)
	GetRelease(ctx context.Context, id string) (api.ReleaseJSONResponse, error)
	ExecuteRelease(ctx context.Context, id string, req api.ReleaseDecisionJSONRequest) (api.ReleaseRecordJSON, error)
	ResumeRelease(ctx context.Context, id string) (api.ReleaseRecordJSON, error)
	GetInvoiceByNumber(ctx context.Context, number string) (api.InvoiceJSONResponse, error)
}

type client struct {
	resty *resty.Client
}

func NewClient(serviceAddr string, token string) Client {
	if !strings.HasPrefix(serviceAddr, "http://") && !strings.HasPrefix(serviceAddr, "https://") {
		serviceAddr = "http://" + serviceAddr
	}
	r := resty.New().
		SetBaseURL(serviceAddr).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		r.SetAuthToken(token)
	}
	return client{resty: r}
}

func (c client) DraftRelease(ctx context.Context, req api.ReleaseDraftJSONRequest) (api.ReleaseJSONResponse, error) {
	var run api.ReleaseJSONResponse
	err := c.send(ctx, http.MethodPost, "/api/releases", req, &run)
	return run, err
}

func (c client) GetRelease(ctx context.Context, id string) (api.ReleaseJSONResponse, error) {
	var run api.ReleaseJSONResponse
	err := c.send(ctx, http.MethodGet, "/api/releases/"+id, nil, &run)
	return run, err
}

func (c client) ExecuteRelease(ctx context.Context, id string, req api.ReleaseDecisionJSONRequest) (api.ReleaseRecordJSON, error) {
	var record api.ReleaseRecordJSON
	err := c.send(ctx, http.MethodPost, "/api/releases/"+id+"/execute", req, &record)
	return record, err
}

func (c client) ResumeRelease(ctx context.Context, id string) (api.ReleaseRecordJSON, error) {
	var record api.ReleaseRecordJSON
	err := c.send(ctx, http.MethodPost, "/api/releases/"+id+"/resume", nil, &record)
	return record, err
}

func (c client) GetInvoiceByNumber(ctx context.Context, number string) (api.InvoiceJSONResponse, error) {
	var inv api.InvoiceJSONResponse
	err := c.send(ctx, http.MethodGet, "/api/billing/invoices/number/"+number, nil, &inv)
	return inv, err
}

func (c client) send(ctx context.Context, method, path string, body any, result any) error {
	setreq := c.resty.R().SetContext(ctx)
	if body != nil {
		setreq.SetBody(body)
	}
	setresp, err := setreq.Execute(method, path)
	if err != nil {
		return err
	}

	switch setresp.StatusCode() {
	case http.StatusOK, http.StatusCreated:
		return json.Unmarshal(setresp.Body(), result)
	default:
		return &StatusError{Code: setresp.StatusCode(), Msg: strings.TrimSpace(string(setresp.Body()))}
	}
}
