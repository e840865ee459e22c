package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iurnickita/warehouse/internal/api"
	"github.com/iurnickita/warehouse/internal/auth"
	authConfig "github.com/iurnickita/warehouse/internal/auth/config"
	"github.com/iurnickita/warehouse/internal/handler/config"
	"github.com/iurnickita/warehouse/internal/service"
	serviceConfig "github.com/iurnickita/warehouse/internal/service/config"
	"github.com/iurnickita/warehouse/internal/store"
)

type testServer struct {
	*httptest.Server
	token string
}

func newTestServer(t *testing.T, cfg config.Config) *testServer {
	zaplog := zap.NewNop()
	svc, err := service.NewService(serviceConfig.Config{
		LockTTL: time.Second,
		Billing: serviceConfig.Billing{
			StorageRatePerBox: "0.5",
			TaxRate:           "5",
			Currency:          "KWD",
		},
	}, store.NewMemoryStore(), zaplog)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	a := auth.NewAuth(authConfig.Config{JWTSecret: "secret", TokenTTL: time.Hour}, zaplog)
	tok, err := a.IssueToken("clerk-1")
	require.NoError(t, err)

	h, err := newHandler(cfg, a, svc, zaplog)
	require.NoError(t, err)
	srv := httptest.NewServer(h.newRouter())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, token: tok}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, respBody
}

func (s *testServer) seed(t *testing.T) {
	t.Helper()
	code, body := s.do(t, http.MethodPost, "/api/racks", map[string]any{"code": "A-01", "capacityTotal": 20})
	require.Equal(t, http.StatusCreated, code, string(body))

	// 9 дней 23 часа хранения - 10 оплачиваемых дней
	arrival := time.Now().UTC().Add(-10*24*time.Hour + time.Hour)
	code, body = s.do(t, http.MethodPost, "/api/shipments", map[string]any{
		"id":          "S-1",
		"client":      map[string]any{"name": "Ahmad", "phone": "+965 5555 0000"},
		"boxCount":    10,
		"arrivalDate": arrival,
		"rackId":      "A-01",
	})
	require.Equal(t, http.StatusCreated, code, string(body))
}

func TestUnauthorized(t *testing.T) {
	s := newTestServer(t, config.Config{})
	s.token = ""
	code, _ := s.do(t, http.MethodGet, "/api/racks", nil)
	require.Equal(t, http.StatusUnauthorized, code)
}

func TestShipmentEndpoints(t *testing.T) {
	s := newTestServer(t, config.Config{})
	s.seed(t)

	code, body := s.do(t, http.MethodGet, "/api/shipments/S-1", nil)
	require.Equal(t, http.StatusOK, code)
	var shipment api.ShipmentJSONResponse
	require.NoError(t, json.Unmarshal(body, &shipment))
	require.Equal(t, 10, shipment.CurrentBoxCount)
	require.Len(t, shipment.Boxes, 10)
	require.Equal(t, "SHP-S-1", shipment.QRCode)

	code, _ = s.do(t, http.MethodGet, "/api/shipments/S-404", nil)
	require.Equal(t, http.StatusNotFound, code)

	code, body = s.do(t, http.MethodPost, "/api/shipments", map[string]any{"id": "S-2"})
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, string(body), "boxCount: gt")

	// на A-01 место под 10 коробок, в B-01 - под 2
	code, _ = s.do(t, http.MethodPost, "/api/racks", map[string]any{"code": "B-01", "capacityTotal": 2})
	require.Equal(t, http.StatusCreated, code)
	code, body = s.do(t, http.MethodPost, "/api/shipments/S-1/assign-boxes", map[string]any{"rackId": "B-01", "boxNumbers": []int{1, 2, 3}})
	require.Equal(t, http.StatusConflict, code, string(body))

	code, body = s.do(t, http.MethodPost, "/api/shipments/S-1/assign-boxes", map[string]any{"rackId": "B-01", "boxNumbers": []int{1, 2}})
	require.Equal(t, http.StatusOK, code, string(body))
	var rack api.RackJSON
	require.NoError(t, json.Unmarshal(body, &rack))
	require.Equal(t, 0, rack.Free)

	code, body = s.do(t, http.MethodPost, "/api/shipments/S-1/release-boxes", map[string]any{"count": 3})
	require.Equal(t, http.StatusOK, code, string(body))
	var released api.ReleaseBoxesJSONResponse
	require.NoError(t, json.Unmarshal(body, &released))
	require.Equal(t, []int{1, 2, 3}, released.Withdrawal.BoxNumbers)
	require.Equal(t, 7, released.RemainingBoxCount)
	require.Equal(t, "clerk-1", released.Withdrawal.WithdrawnBy)

	code, _ = s.do(t, http.MethodPost, "/api/shipments/S-1/release-boxes", map[string]any{"boxNumbers": []int{1}})
	require.Equal(t, http.StatusConflict, code)
	code, _ = s.do(t, http.MethodPost, "/api/shipments/S-1/release-boxes", map[string]any{"releaseAll": true, "count": 2})
	require.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(t, http.MethodGet, "/api/withdrawals?shipmentId=S-1", nil)
	require.Equal(t, http.StatusOK, code)
	var withdrawals []api.WithdrawalJSON
	require.NoError(t, json.Unmarshal(body, &withdrawals))
	require.Len(t, withdrawals, 1)

	code, _ = s.do(t, http.MethodGet, "/api/withdrawals?shipmentId=S-404", nil)
	require.Equal(t, http.StatusNoContent, code)
}

func TestReleaseWithInvoice(t *testing.T) {
	s := newTestServer(t, config.Config{})
	s.seed(t)

	code, body := s.do(t, http.MethodPost, "/api/releases", map[string]any{
		"shipmentId":    "S-1",
		"releaseAll":    true,
		"chargeTypeIds": []string{},
	})
	require.Equal(t, http.StatusCreated, code, string(body))
	var run api.ReleaseJSONResponse
	require.NoError(t, json.Unmarshal(body, &run))
	require.Equal(t, "AWAITING_PAYMENT_DECISION", run.State)
	require.Equal(t, "50.000", run.Draft.Subtotal)
	require.Equal(t, "2.500", run.Draft.TaxAmount)
	require.Equal(t, "52.500", run.Draft.TotalAmount)
	require.Equal(t, 10, run.Draft.ChargeableDays)

	code, body = s.do(t, http.MethodPost, "/api/releases/"+run.ID+"/execute", map[string]any{"paymentOption": "FULL", "amount": "10"})
	require.Equal(t, http.StatusBadRequest, code, string(body))

	code, body = s.do(t, http.MethodPost, "/api/releases/"+run.ID+"/execute", map[string]any{"paymentOption": "DEBT"})
	require.Equal(t, http.StatusOK, code, string(body))
	var record api.ReleaseRecordJSON
	require.NoError(t, json.Unmarshal(body, &record))
	require.Equal(t, "PENDING", record.PaymentStatus)
	require.Equal(t, "FULL", record.ReleaseType)
	require.Len(t, record.BoxNumbers, 10)

	// повтор возвращает ту же выдачу
	code, body = s.do(t, http.MethodPost, "/api/releases/"+run.ID+"/execute", map[string]any{"paymentOption": "DEBT"})
	require.Equal(t, http.StatusOK, code, string(body))

	code, body = s.do(t, http.MethodGet, "/api/billing/invoices/number/"+record.InvoiceNumber, nil)
	require.Equal(t, http.StatusOK, code, string(body))
	code, _ = s.do(t, http.MethodGet, "/api/billing/invoices/number/INV-0000011", nil)
	require.Equal(t, http.StatusBadRequest, code)

	pay := func(amount string) (int, []byte) {
		return s.do(t, http.MethodPost, "/api/billing/invoices/"+record.InvoiceID+"/payments",
			map[string]any{"amount": amount, "paymentMethod": "CASH"})
	}
	code, _ = pay("0")
	require.Equal(t, http.StatusUnprocessableEntity, code)
	code, body = pay("20")
	require.Equal(t, http.StatusOK, code, string(body))
	code, _ = pay("40")
	require.Equal(t, http.StatusConflict, code)
	code, body = pay("32.5")
	require.Equal(t, http.StatusOK, code, string(body))
	var inv api.InvoiceJSONResponse
	require.NoError(t, json.Unmarshal(body, &inv))
	require.Equal(t, "PAID", inv.PaymentStatus)
	require.Equal(t, "0.000", inv.Balance)

	code, body = s.do(t, http.MethodGet, "/api/billing/invoices/"+record.InvoiceID, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body, &inv))
	require.Len(t, inv.Payments, 2)

	code, _ = s.do(t, http.MethodGet, "/api/releases/00000000-0000-0000-0000-000000000000", nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestBillingEndpoints(t *testing.T) {
	s := newTestServer(t, config.Config{})
	s.seed(t)

	code, body := s.do(t, http.MethodPost, "/api/billing/charge-types", map[string]any{
		"code":            "HANDLING",
		"name":            "Handling",
		"category":        "RELEASE",
		"calculationType": "PER_BOX",
		"rate":            "0.250",
		"isTaxable":       true,
	})
	require.Equal(t, http.StatusCreated, code, string(body))

	code, body = s.do(t, http.MethodPost, "/api/billing/charge-types", map[string]any{
		"code": "X", "name": "X", "calculationType": "HOURLY",
	})
	require.Equal(t, http.StatusBadRequest, code, string(body))

	code, body = s.do(t, http.MethodGet, "/api/billing/charge-types?category=RELEASE&active=true", nil)
	require.Equal(t, http.StatusOK, code)
	var chargeTypes []map[string]any
	require.NoError(t, json.Unmarshal(body, &chargeTypes))
	require.Len(t, chargeTypes, 1)

	code, body = s.do(t, http.MethodPut, "/api/billing/settings", map[string]any{
		"storageRatePerBox": "0.750",
		"taxRate":           "5",
		"gracePeriodDays":   2,
		"currency":          "KWD",
		"minimumCharge":     "0",
	})
	require.Equal(t, http.StatusOK, code, string(body))
	code, body = s.do(t, http.MethodGet, "/api/billing/settings", nil)
	require.Equal(t, http.StatusOK, code)
	var settings api.SettingsJSON
	require.NoError(t, json.Unmarshal(body, &settings))
	require.Equal(t, 2, settings.GracePeriodDays)
	require.Equal(t, "0.750", settings.StorageRatePerBox)
	require.Equal(t, "0.000", settings.MinimumCharge)
	require.Equal(t, "5", settings.TaxRate)

	code, body = s.do(t, http.MethodPost, "/api/billing/invoices", map[string]any{
		"shipmentId": "S-1",
		"lineItems": []map[string]any{
			{"description": "Repack", "quantity": 2, "unitPrice": "3.500", "taxRate": "0"},
		},
	})
	require.Equal(t, http.StatusCreated, code, string(body))
	var inv api.InvoiceJSONResponse
	require.NoError(t, json.Unmarshal(body, &inv))
	require.Equal(t, "7.000", inv.TotalAmount)
	require.Equal(t, "PENDING", inv.PaymentStatus)

	code, _ = s.do(t, http.MethodPost, "/api/billing/invoices", map[string]any{"shipmentId": "S-1"})
	require.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(t, http.MethodPost, "/api/billing/invoices", map[string]any{
		"shipmentId": "S-404",
		"lineItems":  []map[string]any{{"description": "Repack", "quantity": 1, "unitPrice": "1"}},
	})
	require.Equal(t, http.StatusNotFound, code)
}

func TestCreateWithdrawal(t *testing.T) {
	s := newTestServer(t, config.Config{})
	s.seed(t)

	code, body := s.do(t, http.MethodPost, "/api/withdrawals", map[string]any{
		"shipmentId":        "S-1",
		"withdrawnBoxCount": 2,
		"withdrawnBy":       "clerk-1",
		"reason":            "client pickup",
		"receiptNumber":     "R-77",
	})
	require.Equal(t, http.StatusCreated, code, string(body))
	var withdrawal api.WithdrawalJSON
	require.NoError(t, json.Unmarshal(body, &withdrawal))
	require.Equal(t, "PARTIAL", withdrawal.ReleaseType)

	code, body = s.do(t, http.MethodPost, "/api/withdrawals", map[string]any{"shipmentId": "S-1"})
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, string(body), "withdrawnBoxCount")
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, config.Config{RateLimit: "2-M"})
	for i := 0; i < 2; i++ {
		code, _ := s.do(t, http.MethodGet, "/api/racks", nil)
		require.Equal(t, http.StatusOK, code)
	}
	code, _ := s.do(t, http.MethodGet, "/api/racks", nil)
	require.Equal(t, http.StatusTooManyRequests, code)

	_, err := newHandler(config.Config{RateLimit: "often"}, nil, nil, zap.NewNop())
	require.Error(t, err)
}
