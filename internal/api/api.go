// Package api JSON запросов и ответов HTTP API склада.
// Общий для сервера и клиента releasectl.
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iurnickita/warehouse/internal/model"
)

// Fils сумма строкой с тремя знаками после запятой.
func Fils(d decimal.Decimal) string {
	return d.StringFixed(model.MoneyPlaces)
}

// Ошибка API: текст в теле ответа, как у http.Error.

// Стеллажи

type RackJSON struct {
	Code          string `json:"code" validate:"required,max=30"`
	Location      string `json:"location"`
	CapacityTotal int    `json:"capacityTotal" validate:"gt=0"`
	CapacityUsed  int    `json:"capacityUsed"`
	Free          int    `json:"free"`
	Status        string `json:"status"`
}

func NewRackJSON(r model.Rack) RackJSON {
	return RackJSON{
		Code:          r.Code,
		Location:      r.Data.Location,
		CapacityTotal: r.Data.CapacityTotal,
		CapacityUsed:  r.Data.CapacityUsed,
		Free:          r.Free(),
		Status:        r.Data.Status,
	}
}

// Отправления

type ClientJSON struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone"`
	Email string `json:"email" validate:"omitempty,email"`
}

type ShipmentJSONRequest struct {
	ID           string     `json:"id" validate:"required,max=40"`
	QRCode       string     `json:"qrCode"`
	Client       ClientJSON `json:"client"`
	BoxCount     int        `json:"boxCount" validate:"gt=0,lte=10000"`
	ArrivalDate  time.Time  `json:"arrivalDate"`
	ReceivedDate time.Time  `json:"receivedDate"`
	RackID       string     `json:"rackId"`
}

func (req ShipmentJSONRequest) Model() model.Shipment {
	return model.Shipment{ID: req.ID, Data: model.ShipmentData{
		QRCode:           req.QRCode,
		Client:           model.Client{Name: req.Client.Name, Phone: req.Client.Phone, Email: req.Client.Email},
		OriginalBoxCount: req.BoxCount,
		ArrivalDate:      req.ArrivalDate,
		ReceivedDate:     req.ReceivedDate,
		RackCode:         req.RackID,
	}}
}

type BoxJSON struct {
	Number     int        `json:"boxNumber"`
	Status     string     `json:"status"`
	RackID     string     `json:"rackId,omitempty"`
	ReleasedAt *time.Time `json:"releasedAt,omitempty"`
}

type ShipmentJSONResponse struct {
	ID               string     `json:"id"`
	QRCode           string     `json:"qrCode"`
	Client           ClientJSON `json:"client"`
	OriginalBoxCount int        `json:"originalBoxCount"`
	CurrentBoxCount  int        `json:"currentBoxCount"`
	ArrivalDate      *time.Time `json:"arrivalDate,omitempty"`
	ReceivedDate     *time.Time `json:"receivedDate,omitempty"`
	Status           string     `json:"status"`
	RackID           string     `json:"rackId,omitempty"`
	Boxes            []BoxJSON  `json:"boxes,omitempty"`
}

func NewShipmentJSON(s model.Shipment, boxes []model.Box) ShipmentJSONResponse {
	res := ShipmentJSONResponse{
		ID:               s.ID,
		QRCode:           s.Data.QRCode,
		Client:           ClientJSON{Name: s.Data.Client.Name, Phone: s.Data.Client.Phone, Email: s.Data.Client.Email},
		OriginalBoxCount: s.Data.OriginalBoxCount,
		CurrentBoxCount:  s.Data.CurrentBoxCount,
		ArrivalDate:      timePtr(s.Data.ArrivalDate),
		ReceivedDate:     timePtr(s.Data.ReceivedDate),
		Status:           s.Data.Status,
		RackID:           s.Data.RackCode,
	}
	for _, b := range boxes {
		res.Boxes = append(res.Boxes, BoxJSON{
			Number:     b.Key.Number,
			Status:     b.Data.Status,
			RackID:     b.Data.RackCode,
			ReleasedAt: timePtr(b.Data.ReleasedAt),
		})
	}
	return res
}

type AssignBoxesJSONRequest struct {
	RackID     string `json:"rackId" validate:"required"`
	BoxNumbers []int  `json:"boxNumbers" validate:"required,min=1,dive,gt=0"`
}

// SelectionJSON одно из: releaseAll, boxNumbers, count.
type SelectionJSON struct {
	ReleaseAll bool  `json:"releaseAll,omitempty"`
	BoxNumbers []int `json:"boxNumbers,omitempty" validate:"omitempty,dive,gt=0"`
	Count      int   `json:"count,omitempty" validate:"gte=0"`
}

func (s SelectionJSON) Model() model.BoxSelection {
	return model.BoxSelection{All: s.ReleaseAll, Numbers: s.BoxNumbers, Count: s.Count}
}

func NewSelectionJSON(s model.BoxSelection) SelectionJSON {
	return SelectionJSON{ReleaseAll: s.All, BoxNumbers: s.Numbers, Count: s.Count}
}

type ReleaseBoxesJSONRequest struct {
	SelectionJSON
	CollectorID   string   `json:"collectorId"`
	ReleasePhotos []string `json:"releasePhotos"`
	ReleasedBy    string   `json:"releasedBy"`
	Notes         string   `json:"notes"`
}

type ReleaseBoxesJSONResponse struct {
	Withdrawal        WithdrawalJSON `json:"withdrawal"`
	RemainingBoxCount int            `json:"remainingBoxCount"`
	ShipmentStatus    string         `json:"shipmentStatus"`
}

// Записи о выдаче

type WithdrawalJSONRequest struct {
	ShipmentID        string `json:"shipmentId" validate:"required"`
	WithdrawnBoxCount int    `json:"withdrawnBoxCount" validate:"gt=0"`
	WithdrawnBy       string `json:"withdrawnBy" validate:"required"`
	CollectorID       string `json:"collectorId"`
	Reason            string `json:"reason"`
	Notes             string `json:"notes"`
	ReceiptNumber     string `json:"receiptNumber"`
}

func (req WithdrawalJSONRequest) Model() model.Withdrawal {
	return model.Withdrawal{
		ShipmentID:    req.ShipmentID,
		BoxCount:      req.WithdrawnBoxCount,
		WithdrawnBy:   req.WithdrawnBy,
		CollectorID:   req.CollectorID,
		Reason:        req.Reason,
		Notes:         req.Notes,
		ReceiptNumber: req.ReceiptNumber,
	}
}

type WithdrawalJSON struct {
	ID                string    `json:"id"`
	ShipmentID        string    `json:"shipmentId"`
	ReleaseID         string    `json:"releaseId,omitempty"`
	InvoiceID         string    `json:"invoiceId,omitempty"`
	WithdrawnBoxCount int       `json:"withdrawnBoxCount"`
	BoxNumbers        []int     `json:"boxNumbers,omitempty"`
	WithdrawnBy       string    `json:"withdrawnBy"`
	CollectorID       string    `json:"collectorId,omitempty"`
	Reason            string    `json:"reason"`
	Notes             string    `json:"notes,omitempty"`
	ReceiptNumber     string    `json:"receiptNumber,omitempty"`
	ReleasePhotos     []string  `json:"releasePhotos,omitempty"`
	ReleaseType       string    `json:"releaseType"`
	CreatedAt         time.Time `json:"createdAt"`
}

func NewWithdrawalJSON(w model.Withdrawal) WithdrawalJSON {
	return WithdrawalJSON{
		ID:                w.ID,
		ShipmentID:        w.ShipmentID,
		ReleaseID:         w.RunID,
		InvoiceID:         w.InvoiceID,
		WithdrawnBoxCount: w.BoxCount,
		BoxNumbers:        w.BoxNumbers,
		WithdrawnBy:       w.WithdrawnBy,
		CollectorID:       w.CollectorID,
		Reason:            w.Reason,
		Notes:             w.Notes,
		ReceiptNumber:     w.ReceiptNumber,
		ReleasePhotos:     w.ReleasePhotos,
		ReleaseType:       string(w.Type),
		CreatedAt:         w.CreatedAt,
	}
}

// Тарификация

type SettingsJSON struct {
	StorageRatePerBox     string `json:"storageRatePerBox"`
	TaxRate               string `json:"taxRate"`
	GracePeriodDays       int    `json:"gracePeriodDays"`
	Currency              string `json:"currency"`
	MinimumCharge         string `json:"minimumCharge"`
	RequireIDVerification bool   `json:"requireIDVerification"`
	RequireReleasePhotos  bool   `json:"requireReleasePhotos"`
}

func NewSettingsJSON(s model.BillingSettings) SettingsJSON {
	return SettingsJSON{
		StorageRatePerBox:     Fils(s.StorageRatePerBox),
		TaxRate:               s.TaxRate.String(),
		GracePeriodDays:       s.GracePeriodDays,
		Currency:              s.Currency,
		MinimumCharge:         Fils(s.MinimumCharge),
		RequireIDVerification: s.RequireIDVerification,
		RequireReleasePhotos:  s.RequireReleasePhotos,
	}
}

type ChargeTypeJSONRequest struct {
	Code            string              `json:"code" validate:"required,max=30"`
	Name            string              `json:"name" validate:"required"`
	Category        string              `json:"category" validate:"omitempty,oneof=RELEASE STORAGE CUSTOM"`
	CalculationType string              `json:"calculationType" validate:"required,oneof=PER_BOX FLAT PERCENTAGE PER_SHIPMENT"`
	Rate            decimal.Decimal     `json:"rate"`
	MinCharge       decimal.NullDecimal `json:"minCharge"`
	MaxCharge       decimal.NullDecimal `json:"maxCharge"`
	IsTaxable       bool                `json:"isTaxable"`
	AutoApply       bool                `json:"autoApply"`
	Active          *bool               `json:"active"`
}

func (req ChargeTypeJSONRequest) Model() model.ChargeType {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return model.ChargeType{
		Code:      req.Code,
		Name:      req.Name,
		Category:  req.Category,
		Kind:      model.ChargeKind(req.CalculationType),
		Rate:      req.Rate,
		MinCharge: req.MinCharge,
		MaxCharge: req.MaxCharge,
		Taxable:   req.IsTaxable,
		AutoApply: req.AutoApply,
		Active:    active,
	}
}

type LineItemJSONRequest struct {
	Description string          `json:"description" validate:"required"`
	Category    string          `json:"category"`
	Quantity    int             `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TaxRate     decimal.Decimal `json:"taxRate"`
}

type InvoiceJSONRequest struct {
	ShipmentID string                `json:"shipmentId" validate:"required"`
	LineItems  []LineItemJSONRequest `json:"lineItems" validate:"required,min=1,dive"`
	Notes      string                `json:"notes"`
}

func (req InvoiceJSONRequest) Lines() []model.LineItem {
	lines := make([]model.LineItem, 0, len(req.LineItems))
	for _, l := range req.LineItems {
		lines = append(lines, model.LineItem{
			Description: l.Description,
			Category:    l.Category,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			TaxRate:     l.TaxRate,
		})
	}
	return lines
}

type LineItemJSON struct {
	Description  string `json:"description"`
	Category     string `json:"category"`
	ChargeTypeID string `json:"chargeTypeId,omitempty"`
	Quantity     int    `json:"quantity"`
	UnitPrice    string `json:"unitPrice"`
	Amount       string `json:"amount"`
	TaxRate      string `json:"taxRate"`
	TaxAmount    string `json:"taxAmount"`
}

func newLineItemsJSON(lines []model.LineItem) []LineItemJSON {
	res := make([]LineItemJSON, 0, len(lines))
	for _, l := range lines {
		res = append(res, LineItemJSON{
			Description:  l.Description,
			Category:     l.Category,
			ChargeTypeID: l.ChargeTypeID,
			Quantity:     l.Quantity,
			UnitPrice:    Fils(l.UnitPrice),
			Amount:       Fils(l.Amount),
			TaxRate:      l.TaxRate.String(),
			TaxAmount:    Fils(l.TaxAmount),
		})
	}
	return res
}

type PaymentJSONRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	PaymentMethod  string          `json:"paymentMethod" validate:"required"`
	TransactionRef string          `json:"transactionRef"`
	ReceiptNumber  string          `json:"receiptNumber"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

type PaymentJSON struct {
	ID             string    `json:"id"`
	Amount         string    `json:"amount"`
	PaymentMethod  string    `json:"paymentMethod"`
	TransactionRef string    `json:"transactionRef,omitempty"`
	ReceiptNumber  string    `json:"receiptNumber,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

type InvoiceJSONResponse struct {
	ID            string         `json:"id"`
	InvoiceNumber string         `json:"invoiceNumber"`
	ShipmentID    string         `json:"shipmentId"`
	Client        ClientJSON     `json:"client"`
	LineItems     []LineItemJSON `json:"lineItems"`
	Subtotal      string         `json:"subtotal"`
	TaxAmount     string         `json:"taxAmount"`
	TotalAmount   string         `json:"totalAmount"`
	PaidAmount    string         `json:"paidAmount"`
	Balance       string         `json:"balance"`
	Currency      string         `json:"currency"`
	PaymentStatus string         `json:"paymentStatus"`
	Notes         string         `json:"notes,omitempty"`
	Payments      []PaymentJSON  `json:"payments,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

func NewInvoiceJSON(inv model.Invoice, payments []model.Payment) InvoiceJSONResponse {
	res := InvoiceJSONResponse{
		ID:            inv.ID,
		InvoiceNumber: inv.Number,
		ShipmentID:    inv.ShipmentID,
		Client:        ClientJSON{Name: inv.Client.Name, Phone: inv.Client.Phone, Email: inv.Client.Email},
		LineItems:     newLineItemsJSON(inv.Lines),
		Subtotal:      Fils(inv.Subtotal),
		TaxAmount:     Fils(inv.TaxAmount),
		TotalAmount:   Fils(inv.Total),
		PaidAmount:    Fils(inv.Paid),
		Balance:       Fils(inv.Balance()),
		Currency:      inv.Currency,
		PaymentStatus: string(inv.Status),
		Notes:         inv.Notes,
		CreatedAt:     inv.CreatedAt,
		UpdatedAt:     inv.UpdatedAt,
	}
	for _, p := range payments {
		res.Payments = append(res.Payments, PaymentJSON{
			ID:             p.ID,
			Amount:         Fils(p.Amount),
			PaymentMethod:  p.Method,
			TransactionRef: p.TransactionRef,
			ReceiptNumber:  p.ReceiptNumber,
			CreatedAt:      p.CreatedAt,
		})
	}
	return res
}

// Выдача со счётом

type CustomChargeJSON struct {
	Description string          `json:"description" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
}

type ReleaseDraftJSONRequest struct {
	ShipmentID string `json:"shipmentId"`
	SelectionJSON
	// ChargeTypeIDs без поля - начисления с autoApply, пустой список - без начислений.
	ChargeTypeIDs []string          `json:"chargeTypeIds"`
	CustomCharge  *CustomChargeJSON `json:"customCharge"`
}

type DraftJSON struct {
	LineItems      []LineItemJSON `json:"lineItems"`
	Subtotal       string         `json:"subtotal"`
	TaxAmount      string         `json:"taxAmount"`
	TotalAmount    string         `json:"totalAmount"`
	BoxesToRelease int            `json:"boxesToRelease"`
	ChargeableDays int            `json:"chargeableDays"`
	Currency       string         `json:"currency"`
}

type ReleaseJSONResponse struct {
	ID            string        `json:"id"`
	ShipmentID    string        `json:"shipmentId"`
	State         string        `json:"state"`
	Selection     SelectionJSON `json:"selection"`
	ChargeTypeIDs []string      `json:"chargeTypeIds"`
	Draft         DraftJSON     `json:"draft"`
	PaymentOption string        `json:"paymentOption,omitempty"`
	InvoiceID     string        `json:"invoiceId,omitempty"`
	WithdrawalID  string        `json:"withdrawalId,omitempty"`
	FailedStep    string        `json:"failedStep,omitempty"`
	LastError     string        `json:"lastError,omitempty"`
	CreatedBy     string        `json:"createdBy,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

func NewReleaseJSON(run model.ReleaseRun) ReleaseJSONResponse {
	res := ReleaseJSONResponse{
		ID:            run.ID,
		ShipmentID:    run.ShipmentID,
		State:         string(run.State),
		Selection:     NewSelectionJSON(run.Selection),
		ChargeTypeIDs: run.ChargeTypeIDs,
		Draft: DraftJSON{
			LineItems:      newLineItemsJSON(run.Draft.Lines),
			Subtotal:       Fils(run.Draft.Subtotal),
			TaxAmount:      Fils(run.Draft.TaxAmount),
			TotalAmount:    Fils(run.Draft.Total),
			BoxesToRelease: run.Draft.BoxesToRelease,
			ChargeableDays: run.Draft.ChargeableDays,
			Currency:       run.Settings.Currency,
		},
		InvoiceID:    run.InvoiceID,
		WithdrawalID: run.WithdrawalID,
		FailedStep:   string(run.FailedStep),
		LastError:    run.LastError,
		CreatedBy:    run.CreatedBy,
		CreatedAt:    run.CreatedAt,
		UpdatedAt:    run.UpdatedAt,
	}
	if run.Decision != nil {
		res.PaymentOption = string(run.Decision.Option)
	}
	return res
}

type ReleaseDecisionJSONRequest struct {
	PaymentOption  string          `json:"paymentOption" validate:"required,oneof=FULL PARTIAL DEBT"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentMethod  string          `json:"paymentMethod"`
	TransactionRef string          `json:"transactionRef"`
	ReceiptNumber  string          `json:"receiptNumber"`
	CollectorID    string          `json:"collectorId"`
	ReleasePhotos  []string        `json:"releasePhotos"`
	ReleasedBy     string          `json:"releasedBy"`
	Notes          string          `json:"notes"`
}

func (req ReleaseDecisionJSONRequest) Model() model.ReleaseDecision {
	return model.ReleaseDecision{
		Option:         model.PaymentOption(req.PaymentOption),
		Amount:         req.Amount,
		Method:         req.PaymentMethod,
		TransactionRef: req.TransactionRef,
		ReceiptNumber:  req.ReceiptNumber,
		CollectorID:    req.CollectorID,
		ReleasePhotos:  req.ReleasePhotos,
		ReleasedBy:     req.ReleasedBy,
		Notes:          req.Notes,
	}
}

type ReleaseRecordJSON struct {
	ReleaseID     string    `json:"releaseId"`
	ShipmentID    string    `json:"shipmentId"`
	WithdrawalID  string    `json:"withdrawalId"`
	InvoiceID     string    `json:"invoiceId"`
	InvoiceNumber string    `json:"invoiceNumber"`
	PaymentStatus string    `json:"paymentStatus"`
	BoxNumbers    []int     `json:"boxNumbers"`
	ReleaseType   string    `json:"releaseType"`
	CollectorID   string    `json:"collectorId,omitempty"`
	ReleasedBy    string    `json:"releasedBy,omitempty"`
	ReleasedAt    time.Time `json:"releasedAt"`
}

func NewReleaseRecordJSON(rec model.ReleaseRecord) ReleaseRecordJSON {
	return ReleaseRecordJSON{
		ReleaseID:     rec.RunID,
		ShipmentID:    rec.ShipmentID,
		WithdrawalID:  rec.WithdrawalID,
		InvoiceID:     rec.InvoiceID,
		InvoiceNumber: rec.InvoiceNumber,
		PaymentStatus: string(rec.PaymentStatus),
		BoxNumbers:    rec.BoxNumbers,
		ReleaseType:   string(rec.Type),
		CollectorID:   rec.CollectorID,
		ReleasedBy:    rec.ReleasedBy,
		ReleasedAt:    rec.ReleasedAt,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
