package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyPlaces точность денежных сумм (филсы кувейтского динара).
const MoneyPlaces = 3

// Настройки тарификации

type BillingSettings struct {
	StorageRatePerBox     decimal.Decimal `json:"storageRatePerBox"`
	TaxRate               decimal.Decimal `json:"taxRate"`
	GracePeriodDays       int             `json:"gracePeriodDays"`
	Currency              string          `json:"currency"`
	MinimumCharge         decimal.Decimal `json:"minimumCharge"`
	RequireIDVerification bool            `json:"requireIDVerification"`
	RequireReleasePhotos  bool            `json:"requireReleasePhotos"`
}

// Виды начислений

type ChargeKind string

const (
	ChargePerBox      ChargeKind = "PER_BOX"
	ChargeFlat        ChargeKind = "FLAT"
	ChargePercentage  ChargeKind = "PERCENTAGE"
	ChargePerShipment ChargeKind = "PER_SHIPMENT"
)

func (k ChargeKind) Valid() bool {
	switch k {
	case ChargePerBox, ChargeFlat, ChargePercentage, ChargePerShipment:
		return true
	default:
		return false
	}
}

const (
	ChargeCategoryRelease = "RELEASE"
	ChargeCategoryStorage = "STORAGE"
	ChargeCategoryCustom  = "CUSTOM"
)

type ChargeType struct {
	ID        string              `json:"id"`
	Code      string              `json:"code"`
	Name      string              `json:"name"`
	Category  string              `json:"category"`
	Kind      ChargeKind          `json:"calculationType"`
	Rate      decimal.Decimal     `json:"rate"`
	MinCharge decimal.NullDecimal `json:"minCharge"`
	MaxCharge decimal.NullDecimal `json:"maxCharge"`
	Taxable   bool                `json:"isTaxable"`
	AutoApply bool                `json:"autoApply"`
	Active    bool                `json:"active"`
}

// Строки счёта

type LineItem struct {
	Description  string          `json:"description"`
	Category     string          `json:"category"`
	ChargeTypeID string          `json:"chargeTypeId,omitempty"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Amount       decimal.Decimal `json:"amount"`
	TaxRate      decimal.Decimal `json:"taxRate"`
	TaxAmount    decimal.Decimal `json:"taxAmount"`
}

// InvoiceDraft расчёт счёта до его создания.
type InvoiceDraft struct {
	Lines          []LineItem      `json:"lineItems"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"taxAmount"`
	Total          decimal.Decimal `json:"total"`
	BoxesToRelease int             `json:"boxesToRelease"`
	ChargeableDays int             `json:"chargeableDays"`
	ComputedAt     time.Time       `json:"computedAt"`
}

type CustomCharge struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// Счета и оплаты

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPartial PaymentStatus = "PARTIAL"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

type Invoice struct {
	ID         string
	Number     string
	ShipmentID string
	Client     Client
	Lines      []LineItem
	Subtotal   decimal.Decimal
	TaxAmount  decimal.Decimal
	Total      decimal.Decimal
	Paid       decimal.Decimal
	Currency   string
	Status     PaymentStatus
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Balance остаток к оплате.
func (inv Invoice) Balance() decimal.Decimal {
	return inv.Total.Sub(inv.Paid)
}

type Payment struct {
	ID             string
	InvoiceID      string
	Amount         decimal.Decimal
	Method         string
	TransactionRef string
	ReceiptNumber  string
	IdempotencyKey string
	CreatedAt      time.Time
}
