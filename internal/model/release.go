package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Процесс выдачи

type ReleaseState string

const (
	ReleaseStateDrafting ReleaseState = "DRAFTING_INVOICE"
	ReleaseStateAwaiting ReleaseState = "AWAITING_PAYMENT_DECISION"
	ReleaseStatePaying   ReleaseState = "PAYING"
	ReleaseStateDebt     ReleaseState = "DEBT"
	ReleaseStateRelease  ReleaseState = "RELEASING"
	ReleaseStateDone     ReleaseState = "DONE"
)

type PaymentOption string

const (
	PaymentOptionFull    PaymentOption = "FULL"
	PaymentOptionPartial PaymentOption = "PARTIAL"
	PaymentOptionDebt    PaymentOption = "DEBT"
)

type ReleaseDecision struct {
	Option         PaymentOption   `json:"option"`
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method"`
	TransactionRef string          `json:"transactionRef"`
	ReceiptNumber  string          `json:"receiptNumber"`
	CollectorID    string          `json:"collectorId"`
	ReleasePhotos  []string        `json:"releasePhotos"`
	ReleasedBy     string          `json:"releasedBy"`
	Notes          string          `json:"notes"`
}

// ReleaseRun сохраняемый маркер незавершённой выдачи.
type ReleaseRun struct {
	ID            string
	ShipmentID    string
	State         ReleaseState
	Selection     BoxSelection
	ChargeTypeIDs []string
	Custom        *CustomCharge
	Settings      BillingSettings
	Draft         InvoiceDraft
	Decision      *ReleaseDecision
	InvoiceID     string
	WithdrawalID  string
	FailedStep    ReleaseState
	LastError     string
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ReleaseRecord итог выдачи для печати и архива.
type ReleaseRecord struct {
	RunID         string
	ShipmentID    string
	WithdrawalID  string
	InvoiceID     string
	InvoiceNumber string
	PaymentStatus PaymentStatus
	BoxNumbers    []int
	Type          ReleaseType
	CollectorID   string
	ReleasedBy    string
	ReleasedAt    time.Time
}
