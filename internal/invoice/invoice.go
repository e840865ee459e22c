package invoice

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/theplant/luhn"
	"go.uber.org/zap"

	"github.com/iurnickita/warehouse/internal/charges"
	"github.com/iurnickita/warehouse/internal/model"
	"github.com/iurnickita/warehouse/internal/store"
)

type Ledger interface {
	// Create счёт по черновику, в транзакции вызывающего.
	Create(ctx context.Context, tx store.Tx, shipment model.Shipment, draft model.InvoiceDraft, currency string, notes string) (model.Invoice, error)
	// CreateInvoice счёт по произвольным строкам, суммы пересчитываются.
	CreateInvoice(ctx context.Context, shipmentID string, lines []model.LineItem, currency string, notes string) (model.Invoice, error)
	// RecordPayment оплата в транзакции вызывающего.
	RecordPayment(ctx context.Context, tx store.Tx, invoiceID string, payment PaymentInput) (model.Invoice, error)
	Pay(ctx context.Context, invoiceID string, payment PaymentInput) (model.Invoice, error)
	Get(ctx context.Context, id string) (model.Invoice, []model.Payment, error)
	GetByNumber(ctx context.Context, number string) (model.Invoice, error)
}

type PaymentInput struct {
	Amount         decimal.Decimal
	Method         string
	TransactionRef string
	ReceiptNumber  string
	// IdempotencyKey повторная оплата с тем же ключом ничего не меняет.
	IdempotencyKey string
}

var (
	ErrNotFound        = errors.New("invoice not found")
	ErrInvalidNumber   = errors.New("invalid invoice number")
	ErrInvalidAmount   = errors.New("payment amount must be positive")
	ErrOverPayment     = errors.New("payment exceeds invoice balance")
	ErrNoLines         = errors.New("invoice has no line items")
	ErrShipmentMissing = errors.New("shipment not found")
)

const numberPrefix = "INV-"

type ledger struct {
	store  store.Store
	zaplog *zap.Logger
	now    func() time.Time
}

func NewLedger(store store.Store, zaplog *zap.Logger) Ledger {
	return &ledger{store: store, zaplog: zaplog, now: time.Now}
}

func (l *ledger) Create(ctx context.Context, tx store.Tx, shipment model.Shipment, draft model.InvoiceDraft, currency string, notes string) (model.Invoice, error) {
	seq, err := tx.InvoiceNextSeq(ctx)
	if err != nil {
		return model.Invoice{}, err
	}

	now := l.now().UTC()
	inv := model.Invoice{
		ID:         uuid.NewString(),
		Number:     Number(seq),
		ShipmentID: shipment.ID,
		Client:     shipment.Data.Client,
		Lines:      draft.Lines,
		Subtotal:   draft.Subtotal,
		TaxAmount:  draft.TaxAmount,
		Total:      draft.Total,
		Paid:       decimal.Zero,
		Currency:   currency,
		Status:     model.PaymentStatusPending,
		Notes:      notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	// Нулевой счёт оплачен сразу
	if !inv.Total.IsPositive() {
		inv.Status = model.PaymentStatusPaid
	}

	if err = tx.InvoicePost(ctx, inv); err != nil {
		return model.Invoice{}, err
	}
	l.zaplog.Info("invoice created",
		zap.String("invoice", inv.Number),
		zap.String("shipment", shipment.ID),
		zap.String("total", inv.Total.StringFixed(model.MoneyPlaces)),
	)
	return inv, nil
}

func (l *ledger) CreateInvoice(ctx context.Context, shipmentID string, lines []model.LineItem, currency string, notes string) (model.Invoice, error) {
	if len(lines) == 0 {
		return model.Invoice{}, ErrNoLines
	}
	lines, err := charges.Normalize(lines)
	if err != nil {
		return model.Invoice{}, err
	}
	draft := model.InvoiceDraft{Lines: lines, ComputedAt: l.now().UTC()}
	draft.Subtotal, draft.TaxAmount, draft.Total = charges.Totals(lines)

	var inv model.Invoice
	err = l.store.InTx(ctx, func(tx store.Tx) error {
		shipment, err := tx.ShipmentGet(ctx, shipmentID)
		if errors.Is(err, store.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrShipmentMissing, shipmentID)
		}
		if err != nil {
			return err
		}
		inv, err = l.Create(ctx, tx, shipment, draft, currency, notes)
		return err
	})
	return inv, err
}

func (l *ledger) RecordPayment(ctx context.Context, tx store.Tx, invoiceID string, in PaymentInput) (model.Invoice, error) {
	amount := in.Amount.Round(model.MoneyPlaces)
	if !amount.IsPositive() {
		return model.Invoice{}, ErrInvalidAmount
	}
	inv, err := l.get(ctx, tx, invoiceID)
	if err != nil {
		return model.Invoice{}, err
	}

	if in.IdempotencyKey != "" {
		_, err = tx.PaymentGetByKey(ctx, invoiceID, in.IdempotencyKey)
		if err == nil {
			l.zaplog.Info("payment already recorded",
				zap.String("invoice", inv.Number),
				zap.String("key", in.IdempotencyKey),
			)
			return inv, nil
		}
		if !errors.Is(err, store.ErrNoRows) {
			return model.Invoice{}, err
		}
	}

	if inv.Paid.Add(amount).GreaterThan(inv.Total) {
		return model.Invoice{}, fmt.Errorf("%w: balance %s, payment %s", ErrOverPayment,
			inv.Balance().StringFixed(model.MoneyPlaces), amount.StringFixed(model.MoneyPlaces))
	}

	now := l.now().UTC()
	payment := model.Payment{
		ID:             uuid.NewString(),
		InvoiceID:      inv.ID,
		Amount:         amount,
		Method:         in.Method,
		TransactionRef: in.TransactionRef,
		ReceiptNumber:  in.ReceiptNumber,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      now,
	}
	if err = tx.PaymentPost(ctx, payment); err != nil {
		return model.Invoice{}, err
	}

	inv.Paid = inv.Paid.Add(amount)
	inv.Status = Status(inv.Paid, inv.Total)
	inv.UpdatedAt = now
	if err = tx.InvoicePut(ctx, inv); err != nil {
		return model.Invoice{}, err
	}

	l.zaplog.Info("payment recorded",
		zap.String("invoice", inv.Number),
		zap.String("amount", amount.StringFixed(model.MoneyPlaces)),
		zap.String("status", string(inv.Status)),
	)
	return inv, nil
}

func (l *ledger) Pay(ctx context.Context, invoiceID string, in PaymentInput) (model.Invoice, error) {
	var inv model.Invoice
	err := l.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		inv, err = l.RecordPayment(ctx, tx, invoiceID, in)
		return err
	})
	return inv, err
}

func (l *ledger) Get(ctx context.Context, id string) (model.Invoice, []model.Payment, error) {
	var inv model.Invoice
	var payments []model.Payment
	err := l.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if inv, err = l.get(ctx, tx, id); err != nil {
			return err
		}
		payments, err = tx.PaymentGet(ctx, id)
		return err
	})
	return inv, payments, err
}

func (l *ledger) GetByNumber(ctx context.Context, number string) (model.Invoice, error) {
	if !ValidNumber(number) {
		return model.Invoice{}, fmt.Errorf("%w: %s", ErrInvalidNumber, number)
	}
	var inv model.Invoice
	err := l.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		inv, err = tx.InvoiceGetByNumber(ctx, number)
		if errors.Is(err, store.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, number)
		}
		return err
	})
	return inv, err
}

func (l *ledger) get(ctx context.Context, tx store.Tx, id string) (model.Invoice, error) {
	inv, err := tx.InvoiceGet(ctx, id)
	if errors.Is(err, store.ErrNoRows) {
		return model.Invoice{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return inv, err
}

// Status статус оплаты по оплаченной сумме.
func Status(paid, total decimal.Decimal) model.PaymentStatus {
	switch {
	case paid.GreaterThanOrEqual(total):
		return model.PaymentStatusPaid
	case paid.IsPositive():
		return model.PaymentStatusPartial
	default:
		return model.PaymentStatusPending
	}
}

// Number номер счёта: порядковый номер и контрольная цифра по Луну.
func Number(seq int) string {
	return fmt.Sprintf("%s%07d", numberPrefix, seq*10+luhn.CalculateLuhn(seq))
}

func ValidNumber(number string) bool {
	digits, ok := strings.CutPrefix(number, numberPrefix)
	if !ok {
		return false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return false
	}
	return luhn.Valid(n)
}
