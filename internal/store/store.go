package store

import (
	"context"
	"errors"

	"github.com/iurnickita/warehouse/internal/model"
	"github.com/iurnickita/warehouse/internal/store/config"
)

// Store хранилище склада. Все чтения и изменения выполняются внутри InTx:
// изменения видны остальным только если fn вернула nil.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Tx операции над данными внутри одной транзакции.
// Get* для одиночных сущностей внутри транзакции блокируют строку до её завершения.
type Tx interface {
	RackGet(ctx context.Context, code string) (model.Rack, error)
	RackList(ctx context.Context) ([]model.Rack, error)
	RackPost(ctx context.Context, rack model.Rack) error
	RackPut(ctx context.Context, rack model.Rack) error

	ShipmentGet(ctx context.Context, id string) (model.Shipment, error)
	ShipmentPost(ctx context.Context, shipment model.Shipment) error
	ShipmentPut(ctx context.Context, shipment model.Shipment) error

	// BoxGet коробки отправления по возрастанию номера.
	BoxGet(ctx context.Context, shipmentID string) ([]model.Box, error)
	BoxPost(ctx context.Context, boxes []model.Box) error
	BoxPut(ctx context.Context, box model.Box) error

	SettingsGet(ctx context.Context) (model.BillingSettings, error)
	SettingsPut(ctx context.Context, settings model.BillingSettings) error

	// ChargeTypeList пустая category - все категории.
	ChargeTypeList(ctx context.Context, category string, activeOnly bool) ([]model.ChargeType, error)
	ChargeTypePost(ctx context.Context, chargeType model.ChargeType) error

	InvoiceNextSeq(ctx context.Context) (int, error)
	InvoiceGet(ctx context.Context, id string) (model.Invoice, error)
	InvoiceGetByNumber(ctx context.Context, number string) (model.Invoice, error)
	InvoicePost(ctx context.Context, invoice model.Invoice) error
	InvoicePut(ctx context.Context, invoice model.Invoice) error

	PaymentGet(ctx context.Context, invoiceID string) ([]model.Payment, error)
	PaymentGetByKey(ctx context.Context, invoiceID string, key string) (model.Payment, error)
	PaymentPost(ctx context.Context, payment model.Payment) error

	WithdrawalGet(ctx context.Context, shipmentID string) ([]model.Withdrawal, error)
	WithdrawalGetByRun(ctx context.Context, runID string) (model.Withdrawal, error)
	WithdrawalPost(ctx context.Context, withdrawal model.Withdrawal) error

	ReleaseRunGet(ctx context.Context, id string) (model.ReleaseRun, error)
	// ReleaseRunGetFailed незавершённые выдачи с ошибкой.
	ReleaseRunGetFailed(ctx context.Context) ([]model.ReleaseRun, error)
	ReleaseRunPost(ctx context.Context, run model.ReleaseRun) error
	ReleaseRunPut(ctx context.Context, run model.ReleaseRun) error
}

var (
	ErrNoRows        = errors.New("no rows")
	ErrAlreadyExists = errors.New("already exists")
)

// NewStore PostgreSQL при заданном DSN, иначе хранилище в памяти.
func NewStore(cfg config.Config) (Store, error) {
	if cfg.DBDsn == "" {
		return NewMemoryStore(), nil
	}
	return newPostgresStore(cfg.DBDsn)
}
