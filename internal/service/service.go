package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iurnickita/warehouse/internal/boxes"
	"github.com/iurnickita/warehouse/internal/catalog"
	"github.com/iurnickita/warehouse/internal/invoice"
	"github.com/iurnickita/warehouse/internal/lock"
	"github.com/iurnickita/warehouse/internal/model"
	"github.com/iurnickita/warehouse/internal/rack"
	"github.com/iurnickita/warehouse/internal/release"
	"github.com/iurnickita/warehouse/internal/service/config"
	"github.com/iurnickita/warehouse/internal/store"
)

type Service interface {
	CreateRack(ctx context.Context, rack model.Rack) (model.Rack, error)
	ListRacks(ctx context.Context) ([]model.Rack, error)

	CreateShipment(ctx context.Context, shipment model.Shipment) (model.Shipment, error)
	GetShipment(ctx context.Context, id string) (model.Shipment, []model.Box, error)
	AssignBoxes(ctx context.Context, shipmentID string, rackCode string, numbers []int) (model.Rack, error)
	ReleaseBoxes(ctx context.Context, in BoxRelease) (model.Withdrawal, model.Shipment, error)

	GetSettings(ctx context.Context) (model.BillingSettings, error)
	PutSettings(ctx context.Context, settings model.BillingSettings) (model.BillingSettings, error)
	ListChargeTypes(ctx context.Context, category string, activeOnly bool) ([]model.ChargeType, error)
	CreateChargeType(ctx context.Context, chargeType model.ChargeType) (model.ChargeType, error)

	CreateInvoice(ctx context.Context, shipmentID string, lines []model.LineItem, notes string) (model.Invoice, error)
	GetInvoice(ctx context.Context, id string) (model.Invoice, []model.Payment, error)
	GetInvoiceByNumber(ctx context.Context, number string) (model.Invoice, error)
	RecordPayment(ctx context.Context, invoiceID string, payment invoice.PaymentInput) (model.Invoice, error)

	CreateWithdrawal(ctx context.Context, withdrawal model.Withdrawal) (model.Withdrawal, error)
	ListWithdrawals(ctx context.Context, shipmentID string) ([]model.Withdrawal, error)

	DraftRelease(ctx context.Context, in release.DraftInput) (model.ReleaseRun, error)
	RedraftRelease(ctx context.Context, runID string, in release.DraftInput) (model.ReleaseRun, error)
	ExecuteRelease(ctx context.Context, runID string, decision model.ReleaseDecision) (model.ReleaseRecord, error)
	ResumeRelease(ctx context.Context, runID string) (model.ReleaseRecord, error)
	GetRelease(ctx context.Context, runID string) (model.ReleaseRun, error)

	// ReportFailed пишет в лог незавершённые выдачи до отмены ctx.
	ReportFailed(ctx context.Context)
	Close() error
}

// BoxRelease выдача коробок без счёта.
type BoxRelease struct {
	ShipmentID    string
	Selection     model.BoxSelection
	CollectorID   string
	ReleasePhotos []string
	ReleasedBy    string
	Notes         string
}

var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrCollectorID      = errors.New("collector ID is required for release")
	ErrReleasePhotos    = errors.New("release photos are required for release")
)

type service struct {
	cfg      config.Config
	store    store.Store
	rdb      *redis.Client
	racks    rack.Ledger
	registry boxes.Registry
	invoices invoice.Ledger
	catalog  catalog.Catalog
	locker   lock.Locker
	workflow release.Workflow
	zaplog   *zap.Logger
}

func NewService(cfg config.Config, store store.Store, zaplog *zap.Logger) (Service, error) {
	defaults, err := defaultSettings(cfg.Billing)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err = rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
	}

	racks := rack.NewLedger(store, zaplog)
	registry := boxes.NewRegistry(store, racks, zaplog)
	invoices := invoice.NewLedger(store, zaplog)
	catalog := catalog.NewCatalog(store, rdb, defaults, zaplog)
	locker := lock.NewLocker(rdb, cfg.LockTTL, zaplog)

	service := service{
		cfg:      cfg,
		store:    store,
		rdb:      rdb,
		racks:    racks,
		registry: registry,
		invoices: invoices,
		catalog:  catalog,
		locker:   locker,
		workflow: release.NewWorkflow(store, registry, invoices, catalog, locker, zaplog),
		zaplog:   zaplog,
	}
	return &service, nil
}

func defaultSettings(cfg config.Billing) (model.BillingSettings, error) {
	settings := model.BillingSettings{
		GracePeriodDays:       cfg.GracePeriodDays,
		Currency:              cfg.Currency,
		RequireIDVerification: cfg.RequireIDVerification,
		RequireReleasePhotos:  cfg.RequireReleasePhotos,
	}
	var err error
	if settings.StorageRatePerBox, err = parseDecimal(cfg.StorageRatePerBox); err != nil {
		return model.BillingSettings{}, fmt.Errorf("storage rate: %w", err)
	}
	if settings.TaxRate, err = parseDecimal(cfg.TaxRate); err != nil {
		return model.BillingSettings{}, fmt.Errorf("tax rate: %w", err)
	}
	if settings.MinimumCharge, err = parseDecimal(cfg.MinimumCharge); err != nil {
		return model.BillingSettings{}, fmt.Errorf("minimum charge: %w", err)
	}
	return settings, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// Стеллажи и отправления

func (s *service) CreateRack(ctx context.Context, rack model.Rack) (model.Rack, error) {
	return s.racks.Create(ctx, rack)
}

func (s *service) ListRacks(ctx context.Context) ([]model.Rack, error) {
	return s.racks.List(ctx)
}

func (s *service) CreateShipment(ctx context.Context, shipment model.Shipment) (model.Shipment, error) {
	return s.registry.CreateShipment(ctx, shipment)
}

func (s *service) GetShipment(ctx context.Context, id string) (model.Shipment, []model.Box, error) {
	return s.registry.GetShipment(ctx, id)
}

func (s *service) AssignBoxes(ctx context.Context, shipmentID string, rackCode string, numbers []int) (model.Rack, error) {
	return s.registry.AssignBoxes(ctx, shipmentID, rackCode, numbers)
}

// ReleaseBoxes выдаёт коробки и создаёт запись о выдаче в одной транзакции.
func (s *service) ReleaseBoxes(ctx context.Context, in BoxRelease) (model.Withdrawal, model.Shipment, error) {
	if in.ShipmentID == "" {
		return model.Withdrawal{}, model.Shipment{}, ErrInsufficientData
	}
	settings, err := s.catalog.Settings(ctx)
	if err != nil {
		return model.Withdrawal{}, model.Shipment{}, err
	}
	if settings.RequireIDVerification && in.CollectorID == "" {
		return model.Withdrawal{}, model.Shipment{}, ErrCollectorID
	}
	if settings.RequireReleasePhotos && len(in.ReleasePhotos) == 0 {
		return model.Withdrawal{}, model.Shipment{}, ErrReleasePhotos
	}

	unlock, err := s.locker.Obtain(ctx, "shipment:"+in.ShipmentID)
	if err != nil {
		return model.Withdrawal{}, model.Shipment{}, err
	}
	defer unlock()

	var withdrawal model.Withdrawal
	var shipment model.Shipment
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		now := time.Now().UTC()
		released, err := s.registry.ReleaseBoxes(ctx, tx, in.ShipmentID, in.Selection, now)
		if err != nil {
			return err
		}
		shipment = released.Shipment
		withdrawal = model.Withdrawal{
			ID:            uuid.NewString(),
			ShipmentID:    in.ShipmentID,
			BoxCount:      len(released.Numbers),
			BoxNumbers:    released.Numbers,
			WithdrawnBy:   in.ReleasedBy,
			CollectorID:   in.CollectorID,
			Reason:        "release",
			Notes:         in.Notes,
			ReleasePhotos: in.ReleasePhotos,
			Type:          released.Type,
			CreatedAt:     now,
		}
		return tx.WithdrawalPost(ctx, withdrawal)
	})
	if err != nil {
		return model.Withdrawal{}, model.Shipment{}, err
	}
	return withdrawal, shipment, nil
}

// Тарификация и счета

func (s *service) GetSettings(ctx context.Context) (model.BillingSettings, error) {
	return s.catalog.Settings(ctx)
}

func (s *service) PutSettings(ctx context.Context, settings model.BillingSettings) (model.BillingSettings, error) {
	return s.catalog.PutSettings(ctx, settings)
}

func (s *service) ListChargeTypes(ctx context.Context, category string, activeOnly bool) ([]model.ChargeType, error) {
	return s.catalog.ChargeTypes(ctx, category, activeOnly)
}

func (s *service) CreateChargeType(ctx context.Context, chargeType model.ChargeType) (model.ChargeType, error) {
	return s.catalog.CreateChargeType(ctx, chargeType)
}

func (s *service) CreateInvoice(ctx context.Context, shipmentID string, lines []model.LineItem, notes string) (model.Invoice, error) {
	if shipmentID == "" {
		return model.Invoice{}, ErrInsufficientData
	}
	settings, err := s.catalog.Settings(ctx)
	if err != nil {
		return model.Invoice{}, err
	}
	return s.invoices.CreateInvoice(ctx, shipmentID, lines, settings.Currency, notes)
}

func (s *service) GetInvoice(ctx context.Context, id string) (model.Invoice, []model.Payment, error) {
	return s.invoices.Get(ctx, id)
}

func (s *service) GetInvoiceByNumber(ctx context.Context, number string) (model.Invoice, error) {
	return s.invoices.GetByNumber(ctx, number)
}

func (s *service) RecordPayment(ctx context.Context, invoiceID string, payment invoice.PaymentInput) (model.Invoice, error) {
	return s.invoices.Pay(ctx, invoiceID, payment)
}

// Записи о выдаче

// CreateWithdrawal только запись о выдаче, коробки не меняются.
// Тип FULL, если на складе у отправления больше ничего не осталось.
func (s *service) CreateWithdrawal(ctx context.Context, withdrawal model.Withdrawal) (model.Withdrawal, error) {
	if withdrawal.ShipmentID == "" || withdrawal.BoxCount <= 0 {
		return model.Withdrawal{}, ErrInsufficientData
	}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		shipment, err := tx.ShipmentGet(ctx, withdrawal.ShipmentID)
		if errors.Is(err, store.ErrNoRows) {
			return fmt.Errorf("%w: %s", boxes.ErrShipmentNotFound, withdrawal.ShipmentID)
		}
		if err != nil {
			return err
		}
		if withdrawal.BoxCount > shipment.Data.OriginalBoxCount {
			return fmt.Errorf("%w: withdrawn %d of %d", boxes.ErrNotEnoughBoxes,
				withdrawal.BoxCount, shipment.Data.OriginalBoxCount)
		}

		withdrawal.ID = uuid.NewString()
		withdrawal.RunID = ""
		withdrawal.CreatedAt = time.Now().UTC()
		withdrawal.Type = model.ReleaseTypePartial
		if shipment.Data.CurrentBoxCount == 0 {
			withdrawal.Type = model.ReleaseTypeFull
		}
		return tx.WithdrawalPost(ctx, withdrawal)
	})
	if err != nil {
		return model.Withdrawal{}, err
	}
	return withdrawal, nil
}

func (s *service) ListWithdrawals(ctx context.Context, shipmentID string) ([]model.Withdrawal, error) {
	if shipmentID == "" {
		return nil, ErrInsufficientData
	}
	var list []model.Withdrawal
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		list, err = tx.WithdrawalGet(ctx, shipmentID)
		return err
	})
	return list, err
}

// Выдача со счётом

func (s *service) DraftRelease(ctx context.Context, in release.DraftInput) (model.ReleaseRun, error) {
	return s.workflow.Draft(ctx, in)
}

func (s *service) RedraftRelease(ctx context.Context, runID string, in release.DraftInput) (model.ReleaseRun, error) {
	return s.workflow.Redraft(ctx, runID, in)
}

func (s *service) ExecuteRelease(ctx context.Context, runID string, decision model.ReleaseDecision) (model.ReleaseRecord, error) {
	return s.workflow.Execute(ctx, runID, decision)
}

func (s *service) ResumeRelease(ctx context.Context, runID string) (model.ReleaseRecord, error) {
	return s.workflow.Resume(ctx, runID)
}

func (s *service) GetRelease(ctx context.Context, runID string) (model.ReleaseRun, error) {
	return s.workflow.Get(ctx, runID)
}

func (s *service) ReportFailed(ctx context.Context) {
	if s.cfg.ReportInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.ReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runs, err := s.workflow.Failed(ctx)
			if err != nil {
				s.zaplog.Error("failed releases report", zap.Error(err))
				continue
			}
			for _, run := range runs {
				s.zaplog.Warn("release needs reconciliation",
					zap.String("run", run.ID),
					zap.String("shipment", run.ShipmentID),
					zap.String("state", string(run.State)),
					zap.String("step", string(run.FailedStep)),
					zap.String("error", run.LastError),
					zap.Time("updated", run.UpdatedAt),
				)
			}
		}
	}
}

func (s *service) Close() error {
	if s.rdb != nil {
		return s.rdb.Close()
	}
	return nil
}
