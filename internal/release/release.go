// Package release выдача отправления клиенту: расчёт счёта, решение об оплате,
// выдача коробок и запись о выдаче.
//
// Выдача хранится как ReleaseRun и проходит состояния
// DRAFTING_INVOICE → AWAITING_PAYMENT_DECISION → PAYING | DEBT → RELEASING → DONE.
// Счёт с оплатой и выдача коробок с записью о выдаче выполняются каждый в своей
// транзакции вместе с переходом состояния, поэтому прерванную выдачу можно продолжить.
package release

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/iurnickita/warehouse/internal/boxes"
	"github.com/iurnickita/warehouse/internal/catalog"
	"github.com/iurnickita/warehouse/internal/charges"
	"github.com/iurnickita/warehouse/internal/invoice"
	"github.com/iurnickita/warehouse/internal/lock"
	"github.com/iurnickita/warehouse/internal/model"
	"github.com/iurnickita/warehouse/internal/store"
)

type Workflow interface {
	Draft(ctx context.Context, in DraftInput) (model.ReleaseRun, error)
	Redraft(ctx context.Context, runID string, in DraftInput) (model.ReleaseRun, error)
	Execute(ctx context.Context, runID string, decision model.ReleaseDecision) (model.ReleaseRecord, error)
	Resume(ctx context.Context, runID string) (model.ReleaseRecord, error)
	Get(ctx context.Context, runID string) (model.ReleaseRun, error)
	// Failed незавершённые выдачи с ошибкой.
	Failed(ctx context.Context) ([]model.ReleaseRun, error)
}

type DraftInput struct {
	ShipmentID string
	Selection  model.BoxSelection
	// ChargeTypeIDs nil - начисления с autoApply.
	ChargeTypeIDs []string
	Custom        *model.CustomCharge
	CreatedBy     string
}

const defaultPaymentMethod = "CASH"

var transitions = map[model.ReleaseState][]model.ReleaseState{
	model.ReleaseStateDrafting: {model.ReleaseStateAwaiting},
	model.ReleaseStateAwaiting: {model.ReleaseStateDrafting, model.ReleaseStatePaying, model.ReleaseStateDebt},
	model.ReleaseStatePaying:   {model.ReleaseStateRelease},
	model.ReleaseStateDebt:     {model.ReleaseStateRelease},
	model.ReleaseStateRelease:  {model.ReleaseStateDone},
}

type workflow struct {
	store    store.Store
	registry boxes.Registry
	invoices invoice.Ledger
	catalog  catalog.Catalog
	locker   lock.Locker
	group    singleflight.Group
	zaplog   *zap.Logger
	now      func() time.Time
}

func NewWorkflow(store store.Store, registry boxes.Registry, invoices invoice.Ledger, catalog catalog.Catalog, locker lock.Locker, zaplog *zap.Logger) Workflow {
	return &workflow{
		store:    store,
		registry: registry,
		invoices: invoices,
		catalog:  catalog,
		locker:   locker,
		zaplog:   zaplog,
		now:      time.Now,
	}
}

func (w *workflow) Draft(ctx context.Context, in DraftInput) (model.ReleaseRun, error) {
	if in.ShipmentID == "" {
		return model.ReleaseRun{}, validationf("shipmentId is required")
	}
	now := w.now().UTC()
	run := model.ReleaseRun{
		ID:         uuid.NewString(),
		ShipmentID: in.ShipmentID,
		State:      model.ReleaseStateDrafting,
		CreatedBy:  in.CreatedBy,
		CreatedAt:  now,
	}

	ref, err := w.reference(ctx)
	if err != nil {
		return model.ReleaseRun{}, err
	}
	err = w.store.InTx(ctx, func(tx store.Tx) error {
		if err := w.compute(ctx, tx, &run, in, ref); err != nil {
			return err
		}
		return tx.ReleaseRunPost(ctx, run)
	})
	if err != nil {
		return model.ReleaseRun{}, err
	}
	w.zaplog.Info("release drafted",
		zap.String("run", run.ID),
		zap.String("shipment", run.ShipmentID),
		zap.Int("boxes", run.Draft.BoxesToRelease),
		zap.String("total", run.Draft.Total.StringFixed(model.MoneyPlaces)),
	)
	return run, nil
}

// Redraft пересчитывает счёт с новой выборкой, пока решение об оплате не принято.
func (w *workflow) Redraft(ctx context.Context, runID string, in DraftInput) (model.ReleaseRun, error) {
	ref, err := w.reference(ctx)
	if err != nil {
		return model.ReleaseRun{}, err
	}
	var run model.ReleaseRun
	err = w.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if run, err = getRun(ctx, tx, runID); err != nil {
			return err
		}
		if in.ShipmentID != "" && in.ShipmentID != run.ShipmentID {
			return validationf("release %s belongs to shipment %s", run.ID, run.ShipmentID)
		}
		if err = transition(&run, model.ReleaseStateDrafting); err != nil {
			return err
		}
		if err = w.compute(ctx, tx, &run, in, ref); err != nil {
			return err
		}
		return tx.ReleaseRunPut(ctx, run)
	})
	if err != nil {
		return model.ReleaseRun{}, err
	}
	return run, nil
}

// reference настройки и активные начисления на момент расчёта.
type reference struct {
	settings model.BillingSettings
	catalog  []model.ChargeType
}

// reference читается до транзакции выдачи: справочник работает в своих транзакциях.
func (w *workflow) reference(ctx context.Context) (reference, error) {
	var ref reference
	var err error
	if ref.settings, err = w.catalog.Settings(ctx); err != nil {
		return reference{}, err
	}
	if ref.catalog, err = w.catalog.ChargeTypes(ctx, model.ChargeCategoryRelease, true); err != nil {
		return reference{}, err
	}
	return ref, nil
}

// compute DRAFTING_INVOICE → AWAITING_PAYMENT_DECISION. Настройки фиксируются в выдаче.
func (w *workflow) compute(ctx context.Context, tx store.Tx, run *model.ReleaseRun, in DraftInput, ref reference) error {
	selected := in.ChargeTypeIDs
	if selected == nil {
		selected = charges.AutoApplied(ref.catalog)
	}

	shipment, err := tx.ShipmentGet(ctx, run.ShipmentID)
	if errors.Is(err, store.ErrNoRows) {
		return fmt.Errorf("%w: %s", boxes.ErrShipmentNotFound, run.ShipmentID)
	}
	if err != nil {
		return err
	}
	shipmentBoxes, err := tx.BoxGet(ctx, run.ShipmentID)
	if err != nil {
		return err
	}
	numbers, err := boxes.Select(shipmentBoxes, in.Selection)
	if err != nil {
		return err
	}

	draft, err := charges.Compute(charges.Request{
		Shipment: shipment,
		Boxes:    len(numbers),
		Selected: selected,
		Catalog:  ref.catalog,
		Settings: ref.settings,
		Custom:   in.Custom,
		Now:      w.now().UTC(),
	})
	if err != nil {
		return err
	}

	run.Selection = in.Selection
	run.ChargeTypeIDs = selected
	run.Custom = in.Custom
	run.Settings = ref.settings
	run.Draft = draft
	run.LastError = ""
	run.FailedStep = ""
	run.UpdatedAt = w.now().UTC()
	return transition(run, model.ReleaseStateAwaiting)
}

func (w *workflow) Execute(ctx context.Context, runID string, decision model.ReleaseDecision) (model.ReleaseRecord, error) {
	// Повторная отправка того же решения, пока первое выполняется, получает его результат
	v, err, _ := w.group.Do(runID, func() (any, error) {
		return w.execute(ctx, runID, decision)
	})
	if err != nil {
		return model.ReleaseRecord{}, err
	}
	return v.(model.ReleaseRecord), nil
}

func (w *workflow) Resume(ctx context.Context, runID string) (model.ReleaseRecord, error) {
	v, err, _ := w.group.Do(runID, func() (any, error) {
		run, err := w.Get(ctx, runID)
		if err != nil {
			return model.ReleaseRecord{}, err
		}
		if run.State == model.ReleaseStateAwaiting || run.State == model.ReleaseStateDrafting {
			return model.ReleaseRecord{}, fmt.Errorf("%w: %s awaits a payment decision", ErrInvalidState, run.ID)
		}
		unlock, err := w.locker.Obtain(ctx, shipmentKey(run.ShipmentID))
		if err != nil {
			return model.ReleaseRecord{}, err
		}
		defer unlock()

		w.zaplog.Info("release resumed", zap.String("run", run.ID), zap.String("state", string(run.State)))
		return w.advance(ctx, run.ID)
	})
	if err != nil {
		return model.ReleaseRecord{}, err
	}
	return v.(model.ReleaseRecord), nil
}

func (w *workflow) execute(ctx context.Context, runID string, decision model.ReleaseDecision) (model.ReleaseRecord, error) {
	run, err := w.Get(ctx, runID)
	if err != nil {
		return model.ReleaseRecord{}, err
	}
	switch run.State {
	case model.ReleaseStateDone:
		return w.record(ctx, run.ID)
	case model.ReleaseStateAwaiting:
	default:
		return model.ReleaseRecord{}, fmt.Errorf("%w: %s is %s", ErrInvalidState, run.ID, run.State)
	}

	if decision, err = checkDecision(run, decision); err != nil {
		return model.ReleaseRecord{}, err
	}

	unlock, err := w.locker.Obtain(ctx, shipmentKey(run.ShipmentID))
	if err != nil {
		return model.ReleaseRecord{}, err
	}
	defer unlock()

	// settle атомарен: при ошибке выдача остаётся в AWAITING_PAYMENT_DECISION без следов
	if err = w.settle(ctx, run.ID, decision); err != nil {
		w.zaplog.Warn("release settlement rejected", zap.String("run", run.ID), zap.Error(err))
		return model.ReleaseRecord{}, err
	}
	return w.advance(ctx, run.ID)
}

// settle AWAITING_PAYMENT_DECISION → PAYING | DEBT → RELEASING: счёт, оплата и решение
// в одной транзакции. Ошибка ничего не меняет.
func (w *workflow) settle(ctx context.Context, runID string, decision model.ReleaseDecision) error {
	return w.store.InTx(ctx, func(tx store.Tx) error {
		run, err := getRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		if run.State != model.ReleaseStateAwaiting {
			return fmt.Errorf("%w: %s is %s", ErrInvalidState, run.ID, run.State)
		}

		shipment, err := tx.ShipmentGet(ctx, run.ShipmentID)
		if err != nil {
			return err
		}
		shipmentBoxes, err := tx.BoxGet(ctx, run.ShipmentID)
		if err != nil {
			return err
		}
		// Коробки могли выдать в обход этой выдачи
		numbers, err := boxes.Select(shipmentBoxes, run.Selection)
		if err != nil || len(numbers) != run.Draft.BoxesToRelease {
			return validationf("boxes in storage changed since the invoice was drafted, redraft release %s", run.ID)
		}

		if err = transition(&run, stateFor(decision.Option)); err != nil {
			return err
		}
		run.Decision = &decision

		inv, err := w.invoices.Create(ctx, tx, shipment, run.Draft, run.Settings.Currency, decision.Notes)
		if err != nil {
			return err
		}
		run.InvoiceID = inv.ID

		if run.State == model.ReleaseStatePaying && decision.Amount.IsPositive() {
			_, err = w.invoices.RecordPayment(ctx, tx, inv.ID, invoice.PaymentInput{
				Amount:         decision.Amount,
				Method:         decision.Method,
				TransactionRef: decision.TransactionRef,
				ReceiptNumber:  decision.ReceiptNumber,
				IdempotencyKey: run.ID,
			})
			if err != nil {
				return err
			}
		}

		if err = transition(&run, model.ReleaseStateRelease); err != nil {
			return err
		}
		run.FailedStep = ""
		run.LastError = ""
		run.UpdatedAt = w.now().UTC()
		return tx.ReleaseRunPut(ctx, run)
	})
}

// advance доводит выдачу до DONE начиная с сохранённого состояния.
func (w *workflow) advance(ctx context.Context, runID string) (model.ReleaseRecord, error) {
	run, err := w.Get(ctx, runID)
	if err != nil {
		return model.ReleaseRecord{}, err
	}
	if run.State == model.ReleaseStateRelease {
		if err = w.releaseBoxes(ctx, run.ID); err != nil {
			w.fail(ctx, run.ID, model.ReleaseStateRelease, err)
			return model.ReleaseRecord{}, &PartialFailureError{RunID: run.ID, Step: model.ReleaseStateRelease, Err: err}
		}
		run.State = model.ReleaseStateDone
	}
	if run.State != model.ReleaseStateDone {
		return model.ReleaseRecord{}, fmt.Errorf("%w: %s is %s", ErrInvalidState, run.ID, run.State)
	}
	return w.record(ctx, run.ID)
}

// releaseBoxes RELEASING → DONE: коробки, стеллажи и запись о выдаче в одной транзакции.
// Запись о выдаче уникальна для выдачи, повтор шага её не дублирует.
func (w *workflow) releaseBoxes(ctx context.Context, runID string) error {
	return w.store.InTx(ctx, func(tx store.Tx) error {
		run, err := getRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		if run.State != model.ReleaseStateRelease {
			return fmt.Errorf("%w: %s is %s", ErrInvalidState, run.ID, run.State)
		}
		decision := model.ReleaseDecision{}
		if run.Decision != nil {
			decision = *run.Decision
		}

		withdrawal, err := tx.WithdrawalGetByRun(ctx, run.ID)
		switch {
		case err == nil:
			w.zaplog.Info("withdrawal already recorded", zap.String("run", run.ID))
		case errors.Is(err, store.ErrNoRows):
			shipmentBoxes, err := tx.BoxGet(ctx, run.ShipmentID)
			if err != nil {
				return err
			}
			// Счёт оплачен за BoxesToRelease коробок, выдать меньше нельзя
			numbers, err := boxes.Select(shipmentBoxes, run.Selection)
			if err != nil || len(numbers) != run.Draft.BoxesToRelease {
				return fmt.Errorf("%w: invoiced %d boxes of release %s", ErrBoxesChanged, run.Draft.BoxesToRelease, run.ID)
			}
			now := w.now().UTC()
			released, err := w.registry.ReleaseBoxes(ctx, tx, run.ShipmentID, run.Selection, now)
			if err != nil {
				return err
			}
			withdrawal = model.Withdrawal{
				ID:            uuid.NewString(),
				ShipmentID:    run.ShipmentID,
				RunID:         run.ID,
				InvoiceID:     run.InvoiceID,
				BoxCount:      len(released.Numbers),
				BoxNumbers:    released.Numbers,
				WithdrawnBy:   withdrawnBy(run, decision),
				CollectorID:   decision.CollectorID,
				Reason:        "release",
				Notes:         decision.Notes,
				ReceiptNumber: decision.ReceiptNumber,
				ReleasePhotos: decision.ReleasePhotos,
				Type:          released.Type,
				CreatedAt:     now,
			}
			if err = tx.WithdrawalPost(ctx, withdrawal); err != nil {
				return err
			}
		default:
			return err
		}

		if err = transition(&run, model.ReleaseStateDone); err != nil {
			return err
		}
		run.WithdrawalID = withdrawal.ID
		run.FailedStep = ""
		run.LastError = ""
		run.UpdatedAt = w.now().UTC()
		return tx.ReleaseRunPut(ctx, run)
	})
}

// fail сохраняет шаг и ошибку, чтобы выдачу было видно среди незавершённых.
func (w *workflow) fail(ctx context.Context, runID string, step model.ReleaseState, cause error) {
	var validation *ValidationError
	if errors.As(cause, &validation) {
		return
	}
	w.zaplog.Error("release step failed",
		zap.String("run", runID),
		zap.String("step", string(step)),
		zap.Error(cause),
	)
	ctx = context.WithoutCancel(ctx)
	err := w.store.InTx(ctx, func(tx store.Tx) error {
		run, err := getRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		run.FailedStep = step
		run.LastError = cause.Error()
		run.UpdatedAt = w.now().UTC()
		return tx.ReleaseRunPut(ctx, run)
	})
	if err != nil {
		w.zaplog.Error("release failure not saved", zap.String("run", runID), zap.Error(err))
	}
}

func (w *workflow) record(ctx context.Context, runID string) (model.ReleaseRecord, error) {
	var rec model.ReleaseRecord
	err := w.store.InTx(ctx, func(tx store.Tx) error {
		run, err := getRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		withdrawal, err := tx.WithdrawalGetByRun(ctx, run.ID)
		if err != nil {
			return err
		}
		inv, err := tx.InvoiceGet(ctx, run.InvoiceID)
		if err != nil {
			return err
		}
		rec = model.ReleaseRecord{
			RunID:         run.ID,
			ShipmentID:    run.ShipmentID,
			WithdrawalID:  withdrawal.ID,
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.Number,
			PaymentStatus: inv.Status,
			BoxNumbers:    withdrawal.BoxNumbers,
			Type:          withdrawal.Type,
			CollectorID:   withdrawal.CollectorID,
			ReleasedBy:    withdrawal.WithdrawnBy,
			ReleasedAt:    withdrawal.CreatedAt,
		}
		return nil
	})
	return rec, err
}

func (w *workflow) Get(ctx context.Context, runID string) (model.ReleaseRun, error) {
	var run model.ReleaseRun
	err := w.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		run, err = getRun(ctx, tx, runID)
		return err
	})
	return run, err
}

func (w *workflow) Failed(ctx context.Context) ([]model.ReleaseRun, error) {
	var runs []model.ReleaseRun
	err := w.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		runs, err = tx.ReleaseRunGetFailed(ctx)
		return err
	})
	return runs, err
}

// checkDecision проверяет решение об оплате и условия выдачи по настройкам выдачи.
func checkDecision(run model.ReleaseRun, d model.ReleaseDecision) (model.ReleaseDecision, error) {
	total := run.Draft.Total
	d.Amount = d.Amount.Round(model.MoneyPlaces)

	switch d.Option {
	case model.PaymentOptionFull:
		if !d.Amount.Equal(total) {
			return d, validationf("full payment must equal the invoice total %s, got %s",
				total.StringFixed(model.MoneyPlaces), d.Amount.StringFixed(model.MoneyPlaces))
		}
	case model.PaymentOptionPartial:
		if !d.Amount.IsPositive() || !d.Amount.LessThan(total) {
			return d, validationf("partial payment must be above 0 and below %s, got %s",
				total.StringFixed(model.MoneyPlaces), d.Amount.StringFixed(model.MoneyPlaces))
		}
	case model.PaymentOptionDebt:
		d.Amount = decimal.Zero
	default:
		return d, validationf("unknown payment option %q", d.Option)
	}
	if d.Option != model.PaymentOptionDebt && d.Method == "" {
		d.Method = defaultPaymentMethod
	}

	if run.Settings.RequireIDVerification && d.CollectorID == "" {
		return d, validationf("collector ID is required for release")
	}
	if run.Settings.RequireReleasePhotos && len(d.ReleasePhotos) == 0 {
		return d, validationf("release photos are required for release")
	}
	return d, nil
}

func transition(run *model.ReleaseRun, to model.ReleaseState) error {
	for _, next := range transitions[run.State] {
		if next == to {
			run.State = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s cannot move from %s to %s", ErrInvalidState, run.ID, run.State, to)
}

func stateFor(option model.PaymentOption) model.ReleaseState {
	if option == model.PaymentOptionDebt {
		return model.ReleaseStateDebt
	}
	return model.ReleaseStatePaying
}

func withdrawnBy(run model.ReleaseRun, d model.ReleaseDecision) string {
	if d.ReleasedBy != "" {
		return d.ReleasedBy
	}
	return run.CreatedBy
}

func shipmentKey(id string) string {
	return "shipment:" + id
}

func getRun(ctx context.Context, tx store.Tx, id string) (model.ReleaseRun, error) {
	run, err := tx.ReleaseRunGet(ctx, id)
	if errors.Is(err, store.ErrNoRows) {
		return model.ReleaseRun{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}
