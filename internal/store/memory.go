package store

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/iurnickita/warehouse/internal/model"
)

// MemoryStore хранилище в памяти. Транзакция работает над копией состояния
// и подменяет его при успехе, транзакции выполняются по очереди.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	racks       map[string]model.Rack
	shipments   map[string]model.Shipment
	boxes       map[string][]model.Box
	settings    *model.BillingSettings
	chargeTypes []model.ChargeType
	invoiceSeq  int
	invoices    map[string]model.Invoice
	payments    map[string][]model.Payment
	withdrawals []model.Withdrawal
	runs        map[string]model.ReleaseRun
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		racks:     make(map[string]model.Rack),
		shipments: make(map[string]model.Shipment),
		boxes:     make(map[string][]model.Box),
		invoices:  make(map[string]model.Invoice),
		payments:  make(map[string][]model.Payment),
		runs:      make(map[string]model.ReleaseRun),
	}}
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state.clone()
	if err := fn(&memTx{st: st}); err != nil {
		return err
	}
	s.state = st
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (st *memState) clone() *memState {
	c := &memState{
		racks:       make(map[string]model.Rack, len(st.racks)),
		shipments:   make(map[string]model.Shipment, len(st.shipments)),
		boxes:       make(map[string][]model.Box, len(st.boxes)),
		chargeTypes: slices.Clone(st.chargeTypes),
		invoiceSeq:  st.invoiceSeq,
		invoices:    make(map[string]model.Invoice, len(st.invoices)),
		payments:    make(map[string][]model.Payment, len(st.payments)),
		withdrawals: slices.Clone(st.withdrawals),
		runs:        make(map[string]model.ReleaseRun, len(st.runs)),
	}
	if st.settings != nil {
		settings := *st.settings
		c.settings = &settings
	}
	for k, v := range st.racks {
		c.racks[k] = v
	}
	for k, v := range st.shipments {
		c.shipments[k] = v
	}
	for k, v := range st.boxes {
		c.boxes[k] = slices.Clone(v)
	}
	for k, v := range st.invoices {
		c.invoices[k] = v
	}
	for k, v := range st.payments {
		c.payments[k] = slices.Clone(v)
	}
	for k, v := range st.runs {
		c.runs[k] = v
	}
	return c
}

type memTx struct {
	st *memState
}

func (tx *memTx) RackGet(_ context.Context, code string) (model.Rack, error) {
	rack, ok := tx.st.racks[code]
	if !ok {
		return model.Rack{}, ErrNoRows
	}
	return rack, nil
}

func (tx *memTx) RackList(_ context.Context) ([]model.Rack, error) {
	racks := make([]model.Rack, 0, len(tx.st.racks))
	for _, rack := range tx.st.racks {
		racks = append(racks, rack)
	}
	sort.Slice(racks, func(i, j int) bool { return racks[i].Code < racks[j].Code })
	return racks, nil
}

func (tx *memTx) RackPost(_ context.Context, rack model.Rack) error {
	if _, ok := tx.st.racks[rack.Code]; ok {
		return ErrAlreadyExists
	}
	tx.st.racks[rack.Code] = rack
	return nil
}

func (tx *memTx) RackPut(_ context.Context, rack model.Rack) error {
	if _, ok := tx.st.racks[rack.Code]; !ok {
		return ErrNoRows
	}
	tx.st.racks[rack.Code] = rack
	return nil
}

func (tx *memTx) ShipmentGet(_ context.Context, id string) (model.Shipment, error) {
	shipment, ok := tx.st.shipments[id]
	if !ok {
		return model.Shipment{}, ErrNoRows
	}
	return shipment, nil
}

func (tx *memTx) ShipmentPost(_ context.Context, shipment model.Shipment) error {
	if _, ok := tx.st.shipments[shipment.ID]; ok {
		return ErrAlreadyExists
	}
	tx.st.shipments[shipment.ID] = shipment
	return nil
}

func (tx *memTx) ShipmentPut(_ context.Context, shipment model.Shipment) error {
	if _, ok := tx.st.shipments[shipment.ID]; !ok {
		return ErrNoRows
	}
	tx.st.shipments[shipment.ID] = shipment
	return nil
}

func (tx *memTx) BoxGet(_ context.Context, shipmentID string) ([]model.Box, error) {
	return slices.Clone(tx.st.boxes[shipmentID]), nil
}

func (tx *memTx) BoxPost(_ context.Context, boxes []model.Box) error {
	for _, box := range boxes {
		list := tx.st.boxes[box.Key.Shipment]
		i, found := slices.BinarySearchFunc(list, box.Key.Number, func(b model.Box, n int) int { return b.Key.Number - n })
		if found {
			return ErrAlreadyExists
		}
		tx.st.boxes[box.Key.Shipment] = slices.Insert(list, i, box)
	}
	return nil
}

func (tx *memTx) BoxPut(_ context.Context, box model.Box) error {
	list := tx.st.boxes[box.Key.Shipment]
	i, found := slices.BinarySearchFunc(list, box.Key.Number, func(b model.Box, n int) int { return b.Key.Number - n })
	if !found {
		return ErrNoRows
	}
	list[i] = box
	return nil
}

func (tx *memTx) SettingsGet(_ context.Context) (model.BillingSettings, error) {
	if tx.st.settings == nil {
		return model.BillingSettings{}, ErrNoRows
	}
	return *tx.st.settings, nil
}

func (tx *memTx) SettingsPut(_ context.Context, settings model.BillingSettings) error {
	tx.st.settings = &settings
	return nil
}

func (tx *memTx) ChargeTypeList(_ context.Context, category string, activeOnly bool) ([]model.ChargeType, error) {
	var list []model.ChargeType
	for _, ct := range tx.st.chargeTypes {
		if category != "" && ct.Category != category {
			continue
		}
		if activeOnly && !ct.Active {
			continue
		}
		list = append(list, ct)
	}
	return list, nil
}

func (tx *memTx) ChargeTypePost(_ context.Context, chargeType model.ChargeType) error {
	for _, ct := range tx.st.chargeTypes {
		if ct.ID == chargeType.ID || ct.Code == chargeType.Code {
			return ErrAlreadyExists
		}
	}
	tx.st.chargeTypes = append(tx.st.chargeTypes, chargeType)
	return nil
}

func (tx *memTx) InvoiceNextSeq(_ context.Context) (int, error) {
	tx.st.invoiceSeq++
	return tx.st.invoiceSeq, nil
}

func (tx *memTx) InvoiceGet(_ context.Context, id string) (model.Invoice, error) {
	invoice, ok := tx.st.invoices[id]
	if !ok {
		return model.Invoice{}, ErrNoRows
	}
	return invoice, nil
}

func (tx *memTx) InvoiceGetByNumber(_ context.Context, number string) (model.Invoice, error) {
	for _, invoice := range tx.st.invoices {
		if invoice.Number == number {
			return invoice, nil
		}
	}
	return model.Invoice{}, ErrNoRows
}

func (tx *memTx) InvoicePost(_ context.Context, invoice model.Invoice) error {
	if _, ok := tx.st.invoices[invoice.ID]; ok {
		return ErrAlreadyExists
	}
	tx.st.invoices[invoice.ID] = invoice
	return nil
}

func (tx *memTx) InvoicePut(_ context.Context, invoice model.Invoice) error {
	if _, ok := tx.st.invoices[invoice.ID]; !ok {
		return ErrNoRows
	}
	tx.st.invoices[invoice.ID] = invoice
	return nil
}

func (tx *memTx) PaymentGet(_ context.Context, invoiceID string) ([]model.Payment, error) {
	return slices.Clone(tx.st.payments[invoiceID]), nil
}

func (tx *memTx) PaymentGetByKey(_ context.Context, invoiceID string, key string) (model.Payment, error) {
	for _, payment := range tx.st.payments[invoiceID] {
		if payment.IdempotencyKey != "" && payment.IdempotencyKey == key {
			return payment, nil
		}
	}
	return model.Payment{}, ErrNoRows
}

func (tx *memTx) PaymentPost(_ context.Context, payment model.Payment) error {
	for _, p := range tx.st.payments[payment.InvoiceID] {
		if p.ID == payment.ID || (payment.IdempotencyKey != "" && p.IdempotencyKey == payment.IdempotencyKey) {
			return ErrAlreadyExists
		}
	}
	tx.st.payments[payment.InvoiceID] = append(tx.st.payments[payment.InvoiceID], payment)
	return nil
}

func (tx *memTx) WithdrawalGet(_ context.Context, shipmentID string) ([]model.Withdrawal, error) {
	var list []model.Withdrawal
	for _, w := range tx.st.withdrawals {
		if w.ShipmentID == shipmentID {
			list = append(list, w)
		}
	}
	return list, nil
}

func (tx *memTx) WithdrawalGetByRun(_ context.Context, runID string) (model.Withdrawal, error) {
	for _, w := range tx.st.withdrawals {
		if runID != "" && w.RunID == runID {
			return w, nil
		}
	}
	return model.Withdrawal{}, ErrNoRows
}

func (tx *memTx) WithdrawalPost(_ context.Context, withdrawal model.Withdrawal) error {
	for _, w := range tx.st.withdrawals {
		if w.ID == withdrawal.ID || (withdrawal.RunID != "" && w.RunID == withdrawal.RunID) {
			return ErrAlreadyExists
		}
	}
	tx.st.withdrawals = append(tx.st.withdrawals, withdrawal)
	return nil
}

func (tx *memTx) ReleaseRunGet(_ context.Context, id string) (model.ReleaseRun, error) {
	run, ok := tx.st.runs[id]
	if !ok {
		return model.ReleaseRun{}, ErrNoRows
	}
	return run, nil
}

func (tx *memTx) ReleaseRunGetFailed(_ context.Context) ([]model.ReleaseRun, error) {
	var list []model.ReleaseRun
	for _, run := range tx.st.runs {
		if run.State != model.ReleaseStateDone && run.LastError != "" {
			list = append(list, run)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UpdatedAt.Before(list[j].UpdatedAt) })
	return list, nil
}

func (tx *memTx) ReleaseRunPost(_ context.Context, run model.ReleaseRun) error {
	if _, ok := tx.st.runs[run.ID]; ok {
		return ErrAlreadyExists
	}
	tx.st.runs[run.ID] = run
	return nil
}

func (tx *memTx) ReleaseRunPut(_ context.Context, run model.ReleaseRun) error {
	if _, ok := tx.st.runs[run.ID]; !ok {
		return ErrNoRows
	}
	tx.st.runs[run.ID] = run
	return nil
}
