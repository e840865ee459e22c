package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/iurnickita/warehouse/internal/model"
)

type postgresStore struct {
	database *sql.DB
}

// querier общее у *sql.DB и *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var schema = []string{
	// Стеллажи. Ограничение повторяет инвариант 0 <= used <= total
	"CREATE TABLE IF NOT EXISTS rack (" +
		" code VARCHAR (30) PRIMARY KEY," +
		" location VARCHAR (100) NOT NULL," +
		" capacity_total INTEGER NOT NULL," +
		" capacity_used INTEGER NOT NULL," +
		" status VARCHAR (10) NOT NULL," +
		" CHECK (capacity_used >= 0 AND capacity_used <= capacity_total)" +
		" );",
	// Отправления
	"CREATE TABLE IF NOT EXISTS shipment (" +
		" id VARCHAR (40) PRIMARY KEY," +
		" qr_code VARCHAR (100) NOT NULL," +
		" client_name VARCHAR (100) NOT NULL," +
		" client_phone VARCHAR (30) NOT NULL," +
		" client_email VARCHAR (100) NOT NULL," +
		" original_box_count INTEGER NOT NULL," +
		" current_box_count INTEGER NOT NULL," +
		" arrival_date TIMESTAMP," +
		" received_date TIMESTAMP," +
		" status VARCHAR (12) NOT NULL," +
		" rack_code VARCHAR (30) NOT NULL," +
		" created_at TIMESTAMP NOT NULL," +
		" CHECK (current_box_count >= 0 AND current_box_count <= original_box_count)" +
		" );",
	// Коробки
	"CREATE TABLE IF NOT EXISTS box (" +
		" shipment_id VARCHAR (40) NOT NULL," +
		" box_number INTEGER NOT NULL," +
		" status VARCHAR (12) NOT NULL," +
		" rack_code VARCHAR (30) NOT NULL," +
		" released_at TIMESTAMP," +
		" PRIMARY KEY (shipment_id, box_number)" +
		" );",
	// Настройки тарификации. Одна строка
	"CREATE TABLE IF NOT EXISTS billing_settings (" +
		" id INTEGER PRIMARY KEY," +
		" data JSONB NOT NULL" +
		" );",
	"CREATE TABLE IF NOT EXISTS charge_type (" +
		" id VARCHAR (40) PRIMARY KEY," +
		" code VARCHAR (30) NOT NULL UNIQUE," +
		" name VARCHAR (100) NOT NULL," +
		" category VARCHAR (20) NOT NULL," +
		" kind VARCHAR (20) NOT NULL," +
		" rate NUMERIC (14, 3) NOT NULL," +
		" min_charge NUMERIC (14, 3)," +
		" max_charge NUMERIC (14, 3)," +
		" taxable BOOLEAN NOT NULL," +
		" auto_apply BOOLEAN NOT NULL," +
		" active BOOLEAN NOT NULL," +
		" created_at TIMESTAMP NOT NULL DEFAULT now()" +
		" );",
	"CREATE SEQUENCE IF NOT EXISTS invoice_seq;",
	// Счета. Строки счёта хранятся снимком вместе со счётом
	"CREATE TABLE IF NOT EXISTS invoice (" +
		" id VARCHAR (40) PRIMARY KEY," +
		" number VARCHAR (20) NOT NULL UNIQUE," +
		" shipment_id VARCHAR (40) NOT NULL," +
		" client_name VARCHAR (100) NOT NULL," +
		" client_phone VARCHAR (30) NOT NULL," +
		" client_email VARCHAR (100) NOT NULL," +
		" lines JSONB NOT NULL," +
		" subtotal NUMERIC (14, 3) NOT NULL," +
		" tax_amount NUMERIC (14, 3) NOT NULL," +
		" total_amount NUMERIC (14, 3) NOT NULL," +
		" paid_amount NUMERIC (14, 3) NOT NULL," +
		" currency VARCHAR (3) NOT NULL," +
		" status VARCHAR (10) NOT NULL," +
		" notes TEXT NOT NULL," +
		" created_at TIMESTAMP NOT NULL," +
		" updated_at TIMESTAMP NOT NULL," +
		" CHECK (paid_amount >= 0 AND paid_amount <= total_amount)" +
		" );",
	// Оплаты. Журнал, записи не изменяются
	"CREATE TABLE IF NOT EXISTS payment (" +
		" id VARCHAR (40) PRIMARY KEY," +
		" invoice_id VARCHAR (40) NOT NULL," +
		" amount NUMERIC (14, 3) NOT NULL," +
		" method VARCHAR (30) NOT NULL," +
		" transaction_ref VARCHAR (100) NOT NULL," +
		" receipt_number VARCHAR (40) NOT NULL," +
		" idempotency_key VARCHAR (64)," +
		" created_at TIMESTAMP NOT NULL," +
		" UNIQUE (invoice_id, idempotency_key)" +
		" );",
	"CREATE TABLE IF NOT EXISTS withdrawal (" +
		" id VARCHAR (40) PRIMARY KEY," +
		" shipment_id VARCHAR (40) NOT NULL," +
		" run_id VARCHAR (40) UNIQUE," +
		" invoice_id VARCHAR (40) NOT NULL," +
		" box_count INTEGER NOT NULL," +
		" box_numbers JSONB NOT NULL," +
		" withdrawn_by VARCHAR (40) NOT NULL," +
		" collector_id VARCHAR (40) NOT NULL," +
		" reason VARCHAR (100) NOT NULL," +
		" notes TEXT NOT NULL," +
		" receipt_number VARCHAR (40) NOT NULL," +
		" release_photos JSONB NOT NULL," +
		" type VARCHAR (10) NOT NULL," +
		" created_at TIMESTAMP NOT NULL" +
		" );",
	// Маркер незавершённой выдачи
	"CREATE TABLE IF NOT EXISTS release_run (" +
		" id VARCHAR (40) PRIMARY KEY," +
		" shipment_id VARCHAR (40) NOT NULL," +
		" state VARCHAR (30) NOT NULL," +
		" selection JSONB NOT NULL," +
		" charge_type_ids JSONB NOT NULL," +
		" custom JSONB NOT NULL," +
		" settings JSONB NOT NULL," +
		" draft JSONB NOT NULL," +
		" decision JSONB NOT NULL," +
		" invoice_id VARCHAR (40) NOT NULL," +
		" withdrawal_id VARCHAR (40) NOT NULL," +
		" failed_step VARCHAR (30) NOT NULL," +
		" last_error TEXT NOT NULL," +
		" created_by VARCHAR (40) NOT NULL," +
		" created_at TIMESTAMP NOT NULL," +
		" updated_at TIMESTAMP NOT NULL" +
		" );",
}

func newPostgresStore(dsn string) (Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	for _, stmt := range schema {
		if _, err = db.Exec(stmt); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &postgresStore{database: db}, nil
}

func (store *postgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := store.database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err = fn(&pgTx{q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (store *postgresStore) Close() error {
	return store.database.Close()
}

type pgTx struct {
	q querier
}

// Стеллажи

func (tx *pgTx) RackGet(ctx context.Context, code string) (model.Rack, error) {
	row := tx.q.QueryRowContext(ctx,
		"SELECT code, location, capacity_total, capacity_used, status"+
			" FROM rack"+
			" WHERE code = $1"+
			" FOR UPDATE",
		code)
	var rack model.Rack
	err := row.Scan(&rack.Code,
		&rack.Data.Location,
		&rack.Data.CapacityTotal,
		&rack.Data.CapacityUsed,
		&rack.Data.Status)
	return rack, noRows(err)
}

func (tx *pgTx) RackList(ctx context.Context) ([]model.Rack, error) {
	rows, err := tx.q.QueryContext(ctx,
		"SELECT code, location, capacity_total, capacity_used, status"+
			" FROM rack ORDER BY code")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var racks []model.Rack
	for rows.Next() {
		var rack model.Rack
		err := rows.Scan(&rack.Code,
			&rack.Data.Location,
			&rack.Data.CapacityTotal,
			&rack.Data.CapacityUsed,
			&rack.Data.Status)
		if err != nil {
			return nil, err
		}
		racks = append(racks, rack)
	}
	return racks, rows.Err()
}

func (tx *pgTx) RackPost(ctx context.Context, rack model.Rack) error {
	_, err := tx.q.ExecContext(ctx,
		"INSERT INTO rack (code, location, capacity_total, capacity_used, status)"+
			" VALUES ($1, $2, $3, $4, $5)",
		rack.Code,
		rack.Data.Location,
		rack.Data.CapacityTotal,
		rack.Data.CapacityUsed,
		rack.Data.Status)
	return uniqueViolation(err)
}

func (tx *pgTx) RackPut(ctx context.Context, rack model.Rack) error {
	res, err := tx.q.ExecContext(ctx,
		"UPDATE rack"+
			" SET location = $1, capacity_total = $2, capacity_used = $3, status = $4"+
			" WHERE code = $5",
		rack.Data.Location,
		rack.Data.CapacityTotal,
		rack.Data.CapacityUsed,
		rack.Data.Status,
		rack.Code)
	return affected(res, err)
}

// Отправления и коробки

func (tx *pgTx) ShipmentGet(ctx context.Context, id string) (model.Shipment, error) {
	row := tx.q.QueryRowContext(ctx,
		"SELECT id, qr_code, client_name, client_phone, client_email, original_box_count,"+
			" current_box_count, arrival_date, received_date, status, rack_code, created_at"+
			" FROM shipment"+
			" WHERE id = $1"+
			" FOR UPDATE",
		id)
	var shipment model.Shipment
	var arrival, received sql.NullTime
	err := row.Scan(&shipment.ID,
		&shipment.Data.QRCode,
		&shipment.Data.Client.Name,
		&shipment.Data.Client.Phone,
		&shipment.Data.Client.Email,
		&shipment.Data.OriginalBoxCount,
		&shipment.Data.CurrentBoxCount,
		&arrival,
		&received,
		&shipment.Data.Status,
		&shipment.Data.RackCode,
		&shipment.Data.CreatedAt)
	if err != nil {
		return model.Shipment{}, noRows(err)
	}
	shipment.Data.ArrivalDate = arrival.Time
	shipment.Data.ReceivedDate = received.Time
	return shipment, nil
}

func (tx *pgTx) ShipmentPost(ctx context.Context, shipment model.Shipment) error {
	_, err := tx.q.ExecContext(ctx,
		"INSERT INTO shipment (id, qr_code, client_name, client_phone, client_email, original_box_count,"+
			" current_box_count, arrival_date, received_date, status, rack_code, created_at)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)",
		shipment.ID,
		shipment.Data.QRCode,
		shipment.Data.Client.Name,
		shipment.Data.Client.Phone,
		shipment.Data.Client.Email,
		shipment.Data.OriginalBoxCount,
		shipment.Data.CurrentBoxCount,
		nullTime(shipment.Data.ArrivalDate),
		nullTime(shipment.Data.ReceivedDate),
		shipment.Data.Status,
		shipment.Data.RackCode,
		shipment.Data.CreatedAt)
	return uniqueViolation(err)
}

func (tx *pgTx) ShipmentPut(ctx context.Context, shipment model.Shipment) error {
	res, err := tx.q.ExecContext(ctx,
		"UPDATE shipment"+
			" SET current_box_count = $1, status = $2, rack_code = $3"+
			" WHERE id = $4",
		shipment.Data.CurrentBoxCount,
		shipment.Data.Status,
		shipment.Data.RackCode,
		shipment.ID)
	return affected(res, err)
}

func (tx *pgTx) BoxGet(ctx context.Context, shipmentID string) ([]model.Box, error) {
	rows, err := tx.q.QueryContext(ctx,
		"SELECT shipment_id, box_number, status, rack_code, released_at"+
			" FROM box"+
			" WHERE shipment_id = $1"+
			" ORDER BY box_number"+
			" FOR UPDATE",
		shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var boxes []model.Box
	for rows.Next() {
		var box model.Box
		var releasedAt sql.NullTime
		err := rows.Scan(&box.Key.Shipment,
			&box.Key.Number,
			&box.Data.Status,
			&box.Data.RackCode,
			&releasedAt)
		if err != nil {
			return nil, err
		}
		box.Data.ReleasedAt = releasedAt.Time
		boxes = append(boxes, box)
	}
	return boxes, rows.Err()
}

func (tx *pgTx) BoxPost(ctx context.Context, boxes []model.Box) error {
	for _, box := range boxes {
		_, err := tx.q.ExecContext(ctx,
			"INSERT INTO box (shipment_id, box_number, status, rack_code, released_at)"+
				" VALUES ($1, $2, $3, $4, $5)",
			box.Key.Shipment,
			box.Key.Number,
			box.Data.Status,
			box.Data.RackCode,
			nullTime(box.Data.ReleasedAt))
		if err != nil {
			return uniqueViolation(err)
		}
	}
	return nil
}

func (tx *pgTx) BoxPut(ctx context.Context, box model.Box) error {
	res, err := tx.q.ExecContext(ctx,
		"UPDATE box"+
			" SET status = $1, rack_code = $2, released_at = $3"+
			" WHERE shipment_id = $4"+
			"   AND box_number = $5",
		box.Data.Status,
		box.Data.RackCode,
		nullTime(box.Data.ReleasedAt),
		box.Key.Shipment,
		box.Key.Number)
	return affected(res, err)
}

// Тарификация

func (tx *pgTx) SettingsGet(ctx context.Context) (model.BillingSettings, error) {
	var data []byte
	err := tx.q.QueryRowContext(ctx, "SELECT data FROM billing_settings WHERE id = 1").Scan(&data)
	if err != nil {
		return model.BillingSettings{}, noRows(err)
	}
	var settings model.BillingSettings
	err = json.Unmarshal(data, &settings)
	return settings, err
}

func (tx *pgTx) SettingsPut(ctx context.Context, settings model.BillingSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	_, err = tx.q.ExecContext(ctx,
		"INSERT INTO billing_settings (id, data) VALUES (1, $1)"+
			" ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data",
		data)
	return err
}

func (tx *pgTx) ChargeTypeList(ctx context.Context, category string, activeOnly bool) ([]model.ChargeType, error) {
	rows, err := tx.q.QueryContext(ctx,
		"SELECT id, code, name, category, kind, rate, min_charge, max_charge, taxable, auto_apply, active"+
			" FROM charge_type"+
			" WHERE ($1 = '' OR category = $1)"+
			"   AND (NOT $2 OR active)"+
			" ORDER BY created_at, code",
		category,
		activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []model.ChargeType
	for rows.Next() {
		var ct model.ChargeType
		err := rows.Scan(&ct.ID,
			&ct.Code,
			&ct.Name,
			&ct.Category,
			&ct.Kind,
			&ct.Rate,
			&ct.MinCharge,
			&ct.MaxCharge,
			&ct.Taxable,
			&ct.AutoApply,
			&ct.Active)
		if err != nil {
			return nil, err
		}
		list = append(list, ct)
	}
	return list, rows.Err()
}

func (tx *pgTx) ChargeTypePost(ctx context.Context, ct model.ChargeType) error {
	_, err := tx.q.ExecContext(ctx,
		"INSERT INTO charge_type (id, code, name, category, kind, rate, min_charge, max_charge, taxable, auto_apply, active)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)",
		ct.ID,
		ct.Code,
		ct.Name,
		ct.Category,
		ct.Kind,
		ct.Rate,
		ct.MinCharge,
		ct.MaxCharge,
		ct.Taxable,
		ct.AutoApply,
		ct.Active)
	return uniqueViolation(err)
}

// Счета

func (tx *pgTx) InvoiceNextSeq(ctx context.Context) (int, error) {
	var seq int
	err := tx.q.QueryRowContext(ctx, "SELECT nextval('invoice_seq')").Scan(&seq)
	return seq, err
}

const invoiceColumns = "id, number, shipment_id, client_name, client_phone, client_email, lines," +
	" subtotal, tax_amount, total_amount, paid_amount, currency, status, notes, created_at, updated_at"

func (tx *pgTx) InvoiceGet(ctx context.Context, id string) (model.Invoice, error) {
	row := tx.q.QueryRowContext(ctx,
		"SELECT "+invoiceColumns+
			" FROM invoice"+
			" WHERE id = $1"+
			" FOR UPDATE",
		id)
	return scanInvoice(row)
}

func (tx *pgTx) InvoiceGetByNumber(ctx context.Context, number string) (model.Invoice, error) {
	row := tx.q.QueryRowContext(ctx,
		"SELECT "+invoiceColumns+
			" FROM invoice"+
			" WHERE number = $1",
		number)
	return scanInvoice(row)
}

func scanInvoice(row *sql.Row) (model.Invoice, error) {
	var inv model.Invoice
	var lines []byte
	err := row.Scan(&inv.ID,
		&inv.Number,
		&inv.ShipmentID,
		&inv.Client.Name,
		&inv.Client.Phone,
		&inv.Client.Email,
		&lines,
		&inv.Subtotal,
		&inv.TaxAmount,
		&inv.Total,
		&inv.Paid,
		&inv.Currency,
		&inv.Status,
		&inv.Notes,
		&inv.CreatedAt,
		&inv.UpdatedAt)
	if err != nil {
		return model.Invoice{}, noRows(err)
	}
	err = json.Unmarshal(lines, &inv.Lines)
	return inv, err
}

func (tx *pgTx) InvoicePost(ctx context.Context, inv model.Invoice) error {
	lines, err := json.Marshal(inv.Lines)
	if err != nil {
		return err
	}
	_, err = tx.q.ExecContext(ctx,
		"INSERT INTO invoice ("+invoiceColumns+")"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)",
		inv.ID,
		inv.Number,
		inv.ShipmentID,
		inv.Client.Name,
		inv.Client.Phone,
		inv.Client.Email,
		lines,
		inv.Subtotal,
		inv.TaxAmount,
		inv.Total,
		inv.Paid,
		inv.Currency,
		inv.Status,
		inv.Notes,
		inv.CreatedAt,
		inv.UpdatedAt)
	return uniqueViolation(err)
}

func (tx *pgTx) InvoicePut(ctx context.Context, inv model.Invoice) error {
	// Счёт меняется только оплатами
	res, err := tx.q.ExecContext(ctx,
		"UPDATE invoice"+
			" SET paid_amount = $1, status = $2, updated_at = $3"+
			" WHERE id = $4",
		inv.Paid,
		inv.Status,
		inv.UpdatedAt,
		inv.ID)
	return affected(res, err)
}

// Оплаты

const paymentColumns = "id, invoice_id, amount, method, transaction_ref, receipt_number," +
	" COALESCE(idempotency_key, ''), created_at"

func (tx *pgTx) PaymentGet(ctx context.Context, invoiceID string) ([]model.Payment, error) {
	rows, err := tx.q.QueryContext(ctx,
		"SELECT "+paymentColumns+
			" FROM payment"+
			" WHERE invoice_id = $1"+
			" ORDER BY created_at",
		invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []model.Payment
	for rows.Next() {
		var p model.Payment
		err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.TransactionRef,
			&p.ReceiptNumber, &p.IdempotencyKey, &p.CreatedAt)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (tx *pgTx) PaymentGetByKey(ctx context.Context, invoiceID string, key string) (model.Payment, error) {
	row := tx.q.QueryRowContext(ctx,
		"SELECT "+paymentColumns+
			" FROM payment"+
			" WHERE invoice_id = $1"+
			"   AND idempotency_key = $2",
		invoiceID,
		key)
	var p model.Payment
	err := row.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.TransactionRef,
		&p.ReceiptNumber, &p.IdempotencyKey, &p.CreatedAt)
	return p, noRows(err)
}

func (tx *pgTx) PaymentPost(ctx context.Context, p model.Payment) error {
	_, err := tx.q.ExecContext(ctx,
		"INSERT INTO payment (id, invoice_id, amount, method, transaction_ref, receipt_number, idempotency_key, created_at)"+
			" VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)",
		p.ID,
		p.InvoiceID,
		p.Amount,
		p.Method,
		p.TransactionRef,
		p.ReceiptNumber,
		p.IdempotencyKey,
		p.CreatedAt)
	return uniqueViolation(err)
}

// Выдачи

const withdrawalColumns = "id, shipment_id, COALESCE(run_id, ''), invoice_id, box_count, box_numbers," +
	" withdrawn_by, collector_id, reason, notes, receipt_number, release_photos, type, created_at"

func scanWithdrawal(scan func(dest ...any) error) (model.Withdrawal, error) {
	var w model.Withdrawal
	var numbers, photos []byte
	err := scan(&w.ID, &w.ShipmentID, &w.RunID, &w.InvoiceID, &w.BoxCount, &numbers,
		&w.WithdrawnBy, &w.CollectorID, &w.Reason, &w.Notes, &w.ReceiptNumber, &photos,
		&w.Type, &w.CreatedAt)
	if err != nil {
		return model.Withdrawal{}, err
	}
	if err = json.Unmarshal(numbers, &w.BoxNumbers); err != nil {
		return model.Withdrawal{}, err
	}
	err = json.Unmarshal(photos, &w.ReleasePhotos)
	return w, err
}

func (tx *pgTx) WithdrawalGet(ctx context.Context, shipmentID string) ([]model.Withdrawal, error) {
	rows, err := tx.q.QueryContext(ctx,
		"SELECT "+withdrawalColumns+
			" FROM withdrawal"+
			" WHERE shipment_id = $1"+
			" ORDER BY created_at",
		shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []model.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows.Scan)
		if err != nil {
			return nil, err
		}
		list = append(list, w)
	}
	return list, rows.Err()
}

func (tx *pgTx) WithdrawalGetByRun(ctx context.Context, runID string) (model.Withdrawal, error) {
	row := tx.q.QueryRowContext(ctx,
		"SELECT "+withdrawalColumns+
			" FROM withdrawal"+
			" WHERE run_id = $1",
		runID)
	w, err := scanWithdrawal(row.Scan)
	return w, noRows(err)
}

func (tx *pgTx) WithdrawalPost(ctx context.Context, w model.Withdrawal) error {
	numbers, err := json.Marshal(nonNil(w.BoxNumbers))
	if err != nil {
		return err
	}
	photos, err := json.Marshal(nonNil(w.ReleasePhotos))
	if err != nil {
		return err
	}
	_, err = tx.q.ExecContext(ctx,
		"INSERT INTO withdrawal ("+
			"id, shipment_id, run_id, invoice_id, box_count, box_numbers, withdrawn_by,"+
			" collector_id, reason, notes, receipt_number, release_photos, type, created_at)"+
			" VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)",
		w.ID, w.ShipmentID, w.RunID, w.InvoiceID, w.BoxCount, numbers, w.WithdrawnBy,
		w.CollectorID, w.Reason, w.Notes, w.ReceiptNumber, photos, w.Type, w.CreatedAt)
	return uniqueViolation(err)
}

// Процесс выдачи

const runColumns = "id, shipment_id, state, selection, charge_type_ids, custom, settings, draft, decision," +
	" invoice_id, withdrawal_id, failed_step, last_error, created_by, created_at, updated_at"

func scanRun(scan func(dest ...any) error) (model.ReleaseRun, error) {
	var run model.ReleaseRun
	var selection, ids, custom, settings, draft, decision []byte
	err := scan(&run.ID, &run.ShipmentID, &run.State, &selection, &ids, &custom, &settings,
		&draft, &decision, &run.InvoiceID, &run.WithdrawalID, &run.FailedStep, &run.LastError,
		&run.CreatedBy, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return model.ReleaseRun{}, err
	}
	for _, f := range []struct {
		data []byte
		dest any
	}{
		{selection, &run.Selection},
		{ids, &run.ChargeTypeIDs},
		{custom, &run.Custom},
		{settings, &run.Settings},
		{draft, &run.Draft},
		{decision, &run.Decision},
	} {
		if err := json.Unmarshal(f.data, f.dest); err != nil {
			return model.ReleaseRun{}, fmt.Errorf("release run %s: %w", run.ID, err)
		}
	}
	return run, nil
}

func runArgs(run model.ReleaseRun) ([]any, error) {
	args := []any{run.ID, run.ShipmentID, run.State}
	for _, v := range []any{run.Selection, run.ChargeTypeIDs, run.Custom, run.Settings, run.Draft, run.Decision} {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		args = append(args, data)
	}
	return append(args, run.InvoiceID, run.WithdrawalID, run.FailedStep, run.LastError,
		run.CreatedBy, run.CreatedAt, run.UpdatedAt), nil
}

func (tx *pgTx) ReleaseRunGet(ctx context.Context, id string) (model.ReleaseRun, error) {
	row := tx.q.QueryRowContext(ctx,
		"SELECT "+runColumns+
			" FROM release_run"+
			" WHERE id = $1"+
			" FOR UPDATE",
		id)
	run, err := scanRun(row.Scan)
	return run, noRows(err)
}

func (tx *pgTx) ReleaseRunGetFailed(ctx context.Context) ([]model.ReleaseRun, error) {
	rows, err := tx.q.QueryContext(ctx,
		"SELECT "+runColumns+
			" FROM release_run"+
			" WHERE state <> $1"+
			"   AND last_error <> ''"+
			" ORDER BY updated_at",
		model.ReleaseStateDone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []model.ReleaseRun
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		list = append(list, run)
	}
	return list, rows.Err()
}

func (tx *pgTx) ReleaseRunPost(ctx context.Context, run model.ReleaseRun) error {
	args, err := runArgs(run)
	if err != nil {
		return err
	}
	_, err = tx.q.ExecContext(ctx,
		"INSERT INTO release_run ("+runColumns+")"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)",
		args...)
	return uniqueViolation(err)
}

func (tx *pgTx) ReleaseRunPut(ctx context.Context, run model.ReleaseRun) error {
	args, err := runArgs(run)
	if err != nil {
		return err
	}
	res, err := tx.q.ExecContext(ctx,
		"UPDATE release_run"+
			" SET shipment_id = $2, state = $3, selection = $4, charge_type_ids = $5, custom = $6,"+
			" settings = $7, draft = $8, decision = $9, invoice_id = $10, withdrawal_id = $11,"+
			" failed_step = $12, last_error = $13, created_by = $14, created_at = $15, updated_at = $16"+
			" WHERE id = $1",
		args...)
	return affected(res, err)
}

// Вспомогательное

func noRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoRows
	}
	return err
}

func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAlreadyExists
	}
	return err
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoRows
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
