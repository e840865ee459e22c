package rack

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iurnickita/warehouse/internal/model"
	"github.com/iurnickita/warehouse/internal/store"
)

type Ledger interface {
	Create(ctx context.Context, rack model.Rack) (model.Rack, error)
	List(ctx context.Context) ([]model.Rack, error)
	// Assign и Release выполняются в транзакции вызывающего.
	Assign(ctx context.Context, tx store.Tx, code string, boxCount int) (model.Rack, error)
	Release(ctx context.Context, tx store.Tx, code string, boxCount int) (model.Rack, error)
}

var (
	ErrNotFound         = errors.New("rack not found")
	ErrAlreadyExists    = errors.New("rack already exists")
	ErrInvalidCapacity  = errors.New("rack capacity must be positive")
	ErrCapacityExceeded = errors.New("rack capacity exceeded")
	ErrInvalidCount     = errors.New("box count must be positive")
	ErrInvalidRelease   = errors.New("invalid rack release")
)

type ledger struct {
	store  store.Store
	zaplog *zap.Logger
}

func NewLedger(store store.Store, zaplog *zap.Logger) Ledger {
	return &ledger{store: store, zaplog: zaplog}
}

func (l *ledger) Create(ctx context.Context, rack model.Rack) (model.Rack, error) {
	if rack.Code == "" || rack.Data.CapacityTotal <= 0 {
		return model.Rack{}, ErrInvalidCapacity
	}
	rack.Data.CapacityUsed = 0
	rack.Data.Status = model.RackStatusActive

	err := l.store.InTx(ctx, func(tx store.Tx) error {
		return tx.RackPost(ctx, rack)
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return model.Rack{}, ErrAlreadyExists
	}
	return rack, err
}

func (l *ledger) List(ctx context.Context) ([]model.Rack, error) {
	var racks []model.Rack
	err := l.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		racks, err = tx.RackList(ctx)
		return err
	})
	return racks, err
}

func (l *ledger) Assign(ctx context.Context, tx store.Tx, code string, boxCount int) (model.Rack, error) {
	if boxCount <= 0 {
		return model.Rack{}, fmt.Errorf("%w: %d", ErrInvalidCount, boxCount)
	}
	rack, err := l.get(ctx, tx, code)
	if err != nil {
		return model.Rack{}, err
	}

	if rack.Data.CapacityUsed+boxCount > rack.Data.CapacityTotal {
		return model.Rack{}, fmt.Errorf("%w: rack %s has %d free, requested %d",
			ErrCapacityExceeded, code, rack.Free(), boxCount)
	}
	rack.Data.CapacityUsed += boxCount
	rack.Data.Status = status(rack)

	if err = tx.RackPut(ctx, rack); err != nil {
		return model.Rack{}, err
	}
	return rack, nil
}

func (l *ledger) Release(ctx context.Context, tx store.Tx, code string, boxCount int) (model.Rack, error) {
	if boxCount <= 0 {
		return model.Rack{}, fmt.Errorf("%w: box count %d", ErrInvalidRelease, boxCount)
	}
	rack, err := l.get(ctx, tx, code)
	if err != nil {
		return model.Rack{}, err
	}

	// Количество коробок проверяет реестр, здесь только не уходим ниже нуля
	if boxCount > rack.Data.CapacityUsed {
		l.zaplog.Warn("rack release exceeds used capacity",
			zap.String("rack", code),
			zap.Int("used", rack.Data.CapacityUsed),
			zap.Int("released", boxCount),
		)
		boxCount = rack.Data.CapacityUsed
	}
	rack.Data.CapacityUsed -= boxCount
	rack.Data.Status = status(rack)

	if err = tx.RackPut(ctx, rack); err != nil {
		return model.Rack{}, err
	}
	return rack, nil
}

func (l *ledger) get(ctx context.Context, tx store.Tx, code string) (model.Rack, error) {
	rack, err := tx.RackGet(ctx, code)
	if errors.Is(err, store.ErrNoRows) {
		return model.Rack{}, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	return rack, err
}

func status(rack model.Rack) string {
	if rack.Free() == 0 {
		return model.RackStatusFull
	}
	return model.RackStatusActive
}
