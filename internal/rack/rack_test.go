package rack

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iurnickita/warehouse/internal/model"
	"github.com/iurnickita/warehouse/internal/store"
)

func newTestLedger(t *testing.T, total, used int) (Ledger, store.Store) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	l := NewLedger(st, zap.NewNop())

	_, err := l.Create(ctx, model.Rack{Code: "A-01", Data: model.RackData{Location: "Hall A", CapacityTotal: total}})
	require.NoError(t, err)
	if used > 0 {
		err = st.InTx(ctx, func(tx store.Tx) error {
			_, err := l.Assign(ctx, tx, "A-01", used)
			return err
		})
		require.NoError(t, err)
	}
	return l, st
}

func assign(ctx context.Context, l Ledger, st store.Store, code string, n int) (model.Rack, error) {
	var rack model.Rack
	err := st.InTx(ctx, func(tx store.Tx) error {
		var err error
		rack, err = l.Assign(ctx, tx, code, n)
		return err
	})
	return rack, err
}

func release(ctx context.Context, l Ledger, st store.Store, code string, n int) (model.Rack, error) {
	var rack model.Rack
	err := st.InTx(ctx, func(tx store.Tx) error {
		var err error
		rack, err = l.Release(ctx, tx, code, n)
		return err
	})
	return rack, err
}

func TestAssignCapacity(t *testing.T) {
	ctx := context.Background()
	l, st := newTestLedger(t, 100, 80)

	// 80 + 25 > 100
	_, err := assign(ctx, l, st, "A-01", 25)
	require.ErrorIs(t, err, ErrCapacityExceeded)

	racks, err := l.List(ctx)
	require.NoError(t, err)
	require.Equal(t, 80, racks[0].Data.CapacityUsed)

	rack, err := assign(ctx, l, st, "A-01", 20)
	require.NoError(t, err)
	require.Equal(t, 100, rack.Data.CapacityUsed)
	require.Equal(t, model.RackStatusFull, rack.Data.Status)
}

func TestRelease(t *testing.T) {
	ctx := context.Background()
	l, st := newTestLedger(t, 50, 30)

	rack, err := release(ctx, l, st, "A-01", 10)
	require.NoError(t, err)
	require.Equal(t, 20, rack.Data.CapacityUsed)

	// не уходит ниже нуля
	rack, err = release(ctx, l, st, "A-01", 25)
	require.NoError(t, err)
	require.Equal(t, 0, rack.Data.CapacityUsed)
	require.Equal(t, model.RackStatusActive, rack.Data.Status)

	_, err = release(ctx, l, st, "A-01", 0)
	require.ErrorIs(t, err, ErrInvalidRelease)
}

func TestUnknownRack(t *testing.T) {
	ctx := context.Background()
	l, st := newTestLedger(t, 10, 0)

	_, err := assign(ctx, l, st, "Z-99", 1)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = l.Create(ctx, model.Rack{Code: "A-01", Data: model.RackData{CapacityTotal: 5}})
	require.ErrorIs(t, err, ErrAlreadyExists)

	_, err = l.Create(ctx, model.Rack{Code: "B-01"})
	require.ErrorIs(t, err, ErrInvalidCapacity)
}
