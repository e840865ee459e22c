package boxes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iurnickita/warehouse/internal/model"
	"github.com/iurnickita/warehouse/internal/rack"
	"github.com/iurnickita/warehouse/internal/store"
)

type fixture struct {
	store    store.Store
	racks    rack.Ledger
	registry Registry
}

func newFixture(t *testing.T) fixture {
	ctx := context.Background()
	st := store.NewMemoryStore()
	racks := rack.NewLedger(st, zap.NewNop())
	for _, r := range []model.Rack{
		{Code: "A-01", Data: model.RackData{CapacityTotal: 20}},
		{Code: "B-01", Data: model.RackData{CapacityTotal: 5}},
	} {
		_, err := racks.Create(ctx, r)
		require.NoError(t, err)
	}
	return fixture{store: st, racks: racks, registry: NewRegistry(st, racks, zap.NewNop())}
}

func (f fixture) rack(t *testing.T, code string) model.Rack {
	racks, err := f.racks.List(context.Background())
	require.NoError(t, err)
	for _, r := range racks {
		if r.Code == code {
			return r
		}
	}
	t.Fatalf("rack %s not found", code)
	return model.Rack{}
}

func (f fixture) release(t *testing.T, id string, sel model.BoxSelection) (Released, error) {
	ctx := context.Background()
	var released Released
	err := f.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		released, err = f.registry.ReleaseBoxes(ctx, tx, id, sel, time.Now())
		return err
	})
	return released, err
}

func boxes(numbers ...int) []model.Box {
	var res []model.Box
	for _, n := range numbers {
		res = append(res, model.Box{
			Key:  model.BoxKey{Shipment: "S-1", Number: n},
			Data: model.BoxData{Status: model.BoxStatusInStorage},
		})
	}
	return res
}

func TestCreateShipment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	shipment, err := f.registry.CreateShipment(ctx, model.Shipment{ID: "S-1", Data: model.ShipmentData{OriginalBoxCount: 4}})
	require.NoError(t, err)
	require.Equal(t, model.ShipmentStatusPending, shipment.Data.Status)
	require.Equal(t, 4, shipment.Data.CurrentBoxCount)
	require.Equal(t, "SHP-S-1", shipment.Data.QRCode)

	_, got, err := f.registry.GetShipment(ctx, "S-1")
	require.NoError(t, err)
	require.Len(t, got, 4)
	require.Equal(t, 1, got[0].Key.Number)
	require.Equal(t, 4, got[3].Key.Number)

	_, err = f.registry.CreateShipment(ctx, model.Shipment{ID: "S-1", Data: model.ShipmentData{OriginalBoxCount: 1}})
	require.ErrorIs(t, err, ErrShipmentExists)

	_, err = f.registry.CreateShipment(ctx, model.Shipment{ID: "S-2"})
	require.ErrorIs(t, err, ErrInvalidShipment)

	// сразу на стеллаж
	shipment, err = f.registry.CreateShipment(ctx, model.Shipment{ID: "S-3", Data: model.ShipmentData{OriginalBoxCount: 3, RackCode: "B-01"}})
	require.NoError(t, err)
	require.Equal(t, model.ShipmentStatusInStorage, shipment.Data.Status)
	require.Equal(t, 3, f.rack(t, "B-01").Data.CapacityUsed)

	// не помещается, отправление не создаётся
	_, err = f.registry.CreateShipment(ctx, model.Shipment{ID: "S-4", Data: model.ShipmentData{OriginalBoxCount: 3, RackCode: "B-01"}})
	require.ErrorIs(t, err, rack.ErrCapacityExceeded)
	_, _, err = f.registry.GetShipment(ctx, "S-4")
	require.ErrorIs(t, err, ErrShipmentNotFound)
}

func TestAssignBoxes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.registry.CreateShipment(ctx, model.Shipment{ID: "S-1", Data: model.ShipmentData{OriginalBoxCount: 6}})
	require.NoError(t, err)

	r, err := f.registry.AssignBoxes(ctx, "S-1", "A-01", []int{1, 2, 3, 4})
	require.NoError(t, err)
	require.Equal(t, 4, r.Data.CapacityUsed)

	shipment, _, err := f.registry.GetShipment(ctx, "S-1")
	require.NoError(t, err)
	require.Equal(t, model.ShipmentStatusInStorage, shipment.Data.Status)
	require.Equal(t, "A-01", shipment.Data.RackCode)

	// повторное размещение на тот же стеллаж ничего не меняет
	r, err = f.registry.AssignBoxes(ctx, "S-1", "A-01", []int{1, 2})
	require.NoError(t, err)
	require.Equal(t, 4, r.Data.CapacityUsed)

	// перенос двух коробок на другой стеллаж
	r, err = f.registry.AssignBoxes(ctx, "S-1", "B-01", []int{3, 4, 5})
	require.NoError(t, err)
	require.Equal(t, 3, r.Data.CapacityUsed)
	require.Equal(t, 2, f.rack(t, "A-01").Data.CapacityUsed)

	// B-01 вмещает 5
	_, err = f.registry.AssignBoxes(ctx, "S-1", "B-01", []int{1, 2, 6})
	require.ErrorIs(t, err, rack.ErrCapacityExceeded)
	require.Equal(t, 2, f.rack(t, "A-01").Data.CapacityUsed)
	require.Equal(t, 3, f.rack(t, "B-01").Data.CapacityUsed)

	_, err = f.registry.AssignBoxes(ctx, "S-1", "A-01", []int{7})
	require.ErrorIs(t, err, ErrBoxNotFound)

	_, err = f.registry.AssignBoxes(ctx, "S-1", "Z-99", []int{6})
	require.ErrorIs(t, err, rack.ErrNotFound)

	_, err = f.registry.AssignBoxes(ctx, "S-9", "A-01", []int{1})
	require.ErrorIs(t, err, ErrShipmentNotFound)
}

func TestReleasePartial(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.registry.CreateShipment(ctx, model.Shipment{ID: "S-1", Data: model.ShipmentData{OriginalBoxCount: 10, RackCode: "A-01"}})
	require.NoError(t, err)

	released, err := f.release(t, "S-1", model.BoxSelection{Count: 4})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4}, released.Numbers)
	require.Equal(t, model.ReleaseTypePartial, released.Type)
	require.Equal(t, 6, released.Shipment.Data.CurrentBoxCount)
	require.Equal(t, model.ShipmentStatusPartial, released.Shipment.Data.Status)
	require.Equal(t, 6, f.rack(t, "A-01").Data.CapacityUsed)

	_, got, err := f.registry.GetShipment(ctx, "S-1")
	require.NoError(t, err)
	require.Equal(t, model.BoxStatusReleased, got[0].Data.Status)
	require.Empty(t, got[0].Data.RackCode)
	require.False(t, got[0].Data.ReleasedAt.IsZero())
	require.Equal(t, model.BoxStatusInStorage, got[4].Data.Status)

	// уже выданные коробки пропускаются
	released, err = f.release(t, "S-1", model.BoxSelection{Numbers: []int{4, 5}})
	require.NoError(t, err)
	require.Equal(t, []int{5}, released.Numbers)

	_, err = f.release(t, "S-1", model.BoxSelection{Count: 6})
	require.ErrorIs(t, err, ErrNotEnoughBoxes)

	released, err = f.release(t, "S-1", model.BoxSelection{All: true})
	require.NoError(t, err)
	require.Equal(t, []int{6, 7, 8, 9, 10}, released.Numbers)
	require.Equal(t, model.ReleaseTypeFull, released.Type)
	require.Equal(t, model.ShipmentStatusReleased, released.Shipment.Data.Status)
	require.Equal(t, 0, released.Shipment.Data.CurrentBoxCount)
	require.Equal(t, 0, f.rack(t, "A-01").Data.CapacityUsed)

	_, err = f.release(t, "S-1", model.BoxSelection{All: true})
	require.ErrorIs(t, err, ErrNothingToRelease)
}

func TestReleaseAcrossRacks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.registry.CreateShipment(ctx, model.Shipment{ID: "S-1", Data: model.ShipmentData{OriginalBoxCount: 5, RackCode: "A-01"}})
	require.NoError(t, err)
	_, err = f.registry.AssignBoxes(ctx, "S-1", "B-01", []int{4, 5})
	require.NoError(t, err)

	_, err = f.release(t, "S-1", model.BoxSelection{Numbers: []int{3, 4}})
	require.NoError(t, err)
	require.Equal(t, 2, f.rack(t, "A-01").Data.CapacityUsed)
	require.Equal(t, 1, f.rack(t, "B-01").Data.CapacityUsed)
}

func TestSelect(t *testing.T) {
	list := boxes(1, 2, 3, 4, 5)
	list[1].Data.Status = model.BoxStatusReleased

	tests := []struct {
		name string
		sel  model.BoxSelection
		want []int
		err  error
	}{
		{name: "all", sel: model.BoxSelection{All: true}, want: []int{1, 3, 4, 5}},
		{name: "count", sel: model.BoxSelection{Count: 2}, want: []int{1, 3}},
		{name: "numbers", sel: model.BoxSelection{Numbers: []int{5, 2, 5, 3}}, want: []int{3, 5}},
		{name: "count too big", sel: model.BoxSelection{Count: 5}, err: ErrNotEnoughBoxes},
		{name: "unknown box", sel: model.BoxSelection{Numbers: []int{9}}, err: ErrBoxNotFound},
		{name: "only released", sel: model.BoxSelection{Numbers: []int{2}}, err: ErrNothingToRelease},
		{name: "empty", sel: model.BoxSelection{}, err: ErrInvalidSelection},
		{name: "two modes", sel: model.BoxSelection{All: true, Count: 1}, err: ErrInvalidSelection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Select(list, tt.sel)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
