package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iurnickita/warehouse/internal/boxes"
	"github.com/iurnickita/warehouse/internal/model"
	"github.com/iurnickita/warehouse/internal/service/config"
	"github.com/iurnickita/warehouse/internal/store"
)

func testConfig() config.Config {
	return config.Config{
		LockTTL:        time.Second,
		ReportInterval: 10 * time.Millisecond,
		Billing: config.Billing{
			StorageRatePerBox: "0.5",
			TaxRate:           "5",
			Currency:          "KWD",
		},
	}
}

func newTestService(t *testing.T, cfg config.Config) Service {
	ctx := context.Background()
	s, err := NewService(cfg, store.NewMemoryStore(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.CreateRack(ctx, model.Rack{Code: "A-01", Data: model.RackData{CapacityTotal: 50}})
	require.NoError(t, err)
	_, err = s.CreateShipment(ctx, model.Shipment{ID: "S-1", Data: model.ShipmentData{OriginalBoxCount: 6, RackCode: "A-01"}})
	require.NoError(t, err)
	return s
}

func TestDefaultSettings(t *testing.T) {
	s := newTestService(t, testConfig())
	settings, err := s.GetSettings(context.Background())
	require.NoError(t, err)
	require.Equal(t, "0.500", settings.StorageRatePerBox.StringFixed(3))
	require.Equal(t, "KWD", settings.Currency)

	cfg := testConfig()
	cfg.Billing.TaxRate = "five"
	_, err = NewService(cfg, store.NewMemoryStore(), zap.NewNop())
	require.Error(t, err)
}

func TestReleaseBoxes(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, testConfig())

	withdrawal, shipment, err := s.ReleaseBoxes(ctx, BoxRelease{
		ShipmentID:  "S-1",
		Selection:   model.BoxSelection{Numbers: []int{5, 6}},
		CollectorID: "ID-7",
		ReleasedBy:  "clerk",
	})
	require.NoError(t, err)
	require.Equal(t, []int{5, 6}, withdrawal.BoxNumbers)
	require.Equal(t, model.ReleaseTypePartial, withdrawal.Type)
	require.Equal(t, 4, shipment.Data.CurrentBoxCount)

	racks, err := s.ListRacks(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, racks[0].Data.CapacityUsed)

	_, _, err = s.ReleaseBoxes(ctx, BoxRelease{ShipmentID: "S-1", Selection: model.BoxSelection{Numbers: []int{5}}})
	require.ErrorIs(t, err, boxes.ErrNothingToRelease)

	list, err := s.ListWithdrawals(ctx, "S-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestReleaseBoxesPolicy(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Billing.RequireIDVerification = true
	cfg.Billing.RequireReleasePhotos = true
	s := newTestService(t, cfg)

	_, _, err := s.ReleaseBoxes(ctx, BoxRelease{ShipmentID: "S-1", Selection: model.BoxSelection{All: true}})
	require.ErrorIs(t, err, ErrCollectorID)
	_, _, err = s.ReleaseBoxes(ctx, BoxRelease{ShipmentID: "S-1", Selection: model.BoxSelection{All: true}, CollectorID: "ID-1"})
	require.ErrorIs(t, err, ErrReleasePhotos)

	_, shipment, err := s.ReleaseBoxes(ctx, BoxRelease{
		ShipmentID:    "S-1",
		Selection:     model.BoxSelection{All: true},
		CollectorID:   "ID-1",
		ReleasePhotos: []string{"p.jpg"},
	})
	require.NoError(t, err)
	require.Equal(t, model.ShipmentStatusReleased, shipment.Data.Status)
}

func TestCreateWithdrawal(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, testConfig())

	w, err := s.CreateWithdrawal(ctx, model.Withdrawal{
		ShipmentID:    "S-1",
		BoxCount:      2,
		WithdrawnBy:   "clerk",
		Reason:        "client pickup",
		ReceiptNumber: "R-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, w.ID)
	require.Equal(t, model.ReleaseTypePartial, w.Type)

	_, err = s.CreateWithdrawal(ctx, model.Withdrawal{ShipmentID: "S-1", BoxCount: 7})
	require.ErrorIs(t, err, boxes.ErrNotEnoughBoxes)
	_, err = s.CreateWithdrawal(ctx, model.Withdrawal{ShipmentID: "S-9", BoxCount: 1})
	require.ErrorIs(t, err, boxes.ErrShipmentNotFound)
	_, err = s.CreateWithdrawal(ctx, model.Withdrawal{ShipmentID: "S-1"})
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestReportFailedStops(t *testing.T) {
	s := newTestService(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.ReportFailed(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("report loop did not stop")
	}
}
