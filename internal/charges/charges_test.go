package charges

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iurnickita/warehouse/internal/model"
)

var now = time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func settings() model.BillingSettings {
	return model.BillingSettings{
		StorageRatePerBox: dec("0.5"),
		TaxRate:           dec("5"),
		Currency:          "KWD",
	}
}

func shipment(daysAgo int) model.Shipment {
	return model.Shipment{ID: "S-1", Data: model.ShipmentData{
		OriginalBoxCount: 10,
		CurrentBoxCount:  10,
		ArrivalDate:      now.Add(-time.Duration(daysAgo) * day),
	}}
}

func TestStorageScenario(t *testing.T) {
	draft, err := Compute(Request{
		Shipment: shipment(10),
		Boxes:    10,
		Settings: settings(),
		Now:      now,
	})
	require.NoError(t, err)
	require.Equal(t, 10, draft.ChargeableDays)
	require.Len(t, draft.Lines, 1)
	require.Equal(t, "50.000", draft.Lines[0].Amount.StringFixed(3))
	require.Equal(t, "2.500", draft.TaxAmount.StringFixed(3))
	require.Equal(t, "52.500", draft.Total.StringFixed(3))
}

func TestChargeableDays(t *testing.T) {
	start := now.Add(-10 * day)
	require.Equal(t, 10, ChargeableDays(start, now, 0))
	// неполные сутки округляются вверх
	require.Equal(t, 11, ChargeableDays(start.Add(-time.Hour), now, 0))
	require.Equal(t, 7, ChargeableDays(start, now, 3))
	require.Equal(t, 0, ChargeableDays(start, now, 15))
	require.Equal(t, 0, ChargeableDays(now.Add(day), now, 0))
	require.Equal(t, 0, ChargeableDays(time.Time{}, now, 0))
}

func TestGracePeriodDropsStorageLine(t *testing.T) {
	s := settings()
	s.GracePeriodDays = 30
	draft, err := Compute(Request{Shipment: shipment(10), Boxes: 10, Settings: s, Now: now})
	require.NoError(t, err)
	require.Empty(t, draft.Lines)
	require.True(t, draft.Total.IsZero())
}

func TestMinimumCharge(t *testing.T) {
	s := settings()
	s.MinimumCharge = dec("5")
	draft, err := Compute(Request{Shipment: shipment(1), Boxes: 2, Settings: s, Now: now})
	require.NoError(t, err)
	require.Equal(t, "5.000", draft.Lines[0].Amount.StringFixed(3))
}

func TestSelectedCharges(t *testing.T) {
	catalog := []model.ChargeType{
		{ID: "handling", Name: "Handling", Category: model.ChargeCategoryRelease, Kind: model.ChargePerBox, Rate: dec("0.25"), Taxable: true, Active: true},
		{ID: "service", Name: "Service fee", Category: model.ChargeCategoryRelease, Kind: model.ChargePercentage, Rate: dec("10"), Active: true},
		{ID: "doc", Name: "Documents", Category: model.ChargeCategoryRelease, Kind: model.ChargeFlat, Rate: dec("1.5"), Active: true},
		{ID: "old", Name: "Old", Category: model.ChargeCategoryRelease, Kind: model.ChargeFlat, Rate: dec("1"), Active: false},
	}

	// процентное выбрано первым, но считается после остальных
	draft, err := Compute(Request{
		Shipment: shipment(10),
		Boxes:    10,
		Selected: []string{"service", "handling", "doc"},
		Catalog:  catalog,
		Settings: settings(),
		Custom:   &model.CustomCharge{Description: "Forklift", Amount: dec("2")},
		Now:      now,
	})
	require.NoError(t, err)
	require.Len(t, draft.Lines, 5)

	// хранение 50, по коробкам 2.5, фикс. 1.5, 10% от 54 = 5.4, разовое 2
	require.Equal(t, model.ChargeCategoryStorage, draft.Lines[0].Category)
	require.Equal(t, "2.500", draft.Lines[1].Amount.StringFixed(3))
	require.Equal(t, 10, draft.Lines[1].Quantity)
	require.Equal(t, "1.500", draft.Lines[2].Amount.StringFixed(3))
	require.Equal(t, "5.400", draft.Lines[3].Amount.StringFixed(3))
	require.Equal(t, "service", draft.Lines[3].ChargeTypeID)
	require.Equal(t, model.ChargeCategoryCustom, draft.Lines[4].Category)
	require.Equal(t, "61.400", draft.Subtotal.StringFixed(3))

	// налог: хранение 2.5, по коробкам 0.125, разовое 0.1
	require.Equal(t, "2.725", draft.TaxAmount.StringFixed(3))
	require.Equal(t, "64.125", draft.Total.StringFixed(3))

	// повторный расчёт даёт тот же результат
	again, err := Compute(Request{
		Shipment: shipment(10),
		Boxes:    10,
		Selected: []string{"service", "handling", "doc"},
		Catalog:  catalog,
		Settings: settings(),
		Custom:   &model.CustomCharge{Description: "Forklift", Amount: dec("2")},
		Now:      now,
	})
	require.NoError(t, err)
	require.Equal(t, draft, again)

	_, err = Compute(Request{Shipment: shipment(1), Boxes: 1, Selected: []string{"old"}, Catalog: catalog, Settings: settings(), Now: now})
	require.ErrorIs(t, err, ErrInactiveChargeType)

	_, err = Compute(Request{Shipment: shipment(1), Boxes: 1, Selected: []string{"nope"}, Catalog: catalog, Settings: settings(), Now: now})
	require.ErrorIs(t, err, ErrUnknownChargeType)

	_, err = Compute(Request{Shipment: shipment(1), Boxes: 0, Settings: settings(), Now: now})
	require.ErrorIs(t, err, ErrInvalidBoxes)

	_, err = Compute(Request{Shipment: shipment(1), Boxes: 1, Settings: settings(), Now: now,
		Custom: &model.CustomCharge{Description: "Zero"}})
	require.ErrorIs(t, err, ErrInvalidCustom)
}

func TestPriceLineClamp(t *testing.T) {
	ct := model.ChargeType{
		ID:        "per-box",
		Name:      "Per box",
		Kind:      model.ChargePerBox,
		Rate:      dec("1"),
		MinCharge: decimal.NewNullDecimal(dec("3")),
		MaxCharge: decimal.NewNullDecimal(dec("8")),
	}

	line, err := PriceLine(ct, 2, decimal.Zero, dec("5"))
	require.NoError(t, err)
	require.Equal(t, "3.000", line.Amount.StringFixed(3))
	require.True(t, line.TaxAmount.IsZero())

	line, err = PriceLine(ct, 20, decimal.Zero, dec("5"))
	require.NoError(t, err)
	require.Equal(t, "8.000", line.Amount.StringFixed(3))

	ct.Kind = model.ChargePerShipment
	ct.Taxable = true
	line, err = PriceLine(ct, 20, decimal.Zero, dec("5"))
	require.NoError(t, err)
	require.Equal(t, "3.000", line.Amount.StringFixed(3))
	require.Equal(t, "0.150", line.TaxAmount.StringFixed(3))

	ct.Kind = "HOURLY"
	_, err = PriceLine(ct, 1, decimal.Zero, dec("5"))
	require.ErrorIs(t, err, ErrInvalidKind)
}

func TestNormalize(t *testing.T) {
	lines, err := Normalize([]model.LineItem{
		{Description: "Pallet wrap", Quantity: 3, UnitPrice: dec("0.333"), TaxRate: dec("5")},
	})
	require.NoError(t, err)
	require.Equal(t, "0.999", lines[0].Amount.StringFixed(3))
	require.Equal(t, "0.050", lines[0].TaxAmount.StringFixed(3))
	require.Equal(t, model.ChargeCategoryCustom, lines[0].Category)

	_, err = Normalize([]model.LineItem{{Description: "Bad", Quantity: 0, UnitPrice: dec("1")}})
	require.ErrorIs(t, err, ErrInvalidLine)
}

func TestAutoApplied(t *testing.T) {
	catalog := []model.ChargeType{
		{ID: "a", AutoApply: true, Active: true},
		{ID: "b", AutoApply: true},
		{ID: "c", Active: true},
	}
	require.Equal(t, []string{"a"}, AutoApplied(catalog))
}
