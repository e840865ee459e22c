// Package charges считает строки счёта за выдачу: хранение, выбранные начисления
// и разовое начисление.
package charges

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iurnickita/warehouse/internal/model"
)

var (
	ErrUnknownChargeType  = errors.New("unknown charge type")
	ErrInactiveChargeType = errors.New("charge type is not active")
	ErrInvalidKind        = errors.New("invalid calculation type")
	ErrInvalidBoxes       = errors.New("boxes to release must be positive")
	ErrInvalidCustom      = errors.New("custom charge needs a description and a positive amount")
	ErrInvalidLine        = errors.New("invalid line item")
)

var hundred = decimal.NewFromInt(100)

const day = 24 * time.Hour

// Request исходные данные расчёта. Настройки передаются явно, расчёт их не читает.
type Request struct {
	Shipment model.Shipment
	Boxes    int
	Selected []string
	Catalog  []model.ChargeType
	Settings model.BillingSettings
	Custom   *model.CustomCharge
	Now      time.Time
}

// Compute строит черновик счёта. Порядок строк: хранение, начисления по коробкам
// и фиксированные в порядке выбора, процентные, разовое.
func Compute(req Request) (model.InvoiceDraft, error) {
	if req.Boxes <= 0 {
		return model.InvoiceDraft{}, ErrInvalidBoxes
	}
	selected, err := resolve(req.Selected, req.Catalog)
	if err != nil {
		return model.InvoiceDraft{}, err
	}

	settings := req.Settings
	draft := model.InvoiceDraft{
		BoxesToRelease: req.Boxes,
		ComputedAt:     req.Now,
	}

	draft.ChargeableDays = ChargeableDays(req.Shipment.StorageStart(), req.Now, settings.GracePeriodDays)
	if draft.ChargeableDays > 0 {
		draft.Lines = append(draft.Lines, storageLine(draft.ChargeableDays, req.Boxes, settings))
	}

	// Процентные считаются от суммы уже добавленных строк
	var percentage []model.ChargeType
	for _, ct := range selected {
		if ct.Kind == model.ChargePercentage {
			percentage = append(percentage, ct)
			continue
		}
		line, err := PriceLine(ct, req.Boxes, decimal.Zero, settings.TaxRate)
		if err != nil {
			return model.InvoiceDraft{}, err
		}
		draft.Lines = append(draft.Lines, line)
	}
	for _, ct := range percentage {
		base, _, _ := Totals(draft.Lines)
		line, err := PriceLine(ct, req.Boxes, base, settings.TaxRate)
		if err != nil {
			return model.InvoiceDraft{}, err
		}
		draft.Lines = append(draft.Lines, line)
	}

	if req.Custom != nil {
		if req.Custom.Description == "" || !req.Custom.Amount.IsPositive() {
			return model.InvoiceDraft{}, ErrInvalidCustom
		}
		amount := round(req.Custom.Amount)
		draft.Lines = append(draft.Lines, model.LineItem{
			Description: req.Custom.Description,
			Category:    model.ChargeCategoryCustom,
			Quantity:    1,
			UnitPrice:   amount,
			Amount:      amount,
			TaxRate:     settings.TaxRate,
			TaxAmount:   tax(amount, settings.TaxRate),
		})
	}

	draft.Subtotal, draft.TaxAmount, draft.Total = Totals(draft.Lines)
	return draft, nil
}

// ChargeableDays полные сутки хранения (неполные округляются вверх) за вычетом
// льготного периода, не меньше нуля.
func ChargeableDays(start, now time.Time, graceDays int) int {
	if start.IsZero() || !now.After(start) {
		return 0
	}
	elapsed := now.Sub(start)
	days := int(elapsed / day)
	if elapsed%day != 0 {
		days++
	}
	if graceDays > 0 {
		days -= graceDays
	}
	return max(days, 0)
}

// PriceLine строка начисления. base используется только процентными начислениями.
func PriceLine(ct model.ChargeType, boxes int, base decimal.Decimal, taxRate decimal.Decimal) (model.LineItem, error) {
	line := model.LineItem{
		Description:  ct.Name,
		Category:     ct.Category,
		ChargeTypeID: ct.ID,
		Quantity:     1,
		UnitPrice:    ct.Rate,
	}

	var amount decimal.Decimal
	switch ct.Kind {
	case model.ChargePerBox:
		line.Quantity = boxes
		amount = ct.Rate.Mul(decimal.NewFromInt(int64(boxes)))
	case model.ChargeFlat, model.ChargePerShipment:
		amount = ct.Rate
	case model.ChargePercentage:
		amount = base.Mul(ct.Rate).Div(hundred)
		line.Description = fmt.Sprintf("%s (%s%%)", ct.Name, ct.Rate.String())
	default:
		return model.LineItem{}, fmt.Errorf("%w: %q", ErrInvalidKind, ct.Kind)
	}

	if ct.MinCharge.Valid && amount.LessThan(ct.MinCharge.Decimal) {
		amount = ct.MinCharge.Decimal
	}
	if ct.MaxCharge.Valid && amount.GreaterThan(ct.MaxCharge.Decimal) {
		amount = ct.MaxCharge.Decimal
	}
	line.Amount = round(amount)
	if ct.Kind == model.ChargePercentage {
		line.UnitPrice = line.Amount
	}

	line.TaxRate = decimal.Zero
	line.TaxAmount = decimal.Zero
	if ct.Taxable {
		line.TaxRate = taxRate
		line.TaxAmount = tax(line.Amount, taxRate)
	}
	return line, nil
}

// Normalize пересчитывает суммы строк, пришедших извне: amount = unitPrice × quantity,
// налог по ставке строки.
func Normalize(lines []model.LineItem) ([]model.LineItem, error) {
	res := make([]model.LineItem, 0, len(lines))
	for i, line := range lines {
		if line.Description == "" || line.Quantity <= 0 || line.UnitPrice.IsNegative() || line.TaxRate.IsNegative() {
			return nil, fmt.Errorf("%w: line %d", ErrInvalidLine, i+1)
		}
		if line.Category == "" {
			line.Category = model.ChargeCategoryCustom
		}
		line.Amount = round(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
		line.TaxAmount = tax(line.Amount, line.TaxRate)
		res = append(res, line)
	}
	return res, nil
}

// Totals подытог, налог и итог по строкам.
func Totals(lines []model.LineItem) (subtotal, taxAmount, total decimal.Decimal) {
	subtotal, taxAmount = decimal.Zero, decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.Amount)
		taxAmount = taxAmount.Add(line.TaxAmount)
	}
	return subtotal, taxAmount, subtotal.Add(taxAmount)
}

func storageLine(days, boxes int, settings model.BillingSettings) model.LineItem {
	quantity := days * boxes
	amount := round(settings.StorageRatePerBox.Mul(decimal.NewFromInt(int64(quantity))))
	if settings.MinimumCharge.IsPositive() && amount.IsPositive() && amount.LessThan(settings.MinimumCharge) {
		amount = round(settings.MinimumCharge)
	}
	return model.LineItem{
		Description: fmt.Sprintf("Storage: %d days x %d boxes", days, boxes),
		Category:    model.ChargeCategoryStorage,
		Quantity:    quantity,
		UnitPrice:   settings.StorageRatePerBox,
		Amount:      amount,
		TaxRate:     settings.TaxRate,
		TaxAmount:   tax(amount, settings.TaxRate),
	}
}

func resolve(ids []string, catalog []model.ChargeType) ([]model.ChargeType, error) {
	byID := make(map[string]model.ChargeType, len(catalog))
	for _, ct := range catalog {
		byID[ct.ID] = ct
	}

	seen := make(map[string]bool, len(ids))
	res := make([]model.ChargeType, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		ct, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownChargeType, id)
		}
		if !ct.Active {
			return nil, fmt.Errorf("%w: %s", ErrInactiveChargeType, ct.Code)
		}
		if !ct.Kind.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidKind, ct.Kind)
		}
		res = append(res, ct)
	}
	return res, nil
}

// AutoApplied идентификаторы активных начислений, добавляемых без выбора.
func AutoApplied(catalog []model.ChargeType) []string {
	var ids []string
	for _, ct := range catalog {
		if ct.Active && ct.AutoApply {
			ids = append(ids, ct.ID)
		}
	}
	return ids
}

func tax(amount, rate decimal.Decimal) decimal.Decimal {
	return round(amount.Mul(rate).Div(hundred))
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(model.MoneyPlaces)
}
