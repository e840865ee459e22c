// Package boxes реестр коробок отправлений: размещение по стеллажам и выдача.
package boxes

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/iurnickita/warehouse/internal/model"
	"github.com/iurnickita/warehouse/internal/rack"
	"github.com/iurnickita/warehouse/internal/store"
)

type Registry interface {
	CreateShipment(ctx context.Context, shipment model.Shipment) (model.Shipment, error)
	GetShipment(ctx context.Context, id string) (model.Shipment, []model.Box, error)
	AssignBoxes(ctx context.Context, shipmentID string, rackCode string, numbers []int) (model.Rack, error)
	// ReleaseBoxes выполняется в транзакции вызывающего, вместе с записью о выдаче.
	ReleaseBoxes(ctx context.Context, tx store.Tx, shipmentID string, sel model.BoxSelection, at time.Time) (Released, error)
}

// Released результат выдачи коробок.
type Released struct {
	Shipment model.Shipment
	Numbers  []int
	Type     model.ReleaseType
}

var (
	ErrShipmentNotFound = errors.New("shipment not found")
	ErrShipmentExists   = errors.New("shipment already exists")
	ErrInvalidShipment  = errors.New("shipment id and box count are required")
	ErrBoxNotFound      = errors.New("box not found")
	ErrBoxReleased      = errors.New("box already released")
	ErrInvalidSelection = errors.New("specify exactly one of releaseAll, boxNumbers or count")
	ErrNotEnoughBoxes   = errors.New("box count exceeds boxes in storage")
	ErrNothingToRelease = errors.New("nothing to release")
)

type registry struct {
	store  store.Store
	racks  rack.Ledger
	zaplog *zap.Logger
	now    func() time.Time
}

func NewRegistry(store store.Store, racks rack.Ledger, zaplog *zap.Logger) Registry {
	return &registry{
		store:  store,
		racks:  racks,
		zaplog: zaplog,
		now:    time.Now,
	}
}

func (r *registry) CreateShipment(ctx context.Context, shipment model.Shipment) (model.Shipment, error) {
	if shipment.ID == "" || shipment.Data.OriginalBoxCount <= 0 {
		return model.Shipment{}, ErrInvalidShipment
	}
	if shipment.Data.QRCode == "" {
		shipment.Data.QRCode = "SHP-" + shipment.ID
	}
	if shipment.Data.CreatedAt.IsZero() {
		shipment.Data.CreatedAt = r.now().UTC()
	}
	shipment.Data.CurrentBoxCount = shipment.Data.OriginalBoxCount
	shipment.Data.Status = model.ShipmentStatusPending
	rackCode := shipment.Data.RackCode
	shipment.Data.RackCode = ""

	// Коробки нумеруются с 1
	boxes := make([]model.Box, 0, shipment.Data.OriginalBoxCount)
	for n := 1; n <= shipment.Data.OriginalBoxCount; n++ {
		boxes = append(boxes, model.Box{
			Key:  model.BoxKey{Shipment: shipment.ID, Number: n},
			Data: model.BoxData{Status: model.BoxStatusInStorage, RackCode: rackCode},
		})
	}
	if rackCode != "" {
		shipment.Data.RackCode = rackCode
		shipment.Data.Status = model.ShipmentStatusInStorage
	}

	err := r.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.ShipmentPost(ctx, shipment); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return ErrShipmentExists
			}
			return err
		}
		if err := tx.BoxPost(ctx, boxes); err != nil {
			return err
		}
		if rackCode != "" {
			_, err := r.racks.Assign(ctx, tx, rackCode, len(boxes))
			return err
		}
		return nil
	})
	if err != nil {
		return model.Shipment{}, err
	}
	return shipment, nil
}

func (r *registry) GetShipment(ctx context.Context, id string) (model.Shipment, []model.Box, error) {
	var shipment model.Shipment
	var boxes []model.Box
	err := r.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if shipment, err = getShipment(ctx, tx, id); err != nil {
			return err
		}
		boxes, err = tx.BoxGet(ctx, id)
		return err
	})
	return shipment, boxes, err
}

// AssignBoxes размещает коробки на стеллаже. Коробка уже на этом стеллаже не меняет
// заполненность, коробка с другого стеллажа переносится (освобождает место там).
func (r *registry) AssignBoxes(ctx context.Context, shipmentID string, rackCode string, numbers []int) (model.Rack, error) {
	if len(numbers) == 0 || rackCode == "" {
		return model.Rack{}, ErrInvalidSelection
	}
	numbers = uniqueSorted(numbers)

	var result model.Rack
	err := r.store.InTx(ctx, func(tx store.Tx) error {
		shipment, err := getShipment(ctx, tx, shipmentID)
		if err != nil {
			return err
		}
		boxes, err := tx.BoxGet(ctx, shipmentID)
		if err != nil {
			return err
		}
		byNumber := index(boxes)

		var changed []model.Box
		moved := make(map[string]int)
		for _, n := range numbers {
			box, ok := byNumber[n]
			if !ok {
				return fmt.Errorf("%w: shipment %s box %d", ErrBoxNotFound, shipmentID, n)
			}
			if box.Data.Status == model.BoxStatusReleased {
				return fmt.Errorf("%w: shipment %s box %d", ErrBoxReleased, shipmentID, n)
			}
			if box.Data.RackCode == rackCode {
				continue
			}
			if box.Data.RackCode != "" {
				moved[box.Data.RackCode]++
			}
			box.Data.RackCode = rackCode
			changed = append(changed, box)
		}

		if len(changed) == 0 {
			result, err = tx.RackGet(ctx, rackCode)
			if errors.Is(err, store.ErrNoRows) {
				return fmt.Errorf("%w: %s", rack.ErrNotFound, rackCode)
			}
			return err
		}

		if result, err = r.racks.Assign(ctx, tx, rackCode, len(changed)); err != nil {
			return err
		}
		for _, code := range sortedKeys(moved) {
			if _, err = r.racks.Release(ctx, tx, code, moved[code]); err != nil {
				return err
			}
		}
		for _, box := range changed {
			if err = tx.BoxPut(ctx, box); err != nil {
				return err
			}
		}

		shipment.Data.RackCode = rackCode
		if shipment.Data.Status == model.ShipmentStatusPending {
			shipment.Data.Status = model.ShipmentStatusInStorage
		}
		return tx.ShipmentPut(ctx, shipment)
	})
	if err != nil {
		return model.Rack{}, err
	}
	return result, nil
}

func (r *registry) ReleaseBoxes(ctx context.Context, tx store.Tx, shipmentID string, sel model.BoxSelection, at time.Time) (Released, error) {
	shipment, err := getShipment(ctx, tx, shipmentID)
	if err != nil {
		return Released{}, err
	}
	boxes, err := tx.BoxGet(ctx, shipmentID)
	if err != nil {
		return Released{}, err
	}
	numbers, err := Select(boxes, sel)
	if err != nil {
		return Released{}, err
	}

	byNumber := index(boxes)
	perRack := make(map[string]int)
	for _, n := range numbers {
		box := byNumber[n]
		if box.Data.RackCode != "" {
			perRack[box.Data.RackCode]++
		}
		box.Data.Status = model.BoxStatusReleased
		box.Data.RackCode = ""
		box.Data.ReleasedAt = at
		if err = tx.BoxPut(ctx, box); err != nil {
			return Released{}, err
		}
	}
	for _, code := range sortedKeys(perRack) {
		if _, err = r.racks.Release(ctx, tx, code, perRack[code]); err != nil {
			return Released{}, err
		}
	}

	remaining := 0
	for _, box := range boxes {
		if box.Data.Status == model.BoxStatusInStorage {
			remaining++
		}
	}
	remaining -= len(numbers)

	shipment.Data.CurrentBoxCount = remaining
	released := Released{Numbers: numbers, Type: model.ReleaseTypePartial}
	if remaining == 0 {
		shipment.Data.Status = model.ShipmentStatusReleased
		shipment.Data.RackCode = ""
		released.Type = model.ReleaseTypeFull
	} else {
		shipment.Data.Status = model.ShipmentStatusPartial
	}
	if err = tx.ShipmentPut(ctx, shipment); err != nil {
		return Released{}, err
	}
	released.Shipment = shipment

	r.zaplog.Info("boxes released",
		zap.String("shipment", shipmentID),
		zap.Ints("boxes", numbers),
		zap.Int("remaining", remaining),
	)
	return released, nil
}

// Select номера коробок на складе, попадающих в выборку, по возрастанию.
// Count выбирает первые Count коробок по номеру.
func Select(boxes []model.Box, sel model.BoxSelection) ([]int, error) {
	modes := 0
	if sel.All {
		modes++
	}
	if len(sel.Numbers) > 0 {
		modes++
	}
	if sel.Count > 0 {
		modes++
	}
	if modes != 1 || sel.Count < 0 {
		return nil, ErrInvalidSelection
	}

	var inStorage []int
	for _, box := range boxes {
		if box.Data.Status == model.BoxStatusInStorage {
			inStorage = append(inStorage, box.Key.Number)
		}
	}
	sort.Ints(inStorage)

	switch {
	case sel.All:
		if len(inStorage) == 0 {
			return nil, ErrNothingToRelease
		}
		return inStorage, nil
	case sel.Count > 0:
		if len(inStorage) == 0 {
			return nil, ErrNothingToRelease
		}
		if sel.Count > len(inStorage) {
			return nil, fmt.Errorf("%w: requested %d, in storage %d", ErrNotEnoughBoxes, sel.Count, len(inStorage))
		}
		return inStorage[:sel.Count], nil
	}

	byNumber := index(boxes)
	var numbers []int
	for _, n := range uniqueSorted(sel.Numbers) {
		box, ok := byNumber[n]
		if !ok {
			return nil, fmt.Errorf("%w: box %d", ErrBoxNotFound, n)
		}
		if box.Data.Status == model.BoxStatusInStorage {
			numbers = append(numbers, n)
		}
	}
	if len(numbers) == 0 {
		return nil, ErrNothingToRelease
	}
	return numbers, nil
}

func getShipment(ctx context.Context, tx store.Tx, id string) (model.Shipment, error) {
	shipment, err := tx.ShipmentGet(ctx, id)
	if errors.Is(err, store.ErrNoRows) {
		return model.Shipment{}, fmt.Errorf("%w: %s", ErrShipmentNotFound, id)
	}
	return shipment, err
}

func index(boxes []model.Box) map[int]model.Box {
	m := make(map[int]model.Box, len(boxes))
	for _, box := range boxes {
		m[box.Key.Number] = box
	}
	return m
}

func uniqueSorted(numbers []int) []int {
	s := slices.Clone(numbers)
	slices.Sort(s)
	return slices.Compact(s)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
