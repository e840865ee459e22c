package handler

import (
	"net/http"

	"github.com/iurnickita/warehouse/internal/api"
	"github.com/iurnickita/warehouse/internal/model"
	"github.com/iurnickita/warehouse/internal/service"
)

func (h *handler) ListRacks(w http.ResponseWriter, r *http.Request) {
	racks, err := h.service.ListRacks(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	racksJSON := make([]api.RackJSON, 0, len(racks))
	for _, rack := range racks {
		racksJSON = append(racksJSON, api.NewRackJSON(rack))
	}
	h.writeJSON(w, http.StatusOK, racksJSON)
}

func (h *handler) CreateRack(w http.ResponseWriter, r *http.Request) {
	var rackJSON api.RackJSON
	if err := h.decode(r, &rackJSON); err != nil {
		h.writeError(w, err)
		return
	}
	rack, err := h.service.CreateRack(r.Context(), model.Rack{
		Code: rackJSON.Code,
		Data: model.RackData{Location: rackJSON.Location, CapacityTotal: rackJSON.CapacityTotal},
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, api.NewRackJSON(rack))
}

func (h *handler) CreateShipment(w http.ResponseWriter, r *http.Request) {
	var shipmentJSON api.ShipmentJSONRequest
	if err := h.decode(r, &shipmentJSON); err != nil {
		h.writeError(w, err)
		return
	}
	shipment, err := h.service.CreateShipment(r.Context(), shipmentJSON.Model())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, api.NewShipmentJSON(shipment, nil))
}

func (h *handler) GetShipment(w http.ResponseWriter, r *http.Request) {
	shipment, boxes, err := h.service.GetShipment(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.NewShipmentJSON(shipment, boxes))
}

func (h *handler) AssignBoxes(w http.ResponseWriter, r *http.Request) {
	var assignJSON api.AssignBoxesJSONRequest
	if err := h.decode(r, &assignJSON); err != nil {
		h.writeError(w, err)
		return
	}
	rack, err := h.service.AssignBoxes(r.Context(), r.PathValue("id"), assignJSON.RackID, assignJSON.BoxNumbers)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.NewRackJSON(rack))
}

func (h *handler) ReleaseBoxes(w http.ResponseWriter, r *http.Request) {
	var releaseJSON api.ReleaseBoxesJSONRequest
	if err := h.decode(r, &releaseJSON); err != nil {
		h.writeError(w, err)
		return
	}
	releasedBy := releaseJSON.ReleasedBy
	if releasedBy == "" {
		releasedBy = userCode(r)
	}
	withdrawal, shipment, err := h.service.ReleaseBoxes(r.Context(), service.BoxRelease{
		ShipmentID:    r.PathValue("id"),
		Selection:     releaseJSON.SelectionJSON.Model(),
		CollectorID:   releaseJSON.CollectorID,
		ReleasePhotos: releaseJSON.ReleasePhotos,
		ReleasedBy:    releasedBy,
		Notes:         releaseJSON.Notes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.ReleaseBoxesJSONResponse{
		Withdrawal:        api.NewWithdrawalJSON(withdrawal),
		RemainingBoxCount: shipment.Data.CurrentBoxCount,
		ShipmentStatus:    shipment.Data.Status,
	})
}

func (h *handler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var withdrawalJSON api.WithdrawalJSONRequest
	if err := h.decode(r, &withdrawalJSON); err != nil {
		h.writeError(w, err)
		return
	}
	withdrawal, err := h.service.CreateWithdrawal(r.Context(), withdrawalJSON.Model())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, api.NewWithdrawalJSON(withdrawal))
}

func (h *handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	withdrawals, err := h.service.ListWithdrawals(r.Context(), r.URL.Query().Get("shipmentId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if len(withdrawals) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	withdrawalsJSON := make([]api.WithdrawalJSON, 0, len(withdrawals))
	for _, withdrawal := range withdrawals {
		withdrawalsJSON = append(withdrawalsJSON, api.NewWithdrawalJSON(withdrawal))
	}
	h.writeJSON(w, http.StatusOK, withdrawalsJSON)
}
