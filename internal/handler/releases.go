package handler

import (
	"net/http"

	"github.com/iurnickita/warehouse/internal/api"
	"github.com/iurnickita/warehouse/internal/model"
	"github.com/iurnickita/warehouse/internal/release"
)

func draftInput(r *http.Request, draftJSON api.ReleaseDraftJSONRequest) release.DraftInput {
	in := release.DraftInput{
		ShipmentID:    draftJSON.ShipmentID,
		Selection:     draftJSON.SelectionJSON.Model(),
		ChargeTypeIDs: draftJSON.ChargeTypeIDs,
		CreatedBy:     userCode(r),
	}
	if draftJSON.CustomCharge != nil {
		in.Custom = &model.CustomCharge{
			Description: draftJSON.CustomCharge.Description,
			Amount:      draftJSON.CustomCharge.Amount,
		}
	}
	return in
}

func (h *handler) DraftRelease(w http.ResponseWriter, r *http.Request) {
	var draftJSON api.ReleaseDraftJSONRequest
	if err := h.decode(r, &draftJSON); err != nil {
		h.writeError(w, err)
		return
	}
	run, err := h.service.DraftRelease(r.Context(), draftInput(r, draftJSON))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, api.NewReleaseJSON(run))
}

func (h *handler) RedraftRelease(w http.ResponseWriter, r *http.Request) {
	var draftJSON api.ReleaseDraftJSONRequest
	if err := h.decode(r, &draftJSON); err != nil {
		h.writeError(w, err)
		return
	}
	run, err := h.service.RedraftRelease(r.Context(), r.PathValue("id"), draftInput(r, draftJSON))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.NewReleaseJSON(run))
}

func (h *handler) GetRelease(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.GetRelease(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.NewReleaseJSON(run))
}

func (h *handler) ExecuteRelease(w http.ResponseWriter, r *http.Request) {
	var decisionJSON api.ReleaseDecisionJSONRequest
	if err := h.decode(r, &decisionJSON); err != nil {
		h.writeError(w, err)
		return
	}
	decision := decisionJSON.Model()
	if decision.ReleasedBy == "" {
		decision.ReleasedBy = userCode(r)
	}
	record, err := h.service.ExecuteRelease(r.Context(), r.PathValue("id"), decision)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.NewReleaseRecordJSON(record))
}

func (h *handler) ResumeRelease(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.ResumeRelease(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.NewReleaseRecordJSON(record))
}
