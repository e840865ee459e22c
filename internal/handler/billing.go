package handler

import (
	"net/http"
	"strconv"

	"github.com/iurnickita/warehouse/internal/api"
	"github.com/iurnickita/warehouse/internal/invoice"
	"github.com/iurnickita/warehouse/internal/model"
)

func (h *handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.GetSettings(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.NewSettingsJSON(settings))
}

func (h *handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var settings model.BillingSettings
	if err := h.decode(r, &settings); err != nil {
		h.writeError(w, err)
		return
	}
	settings, err := h.service.PutSettings(r.Context(), settings)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.NewSettingsJSON(settings))
}

// ListChargeTypes ?category=RELEASE&active=true
func (h *handler) ListChargeTypes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var activeOnly bool
	if s := query.Get("active"); s != "" {
		var err error
		if activeOnly, err = strconv.ParseBool(s); err != nil {
			http.Error(w, "active: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	chargeTypes, err := h.service.ListChargeTypes(r.Context(), query.Get("category"), activeOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if chargeTypes == nil {
		chargeTypes = []model.ChargeType{}
	}
	h.writeJSON(w, http.StatusOK, chargeTypes)
}

func (h *handler) CreateChargeType(w http.ResponseWriter, r *http.Request) {
	var chargeTypeJSON api.ChargeTypeJSONRequest
	if err := h.decode(r, &chargeTypeJSON); err != nil {
		h.writeError(w, err)
		return
	}
	chargeType, err := h.service.CreateChargeType(r.Context(), chargeTypeJSON.Model())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, chargeType)
}

func (h *handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var invoiceJSON api.InvoiceJSONRequest
	if err := h.decode(r, &invoiceJSON); err != nil {
		h.writeError(w, err)
		return
	}
	inv, err := h.service.CreateInvoice(r.Context(), invoiceJSON.ShipmentID, invoiceJSON.Lines(), invoiceJSON.Notes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, api.NewInvoiceJSON(inv, nil))
}

func (h *handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, payments, err := h.service.GetInvoice(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.NewInvoiceJSON(inv, payments))
}

func (h *handler) GetInvoiceByNumber(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.GetInvoiceByNumber(r.Context(), r.PathValue("number"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.NewInvoiceJSON(inv, nil))
}

func (h *handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var paymentJSON api.PaymentJSONRequest
	if err := h.decode(r, &paymentJSON); err != nil {
		h.writeError(w, err)
		return
	}
	inv, err := h.service.RecordPayment(r.Context(), r.PathValue("id"), invoice.PaymentInput{
		Amount:         paymentJSON.Amount,
		Method:         paymentJSON.PaymentMethod,
		TransactionRef: paymentJSON.TransactionRef,
		ReceiptNumber:  paymentJSON.ReceiptNumber,
		IdempotencyKey: paymentJSON.IdempotencyKey,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.NewInvoiceJSON(inv, nil))
}
