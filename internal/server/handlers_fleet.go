package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/gearbox-hq/gearbox/internal/ctxutil"
	"github.com/gearbox-hq/gearbox/internal/model"
	"github.com/gearbox-hq/gearbox/internal/storage"
)

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(r.PathValue(name))
}

// pagination reads limit/offset query params with clamped defaults.
func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

// writeStorageError maps storage sentinels onto API statuses.
func (h *Handlers) writeStorageError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "not found")
	case errors.Is(err, storage.ErrConflict):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, err.Error())
	default:
		h.logger.Error("storage error", "error", err, "path", r.URL.Path)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal error")
	}
}

// HandleCreateVehicle handles POST /v1/vehicles.
func (h *Handlers) HandleCreateVehicle(w http.ResponseWriter, r *http.Request) {
	var req model.CreateVehicleRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.VIN == "" || req.Make == "" || req.Model == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "vin, make, and model are required")
		return
	}

	vehicle, err := h.db.CreateVehicle(r.Context(), model.Vehicle{
		OrgID:        ctxutil.OrgID(r.Context()),
		OwnerID:      req.OwnerID,
		VIN:          req.VIN,
		Make:         req.Make,
		Model:        req.Model,
		Year:         req.Year,
		LicensePlate: req.LicensePlate,
		Mileage:      req.Mileage,
		Metadata:     req.Metadata,
	})
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, vehicle)
}

// HandleGetVehicle handles GET /v1/vehicles/{vehicle_id}.
func (h *Handlers) HandleGetVehicle(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "vehicle_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid vehicle id")
		return
	}
	vehicle, err := h.db.GetVehicle(r.Context(), ctxutil.OrgID(r.Context()), id)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, vehicle)
}

// HandleListVehicles handles GET /v1/vehicles. Clients see only their own
// vehicles.
func (h *Handlers) HandleListVehicles(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	var ownerID *uuid.UUID
	if claims, ok := ctxutil.Claims(r.Context()); ok && claims.Role == model.RoleClient {
		account, err := h.db.GetAccountByAccountID(r.Context(), claims.AccountID)
		if err != nil {
			h.writeStorageError(w, r, err)
			return
		}
		ownerID = &account.ID
	}

	vehicles, err := h.db.ListVehicles(r.Context(), ctxutil.OrgID(r.Context()), ownerID, limit, offset)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeList(w, r, vehicles, len(vehicles), limit, offset)
}

// HandleUpdateVehicleMileage handles PATCH /v1/vehicles/{vehicle_id}/mileage.
func (h *Handlers) HandleUpdateVehicleMileage(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "vehicle_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid vehicle id")
		return
	}
	var req struct {
		Mileage int `json:"mileage"`
	}
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.Mileage < 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "mileage must be non-negative")
		return
	}
	if err := h.db.UpdateVehicleMileage(r.Context(), ctxutil.OrgID(r.Context()), id, req.Mileage); err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteVehicle handles DELETE /v1/vehicles/{vehicle_id}.
func (h *Handlers) HandleDeleteVehicle(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "vehicle_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid vehicle id")
		return
	}
	if err := h.db.DeleteVehicle(r.Context(), ctxutil.OrgID(r.Context()), id); err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCreateAppointment handles POST /v1/appointments.
func (h *Handlers) HandleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req model.CreateAppointmentRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.VehicleID == uuid.Nil || req.ServiceType == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "vehicle_id and service_type are required")
		return
	}
	if !req.EndsAt.After(req.StartsAt) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "ends_at must be after starts_at")
		return
	}

	appt, err := h.db.CreateAppointment(r.Context(), model.Appointment{
		OrgID:       ctxutil.OrgID(r.Context()),
		VehicleID:   req.VehicleID,
		ClientID:    req.ClientID,
		ServiceType: req.ServiceType,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		Notes:       req.Notes,
	})
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, appt)
}

// HandleListAppointments handles GET /v1/appointments?from=&to=.
func (h *Handlers) HandleListAppointments(w http.ResponseWriter, r *http.Request) {
	limit, _ := pagination(r)

	from := time.Now()
	to := from.AddDate(0, 0, 7)
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "from must be RFC3339")
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "to must be RFC3339")
			return
		}
		to = t
	}

	appts, err := h.db.ListAppointmentsInRange(r.Context(), ctxutil.OrgID(r.Context()), from, to, limit)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeList(w, r, appts, len(appts), limit, 0)
}

// HandleUpdateAppointmentStatus handles PATCH /v1/appointments/{appointment_id}/status.
func (h *Handlers) HandleUpdateAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "appointment_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid appointment id")
		return
	}
	var req struct {
		Status model.AppointmentStatus `json:"status"`
	}
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	switch req.Status {
	case model.AppointmentScheduled, model.AppointmentConfirmed, model.AppointmentInService,
		model.AppointmentCompleted, model.AppointmentCancelled:
	default:
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid status")
		return
	}
	if err := h.db.UpdateAppointmentStatus(r.Context(), ctxutil.OrgID(r.Context()), id, req.Status); err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCreateInvoice handles POST /v1/invoices.
func (h *Handlers) HandleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req model.CreateInvoiceRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if len(req.Lines) == 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "at least one line is required")
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = "EUR"
	}

	inv, err := h.db.CreateInvoice(r.Context(), model.Invoice{
		OrgID:         ctxutil.OrgID(r.Context()),
		AppointmentID: req.AppointmentID,
		ClientID:      req.ClientID,
		Lines:         req.Lines,
		Currency:      currency,
	})
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, inv)
}

// HandleGetInvoice handles GET /v1/invoices/{invoice_id}.
func (h *Handlers) HandleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "invoice_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid invoice id")
		return
	}
	inv, err := h.db.GetInvoice(r.Context(), ctxutil.OrgID(r.Context()), id)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, inv)
}

// HandleListInvoices handles GET /v1/invoices?status=.
func (h *Handlers) HandleListInvoices(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	var status *model.InvoiceStatus
	if v := r.URL.Query().Get("status"); v != "" {
		s := model.InvoiceStatus(v)
		switch s {
		case model.InvoiceDraft, model.InvoiceIssued, model.InvoicePaid, model.InvoiceVoid:
			status = &s
		default:
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid status filter")
			return
		}
	}

	invoices, err := h.db.ListInvoices(r.Context(), ctxutil.OrgID(r.Context()), status, limit, offset)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeList(w, r, invoices, len(invoices), limit, offset)
}

// HandleTransitionInvoice handles POST /v1/invoices/{invoice_id}/transition.
// Illegal transitions surface as 409.
func (h *Handlers) HandleTransitionInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "invoice_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid invoice id")
		return
	}
	var req struct {
		Status model.InvoiceStatus `json:"status"`
	}
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := h.db.TransitionInvoice(r.Context(), ctxutil.OrgID(r.Context()), id, req.Status); err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCreateAssessment handles POST /v1/assessments.
func (h *Handlers) HandleCreateAssessment(w http.ResponseWriter, r *http.Request) {
	var req model.CreateAssessmentRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.VehicleID == uuid.Nil || req.Component == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "vehicle_id and component are required")
		return
	}

	claims, _ := ctxutil.Claims(r.Context())
	assessment, err := h.db.CreateAssessment(r.Context(), model.Assessment{
		OrgID:      ctxutil.OrgID(r.Context()),
		VehicleID:  req.VehicleID,
		AssessorID: claims.AccountID,
		Component:  req.Component,
		Severity:   req.Severity,
		Summary:    req.Summary,
		Findings:   req.Findings,
	})
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, assessment)
}

// HandleListAssessments handles GET /v1/vehicles/{vehicle_id}/assessments.
func (h *Handlers) HandleListAssessments(w http.ResponseWriter, r *http.Request) {
	vehicleID, err := pathUUID(r, "vehicle_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid vehicle id")
		return
	}
	limit, _ := pagination(r)

	assessments, err := h.db.ListAssessmentsByVehicle(r.Context(), ctxutil.OrgID(r.Context()), vehicleID, limit)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeList(w, r, assessments, len(assessments), limit, 0)
}
