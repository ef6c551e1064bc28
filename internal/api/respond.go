package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/medbook/clinic-scheduling/internal/clinic"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// handleServiceError maps the clinic sentinel errors onto HTTP status
// codes: validation 400, missing entities 404, state conflicts 409,
// identity mismatches 403, anything else 500.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, clinic.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, "invalid_window", err.Error())
	case errors.Is(err, clinic.ErrInvalidSlotStatus):
		writeError(w, http.StatusBadRequest, "invalid_slot_status", err.Error())
	case errors.Is(err, clinic.ErrInvalidQueueStatus):
		writeError(w, http.StatusBadRequest, "invalid_queue_status", err.Error())
	case errors.Is(err, clinic.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
	case errors.Is(err, clinic.ErrNotInQueue):
		writeError(w, http.StatusBadRequest, "not_in_queue", err.Error())
	case errors.Is(err, clinic.ErrMissingActor):
		writeError(w, http.StatusBadRequest, "missing_actor", err.Error())
	case errors.Is(err, clinic.ErrAppointmentInPast):
		writeError(w, http.StatusBadRequest, "appointment_in_past", err.Error())

	case errors.Is(err, clinic.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, clinic.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, clinic.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error())
	case errors.Is(err, clinic.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, clinic.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, clinic.ErrQueueEntryNotFound):
		writeError(w, http.StatusNotFound, "queue_entry_not_found", err.Error())
	case errors.Is(err, clinic.ErrInvoiceNotFound):
		writeError(w, http.StatusNotFound, "invoice_not_found", err.Error())

	case errors.Is(err, clinic.ErrSlotOverlap):
		writeError(w, http.StatusConflict, "slot_overlap", err.Error())
	case errors.Is(err, clinic.ErrSlotNotOpen):
		writeError(w, http.StatusConflict, "slot_not_open", err.Error())
	case errors.Is(err, clinic.ErrSlotAlreadyBooked):
		writeError(w, http.StatusConflict, "slot_already_booked", err.Error())
	case errors.Is(err, clinic.ErrSlotHasAppointment):
		writeError(w, http.StatusConflict, "slot_has_appointment", err.Error())
	case errors.Is(err, clinic.ErrSlotDoctorMismatch):
		writeError(w, http.StatusConflict, "slot_doctor_mismatch", err.Error())
	case errors.Is(err, clinic.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, clinic.ErrAlreadyQueued):
		writeError(w, http.StatusConflict, "already_queued", err.Error())
	case errors.Is(err, clinic.ErrQueueBusy):
		writeError(w, http.StatusConflict, "queue_busy", "queue is being updated, please retry shortly")
	case errors.Is(err, clinic.ErrConsultationInProgress):
		writeError(w, http.StatusConflict, "consultation_in_progress", err.Error())
	case errors.Is(err, clinic.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())

	case errors.Is(err, clinic.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
