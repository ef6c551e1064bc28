package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/medbook/clinic-scheduling/internal/clinic"
)

func TestHandleServiceError_StatusMapping(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{clinic.ErrInvalidWindow, http.StatusBadRequest, "invalid_window"},
		{clinic.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
		{clinic.ErrNotInQueue, http.StatusBadRequest, "not_in_queue"},
		{clinic.ErrMissingActor, http.StatusBadRequest, "missing_actor"},
		{clinic.ErrAppointmentInPast, http.StatusBadRequest, "appointment_in_past"},
		{clinic.ErrDoctorNotFound, http.StatusNotFound, "doctor_not_found"},
		{clinic.ErrSlotNotFound, http.StatusNotFound, "slot_not_found"},
		{clinic.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
		{clinic.ErrSlotOverlap, http.StatusConflict, "slot_overlap"},
		{clinic.ErrSlotAlreadyBooked, http.StatusConflict, "slot_already_booked"},
		{clinic.ErrSlotBeingBooked, http.StatusConflict, "slot_being_booked"},
		{clinic.ErrAlreadyQueued, http.StatusConflict, "already_queued"},
		{clinic.ErrQueueBusy, http.StatusConflict, "queue_busy"},
		{clinic.ErrConsultationInProgress, http.StatusConflict, "consultation_in_progress"},
		{clinic.ErrInvalidStatusTransition, http.StatusConflict, "invalid_status_transition"},
		{clinic.ErrForbidden, http.StatusForbidden, "forbidden"},
		{errors.New("pool exhausted"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.wantCode, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleServiceError(rec, tc.err)

			if rec.Code != tc.wantStatus {
				t.Fatalf("want status %d, got %d", tc.wantStatus, rec.Code)
			}
			var body ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error != tc.wantCode {
				t.Fatalf("want code %q, got %q", tc.wantCode, body.Error)
			}
		})
	}
}

func TestHandleServiceError_WrappedSentinels(t *testing.T) {
	rec := httptest.NewRecorder()
	handleServiceError(rec, fmt.Errorf("check overlap: %w", clinic.ErrSlotOverlap))

	if rec.Code != http.StatusConflict {
		t.Fatalf("want 409 for wrapped sentinel, got %d", rec.Code)
	}
}

func TestWriteJSON_SetsContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, map[string]string{"ok": "yes"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("want application/json, got %q", ct)
	}
}
