package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medbook/clinic-scheduling/internal/clinic"
)

type CreateSlotRequest struct {
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"`       // 2006-01-02
	StartTime string `json:"start_time"` // RFC 3339
	EndTime   string `json:"end_time"`   // RFC 3339
	Status    string `json:"status"`
}

type SlotResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
}

func slotResponse(s *clinic.TimeSlot) SlotResponse {
	return SlotResponse{
		ID:        s.ID,
		DoctorID:  s.DoctorID,
		Date:      s.Date.Format("2006-01-02"),
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Status:    string(s.Status),
	}
}

type BookAppointmentRequest struct {
	PatientID  string `json:"patient_id"`
	TimeSlotID string `json:"time_slot_id"`
}

// RescheduleRequest covers both variants: either time_slot_id for a
// swap to an existing slot, or date/start_time/end_time for a brand-new
// window.
type RescheduleRequest struct {
	TimeSlotID string `json:"time_slot_id,omitempty"`
	Date       string `json:"date,omitempty"`
	StartTime  string `json:"start_time,omitempty"`
	EndTime    string `json:"end_time,omitempty"`
}

type AppointmentResponse struct {
	ID         uuid.UUID  `json:"id"`
	PatientID  uuid.UUID  `json:"patient_id"`
	DoctorID   uuid.UUID  `json:"doctor_id"`
	TimeSlotID *uuid.UUID `json:"time_slot_id,omitempty"`
	Date       time.Time  `json:"date"`
	Status     string     `json:"status"`
}

func appointmentResponse(a *clinic.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:         a.ID,
		PatientID:  a.PatientID,
		DoctorID:   a.DoctorID,
		TimeSlotID: a.TimeSlotID,
		Date:       a.Date,
		Status:     string(a.Status),
	}
}

type HistoryResponse struct {
	ID          int64     `json:"id"`
	Description string    `json:"description"`
	NewStatus   *string   `json:"new_status,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type EnqueueRequest struct {
	DoctorID     string `json:"doctor_id"`
	PatientEmail string `json:"patient_email"`
}

type LeaveQueueRequest struct {
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
}

type ChangeQueueStatusRequest struct {
	Status string `json:"status"`
}

type CompleteQueueRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Status      string `json:"status"`
}

type QueueEntryResponse struct {
	ID            uuid.UUID  `json:"id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	Date          string     `json:"date"`
	Position      int        `json:"position"`
	Status        string     `json:"status"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
}

func queueEntryResponse(q *clinic.QueueEntry) QueueEntryResponse {
	return QueueEntryResponse{
		ID:            q.ID,
		DoctorID:      q.DoctorID,
		PatientID:     q.PatientID,
		Date:          q.Date.Format("2006-01-02"),
		Position:      q.Position,
		Status:        string(q.Status),
		AppointmentID: q.AppointmentID,
	}
}

type InvoiceResponse struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	CreatedBy     uuid.UUID `json:"created_by"`
	AmountCents   int64     `json:"amount_cents"`
	Status        string    `json:"status"`
}

func invoiceResponse(inv *clinic.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:            inv.ID,
		AppointmentID: inv.AppointmentID,
		PatientID:     inv.PatientID,
		CreatedBy:     inv.CreatedBy,
		AmountCents:   inv.AmountCents,
		Status:        string(inv.Status),
	}
}

type ClearedResponse struct {
	Cleared int64 `json:"cleared"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
