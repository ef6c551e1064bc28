package clinic

import "errors"

// Validation failures, surfaced as 400.
var (
	ErrInvalidWindow      = errors.New("invalid time window")
	ErrInvalidSlotStatus  = errors.New("invalid slot status")
	ErrInvalidQueueStatus = errors.New("invalid queue status")
	ErrInvalidAmount      = errors.New("amount must be a positive number of cents")
	ErrNotInQueue         = errors.New("patient is not in this doctor's queue")
	ErrMissingActor       = errors.New("acting user is required")
	ErrAppointmentInPast  = errors.New("appointment is not in the future")
)

// Missing referenced entities, surfaced as 404.
var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrQueueEntryNotFound  = errors.New("queue entry not found")
	ErrInvoiceNotFound     = errors.New("invoice not found")
)

// State and uniqueness conflicts, surfaced as 409. The caller has to
// resolve the conflict and retry on its own.
var (
	ErrSlotOverlap             = errors.New("slot overlaps an existing slot for this doctor")
	ErrSlotNotOpen             = errors.New("slot is not open")
	ErrSlotAlreadyBooked       = errors.New("slot already has an appointment")
	ErrSlotHasAppointment      = errors.New("slot is still referenced by an appointment")
	ErrSlotDoctorMismatch      = errors.New("slot belongs to a different doctor")
	ErrSlotBeingBooked         = errors.New("slot is currently being booked, please retry")
	ErrAlreadyQueued           = errors.New("patient already has an active queue entry for this doctor")
	ErrQueueBusy               = errors.New("queue is being updated, please retry")
	ErrConsultationInProgress  = errors.New("doctor already has an approved consultation")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// ErrForbidden covers identity checks on the queue clearing endpoints.
var ErrForbidden = errors.New("caller identity does not match target")
