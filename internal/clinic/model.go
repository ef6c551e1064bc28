package clinic

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

type SlotStatus string

const (
	SlotOpen   SlotStatus = "open"
	SlotClosed SlotStatus = "closed"
)

func ValidSlotStatus(s SlotStatus) bool {
	return s == SlotOpen || s == SlotClosed
}

type AppointmentStatus string

const (
	StatusPending        AppointmentStatus = "pending"
	StatusConfirmed      AppointmentStatus = "confirmed"
	StatusPendingPayment AppointmentStatus = "pending_payment"
	StatusCompleted      AppointmentStatus = "completed"
	StatusCancelled      AppointmentStatus = "cancelled"
	StatusRescheduled    AppointmentStatus = "rescheduled"
)

// ActiveAppointmentStatuses are the statuses under which an appointment
// still owns its time slot. Cancelled and rescheduled records are
// superseded and release their claim.
var ActiveAppointmentStatuses = []AppointmentStatus{
	StatusPending, StatusConfirmed, StatusPendingPayment, StatusCompleted,
}

type QueueStatus string

const (
	QueueWaiting   QueueStatus = "waiting"
	QueueSkipped   QueueStatus = "skipped"
	QueueApproved  QueueStatus = "approved"
	QueueCancelled QueueStatus = "cancelled"
	QueueCompleted QueueStatus = "completed"
)

func ParseQueueStatus(s string) (QueueStatus, bool) {
	switch QueueStatus(s) {
	case QueueWaiting, QueueSkipped, QueueApproved, QueueCancelled, QueueCompleted:
		return QueueStatus(s), true
	}
	return "", false
}

// ActiveQueueStatus reports whether a status counts toward the dense
// 1..N position line for a doctor's day.
func ActiveQueueStatus(s QueueStatus) bool {
	return s == QueueWaiting || s == QueueSkipped
}

type InvoiceStatus string

const (
	InvoicePending InvoiceStatus = "pending"
	InvoicePaid    InvoiceStatus = "paid"
)

type User struct {
	ID                    uuid.UUID
	Name                  string
	Email                 string
	Role                  Role
	CompletedAppointments int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type TimeSlot struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Date      time.Time // calendar day, midnight UTC
	StartTime time.Time
	EndTime   time.Time
	Status    SlotStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID         uuid.UUID
	PatientID  uuid.UUID
	DoctorID   uuid.UUID
	TimeSlotID *uuid.UUID // nil once the slot has been deleted out from under a superseded record
	Date       time.Time  // scheduled start, copied from the bound slot
	Status     AppointmentStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type QueueEntry struct {
	ID            uuid.UUID
	DoctorID      uuid.UUID
	PatientID     uuid.UUID
	Date          time.Time // calendar day the patient joined
	Position      int       // 1-based, dense per doctor+day over active entries
	Status        QueueStatus
	AppointmentID *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Invoice struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
	CreatedBy     uuid.UUID // doctor who completed the consultation
	AmountCents   int64
	Status        InvoiceStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HistoryEntry is one immutable audit row. Never read back for control
// decisions.
type HistoryEntry struct {
	ID            int64
	AppointmentID uuid.UUID
	Description   string
	NewStatus     *AppointmentStatus
	CreatedAt     time.Time
}

// AppointmentFilter is an explicit filter: every optional predicate is a
// named field, nil means "not filtered".
type AppointmentFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Statuses  []AppointmentStatus
}
