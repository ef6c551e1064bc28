package clinic

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the service.
//
// InTx runs fn against a repository bound to a single transaction: the
// caller owns the unit of work, fn participants never commit or roll
// back themselves. Every multi-row lifecycle transition goes through it.
type Repository interface {
	InTx(ctx context.Context, fn func(Repository) error) error

	// Users
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*User, error)
	IncrementCompletedAppointments(ctx context.Context, userID uuid.UUID) error

	// Time slots
	CreateTimeSlot(ctx context.Context, s *TimeSlot) error
	GetTimeSlot(ctx context.Context, id uuid.UUID) (*TimeSlot, error)
	GetOverlappingSlot(ctx context.Context, doctorID uuid.UUID, day, start, end time.Time) (*TimeSlot, error)
	UpdateTimeSlotStatus(ctx context.Context, id uuid.UUID, status SlotStatus) error
	DeleteTimeSlot(ctx context.Context, id uuid.UUID) error
	ListOpenSlots(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]TimeSlot, error)
	CountActiveAppointmentsForSlot(ctx context.Context, slotID uuid.UUID) (int, error)
	ClearSlotReferences(ctx context.Context, slotID uuid.UUID) error

	// Appointments
	CreateAppointment(ctx context.Context, a *Appointment) error
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetActiveAppointmentForSlot(ctx context.Context, slotID uuid.UUID) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error)

	// History (append-only)
	InsertHistory(ctx context.Context, h HistoryEntry) error
	ListHistory(ctx context.Context, appointmentID uuid.UUID) ([]HistoryEntry, error)

	// Invoices
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoiceByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, from, to InvoiceStatus) (*Invoice, error)

	// Queue
	CreateQueueEntry(ctx context.Context, q *QueueEntry) error
	GetQueueEntry(ctx context.Context, id uuid.UUID) (*QueueEntry, error)
	GetActiveQueueEntry(ctx context.Context, doctorID, patientID uuid.UUID) (*QueueEntry, error)
	GetApprovedQueueEntry(ctx context.Context, doctorID uuid.UUID) (*QueueEntry, error)
	GetQueueEntryByAppointment(ctx context.Context, appointmentID uuid.UUID) (*QueueEntry, error)
	MaxQueuePosition(ctx context.Context, doctorID uuid.UUID, day time.Time) (int, error)
	ListQueue(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]QueueEntry, error)
	UpdateQueueStatus(ctx context.Context, id uuid.UUID, status QueueStatus) (*QueueEntry, error)
	LinkQueueAppointment(ctx context.Context, id, appointmentID uuid.UUID) error
	DeleteQueueEntry(ctx context.Context, id uuid.UUID) error
	CompactQueuePositions(ctx context.Context, doctorID uuid.UUID, day time.Time, removedPos int) error
	DeleteQueueForDoctor(ctx context.Context, doctorID uuid.UUID) (int64, error)
	DeleteQueueForPatient(ctx context.Context, patientID uuid.UUID) (int64, error)
	CancelStaleQueueEntries(ctx context.Context, before time.Time) (int64, error)
}
