package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so every query
// method works identically inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool *pgxpool.Pool
	q    querier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, q: pool}
}

// InTx begins a transaction and hands fn a repository bound to it.
// Nested calls reuse the surrounding transaction.
func (r *PgRepository) InTx(ctx context.Context, fn func(Repository) error) error {
	if _, inTx := r.q.(pgx.Tx); inTx {
		return fn(r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&PgRepository{pool: r.pool, q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// uniqueViolation maps a 23505 on a known constraint to its domain error.
func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil
	}
	switch pgErr.ConstraintName {
	case "time_slots_doctor_window_key":
		return ErrSlotOverlap
	case "appointments_active_slot_key":
		return ErrSlotAlreadyBooked
	case "invoices_appointment_id_key":
		return ErrInvalidStatusTransition
	case "queue_entries_active_patient_key":
		return ErrAlreadyQueued
	case "queue_entries_approved_doctor_key":
		return ErrConsultationInProgress
	}
	return nil
}

// Scan helpers

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Role,
		&u.CompletedAppointments,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func scanTimeSlot(row pgx.Row) (*TimeSlot, error) {
	var s TimeSlot
	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.Date,
		&s.StartTime,
		&s.EndTime,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var slotID *uuid.UUID
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&slotID,
		&a.Date,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	a.TimeSlotID = slotID
	return &a, nil
}

func scanQueueEntry(row pgx.Row) (*QueueEntry, error) {
	var q QueueEntry
	var apptID *uuid.UUID
	err := row.Scan(
		&q.ID,
		&q.DoctorID,
		&q.PatientID,
		&q.Date,
		&q.Position,
		&q.Status,
		&apptID,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQueueEntryNotFound
		}
		return nil, err
	}
	q.AppointmentID = apptID
	return &q, nil
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID,
		&inv.AppointmentID,
		&inv.PatientID,
		&inv.CreatedBy,
		&inv.AmountCents,
		&inv.Status,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// Users

func (r *PgRepository) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, name, email, role, completed_appointments, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (r *PgRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, name, email, role, completed_appointments, created_at, updated_at
		FROM users
		WHERE email = $1
	`, email)
	return scanUser(row)
}

func (r *PgRepository) GetDoctor(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, name, email, role, completed_appointments, created_at, updated_at
		FROM users
		WHERE id = $1 AND role = 'doctor'
	`, id)
	u, err := scanUser(row)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrDoctorNotFound
	}
	return u, err
}

func (r *PgRepository) IncrementCompletedAppointments(ctx context.Context, userID uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE users
		SET completed_appointments = completed_appointments + 1,
		    updated_at = now()
		WHERE id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("increment completed appointments: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Time slots

func (r *PgRepository) CreateTimeSlot(ctx context.Context, s *TimeSlot) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	row := r.q.QueryRow(ctx, `
		INSERT INTO time_slots (id, doctor_id, slot_date, start_time, end_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING created_at, updated_at
	`, s.ID, s.DoctorID, s.Date, s.StartTime, s.EndTime, s.Status)
	if err := row.Scan(&s.CreatedAt, &s.UpdatedAt); err != nil {
		if mapped := uniqueViolation(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert time slot: %w", err)
	}
	return nil
}

func (r *PgRepository) GetTimeSlot(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, doctor_id, slot_date, start_time, end_time, status, created_at, updated_at
		FROM time_slots
		WHERE id = $1
	`, id)
	return scanTimeSlot(row)
}

func (r *PgRepository) GetOverlappingSlot(ctx context.Context, doctorID uuid.UUID, day, start, end time.Time) (*TimeSlot, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, doctor_id, slot_date, start_time, end_time, status, created_at, updated_at
		FROM time_slots
		WHERE doctor_id = $1
		  AND slot_date = $2
		  AND start_time < $4
		  AND end_time > $3
		LIMIT 1
	`, doctorID, day, start, end)
	return scanTimeSlot(row)
}

func (r *PgRepository) UpdateTimeSlotStatus(ctx context.Context, id uuid.UUID, status SlotStatus) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE time_slots
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("update slot status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *PgRepository) DeleteTimeSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM time_slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete time slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *PgRepository) ListOpenSlots(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]TimeSlot, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, doctor_id, slot_date, start_time, end_time, status, created_at, updated_at
		FROM time_slots
		WHERE doctor_id = $1
		  AND slot_date = $2
		  AND status = 'open'
		ORDER BY start_time
	`, doctorID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TimeSlot
	for rows.Next() {
		s, err := scanTimeSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

func (r *PgRepository) CountActiveAppointmentsForSlot(ctx context.Context, slotID uuid.UUID) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE time_slot_id = $1
		  AND status IN ('pending', 'confirmed', 'pending_payment', 'completed')
	`, slotID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count slot appointments: %w", err)
	}
	return n, nil
}

// ClearSlotReferences detaches superseded appointments from a slot so the
// slot row can be deleted without breaking the foreign key.
func (r *PgRepository) ClearSlotReferences(ctx context.Context, slotID uuid.UUID) error {
	_, err := r.q.Exec(ctx, `
		UPDATE appointments
		SET time_slot_id = NULL,
		    updated_at = now()
		WHERE time_slot_id = $1
		  AND status IN ('cancelled', 'rescheduled')
	`, slotID)
	if err != nil {
		return fmt.Errorf("clear slot references: %w", err)
	}
	return nil
}

// Appointments

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	row := r.q.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, time_slot_id, scheduled_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING created_at, updated_at
	`, a.ID, a.PatientID, a.DoctorID, a.TimeSlotID, a.Date, a.Status)
	if err := row.Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		if mapped := uniqueViolation(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, patient_id, doctor_id, time_slot_id, scheduled_at, status, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetActiveAppointmentForSlot(ctx context.Context, slotID uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, patient_id, doctor_id, time_slot_id, scheduled_at, status, created_at, updated_at
		FROM appointments
		WHERE time_slot_id = $1
		  AND status IN ('pending', 'confirmed', 'pending_payment', 'completed')
	`, slotID)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING id, patient_id, doctor_id, time_slot_id, scheduled_at, status, created_at, updated_at
	`, id, to, from)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	// Each nil filter field collapses to a tautology, so one statement
	// covers every combination.
	statuses := f.Statuses
	if len(statuses) == 0 {
		statuses = nil
	}
	rows, err := r.q.Query(ctx, `
		SELECT id, patient_id, doctor_id, time_slot_id, scheduled_at, status, created_at, updated_at
		FROM appointments
		WHERE ($1::uuid IS NULL OR patient_id = $1)
		  AND ($2::uuid IS NULL OR doctor_id = $2)
		  AND ($3::text[] IS NULL OR status = ANY($3))
		ORDER BY scheduled_at
	`, f.PatientID, f.DoctorID, statusStrings(statuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func statusStrings(statuses []AppointmentStatus) []string {
	if statuses == nil {
		return nil
	}
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// History

func (r *PgRepository) InsertHistory(ctx context.Context, h HistoryEntry) error {
	var newStatus *string
	if h.NewStatus != nil {
		s := string(*h.NewStatus)
		newStatus = &s
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO appointment_history (appointment_id, description, new_status, created_at)
		VALUES ($1, $2, $3, now())
	`, h.AppointmentID, h.Description, newStatus)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func (r *PgRepository) ListHistory(ctx context.Context, appointmentID uuid.UUID) ([]HistoryEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, appointment_id, description, new_status, created_at
		FROM appointment_history
		WHERE appointment_id = $1
		ORDER BY id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		var newStatus *string
		if err := rows.Scan(&h.ID, &h.AppointmentID, &h.Description, &newStatus, &h.CreatedAt); err != nil {
			return nil, err
		}
		if newStatus != nil {
			s := AppointmentStatus(*newStatus)
			h.NewStatus = &s
		}
		result = append(result, h)
	}
	return result, rows.Err()
}

// Invoices

func (r *PgRepository) CreateInvoice(ctx context.Context, inv *Invoice) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	row := r.q.QueryRow(ctx, `
		INSERT INTO invoices (id, appointment_id, patient_id, created_by, amount_cents, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING created_at, updated_at
	`, inv.ID, inv.AppointmentID, inv.PatientID, inv.CreatedBy, inv.AmountCents, inv.Status)
	if err := row.Scan(&inv.CreatedAt, &inv.UpdatedAt); err != nil {
		if mapped := uniqueViolation(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

func (r *PgRepository) GetInvoiceByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Invoice, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, appointment_id, patient_id, created_by, amount_cents, status, created_at, updated_at
		FROM invoices
		WHERE appointment_id = $1
	`, appointmentID)
	return scanInvoice(row)
}

func (r *PgRepository) UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, from, to InvoiceStatus) (*Invoice, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE invoices
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING id, appointment_id, patient_id, created_by, amount_cents, status, created_at, updated_at
	`, id, to, from)
	return scanInvoice(row)
}

// Queue

func (r *PgRepository) CreateQueueEntry(ctx context.Context, q *QueueEntry) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	row := r.q.QueryRow(ctx, `
		INSERT INTO queue_entries (id, doctor_id, patient_id, queue_date, position, status, appointment_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING created_at, updated_at
	`, q.ID, q.DoctorID, q.PatientID, q.Date, q.Position, q.Status, q.AppointmentID)
	if err := row.Scan(&q.CreatedAt, &q.UpdatedAt); err != nil {
		if mapped := uniqueViolation(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert queue entry: %w", err)
	}
	return nil
}

func (r *PgRepository) GetQueueEntry(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, doctor_id, patient_id, queue_date, position, status, appointment_id, created_at, updated_at
		FROM queue_entries
		WHERE id = $1
	`, id)
	return scanQueueEntry(row)
}

func (r *PgRepository) GetActiveQueueEntry(ctx context.Context, doctorID, patientID uuid.UUID) (*QueueEntry, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, doctor_id, patient_id, queue_date, position, status, appointment_id, created_at, updated_at
		FROM queue_entries
		WHERE doctor_id = $1
		  AND patient_id = $2
		  AND status IN ('waiting', 'skipped')
	`, doctorID, patientID)
	return scanQueueEntry(row)
}

func (r *PgRepository) GetApprovedQueueEntry(ctx context.Context, doctorID uuid.UUID) (*QueueEntry, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, doctor_id, patient_id, queue_date, position, status, appointment_id, created_at, updated_at
		FROM queue_entries
		WHERE doctor_id = $1
		  AND status = 'approved'
	`, doctorID)
	return scanQueueEntry(row)
}

func (r *PgRepository) GetQueueEntryByAppointment(ctx context.Context, appointmentID uuid.UUID) (*QueueEntry, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, doctor_id, patient_id, queue_date, position, status, appointment_id, created_at, updated_at
		FROM queue_entries
		WHERE appointment_id = $1
	`, appointmentID)
	return scanQueueEntry(row)
}

// MaxQueuePosition looks at every entry for the day, not just active
// ones, so a number handed to an approved or cancelled patient is never
// re-issued the same day.
func (r *PgRepository) MaxQueuePosition(ctx context.Context, doctorID uuid.UUID, day time.Time) (int, error) {
	var max int
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(MAX(position), 0)
		FROM queue_entries
		WHERE doctor_id = $1
		  AND queue_date = $2
	`, doctorID, day).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max queue position: %w", err)
	}
	return max, nil
}

func (r *PgRepository) ListQueue(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]QueueEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, doctor_id, patient_id, queue_date, position, status, appointment_id, created_at, updated_at
		FROM queue_entries
		WHERE doctor_id = $1
		  AND queue_date = $2
		ORDER BY position
	`, doctorID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []QueueEntry
	for rows.Next() {
		q, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *q)
	}
	return result, rows.Err()
}

func (r *PgRepository) UpdateQueueStatus(ctx context.Context, id uuid.UUID, status QueueStatus) (*QueueEntry, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE queue_entries
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING id, doctor_id, patient_id, queue_date, position, status, appointment_id, created_at, updated_at
	`, id, status)
	q, err := scanQueueEntry(row)
	if err != nil {
		if mapped := uniqueViolation(err); mapped != nil {
			return nil, mapped
		}
		return nil, err
	}
	return q, nil
}

func (r *PgRepository) LinkQueueAppointment(ctx context.Context, id, appointmentID uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE queue_entries
		SET appointment_id = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, appointmentID)
	if err != nil {
		return fmt.Errorf("link queue appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrQueueEntryNotFound
	}
	return nil
}

func (r *PgRepository) DeleteQueueEntry(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM queue_entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete queue entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrQueueEntryNotFound
	}
	return nil
}

// CompactQueuePositions shifts every active entry behind the removed
// position down by one, keeping the 1..N sequence dense.
func (r *PgRepository) CompactQueuePositions(ctx context.Context, doctorID uuid.UUID, day time.Time, removedPos int) error {
	_, err := r.q.Exec(ctx, `
		UPDATE queue_entries
		SET position = position - 1,
		    updated_at = now()
		WHERE doctor_id = $1
		  AND queue_date = $2
		  AND status IN ('waiting', 'skipped')
		  AND position > $3
	`, doctorID, day, removedPos)
	if err != nil {
		return fmt.Errorf("compact queue positions: %w", err)
	}
	return nil
}

func (r *PgRepository) DeleteQueueForDoctor(ctx context.Context, doctorID uuid.UUID) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM queue_entries WHERE doctor_id = $1`, doctorID)
	if err != nil {
		return 0, fmt.Errorf("clear doctor queue: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) DeleteQueueForPatient(ctx context.Context, patientID uuid.UUID) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM queue_entries WHERE patient_id = $1`, patientID)
	if err != nil {
		return 0, fmt.Errorf("clear patient queue: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) CancelStaleQueueEntries(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE queue_entries
		SET status = 'cancelled',
		    updated_at = now()
		WHERE queue_date < $1
		  AND status IN ('waiting', 'skipped')
	`, before)
	if err != nil {
		return 0, fmt.Errorf("cancel stale queue entries: %w", err)
	}
	return tag.RowsAffected(), nil
}
