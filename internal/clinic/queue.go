package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/medbook/clinic-scheduling/internal/redis"
)

// Enqueue adds a walk-in patient to the back of a doctor's line for the
// current day. Position is computed and inserted under the doctor+day
// lock and a single transaction, so concurrent joins never share a
// position.
func (s *Service) Enqueue(ctx context.Context, doctorID uuid.UUID, patientEmail string) (*QueueEntry, error) {
	if _, err := s.repo.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	patient, err := s.repo.GetUserByEmail(ctx, patientEmail)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	day := dateOnly(time.Now())
	entry := &QueueEntry{
		DoctorID:  doctorID,
		PatientID: patient.ID,
		Date:      day,
		Status:    QueueWaiting,
	}

	err = s.locker.WithQueueLock(ctx, doctorID, day, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(tx Repository) error {
			existing, err := tx.GetActiveQueueEntry(lockCtx, doctorID, patient.ID)
			if err != nil && !errors.Is(err, ErrQueueEntryNotFound) {
				return fmt.Errorf("check active entry: %w", err)
			}
			if existing != nil {
				return ErrAlreadyQueued
			}

			max, err := tx.MaxQueuePosition(lockCtx, doctorID, day)
			if err != nil {
				return err
			}
			entry.Position = max + 1
			return tx.CreateQueueEntry(lockCtx, entry)
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrQueueBusy
		}
		return nil, err
	}

	s.notify(ctx, patient.ID, fmt.Sprintf("You joined the queue at position %d", entry.Position))
	s.notify(ctx, doctorID, fmt.Sprintf("%s joined your queue at position %d", patient.Name, entry.Position))
	s.email(ctx, patient.Email, "You joined the queue",
		fmt.Sprintf("<p>You are number %d in the queue today.</p>", entry.Position))
	return entry, nil
}

// runWithQueueGuard runs fn under the doctor+day queue lock when the
// entry still holds a position in the active line. Every write that
// compacts positions must go through here or take the lock itself, or
// it races the max+1 read in Enqueue.
func (s *Service) runWithQueueGuard(ctx context.Context, entry *QueueEntry, fn func(context.Context) error) error {
	if entry == nil || !ActiveQueueStatus(entry.Status) {
		return fn(ctx)
	}
	err := s.locker.WithQueueLock(ctx, entry.DoctorID, entry.Date, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrQueueBusy
	}
	return err
}

// LeaveQueue removes the patient's active entry and closes the gap it
// leaves: every entry behind it moves up one position.
func (s *Service) LeaveQueue(ctx context.Context, patientID, doctorID uuid.UUID) error {
	entry, err := s.repo.GetActiveQueueEntry(ctx, doctorID, patientID)
	if err != nil {
		if errors.Is(err, ErrQueueEntryNotFound) {
			return ErrNotInQueue
		}
		return err
	}

	return s.runWithQueueGuard(ctx, entry, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(tx Repository) error {
			if err := tx.DeleteQueueEntry(lockCtx, entry.ID); err != nil {
				return err
			}
			return tx.CompactQueuePositions(lockCtx, doctorID, entry.Date, entry.Position)
		})
	})
}

// ChangeQueueStatus is the direct overwrite the doctor's board uses
// (skip, un-skip, cancel).
func (s *Service) ChangeQueueStatus(ctx context.Context, queueID uuid.UUID, status string) (*QueueEntry, error) {
	parsed, ok := ParseQueueStatus(status)
	if !ok {
		return nil, ErrInvalidQueueStatus
	}
	return s.repo.UpdateQueueStatus(ctx, queueID, parsed)
}

// ApproveQueueEntry pulls a waiting patient into consultation. One
// transaction creates the backing walk-in slot and CONFIRMED
// appointment and links them to the entry. A doctor can hold only one
// approved entry at a time.
func (s *Service) ApproveQueueEntry(ctx context.Context, queueID uuid.UUID) (*QueueEntry, error) {
	entry, err := s.repo.GetQueueEntry(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if !ActiveQueueStatus(entry.Status) {
		return nil, ErrInvalidStatusTransition
	}

	busy, err := s.repo.GetApprovedQueueEntry(ctx, entry.DoctorID)
	if err != nil && !errors.Is(err, ErrQueueEntryNotFound) {
		return nil, fmt.Errorf("check approved entry: %w", err)
	}
	if busy != nil {
		return nil, ErrConsultationInProgress
	}

	now := time.Now()
	var approved *QueueEntry

	err = s.repo.InTx(ctx, func(tx Repository) error {
		// Walk-in consultations happen immediately, so the backing slot
		// is created CLOSED and may coexist with the doctor's booked
		// schedule.
		slot := &TimeSlot{
			DoctorID:  entry.DoctorID,
			Date:      dateOnly(now),
			StartTime: now,
			EndTime:   now.Add(s.cfg.WalkInConsultLength),
			Status:    SlotClosed,
		}
		if err := tx.CreateTimeSlot(ctx, slot); err != nil {
			return err
		}

		appt := &Appointment{
			PatientID:  entry.PatientID,
			DoctorID:   entry.DoctorID,
			TimeSlotID: &slot.ID,
			Date:       slot.StartTime,
			Status:     StatusConfirmed,
		}
		if err := tx.CreateAppointment(ctx, appt); err != nil {
			return err
		}

		approved, err = tx.UpdateQueueStatus(ctx, entry.ID, QueueApproved)
		if err != nil {
			return err
		}
		if err := tx.LinkQueueAppointment(ctx, entry.ID, appt.ID); err != nil {
			return err
		}
		approved.AppointmentID = &appt.ID

		return s.history(ctx, tx, appt.ID, "Walk-in consultation started from queue", statusPtr(StatusConfirmed))
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, entry.PatientID, "It is your turn, the doctor will see you now")
	s.notify(ctx, entry.DoctorID, "Next walk-in patient approved")
	return approved, nil
}

// RemoveQueueEntry deletes an entry unconditionally, compacting the
// line when the entry still held a position in it.
func (s *Service) RemoveQueueEntry(ctx context.Context, queueID uuid.UUID) error {
	entry, err := s.repo.GetQueueEntry(ctx, queueID)
	if err != nil {
		return err
	}
	return s.runWithQueueGuard(ctx, entry, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(tx Repository) error {
			if err := tx.DeleteQueueEntry(lockCtx, entry.ID); err != nil {
				return err
			}
			if ActiveQueueStatus(entry.Status) {
				return tx.CompactQueuePositions(lockCtx, entry.DoctorID, entry.Date, entry.Position)
			}
			return nil
		})
	})
}

// ClearQueueForDoctor wipes a doctor's queue. Only the doctor can clear
// their own line.
func (s *Service) ClearQueueForDoctor(ctx context.Context, doctorID, actorID uuid.UUID) (int64, error) {
	if actorID != doctorID {
		return 0, ErrForbidden
	}
	if _, err := s.repo.GetDoctor(ctx, doctorID); err != nil {
		return 0, err
	}
	return s.repo.DeleteQueueForDoctor(ctx, doctorID)
}

// ClearQueueForPatient wipes a patient's entries across all doctors.
func (s *Service) ClearQueueForPatient(ctx context.Context, patientID, actorID uuid.UUID) (int64, error) {
	if actorID != patientID {
		return 0, ErrForbidden
	}
	if _, err := s.repo.GetUser(ctx, patientID); err != nil {
		return 0, err
	}
	return s.repo.DeleteQueueForPatient(ctx, patientID)
}

func (s *Service) ListQueue(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]QueueEntry, error) {
	if _, err := s.repo.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.repo.ListQueue(ctx, doctorID, dateOnly(day))
}

// SweepStaleQueueEntries cancels entries still waiting after their day
// has passed. Called periodically by the queue-sweeper worker.
func (s *Service) SweepStaleQueueEntries(ctx context.Context) (int64, error) {
	n, err := s.repo.CancelStaleQueueEntries(ctx, dateOnly(time.Now()))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info().Int64("entries", n).Msg("cancelled stale queue entries")
	}
	return n, nil
}
