package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/medbook/clinic-scheduling/internal/redis"
)

// Book reserves an open slot for a patient: the appointment starts in
// PENDING and the slot flips to CLOSED in the same transaction. A
// per-slot lock plus an in-transaction recheck keeps two concurrent
// bookings from both succeeding.
func (s *Service) Book(ctx context.Context, patientID, slotID uuid.UUID) (*Appointment, error) {
	patient, err := s.repo.GetUser(ctx, patientID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	slot, err := s.repo.GetTimeSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.Status != SlotOpen {
		return nil, ErrSlotNotOpen
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(tx Repository) error {
			existing, err := tx.GetActiveAppointmentForSlot(lockCtx, slotID)
			if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
				return fmt.Errorf("check slot appointment: %w", err)
			}
			if existing != nil {
				return ErrSlotAlreadyBooked
			}

			appt := &Appointment{
				PatientID:  patientID,
				DoctorID:   slot.DoctorID,
				TimeSlotID: &slot.ID,
				Date:       slot.StartTime,
				Status:     StatusPending,
			}
			if err := tx.CreateAppointment(lockCtx, appt); err != nil {
				return err
			}
			if err := tx.UpdateTimeSlotStatus(lockCtx, slotID, SlotClosed); err != nil {
				return err
			}
			if err := s.history(lockCtx, tx, appt.ID, "Appointment booked for slot", statusPtr(StatusPending)); err != nil {
				return err
			}

			created = appt
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.notifyBoth(ctx, created.PatientID, created.DoctorID, "Appointment booked, awaiting confirmation")
	s.email(ctx, patient.Email, "Appointment booked",
		fmt.Sprintf("<p>Your appointment on %s is awaiting confirmation.</p>", created.Date.Format(time.RFC1123)))
	return created, nil
}

// Confirm moves a pending appointment to CONFIRMED. Confirming an
// already confirmed appointment is a no-op transition that still writes
// history, matching the idempotent confirm the booking flow relies on.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusPending && appt.Status != StatusConfirmed {
		return nil, ErrInvalidStatusTransition
	}
	if appt.TimeSlotID == nil {
		return nil, ErrSlotNotFound
	}
	if _, err := s.repo.GetTimeSlot(ctx, *appt.TimeSlotID); err != nil {
		return nil, err
	}

	var updated *Appointment
	err = s.repo.InTx(ctx, func(tx Repository) error {
		updated, err = tx.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, StatusConfirmed)
		if err != nil {
			return fmt.Errorf("confirm appointment: %w", err)
		}
		return s.history(ctx, tx, appt.ID, "Appointment confirmed by doctor", statusPtr(StatusConfirmed))
	})
	if err != nil {
		return nil, err
	}

	s.notifyBoth(ctx, updated.PatientID, updated.DoctorID, "Appointment confirmed")
	return updated, nil
}

// modifiable is the shared eligibility rule for cancel and reschedule:
// only PENDING or CONFIRMED appointments strictly in the future.
func (s *Service) modifiable(appt *Appointment) error {
	if appt.Status != StatusPending && appt.Status != StatusConfirmed {
		return ErrInvalidStatusTransition
	}
	if !appt.Date.After(time.Now()) {
		return ErrAppointmentInPast
	}
	return nil
}

// Cancel terminates an appointment, reopens its slot for other patients
// and drops any linked queue entry.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.modifiable(appt); err != nil {
		return nil, err
	}

	// A linked entry that is still in the waiting line has a position to
	// compact, so the transaction must hold the queue lock like every
	// other position write.
	linked, err := s.repo.GetQueueEntryByAppointment(ctx, appt.ID)
	if err != nil && !errors.Is(err, ErrQueueEntryNotFound) {
		return nil, err
	}

	var updated *Appointment
	err = s.runWithQueueGuard(ctx, linked, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(tx Repository) error {
			var err error
			updated, err = tx.UpdateAppointmentStatus(lockCtx, appt.ID, appt.Status, StatusCancelled)
			if err != nil {
				return fmt.Errorf("cancel appointment: %w", err)
			}

			if appt.TimeSlotID != nil {
				if err := tx.UpdateTimeSlotStatus(lockCtx, *appt.TimeSlotID, SlotOpen); err != nil {
					return err
				}
			}

			if err := s.dropLinkedQueueEntry(lockCtx, tx, appt.ID); err != nil {
				return err
			}

			if err := s.history(lockCtx, tx, appt.ID, "Appointment cancelled", statusPtr(StatusCancelled)); err != nil {
				return err
			}
			return s.history(lockCtx, tx, appt.ID, "Time slot reopened for booking", nil)
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifyBoth(ctx, updated.PatientID, updated.DoctorID, "Appointment cancelled")
	return updated, nil
}

func (s *Service) dropLinkedQueueEntry(ctx context.Context, tx Repository, appointmentID uuid.UUID) error {
	entry, err := tx.GetQueueEntryByAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrQueueEntryNotFound) {
			return nil
		}
		return err
	}
	if err := tx.DeleteQueueEntry(ctx, entry.ID); err != nil {
		return err
	}
	if ActiveQueueStatus(entry.Status) {
		return tx.CompactQueuePositions(ctx, entry.DoctorID, entry.Date, entry.Position)
	}
	return nil
}

// RescheduleToSlot moves an appointment onto an existing open slot of
// the same doctor. The old record is terminally marked RESCHEDULED and a
// replacement is created in the old record's active status.
func (s *Service) RescheduleToSlot(ctx context.Context, id, newSlotID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.modifiable(appt); err != nil {
		return nil, err
	}

	newSlot, err := s.repo.GetTimeSlot(ctx, newSlotID)
	if err != nil {
		return nil, err
	}
	if newSlot.DoctorID != appt.DoctorID {
		return nil, ErrSlotDoctorMismatch
	}
	if newSlot.Status != SlotOpen {
		return nil, ErrSlotNotOpen
	}

	var replacement *Appointment
	err = s.locker.WithSlotLock(ctx, newSlotID, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(tx Repository) error {
			var err error
			replacement, err = s.swapSlot(lockCtx, tx, appt, newSlot)
			return err
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.notifyBoth(ctx, replacement.PatientID, replacement.DoctorID, "Appointment rescheduled to a new time")
	return replacement, nil
}

// RescheduleToWindow moves an appointment onto a brand-new window,
// validated like any other slot creation.
func (s *Service) RescheduleToWindow(ctx context.Context, id uuid.UUID, date, start, end time.Time) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.modifiable(appt); err != nil {
		return nil, err
	}
	if err := validateWindow(date, start, end); err != nil {
		return nil, err
	}

	var replacement *Appointment
	err = s.repo.InTx(ctx, func(tx Repository) error {
		day := dateOnly(date)
		existing, err := tx.GetOverlappingSlot(ctx, appt.DoctorID, day, start, end)
		if err != nil && !errors.Is(err, ErrSlotNotFound) {
			return fmt.Errorf("check overlap: %w", err)
		}
		if existing != nil {
			return ErrSlotOverlap
		}

		newSlot := &TimeSlot{
			DoctorID:  appt.DoctorID,
			Date:      day,
			StartTime: start,
			EndTime:   end,
			Status:    SlotOpen,
		}
		if err := tx.CreateTimeSlot(ctx, newSlot); err != nil {
			return err
		}

		replacement, err = s.swapSlot(ctx, tx, appt, newSlot)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifyBoth(ctx, replacement.PatientID, replacement.DoctorID, "Appointment rescheduled to a new time")
	return replacement, nil
}

// swapSlot is the shared tail of both reschedule variants: retire the
// old record, free its slot, bind a replacement to the new one. Runs
// inside the caller's transaction. Two history rows per record.
func (s *Service) swapSlot(ctx context.Context, tx Repository, appt *Appointment, newSlot *TimeSlot) (*Appointment, error) {
	carried := appt.Status

	if _, err := tx.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, StatusRescheduled); err != nil {
		return nil, fmt.Errorf("retire old appointment: %w", err)
	}
	if appt.TimeSlotID != nil {
		if err := tx.UpdateTimeSlotStatus(ctx, *appt.TimeSlotID, SlotOpen); err != nil {
			return nil, err
		}
	}

	existing, err := tx.GetActiveAppointmentForSlot(ctx, newSlot.ID)
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return nil, fmt.Errorf("check new slot: %w", err)
	}
	if existing != nil {
		return nil, ErrSlotAlreadyBooked
	}

	replacement := &Appointment{
		PatientID:  appt.PatientID,
		DoctorID:   appt.DoctorID,
		TimeSlotID: &newSlot.ID,
		Date:       newSlot.StartTime,
		Status:     carried,
	}
	if err := tx.CreateAppointment(ctx, replacement); err != nil {
		return nil, err
	}
	if err := tx.UpdateTimeSlotStatus(ctx, newSlot.ID, SlotClosed); err != nil {
		return nil, err
	}

	if err := s.history(ctx, tx, appt.ID, "Appointment superseded by reschedule", statusPtr(StatusRescheduled)); err != nil {
		return nil, err
	}
	if err := s.history(ctx, tx, appt.ID, "Original time slot released", nil); err != nil {
		return nil, err
	}
	if err := s.history(ctx, tx, replacement.ID, "Appointment created by reschedule", statusPtr(carried)); err != nil {
		return nil, err
	}
	if err := s.history(ctx, tx, replacement.ID, "New time slot bound", nil); err != nil {
		return nil, err
	}

	return replacement, nil
}

// CompleteViaQueue finishes a walk-in consultation: the linked
// appointment moves to PENDING_PAYMENT, a pending invoice for the given
// amount is created, and the queue entry is marked completed.
func (s *Service) CompleteViaQueue(ctx context.Context, queueID uuid.UUID, amountCents int64) (*Invoice, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}

	entry, err := s.repo.GetQueueEntry(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if entry.AppointmentID == nil {
		return nil, ErrAppointmentNotFound
	}

	appt, err := s.repo.GetAppointment(ctx, *entry.AppointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusPending && appt.Status != StatusConfirmed {
		return nil, ErrInvalidStatusTransition
	}

	invoice := &Invoice{
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		CreatedBy:     appt.DoctorID,
		AmountCents:   amountCents,
		Status:        InvoicePending,
	}

	err = s.repo.InTx(ctx, func(tx Repository) error {
		if _, err := tx.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, StatusPendingPayment); err != nil {
			return fmt.Errorf("move to pending payment: %w", err)
		}
		if err := tx.CreateInvoice(ctx, invoice); err != nil {
			return err
		}
		if _, err := tx.UpdateQueueStatus(ctx, entry.ID, QueueCompleted); err != nil {
			return err
		}
		return s.history(ctx, tx, appt.ID, "Consultation finished, invoice issued", statusPtr(StatusPendingPayment))
	})
	if err != nil {
		return nil, err
	}

	s.notifyBoth(ctx, appt.PatientID, appt.DoctorID, "Consultation complete, payment pending")
	return invoice, nil
}

// ConfirmPayment settles the invoice and completes the appointment. The
// acting user's completed-appointment counter is incremented atomically
// inside the same transaction.
func (s *Service) ConfirmPayment(ctx context.Context, appointmentID, actorID uuid.UUID) (*Appointment, error) {
	if actorID == uuid.Nil {
		return nil, ErrMissingActor
	}
	if _, err := s.repo.GetUser(ctx, actorID); err != nil {
		return nil, err
	}

	appt, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusPendingPayment {
		return nil, ErrInvalidStatusTransition
	}

	invoice, err := s.repo.GetInvoiceByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	// The linked entry was marked completed when the consultation
	// finished, so the guard normally runs lockless here.
	linked, err := s.repo.GetQueueEntryByAppointment(ctx, appt.ID)
	if err != nil && !errors.Is(err, ErrQueueEntryNotFound) {
		return nil, err
	}

	var updated *Appointment
	err = s.runWithQueueGuard(ctx, linked, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(tx Repository) error {
			var err error
			updated, err = tx.UpdateAppointmentStatus(lockCtx, appt.ID, StatusPendingPayment, StatusCompleted)
			if err != nil {
				return fmt.Errorf("complete appointment: %w", err)
			}
			if _, err := tx.UpdateInvoiceStatus(lockCtx, invoice.ID, InvoicePending, InvoicePaid); err != nil {
				return fmt.Errorf("mark invoice paid: %w", err)
			}
			if err := tx.IncrementCompletedAppointments(lockCtx, actorID); err != nil {
				return err
			}
			if err := s.dropLinkedQueueEntry(lockCtx, tx, appt.ID); err != nil {
				return err
			}
			return s.history(lockCtx, tx, appt.ID, "Payment confirmed, appointment completed", statusPtr(StatusCompleted))
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifyBoth(ctx, updated.PatientID, updated.DoctorID, "Payment received, appointment completed")
	return updated, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointment(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	return s.repo.ListAppointments(ctx, f)
}

func (s *Service) ListHistory(ctx context.Context, appointmentID uuid.UUID) ([]HistoryEntry, error) {
	if _, err := s.repo.GetAppointment(ctx, appointmentID); err != nil {
		return nil, err
	}
	return s.repo.ListHistory(ctx, appointmentID)
}
