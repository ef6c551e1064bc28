package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// validateWindow is the shared precondition for slot creation and the
// freeform reschedule variant: the window must be ordered, non-empty,
// and lie on the given calendar day.
func validateWindow(date, start, end time.Time) error {
	if date.IsZero() || start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: date, start and end are required", ErrInvalidWindow)
	}
	if !end.After(start) {
		return fmt.Errorf("%w: end must be after start", ErrInvalidWindow)
	}
	day := dateOnly(date)
	if !dateOnly(start).Equal(day) || !dateOnly(end).Equal(day) {
		return fmt.Errorf("%w: start and end must fall on the slot date", ErrInvalidWindow)
	}
	return nil
}

// CreateSlot persists a new bookable window for a doctor. Overlap with
// any existing window for the same doctor and day is a conflict, not
// just an exact duplicate.
func (s *Service) CreateSlot(ctx context.Context, doctorID uuid.UUID, date, start, end time.Time, status SlotStatus) (*TimeSlot, error) {
	if !ValidSlotStatus(status) {
		return nil, ErrInvalidSlotStatus
	}
	if err := validateWindow(date, start, end); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	slot := &TimeSlot{
		DoctorID:  doctorID,
		Date:      dateOnly(date),
		StartTime: start,
		EndTime:   end,
		Status:    status,
	}

	err := s.repo.InTx(ctx, func(tx Repository) error {
		existing, err := tx.GetOverlappingSlot(ctx, doctorID, slot.Date, start, end)
		if err != nil && !errors.Is(err, ErrSlotNotFound) {
			return fmt.Errorf("check overlap: %w", err)
		}
		if existing != nil {
			return ErrSlotOverlap
		}
		return tx.CreateTimeSlot(ctx, slot)
	})
	if err != nil {
		return nil, err
	}

	return slot, nil
}

// DeleteSlot removes a slot that no appointment still depends on.
// Superseded (cancelled/rescheduled) appointments are detached from the
// slot first so their rows survive for the audit trail.
func (s *Service) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	return s.repo.InTx(ctx, func(tx Repository) error {
		if _, err := tx.GetTimeSlot(ctx, id); err != nil {
			return err
		}
		n, err := tx.CountActiveAppointmentsForSlot(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrSlotHasAppointment
		}
		if err := tx.ClearSlotReferences(ctx, id); err != nil {
			return err
		}
		return tx.DeleteTimeSlot(ctx, id)
	})
}

func (s *Service) GetSlot(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	return s.repo.GetTimeSlot(ctx, id)
}

func (s *Service) ListOpenSlots(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]TimeSlot, error) {
	if _, err := s.repo.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.repo.ListOpenSlots(ctx, doctorID, dateOnly(day))
}
