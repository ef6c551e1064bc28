package clinic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestValidateWindow(t *testing.T) {
	date := day(2030, time.June, 3)

	cases := []struct {
		name       string
		date       time.Time
		start, end time.Time
		wantErr    bool
	}{
		{"valid", date, at(2030, time.June, 3, 9, 0), at(2030, time.June, 3, 9, 30), false},
		{"zero date", time.Time{}, at(2030, time.June, 3, 9, 0), at(2030, time.June, 3, 9, 30), true},
		{"end before start", date, at(2030, time.June, 3, 10, 0), at(2030, time.June, 3, 9, 0), true},
		{"empty window", date, at(2030, time.June, 3, 9, 0), at(2030, time.June, 3, 9, 0), true},
		{"start on wrong day", date, at(2030, time.June, 4, 9, 0), at(2030, time.June, 4, 9, 30), true},
		{"crosses midnight", date, at(2030, time.June, 3, 23, 30), at(2030, time.June, 4, 0, 30), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateWindow(tc.date, tc.start, tc.end)
			if tc.wantErr && !errors.Is(err, ErrInvalidWindow) {
				t.Fatalf("want ErrInvalidWindow, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCreateSlot_DuplicateWindowConflicts(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	doc := repo.addUser(RoleDoctor, "Dr. Reyes", "reyes@clinic.test")

	date := day(2030, time.June, 3)
	start := at(2030, time.June, 3, 9, 0)
	end := at(2030, time.June, 3, 9, 30)

	if _, err := svc.CreateSlot(ctx, doc.ID, date, start, end, SlotOpen); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := svc.CreateSlot(ctx, doc.ID, date, start, end, SlotOpen); !errors.Is(err, ErrSlotOverlap) {
		t.Fatalf("want ErrSlotOverlap for identical window, got %v", err)
	}
}

func TestCreateSlot_OverlappingWindowConflicts(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	doc := repo.addUser(RoleDoctor, "Dr. Reyes", "reyes@clinic.test")

	date := day(2030, time.June, 3)
	if _, err := svc.CreateSlot(ctx, doc.ID, date, at(2030, time.June, 3, 9, 0), at(2030, time.June, 3, 10, 0), SlotOpen); err != nil {
		t.Fatalf("first create: %v", err)
	}

	// Partial overlap inside the existing window.
	_, err := svc.CreateSlot(ctx, doc.ID, date, at(2030, time.June, 3, 9, 30), at(2030, time.June, 3, 10, 30), SlotOpen)
	if !errors.Is(err, ErrSlotOverlap) {
		t.Fatalf("want ErrSlotOverlap, got %v", err)
	}

	// Back to back windows touch but do not overlap.
	if _, err := svc.CreateSlot(ctx, doc.ID, date, at(2030, time.June, 3, 10, 0), at(2030, time.June, 3, 10, 30), SlotOpen); err != nil {
		t.Fatalf("adjacent window: %v", err)
	}
}

func TestCreateSlot_Validation(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	doc := repo.addUser(RoleDoctor, "Dr. Reyes", "reyes@clinic.test")
	patient := repo.addUser(RolePatient, "Ana", "ana@mail.test")

	date := day(2030, time.June, 3)
	start := at(2030, time.June, 3, 9, 0)
	end := at(2030, time.June, 3, 9, 30)

	if _, err := svc.CreateSlot(ctx, doc.ID, date, start, end, SlotStatus("busy")); !errors.Is(err, ErrInvalidSlotStatus) {
		t.Fatalf("want ErrInvalidSlotStatus, got %v", err)
	}
	if _, err := svc.CreateSlot(ctx, uuid.New(), date, start, end, SlotOpen); !errors.Is(err, ErrDoctorNotFound) {
		t.Fatalf("want ErrDoctorNotFound, got %v", err)
	}
	// Patients cannot own slots.
	if _, err := svc.CreateSlot(ctx, patient.ID, date, start, end, SlotOpen); !errors.Is(err, ErrDoctorNotFound) {
		t.Fatalf("want ErrDoctorNotFound for patient owner, got %v", err)
	}
}

func TestDeleteSlot_BlockedByActiveAppointment(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	doc := repo.addUser(RoleDoctor, "Dr. Reyes", "reyes@clinic.test")
	patient := repo.addUser(RolePatient, "Ana", "ana@mail.test")

	slot, err := svc.CreateSlot(ctx, doc.ID, day(2030, time.June, 3), at(2030, time.June, 3, 9, 0), at(2030, time.June, 3, 9, 30), SlotOpen)
	if err != nil {
		t.Fatalf("create slot: %v", err)
	}
	appt, err := svc.Book(ctx, patient.ID, slot.ID)
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	if err := svc.DeleteSlot(ctx, slot.ID); !errors.Is(err, ErrSlotHasAppointment) {
		t.Fatalf("want ErrSlotHasAppointment, got %v", err)
	}

	if _, err := svc.Cancel(ctx, appt.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := svc.DeleteSlot(ctx, slot.ID); err != nil {
		t.Fatalf("delete after cancel: %v", err)
	}

	// The cancelled appointment survives with its slot reference nulled.
	got, err := svc.GetAppointment(ctx, appt.ID)
	if err != nil {
		t.Fatalf("get appointment: %v", err)
	}
	if got.TimeSlotID != nil {
		t.Fatalf("want nil slot reference after delete, got %v", got.TimeSlotID)
	}
}

func TestDeleteSlot_NotFound(t *testing.T) {
	svc, _, _ := newTestService()
	if err := svc.DeleteSlot(context.Background(), uuid.New()); !errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("want ErrSlotNotFound, got %v", err)
	}
}

func TestListOpenSlots(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	doc := repo.addUser(RoleDoctor, "Dr. Reyes", "reyes@clinic.test")

	date := day(2030, time.June, 3)
	late, err := svc.CreateSlot(ctx, doc.ID, date, at(2030, time.June, 3, 11, 0), at(2030, time.June, 3, 11, 30), SlotOpen)
	if err != nil {
		t.Fatalf("create late: %v", err)
	}
	early, err := svc.CreateSlot(ctx, doc.ID, date, at(2030, time.June, 3, 9, 0), at(2030, time.June, 3, 9, 30), SlotOpen)
	if err != nil {
		t.Fatalf("create early: %v", err)
	}
	if _, err := svc.CreateSlot(ctx, doc.ID, date, at(2030, time.June, 3, 10, 0), at(2030, time.June, 3, 10, 30), SlotClosed); err != nil {
		t.Fatalf("create closed: %v", err)
	}

	open, err := svc.ListOpenSlots(ctx, doc.ID, date)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("want 2 open slots, got %d", len(open))
	}
	if open[0].ID != early.ID || open[1].ID != late.ID {
		t.Fatalf("want slots ordered by start time")
	}
}
