package clinic

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medbook/clinic-scheduling/internal/config"
	redisclient "github.com/medbook/clinic-scheduling/internal/redis"
)

// memRepo is an in-memory Repository with the same uniqueness semantics
// the Postgres schema enforces. InTx just runs fn against the same
// store, tests never exercise rollback.
type memRepo struct {
	users    map[uuid.UUID]*User
	slots    map[uuid.UUID]*TimeSlot
	appts    map[uuid.UUID]*Appointment
	queue    map[uuid.UUID]*QueueEntry
	invoices map[uuid.UUID]*Invoice
	history  []HistoryEntry
	nextHist int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:    make(map[uuid.UUID]*User),
		slots:    make(map[uuid.UUID]*TimeSlot),
		appts:    make(map[uuid.UUID]*Appointment),
		queue:    make(map[uuid.UUID]*QueueEntry),
		invoices: make(map[uuid.UUID]*Invoice),
	}
}

func (m *memRepo) InTx(_ context.Context, fn func(Repository) error) error {
	return fn(m)
}

func (m *memRepo) addUser(role Role, name, email string) *User {
	u := &User{ID: uuid.New(), Name: name, Email: email, Role: role}
	m.users[u.ID] = u
	return u
}

func (m *memRepo) GetUser(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) GetUserByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *memRepo) GetDoctor(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok || u.Role != RoleDoctor {
		return nil, ErrDoctorNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) IncrementCompletedAppointments(_ context.Context, userID uuid.UUID) error {
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.CompletedAppointments++
	return nil
}

func (m *memRepo) CreateTimeSlot(_ context.Context, s *TimeSlot) error {
	for _, existing := range m.slots {
		if existing.DoctorID == s.DoctorID &&
			existing.StartTime.Equal(s.StartTime) && existing.EndTime.Equal(s.EndTime) {
			return ErrSlotOverlap
		}
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	m.slots[s.ID] = &cp
	return nil
}

func (m *memRepo) GetTimeSlot(_ context.Context, id uuid.UUID) (*TimeSlot, error) {
	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memRepo) GetOverlappingSlot(_ context.Context, doctorID uuid.UUID, day, start, end time.Time) (*TimeSlot, error) {
	for _, s := range m.slots {
		if s.DoctorID == doctorID && s.Date.Equal(day) &&
			s.StartTime.Before(end) && s.EndTime.After(start) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrSlotNotFound
}

func (m *memRepo) UpdateTimeSlotStatus(_ context.Context, id uuid.UUID, status SlotStatus) error {
	s, ok := m.slots[id]
	if !ok {
		return ErrSlotNotFound
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	return nil
}

func (m *memRepo) DeleteTimeSlot(_ context.Context, id uuid.UUID) error {
	if _, ok := m.slots[id]; !ok {
		return ErrSlotNotFound
	}
	delete(m.slots, id)
	return nil
}

func (m *memRepo) ListOpenSlots(_ context.Context, doctorID uuid.UUID, day time.Time) ([]TimeSlot, error) {
	var result []TimeSlot
	for _, s := range m.slots {
		if s.DoctorID == doctorID && s.Date.Equal(day) && s.Status == SlotOpen {
			result = append(result, *s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartTime.Before(result[j].StartTime) })
	return result, nil
}

func activeAppointment(status AppointmentStatus) bool {
	switch status {
	case StatusPending, StatusConfirmed, StatusPendingPayment, StatusCompleted:
		return true
	}
	return false
}

func (m *memRepo) CountActiveAppointmentsForSlot(_ context.Context, slotID uuid.UUID) (int, error) {
	n := 0
	for _, a := range m.appts {
		if a.TimeSlotID != nil && *a.TimeSlotID == slotID && activeAppointment(a.Status) {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) ClearSlotReferences(_ context.Context, slotID uuid.UUID) error {
	for _, a := range m.appts {
		if a.TimeSlotID != nil && *a.TimeSlotID == slotID && !activeAppointment(a.Status) {
			a.TimeSlotID = nil
		}
	}
	return nil
}

func (m *memRepo) CreateAppointment(_ context.Context, a *Appointment) error {
	if a.TimeSlotID != nil && activeAppointment(a.Status) {
		for _, existing := range m.appts {
			if existing.TimeSlotID != nil && *existing.TimeSlotID == *a.TimeSlotID && activeAppointment(existing.Status) {
				return ErrSlotAlreadyBooked
			}
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *memRepo) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) GetActiveAppointmentForSlot(_ context.Context, slotID uuid.UUID) (*Appointment, error) {
	for _, a := range m.appts {
		if a.TimeSlotID != nil && *a.TimeSlotID == slotID && activeAppointment(a.Status) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (m *memRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *memRepo) ListAppointments(_ context.Context, f AppointmentFilter) ([]Appointment, error) {
	var result []Appointment
	for _, a := range m.appts {
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if len(f.Statuses) > 0 {
			match := false
			for _, st := range f.Statuses {
				if a.Status == st {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		result = append(result, *a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (m *memRepo) InsertHistory(_ context.Context, h HistoryEntry) error {
	m.nextHist++
	h.ID = m.nextHist
	h.CreatedAt = time.Now()
	m.history = append(m.history, h)
	return nil
}

func (m *memRepo) ListHistory(_ context.Context, appointmentID uuid.UUID) ([]HistoryEntry, error) {
	var result []HistoryEntry
	for _, h := range m.history {
		if h.AppointmentID == appointmentID {
			result = append(result, h)
		}
	}
	return result, nil
}

func (m *memRepo) CreateInvoice(_ context.Context, inv *Invoice) error {
	for _, existing := range m.invoices {
		if existing.AppointmentID == inv.AppointmentID {
			return ErrInvalidStatusTransition
		}
	}
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	cp := *inv
	m.invoices[inv.ID] = &cp
	return nil
}

func (m *memRepo) GetInvoiceByAppointment(_ context.Context, appointmentID uuid.UUID) (*Invoice, error) {
	for _, inv := range m.invoices {
		if inv.AppointmentID == appointmentID {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, ErrInvoiceNotFound
}

func (m *memRepo) UpdateInvoiceStatus(_ context.Context, id uuid.UUID, from, to InvoiceStatus) (*Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok || inv.Status != from {
		return nil, ErrInvoiceNotFound
	}
	inv.Status = to
	inv.UpdatedAt = time.Now()
	cp := *inv
	return &cp, nil
}

func (m *memRepo) CreateQueueEntry(_ context.Context, q *QueueEntry) error {
	if ActiveQueueStatus(q.Status) {
		for _, existing := range m.queue {
			if existing.DoctorID == q.DoctorID && existing.PatientID == q.PatientID && ActiveQueueStatus(existing.Status) {
				return ErrAlreadyQueued
			}
		}
	}
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	q.CreatedAt = time.Now()
	q.UpdatedAt = q.CreatedAt
	cp := *q
	m.queue[q.ID] = &cp
	return nil
}

func (m *memRepo) GetQueueEntry(_ context.Context, id uuid.UUID) (*QueueEntry, error) {
	q, ok := m.queue[id]
	if !ok {
		return nil, ErrQueueEntryNotFound
	}
	cp := *q
	return &cp, nil
}

func (m *memRepo) GetActiveQueueEntry(_ context.Context, doctorID, patientID uuid.UUID) (*QueueEntry, error) {
	for _, q := range m.queue {
		if q.DoctorID == doctorID && q.PatientID == patientID && ActiveQueueStatus(q.Status) {
			cp := *q
			return &cp, nil
		}
	}
	return nil, ErrQueueEntryNotFound
}

func (m *memRepo) GetApprovedQueueEntry(_ context.Context, doctorID uuid.UUID) (*QueueEntry, error) {
	for _, q := range m.queue {
		if q.DoctorID == doctorID && q.Status == QueueApproved {
			cp := *q
			return &cp, nil
		}
	}
	return nil, ErrQueueEntryNotFound
}

func (m *memRepo) GetQueueEntryByAppointment(_ context.Context, appointmentID uuid.UUID) (*QueueEntry, error) {
	for _, q := range m.queue {
		if q.AppointmentID != nil && *q.AppointmentID == appointmentID {
			cp := *q
			return &cp, nil
		}
	}
	return nil, ErrQueueEntryNotFound
}

func (m *memRepo) MaxQueuePosition(_ context.Context, doctorID uuid.UUID, day time.Time) (int, error) {
	max := 0
	for _, q := range m.queue {
		if q.DoctorID == doctorID && q.Date.Equal(day) && q.Position > max {
			max = q.Position
		}
	}
	return max, nil
}

func (m *memRepo) ListQueue(_ context.Context, doctorID uuid.UUID, day time.Time) ([]QueueEntry, error) {
	var result []QueueEntry
	for _, q := range m.queue {
		if q.DoctorID == doctorID && q.Date.Equal(day) {
			result = append(result, *q)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Position < result[j].Position })
	return result, nil
}

func (m *memRepo) UpdateQueueStatus(_ context.Context, id uuid.UUID, status QueueStatus) (*QueueEntry, error) {
	q, ok := m.queue[id]
	if !ok {
		return nil, ErrQueueEntryNotFound
	}
	if status == QueueApproved {
		for _, other := range m.queue {
			if other.ID != id && other.DoctorID == q.DoctorID && other.Status == QueueApproved {
				return nil, ErrConsultationInProgress
			}
		}
	}
	q.Status = status
	q.UpdatedAt = time.Now()
	cp := *q
	return &cp, nil
}

func (m *memRepo) LinkQueueAppointment(_ context.Context, id, appointmentID uuid.UUID) error {
	q, ok := m.queue[id]
	if !ok {
		return ErrQueueEntryNotFound
	}
	q.AppointmentID = &appointmentID
	return nil
}

func (m *memRepo) DeleteQueueEntry(_ context.Context, id uuid.UUID) error {
	if _, ok := m.queue[id]; !ok {
		return ErrQueueEntryNotFound
	}
	delete(m.queue, id)
	return nil
}

func (m *memRepo) CompactQueuePositions(_ context.Context, doctorID uuid.UUID, day time.Time, removedPos int) error {
	for _, q := range m.queue {
		if q.DoctorID == doctorID && q.Date.Equal(day) && ActiveQueueStatus(q.Status) && q.Position > removedPos {
			q.Position--
		}
	}
	return nil
}

func (m *memRepo) DeleteQueueForDoctor(_ context.Context, doctorID uuid.UUID) (int64, error) {
	var n int64
	for id, q := range m.queue {
		if q.DoctorID == doctorID {
			delete(m.queue, id)
			n++
		}
	}
	return n, nil
}

func (m *memRepo) DeleteQueueForPatient(_ context.Context, patientID uuid.UUID) (int64, error) {
	var n int64
	for id, q := range m.queue {
		if q.PatientID == patientID {
			delete(m.queue, id)
			n++
		}
	}
	return n, nil
}

func (m *memRepo) CancelStaleQueueEntries(_ context.Context, before time.Time) (int64, error) {
	var n int64
	for _, q := range m.queue {
		if q.Date.Before(before) && ActiveQueueStatus(q.Status) {
			q.Status = QueueCancelled
			n++
		}
	}
	return n, nil
}

// noopLocker runs the critical section directly, single-threaded tests
// need no real lock.
type noopLocker struct{}

func (noopLocker) WithSlotLock(ctx context.Context, _ uuid.UUID, fn func(context.Context) error) error {
	return fn(ctx)
}

func (noopLocker) WithQueueLock(ctx context.Context, _ uuid.UUID, _ time.Time, fn func(context.Context) error) error {
	return fn(ctx)
}

// recordingNotifier captures messages instead of delivering them.
type recordingNotifier struct {
	messages []string
	emails   []string
}

func (n *recordingNotifier) Notify(_ context.Context, _ uuid.UUID, message string) error {
	n.messages = append(n.messages, message)
	return nil
}

func (n *recordingNotifier) Email(_ context.Context, to, _, _ string) error {
	n.emails = append(n.emails, to)
	return nil
}

// stubLocker counts acquisitions and can refuse the queue lock.
type stubLocker struct {
	slotCalls  int
	queueCalls int
	failQueue  bool
}

func (l *stubLocker) WithSlotLock(ctx context.Context, _ uuid.UUID, fn func(context.Context) error) error {
	l.slotCalls++
	return fn(ctx)
}

func (l *stubLocker) WithQueueLock(ctx context.Context, _ uuid.UUID, _ time.Time, fn func(context.Context) error) error {
	if l.failQueue {
		return redisclient.ErrLockNotAcquired
	}
	l.queueCalls++
	return fn(ctx)
}

func newTestService() (*Service, *memRepo, *recordingNotifier) {
	repo := newMemRepo()
	notifier := &recordingNotifier{}
	cfg := config.Config{WalkInConsultLength: 30 * time.Minute}
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	svc := NewService(repo, noopLocker{}, notifier, cfg, logger)
	return svc, repo, notifier
}

func newLockTrackingService() (*Service, *memRepo, *stubLocker) {
	repo := newMemRepo()
	locker := &stubLocker{}
	cfg := config.Config{WalkInConsultLength: 30 * time.Minute}
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	svc := NewService(repo, locker, &recordingNotifier{}, cfg, logger)
	return svc, repo, locker
}
