package clinic

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medbook/clinic-scheduling/internal/config"
	redisclient "github.com/medbook/clinic-scheduling/internal/redis"
)

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	notifier Notifier
	cfg      config.Config
	log      zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, notifier Notifier, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
	}
}

// dateOnly truncates a moment to its calendar day in UTC. All per-day
// keys (slot dates, queue dates) use this form.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// history appends one audit row inside the caller's transaction.
func (s *Service) history(ctx context.Context, tx Repository, appointmentID uuid.UUID, description string, newStatus *AppointmentStatus) error {
	return tx.InsertHistory(ctx, HistoryEntry{
		AppointmentID: appointmentID,
		Description:   description,
		NewStatus:     newStatus,
	})
}

// notify is fire-and-forget: delivery failures are logged and never
// propagate into the lifecycle transition that triggered them.
func (s *Service) notify(ctx context.Context, userID uuid.UUID, message string) {
	if err := s.notifier.Notify(ctx, userID, message); err != nil {
		s.log.Warn().Err(err).Stringer("user_id", userID).Msg("notification delivery failed")
	}
}

func (s *Service) notifyBoth(ctx context.Context, patientID, doctorID uuid.UUID, message string) {
	s.notify(ctx, patientID, message)
	s.notify(ctx, doctorID, message)
}

func (s *Service) email(ctx context.Context, to, subject, html string) {
	if err := s.notifier.Email(ctx, to, subject, html); err != nil {
		s.log.Warn().Err(err).Str("to", to).Msg("email delivery failed")
	}
}

func statusPtr(st AppointmentStatus) *AppointmentStatus {
	return &st
}
