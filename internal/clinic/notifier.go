package clinic

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Notifier is the delivery collaborator. Implementations are best
// effort: the scheduling core logs their failures and moves on.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, message string) error
	Email(ctx context.Context, to, subject, html string) error
}

// LogNotifier writes notifications to the log instead of delivering
// them. Used in development and as the default wiring until a real
// dispatcher is plugged in.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, userID uuid.UUID, message string) error {
	n.Log.Info().Stringer("user_id", userID).Str("message", message).Msg("notification")
	return nil
}

func (n LogNotifier) Email(_ context.Context, to, subject, _ string) error {
	n.Log.Info().Str("to", to).Str("subject", subject).Msg("email")
	return nil
}
