package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema carries the store-level invariants the scheduling core relies
// on: no duplicate windows per doctor, at most one live appointment per
// slot, one invoice per appointment, one active queue entry per
// doctor+patient and one approved entry per doctor.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id uuid PRIMARY KEY,
    name text NOT NULL,
    email text NOT NULL UNIQUE,
    role text NOT NULL CHECK (role IN ('doctor', 'patient')),
    completed_appointments integer NOT NULL DEFAULT 0,
    created_at timestamptz NOT NULL DEFAULT now(),
    updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS time_slots (
    id uuid PRIMARY KEY,
    doctor_id uuid NOT NULL REFERENCES users(id),
    slot_date date NOT NULL,
    start_time timestamptz NOT NULL,
    end_time timestamptz NOT NULL,
    status text NOT NULL CHECK (status IN ('open', 'closed')),
    created_at timestamptz NOT NULL DEFAULT now(),
    updated_at timestamptz NOT NULL DEFAULT now(),
    CONSTRAINT time_slots_doctor_window_key UNIQUE (doctor_id, start_time, end_time)
);

CREATE TABLE IF NOT EXISTS appointments (
    id uuid PRIMARY KEY,
    patient_id uuid NOT NULL REFERENCES users(id),
    doctor_id uuid NOT NULL REFERENCES users(id),
    time_slot_id uuid REFERENCES time_slots(id),
    scheduled_at timestamptz NOT NULL,
    status text NOT NULL CHECK (status IN ('pending', 'confirmed', 'pending_payment', 'completed', 'cancelled', 'rescheduled')),
    created_at timestamptz NOT NULL DEFAULT now(),
    updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS appointments_active_slot_key
    ON appointments (time_slot_id)
    WHERE status IN ('pending', 'confirmed', 'pending_payment', 'completed');

CREATE TABLE IF NOT EXISTS appointment_history (
    id bigserial PRIMARY KEY,
    appointment_id uuid NOT NULL REFERENCES appointments(id),
    description text NOT NULL,
    new_status text,
    created_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS invoices (
    id uuid PRIMARY KEY,
    appointment_id uuid NOT NULL REFERENCES appointments(id),
    patient_id uuid NOT NULL REFERENCES users(id),
    created_by uuid NOT NULL REFERENCES users(id),
    amount_cents bigint NOT NULL CHECK (amount_cents > 0),
    status text NOT NULL CHECK (status IN ('pending', 'paid')),
    created_at timestamptz NOT NULL DEFAULT now(),
    updated_at timestamptz NOT NULL DEFAULT now(),
    CONSTRAINT invoices_appointment_id_key UNIQUE (appointment_id)
);

CREATE TABLE IF NOT EXISTS queue_entries (
    id uuid PRIMARY KEY,
    doctor_id uuid NOT NULL REFERENCES users(id),
    patient_id uuid NOT NULL REFERENCES users(id),
    queue_date date NOT NULL,
    position integer NOT NULL CHECK (position >= 1),
    status text NOT NULL CHECK (status IN ('waiting', 'skipped', 'approved', 'cancelled', 'completed')),
    appointment_id uuid REFERENCES appointments(id),
    created_at timestamptz NOT NULL DEFAULT now(),
    updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS queue_entries_active_patient_key
    ON queue_entries (doctor_id, patient_id)
    WHERE status IN ('waiting', 'skipped');

CREATE UNIQUE INDEX IF NOT EXISTS queue_entries_approved_doctor_key
    ON queue_entries (doctor_id)
    WHERE status = 'approved';

CREATE INDEX IF NOT EXISTS queue_entries_doctor_day_idx
    ON queue_entries (doctor_id, queue_date, position);
`

// Migrate applies the schema. Statements are idempotent, so running it
// on every startup is safe.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
