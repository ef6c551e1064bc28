package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/medbook/clinic-scheduling/internal/db"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

func main() {
	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		logger.Fatal().Err(err).Msg("apply schema")
	}

	gofakeit.Seed(time.Now().UnixNano())

	doctors, err := seedUsers(context.Background(), pool, "doctor", 25)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	if _, err := seedUsers(context.Background(), pool, "patient", 500); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedSlots(context.Background(), pool, doctors); err != nil {
		logger.Fatal().Err(err).Msg("seed slots")
	}

	logger.Info().Msg("seed complete")
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, role string, count int) ([]uuid.UUID, error) {
	logger.Info().Int("count", count).Str("role", role).Msg("seeding users")

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		email := fmt.Sprintf("%s.%d@%s", gofakeit.Username(), i, gofakeit.DomainName())

		_, err := pool.Exec(ctx, `
			INSERT INTO users (id, name, email, role)
			VALUES ($1, $2, $3, $4)
		`, id, name, email, role)
		if err != nil {
			return nil, fmt.Errorf("insert %s %d: %w", role, i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// seedSlots gives each doctor a week of 30 minute windows, 09:00-17:00.
func seedSlots(ctx context.Context, pool *pgxpool.Pool, doctors []uuid.UUID) error {
	logger.Info().Int("doctors", len(doctors)).Msg("seeding slots")

	today := time.Now().UTC().Truncate(24 * time.Hour)
	total := 0

	for _, doctorID := range doctors {
		for day := 1; day <= 7; day++ {
			date := today.AddDate(0, 0, day)
			for hour := 9; hour < 17; hour++ {
				for _, minute := range []int{0, 30} {
					start := time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, time.UTC)
					end := start.Add(30 * time.Minute)

					_, err := pool.Exec(ctx, `
						INSERT INTO time_slots (id, doctor_id, slot_date, start_time, end_time, status)
						VALUES ($1, $2, $3, $4, $5, 'open')
					`, uuid.New(), doctorID, date, start, end)
					if err != nil {
						return fmt.Errorf("insert slot: %w", err)
					}
					total++
				}
			}
		}
	}

	logger.Info().Int("slots", total).Msg("slots seeded")
	return nil
}
