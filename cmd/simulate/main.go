package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbook/clinic-scheduling/internal/config"
	"github.com/medbook/clinic-scheduling/internal/db"
)

// The simulator hammers the two racy paths of the API, booking the same
// open slots and joining the same doctors' queues from many workers,
// then checks that what concurrency produced was conflicts, not
// corruption: no double-booked slot, and a dense 1..N position line for
// every doctor+day.

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	EnqueueRatio float64
	PatientLimit int
	SlotLimit    int
	DoctorLimit  int
	PostgresDSN  string
}

type patient struct {
	ID    uuid.UUID
	Email string
}

type DataPool struct {
	Patients []patient
	Slots    []uuid.UUID
	Doctors  []uuid.UUID
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	p50Idx := len(latencies) * 50 / 100
	if p50Idx >= len(latencies) {
		p50Idx = len(latencies) - 1
	}
	p50 = latencies[p50Idx]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	Booking OperationMetrics
	Enqueue OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d booking=%.2f enqueue=%.2f",
		cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.EnqueueRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d patients, %d slots, %d doctors",
		len(dataPool.Patients), len(dataPool.Slots), len(dataPool.Doctors))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport()

	if err := verifyInvariants(context.Background(), pgPool); err != nil {
		log.Fatalf("INVARIANT VIOLATION: %v", err)
	}
	log.Println("invariants hold: no double bookings, all queues dense")
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.6),
		EnqueueRatio: getFloat("SIM_ENQUEUE_RATIO", 0.4),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 400),
		SlotLimit:    getInt("SIM_SLOT_LIMIT", 1000),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 10),
		PostgresDSN:  baseCfg.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.EnqueueRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.EnqueueRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT id, email FROM users WHERE role = 'patient' LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p patient
		if err := rows.Scan(&p.ID, &p.Email); err != nil {
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, p)
	}

	rows, err = pool.Query(ctx, `
		SELECT id FROM time_slots WHERE status = 'open' LIMIT $1
	`, cfg.SlotLimit)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Slots = append(dataPool.Slots, id)
	}

	rows, err = pool.Query(ctx, `
		SELECT id FROM users WHERE role = 'doctor' LIMIT $1
	`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Doctors = append(dataPool.Doctors, id)
	}

	if len(dataPool.Patients) == 0 || len(dataPool.Doctors) == 0 {
		return nil, fmt.Errorf("run cmd/seed first, found no patients or doctors")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	deadline := time.Now().Add(s.config.Duration)
	var wg sync.WaitGroup

	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)))
			for time.Now().Before(deadline) {
				if rng.Float64() < s.config.BookingRatio && len(s.pool.Slots) > 0 {
					s.doBooking(rng)
				} else {
					s.doEnqueue(rng)
				}
			}
		}(i)
	}

	wg.Wait()
}

func (s *Simulator) doBooking(rng *rand.Rand) {
	p := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	slotID := s.pool.Slots[rng.Intn(len(s.pool.Slots))]

	body, _ := json.Marshal(map[string]string{
		"patient_id":   p.ID.String(),
		"time_slot_id": slotID.String(),
	})

	start := time.Now()
	resp, err := s.client.Post(s.config.APIBaseURL+"/appointments", "application/json", bytes.NewReader(body))
	latency := time.Since(start)

	if err != nil {
		s.metrics.Booking.Record(latency, false, false)
		return
	}
	drain(resp)
	s.metrics.Booking.Record(latency, resp.StatusCode == http.StatusCreated, resp.StatusCode == http.StatusConflict)
}

func (s *Simulator) doEnqueue(rng *rand.Rand) {
	p := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]

	body, _ := json.Marshal(map[string]string{
		"doctor_id":     doctorID.String(),
		"patient_email": p.Email,
	})

	start := time.Now()
	resp, err := s.client.Post(s.config.APIBaseURL+"/queue", "application/json", bytes.NewReader(body))
	latency := time.Since(start)

	if err != nil {
		s.metrics.Enqueue.Record(latency, false, false)
		return
	}
	drain(resp)
	s.metrics.Enqueue.Record(latency, resp.StatusCode == http.StatusCreated, resp.StatusCode == http.StatusConflict)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func (s *Simulator) PrintReport() {
	printOp := func(name string, om *OperationMetrics) {
		avg, min, max, p50, p95 := om.Stats()
		log.Printf("%s: total=%d success=%d conflict=%d error=%d avg=%s min=%s max=%s p50=%s p95=%s",
			name, om.Total, om.Success, om.Conflict, om.Error, avg, min, max, p50, p95)
	}
	printOp("booking", &s.metrics.Booking)
	printOp("enqueue", &s.metrics.Enqueue)
}

// verifyInvariants checks the two store-level guarantees the locks and
// constraints exist for.
func verifyInvariants(ctx context.Context, pool *pgxpool.Pool) error {
	var doubleBooked int
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT time_slot_id
			FROM appointments
			WHERE time_slot_id IS NOT NULL
			  AND status IN ('pending', 'confirmed', 'pending_payment', 'completed')
			GROUP BY time_slot_id
			HAVING count(*) > 1
		) d
	`).Scan(&doubleBooked)
	if err != nil {
		return fmt.Errorf("check double bookings: %w", err)
	}
	if doubleBooked > 0 {
		return fmt.Errorf("%d slots with more than one live appointment", doubleBooked)
	}

	var brokenQueues int
	err = pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT doctor_id, queue_date
			FROM queue_entries
			WHERE status IN ('waiting', 'skipped')
			GROUP BY doctor_id, queue_date
			HAVING count(*) <> max(position)
			    OR count(DISTINCT position) <> count(*)
			    OR min(position) <> 1
		) b
	`).Scan(&brokenQueues)
	if err != nil {
		return fmt.Errorf("check queue density: %w", err)
	}
	if brokenQueues > 0 {
		return fmt.Errorf("%d doctor+day queues with gaps or duplicate positions", brokenQueues)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
