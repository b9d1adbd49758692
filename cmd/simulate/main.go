package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbook/scheduling-core/internal/config"
	"github.com/medbook/scheduling-core/internal/db"
)

// Load driver for the scheduling API. Workers race each other booking
// slots off live availability, so the conflict percentages in the report
// are the interesting number: they show the reservation path refusing
// double-bookings under contention.

type SimConfig struct {
	APIBaseURL        string
	Duration          time.Duration
	Workers           int
	ReserveRatio      float64
	TransitionRatio   float64
	ReadRatio         float64
	ProfessionalLimit int
	PatientCount      int
	PostgresDSN       string
}

type bookedAppointment struct {
	ID      uuid.UUID
	Version int64
	Status  string
}

type DataPool struct {
	Professionals []uuid.UUID
	Patients      []uuid.UUID

	mu           sync.RWMutex
	appointments []bookedAppointment
}

func (dp *DataPool) AddAppointment(id uuid.UUID, version int64, status string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, bookedAppointment{ID: id, Version: version, Status: status})
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (bookedAppointment, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return bookedAppointment{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

func (dp *DataPool) UpdateAppointment(id uuid.UUID, version int64, status string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	for i := range dp.appointments {
		if dp.appointments[i].ID == id {
			dp.appointments[i].Version = version
			dp.appointments[i].Status = status
			return
		}
	}
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Busy      int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, statusCode int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case statusCode >= 200 && statusCode < 300:
		atomic.AddInt64(&om.Success, 1)
	case statusCode == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case statusCode == http.StatusServiceUnavailable:
		atomic.AddInt64(&om.Busy, 1)
	default:
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
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, pct int) int {
	idx := n * pct / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Availability  OperationMetrics
	Reserve       OperationMetrics
	Transition    OperationMetrics
	ReadByID      OperationMetrics
	ListByPatient OperationMetrics
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

	log.Printf("config: duration=%s workers=%d reserve=%.2f transition=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.ReserveRatio, cfg.TransitionRatio, cfg.ReadRatio)

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

	log.Printf("loaded: %d professionals, %d synthetic patients",
		len(dataPool.Professionals), len(dataPool.Patients))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:        getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:          getDuration("SIM_DURATION", 30*time.Second),
		Workers:           getInt("SIM_WORKERS", 10),
		ReserveRatio:      getFloat("SIM_RESERVE_RATIO", 0.5),
		TransitionRatio:   getFloat("SIM_TRANSITION_RATIO", 0.2),
		ReadRatio:         getFloat("SIM_READ_RATIO", 0.3),
		ProfessionalLimit: getInt("SIM_PROFESSIONAL_LIMIT", 100),
		PatientCount:      getInt("SIM_PATIENT_COUNT", 4000),
		PostgresDSN:       baseCfg.PostgresDSN,
	}

	total := cfg.ReserveRatio + cfg.TransitionRatio + cfg.ReadRatio
	if total > 0 {
		cfg.ReserveRatio /= total
		cfg.TransitionRatio /= total
		cfg.ReadRatio /= total
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
		SELECT professional_id FROM availability_templates LIMIT $1
	`, cfg.ProfessionalLimit)
	if err != nil {
		return nil, fmt.Errorf("load professionals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Professionals = append(dataPool.Professionals, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Professionals) == 0 {
		return nil, fmt.Errorf("no templates found, run the seed first")
	}

	// Patients are identities only, no rows behind them.
	for i := 0; i < cfg.PatientCount; i++ {
		dataPool.Patients = append(dataPool.Patients, uuid.New())
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.ReserveRatio:
				s.doReserve(ctx, rng)
			case r < s.config.ReserveRatio+s.config.TransitionRatio:
				s.doTransition(ctx, rng)
			default:
				if rng.Intn(2) == 0 {
					s.doReadByID(ctx, rng)
				} else {
					s.doListByPatient(ctx, rng)
				}
			}
		}
	}
}

type slotResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type availabilityResponse struct {
	Slots []slotResponse `json:"slots"`
}

type appointmentResponse struct {
	ID      uuid.UUID `json:"id"`
	Status  string    `json:"status"`
	Version int64     `json:"version"`
}

// doReserve fetches live availability for a random professional and tries
// to book one of the open slots. Many workers aiming at the same narrow
// window is exactly the contention we want to measure.
func (s *Simulator) doReserve(ctx context.Context, rng *rand.Rand) {
	professionalID := s.pool.Professionals[rng.Intn(len(s.pool.Professionals))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	slots, ok := s.fetchAvailability(ctx, rng, professionalID)
	if !ok || len(slots) == 0 {
		return
	}
	slot := slots[rng.Intn(len(slots))]

	reqBody := map[string]any{
		"professional_id": professionalID.String(),
		"patient_id":      patientID.String(),
		"start":           slot.Start.Format(time.RFC3339),
		"end":             slot.End.Format(time.RFC3339),
		"idempotency_key": uuid.New().String(),
	}
	body, _ := json.Marshal(reqBody)

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.metrics.Reserve.Record(latency, 0)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusCreated {
		var appt appointmentResponse
		if json.NewDecoder(resp.Body).Decode(&appt) == nil && appt.ID != uuid.Nil {
			s.pool.AddAppointment(appt.ID, appt.Version, appt.Status)
		}
	}

	s.metrics.Reserve.Record(latency, resp.StatusCode)
}

func (s *Simulator) fetchAvailability(ctx context.Context, rng *rand.Rand, professionalID uuid.UUID) ([]slotResponse, bool) {
	dayOffset := rng.Intn(14) + 1
	from := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, dayOffset)
	to := from.AddDate(0, 0, 1)

	start := time.Now()
	url := fmt.Sprintf("%s/professionals/%s/availability?from=%s&to=%s",
		s.config.APIBaseURL, professionalID,
		from.Format(time.RFC3339), to.Format(time.RFC3339))

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.metrics.Availability.Record(latency, 0)
		return nil, false
	}
	defer resp.Body.Close()
	s.metrics.Availability.Record(latency, resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return nil, false
	}

	var avail availabilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&avail); err != nil {
		return nil, false
	}
	return avail.Slots, true
}

// doTransition walks a booked appointment forward: pending confirms,
// confirmed either cancels or just reads back. Stale versions are expected
// because workers share the pool.
func (s *Simulator) doTransition(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	var target string
	switch appt.Status {
	case "pending":
		target = "confirmed"
	case "confirmed":
		target = "cancelled"
	default:
		return
	}

	reqBody := map[string]any{
		"target_status": target,
		"version":       appt.Version,
	}
	body, _ := json.Marshal(reqBody)

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/appointments/%s/status", s.config.APIBaseURL, appt.ID), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.metrics.Transition.Record(latency, 0)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var updated appointmentResponse
		if json.NewDecoder(resp.Body).Decode(&updated) == nil {
			s.pool.UpdateAppointment(updated.ID, updated.Version, updated.Status)
		}
	}

	s.metrics.Transition.Record(latency, resp.StatusCode)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/appointments/%s", s.config.APIBaseURL, appt.ID), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.metrics.ReadByID.Record(latency, 0)
		return
	}
	defer resp.Body.Close()
	s.metrics.ReadByID.Record(latency, resp.StatusCode)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/appointments?patient_id=%s&limit=20&offset=0", s.config.APIBaseURL, patientID), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.metrics.ListByPatient.Record(latency, 0)
		return
	}
	defer resp.Body.Close()
	s.metrics.ListByPatient.Record(latency, resp.StatusCode)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Availability", &s.metrics.Availability)
	printOperationReport("Reserve", &s.metrics.Reserve)
	printOperationReport("Transition", &s.metrics.Transition)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Patient", &s.metrics.ListByPatient)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	busy := atomic.LoadInt64(&om.Busy)
	errCount := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if busy > 0 {
		fmt.Printf("  Busy: %d (%.1f%%)\n", busy, float64(busy)/float64(total)*100)
	}
	if errCount > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errCount, float64(errCount)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

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
