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
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hemolink/bloodbank/internal/db"
)

// simulate hammers the booking endpoint with concurrent donors to verify
// that slot capacity holds under load. Donor and slot ids are pulled
// straight from the seeded database.

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	DonorLimit  int
	SlotLimit   int
	PostgresDSN string
}

type DataPool struct {
	Donors []uuid.UUID
	Slots  []uuid.UUID
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	Latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Percentile(p float64) time.Duration {
	om.mu.Lock()
	defer om.mu.Unlock()
	if len(om.Latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(om.Latencies))
	copy(sorted, om.Latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := SimConfig{
		APIBaseURL:  envOr("SIM_API_URL", "http://127.0.0.1:8080"),
		Duration:    envDuration("SIM_DURATION", 30*time.Second),
		Workers:     envInt("SIM_WORKERS", 20),
		DonorLimit:  envInt("SIM_DONOR_LIMIT", 200),
		SlotLimit:   envInt("SIM_SLOT_LIMIT", 50),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	data, err := loadDataPool(context.Background(), pool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	if len(data.Donors) == 0 || len(data.Slots) == 0 {
		log.Fatal("no donors or slots seeded, run cmd/seed first")
	}

	log.Printf("simulating: %d workers for %s against %s (%d donors, %d slots)",
		cfg.Workers, cfg.Duration, cfg.APIBaseURL, len(data.Donors), len(data.Slots))

	metrics := &OperationMetrics{}
	runCtx, stopRun := context.WithTimeout(context.Background(), cfg.Duration)
	defer stopRun()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			worker(runCtx, cfg, data, metrics, rand.New(rand.NewSource(seed)))
		}(time.Now().UnixNano() + int64(i))
	}
	wg.Wait()

	report(metrics)
}

func worker(ctx context.Context, cfg SimConfig, data *DataPool, metrics *OperationMetrics, rng *rand.Rand) {
	client := &http.Client{Timeout: 5 * time.Second}
	date := time.Now().AddDate(0, 0, 1+rng.Intn(6)).Format("2006-01-02")

	for ctx.Err() == nil {
		body, _ := json.Marshal(map[string]string{
			"donorId": data.Donors[rng.Intn(len(data.Donors))].String(),
			"slotId":  data.Slots[rng.Intn(len(data.Slots))].String(),
			"date":    date,
		})

		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			cfg.APIBaseURL+"/appointments/create", bytes.NewReader(body))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() == nil {
				metrics.Record(time.Since(start), 0)
			}
			continue
		}
		resp.Body.Close()
		metrics.Record(time.Since(start), resp.StatusCode)
	}
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	data := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM donors LIMIT $1`, cfg.DonorLimit)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		data.Donors = append(data.Donors, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = pool.Query(ctx, `SELECT id FROM appointment_slots WHERE is_available LIMIT $1`, cfg.SlotLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		data.Slots = append(data.Slots, id)
	}
	return data, rows.Err()
}

func report(m *OperationMetrics) {
	fmt.Println("---- booking simulation ----")
	fmt.Printf("total:    %d\n", atomic.LoadInt64(&m.Total))
	fmt.Printf("created:  %d\n", atomic.LoadInt64(&m.Success))
	fmt.Printf("conflict: %d\n", atomic.LoadInt64(&m.Conflict))
	fmt.Printf("error:    %d\n", atomic.LoadInt64(&m.Error))
	fmt.Printf("p50:      %s\n", m.Percentile(0.50))
	fmt.Printf("p95:      %s\n", m.Percentile(0.95))
	fmt.Printf("p99:      %s\n", m.Percentile(0.99))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
