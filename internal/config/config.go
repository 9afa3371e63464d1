// Package config loads service configuration from the environment.
// Postgres is the single source of truth; everything here is plumbing
// around it (pool sizing, loop cadence, advisory redis stream, harness hooks).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is shared by the api, worker, and reconciler binaries; each reads
// the subset it needs.
type Config struct {
	Env         string // development | production
	DatabaseURL string

	LeaseDuration      time.Duration // LEASE_SECONDS
	MaxAttemptsDefault int32         // MAX_ATTEMPTS_DEFAULT
	ClaimSleep         time.Duration // CLAIM_SLEEP_MS, idle poll interval
	WorkerLoops        int           // WORKER_LOOPS, claim loops per process

	ReconcileBatchSize int           // RECONCILE_BATCH_SIZE
	ReconcileSleep     time.Duration // RECONCILE_SLEEP_SECONDS

	APIAddr     string // API_ADDR
	MetricsAddr string // METRICS_ADDR

	// Advisory job notifications. Empty RedisURL disables the stream and the
	// worker falls back to pure polling.
	RedisURL      string
	StreamKey     string
	ConsumerGroup string
	ConsumerName  string

	Harness Harness
}

// Harness carries test-only hooks. All default to off; production deployments
// simply never set them.
type Harness struct {
	CrashAt        string        // CRASH_AT: after_lease_acquire | mid_execute | before_commit | after_commit
	ClockSkew      time.Duration // CLOCK_SKEW_MS, worker wall-clock offset
	BarrierWait    string        // BARRIER_WAIT, barrier name to block on at that point
	BarrierOpen    string        // BARRIER_OPEN, barrier name to open at that point
	BarrierTimeout time.Duration // BARRIER_TIMEOUT_S
	WorkSleep      time.Duration // WORK_SLEEP_SECONDS, artificial handler delay
	MaxLoops       int           // MAX_LOOPS, 0 = unbounded
	ExitOnSuccess  bool          // EXIT_ON_SUCCESS
	ExitOnStale    bool          // EXIT_ON_STALE
	ClaimJobID     string        // CLAIM_JOB_ID, restrict claims to one job
}

func Load() (Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return Config{}, fmt.Errorf("config: DATABASE_URL is not set")
	}

	leaseSec, err := envInt("LEASE_SECONDS", 30)
	if err != nil {
		return Config{}, err
	}
	maxAttempts, err := envInt("MAX_ATTEMPTS_DEFAULT", 3)
	if err != nil {
		return Config{}, err
	}
	claimSleepMS, err := envInt("CLAIM_SLEEP_MS", 250)
	if err != nil {
		return Config{}, err
	}
	workerLoops, err := envInt("WORKER_LOOPS", 1)
	if err != nil {
		return Config{}, err
	}
	batch, err := envInt("RECONCILE_BATCH_SIZE", 100)
	if err != nil {
		return Config{}, err
	}
	reconcileSleepSec, err := envInt("RECONCILE_SLEEP_SECONDS", 5)
	if err != nil {
		return Config{}, err
	}

	harness, err := loadHarness()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Env:         envStr("ENV", "production"),
		DatabaseURL: dbURL,

		LeaseDuration:      time.Duration(leaseSec) * time.Second,
		MaxAttemptsDefault: int32(maxAttempts),
		ClaimSleep:         time.Duration(claimSleepMS) * time.Millisecond,
		WorkerLoops:        workerLoops,

		ReconcileBatchSize: batch,
		ReconcileSleep:     time.Duration(reconcileSleepSec) * time.Second,

		APIAddr:     envStr("API_ADDR", ":8080"),
		MetricsAddr: envStr("METRICS_ADDR", ":8000"),

		RedisURL:      os.Getenv("REDIS_URL"),
		StreamKey:     envStr("STREAM_KEY", "faultline.jobs"),
		ConsumerGroup: envStr("CONSUMER_GROUP", "workers"),
		ConsumerName:  envStr("CONSUMER_NAME", "worker-1"),

		Harness: harness,
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.LeaseDuration <= 0 {
		return fmt.Errorf("config: LEASE_SECONDS must be positive")
	}
	if c.MaxAttemptsDefault < 1 {
		return fmt.Errorf("config: MAX_ATTEMPTS_DEFAULT must be >= 1")
	}
	if c.ClaimSleep <= 0 {
		return fmt.Errorf("config: CLAIM_SLEEP_MS must be positive")
	}
	if c.WorkerLoops < 1 {
		return fmt.Errorf("config: WORKER_LOOPS must be >= 1")
	}
	if c.ReconcileBatchSize < 1 {
		return fmt.Errorf("config: RECONCILE_BATCH_SIZE must be >= 1")
	}
	switch c.Harness.CrashAt {
	case "", "after_lease_acquire", "mid_execute", "before_commit", "after_commit":
	default:
		return fmt.Errorf("config: unknown CRASH_AT %q", c.Harness.CrashAt)
	}
	return nil
}

func loadHarness() (Harness, error) {
	skewMS, err := envInt("CLOCK_SKEW_MS", 0)
	if err != nil {
		return Harness{}, err
	}
	barrierTimeoutSec, err := envInt("BARRIER_TIMEOUT_S", 30)
	if err != nil {
		return Harness{}, err
	}
	workSleepMS, err := envFloatSeconds("WORK_SLEEP_SECONDS", 0)
	if err != nil {
		return Harness{}, err
	}
	maxLoops, err := envInt("MAX_LOOPS", 0)
	if err != nil {
		return Harness{}, err
	}

	return Harness{
		CrashAt:        os.Getenv("CRASH_AT"),
		ClockSkew:      time.Duration(skewMS) * time.Millisecond,
		BarrierWait:    os.Getenv("BARRIER_WAIT"),
		BarrierOpen:    os.Getenv("BARRIER_OPEN"),
		BarrierTimeout: time.Duration(barrierTimeoutSec) * time.Second,
		WorkSleep:      workSleepMS,
		MaxLoops:       maxLoops,
		ExitOnSuccess:  envBool("EXIT_ON_SUCCESS"),
		ExitOnStale:    envBool("EXIT_ON_STALE"),
		ClaimJobID:     os.Getenv("CLAIM_JOB_ID"),
	}, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

// envFloatSeconds parses a fractional seconds value into a Duration.
func envFloatSeconds(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return time.Duration(f * float64(time.Second)), nil
}

func envBool(key string) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "yes":
		return true
	default:
		return false
	}
}
