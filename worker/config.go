package worker

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pbnjay/memory"

	"github.com/tenuki-go/tenuki/config"
)

// Config holds configuration for the selfplay worker.
type Config struct {
	// Identity of this producing process, stamped on every flushed
	// store. A random one is generated when empty.
	Identity string

	// NATS connection and subjects.
	NatsURL          string
	RequestSubject   string
	FlushSubject     string
	HeartbeatSubject string

	// GameThreads is how many game goroutines to run; -1 means one
	// per CPU. The coordinator's num_game_thread_used caps it.
	GameThreads int

	// How often to poll for a fresh assignment when idle.
	PollInterval time.Duration

	// How often to flush accumulated records, and to report thread
	// checkpoints.
	FlushInterval     time.Duration
	HeartbeatInterval time.Duration

	// Local batch-file destination and compression toggle.
	FlushDir string
	Compress bool

	// FlushAtRecords forces a flush once this many records accumulate,
	// regardless of the interval. Derived from total system memory
	// when zero.
	FlushAtRecords int

	RequestTimeout time.Duration
}

// DefaultWorkerConfig creates a Config with default values, overridable
// from the environment.
func DefaultWorkerConfig() *Config {
	return &Config{
		Identity:          getEnv("TENUKI_IDENTITY", uuid.NewString()),
		NatsURL:           getEnv("TENUKI_NATS_URL", "nats://localhost:4222"),
		RequestSubject:    getEnv("TENUKI_REQUEST_SUBJECT", "tenuki.request"),
		FlushSubject:      getEnv("TENUKI_FLUSH_SUBJECT", "tenuki.flush"),
		HeartbeatSubject:  getEnv("TENUKI_HEARTBEAT_SUBJECT", "tenuki.heartbeat"),
		GameThreads:       getEnvInt("TENUKI_GAME_THREADS", -1),
		PollInterval:      getEnvDuration("TENUKI_POLL_INTERVAL", 5*time.Second),
		FlushInterval:     getEnvDuration("TENUKI_FLUSH_INTERVAL", 30*time.Second),
		HeartbeatInterval: getEnvDuration("TENUKI_HEARTBEAT_INTERVAL", 10*time.Second),
		FlushDir:          getEnv("TENUKI_FLUSH_DIR", "./data/batches"),
		Compress:          true,
		RequestTimeout:    5 * time.Second,
	}
}

// FromConfig maps the process-level configuration onto a worker Config.
func FromConfig(c *config.Config) *Config {
	wc := DefaultWorkerConfig()
	if c.Identity != "" {
		wc.Identity = c.Identity
	}
	wc.NatsURL = c.NatsURL
	wc.RequestSubject = c.RequestSubject
	wc.FlushSubject = c.FlushSubject
	wc.HeartbeatSubject = c.HeartbeatSubject
	wc.GameThreads = c.GameThreads
	wc.PollInterval = c.PollInterval
	wc.FlushInterval = c.FlushInterval
	wc.HeartbeatInterval = c.HeartbeatInterval
	wc.FlushDir = c.DataPath + "/batches"
	wc.Compress = c.Compress
	return wc
}

// resolveThreads turns the configured thread count and the server's
// budget into the number of game goroutines to start.
func (c *Config) resolveThreads(serverBudget int) int {
	n := c.GameThreads
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if serverBudget > 0 && serverBudget < n {
		n = serverBudget
	}
	return n
}

// flushAtRecords bounds the in-RAM store. A finished 19x19 game with
// full policy traces runs a few hundred KB of JSON; budget a sliver of
// total memory and assume half a megabyte per record.
func (c *Config) flushAtRecords() int {
	if c.FlushAtRecords > 0 {
		return c.FlushAtRecords
	}
	budget := memory.TotalMemory() / 64
	n := int(budget / (512 * 1024))
	if n < 16 {
		n = 16
	}
	return n
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration gets a duration from an environment variable or returns a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
