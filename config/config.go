// Package config holds the process-level configuration shared by the
// coordinator, the selfplay worker, and the operator tools. Values
// come from an optional YAML file, TENUKI_-prefixed environment
// variables, and defaults, in ascending precedence of env over file.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	NatsURL string `mapstructure:"nats-url"`

	// NATS subjects for the three worker↔coordinator exchanges.
	RequestSubject   string `mapstructure:"request-subject"`
	FlushSubject     string `mapstructure:"flush-subject"`
	HeartbeatSubject string `mapstructure:"heartbeat-subject"`
	VersionSubject   string `mapstructure:"version-subject"`

	// Identity of this producing process; a random one is generated
	// when empty.
	Identity string `mapstructure:"identity"`

	BoardSize int `mapstructure:"board-size"`

	// Worker knobs.
	GameThreads          int           `mapstructure:"game-threads"`
	PollInterval         time.Duration `mapstructure:"poll-interval"`
	FlushInterval        time.Duration `mapstructure:"flush-interval"`
	HeartbeatInterval    time.Duration `mapstructure:"heartbeat-interval"`
	BlackResignThreshold float64       `mapstructure:"black-resign-threshold"`
	WhiteResignThreshold float64       `mapstructure:"white-resign-threshold"`
	NeverResignProb      float64       `mapstructure:"never-resign-prob"`

	// Coordinator knobs.
	EvalGames      int     `mapstructure:"eval-games"`
	EvalWinrate    float64 `mapstructure:"eval-winrate"`
	EvalConfidence float64 `mapstructure:"eval-confidence"`
	StaleAfter     time.Duration `mapstructure:"stale-after"`

	// Where batch files and the archive database live.
	DataPath    string `mapstructure:"data-path"`
	ArchivePath string `mapstructure:"archive-path"`
	Compress    bool   `mapstructure:"compress"`

	Debug bool `mapstructure:"debug"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("nats-url", "nats://localhost:4222")
	v.SetDefault("request-subject", "tenuki.request")
	v.SetDefault("flush-subject", "tenuki.flush")
	v.SetDefault("heartbeat-subject", "tenuki.heartbeat")
	v.SetDefault("version-subject", "tenuki.version")
	v.SetDefault("board-size", 19)
	v.SetDefault("game-threads", -1)
	v.SetDefault("poll-interval", 5*time.Second)
	v.SetDefault("flush-interval", 30*time.Second)
	v.SetDefault("heartbeat-interval", 10*time.Second)
	v.SetDefault("black-resign-threshold", 0.05)
	v.SetDefault("white-resign-threshold", 0.05)
	v.SetDefault("never-resign-prob", 0.1)
	v.SetDefault("eval-games", 400)
	v.SetDefault("eval-winrate", 0.55)
	v.SetDefault("eval-confidence", 95.0)
	v.SetDefault("stale-after", 2*time.Minute)
	v.SetDefault("data-path", "./data")
	v.SetDefault("archive-path", "./data/archive.db")
	v.SetDefault("compress", true)
	v.SetDefault("debug", false)
}

// Load reads the configuration. path may name a YAML file; when empty,
// tenuki.yaml is looked for in the working directory and quietly
// skipped if absent. TENUKI_ env vars override the file (dashes become
// underscores, e.g. TENUKI_NATS_URL).
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("tenuki")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		v.SetConfigName("tenuki")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, err
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// DefaultConfig returns the built-in defaults without touching the
// filesystem or the environment.
func DefaultConfig() *Config {
	v := viper.New()
	defaults(v)
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		log.Fatal().Err(err).Msg("defaults did not unmarshal")
	}
	return &c
}

// AdjustRelativePaths anchors relative data paths at the executable's
// directory, so daemons started from anywhere find their data.
func (c *Config) AdjustRelativePaths(exePath string) {
	dir := filepath.Dir(exePath)
	c.DataPath = toAbs(dir, c.DataPath)
	c.ArchivePath = toAbs(dir, c.ArchivePath)
}

func toAbs(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// EnsureDataPath creates the data directory if needed.
func (c *Config) EnsureDataPath() error {
	return os.MkdirAll(c.DataPath, 0755)
}
