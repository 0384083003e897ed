package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestDefaults(t *testing.T) {
	is := is.New(t)
	c := DefaultConfig()
	is.Equal(c.NatsURL, "nats://localhost:4222")
	is.Equal(c.BoardSize, 19)
	is.Equal(c.GameThreads, -1)
	is.Equal(c.FlushInterval, 30*time.Second)
	is.True(c.Compress)
}

func TestLoadFileAndEnv(t *testing.T) {
	is := is.New(t)
	path := filepath.Join(t.TempDir(), "tenuki.yaml")
	yaml := "board-size: 9\nnats-url: nats://example:4222\n"
	is.NoErr(os.WriteFile(path, []byte(yaml), 0644))

	t.Setenv("TENUKI_BOARD_SIZE", "13")

	c, err := Load(path)
	is.NoErr(err)
	// Env overrides file; file overrides defaults.
	is.Equal(c.BoardSize, 13)
	is.Equal(c.NatsURL, "nats://example:4222")
	is.Equal(c.EvalGames, 400)
}

func TestAdjustRelativePaths(t *testing.T) {
	is := is.New(t)
	c := DefaultConfig()
	c.DataPath = "data"
	c.ArchivePath = "/var/lib/tenuki/archive.db"
	c.AdjustRelativePaths("/opt/tenuki/bin/coordinator")
	is.Equal(c.DataPath, "/opt/tenuki/bin/data")
	is.Equal(c.ArchivePath, "/var/lib/tenuki/archive.db")
}
