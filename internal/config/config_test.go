package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.Equal(t, ":9092", cfg.Server.KafkaAddr)
	require.Equal(t, int32(16), cfg.Coordinator.OffsetsPartitions)
	require.Greater(t, cfg.Coordinator.SMPConcurrency, 0)
	require.Equal(t, "badger", cfg.Storage.Backend)
}

func TestCoreCount(t *testing.T) {
	cfg := Default()
	require.Greater(t, cfg.CoreCount(), 0)

	cfg.Cores.Count = 4
	require.Equal(t, 4, cfg.CoreCount())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "polylog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  kafka_addr: ":19092"
cores:
  count: 2
coordinator:
  offsets_partitions: 8
  smp_concurrency: 32
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":19092", cfg.Server.KafkaAddr)
	require.Equal(t, 2, cfg.Cores.Count)
	require.Equal(t, int32(8), cfg.Coordinator.OffsetsPartitions)
	require.Equal(t, 32, cfg.Coordinator.SMPConcurrency)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("POLYLOG_KAFKA_ADDR", ":29092")
	t.Setenv("POLYLOG_CORES", "3")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":29092", cfg.Server.KafkaAddr)
	require.Equal(t, 3, cfg.Cores.Count)
}
