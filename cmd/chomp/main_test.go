package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/btr-supply/chomp/internal/config"
)

func TestApplyCLIOverridesSetsServerMode(t *testing.T) {
	cfg := config.New()
	applyCLIOverrides(cfg, cliOverrides{server: true})
	require.Equal(t, "server", cfg.Mode)
}

func TestApplyCLIOverridesDefaultsToWorkerMode(t *testing.T) {
	cfg := config.New()
	cfg.Mode = ""
	applyCLIOverrides(cfg, cliOverrides{})
	require.Equal(t, "worker", cfg.Mode)
}

func TestApplyCLIOverridesOnlyOverridesNonZeroIngestionFields(t *testing.T) {
	cfg := config.New()
	orig := cfg.Ingestion
	applyCLIOverrides(cfg, cliOverrides{maxRetries: 9})
	require.Equal(t, 9, cfg.Ingestion.MaxRetries)
	require.Equal(t, orig.RetryCooldownSec, cfg.Ingestion.RetryCooldownSec)
	require.Equal(t, orig.TimeoutSec, cfg.Ingestion.TimeoutSec)
}

func TestApplyCLIOverridesSetsThreadedUnconditionally(t *testing.T) {
	cfg := config.New()
	require.True(t, cfg.Cluster.Threaded)
	applyCLIOverrides(cfg, cliOverrides{threaded: false})
	require.False(t, cfg.Cluster.Threaded)
}

func TestApplyCLIOverridesMarksIngestersMonitored(t *testing.T) {
	cfg := config.New()
	cfg.Ingesters = []config.IngesterSpec{{Name: "px"}, {Name: "fx", Monitored: true}}
	applyCLIOverrides(cfg, cliOverrides{monitored: true})
	require.True(t, cfg.Ingesters[0].Monitored)
	require.True(t, cfg.Ingesters[1].Monitored)
}

func TestApplyCLIOverridesLeavesMonitoredAloneWhenFlagUnset(t *testing.T) {
	cfg := config.New()
	cfg.Ingesters = []config.IngesterSpec{{Name: "px"}}
	applyCLIOverrides(cfg, cliOverrides{monitored: false})
	require.False(t, cfg.Ingesters[0].Monitored)
}

func TestApplyCLIOverridesSetsVerboseLogLevel(t *testing.T) {
	cfg := config.New()
	applyCLIOverrides(cfg, cliOverrides{verbose: true})
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestApplyCLIOverridesSetsStorageAdapterAndMaxJobs(t *testing.T) {
	cfg := config.New()
	applyCLIOverrides(cfg, cliOverrides{tsdbAdapter: "postgres", maxJobs: 42, uidMasksFile: "masks.yml"})
	require.Equal(t, "postgres", cfg.Storage.Adapter)
	require.Equal(t, 42, cfg.Cluster.MaxJobs)
	require.Equal(t, "masks.yml", cfg.Cluster.UIDMasks)
}
