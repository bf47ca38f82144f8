package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/btr-supply/chomp/internal/model"
)

// MonitorFetcher populates the system telemetry fields every monitored
// ingester carries (spec.md §4.6 "monitor: cpu_pct, mem_bytes,
// disk_io_bps, geo_lat/geo_lon"), reading host telemetry through
// gopsutil. disk_io_bps is the read+write byte delta since the previous
// sample divided by the seconds elapsed between the two samples.
type MonitorFetcher struct {
	GeoLat, GeoLon float32
	prevDiskBytes  uint64
	prevSampleAt   time.Time
	prevSampleOK   bool
}

// NewMonitorFetcher builds a fetcher, optionally seeded with this
// instance's geo coordinates (resolved once at startup).
func NewMonitorFetcher(geoLat, geoLon float32) *MonitorFetcher {
	return &MonitorFetcher{GeoLat: geoLat, GeoLon: geoLon}
}

func (f *MonitorFetcher) Fetch(ctx context.Context, ing *model.Ingester) error {
	pcts, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return fmt.Errorf("monitor: cpu percent: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return fmt.Errorf("monitor: virtual memory: %w", err)
	}
	ioCounters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return fmt.Errorf("monitor: disk io counters: %w", err)
	}

	var totalBytes uint64
	for _, c := range ioCounters {
		totalBytes += c.ReadBytes + c.WriteBytes
	}
	now := time.Now()
	var diskBps float64
	if f.prevSampleOK {
		if elapsed := now.Sub(f.prevSampleAt).Seconds(); elapsed > 0 {
			diskBps = float64(totalBytes-f.prevDiskBytes) / elapsed
		}
	}
	f.prevDiskBytes = totalBytes
	f.prevSampleAt = now
	f.prevSampleOK = true

	var cpuPct float64
	if len(pcts) > 0 {
		cpuPct = pcts[0]
	}

	_ = ing.SetFieldValue("cpu_pct", float32(cpuPct))
	_ = ing.SetFieldValue("mem_bytes", vm.Used)
	_ = ing.SetFieldValue("disk_io_bps", diskBps)
	_ = ing.SetFieldValue("geo_lat", f.GeoLat)
	_ = ing.SetFieldValue("geo_lon", f.GeoLon)
	return nil
}
