package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.opentelemetry.io/otel/metric"
)

// PerfStatsInterval is how often InstrumentPerfStats samples the process.
const PerfStatsInterval = 30 * time.Second

type perfGauges struct {
	cpu         metric.Float64Gauge
	allocatedMb metric.Int64Gauge
	liveObjects metric.Int64Gauge
	goroutines  metric.Int64Gauge
}

func newPerfGauges(meter metric.Meter) (perfGauges, error) {
	var g perfGauges
	var errs [4]error
	g.cpu, errs[0] = meter.Float64Gauge("cpu_usage", metric.WithUnit("%"))
	g.allocatedMb, errs[1] = meter.Int64Gauge("allocated_mb", metric.WithUnit("MB"))
	g.liveObjects, errs[2] = meter.Int64Gauge("live_objects")
	g.goroutines, errs[3] = meter.Int64Gauge("goroutine_count")
	return g, errors.Join(errs[:]...)
}

// record takes one sample. cpu usage is measured since the previous sample.
func (g perfGauges) record(ctx context.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	usage, err := cpu.PercentWithContext(ctx, 0, false)
	if err == nil && len(usage) > 0 {
		g.cpu.Record(ctx, usage[0])
	} else if err != nil {
		slog.Debug("failed to read cpu usage", "err", err)
	}

	g.allocatedMb.Record(ctx, int64(mem.Alloc/1_000_000))
	g.liveObjects.Record(ctx, int64(mem.Mallocs)-int64(mem.Frees))
	g.goroutines.Record(ctx, int64(runtime.NumGoroutine()))
}

// InstrumentPerfStats samples cpu, memory and goroutine gauges on meter
// every interval until ctx is done.
func InstrumentPerfStats(ctx context.Context, meter metric.Meter, interval time.Duration) error {
	gauges, err := newPerfGauges(meter)
	if err != nil {
		return err
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				gauges.record(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
