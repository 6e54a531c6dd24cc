package workers

import (
	"charity-chat/domain/event"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// ProcessStatsWorker samples the server process itself and publishes
// CPU and memory usage on the telemetry channel.
type ProcessStatsWorker struct {
	log            *slog.Logger
	telemetryChan  chan event.Event
	metricInterval time.Duration
	pid            int32
}

func NewProcessStatsWorker(log *slog.Logger, telemetryChan chan event.Event, metricInterval time.Duration) *ProcessStatsWorker {
	return &ProcessStatsWorker{
		log:            log,
		telemetryChan:  telemetryChan,
		metricInterval: metricInterval,
		pid:            int32(os.Getpid()),
	}
}

func (w *ProcessStatsWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(w.pid)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping process stats")
			return nil
		case <-ticker.C:
			stats, err := w.sample(p)
			if err != nil {
				w.log.Error("Error while sampling process", "pid", w.pid, "err", err)
				continue
			}
			select {
			case w.telemetryChan <- event.Event{
				Type:      event.ProcessStatsType,
				CreatedAt: time.Now().UTC(),
				Payload:   stats,
			}:
			default:
				w.log.Debug("Observability telemetry event lost")
			}
		}
	}
}

func (w *ProcessStatsWorker) sample(p *process.Process) (event.ProcessStats, error) {
	cpu, err := p.CPUPercent()
	if err != nil {
		return event.ProcessStats{}, err
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return event.ProcessStats{}, err
	}
	threads, err := p.NumThreads()
	if err != nil {
		return event.ProcessStats{}, err
	}
	return event.ProcessStats{PID: w.pid, CPUPercent: cpu, RSS: mem.RSS, Threads: threads}, nil
}
