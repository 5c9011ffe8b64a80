package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ratefeed/internal/adapters"
	"ratefeed/internal/domain"
	"ratefeed/internal/export"
	"ratefeed/internal/fetch"
	"ratefeed/internal/metrics"
	"ratefeed/internal/normalize"
)

// cycleFailureBackoff delays the next cycle after a recovered panic so a
// persistent programming error cannot spin the loop.
const cycleFailureBackoff = 5 * time.Second

// Service runs the periodic fetch -> normalize -> export cycle. Data-source
// and export failures degrade to the previous snapshot; only an explicit
// shutdown stops the loop.
type Service struct {
	orchestrator *fetch.Orchestrator
	normalizer   *normalize.RateNormalizer
	exporter     *export.Exporter
	collector    *metrics.Collector
	history      adapters.CycleRepository
	sources      []adapters.RateSource

	interval time.Duration

	// mu guards sched: the ctx watcher, app shutdown and tests may all
	// call Shutdown concurrently.
	mu    sync.Mutex
	sched gocron.Scheduler
}

func NewService(
	orchestrator *fetch.Orchestrator,
	normalizer *normalize.RateNormalizer,
	exporter *export.Exporter,
	collector *metrics.Collector,
	history adapters.CycleRepository,
	sources []adapters.RateSource,
	interval time.Duration,
) *Service {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Service{
		orchestrator: orchestrator,
		normalizer:   normalizer,
		exporter:     exporter,
		collector:    collector,
		history:      history,
		sources:      sources,
		interval:     interval,
	}
}

// Start begins the periodic loop. Singleton mode guarantees cycles never
// overlap; a slow cycle delays the next one instead of racing it, and the
// scheduler's own timer makes the inter-cycle wait interruptible.
func (s *Service) Start(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sched = scheduler
	s.mu.Unlock()

	_, err = scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func(jobCtx context.Context) {
			s.RunCycle(jobCtx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return err
	}

	scheduler.Start()

	// Stop scheduler when the provided context is canceled.
	go func() {
		<-ctx.Done()
		if sdErr := s.Shutdown(); sdErr != nil {
			logrus.Errorf("Pipeline shutdown error: %v", sdErr)
		}
	}()
	return nil
}

// Shutdown stops the scheduler, waiting for an in-flight cycle to finish.
// Safe to call concurrently and more than once.
func (s *Service) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched == nil {
		return nil
	}
	err := s.sched.Shutdown()
	s.sched = nil
	return err
}

// Running reports whether the scheduler is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched != nil
}

// RunCycle executes one full cycle. Anything escaping the cycle body is
// caught here so a single bad cycle can never take the process down.
func (s *Service) RunCycle(ctx context.Context) {
	execID := uuid.NewString()
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("Cycle %s panicked: %v", execID, r)
			s.collector.RecordCycle(metrics.CycleFailed, time.Since(started))
			time.Sleep(cycleFailureBackoff)
		}
	}()

	outcome := s.runCycle(ctx, execID, started)
	s.collector.RecordCycle(outcome, time.Since(started))
}

func (s *Service) runCycle(ctx context.Context, execID string, started time.Time) string {
	logrus.Infof("Starting fetch cycle; execID: %s", execID)

	results := s.orchestrator.FetchAll(ctx, s.sources)

	report := domain.CycleReport{ExecID: execID, StartedAt: started}
	var all []domain.RawRate
	for _, r := range results {
		all = append(all, r.Rates...)
		switch {
		case r.Skipped:
			// Disabled sources count as neither success nor failure.
		case r.Success:
			report.SourcesOK++
		default:
			report.SourcesFailed++
		}
		if r.UsedCache {
			report.UsedCache++
		}
	}

	if len(all) == 0 {
		logrus.Warnf("No rates fetched this cycle, trying cached data; execID: %s", execID)
		all = s.orchestrator.CachedRates()
	}
	report.RawCount = len(all)

	if len(all) == 0 {
		logrus.WithError(domain.ErrNoRates).Errorf("Keeping previous snapshot; execID: %s", execID)
		s.recordHistory(ctx, report)
		return metrics.CycleSkipped
	}

	normalized := s.normalizer.NormalizeAll(all, true)
	report.CanonicalCount = len(normalized)
	if len(normalized) == 0 {
		logrus.Errorf("No valid rates after normalization, keeping previous snapshot; execID: %s", execID)
		s.recordHistory(ctx, report)
		return metrics.CycleSkipped
	}

	exportErr := s.exporter.Export(normalized)
	s.collector.RecordExport(exportErr == nil, len(normalized))
	report.Exported = exportErr == nil
	s.recordHistory(ctx, report)

	if exportErr != nil {
		// Non-fatal: the previous on-disk snapshot stays authoritative.
		logrus.WithError(exportErr).Errorf("Export failed; execID: %s", execID)
		return metrics.CycleFailed
	}

	logrus.Infof("Cycle completed in %s: %d rates exported; execID: %s", time.Since(started).Round(time.Millisecond), len(normalized), execID)
	return metrics.CycleSuccess
}

func (s *Service) recordHistory(ctx context.Context, report domain.CycleReport) {
	if s.history == nil {
		return
	}
	report.FinishedAt = time.Now()
	recordCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.history.Record(recordCtx, report); err != nil {
		logrus.WithError(err).Warn("Failed to record cycle history")
	}
}
