package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ratefeed/internal/adapters"
	"ratefeed/internal/adapters/cache"
	"ratefeed/internal/domain"
	"ratefeed/internal/export"
	"ratefeed/internal/fetch"
	"ratefeed/internal/metrics"
	"ratefeed/internal/normalize"
)

type MockRateSource struct{ mock.Mock }

func (m *MockRateSource) ID() string    { return m.Called().String(0) }
func (m *MockRateSource) Name() string  { return m.Called().String(0) }
func (m *MockRateSource) Enabled() bool { return m.Called().Bool(0) }

func (m *MockRateSource) Fetch(ctx context.Context) ([]domain.RawRate, error) {
	args := m.Called(ctx)
	rates, _ := args.Get(0).([]domain.RawRate)
	return rates, args.Error(1)
}

type MockCycleRepository struct{ mock.Mock }

func (m *MockCycleRepository) Record(ctx context.Context, report domain.CycleReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func newTestService(t *testing.T, sources []adapters.RateSource, history adapters.CycleRepository, path string) (*Service, *cache.RistrettoRawRateCache, *export.Exporter) {
	t.Helper()

	rawCache, err := cache.NewRawRateCache(8, nil)
	require.NoError(t, err)
	t.Cleanup(rawCache.Close)

	fetcher := fetch.NewSourceFetcher(
		fetch.NewSourceLimiters(1000),
		fetch.RetryPolicy{MaxRetries: 0, BaseDelay: time.Millisecond},
		time.Second,
	)
	collector := metrics.New(prometheus.NewRegistry())
	orchestrator := fetch.NewOrchestrator(fetcher, rawCache, collector, 0)

	normalizer := normalize.NewRateNormalizer(normalize.NewCurrencyNormalizer(nil), normalize.Defaults{
		Reserve:   "0",
		MinAmount: "0",
		MaxAmount: "999999999",
		Param:     "0",
	})
	exporter := export.NewExporter(path, true)

	svc := NewService(orchestrator, normalizer, exporter, collector, history, sources, time.Hour)
	return svc, rawCache, exporter
}

func rawBTC(sourceID, out string) domain.RawRate {
	return domain.RawRate{
		SourceID:   sourceID,
		FromTicker: "BTC",
		ToTicker:   "USDT",
		InAmount:   "1",
		OutAmount:  out,
	}
}

// --- RunCycle ---

func TestRunCycle_ExportsNormalizedRates(t *testing.T) {
	src := new(MockRateSource)
	src.On("ID").Return("s1")
	src.On("Enabled").Return(true)
	src.On("Fetch", mock.Anything).Return([]domain.RawRate{
		rawBTC("s1", "65000"),
		rawBTC("s1", "64000"), // duplicate direction, dropped
	}, nil).Once()

	history := new(MockCycleRepository)
	history.On("Record", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		report := args.Get(1).(domain.CycleReport)
		require.NotEmpty(t, report.ExecID)
		require.Equal(t, 1, report.SourcesOK)
		require.Equal(t, 0, report.SourcesFailed)
		require.Equal(t, 2, report.RawCount)
		require.Equal(t, 1, report.CanonicalCount)
		require.True(t, report.Exported)
	}).Once()

	path := filepath.Join(t.TempDir(), "rates.xml")
	svc, _, exporter := newTestService(t, []adapters.RateSource{src}, history, path)

	svc.RunCycle(context.Background())

	snap, ok := exporter.LastSnapshot()
	require.True(t, ok)
	require.Equal(t, 1, snap.Count)
	require.Contains(t, snap.Content, "<from>BTC</from>")
	require.Contains(t, snap.Content, "<out>65000</out>")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, snap.Content, string(content))

	src.AssertExpectations(t)
	history.AssertExpectations(t)
}

func TestRunCycle_NoDataKeepsPreviousOutput(t *testing.T) {
	src := new(MockRateSource)
	src.On("ID").Return("s1")
	src.On("Enabled").Return(true)
	src.On("Fetch", mock.Anything).Return([]domain.RawRate{rawBTC("s1", "65000")}, nil).Once()
	src.On("Fetch", mock.Anything).Return(nil, errors.New("source down"))

	path := filepath.Join(t.TempDir(), "rates.xml")
	svc, _, exporter := newTestService(t, []adapters.RateSource{src}, nil, path)

	svc.RunCycle(context.Background())
	first, ok := exporter.LastSnapshot()
	require.True(t, ok)

	// Second service gets a fresh empty cache, so the failing fetch has no
	// fallback; the previous snapshot must survive untouched.
	failing, _, _ := newTestService(t, []adapters.RateSource{src}, nil, path)
	failing.exporter = exporter
	failing.RunCycle(context.Background())

	second, ok := exporter.LastSnapshot()
	require.True(t, ok)
	require.Equal(t, first, second)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, first.Content, string(content))
}

func TestRunCycle_FallsBackToCachedRates(t *testing.T) {
	src := new(MockRateSource)
	src.On("ID").Return("s1")
	src.On("Enabled").Return(true)
	src.On("Fetch", mock.Anything).Return([]domain.RawRate{rawBTC("s1", "65000")}, nil).Once()
	src.On("Fetch", mock.Anything).Return(nil, errors.New("source down"))

	history := new(MockCycleRepository)
	var reports []domain.CycleReport
	history.On("Record", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		reports = append(reports, args.Get(1).(domain.CycleReport))
	}).Twice()

	path := filepath.Join(t.TempDir(), "rates.xml")
	svc, rawCache, exporter := newTestService(t, []adapters.RateSource{src}, history, path)

	svc.RunCycle(context.Background())
	rawCache.Wait()
	svc.RunCycle(context.Background())

	snap, ok := exporter.LastSnapshot()
	require.True(t, ok)
	require.Equal(t, 1, snap.Count)

	require.Len(t, reports, 2)
	require.Equal(t, 1, reports[1].SourcesFailed)
	require.Equal(t, 1, reports[1].UsedCache)
	require.True(t, reports[1].Exported)
	history.AssertExpectations(t)
}

func TestRunCycle_DisabledSourceNotCounted(t *testing.T) {
	enabled := new(MockRateSource)
	enabled.On("ID").Return("s1")
	enabled.On("Enabled").Return(true)
	enabled.On("Fetch", mock.Anything).Return([]domain.RawRate{rawBTC("s1", "65000")}, nil).Once()

	disabled := new(MockRateSource)
	disabled.On("ID").Return("s2")
	disabled.On("Enabled").Return(false)

	history := new(MockCycleRepository)
	history.On("Record", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		report := args.Get(1).(domain.CycleReport)
		require.Equal(t, 1, report.SourcesOK)
		require.Equal(t, 0, report.SourcesFailed)
	}).Once()

	path := filepath.Join(t.TempDir(), "rates.xml")
	svc, _, _ := newTestService(t, []adapters.RateSource{enabled, disabled}, history, path)

	svc.RunCycle(context.Background())

	disabled.AssertNotCalled(t, "Fetch", mock.Anything)
	history.AssertExpectations(t)
}

func TestRunCycle_HistoryErrorDoesNotFailCycle(t *testing.T) {
	src := new(MockRateSource)
	src.On("ID").Return("s1")
	src.On("Enabled").Return(true)
	src.On("Fetch", mock.Anything).Return([]domain.RawRate{rawBTC("s1", "65000")}, nil).Once()

	history := new(MockCycleRepository)
	history.On("Record", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

	path := filepath.Join(t.TempDir(), "rates.xml")
	svc, _, exporter := newTestService(t, []adapters.RateSource{src}, history, path)

	svc.RunCycle(context.Background())

	_, ok := exporter.LastSnapshot()
	require.True(t, ok)
	history.AssertExpectations(t)
}

// --- Start / Shutdown ---

func TestService_StartRunsImmediately(t *testing.T) {
	src := new(MockRateSource)
	src.On("ID").Return("s1")
	src.On("Enabled").Return(true)
	src.On("Fetch", mock.Anything).Return([]domain.RawRate{rawBTC("s1", "65000")}, nil)

	path := filepath.Join(t.TempDir(), "rates.xml")
	svc, _, exporter := newTestService(t, []adapters.RateSource{src}, nil, path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))
	require.True(t, svc.Running())

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := exporter.LastSnapshot(); ok {
			break
		}
		require.True(t, time.Now().Before(deadline), "no export before deadline")
		time.Sleep(10 * time.Millisecond)
	}

	require.NoError(t, svc.Shutdown())
	require.False(t, svc.Running())
}

func TestService_ContextCancelShutsDown(t *testing.T) {
	src := new(MockRateSource)
	src.On("ID").Return("s1")
	src.On("Enabled").Return(true)
	src.On("Fetch", mock.Anything).Return([]domain.RawRate{rawBTC("s1", "65000")}, nil).Maybe()

	path := filepath.Join(t.TempDir(), "rates.xml")
	svc, _, _ := newTestService(t, []adapters.RateSource{src}, nil, path)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.Start(ctx))
	cancel()

	// Wait until the ctx goroutine shuts the scheduler down.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !svc.Running() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.False(t, svc.Running(), "expected scheduler to be shutdown after ctx cancel")

	// Explicit shutdown after the watcher already stopped the scheduler.
	require.NoError(t, svc.Shutdown())
}

func TestService_ShutdownWithoutStart(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, nil, nil, time.Second)
	require.NoError(t, svc.Shutdown())
	// Idempotent.
	require.NoError(t, svc.Shutdown())
}

func TestNewService_DefaultsIntervalWhenInvalid(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, nil, nil, 0)
	require.Equal(t, 30*time.Second, svc.interval)
}
