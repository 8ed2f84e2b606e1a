package puller

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/flappah/netatmo2wow/pkg/metrics"
	"github.com/flappah/netatmo2wow/pkg/models"
	"github.com/flappah/netatmo2wow/pkg/pusher"
	"github.com/flappah/netatmo2wow/pkg/reconcile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPusher struct {
	name      string
	err       error
	published []models.Measurement
}

func (p *recordingPusher) GetServiceName() string { return p.name }

func (p *recordingPusher) Publish(ctx context.Context, deviceID string, measurements []models.Measurement) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	p.published = append(p.published, measurements...)
	return len(measurements), nil
}

type memoryArchive struct {
	stored map[string]int
	err    error
}

func (a *memoryArchive) StoreObservations(ctx context.Context, series models.DeviceSeries) (int, error) {
	if a.err != nil {
		return 0, a.err
	}
	if a.stored == nil {
		a.stored = make(map[string]int)
	}
	a.stored[series.DeviceID] += len(series.Measurements)
	return len(series.Measurements), nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func fixedSeries(deviceID string, timestamps ...int64) []models.DeviceSeries {
	s := models.DeviceSeries{DeviceID: deviceID}
	for _, ts := range timestamps {
		s.Measurements = append(s.Measurements, models.Measurement{Timestamp: ts, Temperature: models.Float(10)})
	}
	return []models.DeviceSeries{s}
}

type serviceFixture struct {
	service *Service
	source  *MockPuller
	wow     *recordingPusher
	archive *memoryArchive
	reg     *prometheus.Registry
	now     time.Time
}

func newServiceFixture(t *testing.T, pull func(ctx context.Context, opts reconcile.Options) ([]models.DeviceSeries, error)) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		source:  &MockPuller{providerType: "netatmo", pullFunc: pull},
		wow:     &recordingPusher{name: "wow"},
		archive: &memoryArchive{},
		reg:     prometheus.NewRegistry(),
		now:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	pullers := NewPullerRegistry()
	pullers.Register(f.source)
	pushers := pusher.NewRegistry()
	pushers.Register(f.wow)

	tracker, err := pusher.NewMemoryTracker(16)
	require.NoError(t, err)

	f.service = NewService(pullers, pushers, tracker, ServiceConfig{
		Timespan: 2 * time.Hour,
		Options:  reconcile.Options{Tolerance: reconcile.DefaultTolerance},
	}, quietLogger(),
		WithArchive(f.archive),
		WithMetrics(metrics.New(f.reg)),
		WithClock(func() time.Time { return f.now }),
	)
	return f
}

func TestService_RunOnce(t *testing.T) {
	f := newServiceFixture(t, func(ctx context.Context, opts reconcile.Options) ([]models.DeviceSeries, error) {
		return fixedSeries("dev-1", 1000, 2000), nil
	})

	report, err := f.service.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, f.now.Add(-2*time.Hour), f.source.lastOptions.Since)
	assert.Equal(t, reconcile.DefaultTolerance, f.source.lastOptions.Tolerance)

	require.Len(t, report.Series, 1)
	assert.Equal(t, 2, report.Archived)
	assert.Equal(t, 2, report.Published["wow"])
	assert.Equal(t, 2, f.archive.stored["dev-1"])
	assert.Len(t, f.wow.published, 2)
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name, deviceID string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "device_id" && l.GetValue() == deviceID {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("gauge %s{device_id=%q} not gathered", name, deviceID)
	return 0
}

func TestService_RunOnce_LatestObservationGauge(t *testing.T) {
	f := newServiceFixture(t, func(ctx context.Context, opts reconcile.Options) ([]models.DeviceSeries, error) {
		return fixedSeries("dev-1", 1700000000000, 1700000600000), nil
	})

	_, err := f.service.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1700000600.0, gaugeValue(t, f.reg, "netatmo2wow_latest_observation_timestamp_seconds", "dev-1"))
}

func TestService_RunOnce_PublishesOnlyNewRecords(t *testing.T) {
	calls := 0
	f := newServiceFixture(t, func(ctx context.Context, opts reconcile.Options) ([]models.DeviceSeries, error) {
		calls++
		if calls == 1 {
			return fixedSeries("dev-1", 1000, 2000), nil
		}
		return fixedSeries("dev-1", 1000, 2000, 3000), nil
	})

	_, err := f.service.RunOnce(context.Background())
	require.NoError(t, err)

	report, err := f.service.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Published["wow"])
	assert.Equal(t, 3, report.Archived, "archive upserts the whole window")
	require.Len(t, f.wow.published, 3)
	assert.Equal(t, int64(3000), f.wow.published[2].Timestamp)
}

func TestService_RunOnce_PullFailure(t *testing.T) {
	pullErr := errors.New("netatmo unavailable")
	f := newServiceFixture(t, func(ctx context.Context, opts reconcile.Options) ([]models.DeviceSeries, error) {
		return nil, pullErr
	})

	report, err := f.service.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, pullErr)
	assert.Empty(t, report.Series)
	assert.Empty(t, f.wow.published)
}

func TestService_RunOnce_FailuresDoNotStopOthers(t *testing.T) {
	f := newServiceFixture(t, func(ctx context.Context, opts reconcile.Options) ([]models.DeviceSeries, error) {
		return fixedSeries("dev-1", 1000), nil
	})
	archiveErr := errors.New("database down")
	f.archive.err = archiveErr

	report, err := f.service.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, archiveErr)
	assert.Equal(t, 1, report.Published["wow"], "publishing continues when archiving fails")
}

func TestService_RunOnce_PublishFailure(t *testing.T) {
	f := newServiceFixture(t, func(ctx context.Context, opts reconcile.Options) ([]models.DeviceSeries, error) {
		return fixedSeries("dev-1", 1000), nil
	})
	pubErr := errors.New("WOW returned status 401")
	f.wow.err = pubErr

	_, err := f.service.RunOnce(context.Background())
	assert.ErrorIs(t, err, pubErr)
	assert.Equal(t, 1, f.archive.stored["dev-1"])
}

func TestService_Stop_WaitsForInitialRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f := newServiceFixture(t, func(ctx context.Context, opts reconcile.Options) ([]models.DeviceSeries, error) {
		once.Do(func() { close(started) })
		<-release
		return fixedSeries("dev-1", 1000), nil
	})

	require.NoError(t, f.service.Start())
	<-started

	stopped := make(chan struct{})
	go func() {
		f.service.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while the initial run was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the initial run finished")
	}
	assert.Len(t, f.wow.published, 1)
}

func TestService_Start_InvalidSchedule(t *testing.T) {
	tracker, err := pusher.NewMemoryTracker(4)
	require.NoError(t, err)

	s := NewService(NewPullerRegistry(), pusher.NewRegistry(), tracker, ServiceConfig{Schedule: "not a schedule"}, quietLogger())

	err = s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")
}

func TestNewService_Defaults(t *testing.T) {
	tracker, err := pusher.NewMemoryTracker(4)
	require.NoError(t, err)

	s := NewService(NewPullerRegistry(), pusher.NewRegistry(), tracker, ServiceConfig{}, nil)

	assert.Equal(t, DefaultSchedule, s.config.Schedule)
	assert.Equal(t, 5*time.Minute, s.config.Timeout)
	assert.NotNil(t, s.metrics)
	assert.NotNil(t, s.logger)
}
