package puller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flappah/netatmo2wow/pkg/metrics"
	"github.com/flappah/netatmo2wow/pkg/models"
	"github.com/flappah/netatmo2wow/pkg/pusher"
	"github.com/flappah/netatmo2wow/pkg/reconcile"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultSchedule runs every ten minutes
const DefaultSchedule = "*/10 * * * *"

// Archive stores reconciled observations
type Archive interface {
	StoreObservations(ctx context.Context, series models.DeviceSeries) (int, error)
}

// ServiceConfig controls what each run fetches
type ServiceConfig struct {
	// Schedule is a standard five-field cron expression
	Schedule string
	// Timespan is how far back each run looks
	Timespan time.Duration
	// Options carries the reconciliation settings; Since is overwritten per run
	Options reconcile.Options
	// Timeout bounds a single run
	Timeout time.Duration
}

// RunReport summarizes one pull, archive and publish cycle
type RunReport struct {
	Series    []models.DeviceSeries
	Archived  int
	Published map[string]int
}

// Service runs scheduled pulls and forwards the results
type Service struct {
	pullers *PullerRegistry
	pushers *pusher.Registry
	tracker pusher.Tracker
	archive Archive
	metrics *metrics.Collectors
	logger  *logrus.Logger
	config  ServiceConfig
	cron    *cron.Cron
	now     func() time.Time

	// serializes runs so a slow run is never overlapped by the next tick
	mu sync.Mutex
	// tracks the run triggered by Start outside of cron
	initial sync.WaitGroup
}

// ServiceOption configures optional collaborators
type ServiceOption func(*Service)

// WithArchive stores every reconciled series before publishing
func WithArchive(a Archive) ServiceOption {
	return func(s *Service) {
		s.archive = a
	}
}

func WithMetrics(c *metrics.Collectors) ServiceOption {
	return func(s *Service) {
		s.metrics = c
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new Service
func NewService(pullers *PullerRegistry, pushers *pusher.Registry, tracker pusher.Tracker, config ServiceConfig, logger *logrus.Logger, opts ...ServiceOption) *Service {
	if config.Schedule == "" {
		config.Schedule = DefaultSchedule
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Service{
		pullers: pullers,
		pushers: pushers,
		tracker: tracker,
		logger:  logger,
		config:  config,
		cron:    cron.New(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	return s
}

// Start schedules the runs and triggers the first one immediately
func (s *Service) Start() error {
	if _, err := s.cron.AddFunc(s.config.Schedule, s.scheduledRun); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.config.Schedule, err)
	}
	s.cron.Start()

	s.initial.Add(1)
	go func() {
		defer s.initial.Done()
		s.scheduledRun()
	}()

	s.logger.WithField("schedule", s.config.Schedule).Info("Puller service started")
	return nil
}

// Stop halts scheduling and waits for a running cycle to finish,
// including the one started by Start
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
	s.initial.Wait()
	s.logger.Info("Puller service stopped")
}

func (s *Service) scheduledRun() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.WithError(err).Error("Run failed")
	}
}

// RunOnce pulls every registered provider, archives and publishes the
// results. Failures of one provider, archive or publisher do not stop
// the others; they are joined into the returned error.
func (s *Service) RunOnce(ctx context.Context) (*RunReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	opts := s.config.Options
	opts.Since = start.Add(-s.config.Timespan)

	report := &RunReport{Published: make(map[string]int)}
	var errs []error

	for _, p := range s.pullers.All() {
		series, err := p.Pull(ctx, opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("pull %s: %w", p.GetProviderType(), err))
			continue
		}

		for _, ds := range series {
			s.metrics.Observations.WithLabelValues(ds.DeviceID).Add(float64(len(ds.Measurements)))
			if latest, ok := ds.Latest(); ok {
				s.metrics.LatestObservation.WithLabelValues(ds.DeviceID).Set(float64(latest.Time().Unix()))
			}

			if s.archive != nil {
				n, err := s.archive.StoreObservations(ctx, ds)
				if err != nil {
					errs = append(errs, fmt.Errorf("archive %s: %w", ds.DeviceID, err))
				}
				report.Archived += n
			}

			for _, pub := range s.pushers.All() {
				name := pub.GetServiceName()
				sent, err := pusher.PublishPending(ctx, pub, s.tracker, ds)
				report.Published[name] += sent
				s.metrics.Published.WithLabelValues(name).Add(float64(sent))
				if err != nil {
					s.metrics.PublishFailures.WithLabelValues(name).Inc()
					errs = append(errs, fmt.Errorf("publish %s to %s: %w", ds.DeviceID, name, err))
				}
			}
		}

		report.Series = append(report.Series, series...)
	}

	s.metrics.RunDuration.Observe(s.now().Sub(start).Seconds())

	err := errors.Join(errs...)
	if err != nil {
		s.metrics.Runs.WithLabelValues("failure").Inc()
	} else {
		s.metrics.Runs.WithLabelValues("success").Inc()
		s.metrics.LastSuccess.Set(float64(start.Unix()))
	}

	s.logger.WithFields(logrus.Fields{
		"devices":   len(report.Series),
		"archived":  report.Archived,
		"published": report.Published,
		"failures":  len(errs),
	}).Info("Run completed")

	return report, err
}
