package reconcile

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/flappah/netatmo2wow/pkg/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultScale is the sampling scale requested for every stream
const DefaultScale = "max"

// MeasureQuery describes one stream fetch
type MeasureQuery struct {
	DeviceID string
	// ModuleID is empty for the device's own sensors
	ModuleID string
	Tag      string
	Scale    string
	Begin    time.Time
	// Last asks only for the most recent value
	Last bool
}

// Source provides topology and decoded measurement streams
type Source interface {
	Devices(ctx context.Context) ([]models.Device, error)
	Measures(ctx context.Context, q MeasureQuery) ([]models.Measurement, error)
}

// Options carries everything a run depends on
type Options struct {
	Since       time.Time
	Tolerance   time.Duration
	Mode        MergeMode
	Scale       string
	Parallelism int
}

func (o Options) withDefaults() Options {
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.Scale == "" {
		o.Scale = DefaultScale
	}
	if o.Parallelism < 1 {
		o.Parallelism = 1
	}
	return o
}

// Pipeline turns the per-module streams of each device into one
// reconciled series. It keeps no state between runs.
type Pipeline struct {
	source Source
	logger *logrus.Logger
}

// NewPipeline creates a pipeline over source. A nil logger discards output.
func NewPipeline(source Source, logger *logrus.Logger) *Pipeline {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Pipeline{source: source, logger: logger}
}

// Run reconciles every device the source reports. Devices are
// independent and may be processed concurrently; the result keeps the
// topology order.
func (p *Pipeline) Run(ctx context.Context, opts Options) ([]models.DeviceSeries, error) {
	opts = opts.withDefaults()

	devices, err := p.source.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load devices: %w", err)
	}

	results := make([]models.DeviceSeries, len(devices))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallelism)

	for i, device := range devices {
		g.Go(func() error {
			series, err := p.ReconcileDevice(gctx, device, opts)
			if err != nil {
				return err
			}
			results[i] = series
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// ReconcileDevice builds the series of a single device. Modules are
// folded one after another since each fold depends on the previous one.
func (p *Pipeline) ReconcileDevice(ctx context.Context, device models.Device, opts Options) (models.DeviceSeries, error) {
	opts = opts.withDefaults()
	log := p.logger.WithField("device_id", device.ID)

	series, err := p.source.Measures(ctx, MeasureQuery{
		DeviceID: device.ID,
		Tag:      models.TagPressure,
		Scale:    opts.Scale,
		Begin:    opts.Since,
	})
	if err != nil {
		return models.DeviceSeries{}, fmt.Errorf("failed to fetch %s for device %s: %w", models.TagPressure, device.ID, err)
	}
	log.WithField("records", len(series)).Debug("Loaded baseline")

	var accumulatedRain *float64

	for _, module := range device.Modules {
		mlog := log.WithFields(logrus.Fields{"module_id": module.ID, "family": module.Family().String()})

		if module.Family() == models.FamilyRain {
			accum, err := p.source.Measures(ctx, MeasureQuery{
				DeviceID: device.ID,
				ModuleID: module.ID,
				Tag:      models.TagSumRain,
				Scale:    "1day",
				Begin:    opts.Since,
				Last:     true,
			})
			if err != nil {
				return models.DeviceSeries{}, fmt.Errorf("failed to fetch %s for module %s: %w", models.TagSumRain, module.ID, err)
			}
			accumulatedRain = models.Float(0)
			if len(accum) > 0 && accum[0].RainAccumulated != nil {
				accumulatedRain = models.Float(*accum[0].RainAccumulated)
			}
		}

		incoming, err := p.source.Measures(ctx, MeasureQuery{
			DeviceID: device.ID,
			ModuleID: module.ID,
			Tag:      module.Tag,
			Scale:    opts.Scale,
			Begin:    opts.Since,
		})
		if err != nil {
			return models.DeviceSeries{}, fmt.Errorf("failed to fetch %s for module %s: %w", module.Tag, module.ID, err)
		}

		before := len(series)
		series = MergeSeries(series, incoming, opts.Tolerance, opts.Mode)
		mlog.WithFields(logrus.Fields{
			"incoming": len(incoming),
			"before":   before,
			"records":  len(series),
		}).Debug("Folded module stream")
	}

	models.SortByTimestamp(series)
	AnnotateRainLastHour(series)

	if len(series) > 0 && accumulatedRain != nil {
		series[len(series)-1].RainAccumulated = accumulatedRain
	}

	log.WithField("records", len(series)).Info("Reconciled device series")

	return models.DeviceSeries{
		DeviceID:     device.ID,
		StationName:  device.StationName,
		Measurements: series,
	}, nil
}
