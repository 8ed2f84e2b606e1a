package netatmo

import (
	"context"
	"errors"
	"fmt"

	"github.com/flappah/netatmo2wow/pkg/models"
	"github.com/flappah/netatmo2wow/pkg/reconcile"
	"github.com/sirupsen/logrus"
)

// ErrNoDevices is returned when the account exposes no station
var ErrNoDevices = errors.New("no devices found in Netatmo response")

// Puller implements the Netatmo weather data puller. It is the pipeline
// source for topology and measurement streams.
type Puller struct {
	client   *Client
	deviceID string
	logger   *logrus.Logger
}

// NewPuller creates a puller. An empty deviceID reconciles every station
// of the account.
func NewPuller(client *Client, deviceID string, logger *logrus.Logger) *Puller {
	return &Puller{
		client:   client,
		deviceID: deviceID,
		logger:   logger,
	}
}

func (p *Puller) GetProviderType() string {
	return "netatmo"
}

// Devices returns the station topology
func (p *Puller) Devices(ctx context.Context) ([]models.Device, error) {
	resp, err := p.client.GetStationsData(ctx, p.deviceID)
	if err != nil {
		return nil, err
	}

	devices := resp.Devices()
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}

	for _, d := range devices {
		p.logger.WithFields(logrus.Fields{
			"device_id": d.ID,
			"station":   d.StationName,
			"modules":   len(d.Modules),
		}).Debug("Discovered device")
	}

	return devices, nil
}

// Measures fetches one decoded stream
func (p *Puller) Measures(ctx context.Context, q reconcile.MeasureQuery) ([]models.Measurement, error) {
	measures, err := p.client.GetMeasure(ctx, q)
	if err != nil {
		return nil, err
	}

	if len(measures) == 0 {
		p.logger.WithFields(logrus.Fields{
			"device_id": q.DeviceID,
			"module_id": q.ModuleID,
			"type":      q.Tag,
		}).Info("No data found")
	}

	return measures, nil
}

// Pull reconciles the streams of every device into one series each
func (p *Puller) Pull(ctx context.Context, opts reconcile.Options) ([]models.DeviceSeries, error) {
	series, err := reconcile.NewPipeline(p, p.logger).Run(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("netatmo pull failed: %w", err)
	}
	return series, nil
}
