package wow

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flappah/netatmo2wow/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultBaseURL is the Met Office Weather Observations Website
	DefaultBaseURL      = "https://wow.metoffice.gov.uk"
	DefaultSoftwareType = "netatmo2wow"

	readingPath = "/automaticreading"
)

// Pusher uploads observations to WOW, one request per reading
type Pusher struct {
	siteID       string
	authKey      string
	baseURL      string
	softwareType string
	httpClient   *http.Client
	logger       *logrus.Logger
}

// Option configures a Pusher
type Option func(*Pusher)

func WithBaseURL(baseURL string) Option {
	return func(p *Pusher) {
		if baseURL != "" {
			p.baseURL = baseURL
		}
	}
}

func WithSoftwareType(softwareType string) Option {
	return func(p *Pusher) {
		if softwareType != "" {
			p.softwareType = softwareType
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(p *Pusher) {
		p.httpClient = c
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(p *Pusher) {
		p.logger = logger
	}
}

// NewPusher creates a WOW pusher for one site
func NewPusher(siteID, authKey string, opts ...Option) *Pusher {
	p := &Pusher{
		siteID:       siteID,
		authKey:      authKey,
		baseURL:      DefaultBaseURL,
		softwareType: DefaultSoftwareType,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetServiceName returns the service identifier
func (p *Pusher) GetServiceName() string {
	return "wow"
}

// Publish sends readings in order and stops at the first rejected one
func (p *Pusher) Publish(ctx context.Context, deviceID string, measurements []models.Measurement) (int, error) {
	for i, m := range measurements {
		if err := p.send(ctx, m); err != nil {
			p.logger.WithFields(logrus.Fields{
				"device_id": deviceID,
				"publisher": p.GetServiceName(),
				"timestamp": m.Time().UTC(),
				"error":     err,
			}).Warn("Publishing stopped")
			return i, err
		}
	}

	p.logger.WithFields(logrus.Fields{
		"device_id": deviceID,
		"publisher": p.GetServiceName(),
		"records":   len(measurements),
	}).Info("Published observations")

	return len(measurements), nil
}

func (p *Pusher) send(ctx context.Context, m models.Measurement) error {
	params := observationParams(p.siteID, p.authKey, p.softwareType, m)
	reqURL := p.baseURL + readingPath + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send reading: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("WOW returned status %d: %s", resp.StatusCode, string(body))
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
