package models

import (
	"fmt"
	"time"
)

// ObservationQueryParams holds the filters for reading archived
// observations of one device
type ObservationQueryParams struct {
	DeviceID  string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Order     string
}

// Validate checks if the query parameters are valid
func (p *ObservationQueryParams) Validate() error {
	if p.DeviceID == "" {
		return fmt.Errorf("device id is required")
	}

	if p.Limit < 1 || p.Limit > 10000 {
		return fmt.Errorf("limit must be between 1 and 10000")
	}

	if p.Order != "asc" && p.Order != "desc" {
		return fmt.Errorf("invalid order: %s (valid: asc, desc)", p.Order)
	}

	if p.StartTime != nil && p.EndTime != nil && p.StartTime.After(*p.EndTime) {
		return fmt.Errorf("start time must not be after end time")
	}

	return nil
}

// ObservationsResponse is the API envelope for archived observations
type ObservationsResponse struct {
	DeviceID string        `json:"device_id"`
	Data     []Measurement `json:"data"`
	Total    int           `json:"total"`
	Limit    int           `json:"limit"`
}
