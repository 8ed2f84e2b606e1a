package netatmo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/flappah/netatmo2wow/pkg/models"
	"github.com/flappah/netatmo2wow/pkg/reconcile"
)

// measureResponse is the getmeasure payload with optimize=false. Body is
// an object keyed by epoch seconds when data exists and an empty array
// otherwise, so it is decoded lazily.
type measureResponse struct {
	Body   json.RawMessage `json:"body"`
	Status string          `json:"status"`
}

// GetMeasure fetches one measurement stream and decodes it into records
// of the query's family, ordered by timestamp
func (c *Client) GetMeasure(ctx context.Context, q reconcile.MeasureQuery) ([]models.Measurement, error) {
	params := url.Values{}
	params.Set("device_id", q.DeviceID)
	if q.ModuleID != "" {
		params.Set("module_id", q.ModuleID)
	}
	params.Set("type", q.Tag)
	params.Set("scale", q.Scale)
	params.Set("date_begin", strconv.FormatInt(q.Begin.Unix(), 10))
	if q.Last {
		params.Set("date_end", "last")
	}
	params.Set("optimize", "false")

	body, err := c.apiPost(ctx, "/api/getmeasure", params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch measures: %w", err)
	}

	var resp measureResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse measure response: %w", err)
	}

	return decodeMeasureBody(resp.Body, models.ParseFamily(q.Tag))
}

func decodeMeasureBody(raw json.RawMessage, family models.Family) ([]models.Measurement, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return []models.Measurement{}, nil
	}

	var entries map[string][]*float64
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse measure body: %w", err)
	}

	measurements := make([]models.Measurement, 0, len(entries))
	for key, values := range entries {
		seconds, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid measure timestamp %q: %w", key, err)
		}
		measurements = append(measurements, models.NewMeasurement(family, seconds*1000, values))
	}

	sort.Slice(measurements, func(i, j int) bool {
		return measurements[i].Timestamp < measurements[j].Timestamp
	})

	return measurements, nil
}
