package netatmo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/flappah/netatmo2wow/pkg/models"
)

type StationDataModule struct {
	ID             string   `json:"_id"`
	Type           string   `json:"type"`
	ModuleName     string   `json:"module_name"`
	DataType       []string `json:"data_type"`
	Reachable      bool     `json:"reachable"`
	Firmware       int      `json:"firmware"`
	LastMessage    int64    `json:"last_message"`
	LastSeen       int64    `json:"last_seen"`
	RFStatus       int      `json:"rf_status"`
	BatteryPercent int      `json:"battery_percent"`
}

type StationDataDevice struct {
	ID          string   `json:"_id"`
	Type        string   `json:"type"`
	ModuleName  string   `json:"module_name"`
	StationName string   `json:"station_name"`
	Firmware    int      `json:"firmware"`
	WifiStatus  int      `json:"wifi_status"`
	Reachable   bool     `json:"reachable"`
	DataType    []string `json:"data_type"`
	HomeID      string   `json:"home_id"`
	HomeName    string   `json:"home_name"`
	Place       struct {
		Timezone string    `json:"timezone"`
		Country  string    `json:"country"`
		Altitude int       `json:"altitude"`
		Location []float64 `json:"location"`
	} `json:"place"`
	Modules []StationDataModule `json:"modules"`
}

// StationDataResponse represents the Netatmo API response structure
type StationDataResponse struct {
	Body struct {
		Devices []StationDataDevice `json:"devices"`
	} `json:"body"`
	Status     string  `json:"status"`
	TimeExec   float64 `json:"time_exec"`
	TimeServer int64   `json:"time_server"`
}

// GetStationsData retrieves the station topology from Netatmo API. An
// empty deviceID returns every station the user can read.
func (c *Client) GetStationsData(ctx context.Context, deviceID string) (*StationDataResponse, error) {
	q := url.Values{}
	if deviceID != "" {
		q.Set("device_id", deviceID)
	}

	body, err := c.apiPost(ctx, "/api/getstationsdata", q)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch station data: %w", err)
	}

	var netatmoResp StationDataResponse
	if err := json.Unmarshal(body, &netatmoResp); err != nil {
		return nil, fmt.Errorf("failed to parse Netatmo response: %w", err)
	}

	return &netatmoResp, nil
}

// Devices converts the response into device topology. Modules without
// data types carry nothing to fetch and are skipped.
func (r *StationDataResponse) Devices() []models.Device {
	devices := make([]models.Device, 0, len(r.Body.Devices))

	for _, d := range r.Body.Devices {
		device := models.Device{
			ID:          d.ID,
			StationName: d.StationName,
			ModuleName:  d.ModuleName,
		}

		for _, m := range d.Modules {
			if len(m.DataType) == 0 {
				continue
			}
			device.Modules = append(device.Modules, models.Module{
				ID:         m.ID,
				ModuleName: m.ModuleName,
				Type:       m.Type,
				Tag:        models.ModuleTag(m.DataType),
			})
		}

		devices = append(devices, device)
	}

	return devices
}
