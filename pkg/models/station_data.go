package models

// Device is a primary weather station unit. Its own stream is the
// pressure baseline every module gets folded into.
type Device struct {
	ID          string   `json:"id" yaml:"id"`
	StationName string   `json:"station_name" yaml:"station_name"`
	ModuleName  string   `json:"module_name" yaml:"module_name"`
	Modules     []Module `json:"modules" yaml:"modules"`
}

// Module is an auxiliary sensor attached to a device
type Module struct {
	ID         string `json:"id" yaml:"id"`
	ModuleName string `json:"module_name" yaml:"module_name"`
	Type       string `json:"type" yaml:"type"`

	// Tag is the measurement type sent to the vendor for this module,
	// e.g. "Temperature,Humidity". It may name a combination outside the
	// known families.
	Tag string `json:"tag" yaml:"tag"`
}

// Family returns the measurement family of the module's tag
func (m Module) Family() Family {
	return ParseFamily(m.Tag)
}

// DeviceSeries is the reconciled, time-ordered output for one device
type DeviceSeries struct {
	DeviceID     string        `json:"device_id" yaml:"device_id"`
	StationName  string        `json:"station_name,omitempty" yaml:"station_name,omitempty"`
	Measurements []Measurement `json:"measurements" yaml:"measurements"`
}

// Latest returns the most recent record of the series
func (ds DeviceSeries) Latest() (Measurement, bool) {
	if len(ds.Measurements) == 0 {
		return Measurement{}, false
	}
	return ds.Measurements[len(ds.Measurements)-1], true
}
