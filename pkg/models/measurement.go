package models

import (
	"sort"
	"time"
)

// Measurement is one composite observation of a device at a single
// sampling instant. Every measurement field is optional; a nil pointer
// means the value was never reported for this timestamp.
type Measurement struct {
	// Timestamp in milliseconds since the Unix epoch. It identifies the
	// record within a series.
	Timestamp int64 `json:"timestamp" yaml:"timestamp"`

	Pressure    *float64 `json:"pressure,omitempty" yaml:"pressure,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty" yaml:"humidity,omitempty"`

	WindStrength *float64 `json:"wind_strength,omitempty" yaml:"wind_strength,omitempty"`
	WindAngle    *float64 `json:"wind_angle,omitempty" yaml:"wind_angle,omitempty"`
	GustStrength *float64 `json:"gust_strength,omitempty" yaml:"gust_strength,omitempty"`
	GustAngle    *float64 `json:"gust_angle,omitempty" yaml:"gust_angle,omitempty"`

	Rain            *float64 `json:"rain,omitempty" yaml:"rain,omitempty"`
	RainAccumulated *float64 `json:"rain_accumulated,omitempty" yaml:"rain_accumulated,omitempty"`
	RainLastHour    *float64 `json:"rain_last_hour,omitempty" yaml:"rain_last_hour,omitempty"`
}

// Time returns the timestamp as a UTC time.Time
func (m Measurement) Time() time.Time {
	return time.UnixMilli(m.Timestamp).UTC()
}

// Merge folds an older record into m. Fields already set on m win;
// unset fields are taken from older.
func (m *Measurement) Merge(older Measurement) {
	mergeField(&m.Pressure, older.Pressure)
	mergeField(&m.Temperature, older.Temperature)
	mergeField(&m.Humidity, older.Humidity)
	mergeField(&m.WindStrength, older.WindStrength)
	mergeField(&m.WindAngle, older.WindAngle)
	mergeField(&m.GustStrength, older.GustStrength)
	mergeField(&m.GustAngle, older.GustAngle)
	mergeField(&m.Rain, older.Rain)
	mergeField(&m.RainAccumulated, older.RainAccumulated)
	mergeField(&m.RainLastHour, older.RainLastHour)
}

// Merged returns the combination of existing and incoming without
// touching either argument.
func Merged(existing, incoming Measurement) Measurement {
	incoming.Merge(existing)
	return incoming
}

func mergeField(dst **float64, older *float64) {
	if *dst == nil && older != nil {
		v := *older
		*dst = &v
	}
}

// HasWind reports whether the wind family is populated
func (m Measurement) HasWind() bool {
	return m.WindStrength != nil && m.WindAngle != nil && m.GustStrength != nil && m.GustAngle != nil
}

// SortByTimestamp orders a series ascending by timestamp. The sort is
// stable so records sharing a timestamp keep their relative order.
func SortByTimestamp(series []Measurement) {
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Timestamp < series[j].Timestamp
	})
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}
