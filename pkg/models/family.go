package models

import "strings"

// Family identifies a group of fields reported together by one module
// type. The set is closed; anything the vendor reports outside it maps
// to FamilyUnknown.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyPressure
	FamilyRain
	FamilySumRain
	FamilyTemperatureHumidity
	FamilyWind
)

// Wire tags used by the measurement API
const (
	TagPressure            = "Pressure"
	TagRain                = "Rain"
	TagSumRain             = "sum_rain"
	TagTemperatureHumidity = "Temperature,Humidity"
	TagWind                = "WindStrength,WindAngle,GustStrength,GustAngle"

	// tagWindShort is what the topology call reports for wind gauges
	tagWindShort = "Wind"
)

var familyTags = map[string]Family{
	TagPressure:            FamilyPressure,
	TagRain:                FamilyRain,
	TagSumRain:             FamilySumRain,
	TagTemperatureHumidity: FamilyTemperatureHumidity,
	TagWind:                FamilyWind,
}

// ParseFamily maps a wire tag to its family
func ParseFamily(tag string) Family {
	if f, ok := familyTags[tag]; ok {
		return f
	}
	return FamilyUnknown
}

// Tag returns the wire tag for a known family, or "" for FamilyUnknown
func (f Family) Tag() string {
	switch f {
	case FamilyPressure:
		return TagPressure
	case FamilyRain:
		return TagRain
	case FamilySumRain:
		return TagSumRain
	case FamilyTemperatureHumidity:
		return TagTemperatureHumidity
	case FamilyWind:
		return TagWind
	default:
		return ""
	}
}

func (f Family) String() string {
	if t := f.Tag(); t != "" {
		return t
	}
	return "unknown"
}

// ModuleTag builds the measurement tag for a module from the data types
// reported by the topology call.
func ModuleTag(dataTypes []string) string {
	tag := strings.Join(dataTypes, ",")
	if tag == tagWindShort {
		return TagWind
	}
	return tag
}

// NewMeasurement builds a record from one decoded wire entry. values are
// positional in the order of the family's tag; nil entries leave the
// matching field unset. Unknown families yield a timestamp-only record.
func NewMeasurement(family Family, timestamp int64, values []*float64) Measurement {
	m := Measurement{Timestamp: timestamp}

	at := func(i int) *float64 {
		if i < len(values) && values[i] != nil {
			v := *values[i]
			return &v
		}
		return nil
	}

	switch family {
	case FamilyPressure:
		m.Pressure = at(0)
	case FamilyRain:
		m.Rain = at(0)
	case FamilySumRain:
		m.RainAccumulated = at(0)
	case FamilyTemperatureHumidity:
		m.Temperature = at(0)
		m.Humidity = at(1)
	case FamilyWind:
		ws, wa, gs, ga := at(0), at(1), at(2), at(3)
		if ws != nil && wa != nil && gs != nil && ga != nil {
			m.WindStrength, m.WindAngle, m.GustStrength, m.GustAngle = ws, wa, gs, ga
		}
	case FamilyUnknown:
	}

	return m
}
