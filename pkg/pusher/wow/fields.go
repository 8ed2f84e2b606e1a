package wow

import (
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/flappah/netatmo2wow/pkg/models"
)

const dateLayout = "2006-01-02 15:04:05"

const (
	hPaPerInHg = 33.8639
	kmhPerMph  = 1.609344
	mmPerInch  = 25.4
)

func celsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

func hPaToInHg(p float64) float64 {
	return p / hPaPerInHg
}

func kmhToMph(v float64) float64 {
	return v / kmhPerMph
}

func mmToInch(v float64) float64 {
	return v / mmPerInch
}

// field maps one measurement value onto a WOW query parameter
type field struct {
	param   string
	value   func(m models.Measurement) *float64
	convert func(float64) float64
	integer bool
	// wind values are only sent as a complete set
	wind bool
}

var fields = []field{
	{param: "baromin", value: func(m models.Measurement) *float64 { return m.Pressure }, convert: hPaToInHg},
	{param: "tempf", value: func(m models.Measurement) *float64 { return m.Temperature }, convert: celsiusToFahrenheit},
	{param: "humidity", value: func(m models.Measurement) *float64 { return m.Humidity }, integer: true},
	{param: "windspeedmph", value: func(m models.Measurement) *float64 { return m.WindStrength }, convert: kmhToMph, wind: true},
	{param: "winddir", value: func(m models.Measurement) *float64 { return m.WindAngle }, integer: true, wind: true},
	{param: "windgustmph", value: func(m models.Measurement) *float64 { return m.GustStrength }, convert: kmhToMph, wind: true},
	{param: "windgustdir", value: func(m models.Measurement) *float64 { return m.GustAngle }, integer: true, wind: true},
	{param: "rainin", value: func(m models.Measurement) *float64 { return m.RainLastHour }, convert: mmToInch},
	{param: "dailyrainin", value: func(m models.Measurement) *float64 { return m.RainAccumulated }, convert: mmToInch},
}

// observationParams builds the query for one reading. Unset fields are
// left out, and so is a partial wind set.
func observationParams(siteID, authKey, softwareType string, m models.Measurement) url.Values {
	params := url.Values{}
	params.Set("siteid", siteID)
	params.Set("siteAuthenticationKey", authKey)
	params.Set("dateutc", time.UnixMilli(m.Timestamp).UTC().Format(dateLayout))
	params.Set("softwaretype", softwareType)

	hasWind := m.HasWind()
	for _, f := range fields {
		if f.wind && !hasWind {
			continue
		}
		v := f.value(m)
		if v == nil {
			continue
		}
		val := *v
		if f.convert != nil {
			val = f.convert(val)
		}
		if f.integer {
			params.Set(f.param, strconv.Itoa(int(math.Round(val))))
		} else {
			params.Set(f.param, strconv.FormatFloat(val, 'f', 2, 64))
		}
	}

	return params
}
