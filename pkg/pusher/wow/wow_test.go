package wow

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/flappah/netatmo2wow/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// wowServer records readings and rejects the call numbered failAt (1-based)
type wowServer struct {
	mu      sync.Mutex
	queries []url.Values
	failAt  int
}

func (s *wowServer) start(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/automaticreading" || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		s.mu.Lock()
		s.queries = append(s.queries, r.URL.Query())
		n := len(s.queries)
		s.mu.Unlock()

		if n == s.failAt {
			http.Error(w, "Invalid site authentication key", http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPusher_GetServiceName(t *testing.T) {
	p := NewPusher("site", "key")

	if name := p.GetServiceName(); name != "wow" {
		t.Errorf("Expected service name wow, got %s", name)
	}
}

func TestObservationParams(t *testing.T) {
	m := models.Measurement{
		Timestamp:       1700000000000,
		Pressure:        models.Float(1013.25),
		Temperature:     models.Float(20),
		Humidity:        models.Float(55),
		WindStrength:    models.Float(16.09344),
		WindAngle:       models.Float(180),
		GustStrength:    models.Float(32.18688),
		GustAngle:       models.Float(190),
		RainLastHour:    models.Float(25.4),
		RainAccumulated: models.Float(12.7),
	}

	params := observationParams("site-1", "secret", "netatmo2wow", m)

	expected := map[string]string{
		"siteid":                "site-1",
		"siteAuthenticationKey": "secret",
		"dateutc":               "2023-11-14 22:13:20",
		"softwaretype":          "netatmo2wow",
		"baromin":               "29.92",
		"tempf":                 "68.00",
		"humidity":              "55",
		"windspeedmph":          "10.00",
		"winddir":               "180",
		"windgustmph":           "20.00",
		"windgustdir":           "190",
		"rainin":                "1.00",
		"dailyrainin":           "0.50",
	}

	for key, want := range expected {
		if got := params.Get(key); got != want {
			t.Errorf("%s: expected %q, got %q", key, want, got)
		}
	}
}

func TestObservationParams_UnsetFieldsOmitted(t *testing.T) {
	m := models.Measurement{
		Timestamp:   1700000000000,
		Temperature: models.Float(-5),
	}

	params := observationParams("site-1", "secret", "netatmo2wow", m)

	assert.Equal(t, "23.00", params.Get("tempf"))
	for _, key := range []string{"baromin", "humidity", "windspeedmph", "winddir", "rainin", "dailyrainin"} {
		_, ok := params[key]
		assert.False(t, ok, "%s should be omitted", key)
	}
}

func TestObservationParams_PartialWindOmitted(t *testing.T) {
	m := models.Measurement{
		Timestamp:    1700000000000,
		Temperature:  models.Float(12),
		WindStrength: models.Float(10),
		WindAngle:    models.Float(90),
	}

	params := observationParams("site-1", "secret", "netatmo2wow", m)

	assert.Equal(t, "53.60", params.Get("tempf"))
	for _, key := range []string{"windspeedmph", "winddir", "windgustmph", "windgustdir"} {
		_, ok := params[key]
		assert.False(t, ok, "%s should be omitted", key)
	}
}

func TestConversions(t *testing.T) {
	testCases := []struct {
		name     string
		convert  func(float64) float64
		input    float64
		expected float64
	}{
		{"freezing point", celsiusToFahrenheit, 0, 32},
		{"boiling point", celsiusToFahrenheit, 100, 212},
		{"standard pressure", hPaToInHg, 1013.25, 29.92},
		{"one mile per hour", kmhToMph, 1.609344, 1},
		{"one inch of rain", mmToInch, 25.4, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expected, tc.convert(tc.input), 0.01)
		})
	}
}

func TestPusher_Publish(t *testing.T) {
	ws := &wowServer{}
	srv := ws.start(t)

	p := NewPusher("site-1", "secret", WithBaseURL(srv.URL), WithSoftwareType("test"), WithLogger(quietLogger()))

	readings := []models.Measurement{
		{Timestamp: 1700000000000, Temperature: models.Float(10)},
		{Timestamp: 1700000300000, Temperature: models.Float(11)},
	}

	sent, err := p.Publish(context.Background(), "70:ee:50:00:00:01", readings)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	require.Len(t, ws.queries, 2)
	assert.Equal(t, "2023-11-14 22:13:20", ws.queries[0].Get("dateutc"))
	assert.Equal(t, "2023-11-14 22:18:20", ws.queries[1].Get("dateutc"))
	assert.Equal(t, "test", ws.queries[1].Get("softwaretype"))
}

func TestPusher_Publish_StopsAtRejection(t *testing.T) {
	ws := &wowServer{failAt: 2}
	srv := ws.start(t)

	p := NewPusher("site-1", "wrong", WithBaseURL(srv.URL), WithLogger(quietLogger()))

	readings := []models.Measurement{
		{Timestamp: 1700000000000},
		{Timestamp: 1700000300000},
		{Timestamp: 1700000600000},
	}

	sent, err := p.Publish(context.Background(), "70:ee:50:00:00:01", readings)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Equal(t, 1, sent)
	assert.Len(t, ws.queries, 2, "no request after the rejected one")
}

func TestPusher_Publish_Empty(t *testing.T) {
	p := NewPusher("site-1", "secret", WithBaseURL("http://127.0.0.1:1"), WithLogger(quietLogger()))

	sent, err := p.Publish(context.Background(), "d", nil)
	require.NoError(t, err)
	assert.Zero(t, sent)
}
