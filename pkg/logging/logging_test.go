package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithOutput("debug", "json", &buf)
	require.NoError(t, err)

	logger.WithField("device_id", "70:ee:50:00:00:01").Debug("Reconciled device series")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Reconciled device series", entry["msg"])
	assert.Equal(t, "70:ee:50:00:00:01", entry["device_id"])
	assert.Equal(t, "debug", entry["level"])
}

func TestNewWithOutput_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithOutput("warn", "text", &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	assert.Empty(t, buf.String())
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
}

func TestNew_Invalid(t *testing.T) {
	testCases := []struct {
		name   string
		level  string
		format string
	}{
		{"bad level", "loud", "text"},
		{"bad format", "info", "xml"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.level, tc.format)
			assert.Error(t, err)
		})
	}
}
