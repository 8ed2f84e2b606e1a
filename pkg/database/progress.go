package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ProgressTracker persists publish progress so restarts do not resend
type ProgressTracker struct {
	dm *DatabaseManager
}

func NewProgressTracker(dm *DatabaseManager) *ProgressTracker {
	return &ProgressTracker{dm: dm}
}

// Last returns the newest published timestamp, 0 when nothing was published
func (t *ProgressTracker) Last(ctx context.Context, deviceID, serviceName string) (int64, error) {
	row, err := t.dm.QueryRowWithHealthCheck(ctx, `
        SELECT last_timestamp_ms
        FROM publish_progress
        WHERE device_id = $1 AND service_name = $2
    `, deviceID, serviceName)
	if err != nil {
		return 0, err
	}

	var last int64
	if err := row.Scan(&last); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load progress: %w", err)
	}
	return last, nil
}

// Mark advances the progress; an older timestamp never moves it back
func (t *ProgressTracker) Mark(ctx context.Context, deviceID, serviceName string, timestamp int64) error {
	_, err := t.dm.ExecWithHealthCheck(ctx, `
        INSERT INTO publish_progress (device_id, service_name, last_timestamp_ms)
        VALUES ($1, $2, $3)
        ON CONFLICT (device_id, service_name) DO UPDATE
        SET last_timestamp_ms = GREATEST(publish_progress.last_timestamp_ms, EXCLUDED.last_timestamp_ms),
            updated_at = CURRENT_TIMESTAMP
    `, deviceID, serviceName, timestamp)
	if err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}
