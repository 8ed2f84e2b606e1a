package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/flappah/netatmo2wow/pkg/models"
	"github.com/google/uuid"
)

const observationColumns = `timestamp_ms, pressure, temperature, humidity,
            wind_strength, wind_angle, gust_strength, gust_angle,
            rain, rain_accumulated, rain_last_hour`

// StoreObservations upserts a reconciled series keyed by device and
// timestamp. Re-running a window overwrites earlier values; a field the
// rerun leaves unset keeps its stored value.
func (dm *DatabaseManager) StoreObservations(ctx context.Context, series models.DeviceSeries) (int, error) {
	if len(series.Measurements) == 0 {
		return 0, nil
	}
	if err := dm.healthChecker.EnsureConnection(ctx); err != nil {
		return 0, err
	}

	tx, err := dm.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO observations (
            id, device_id, date_utc, `+observationColumns+`
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
        ON CONFLICT (device_id, timestamp_ms) DO UPDATE
        SET pressure = COALESCE(EXCLUDED.pressure, observations.pressure),
            temperature = COALESCE(EXCLUDED.temperature, observations.temperature),
            humidity = COALESCE(EXCLUDED.humidity, observations.humidity),
            wind_strength = COALESCE(EXCLUDED.wind_strength, observations.wind_strength),
            wind_angle = COALESCE(EXCLUDED.wind_angle, observations.wind_angle),
            gust_strength = COALESCE(EXCLUDED.gust_strength, observations.gust_strength),
            gust_angle = COALESCE(EXCLUDED.gust_angle, observations.gust_angle),
            rain = COALESCE(EXCLUDED.rain, observations.rain),
            rain_accumulated = COALESCE(EXCLUDED.rain_accumulated, observations.rain_accumulated),
            rain_last_hour = COALESCE(EXCLUDED.rain_last_hour, observations.rain_last_hour),
            updated_at = CURRENT_TIMESTAMP
    `)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, m := range series.Measurements {
		_, err := stmt.ExecContext(ctx,
			uuid.New(),
			series.DeviceID,
			m.Time().UTC(),
			m.Timestamp,
			m.Pressure,
			m.Temperature,
			m.Humidity,
			m.WindStrength,
			m.WindAngle,
			m.GustStrength,
			m.GustAngle,
			m.Rain,
			m.RainAccumulated,
			m.RainLastHour,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to store observation %d: %w", m.Timestamp, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit observations: %w", err)
	}

	return len(series.Measurements), nil
}

// GetObservations retrieves archived observations of one device
func (dm *DatabaseManager) GetObservations(ctx context.Context, params models.ObservationQueryParams) (*models.ObservationsResponse, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	whereClause := " AND device_id = $1"
	args := []interface{}{params.DeviceID}
	argCount := 2

	if params.StartTime != nil {
		whereClause += fmt.Sprintf(" AND timestamp_ms >= $%d", argCount)
		args = append(args, params.StartTime.UnixMilli())
		argCount++
	}

	if params.EndTime != nil {
		whereClause += fmt.Sprintf(" AND timestamp_ms <= $%d", argCount)
		args = append(args, params.EndTime.UnixMilli())
		argCount++
	}

	countRow, err := dm.QueryRowWithHealthCheck(ctx, "SELECT COUNT(*) FROM observations WHERE 1=1"+whereClause, args...)
	if err != nil {
		return nil, err
	}
	var total int
	if err := countRow.Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	query := "SELECT " + observationColumns + " FROM observations WHERE 1=1" + whereClause
	query += fmt.Sprintf(" ORDER BY timestamp_ms %s LIMIT $%d", strings.ToUpper(params.Order), argCount)
	args = append(args, params.Limit)

	rows, err := dm.QueryWithHealthCheck(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	data := []models.Measurement{}
	for rows.Next() {
		var m models.Measurement
		if err := rows.Scan(
			&m.Timestamp,
			&m.Pressure,
			&m.Temperature,
			&m.Humidity,
			&m.WindStrength,
			&m.WindAngle,
			&m.GustStrength,
			&m.GustAngle,
			&m.Rain,
			&m.RainAccumulated,
			&m.RainLastHour,
		); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		data = append(data, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &models.ObservationsResponse{
		DeviceID: params.DeviceID,
		Data:     data,
		Total:    total,
		Limit:    params.Limit,
	}, nil
}
