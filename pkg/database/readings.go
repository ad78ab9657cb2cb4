package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/manslikestiffler/smart-granary/pkg/models"
)

const readingColumns = `id, timestamp, temperature, humidity, moisture, pest_activity, co2, airflow, location`

// SaveReadings stores readings in one transaction. Readings already stored
// (same id and location) are left unchanged; malformed readings are skipped.
func (dm *DatabaseManager) SaveReadings(ctx context.Context, readings []models.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	if err := dm.healthChecker.EnsureConnection(ctx); err != nil {
		return err
	}

	tx, err := dm.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO readings (`+readingColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id, location) DO NOTHING
    `)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range readings {
		if !r.IsValid() {
			continue
		}
		_, err := stmt.ExecContext(ctx,
			r.ID, r.Timestamp.UTC(),
			nullable(r.Temperature), nullable(r.Humidity), nullable(r.Moisture),
			nullable(r.PestActivity), nullable(r.CO2), nullable(r.Airflow),
			r.Location,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert reading %d: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit readings: %w", err)
	}
	return nil
}

// LoadReadings returns every reading stored after since, oldest first
func (dm *DatabaseManager) LoadReadings(ctx context.Context, since time.Time) ([]models.Reading, error) {
	query := `SELECT ` + readingColumns + ` FROM readings WHERE timestamp > $1 ORDER BY timestamp ASC`

	rows, err := dm.QueryWithHealthCheck(ctx, query, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanReadings(rows)
}

// GetReadings retrieves a page of stored readings
func (dm *DatabaseManager) GetReadings(ctx context.Context, params models.ReadingQueryParams) (*models.ReadingsResponse, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	whereClause := ""
	args := []interface{}{}
	argCount := 1

	if params.Location != "" {
		whereClause += fmt.Sprintf(" AND location = $%d", argCount)
		args = append(args, params.Location)
		argCount++
	}

	if params.StartTime != "" {
		whereClause += fmt.Sprintf(" AND timestamp >= $%d", argCount)
		args = append(args, params.StartTime)
		argCount++
	}

	if params.EndTime != "" {
		whereClause += fmt.Sprintf(" AND timestamp <= $%d", argCount)
		args = append(args, params.EndTime)
		argCount++
	}

	var totalCount int
	countQuery := `SELECT COUNT(*) FROM readings WHERE 1=1` + whereClause
	if err := dm.QueryRowWithHealthCheck(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	query := `SELECT ` + readingColumns + ` FROM readings WHERE 1=1` + whereClause
	query += fmt.Sprintf(" ORDER BY timestamp %s", strings.ToUpper(params.Order))

	offset := (params.Page - 1) * params.Limit
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
	queryArgs := append(args, params.Limit, offset)

	rows, err := dm.QueryWithHealthCheck(ctx, query, queryArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readings, err := scanReadings(rows)
	if err != nil {
		return nil, err
	}

	totalPages := (totalCount + params.Limit - 1) / params.Limit
	if totalPages == 0 {
		totalPages = 1
	}

	return &models.ReadingsResponse{
		Data:       readings,
		Total:      totalCount,
		Page:       params.Page,
		Limit:      params.Limit,
		TotalPages: totalPages,
		HasMore:    params.Page < totalPages,
	}, nil
}

// DeleteReadingsBefore removes readings older than cutoff and returns how many were deleted
func (dm *DatabaseManager) DeleteReadingsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := dm.ExecWithHealthCheck(ctx, `DELETE FROM readings WHERE timestamp < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete readings: %w", err)
	}
	return result.RowsAffected()
}

func scanReadings(rows *sql.Rows) ([]models.Reading, error) {
	readings := []models.Reading{}
	for rows.Next() {
		var r models.Reading
		var temperature, humidity, moisture, pest, co2, airflow sql.NullFloat64

		err := rows.Scan(&r.ID, &r.Timestamp, &temperature, &humidity, &moisture, &pest, &co2, &airflow, &r.Location)
		if err != nil {
			log.Printf("Failed to scan reading: %v", err)
			continue
		}

		r.Timestamp = r.Timestamp.UTC()
		r.Temperature = fromNullable(temperature)
		r.Humidity = fromNullable(humidity)
		r.Moisture = fromNullable(moisture)
		r.PestActivity = fromNullable(pest)
		r.CO2 = fromNullable(co2)
		r.Airflow = fromNullable(airflow)
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

func nullable(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func fromNullable(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	return models.Float(n.Float64)
}
