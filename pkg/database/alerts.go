package database

import (
	"context"
	"fmt"
	"log"

	"github.com/manslikestiffler/smart-granary/pkg/models"
)

// SaveAlerts appends alerts to the alert log
func (dm *DatabaseManager) SaveAlerts(ctx context.Context, alerts []models.Alert) error {
	for _, a := range alerts {
		_, err := dm.ExecWithHealthCheck(ctx, `
            INSERT INTO alerts (id, type, sensor_type, value, timestamp, message)
            VALUES ($1, $2, $3, $4, $5, $6)
            ON CONFLICT (id) DO NOTHING
        `, a.ID, string(a.Type), a.SensorType, a.Value, a.Timestamp.UTC(), a.Message)
		if err != nil {
			return fmt.Errorf("failed to insert alert %s: %w", a.ID, err)
		}
	}
	return nil
}

// GetAlerts returns the most recent alerts, newest first. A limit <= 0 returns all.
func (dm *DatabaseManager) GetAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	query := `SELECT id, type, sensor_type, value, timestamp, message FROM alerts ORDER BY timestamp DESC, id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := dm.QueryWithHealthCheck(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		var a models.Alert
		var alertType string
		if err := rows.Scan(&a.ID, &alertType, &a.SensorType, &a.Value, &a.Timestamp, &a.Message); err != nil {
			log.Printf("Failed to scan alert: %v", err)
			continue
		}
		a.Type = models.AlertType(alertType)
		a.Timestamp = a.Timestamp.UTC()
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
