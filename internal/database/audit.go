package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"prenota/internal/models"
)

// AuditTableNames are the tables included in spreadsheet exports.
var AuditTableNames = []string{
	"services",
	"schedule_versions",
	"weekly_days",
	"slot_policies",
	"availability_exceptions",
	"schedule_audit_log",
}

// AppendAudit stores an audit entry, assigning an event id when missing.
func (db *DB) AppendAudit(ctx context.Context, e *models.AuditEntry) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	var payload interface{}
	if len(e.Payload) > 0 {
		payload = string(e.Payload)
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO schedule_audit_log (event_id, entity_type, entity_id, service_id, action, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.EventID, string(e.EntityType), e.EntityID, e.ServiceID, string(e.Action), payload, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	e.ID, err = res.LastInsertId()
	return err
}

// ListAudit returns the newest entries for a service, at most limit of them.
func (db *DB) ListAudit(ctx context.Context, serviceID int64, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, event_id, entity_type, entity_id, service_id, action, payload, created_at
		FROM schedule_audit_log
		WHERE service_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, serviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var (
			e              models.AuditEntry
			entity, action string
			payload        sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.EventID, &entity, &e.EntityID, &e.ServiceID, &action, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.EntityType = models.AuditEntity(entity)
		e.Action = models.AuditAction(action)
		if payload.Valid {
			e.Payload = []byte(payload.String)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetTableNames returns list of table names to export.
func (db *DB) GetTableNames(ctx context.Context) ([]string, error) {
	return AuditTableNames, nil
}

// GetTableData returns all rows from a table as maps.
func (db *DB) GetTableData(ctx context.Context, tableName string) (result []map[string]interface{}, columns []string, err error) {
	validTable := false
	for _, t := range AuditTableNames {
		if t == tableName {
			validTable = true
			break
		}
	}
	if !validTable {
		return nil, nil, fmt.Errorf("invalid table name: %s", tableName)
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return nil, nil, err
	}
	for rows.Next() {
		var (
			cid          int
			name, typ    string
			notNull, pk  int
			defaultValue sql.NullString
		)
		if errScan := rows.Scan(&cid, &name, &typ, &notNull, &defaultValue, &pk); errScan != nil {
			rows.Close()
			return nil, nil, errScan
		}
		columns = append(columns, name)
	}
	rows.Close()

	if len(columns) == 0 {
		return nil, nil, fmt.Errorf("table %s has no columns", tableName)
	}

	dataRows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY id", tableName))
	if err != nil {
		return nil, nil, err
	}
	defer dataRows.Close()

	for dataRows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if errScan := dataRows.Scan(valuePtrs...); errScan != nil {
			return nil, nil, errScan
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		result = append(result, row)
	}
	return result, columns, dataRows.Err()
}
