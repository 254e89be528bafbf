package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"qr-campaign-analytics/internal/models"
)

// DB wraps the database connection and provides methods for data access.
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection and initializes the schema.
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// initSchema creates the necessary tables if they don't exist.
// Timestamp columns are kept as the source text; parsing happens in the classifier.
func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS scan_records (
			id TEXT PRIMARY KEY,
			identifiers TEXT NOT NULL,
			win_date TEXT,
			prize_receive_date TEXT,
			prize_delivery_date TEXT,
			activation_date TEXT,
			created_date TEXT,
			modify_date TEXT,
			prize_id TEXT,
			is_win_received TEXT,
			region_id INTEGER,
			ingested_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_win_date ON scan_records(win_date)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_region ON scan_records(region_id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

// InsertScanRecords stores raw scan records in a single transaction.
// Records without an ID get a generated one; an existing ID is replaced.
func (db *DB) InsertScanRecords(ctx context.Context, records []models.ScanRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO scan_records (
		id, identifiers, win_date, prize_receive_date, prize_delivery_date,
		activation_date, created_date, modify_date, prize_id, is_win_received,
		region_id, ingested_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	inserted := 0
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}

		_, err := stmt.ExecContext(ctx,
			rec.ID,
			serializeIdentifiers(rec.Identifiers),
			nullString(rec.WinDate),
			nullString(rec.PrizeReceiveDate),
			nullString(rec.PrizeDeliveryDate),
			nullString(rec.ActivationDate),
			nullString(rec.CreatedDate),
			nullString(rec.ModifyDate),
			rec.PrizeID,
			rec.IsWinReceived,
			rec.RegionID,
			now,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert scan record %s: %w", rec.ID, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return inserted, nil
}

// ListScanRecords returns every stored scan record ordered by ID.
func (db *DB) ListScanRecords(ctx context.Context) ([]models.ScanRecord, error) {
	query := `SELECT id, identifiers, win_date, prize_receive_date, prize_delivery_date,
		activation_date, created_date, modify_date, prize_id, is_win_received, region_id
		FROM scan_records
		ORDER BY id`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan records: %w", err)
	}
	defer rows.Close()

	records := []models.ScanRecord{}
	for rows.Next() {
		var rec models.ScanRecord
		var identifiersJSON string
		var winDate, receiveDate, deliveryDate, activationDate, createdDate, modifyDate sql.NullString
		var prizeID, received sql.NullString
		var regionID sql.NullInt64

		err := rows.Scan(
			&rec.ID,
			&identifiersJSON,
			&winDate,
			&receiveDate,
			&deliveryDate,
			&activationDate,
			&createdDate,
			&modifyDate,
			&prizeID,
			&received,
			&regionID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		rec.Identifiers = deserializeIdentifiers(identifiersJSON)
		rec.WinDate = winDate.String
		rec.PrizeReceiveDate = receiveDate.String
		rec.PrizeDeliveryDate = deliveryDate.String
		rec.ActivationDate = activationDate.String
		rec.CreatedDate = createdDate.String
		rec.ModifyDate = modifyDate.String
		if prizeID.Valid {
			rec.PrizeID = &prizeID.String
		}
		if received.Valid {
			rec.IsWinReceived = &received.String
		}
		if regionID.Valid {
			rec.RegionID = &regionID.Int64
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scan records: %w", err)
	}

	return records, nil
}

// CountScanRecords returns the number of stored scan records.
func (db *DB) CountScanRecords(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM scan_records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count scan records: %w", err)
	}
	return count, nil
}

// IdentifierFields lists the identifier names seen in stored records.
func (db *DB) IdentifierFields(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT j.key FROM scan_records, json_each(scan_records.identifiers) AS j ORDER BY j.key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query identifier fields: %w", err)
	}
	defer rows.Close()

	fields := []string{}
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("failed to scan identifier field: %w", err)
		}
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating identifier fields: %w", err)
	}
	return fields, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// serializeIdentifiers converts the identifier map to a JSON string.
func serializeIdentifiers(ids map[string]string) string {
	if len(ids) == 0 {
		return "{}"
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// deserializeIdentifiers converts a serialized identifier map back to a map.
func deserializeIdentifiers(serialized string) map[string]string {
	result := map[string]string{}
	if serialized == "" || serialized == "{}" {
		return result
	}
	if err := json.Unmarshal([]byte(serialized), &result); err != nil {
		return map[string]string{}
	}
	return result
}
