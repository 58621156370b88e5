package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"storefront-checkout/pkg/models"
)

// Persisted keys of the local state store.
const (
	KeyToken           = "token"
	KeyUser            = "user"
	KeyPendingCallback = "pending_vnpay_callback"
	KeyOfflineLastRun  = "offline_orders_last_processed_at"
)

// DB is the on-device state store: a key/value table plus the offline order
// collection. The same schema runs on sqlite (device) and MySQL (shared
// test rigs).
type DB struct {
	db     *sql.DB
	driver string
}

func Open(driver, dsn string) (*DB, error) {
	if driver == "sqlite3" {
		if strings.HasPrefix(dsn, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			dsn = filepath.Join(home, dsn[1:])
		}
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create store directory: %w", err)
			}
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if driver == "sqlite3" {
		// one writer; concurrent callers queue on the pool instead of SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}

	return &DB{db: db, driver: driver}, nil
}

func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func (d *DB) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS app_state (
			state_key VARCHAR(255) PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS offline_orders (
			id VARCHAR(64) PRIMARY KEY,
			status VARCHAR(32) NOT NULL,
			created_at DATETIME NOT NULL,
			payload TEXT NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := d.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

func (d *DB) ResetTables() error {
	tables := []string{"offline_orders", "app_state"}

	for _, table := range tables {
		query := fmt.Sprintf("DROP TABLE IF EXISTS %s", table)
		if _, err := d.db.Exec(query); err != nil {
			slog.Error("Failed to drop table", "table", table, "error", err)
		} else {
			slog.Info("Table dropped", "table", table)
		}
	}

	if err := d.CreateTables(); err != nil {
		return fmt.Errorf("failed to recreate tables: %w", err)
	}

	slog.Info("All tables dropped and recreated successfully")
	return nil
}

func (d *DB) upsert(table, keyCol string, cols []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	var sets []string
	for _, c := range cols {
		if c == keyCol {
			continue
		}
		if d.driver == "mysql" {
			sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", c, c))
		} else {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ", table, strings.Join(cols, ", "), placeholders)
	if d.driver == "mysql" {
		return query + "ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	return query + fmt.Sprintf("ON CONFLICT(%s) DO UPDATE SET ", keyCol) + strings.Join(sets, ", ")
}

func (d *DB) GetState(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := d.db.QueryRowContext(ctx, `SELECT value FROM app_state WHERE state_key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read state %s: %w", key, err)
	}
	return value, true, nil
}

func (d *DB) SetState(ctx context.Context, key, value string) error {
	query := d.upsert("app_state", "state_key", []string{"state_key", "value", "updated_at"})
	if _, err := d.db.ExecContext(ctx, query, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to write state %s: %w", key, err)
	}
	return nil
}

func (d *DB) DeleteState(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if _, err := d.db.ExecContext(ctx, `DELETE FROM app_state WHERE state_key = ?`, key); err != nil {
			return fmt.Errorf("failed to delete state %s: %w", key, err)
		}
	}
	return nil
}

// SaveOfflineOrder persists the whole record, replacing any previous version.
func (d *DB) SaveOfflineOrder(ctx context.Context, rec models.OfflineOrder) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal offline order: %w", err)
	}
	query := d.upsert("offline_orders", "id", []string{"id", "status", "created_at", "payload"})
	if _, err := d.db.ExecContext(ctx, query, rec.ID, string(rec.Status), rec.Timestamp.UTC(), string(payload)); err != nil {
		return fmt.Errorf("failed to save offline order %s: %w", rec.ID, err)
	}
	return nil
}

func (d *DB) GetOfflineOrder(ctx context.Context, id string) (models.OfflineOrder, bool, error) {
	var payload string
	err := d.db.QueryRowContext(ctx, `SELECT payload FROM offline_orders WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return models.OfflineOrder{}, false, nil
	}
	if err != nil {
		return models.OfflineOrder{}, false, fmt.Errorf("failed to read offline order %s: %w", id, err)
	}
	var rec models.OfflineOrder
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return models.OfflineOrder{}, false, fmt.Errorf("failed to decode offline order %s: %w", id, err)
	}
	return rec, true, nil
}

func (d *DB) ListOfflineOrders(ctx context.Context) ([]models.OfflineOrder, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, payload FROM offline_orders ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list offline orders: %w", err)
	}
	defer rows.Close()

	var out []models.OfflineOrder
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan offline order: %w", err)
		}
		var rec models.OfflineOrder
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			slog.Error("Skipping unreadable offline order", "id", id, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (d *DB) DeleteOfflineOrders(ctx context.Context, ids ...string) (int, error) {
	deleted := 0
	for _, id := range ids {
		res, err := d.db.ExecContext(ctx, `DELETE FROM offline_orders WHERE id = ?`, id)
		if err != nil {
			return deleted, fmt.Errorf("failed to delete offline order %s: %w", id, err)
		}
		n, _ := res.RowsAffected()
		deleted += int(n)
	}
	return deleted, nil
}
