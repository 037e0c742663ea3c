package client

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/launchlog/launchlog-go/internal/client/migrations"
	"github.com/launchlog/launchlog-go/internal/model"
)

// OpKind names a queued mutation.
type OpKind string

const (
	OpSaveTimerSession OpKind = "save_timer_session"
	OpUpdateTasks      OpKind = "update_tasks"
	OpSaveJob          OpKind = "save_job"
	OpUpdateJob        OpKind = "update_job"
	OpDeleteJob        OpKind = "delete_job"
	OpUpdateDashboard  OpKind = "update_dashboard"
)

// Op is a mutation waiting to be sent to the API.
type Op struct {
	ID        int64
	UserID    string
	Kind      OpKind
	JobID     string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// Cache is the local SQLite store of snapshots, queued operations and
// settings.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (creating if needed) the cache database at path and
// applies its migrations.
func OpenCache(ctx context.Context, path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.FS)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cache migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply cache migrations: %w", err)
	}

	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// LoadSnapshot returns the cached aggregate of userID. ok is false when
// nothing was cached yet.
func (c *Cache) LoadSnapshot(ctx context.Context, userID string) (d model.UserData, ok bool, err error) {
	var raw string
	err = c.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewUserData(userID), false, nil
	}
	if err != nil {
		return model.UserData{}, false, fmt.Errorf("load snapshot: %w", err)
	}

	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return model.UserData{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	d.UserID = userID
	d.Normalize()
	return d, true, nil
}

// SaveSnapshot replaces the cached aggregate of d.UserID.
func (c *Cache) SaveSnapshot(ctx context.Context, d model.UserData) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO snapshots (user_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		d.UserID, string(raw), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (c *Cache) DeleteSnapshot(ctx context.Context, userID string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM snapshots WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// Enqueue appends op to the queue of op.UserID and sets op.ID.
func (c *Cache) Enqueue(ctx context.Context, op *Op) error {
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now()
	}
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO pending_ops (user_id, kind, job_id, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		op.UserID, string(op.Kind), op.JobID, string(op.Payload), op.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", op.Kind, err)
	}
	if op.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("enqueue %s: %w", op.Kind, err)
	}
	return nil
}

// Pending returns the queued operations of userID in insertion order.
func (c *Cache) Pending(ctx context.Context, userID string) ([]Op, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, user_id, kind, job_id, payload, created_at FROM pending_ops WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list pending ops: %w", err)
	}
	defer rows.Close()

	var ops []Op
	for rows.Next() {
		var (
			op      Op
			kind    string
			payload string
			created int64
		)
		if err := rows.Scan(&op.ID, &op.UserID, &kind, &op.JobID, &payload, &created); err != nil {
			return nil, fmt.Errorf("scan pending op: %w", err)
		}
		op.Kind = OpKind(kind)
		op.Payload = json.RawMessage(payload)
		op.CreatedAt = time.UnixMilli(created)
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending ops: %w", err)
	}
	return ops, nil
}

func (c *Cache) Dequeue(ctx context.Context, id int64) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM pending_ops WHERE id = ?`, id); err != nil {
		return fmt.Errorf("dequeue op %d: %w", id, err)
	}
	return nil
}

func (c *Cache) ClearQueue(ctx context.Context, userID string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM pending_ops WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	return nil
}

// Setting returns the value stored under key. ok is false when unset.
func (c *Cache) Setting(ctx context.Context, key string) (value string, ok bool, err error) {
	err = c.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, true, nil
}

func (c *Cache) SetSetting(ctx context.Context, key, value string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

func (c *Cache) DeleteSetting(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete setting %s: %w", key, err)
	}
	return nil
}
