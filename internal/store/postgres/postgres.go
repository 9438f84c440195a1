// Package postgres implements the Telemetry Store contract over PostgreSQL.
// Record collections and singleton documents are JSONB rows; reassembled
// payloads live in a blob table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetlink/fleetlink/internal/store"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InitPool connects to PostgreSQL and verifies the connection.
func InitPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	slog.Info("Connected to PostgreSQL")

	return pool, nil
}

func (s *Store) GetDevice(ctx context.Context, deviceID string) (*store.Device, error) {
	var (
		device   store.Device
		metadata []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, first_seen, last_seen, online, metadata FROM devices WHERE id = $1`,
		deviceID,
	).Scan(&device.ID, &device.FirstSeen, &device.LastSeen, &device.Online, &metadata)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	if err := json.Unmarshal(metadata, &device.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode device metadata: %w", err)
	}
	return &device, nil
}

func (s *Store) ListDevices(ctx context.Context) ([]store.Device, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, first_seen, last_seen, online, metadata FROM devices ORDER BY first_seen`)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []store.Device
	for rows.Next() {
		var (
			device   store.Device
			metadata []byte
		)
		if err := rows.Scan(&device.ID, &device.FirstSeen, &device.LastSeen, &device.Online, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		if err := json.Unmarshal(metadata, &device.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode device metadata: %w", err)
		}
		devices = append(devices, device)
	}
	return devices, rows.Err()
}

func (s *Store) PutDevice(ctx context.Context, device *store.Device) error {
	metadata, err := json.Marshal(device.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode device metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO devices (id, first_seen, last_seen, online, metadata)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET last_seen = EXCLUDED.last_seen,
		     online = EXCLUDED.online,
		     metadata = EXCLUDED.metadata`,
		device.ID, device.FirstSeen, device.LastSeen, device.Online, metadata)
	if err != nil {
		return fmt.Errorf("failed to put device: %w", err)
	}
	return nil
}

func (s *Store) DeleteDevice(ctx context.Context, deviceID string) error {
	statements := []string{
		`DELETE FROM device_blobs WHERE device_id = $1`,
		`DELETE FROM device_records WHERE device_id = $1`,
		`DELETE FROM device_docs WHERE device_id = $1`,
		`DELETE FROM devices WHERE id = $1`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt, deviceID); err != nil {
			return fmt.Errorf("failed to delete device: %w", err)
		}
	}
	return nil
}

func (s *Store) GetDoc(ctx context.Context, deviceID, name string, out any) error {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM device_docs WHERE device_id = $1 AND name = $2`,
		deviceID, name,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		return fmt.Errorf("failed to get document %s: %w", name, err)
	}
	if err := json.Unmarshal(doc, out); err != nil {
		return fmt.Errorf("failed to decode document %s: %w", name, err)
	}
	return nil
}

func (s *Store) SetDoc(ctx context.Context, deviceID, name string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", name, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO device_docs (device_id, name, doc) VALUES ($1, $2, $3)
		 ON CONFLICT (device_id, name) DO UPDATE SET doc = EXCLUDED.doc`,
		deviceID, name, data)
	if err != nil {
		return fmt.Errorf("failed to set document %s: %w", name, err)
	}
	return nil
}

func (s *Store) AppendRecord(ctx context.Context, deviceID string, col store.Collection, fingerprint string, rec any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO device_records (device_id, collection, fingerprint, record)
		 VALUES ($1, $2, $3, $4)`,
		deviceID, string(col), fingerprint, data)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return store.ErrDuplicate
		}
		return fmt.Errorf("failed to append record: %w", err)
	}
	return nil
}

func (s *Store) FindRecord(ctx context.Context, deviceID string, col store.Collection, fingerprint string, out any) (bool, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM device_records
		 WHERE device_id = $1 AND collection = $2 AND fingerprint = $3`,
		deviceID, string(col), fingerprint,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to find record: %w", err)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return false, fmt.Errorf("failed to decode record: %w", err)
		}
	}
	return true, nil
}

func (s *Store) UpdateRecord(ctx context.Context, deviceID string, col store.Collection, fingerprint string, rec any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE device_records SET record = $4
		 WHERE device_id = $1 AND collection = $2 AND fingerprint = $3`,
		deviceID, string(col), fingerprint, data)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListRecords(ctx context.Context, deviceID string, col store.Collection, out any) error {
	rows, err := s.pool.Query(ctx,
		`SELECT record FROM device_records
		 WHERE device_id = $1 AND collection = $2 ORDER BY seq`,
		deviceID, string(col))
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var raw []json.RawMessage
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return fmt.Errorf("failed to scan record: %w", err)
		}
		raw = append(raw, json.RawMessage(data))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to encode record list: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode record list: %w", err)
	}
	return nil
}

func (s *Store) RemoveRecord(ctx context.Context, deviceID string, col store.Collection, fingerprint string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM device_records
		 WHERE device_id = $1 AND collection = $2 AND fingerprint = $3`,
		deviceID, string(col), fingerprint)
	if err != nil {
		return fmt.Errorf("failed to remove record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SaveBlob(ctx context.Context, deviceID, name string, data []byte) (string, error) {
	key := uuid.NewString()
	if name != "" {
		key = key + "-" + name
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO device_blobs (key, device_id, name, data) VALUES ($1, $2, $3, $4)`,
		key, deviceID, name, data)
	if err != nil {
		return "", fmt.Errorf("failed to save blob: %w", err)
	}
	return key, nil
}

func (s *Store) GetBlob(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM device_blobs WHERE key = $1`, key).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get blob: %w", err)
	}
	return data, nil
}
