package roster

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fleetbridge/fleetbridge/pkg/models"
)

// MasterKeyRecord is the singleton row backing the credential sealer.
type MasterKeyRecord struct {
	Salt         []byte
	Verification []byte
}

// CredentialRecord is a sealed credential as stored on disk.
type CredentialRecord struct {
	DeviceID   string
	Kind       string
	Blob       []byte
	WrappedKey []byte
	UpdatedAt  time.Time
}

// RosterStore provides database access for the roster module.
type RosterStore struct {
	db *sql.DB
}

// NewRosterStore creates a RosterStore wrapping the given database connection.
func NewRosterStore(db *sql.DB) *RosterStore {
	return &RosterStore{db: db}
}

// GetMasterKeyRecord returns the singleton master key record, or nil if the
// sealer has never been bootstrapped.
func (s *RosterStore) GetMasterKeyRecord(ctx context.Context) (*MasterKeyRecord, error) {
	var rec MasterKeyRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT salt, verification_blob FROM roster_master WHERE id = 1`,
	).Scan(&rec.Salt, &rec.Verification)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get master key record: %w", err)
	}
	return &rec, nil
}

// UpsertMasterKeyRecord inserts or updates the singleton master key record.
func (s *RosterStore) UpsertMasterKeyRecord(ctx context.Context, salt, verification []byte) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roster_master (id, salt, verification_blob, created_at, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			salt = excluded.salt,
			verification_blob = excluded.verification_blob,
			updated_at = excluded.updated_at`,
		salt, verification, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert master key record: %w", err)
	}
	return nil
}

// UpsertDevice inserts or replaces a device record by id. Returns true when
// the device was newly created.
func (s *RosterStore) UpsertDevice(ctx context.Context, d *models.Device) (created bool, err error) {
	caps, err := json.Marshal(d.Capabilities)
	if err != nil {
		return false, fmt.Errorf("marshal capabilities: %w", err)
	}

	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM roster_devices WHERE id = ?`, d.ID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check device existence: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO roster_devices (id, name, category, host, port, username, capabilities, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			host = excluded.host,
			port = excluded.port,
			username = excluded.username,
			capabilities = excluded.capabilities,
			notes = excluded.notes,
			updated_at = excluded.updated_at`,
		d.ID, d.Name, d.Category, d.Host, d.Port, d.User,
		string(caps), d.Notes, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("upsert device: %w", err)
	}
	return exists == 0, nil
}

// GetDevice returns a device by id, or nil if not found.
func (s *RosterStore) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, host, port, username, capabilities, notes, created_at, updated_at
		FROM roster_devices WHERE id = ?`, id)
	d, err := scanDevice(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get device: %w", err)
	}
	return d, nil
}

// ListDevices returns all devices ordered by id.
func (s *RosterStore) ListDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, host, port, username, capabilities, notes, created_at, updated_at
		FROM roster_devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device row: %w", err)
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}

// DeleteDevice removes a device and, via cascade, its sealed credential.
// Returns false if the device did not exist.
func (s *RosterStore) DeleteDevice(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM roster_devices WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete device: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// DeviceCount returns the number of registered devices.
func (s *RosterStore) DeviceCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM roster_devices`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count devices: %w", err)
	}
	return count, nil
}

// UpsertCredential stores the sealed credential for a device.
func (s *RosterStore) UpsertCredential(ctx context.Context, deviceID, kind string, blob, wrappedKey []byte) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roster_credentials (device_id, kind, blob, wrapped_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			kind = excluded.kind,
			blob = excluded.blob,
			wrapped_key = excluded.wrapped_key,
			updated_at = excluded.updated_at`,
		deviceID, kind, blob, wrappedKey, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

// GetCredential returns the sealed credential for a device, or nil if the
// device has none.
func (s *RosterStore) GetCredential(ctx context.Context, deviceID string) (*CredentialRecord, error) {
	var rec CredentialRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT device_id, kind, blob, wrapped_key, updated_at
		FROM roster_credentials WHERE device_id = ?`, deviceID,
	).Scan(&rec.DeviceID, &rec.Kind, &rec.Blob, &rec.WrappedKey, &rec.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &rec, nil
}

// scanner abstracts sql.Row and sql.Rows for scanDevice.
type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(row scanner) (*models.Device, error) {
	var d models.Device
	var caps string
	if err := row.Scan(&d.ID, &d.Name, &d.Category, &d.Host, &d.Port, &d.User,
		&caps, &d.Notes, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(caps), &d.Capabilities); err != nil {
		d.Capabilities = nil
	}
	return &d, nil
}
