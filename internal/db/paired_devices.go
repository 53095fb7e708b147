package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/bandlink/internal/serialmux"
)

// PairedDevice is a band remembered after a successful pairing. PortPath is
// unique: pairing the same port again updates its row.
type PairedDevice struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	PortPath        string `json:"port_path"`
	BaudRate        int    `json:"baud_rate"`
	DataBits        int    `json:"data_bits"`
	StopBits        int    `json:"stop_bits"`
	Parity          string `json:"parity"`
	CreatedAt       int64  `json:"created_at"`
	UpdatedAt       int64  `json:"updated_at"`
	LastConnectedAt *int64 `json:"last_connected_at,omitempty"`
}

// ErrDeviceNotPaired is returned when no row matches a port path.
var ErrDeviceNotPaired = errors.New("device not paired")

var _ serialmux.Registry = (*DB)(nil)

const pairedDeviceColumns = `id, name, port_path, baud_rate, data_bits, stop_bits, parity, created_at, updated_at, last_connected_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPairedDevice(row rowScanner) (PairedDevice, error) {
	var d PairedDevice
	var last sql.NullInt64
	err := row.Scan(&d.ID, &d.Name, &d.PortPath, &d.BaudRate, &d.DataBits, &d.StopBits,
		&d.Parity, &d.CreatedAt, &d.UpdatedAt, &last)
	if err != nil {
		return PairedDevice{}, err
	}
	if last.Valid {
		d.LastConnectedAt = &last.Int64
	}
	return d, nil
}

// ListPairedDevices returns every paired device, oldest first.
func (db *DB) ListPairedDevices(ctx context.Context) ([]PairedDevice, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+pairedDeviceColumns+` FROM paired_devices ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query paired devices: %w", err)
	}
	defer rows.Close()

	devices := []PairedDevice{}
	for rows.Next() {
		d, err := scanPairedDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan paired device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// GetPairedDevice returns the device paired on portPath.
func (db *DB) GetPairedDevice(ctx context.Context, portPath string) (PairedDevice, error) {
	row := db.QueryRowContext(ctx, `SELECT `+pairedDeviceColumns+` FROM paired_devices WHERE port_path = ?`, portPath)
	d, err := scanPairedDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PairedDevice{}, fmt.Errorf("%w: %s", ErrDeviceNotPaired, portPath)
	}
	if err != nil {
		return PairedDevice{}, fmt.Errorf("failed to get paired device: %w", err)
	}
	return d, nil
}

// UpsertPairedDevice inserts d or, when its port is already paired, updates the
// name and line settings. d is updated with the stored row.
func (db *DB) UpsertPairedDevice(ctx context.Context, d *PairedDevice) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO paired_devices (name, port_path, baud_rate, data_bits, stop_bits, parity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(port_path) DO UPDATE SET
			name = excluded.name,
			baud_rate = excluded.baud_rate,
			data_bits = excluded.data_bits,
			stop_bits = excluded.stop_bits,
			parity = excluded.parity,
			updated_at = excluded.updated_at`,
		d.Name, d.PortPath, d.BaudRate, d.DataBits, d.StopBits, d.Parity, now, now)
	if err != nil {
		return fmt.Errorf("failed to save paired device: %w", err)
	}

	stored, err := db.GetPairedDevice(ctx, d.PortPath)
	if err != nil {
		return err
	}
	*d = stored
	return nil
}

// DeletePairedDevice forgets the device on portPath.
func (db *DB) DeletePairedDevice(ctx context.Context, portPath string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM paired_devices WHERE port_path = ?`, portPath)
	if err != nil {
		return fmt.Errorf("failed to delete paired device: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDeviceNotPaired, portPath)
	}
	return nil
}

// ListPairedPorts implements serialmux.Registry.
func (db *DB) ListPairedPorts(ctx context.Context) ([]serialmux.PairedPort, error) {
	devices, err := db.ListPairedDevices(ctx)
	if err != nil {
		return nil, err
	}
	ports := make([]serialmux.PairedPort, 0, len(devices))
	for _, d := range devices {
		ports = append(ports, serialmux.PairedPort{
			Name: d.Name,
			Path: d.PortPath,
			Options: serialmux.PortOptions{
				BaudRate: d.BaudRate,
				DataBits: d.DataBits,
				StopBits: d.StopBits,
				Parity:   d.Parity,
			},
		})
	}
	return ports, nil
}

// SavePairedPort implements serialmux.Registry. Options are normalised so the
// row always holds concrete line settings.
func (db *DB) SavePairedPort(ctx context.Context, p serialmux.PairedPort) error {
	opts, err := p.Options.Normalize()
	if err != nil {
		return err
	}
	return db.UpsertPairedDevice(ctx, &PairedDevice{
		Name:     p.Name,
		PortPath: p.Path,
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: opts.StopBits,
		Parity:   opts.Parity,
	})
}

// MarkConnected implements serialmux.Registry.
func (db *DB) MarkConnected(ctx context.Context, path string) error {
	res, err := db.ExecContext(ctx, `UPDATE paired_devices SET last_connected_at = ? WHERE port_path = ?`,
		time.Now().UnixMilli(), path)
	if err != nil {
		return fmt.Errorf("failed to mark %s connected: %w", path, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrDeviceNotPaired, path)
	}
	return nil
}
