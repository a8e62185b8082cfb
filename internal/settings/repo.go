package settings

import (
	"encoding/json"
	"fmt"

	"github.com/starford/workshopwatch/internal/overlay"
	"github.com/starford/workshopwatch/internal/statuscolor"
)

// Store is the persistence surface used by the service layer.
type Store interface {
	RootPath() (string, error)
	SetRootPath(path string) error
	OverlayConfigs() (map[string]overlay.Config, error)
	SaveOverlayConfig(containerID string, cfg overlay.Config) error
	StatusColors() (map[string]statuscolor.Color, error)
	SetStatusColor(label string, c statuscolor.Color) error
	DeleteStatusColor(label string) error
	Close() error
}

var _ Store = (*DB)(nil)

// OverlayConfigs returns every stored configuration keyed by container id.
// Rows that no longer decode are skipped.
func (db *DB) OverlayConfigs() (map[string]overlay.Config, error) {
	rows, err := db.conn.Query(`SELECT container_id, config FROM overlay_configs`)
	if err != nil {
		return nil, fmt.Errorf("settings: overlay configs: %w", err)
	}
	defer rows.Close()

	out := make(map[string]overlay.Config)
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var cfg overlay.Config
		if json.Unmarshal([]byte(raw), &cfg) != nil {
			continue
		}
		out[id] = cfg
	}
	return out, rows.Err()
}

// SaveOverlayConfig stores cfg for containerID. A default configuration is
// removed instead of stored.
func (db *DB) SaveOverlayConfig(containerID string, cfg overlay.Config) error {
	if cfg.IsDefault() {
		if _, err := db.conn.Exec(`DELETE FROM overlay_configs WHERE container_id = ?`, containerID); err != nil {
			return fmt.Errorf("settings: delete overlay config: %w", err)
		}
		return nil
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("settings: encode overlay config: %w", err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO overlay_configs (container_id, config, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(container_id) DO UPDATE SET
			config     = excluded.config,
			updated_at = excluded.updated_at
	`, containerID, string(raw))
	if err != nil {
		return fmt.Errorf("settings: save overlay config: %w", err)
	}
	return nil
}

// StatusColors returns the palette keyed by lower-cased label. Invalid
// colours are skipped.
func (db *DB) StatusColors() (map[string]statuscolor.Color, error) {
	rows, err := db.conn.Query(`SELECT label, color FROM status_colors`)
	if err != nil {
		return nil, fmt.Errorf("settings: status colors: %w", err)
	}
	defer rows.Close()

	out := make(map[string]statuscolor.Color)
	for rows.Next() {
		var label, hex string
		if err := rows.Scan(&label, &hex); err != nil {
			return nil, err
		}
		c, err := statuscolor.ParseHex(hex)
		if err != nil {
			continue
		}
		out[statuscolor.Key(label)] = c
	}
	return out, rows.Err()
}

// SetStatusColor stores the colour for label.
func (db *DB) SetStatusColor(label string, c statuscolor.Color) error {
	_, err := db.conn.Exec(`
		INSERT INTO status_colors (label, color) VALUES (?, ?)
		ON CONFLICT(label) DO UPDATE SET color = excluded.color
	`, statuscolor.Key(label), c.Hex())
	if err != nil {
		return fmt.Errorf("settings: set status color: %w", err)
	}
	return nil
}

// DeleteStatusColor removes label from the palette.
func (db *DB) DeleteStatusColor(label string) error {
	if _, err := db.conn.Exec(`DELETE FROM status_colors WHERE label = ?`, statuscolor.Key(label)); err != nil {
		return fmt.Errorf("settings: delete status color: %w", err)
	}
	return nil
}

// seedPalette writes statuscolor.Defaults once per database.
func (db *DB) seedPalette() error {
	if _, seeded, err := db.get(keyPaletteSeeded); err != nil || seeded {
		return err
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("settings: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO status_colors (label, color) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("settings: prepare seed: %w", err)
	}
	defer stmt.Close()
	for label, hex := range statuscolor.Defaults {
		if _, err := stmt.Exec(statuscolor.Key(label), hex); err != nil {
			return fmt.Errorf("settings: seed palette: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO settings (key, value) VALUES (?, '1')`, keyPaletteSeeded); err != nil {
		return fmt.Errorf("settings: mark seeded: %w", err)
	}
	return tx.Commit()
}
