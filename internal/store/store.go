// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store persists the master's configuration: slaves, their modules,
// device permissions and global switches.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"smarthome/internal/naming"
	"smarthome/internal/payload"
	"smarthome/internal/permission"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

const settingHolidaySimulation = "holiday_simulation"

// Grant is one permission held by a device
type Grant struct {
	Device     naming.DeviceID       `json:"device"`
	Permission permission.Permission `json:"permission"`
	Module     string                `json:"module,omitempty"`
}

// Store handles SQLite database operations
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path; ":memory:" is accepted
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: sqlite serializes writers anyway and an in-memory
	// database only exists per connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	queries := []string{
		`PRAGMA foreign_keys = ON`,
		`CREATE TABLE IF NOT EXISTS slaves (
			id TEXT PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			token_hash TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS modules (
			name TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			at_slave TEXT NOT NULL REFERENCES slaves(id) ON DELETE CASCADE,
			port INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS permissions (
			device_id TEXT NOT NULL,
			permission TEXT NOT NULL,
			module TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (device_id, permission, module)
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_modules_at_slave ON modules(at_slave)`,
		`CREATE INDEX IF NOT EXISTS idx_permissions_device ON permissions(device_id)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Slave operations

// AddSlave stores a new slave with its hashed registration token
func (s *Store) AddSlave(slave payload.Slave, tokenHash string) error {
	_, err := s.db.Exec(`INSERT INTO slaves (id, name, token_hash) VALUES (?, ?, ?)`,
		string(slave.ID), slave.Name, tokenHash)
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("%w: slave %s (%s)", ErrAlreadyExists, slave.ID, slave.Name)
		}
		return fmt.Errorf("failed to add slave: %w", err)
	}
	return nil
}

// RemoveSlave deletes a slave and, by cascade, its modules
func (s *Store) RemoveSlave(id naming.DeviceID) error {
	result, err := s.db.Exec(`DELETE FROM slaves WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("failed to remove slave: %w", err)
	}
	return expectOne(result, "slave", string(id))
}

// Slave returns one slave
func (s *Store) Slave(id naming.DeviceID) (payload.Slave, error) {
	var slave payload.Slave
	var rawID string
	err := s.db.QueryRow(`SELECT id, name FROM slaves WHERE id = ?`, string(id)).Scan(&rawID, &slave.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return slave, fmt.Errorf("%w: slave %s", ErrNotFound, id)
	}
	if err != nil {
		return slave, fmt.Errorf("failed to get slave: %w", err)
	}
	slave.ID = naming.DeviceID(rawID)
	return slave, nil
}

// SlaveTokenHash returns the stored registration token hash of a slave
func (s *Store) SlaveTokenHash(id naming.DeviceID) (string, error) {
	var hash sql.NullString
	err := s.db.QueryRow(`SELECT token_hash FROM slaves WHERE id = ?`, string(id)).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: slave %s", ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get slave token: %w", err)
	}
	return hash.String, nil
}

// Slaves lists every slave ordered by name
func (s *Store) Slaves() ([]payload.Slave, error) {
	rows, err := s.db.Query(`SELECT id, name FROM slaves ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list slaves: %w", err)
	}
	defer rows.Close()

	var slaves []payload.Slave
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan slave: %w", err)
		}
		slaves = append(slaves, payload.Slave{ID: naming.DeviceID(id), Name: name})
	}
	return slaves, rows.Err()
}

// Module operations

// AddModule stores a module; the slave it is attached to must exist
func (s *Store) AddModule(m payload.Module) error {
	if _, err := s.Slave(m.AtSlave); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT INTO modules (name, type, at_slave, port) VALUES (?, ?, ?, ?)`,
		m.Name, string(m.Type), string(m.AtSlave), m.Port)
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("%w: module %s", ErrAlreadyExists, m.Name)
		}
		return fmt.Errorf("failed to add module: %w", err)
	}
	return nil
}

// RemoveModule deletes a module and the permissions bound to it
func (s *Store) RemoveModule(name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`DELETE FROM modules WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to remove module: %w", err)
	}
	if err := expectOne(result, "module", name); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM permissions WHERE module = ?`, name); err != nil {
		return fmt.Errorf("failed to remove module permissions: %w", err)
	}
	return tx.Commit()
}

// Module returns one module by name
func (s *Store) Module(name string) (payload.Module, error) {
	row := s.db.QueryRow(`SELECT name, type, at_slave, port FROM modules WHERE name = ?`, name)
	m, err := scanModule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return m, fmt.Errorf("%w: module %s", ErrNotFound, name)
	}
	if err != nil {
		return m, fmt.Errorf("failed to get module: %w", err)
	}
	return m, nil
}

// Modules lists every module ordered by name
func (s *Store) Modules() ([]payload.Module, error) {
	rows, err := s.db.Query(`SELECT name, type, at_slave, port FROM modules ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	defer rows.Close()

	var modules []payload.Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		modules = append(modules, m)
	}
	return modules, rows.Err()
}

// ModulesByType lists the modules of one type
func (s *Store) ModulesByType(t payload.ModuleType) ([]payload.Module, error) {
	all, err := s.Modules()
	if err != nil {
		return nil, err
	}
	var out []payload.Module
	for _, m := range all {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out, nil
}

// Catalogue returns the payload pushed to devices on module changes
func (s *Store) Catalogue() (*payload.ModulesPayload, error) {
	slaves, err := s.Slaves()
	if err != nil {
		return nil, err
	}
	modules, err := s.Modules()
	if err != nil {
		return nil, err
	}
	return &payload.ModulesPayload{Slaves: slaves, Modules: modules}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanModule(row scanner) (payload.Module, error) {
	var m payload.Module
	var typ, slave string
	if err := row.Scan(&m.Name, &typ, &slave, &m.Port); err != nil {
		return m, err
	}
	m.Type = payload.ModuleType(typ)
	m.AtSlave = naming.DeviceID(slave)
	return m, nil
}

// Permission operations

// Grant gives device perm, bound to module for module-bound permissions
func (s *Store) Grant(device naming.DeviceID, perm permission.Permission, module string) error {
	if !perm.Valid() {
		return fmt.Errorf("unknown permission %q", perm)
	}
	module = moduleScope(perm, module)
	_, err := s.db.Exec(`INSERT OR IGNORE INTO permissions (device_id, permission, module) VALUES (?, ?, ?)`,
		string(device), string(perm), module)
	if err != nil {
		return fmt.Errorf("failed to grant permission: %w", err)
	}
	return nil
}

// Revoke takes perm away from device
func (s *Store) Revoke(device naming.DeviceID, perm permission.Permission, module string) error {
	module = moduleScope(perm, module)
	result, err := s.db.Exec(`DELETE FROM permissions WHERE device_id = ? AND permission = ? AND module = ?`,
		string(device), string(perm), module)
	if err != nil {
		return fmt.Errorf("failed to revoke permission: %w", err)
	}
	return expectOne(result, "permission", fmt.Sprintf("%s/%s", device, perm))
}

// HasPermission reports whether device holds perm
func (s *Store) HasPermission(device naming.DeviceID, perm permission.Permission, module string) (bool, error) {
	module = moduleScope(perm, module)
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM permissions WHERE device_id = ? AND permission = ? AND module = ?`,
		string(device), string(perm), module).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check permission: %w", err)
	}
	return n > 0, nil
}

// Grants lists the permissions held by device
func (s *Store) Grants(device naming.DeviceID) ([]Grant, error) {
	rows, err := s.db.Query(`SELECT permission, module FROM permissions WHERE device_id = ? ORDER BY permission, module`,
		string(device))
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		var perm, module string
		if err := rows.Scan(&perm, &module); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		grants = append(grants, Grant{
			Device:     device,
			Permission: permission.Permission(perm),
			Module:     module,
		})
	}
	return grants, rows.Err()
}

// Settings

// HolidaySimulation returns whether the holiday simulation is switched on
func (s *Store) HolidaySimulation() (bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, settingHolidaySimulation).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read setting: %w", err)
	}
	return value == "on", nil
}

// SetHolidaySimulation switches the holiday simulation
func (s *Store) SetHolidaySimulation(on bool) error {
	value := "off"
	if on {
		value = "on"
	}
	_, err := s.db.Exec(`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, settingHolidaySimulation, value)
	if err != nil {
		return fmt.Errorf("failed to write setting: %w", err)
	}
	return nil
}

func moduleScope(perm permission.Permission, module string) string {
	if perm.IsModuleBound() {
		return module
	}
	return ""
}

func expectOne(result sql.Result, what, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
	}
	return nil
}

func isConstraint(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY")
}
