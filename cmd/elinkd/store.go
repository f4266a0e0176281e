package main

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"elink"
)

// Store is a sqlite-backed catalog of known printers — the host/port/type
// a caller would hand to elink.NewSessionForPrinter — plus a log of past
// print jobs. It deliberately does not persist anything about a
// Session's live state (connection status, pending requests, polling):
// that state is rebuilt by reconnecting, never read back from disk.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if absent) the sqlite database at path and
// ensures its schema exists.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("elinkd: open database: %w", err)
	}

	createTables := []string{
		`CREATE TABLE IF NOT EXISTS printers (
			printer_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			printer_type TEXT NOT NULL,
			host TEXT NOT NULL,
			port INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS print_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			printer_id TEXT NOT NULL,
			file_name TEXT NOT NULL,
			started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			outcome TEXT
		)`,
	}
	for _, query := range createTables {
		if _, err := db.Exec(query); err != nil {
			return nil, fmt.Errorf("elinkd: create schema: %w", err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts or replaces a printer's catalog entry.
func (s *Store) Upsert(info elink.PrinterInfo) error {
	_, err := s.db.Exec(
		`INSERT INTO printers (printer_id, name, printer_type, host, port)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(printer_id) DO UPDATE SET
			name = excluded.name,
			printer_type = excluded.printer_type,
			host = excluded.host,
			port = excluded.port`,
		info.PrinterID, info.Name, string(info.PrinterType), info.Host, info.Port,
	)
	if err != nil {
		return fmt.Errorf("elinkd: upsert printer %s: %w", info.PrinterID, err)
	}
	return nil
}

// Remove deletes a printer's catalog entry.
func (s *Store) Remove(printerID string) error {
	_, err := s.db.Exec(`DELETE FROM printers WHERE printer_id = ?`, printerID)
	if err != nil {
		return fmt.Errorf("elinkd: remove printer %s: %w", printerID, err)
	}
	return nil
}

// All returns every catalogued printer.
func (s *Store) All() ([]elink.PrinterInfo, error) {
	rows, err := s.db.Query(`SELECT printer_id, name, printer_type, host, port FROM printers`)
	if err != nil {
		return nil, fmt.Errorf("elinkd: list printers: %w", err)
	}
	defer rows.Close()

	var out []elink.PrinterInfo
	for rows.Next() {
		var info elink.PrinterInfo
		var printerType string
		if err := rows.Scan(&info.PrinterID, &info.Name, &printerType, &info.Host, &info.Port); err != nil {
			return nil, fmt.Errorf("elinkd: scan printer row: %w", err)
		}
		info.PrinterType = elink.PrinterType(printerType)
		out = append(out, info)
	}
	return out, rows.Err()
}

// RecordPrintStarted logs a print job start for history/reporting. It has
// no bearing on session state and is purely informational.
func (s *Store) RecordPrintStarted(printerID, fileName string) error {
	_, err := s.db.Exec(
		`INSERT INTO print_history (printer_id, file_name, outcome) VALUES (?, ?, ?)`,
		printerID, fileName, "started",
	)
	if err != nil {
		return fmt.Errorf("elinkd: record print history: %w", err)
	}
	return nil
}
