package db

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultQueryLimit caps query results when the caller gives no limit.
const DefaultQueryLimit = 100

// Parameter is one stored telemetry sample. Values are kept as the text the
// producer sent; numeric interpretation is left to the reader.
type Parameter struct {
	Subsystem string    `json:"subsystem"`
	Parameter string    `json:"parameter"`
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// ParameterQuery filters Parameters. Empty fields match everything.
type ParameterQuery struct {
	Subsystem string
	Parameter string
	Since     time.Time
	Limit     int
}

// InsertParameter stores one sample stamped with the current time.
func (db *DB) InsertParameter(subsystem, parameter, value string) error {
	return db.InsertParameterAt(Parameter{
		Subsystem: subsystem,
		Parameter: parameter,
		Value:     value,
		Timestamp: time.Now(),
	})
}

// InsertParameterAt stores p with its own timestamp.
func (db *DB) InsertParameterAt(p Parameter) error {
	if p.Subsystem == "" || p.Parameter == "" {
		return errors.New("subsystem and parameter are required")
	}
	_, err := db.Exec(
		`INSERT INTO telemetry (subsystem, parameter, value, timestamp) VALUES (?, ?, ?, ?)`,
		p.Subsystem, p.Parameter, p.Value, unixSeconds(p.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s/%s: %w", p.Subsystem, p.Parameter, err)
	}
	return nil
}

// Parameters returns the newest samples matching q, newest first.
func (db *DB) Parameters(q ParameterQuery) ([]Parameter, error) {
	var (
		where []string
		args  []interface{}
	)
	if q.Subsystem != "" {
		where = append(where, "subsystem = ?")
		args = append(args, q.Subsystem)
	}
	if q.Parameter != "" {
		where = append(where, "parameter = ?")
		args = append(args, q.Parameter)
	}
	if !q.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, unixSeconds(q.Since))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	query := "SELECT subsystem, parameter, value, timestamp FROM telemetry"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, telemetry_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	params := []Parameter{}
	for rows.Next() {
		var p Parameter
		var ts float64
		if err := rows.Scan(&p.Subsystem, &p.Parameter, &p.Value, &ts); err != nil {
			return nil, err
		}
		p.Timestamp = fromUnixSeconds(ts)
		params = append(params, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return params, nil
}

// ParameterNames lists the distinct parameters stored for subsystem.
func (db *DB) ParameterNames(subsystem string) ([]string, error) {
	rows, err := db.Query(
		`SELECT DISTINCT parameter FROM telemetry WHERE subsystem = ? ORDER BY parameter`,
		subsystem,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
