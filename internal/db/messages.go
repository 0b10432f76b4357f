package db

import (
	"encoding/hex"
	"fmt"
	"time"
)

// RadioMessage is one logged message that crossed the radio link.
type RadioMessage struct {
	ID         int64     `json:"id"`
	Direction  string    `json:"direction"`
	Length     int       `json:"length"`
	PayloadHex string    `json:"payload_hex"`
	Timestamp  time.Time `json:"timestamp"`
}

// RecordMessage logs payload in the given direction ("uplink" or
// "downlink").
func (db *DB) RecordMessage(direction string, payload []byte) error {
	_, err := db.Exec(
		`INSERT INTO radio_messages (direction, length, payload_hex, timestamp) VALUES (?, ?, ?, ?)`,
		direction, len(payload), hex.EncodeToString(payload), unixSeconds(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s message: %w", direction, err)
	}
	return nil
}

// Messages returns the most recent logged messages, newest first.
func (db *DB) Messages(limit int) ([]RadioMessage, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	rows, err := db.Query(
		`SELECT message_id, direction, length, payload_hex, timestamp
		 FROM radio_messages ORDER BY timestamp DESC, message_id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []RadioMessage{}
	for rows.Next() {
		var m RadioMessage
		var ts float64
		if err := rows.Scan(&m.ID, &m.Direction, &m.Length, &m.PayloadHex, &ts); err != nil {
			return nil, err
		}
		m.Timestamp = fromUnixSeconds(ts)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

// PruneMessages deletes logged messages older than before and returns how
// many were removed.
func (db *DB) PruneMessages(before time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM radio_messages WHERE timestamp < ?`, unixSeconds(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
