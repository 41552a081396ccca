package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// LogSubmission records a selection or push sent to the backend.
func (db *DB) LogSubmission(kind string, itemIDs []string, ok bool, message string) (int64, error) {
	if itemIDs == nil {
		itemIDs = []string{}
	}
	ids, err := json.Marshal(itemIDs)
	if err != nil {
		return 0, fmt.Errorf("encoding item ids: %w", err)
	}
	result, err := db.conn.Exec(
		"INSERT INTO submissions (kind, item_ids, ok, message) VALUES (?, ?, ?, ?)",
		kind, string(ids), ok, message,
	)
	if err != nil {
		return 0, fmt.Errorf("logging submission: %w", err)
	}
	return result.LastInsertId()
}

// GetRecentSubmissions returns up to limit submissions, newest first.
func (db *DB) GetRecentSubmissions(limit int) ([]Submission, error) {
	rows, err := db.conn.Query(
		`SELECT id, kind, item_ids, ok, message, created_at
		FROM submissions ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []Submission
	for rows.Next() {
		var s Submission
		var ids string
		if err := rows.Scan(&s.ID, &s.Kind, &ids, &s.OK, &s.Message, &s.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(ids), &s.ItemIDs); err != nil {
			return nil, fmt.Errorf("decoding item ids of submission %d: %w", s.ID, err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// GetStats returns aggregate archive statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM issues", &s.Issues},
		{"SELECT COUNT(*) FROM submissions", &s.Submissions},
		{"SELECT COUNT(*) FROM submissions WHERE ok = 0", &s.FailedSubmissions},
		{"SELECT COUNT(*) FROM issue_deliveries", &s.Deliveries},
		{"SELECT COUNT(*) FROM issue_deliveries WHERE ok = 0", &s.FailedDeliveries},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	err := db.conn.QueryRow("SELECT month_key FROM issues ORDER BY generated_at DESC, id DESC LIMIT 1").Scan(&s.LastIssueMonth)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	return s, nil
}
