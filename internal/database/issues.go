package database

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

const issueColumns = "id, public_id, month_key, message, html, movie_count, show_count, generated_at"

func scanIssue(row interface{ Scan(...any) error }) (*Issue, error) {
	var is Issue
	if err := row.Scan(&is.ID, &is.PublicID, &is.MonthKey, &is.Message, &is.HTML,
		&is.MovieCount, &is.ShowCount, &is.GeneratedAt); err != nil {
		return nil, err
	}
	return &is, nil
}

// InsertIssue archives a generated newsletter under a new public id.
func (db *DB) InsertIssue(monthKey, message, html string, movieCount, showCount int) (*Issue, error) {
	publicID := uuid.NewString()
	_, err := db.conn.Exec(
		`INSERT INTO issues (public_id, month_key, message, html, movie_count, show_count)
		VALUES (?, ?, ?, ?, ?, ?)`,
		publicID, monthKey, message, html, movieCount, showCount,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting issue: %w", err)
	}
	return db.GetIssue(publicID)
}

// GetIssue returns the issue with the given public id, or nil.
func (db *DB) GetIssue(publicID string) (*Issue, error) {
	row := db.conn.QueryRow("SELECT "+issueColumns+" FROM issues WHERE public_id = ?", publicID)
	is, err := scanIssue(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return is, err
}

// GetAllIssues returns all issues, newest first. The html column is loaded
// too; callers listing many issues only read the summary fields.
func (db *DB) GetAllIssues() ([]Issue, error) {
	rows, err := db.conn.Query("SELECT " + issueColumns + " FROM issues ORDER BY generated_at DESC, id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var issues []Issue
	for rows.Next() {
		is, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, *is)
	}
	return issues, rows.Err()
}

// GetIssuesForMonth returns the issues generated for monthKey, newest first.
func (db *DB) GetIssuesForMonth(monthKey string) ([]Issue, error) {
	rows, err := db.conn.Query(
		"SELECT "+issueColumns+" FROM issues WHERE month_key = ? ORDER BY generated_at DESC, id DESC",
		monthKey,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var issues []Issue
	for rows.Next() {
		is, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, *is)
	}
	return issues, rows.Err()
}

// InsertDelivery records the outcome of sending an issue to target.
func (db *DB) InsertDelivery(issueID int64, target string, ok bool, message string) (int64, error) {
	result, err := db.conn.Exec(
		"INSERT INTO issue_deliveries (issue_id, target, ok, message) VALUES (?, ?, ?, ?)",
		issueID, target, ok, message,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetDeliveries returns the deliveries of an issue in the order they ran.
func (db *DB) GetDeliveries(issueID int64) ([]Delivery, error) {
	rows, err := db.conn.Query(
		`SELECT id, issue_id, target, ok, message, delivered_at
		FROM issue_deliveries WHERE issue_id = ? ORDER BY id`, issueID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.IssueID, &d.Target, &d.OK, &d.Message, &d.DeliveredAt); err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}
