package model

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const (
	NotificationReminder   = "statement_reminder"
	NotificationSyncFailed = "sync_failed"
	NotificationSystem     = "system"
)

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

func CreateNotification(db *sql.DB, userID, ntype, title, body string) (*Notification, error) {
	n := &Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      ntype,
		Title:     title,
		Body:      body,
		CreatedAt: time.Now(),
	}
	_, err := db.Exec(
		`INSERT INTO notifications (id, user_id, type, title, body, read, created_at) VALUES (?, ?, ?, ?, ?, FALSE, ?)`,
		n.ID, n.UserID, n.Type, n.Title, n.Body, n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func ListNotificationsByUser(db *sql.DB, userID string, unreadOnly bool) ([]Notification, error) {
	query := `SELECT id, user_id, type, title, body, read, created_at FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND read = FALSE`
	}
	query += ` ORDER BY created_at DESC LIMIT 100`

	rows, err := db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifs := []Notification{}
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifs = append(notifs, n)
	}
	return notifs, rows.Err()
}

func CountUnreadNotifications(db *sql.DB, userID string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read = FALSE`, userID).Scan(&n)
	return n, err
}

func MarkNotificationRead(db *sql.DB, id, userID string) error {
	res, err := db.Exec(`UPDATE notifications SET read = TRUE WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func DeleteNotification(db *sql.DB, id, userID string) error {
	res, err := db.Exec(`DELETE FROM notifications WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func MarkAllNotificationsRead(db *sql.DB, userID string) error {
	_, err := db.Exec(`UPDATE notifications SET read = TRUE WHERE user_id = ?`, userID)
	return err
}

// MarkReminderSent records that a reminder of the given kind went out on the
// given day. Returns false when it was already recorded.
func MarkReminderSent(db *sql.DB, day, kind string) (bool, error) {
	res, err := db.Exec(`INSERT OR IGNORE INTO reminder_log (day, kind, sent_at) VALUES (?, ?, ?)`, day, kind, time.Now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
