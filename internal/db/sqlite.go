package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	_ "modernc.org/sqlite"
)

const historyLimit = 20

type Database struct {
	*sql.DB
}

type HistoryMessage struct {
	Role     string
	Message  string
	UserName string
}

type RotationEvent struct {
	Message   string
	Timestamp string
}

func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	log.Println("Database connection successful")
	return &Database{db}, nil
}

func (db *Database) InitSchema(ctx context.Context) error {
	userQuery := `
    CREATE TABLE IF NOT EXISTS users (
        jid TEXT PRIMARY KEY,
        lang TEXT NOT NULL DEFAULT 'en'
    );`
	historyQuery := `
    CREATE TABLE IF NOT EXISTS conversation_history (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        jid TEXT NOT NULL,
        role TEXT NOT NULL,
        message TEXT NOT NULL,
        user_name TEXT,
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
    );`
	rotationQuery := `
    CREATE TABLE IF NOT EXISTS rotation_events (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        message TEXT NOT NULL,
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
    );`

	if _, err := db.ExecContext(ctx, userQuery); err != nil {
		return fmt.Errorf("create users schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, historyQuery); err != nil {
		return fmt.Errorf("create history schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, rotationQuery); err != nil {
		return fmt.Errorf("create rotation schema: %w", err)
	}

	log.Println("Database schema initialized")
	return nil
}

func (db *Database) AddMessageToHistory(jid, role, message, userName string) {
	insertQuery := `INSERT INTO conversation_history (jid, role, message, user_name) VALUES (?, ?, ?, ?)`
	_, err := db.Exec(insertQuery, jid, role, message, userName)
	if err != nil {
		log.Printf("Failed to add message to history for %s: %v", jid, err)
	}
}

// GetConversationHistory returns the latest messages for jid, oldest first.
func (db *Database) GetConversationHistory(jid string) []HistoryMessage {
	query := `
    SELECT role, message, user_name FROM (
        SELECT id, role, message, user_name FROM conversation_history
        WHERE jid = ?
        ORDER BY id DESC
        LIMIT ?
    ) AS recent_messages ORDER BY id ASC;`

	rows, err := db.Query(query, jid, historyLimit)
	if err != nil {
		log.Printf("Failed to get conversation history for %s: %v", jid, err)
		return nil
	}
	defer rows.Close()

	var history []HistoryMessage
	for rows.Next() {
		var h HistoryMessage
		var userName sql.NullString
		if err := rows.Scan(&h.Role, &h.Message, &userName); err != nil {
			log.Printf("Failed to scan history row for %s: %v", jid, err)
			continue
		}
		h.UserName = userName.String
		history = append(history, h)
	}
	return history
}

func (db *Database) DeleteConversationHistory(jid string) error {
	query := `DELETE FROM conversation_history WHERE jid = ?`
	_, err := db.Exec(query, jid)
	if err != nil {
		log.Printf("Failed to delete history for %s: %v", jid, err)
	} else {
		log.Printf("Successfully deleted conversation history for %s", jid)
	}
	return err
}

func (db *Database) GetUserLang(jid string) string {
	var lang string
	query := `SELECT lang FROM users WHERE jid = ?`
	err := db.QueryRow(query, jid).Scan(&lang)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("Failed to get user lang for %s: %v", jid, err)
		}
		return "en"
	}
	return lang
}

func (db *Database) SetUserLang(jid, lang string) error {
	query := `INSERT INTO users (jid, lang) VALUES (?, ?) ON CONFLICT(jid) DO UPDATE SET lang = excluded.lang;`
	_, err := db.Exec(query, jid, lang)
	if err != nil {
		log.Printf("Failed to set user lang for %s: %v", jid, err)
	}
	return err
}

// Append stores a rotation log line. Failures are ignored so that logging
// never breaks a Gemini request.
func (db *Database) Append(line string) {
	_, _ = db.Exec(`INSERT INTO rotation_events (message) VALUES (?)`, line)
}

func (db *Database) RecentRotationEvents(limit int) ([]RotationEvent, error) {
	rows, err := db.Query(`SELECT message, timestamp FROM rotation_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []RotationEvent
	for rows.Next() {
		var e RotationEvent
		if err := rows.Scan(&e.Message, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
