package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"parley/internal/models"
)

const maxTitleRunes = 60

// DeriveTitle turns free text into a conversation title: whitespace is
// collapsed to single spaces and anything past 60 runes is cut to the
// first 57 plus an ellipsis marker.
func DeriveTitle(text string) string {
	title := strings.Join(strings.Fields(text), " ")
	runes := []rune(title)
	if len(runes) > maxTitleRunes {
		return string(runes[:maxTitleRunes-3]) + "..."
	}
	return title
}

func (d *Database) CreateConversation(space int, title string) (*models.Conversation, error) {
	if strings.TrimSpace(title) == "" {
		title = models.DefaultTitle
	}

	now := time.Now().UTC()
	conv := &models.Conversation{
		ID:        uuid.NewString(),
		Space:     space,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := d.db.Exec(
		"INSERT INTO conversations (id, space, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		conv.ID, conv.Space, conv.Title, conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// GetConversation returns nil without error when no such conversation
// exists; callers translate that into a not-found response.
func (d *Database) GetConversation(id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := d.db.QueryRow(
		"SELECT id, space, title, created_at, updated_at FROM conversations WHERE id = ?",
		id,
	).Scan(&conv.ID, &conv.Space, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

func (d *Database) ListConversations(space int) ([]models.Conversation, error) {
	rows, err := d.db.Query(
		"SELECT id, space, title, created_at, updated_at FROM conversations WHERE space = ? ORDER BY updated_at DESC",
		space,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.Space, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// UpdateTitleIfDefault writes the derived title only while the stored
// title is still the default placeholder. Unknown ids and already-titled
// conversations are silent no-ops.
func (d *Database) UpdateTitleIfDefault(id, text string) error {
	_, err := d.db.Exec(
		"UPDATE conversations SET title = ? WHERE id = ? AND title = ?",
		DeriveTitle(text), id, models.DefaultTitle,
	)
	if err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	return nil
}

// DeleteConversation removes the conversation and all of its messages in
// one transaction. Reports whether a conversation row was removed.
func (d *Database) DeleteConversation(id string) (bool, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
		return false, fmt.Errorf("failed to delete messages: %w", err)
	}

	res, err := tx.Exec("DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return affected > 0, nil
}
