package db

import (
	"fmt"

	"parley/internal/models"
)

type SearchResult struct {
	Message models.Message `json:"message"`
	Snippet string         `json:"snippet"`
}

// SearchMessages runs a full-text search over message content, scoped to
// conversations in the given space.
func (d *Database) SearchMessages(space int, query string, limit int) ([]SearchResult, error) {
	rows, err := d.db.Query(`
		SELECT m.id, m.conversation_id, m.role, m.content, m.tokens, m.created_at,
		       snippet(messages_fts, 0, '<mark>', '</mark>', '...', 32)
		FROM messages_fts
		JOIN messages m ON m.rowid = messages_fts.rowid
		JOIN conversations c ON c.id = m.conversation_id
		WHERE messages_fts MATCH ? AND c.space = ?
		ORDER BY rank
		LIMIT ?`,
		query, space, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	results := make([]SearchResult, 0)
	for rows.Next() {
		var res SearchResult
		m := &res.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Tokens, &m.CreatedAt, &res.Snippet); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}
