// File path: internal/sqlite/conversations.go
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nicodishanthj/testcase_agent/internal/session"
)

const conversationColumns = `id, conversation_id, title, pbi_requirement, created_at, updated_at`

// CreateConversation inserts a new requests row under a freshly allocated
// conversation id.
func (s *Store) CreateConversation(ctx context.Context, title, requirement string) (session.Conversation, error) {
	if err := s.ensureReady(); err != nil {
		return session.Conversation{}, err
	}
	title, err := validateConversation(title, requirement)
	if err != nil {
		return session.Conversation{}, err
	}
	conversationID := session.AllocateConversationID()
	var created session.Conversation
	err = withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		inserted, err := s.insertConversation(ctx, tx, conversationID, title, requirement)
		if err != nil {
			return err
		}
		if !inserted {
			return fmt.Errorf("conversation id %s already allocated", conversationID)
		}
		created, err = getConversation(ctx, tx, conversationID)
		return err
	})
	if err != nil {
		return session.Conversation{}, err
	}
	return created, nil
}

// EnsureConversation returns the conversation stored under conversationID,
// creating it from title and requirement when it does not exist yet. The
// flag reports whether a row was inserted.
func (s *Store) EnsureConversation(ctx context.Context, conversationID, title, requirement string) (session.Conversation, bool, error) {
	if err := s.ensureReady(); err != nil {
		return session.Conversation{}, false, err
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return session.Conversation{}, false, fmt.Errorf("conversation_id required: %w", session.ErrInvalid)
	}
	title, err := validateConversation(title, requirement)
	if err != nil {
		return session.Conversation{}, false, err
	}
	var (
		conversation session.Conversation
		inserted     bool
	)
	err = withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		if inserted, err = s.insertConversation(ctx, tx, conversationID, title, requirement); err != nil {
			return err
		}
		conversation, err = getConversation(ctx, tx, conversationID)
		return err
	})
	if err != nil {
		return session.Conversation{}, false, err
	}
	return conversation, inserted, nil
}

func validateConversation(title, requirement string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" || strings.TrimSpace(requirement) == "" {
		return "", fmt.Errorf("title and pbi_requirement required: %w", session.ErrInvalid)
	}
	return title, nil
}

// insertConversation adds a requests row unless conversationID is taken.
func (s *Store) insertConversation(ctx context.Context, tx *sqlx.Tx, conversationID, title, requirement string) (bool, error) {
	now := formatTime(s.timestamp())
	res, err := tx.ExecContext(ctx, `INSERT INTO requests(conversation_id, title, pbi_requirement, created_at, updated_at)
                        VALUES(?, ?, ?, ?, ?) ON CONFLICT(conversation_id) DO NOTHING`, conversationID, title, requirement, now, now)
	if err != nil {
		return false, fmt.Errorf("insert request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert request rows: %w", err)
	}
	return affected == 1, nil
}

// ListConversations returns every conversation, most recently updated first.
func (s *Store) ListConversations(ctx context.Context) ([]session.Conversation, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	conversations := []session.Conversation{}
	if err := s.db.SelectContext(ctx, &conversations, `SELECT `+conversationColumns+` FROM requests ORDER BY updated_at DESC, id DESC`); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return conversations, nil
}

// GetConversation loads one conversation by its public id.
func (s *Store) GetConversation(ctx context.Context, conversationID string) (session.Conversation, error) {
	if err := s.ensureReady(); err != nil {
		return session.Conversation{}, err
	}
	return getConversation(ctx, s.db, conversationID)
}

func getConversation(ctx context.Context, q sqlx.QueryerContext, conversationID string) (session.Conversation, error) {
	var conversation session.Conversation
	err := sqlx.GetContext(ctx, q, &conversation, `SELECT `+conversationColumns+` FROM requests WHERE conversation_id = ?`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Conversation{}, fmt.Errorf("conversation %s: %w", conversationID, session.ErrNotFound)
	}
	if err != nil {
		return session.Conversation{}, fmt.Errorf("load request: %w", err)
	}
	return conversation, nil
}

// DeleteConversation removes the conversation's messages and then the
// conversation itself in one transaction.
func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM requests WHERE conversation_id = ?`, conversationID)
		if err != nil {
			return fmt.Errorf("delete request: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete request rows: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("conversation %s: %w", conversationID, session.ErrNotFound)
		}
		return nil
	})
}

// AddMessage appends a message and bumps the owning conversation's
// updated_at in the same transaction. updated_at strictly advances even if
// the clock does not.
func (s *Store) AddMessage(ctx context.Context, conversationID, role, content string) (session.Message, error) {
	if err := s.ensureReady(); err != nil {
		return session.Message{}, err
	}
	if !session.ValidRole(role) {
		return session.Message{}, fmt.Errorf("role %q: %w", role, session.ErrInvalid)
	}
	var created session.Message
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		conversation, err := getConversation(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		now := s.timestamp()
		res, err := tx.ExecContext(ctx, `INSERT INTO messages(conversation_id, role, content, created_at) VALUES(?, ?, ?, ?)`,
			conversationID, role, content, formatTime(now))
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("message id: %w", err)
		}
		updated := now
		if !updated.After(conversation.UpdatedAt) {
			updated = conversation.UpdatedAt.Add(time.Microsecond)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE requests SET updated_at = ? WHERE conversation_id = ?`, formatTime(updated), conversationID); err != nil {
			return fmt.Errorf("touch request: %w", err)
		}
		if err := tx.GetContext(ctx, &created, `SELECT id, conversation_id, role, content, created_at FROM messages WHERE id = ?`, id); err != nil {
			return fmt.Errorf("load message: %w", err)
		}
		return nil
	})
	if err != nil {
		return session.Message{}, err
	}
	return created, nil
}

// Messages returns the conversation history in chronological order.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]session.Message, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	messages := []session.Message{}
	err := s.db.SelectContext(ctx, &messages, `SELECT id, conversation_id, role, content, created_at
                FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}
