// File path: internal/sqlite/testcases.go
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"

	"github.com/nicodishanthj/testcase_agent/internal/session"
)

const testCaseColumns = `id, conversation_id, title, steps, created_at, updated_at`

func validateTestCase(title, steps string) error {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(steps) == "" {
		return fmt.Errorf("title and steps required: %w", session.ErrInvalid)
	}
	if utf8.RuneCountInString(title) > session.MaxTestCaseTitle {
		return fmt.Errorf("title longer than %d characters: %w", session.MaxTestCaseTitle, session.ErrInvalid)
	}
	return nil
}

// CreateTestCases stores inputs under conversationID in one transaction.
// An empty conversationID is stored as the default sentinel.
func (s *Store) CreateTestCases(ctx context.Context, conversationID string, inputs []session.TestCaseInput) ([]session.TestCase, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no test cases: %w", session.ErrInvalid)
	}
	for i, in := range inputs {
		if err := validateTestCase(in.Title, in.Steps); err != nil {
			return nil, fmt.Errorf("test case %d: %w", i+1, err)
		}
	}
	if strings.TrimSpace(conversationID) == "" {
		conversationID = session.DefaultTestCaseConversation
	}
	now := formatTime(s.timestamp())
	created := make([]session.TestCase, 0, len(inputs))
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, in := range inputs {
			res, err := tx.ExecContext(ctx, `INSERT INTO test_cases(conversation_id, title, steps, created_at, updated_at) VALUES(?, ?, ?, ?, ?)`,
				conversationID, strings.TrimSpace(in.Title), in.Steps, now, now)
			if err != nil {
				return fmt.Errorf("insert test case: %w", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("test case id: %w", err)
			}
			var tc session.TestCase
			if err := tx.GetContext(ctx, &tc, `SELECT `+testCaseColumns+` FROM test_cases WHERE id = ?`, id); err != nil {
				return fmt.Errorf("load test case: %w", err)
			}
			created = append(created, tc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ListTestCases returns all test cases, newest first.
func (s *Store) ListTestCases(ctx context.Context) ([]session.TestCase, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	cases := []session.TestCase{}
	if err := s.db.SelectContext(ctx, &cases, `SELECT `+testCaseColumns+` FROM test_cases ORDER BY created_at DESC, id DESC`); err != nil {
		return nil, fmt.Errorf("list test cases: %w", err)
	}
	return cases, nil
}

// GetTestCase loads a test case by id.
func (s *Store) GetTestCase(ctx context.Context, id int64) (session.TestCase, error) {
	if err := s.ensureReady(); err != nil {
		return session.TestCase{}, err
	}
	return getTestCase(ctx, s.db, id)
}

func getTestCase(ctx context.Context, q sqlx.QueryerContext, id int64) (session.TestCase, error) {
	var tc session.TestCase
	err := sqlx.GetContext(ctx, q, &tc, `SELECT `+testCaseColumns+` FROM test_cases WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return session.TestCase{}, fmt.Errorf("test case %d: %w", id, session.ErrNotFound)
	}
	if err != nil {
		return session.TestCase{}, fmt.Errorf("load test case: %w", err)
	}
	return tc, nil
}

// UpdateTestCase applies the set fields of patch and returns the result.
func (s *Store) UpdateTestCase(ctx context.Context, id int64, patch session.TestCasePatch) (session.TestCase, error) {
	if err := s.ensureReady(); err != nil {
		return session.TestCase{}, err
	}
	var updated session.TestCase
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		current, err := getTestCase(ctx, tx, id)
		if err != nil {
			return err
		}
		if patch.Title != nil {
			current.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Steps != nil {
			current.Steps = *patch.Steps
		}
		if err := validateTestCase(current.Title, current.Steps); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE test_cases SET title = ?, steps = ?, updated_at = ? WHERE id = ?`,
			current.Title, current.Steps, formatTime(s.timestamp()), id); err != nil {
			return fmt.Errorf("update test case: %w", err)
		}
		updated, err = getTestCase(ctx, tx, id)
		return err
	})
	if err != nil {
		return session.TestCase{}, err
	}
	return updated, nil
}

// DeleteTestCase removes a single test case.
func (s *Store) DeleteTestCase(ctx context.Context, id int64) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM test_cases WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete test case: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete test case rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("test case %d: %w", id, session.ErrNotFound)
	}
	return nil
}

// SearchTestCases matches keyword case-insensitively against title and steps.
func (s *Store) SearchTestCases(ctx context.Context, keyword string) ([]session.TestCase, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("keyword required: %w", session.ErrInvalid)
	}
	pattern := "%" + escapeLike(keyword) + "%"
	cases := []session.TestCase{}
	err := s.db.SelectContext(ctx, &cases, `SELECT `+testCaseColumns+` FROM test_cases
                WHERE title LIKE ? ESCAPE '\' OR steps LIKE ? ESCAPE '\'
                ORDER BY created_at DESC, id DESC`, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("search test cases: %w", err)
	}
	return cases, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
