// File path: internal/session/store.go
package session

import (
	"context"
	"errors"
	"time"
)

// Message roles accepted by the store.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultTestCaseConversation keys test cases produced outside a known thread.
const DefaultTestCaseConversation = "conv_default"

// MaxTestCaseTitle bounds the length of a test case title in runes.
const MaxTestCaseTitle = 200

var (
	// ErrNotFound is returned when a conversation or test case does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalid is returned when a record fails validation before it reaches
	// the database.
	ErrInvalid = errors.New("invalid record")
)

// Conversation is one requirement-to-testcases dialogue.
type Conversation struct {
	ID             int64     `json:"id" db:"id"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	Title          string    `json:"title" db:"title"`
	PBIRequirement string    `json:"pbi_requirement" db:"pbi_requirement"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Message is a single persisted turn within a conversation.
type Message struct {
	ID             int64     `json:"id" db:"id"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	Role           string    `json:"role" db:"role"`
	Content        string    `json:"content" db:"content"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// TestCase is a structured artifact saved by the agent's tool call.
type TestCase struct {
	ID             int64     `json:"id" db:"id"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	Title          string    `json:"title" db:"title"`
	Steps          string    `json:"steps" db:"steps"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// TestCaseInput carries the fields required to create a test case.
type TestCaseInput struct {
	Title string `json:"title"`
	Steps string `json:"steps"`
}

// TestCasePatch updates only the fields that are set.
type TestCasePatch struct {
	Title *string `json:"title,omitempty"`
	Steps *string `json:"steps,omitempty"`
}

// ConversationStore persists conversations and their ordered message history.
type ConversationStore interface {
	CreateConversation(ctx context.Context, title, requirement string) (Conversation, error)
	EnsureConversation(ctx context.Context, conversationID, title, requirement string) (Conversation, bool, error)
	ListConversations(ctx context.Context) ([]Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (Conversation, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	AddMessage(ctx context.Context, conversationID, role, content string) (Message, error)
	Messages(ctx context.Context, conversationID string) ([]Message, error)
}

// TestCaseStore persists test cases produced by the agent.
type TestCaseStore interface {
	CreateTestCases(ctx context.Context, conversationID string, inputs []TestCaseInput) ([]TestCase, error)
	ListTestCases(ctx context.Context) ([]TestCase, error)
	GetTestCase(ctx context.Context, id int64) (TestCase, error)
	UpdateTestCase(ctx context.Context, id int64, patch TestCasePatch) (TestCase, error)
	DeleteTestCase(ctx context.Context, id int64) error
	SearchTestCases(ctx context.Context, keyword string) ([]TestCase, error)
}

// Store is the full session store surface served by the API.
type Store interface {
	ConversationStore
	TestCaseStore
}

// ValidRole reports whether role may be stored on a message.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}
