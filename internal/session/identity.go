// File path: internal/session/identity.go
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	conversationPrefix = "conv_"
	tempThreadPrefix   = "temp_"
	conversationHexLen = 12
)

// ResolveThreadID returns explicit unchanged when it is set, otherwise a
// synthetic "temp_<unix seconds>" id. Two calls in the same second yield the
// same synthetic id.
func ResolveThreadID(explicit string, now func() time.Time) string {
	if strings.TrimSpace(explicit) != "" {
		return explicit
	}
	if now == nil {
		now = time.Now
	}
	return fmt.Sprintf("%s%d", tempThreadPrefix, now().Unix())
}

// AllocateConversationID returns a fresh "conv_" id carrying 48 random bits.
// Uniqueness is enforced by the store, not checked here.
func AllocateConversationID() string {
	id := uuid.New()
	hex := strings.ReplaceAll(id.String(), "-", "")
	return conversationPrefix + hex[:conversationHexLen]
}

// IsTemporaryThread reports whether id was synthesized by ResolveThreadID.
func IsTemporaryThread(id string) bool {
	return strings.HasPrefix(id, tempThreadPrefix)
}
