// File path: internal/session/identity_test.go
package session

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveThreadIDKeepsExplicitValue(t *testing.T) {
	assert.Equal(t, "conv_abc", ResolveThreadID("conv_abc", nil))
	assert.Equal(t, " conv_abc ", ResolveThreadID(" conv_abc ", nil))
}

func TestResolveThreadIDSynthesizesTemporaryID(t *testing.T) {
	fixed := time.Unix(1700000000, 250)
	now := func() time.Time { return fixed }

	first := ResolveThreadID("", now)
	second := ResolveThreadID("   ", now)

	assert.Equal(t, "temp_1700000000", first)
	assert.Equal(t, first, second, "same second yields the same synthetic id")
	assert.True(t, IsTemporaryThread(first))
}

func TestAllocateConversationIDFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^conv_[0-9a-f]{12}$`)
	id := AllocateConversationID()
	assert.Regexp(t, pattern, id)
	assert.False(t, IsTemporaryThread(id))
}

func TestAllocateConversationIDIsCollisionResistant(t *testing.T) {
	const n = 10000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		id := AllocateConversationID()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s after %d allocations", id, i)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func TestValidRole(t *testing.T) {
	assert.True(t, ValidRole(RoleUser))
	assert.True(t, ValidRole(RoleAssistant))
	assert.False(t, ValidRole("system"))
	assert.False(t, ValidRole(""))
}
