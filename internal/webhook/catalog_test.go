package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRegistered(t *testing.T) {
	assert.True(t, IsRegistered(EventUserCreated))
	assert.True(t, IsRegistered(EventMediaProcessed))
	assert.True(t, IsRegistered(EventTestPing))

	assert.False(t, IsRegistered("user.renamed"))
	assert.False(t, IsRegistered(""))
	assert.False(t, IsRegistered("USER.CREATED"))
}

func TestEvents_MatchesCatalog(t *testing.T) {
	listed := Events()
	assert.Len(t, listed, len(catalog))

	seen := make(map[string]bool, len(listed))
	for _, ev := range listed {
		assert.True(t, IsRegistered(ev), "listed event %q missing from catalog", ev)
		assert.False(t, seen[ev], "event %q listed twice", ev)
		seen[ev] = true
	}
}
