package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webordinary/router/internal/domain"
)

func validWork() domain.WorkMessage {
	return domain.WorkMessage{
		Type:        domain.MessageTypeWork,
		SessionID:   "sess-1",
		ProjectID:   "amelia",
		UserID:      "scott",
		Instruction: "update homepage",
		RepoURL:     "https://example.com/amelia.git",
		Timestamp:   time.Now(),
	}
}

func TestWorkMessage_Valid(t *testing.T) {
	require.NoError(t, WorkMessage(validWork()))
}

func TestWorkMessage_MissingSessionID(t *testing.T) {
	m := validWork()
	m.SessionID = ""
	require.Error(t, WorkMessage(m))
}

func TestWorkMessage_MissingTimestamp(t *testing.T) {
	m := validWork()
	m.Timestamp = time.Time{}
	require.Error(t, WorkMessage(m))
}

func TestWorkMessage_EmptyInstruction(t *testing.T) {
	m := validWork()
	m.Instruction = "  "
	require.Error(t, WorkMessage(m))
}

func TestWorkMessage_EmptyRepoURL(t *testing.T) {
	m := validWork()
	m.RepoURL = ""
	require.Error(t, WorkMessage(m))
}

func TestWorkMessage_RejectsUnknownSentinel(t *testing.T) {
	m := validWork()
	m.UserID = "unknown"
	err := WorkMessage(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test fixture")
}

func TestWorkMessage_RejectsTestTenantPrefix(t *testing.T) {
	m := validWork()
	m.ProjectID = "test-fixture"
	require.Error(t, WorkMessage(m))
}

func TestResponse(t *testing.T) {
	require.NoError(t, Response("cmd-1", true))
	require.Error(t, Response("", true))
	require.Error(t, Response("cmd-1", false))
}
