package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webordinary/router/internal/domain"
)

func TestDecode_PrefersReferencesHead(t *testing.T) {
	raw := []byte(`{
		"from": "Amelia@Example.com",
		"to": "bot@webordinary.app",
		"messageId": "<msg-3@example.com>",
		"inReplyTo": "<msg-2@example.com>",
		"references": "<msg-1@example.com> <msg-2@example.com>",
		"body": "please redeploy"
	}`)

	msg, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, domain.TransportEmail, msg.Source)
	assert.Equal(t, "amelia@example.com", msg.SenderIdentity)
	assert.Equal(t, "<msg-1@example.com>", msg.TransportThreadToken)
	assert.Equal(t, "please redeploy", msg.Instruction)
}

func TestDecode_FallsBackToInReplyToThenMessageID(t *testing.T) {
	withInReplyTo, err := Decode([]byte(`{"from":"a@x.com","inReplyTo":"<m2@x.com>","messageId":"<m3@x.com>"}`))
	require.NoError(t, err)
	assert.Equal(t, "<m2@x.com>", withInReplyTo.TransportThreadToken)

	onlyMessageID, err := Decode([]byte(`{"from":"a@x.com","messageId":"<m3@x.com>"}`))
	require.NoError(t, err)
	assert.Equal(t, "<m3@x.com>", onlyMessageID.TransportThreadToken)
}

func TestDecode_InvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)
}
