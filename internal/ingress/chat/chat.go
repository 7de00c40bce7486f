// Package chat builds a domain.IngressMsg from an inbound chat
// platform callback. It decodes only; it performs no network I/O and
// knows nothing about queues or storage.
package chat

import (
	"encoding/json"

	"github.com/webordinary/router/internal/domain"
)

// Message is the wire shape of an inbound chat event, as handed to
// the ingress endpoint by a chat platform's webhook callback.
type Message struct {
	ThreadID  string `json:"threadId"`
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	Text      string `json:"text"`
	SessionID string `json:"sessionId"`
}

// Decode builds an IngressMsg from the raw JSON body of a
// POST /ingress/chat request.
func Decode(raw []byte) (domain.IngressMsg, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return domain.IngressMsg{}, err
	}
	token := m.ThreadID
	if token == "" {
		token = m.MessageID
	}
	return domain.IngressMsg{
		Source:               domain.TransportChat,
		SessionID:            m.SessionID,
		SenderIdentity:       m.UserID,
		Instruction:          m.Text,
		TransportThreadToken: token,
		Raw:                  json.RawMessage(raw),
	}, nil
}
