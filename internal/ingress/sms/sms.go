// Package sms builds a domain.IngressMsg from an inbound SMS
// notification. It decodes only; it performs no network I/O and knows
// nothing about queues or storage.
package sms

import (
	"encoding/json"

	"github.com/webordinary/router/internal/domain"
)

// Message is the wire shape of an inbound SMS, as handed to the
// ingress endpoint by a messaging provider's webhook callback.
type Message struct {
	From           string `json:"from"`
	To             string `json:"to"`
	Body           string `json:"body"`
	ConversationID string `json:"conversationId"`
	SessionID      string `json:"sessionId"`
}

// Decode builds an IngressMsg from the raw JSON body of a
// POST /ingress/sms request.
func Decode(raw []byte) (domain.IngressMsg, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return domain.IngressMsg{}, err
	}
	return domain.IngressMsg{
		Source:               domain.TransportSMS,
		SessionID:            m.SessionID,
		SenderIdentity:       m.From,
		Instruction:          m.Body,
		TransportThreadToken: m.ConversationID,
		From:                 m.From,
		To:                   m.To,
		Raw:                  json.RawMessage(raw),
	}, nil
}
