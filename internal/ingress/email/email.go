// Package email builds a domain.IngressMsg from an inbound mail
// message's headers and body. It decodes only; it performs no network
// I/O and knows nothing about queues or storage.
package email

import (
	"encoding/json"
	"strings"

	"github.com/webordinary/router/internal/domain"
)

// Message is the wire shape of an inbound email, as handed to the
// ingress endpoint by a mail-receiving gateway (e.g. an SES/SNS
// notification already unwrapped to its headers and body).
type Message struct {
	From        string `json:"from"`
	To          string `json:"to"`
	MessageID   string `json:"messageId"`
	InReplyTo   string `json:"inReplyTo"`
	References  string `json:"references"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	SessionID   string `json:"sessionId"`
	ThreadIDRaw string `json:"threadId"`
}

// Decode builds an IngressMsg from the raw JSON body of a
// POST /ingress/email request.
func Decode(raw []byte) (domain.IngressMsg, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return domain.IngressMsg{}, err
	}
	return domain.IngressMsg{
		Source:               domain.TransportEmail,
		SessionID:            m.SessionID,
		SenderIdentity:       normalizeAddress(m.From),
		Instruction:          m.Body,
		TransportThreadToken: threadToken(m),
		ThreadIDRaw:          m.ThreadIDRaw,
		From:                 normalizeAddress(m.From),
		To:                   normalizeAddress(m.To),
		Raw:                  json.RawMessage(raw),
	}, nil
}

// threadToken prefers the first entry of References, then
// In-Reply-To, then the message's own Message-ID, matching RFC 5322
// conversation-threading conventions.
func threadToken(m Message) string {
	if refs := strings.Fields(m.References); len(refs) > 0 {
		return refs[0]
	}
	if m.InReplyTo != "" {
		return m.InReplyTo
	}
	return m.MessageID
}

func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
