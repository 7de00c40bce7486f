// Package threading extracts a stable, opaque threadId from an ingress
// message. Extraction is a pure function of the message: no I/O, never
// fails, and never leaks the raw transport identifier downstream.
package threading

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/webordinary/router/internal/domain"
)

// idLength is the length of every hashed threadId. Fallback ids are
// longer: base36 milliseconds plus four random characters.
const idLength = 8

// Extract returns the threadId for msg. It never returns an empty
// string: messages without a usable continuity token get a fresh
// fallback identifier.
func Extract(msg domain.IngressMsg) string {
	switch msg.Source {
	case domain.TransportEmail:
		return extractEmail(msg)
	case domain.TransportSMS:
		return extractSMS(msg)
	case domain.TransportChat:
		return extractChat(msg)
	default:
		return fallback()
	}
}

// extractEmail prefers References, then In-Reply-To, then the current
// Message-ID. TransportThreadToken is expected to already hold
// whichever of those the adapter selected (first entry of References
// if multiple are present), with angle brackets intact or stripped —
// either is accepted here.
func extractEmail(msg domain.IngressMsg) string {
	token := strings.TrimSpace(msg.TransportThreadToken)
	if token == "" {
		return fallback()
	}
	return hashToken(stripAngleBrackets(token))
}

// extractSMS hashes the provider's conversation identifier when given
// one; otherwise it hashes the canonicalized from/to pair so either
// direction of the conversation yields the same threadId.
func extractSMS(msg domain.IngressMsg) string {
	if token := strings.TrimSpace(msg.TransportThreadToken); token != "" {
		return hashToken(token)
	}
	from, to := msg.From, msg.To
	if from == "" || to == "" {
		return fallback()
	}
	lo, hi := from, to
	if hi < lo {
		lo, hi = hi, lo
	}
	return hashToken(lo + ":" + hi)
}

// extractChat hashes the chat token, which the chat adapter fills with
// the transport-provided threadId or, failing that, the provider's
// messageId. With no token it synthesizes a fallback id.
func extractChat(msg domain.IngressMsg) string {
	if token := strings.TrimSpace(msg.TransportThreadToken); token != "" {
		return hashToken(token)
	}
	return fallback()
}

func stripAngleBrackets(s string) string {
	s = strings.TrimPrefix(s, "<")
	s = strings.TrimSuffix(s, ">")
	return s
}

// hashToken produces the canonical 8-character identifier: SHA-256 of
// the token, base64url-encoded, truncated to idLength characters.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	encoded := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(sum[:])
	if len(encoded) < idLength {
		return encoded
	}
	return encoded[:idLength]
}

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// fallback synthesizes a new threadId for conversations with no native
// continuity token: base36(unixMillis) + 4 random base36 characters.
func fallback() string {
	millis := strconv.FormatInt(time.Now().UnixMilli(), 36)
	suffix := make([]byte, 4)
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure is effectively unreachable on supported
		// platforms; fall back to a timestamp-derived suffix rather
		// than panicking in a pure, must-not-fail function.
		for i := range suffix {
			suffix[i] = base36Alphabet[(time.Now().Nanosecond()+i)%len(base36Alphabet)]
		}
	} else {
		for i, b := range buf {
			suffix[i] = base36Alphabet[int(b)%len(base36Alphabet)]
		}
	}
	return fmt.Sprintf("%s%s", millis, suffix)
}
