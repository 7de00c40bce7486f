package validate

import (
	"fmt"
	"strings"

	"github.com/webordinary/router/internal/domain"
)

// testTenantPrefix marks sentinel tenants representing test fixtures
// that must never reach production queues.
const testTenantPrefix = "test-"

// WorkMessage validates a fully-populated WorkMessage before it is
// allowed onto any queue (§4.4 step 5). A non-nil error means the
// route must abort without writing anything.
func WorkMessage(msg domain.WorkMessage) error {
	if msg.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	if msg.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	if err := TenantKey(domain.TenantKey{ProjectID: msg.ProjectID, UserID: msg.UserID}); err != nil {
		return fmt.Errorf("tenantKey: %w", err)
	}
	if isMarkerOrTestTenant(msg.ProjectID) || isMarkerOrTestTenant(msg.UserID) {
		return fmt.Errorf("tenant component %q/%q looks like a test fixture", msg.ProjectID, msg.UserID)
	}
	switch msg.Type {
	case domain.MessageTypeWork:
		if strings.TrimSpace(msg.Instruction) == "" {
			return fmt.Errorf("instruction is required for type=work")
		}
		if strings.TrimSpace(msg.RepoURL) == "" {
			return fmt.Errorf("repoUrl is required for type=work")
		}
	case domain.MessageTypeInterrupt:
		// No extra required fields beyond the common ones above.
	default:
		return fmt.Errorf("unsupported work message type %q", msg.Type)
	}
	return nil
}

// Response validates an inbound worker response (type="response" in
// the wire contract terms of §3/§4.4).
func Response(commandID string, hasSuccess bool) error {
	if commandID == "" {
		return fmt.Errorf("commandId is required for type=response")
	}
	if !hasSuccess {
		return fmt.Errorf("success must be a boolean for type=response")
	}
	return nil
}

func isMarkerOrTestTenant(component string) bool {
	lower := strings.ToLower(component)
	return lower == "unknown" || strings.HasPrefix(lower, testTenantPrefix)
}
