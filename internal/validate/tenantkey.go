// Package validate holds the field-level validation and sanitization
// rules the router applies to tenant keys and queue wire payloads.
package validate

import (
	"fmt"
	"regexp"

	"github.com/webordinary/router/internal/domain"
)

var tenantComponentPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// TenantKeyComponent validates a single projectId or userId component:
// non-empty and restricted to [A-Za-z0-9-]+.
func TenantKeyComponent(fieldName, value string) error {
	if value == "" {
		return fmt.Errorf("%s must not be empty", fieldName)
	}
	if !tenantComponentPattern.MatchString(value) {
		return fmt.Errorf("%s must match [A-Za-z0-9-]+, got %q", fieldName, value)
	}
	return nil
}

// TenantKey validates both components of a tenant key.
func TenantKey(k domain.TenantKey) error {
	if err := TenantKeyComponent("projectId", k.ProjectID); err != nil {
		return err
	}
	return TenantKeyComponent("userId", k.UserID)
}
