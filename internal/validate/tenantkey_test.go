package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webordinary/router/internal/domain"
)

func TestTenantKeyComponent(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "amelia", false},
		{"with digits", "amelia-2", false},
		{"with hyphen", "my-project", false},
		{"empty", "", true},
		{"hash not allowed", "amelia#scott", true},
		{"space not allowed", "amelia scott", true},
		{"underscore not allowed", "amelia_scott", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := TenantKeyComponent("projectId", tt.input)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestTenantKey(t *testing.T) {
	require.NoError(t, TenantKey(domain.TenantKey{ProjectID: "amelia", UserID: "scott"}))

	err := TenantKey(domain.TenantKey{ProjectID: "amelia", UserID: ""})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "userId")
}
