package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordito/internal/domain"
)

func TestStaticTokenAuth(t *testing.T) {
	auth := NewStaticTokenAuth([]TokenEntry{
		{Token: "", Name: "blank"},
		{Token: "secret-123", Name: "laptop"},
		{Token: "view-only", Name: "dashboard", ReadOnly: true},
		{Token: "secret-123", Name: "shadowed"},
	})

	tests := []struct {
		token    string
		wantName string
		readOnly bool
	}{
		{"secret-123", "laptop", false},
		{"view-only", "dashboard", true},
		{"wrong-token", "", false},
		{"secret-12", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		info, err := auth.Authenticate(tt.token)
		if tt.wantName == "" {
			assert.ErrorIs(t, err, domain.ErrGatewayAuthFailed, "token %q", tt.token)
			assert.Equal(t, domain.CodeGatewayAuth, domain.ErrorCodeOf(err))
			continue
		}
		require.NoError(t, err, "token %q", tt.token)
		assert.Equal(t, tt.wantName, info.Name)
		assert.Equal(t, tt.readOnly, info.ReadOnly)
	}
}

func TestStaticTokenAuthEmpty(t *testing.T) {
	_, err := NewStaticTokenAuth(nil).Authenticate("anything")
	assert.Error(t, err)
}

func TestAuthorize(t *testing.T) {
	viewer := &ClientInfo{Name: "dashboard", ReadOnly: true}
	admin := &ClientInfo{Name: "laptop"}

	for _, m := range []string{MethodGroupList, MethodScheduleList, MethodScheduleValidate, MethodDataExport} {
		assert.NoError(t, authorize(viewer, m), m)
	}
	for _, m := range []string{MethodGroupCreate, MethodExecCommand, MethodScheduleToggle, MethodDataImport} {
		err := authorize(viewer, m)
		assert.ErrorIs(t, err, domain.ErrForbidden, m)
		assert.Equal(t, domain.CodeForbidden, domain.ErrorCodeOf(err))
		assert.NoError(t, authorize(admin, m), m)
	}
}
