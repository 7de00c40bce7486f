package tenantresolve_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webordinary/router/internal/domain"
	"github.com/webordinary/router/internal/tenantresolve"
)

type fakeSessions map[string]domain.SessionRecord
type fakeThreads map[string]domain.ThreadMapping
type fakeConfig map[string]domain.TenantConfigEntry

func (f fakeSessions) GetSession(_ context.Context, sessionID string) (domain.SessionRecord, error) {
	if rec, ok := f[sessionID]; ok {
		return rec, nil
	}
	return domain.SessionRecord{}, tenantresolve.ErrNotFound
}

func (f fakeThreads) GetThreadMapping(_ context.Context, threadID string) (domain.ThreadMapping, error) {
	if tm, ok := f[threadID]; ok {
		return tm, nil
	}
	return domain.ThreadMapping{}, tenantresolve.ErrNotFound
}

func (f fakeConfig) GetTenantConfig(_ context.Context, identity string) (domain.TenantConfigEntry, error) {
	if e, ok := f[identity]; ok {
		return e, nil
	}
	return domain.TenantConfigEntry{}, tenantresolve.ErrNotFound
}

var amelia = domain.TenantKey{ProjectID: "amelia", UserID: "scott"}

func TestResolve_BySessionID(t *testing.T) {
	sessions := fakeSessions{"sess-1": {SessionID: "sess-1", TenantKey: amelia}}
	r := tenantresolve.New(sessions, fakeThreads{}, fakeConfig{})

	res, err := r.Resolve(context.Background(), domain.IngressMsg{SessionID: "sess-1"}, "")
	require.NoError(t, err)
	require.Equal(t, amelia, res.TenantKey)
	require.False(t, res.Unresolved)
}

func TestResolve_ByThreadMapping(t *testing.T) {
	threads := fakeThreads{"abcd1234": {ThreadID: "abcd1234", TenantKey: amelia}}
	r := tenantresolve.New(fakeSessions{}, threads, fakeConfig{})

	res, err := r.Resolve(context.Background(), domain.IngressMsg{}, "abcd1234")
	require.NoError(t, err)
	require.Equal(t, amelia, res.TenantKey)
	require.False(t, res.Unresolved)
}

func TestResolve_BySenderIdentity(t *testing.T) {
	config := fakeConfig{"amelia@example.com": {
		Identity: "amelia@example.com", TenantKey: amelia, RepoURL: "https://example.com/amelia.git",
	}}
	r := tenantresolve.New(fakeSessions{}, fakeThreads{}, config)

	res, err := r.Resolve(context.Background(), domain.IngressMsg{SenderIdentity: "amelia@example.com"}, "")
	require.NoError(t, err)
	require.Equal(t, amelia, res.TenantKey)
	require.Equal(t, "https://example.com/amelia.git", res.RepoURL)
	require.False(t, res.Unresolved)
	require.False(t, res.MissingConfig)
}

func TestResolve_FallsBackToDefaultUnknown(t *testing.T) {
	r := tenantresolve.New(fakeSessions{}, fakeThreads{}, fakeConfig{})

	res, err := r.Resolve(context.Background(), domain.IngressMsg{SenderIdentity: "nobody@example.com"}, "")
	require.NoError(t, err)
	require.Equal(t, domain.DefaultUnknownTenant, res.TenantKey)
	require.True(t, res.Unresolved)
	require.True(t, res.MissingConfig)
}

func TestResolve_SessionPrecedesThreadAndConfig(t *testing.T) {
	other := domain.TenantKey{ProjectID: "other", UserID: "user"}
	sessions := fakeSessions{"sess-1": {SessionID: "sess-1", TenantKey: amelia}}
	threads := fakeThreads{"abcd1234": {ThreadID: "abcd1234", TenantKey: other}}
	config := fakeConfig{"x@example.com": {Identity: "x@example.com", TenantKey: other}}

	r := tenantresolve.New(sessions, threads, config)
	res, err := r.Resolve(context.Background(), domain.IngressMsg{SessionID: "sess-1", SenderIdentity: "x@example.com"}, "abcd1234")
	require.NoError(t, err)
	require.Equal(t, amelia, res.TenantKey)
}

func TestResolve_MissingConfigWithResolvedTenant(t *testing.T) {
	threads := fakeThreads{"abcd1234": {ThreadID: "abcd1234", TenantKey: amelia}}
	r := tenantresolve.New(fakeSessions{}, threads, fakeConfig{})

	res, err := r.Resolve(context.Background(), domain.IngressMsg{SenderIdentity: "unconfigured@example.com"}, "abcd1234")
	require.NoError(t, err)
	require.Equal(t, amelia, res.TenantKey)
	require.False(t, res.Unresolved)
	require.True(t, res.MissingConfig)
	require.Empty(t, res.RepoURL)
}
