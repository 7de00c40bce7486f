package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/webordinary/router/internal/domain"
	"github.com/webordinary/router/internal/reaper"
	"github.com/webordinary/router/internal/router"
)

type fakeRouter struct {
	decision router.RoutingDecision
	err      error
	lastMsg  domain.IngressMsg
}

func (f *fakeRouter) Route(_ context.Context, msg domain.IngressMsg) (router.RoutingDecision, error) {
	f.lastMsg = msg
	return f.decision, f.err
}

type fakeReaper struct {
	result reaper.Result
	err    error
}

func (f *fakeReaper) Run(_ context.Context) (reaper.Result, error) {
	return f.result, f.err
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestHealthz_OK(t *testing.T) {
	s := New(&fakeRouter{}, &fakeReaper{}, newTestDB(t), nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, 200, w.Code)
}

func TestHealthz_DegradedOnClosedDB(t *testing.T) {
	db := newTestDB(t)
	db.Close()
	s := New(&fakeRouter{}, &fakeReaper{}, db, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, 503, w.Code)
}

func TestAdminReap_ReturnsCounts(t *testing.T) {
	s := New(&fakeRouter{}, &fakeReaper{result: reaper.Result{OrphanedQueuesDeleted: 2}}, newTestDB(t), nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("POST", "/admin/reap", nil))
	require.Equal(t, 200, w.Code)

	var result reaper.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 2, result.OrphanedQueuesDeleted)
}

func TestIngress_Email_RoutesDecodedMessage(t *testing.T) {
	fr := &fakeRouter{decision: router.RoutingDecision{CommandID: "cmd-1"}}
	s := New(fr, &fakeReaper{}, newTestDB(t), nil)

	body := `{"from":"a@example.com","messageId":"<m1@example.com>","body":"deploy now"}`
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("POST", "/ingress/email", strings.NewReader(body)))

	require.Equal(t, 202, w.Code)
	assert.Equal(t, domain.TransportEmail, fr.lastMsg.Source)
	assert.Equal(t, "deploy now", fr.lastMsg.Instruction)
}

func TestIngress_UnknownTransport(t *testing.T) {
	s := New(&fakeRouter{}, &fakeReaper{}, newTestDB(t), nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("POST", "/ingress/carrier-pigeon", strings.NewReader(`{}`)))
	assert.Equal(t, 404, w.Code)
}

func TestIngress_RouteErrorReturnsUnprocessable(t *testing.T) {
	fr := &fakeRouter{err: assertErr{"unresolved tenant"}}
	s := New(fr, &fakeReaper{}, newTestDB(t), nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("POST", "/ingress/sms", strings.NewReader(`{"from":"+1","to":"+2","body":"hi"}`)))
	assert.Equal(t, 422, w.Code)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
