package adjutor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wallet_ledger/internal/logging"

	"github.com/stretchr/testify/assert"
)

func newServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/verification/karma/bad@user.com", r.URL.Path)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(baseURL string, failOpen bool) *Client {
	return NewClient(baseURL, "test-key", time.Second, failOpen, logging.Discard())
}

func TestIsFlagged_NotFoundIsClear(t *testing.T) {
	srv := newServer(t, http.StatusNotFound, `{"status":"error","message":"Identity not found"}`)

	assert.False(t, newClient(srv.URL, true).IsFlagged(context.Background(), "bad@user.com"))
}

func TestIsFlagged_FoundIsFlagged(t *testing.T) {
	srv := newServer(t, http.StatusOK,
		`{"status":"success","message":"Successful","data":{"karma_identity":"bad@user.com","amount_in_contention":"0.00","reason":"fraud"}}`)

	assert.True(t, newClient(srv.URL, true).IsFlagged(context.Background(), "bad@user.com"))
}

func TestIsFlagged_ServerErrorFailsOpen(t *testing.T) {
	srv := newServer(t, http.StatusInternalServerError, "boom")

	assert.False(t, newClient(srv.URL, true).IsFlagged(context.Background(), "bad@user.com"))
}

func TestIsFlagged_MalformedBodyFailsOpen(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"status":`)

	assert.False(t, newClient(srv.URL, true).IsFlagged(context.Background(), "bad@user.com"))
}

func TestIsFlagged_MissingDataFailsOpen(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"status":"success"}`)

	assert.False(t, newClient(srv.URL, true).IsFlagged(context.Background(), "bad@user.com"))
}

func TestIsFlagged_UnreachableFailsOpen(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	assert.False(t, newClient(url, true).IsFlagged(context.Background(), "bad@user.com"))
}

func TestIsFlagged_UnreachableFailsClosedWhenConfigured(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	assert.True(t, newClient(url, false).IsFlagged(context.Background(), "bad@user.com"))
}

func TestIsFlagged_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", 20*time.Millisecond, true, logging.Discard())
	assert.False(t, c.IsFlagged(context.Background(), "slow@user.com"))
}
