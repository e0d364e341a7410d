package notify

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
)

func fixedClock(t *testing.T, value string) func() time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	assert.NoError(t, err)
	return func() time.Time { return ts }
}

func TestSendMulticast(t *testing.T) {
	var got multicastRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewLineNotifier("chan-token", []string{"u1", "u2"})
	n.Endpoint = srv.URL
	n.now = fixedClock(t, "2025-04-07T10:00:00+09:00") // a Monday

	n.Send("entry", "bought 100 @ 1502.5", "SL 1480")

	assert.Equal(t, "Bearer chan-token", auth)
	assert.Equal(t, []string{"u1", "u2"}, got.To)
	if assert.Len(t, got.Messages, 1) {
		assert.Equal(t, "text", got.Messages[0].Type)
		assert.Equal(t, "[entry]\nbought 100 @ 1502.5\nSL 1480", got.Messages[0].Text)
	}
}

func TestSendSkipsWeekends(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	n := NewLineNotifier("chan-token", []string{"u1"})
	n.Endpoint = srv.URL
	n.now = fixedClock(t, "2025-04-05T10:00:00+09:00") // a Saturday

	n.Send("start", "should not go out")
	assert.False(t, called)
}

func TestSendSurvivesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	n := NewLineNotifier("chan-token", []string{"u1"})
	n.Endpoint = srv.URL
	n.now = fixedClock(t, "2025-04-07T10:00:00+09:00")

	// Send must not panic or propagate the failure.
	n.Send("exit", "closed position")
}
