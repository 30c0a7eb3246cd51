package webhooksvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqasys/langcsebkg5-sub007/core/alert"
)

func TestNotifier_Notify(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Elimu-alerts", r.Header.Get("User-Agent"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewNotifier("Elimu")
	evt := alert.Event{
		Type:  alert.EventFired,
		Alert: alert.Alert{ID: "a-1", RuleID: "r-1", Status: alert.StatusFiring, Value: 12},
		Rule:  alert.Rule{ID: "r-1", Name: "Too many pending payments", WebhookURL: srv.URL},
	}
	require.NoError(t, n.Notify(context.Background(), evt))

	assert.Equal(t, alert.EventFired, got.Event)
	assert.Equal(t, "a-1", got.Alert.ID)
	assert.Equal(t, "Too many pending payments", got.RuleName)
	assert.False(t, got.SentAt.IsZero())
}

func TestNotifier_Notify_errors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewNotifier("Elimu")
	err := n.Notify(context.Background(), alert.Event{Type: alert.EventResolved, Rule: alert.Rule{WebhookURL: srv.URL}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "client errors are not retried")

	t.Run("no url", func(t *testing.T) {
		assert.NoError(t, n.Notify(context.Background(), alert.Event{Type: alert.EventFired}))
	})
}

func TestNotifier_Notify_retriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier("Elimu")
	require.NoError(t, n.Notify(context.Background(), alert.Event{Type: alert.EventFired, Rule: alert.Rule{WebhookURL: srv.URL}}))
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}
