package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakekeeper/wakekeeper/internal/notify"
)

func TestNewSender_Defaults(t *testing.T) {
	sender := NewSender(Config{Channel: notify.ChannelAlarm})

	assert.Equal(t, defaultTimeout, sender.config.Timeout)
	assert.NotNil(t, sender.httpClient)
}

func TestSender_Channel(t *testing.T) {
	sender := NewSender(Config{Channel: notify.ChannelStatus})
	assert.Equal(t, notify.ChannelStatus, sender.Channel())
}

func TestSender_Send_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload notify.Notification
		err := json.NewDecoder(r.Body).Decode(&payload)
		require.NoError(t, err)
		assert.Equal(t, "am", payload.Tag)
		assert.Equal(t, "Wake up", payload.Title)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewSender(Config{Channel: notify.ChannelAlarm, URL: server.URL})
	err := sender.Send(context.Background(), notify.Notification{
		Tag:   "am",
		Title: "Wake up",
	})

	assert.NoError(t, err)
}

func TestSender_Send_EmptyURL(t *testing.T) {
	sender := NewSender(Config{Channel: notify.ChannelAlarm})

	err := sender.Send(context.Background(), notify.Notification{Tag: "am"})

	var permanent *PermanentError
	require.ErrorAs(t, err, &permanent)
	assert.False(t, permanent.IsRetryable())
}

func TestSender_Send_StatusClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantErr       bool
		wantRetryable bool
	}{
		{"ok", http.StatusOK, false, false},
		{"no content", http.StatusNoContent, false, false},
		{"unauthorized", http.StatusUnauthorized, true, false},
		{"forbidden", http.StatusForbidden, true, false},
		{"rate limited", http.StatusTooManyRequests, true, true},
		{"server error", http.StatusInternalServerError, true, true},
		{"bad request", http.StatusBadRequest, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			sender := NewSender(Config{Channel: notify.ChannelAlarm, URL: server.URL})
			err := sender.Send(context.Background(), notify.Notification{Tag: "am"})

			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)

			if tt.wantRetryable {
				var retryable *RetryableError
				require.ErrorAs(t, err, &retryable)
				assert.True(t, retryable.IsRetryable())
			} else {
				var permanent *PermanentError
				require.ErrorAs(t, err, &permanent)
				assert.False(t, permanent.IsRetryable())
			}
		})
	}
}

func TestSender_Send_ConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	sender := NewSender(Config{
		Channel: notify.ChannelAlarm,
		URL:     server.URL,
		Timeout: time.Second,
	})
	err := sender.Send(context.Background(), notify.Notification{Tag: "am"})

	var retryable *RetryableError
	require.ErrorAs(t, err, &retryable)
	assert.True(t, retryable.IsRetryable())
}
