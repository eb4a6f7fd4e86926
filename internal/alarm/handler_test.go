package alarm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakekeeper/wakekeeper/internal/domain"
)

func newTestServer(t *testing.T) (*httptest.Server, *engineFixture) {
	t.Helper()

	f := newEngineFixture(t)
	r := chi.NewRouter()
	NewHandler(f.engine).RegisterRoutes(r)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, f
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHandler_PostMessage_ScheduleAlarm(t *testing.T) {
	server, f := newTestServer(t)

	resp := postJSON(t, server.URL+"/messages",
		`{"type":"SCHEDULE_ALARM","tag":"am","title":"Wake up","delay":300000}`)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Contains(t, f.store.alarms, "am")
	assert.Equal(t, f.now().Add(5*time.Minute), f.store.alarms["am"].FireAt)
}

func TestHandler_PostMessage_SyncAlarms(t *testing.T) {
	server, f := newTestServer(t)

	fireAt := f.now().Add(time.Hour).UnixMilli()
	resp := postJSON(t, server.URL+"/messages", fmt.Sprintf(
		`{"type":"SYNC_ALARMS","alarms":[{"tag":"am","title":"Wake up","fire_at":%d}]}`, fireAt))

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Contains(t, f.store.alarms, "am")
	assert.Equal(t, fireAt, f.store.alarms["am"].FireAt.UnixMilli())
}

func TestHandler_PostMessage_ShowAlarm(t *testing.T) {
	server, f := newTestServer(t)

	resp := postJSON(t, server.URL+"/messages",
		`{"type":"SHOW_ALARM","tag":"now","title":"Now"}`)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Len(t, f.alarmSender.shown(), 1)
}

func TestHandler_PostMessage_UnknownType(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/messages", `{"type":"EXPLODE"}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "unknown message type", body["error"]["message"])
}

func TestHandler_PostMessage_InvalidJSON(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/messages", `{"type":`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_PostMessage_ValidationError(t *testing.T) {
	server, f := newTestServer(t)

	// Missing tag and non-positive delay.
	resp := postJSON(t, server.URL+"/messages",
		`{"type":"SCHEDULE_ALARM","title":"Wake up","delay":0}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, f.store.alarms)
}

func TestHandler_PostInteraction(t *testing.T) {
	server, f := newTestServer(t)

	resp := postJSON(t, server.URL+"/interactions",
		`{"tag":"am","action_id":"snooze:10","title":"Wake up"}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, f.store.events, 1)
	assert.Equal(t, domain.EventSnoozed, f.store.events[0].Kind)
	assert.Equal(t, 10, f.store.events[0].Mins)
	assert.Contains(t, f.store.alarms, "am")
}

func TestHandler_PostInteraction_MissingFields(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/interactions", `{"tag":"am"}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_Triggers(t *testing.T) {
	server, f := newTestServer(t)

	resp := postJSON(t, server.URL+"/triggers/periodic", `{}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, server.URL+"/triggers/push", `{}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, KeepAliveRunning, f.engine.KeepAliveState())
}

func TestHandler_StatusRemoved(t *testing.T) {
	server, f := newTestServer(t)

	resp := postJSON(t, server.URL+"/status-notification/removed", `{}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, f.clock.pendingTimers(), "removal schedules a repost")
}

func TestHandler_SetStatusPreference(t *testing.T) {
	server, f := newTestServer(t)

	req, err := http.NewRequest(http.MethodPut,
		server.URL+"/preferences/status-notification",
		bytes.NewBufferString(`{"enabled":false}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "false", f.store.meta[domain.MetaStatusEnabled])
}

func TestHandler_SetStatusPreference_MissingField(t *testing.T) {
	server, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPut,
		server.URL+"/preferences/status-notification",
		bytes.NewBufferString(`{}`))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_ListAlarms(t *testing.T) {
	server, f := newTestServer(t)

	fireAt := f.now().Add(time.Hour)
	require.NoError(t, f.engine.OnMessage(context.Background(), domain.SyncAlarms{Alarms: []domain.Alarm{
		{Tag: "am", Title: "Wake up", FireAt: fireAt},
	}}))

	resp, err := http.Get(server.URL + "/alarms")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data []alarmPayload `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "am", body.Data[0].Tag)
	assert.Equal(t, fireAt.UnixMilli(), body.Data[0].FireAt)
}
