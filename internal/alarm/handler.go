package alarm

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/wakekeeper/wakekeeper/internal/domain"
	"github.com/wakekeeper/wakekeeper/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrUnknownMessage, Status: http.StatusBadRequest, Message: "unknown message type"},
	{Error: ErrAlarmNotFound, Status: http.StatusNotFound, Message: "alarm not found"},
}

// Handler exposes the engine over HTTP.
type Handler struct {
	engine    *Engine
	validator *validator.Validate
}

// NewHandler creates an alarm API handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{
		engine:    engine,
		validator: validator.New(),
	}
}

// RegisterRoutes registers the alarm API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/messages", h.PostMessage)
	r.Post("/triggers/periodic", h.PeriodicTrigger)
	r.Post("/triggers/push", h.PushTrigger)
	r.Post("/interactions", h.PostInteraction)
	r.Post("/status-notification/removed", h.StatusRemoved)
	r.Put("/preferences/status-notification", h.SetStatusPreference)
	r.Get("/alarms", h.ListAlarms)
}

// alarmPayload is the wire form of an alarm; fire_at is epoch
// milliseconds.
type alarmPayload struct {
	Tag     string            `json:"tag" validate:"required"`
	Title   string            `json:"title" validate:"required"`
	Body    string            `json:"body"`
	FireAt  int64             `json:"fire_at" validate:"required,gt=0"`
	Actions []actionPayload   `json:"actions,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
}

type actionPayload struct {
	ID    string `json:"id" validate:"required"`
	Label string `json:"label" validate:"required"`
}

func (p alarmPayload) toDomain() domain.Alarm {
	return domain.Alarm{
		Tag:     p.Tag,
		Title:   p.Title,
		Body:    p.Body,
		FireAt:  time.UnixMilli(p.FireAt),
		Actions: toDomainActions(p.Actions),
		Data:    p.Data,
	}
}

func toDomainActions(actions []actionPayload) []domain.Action {
	if len(actions) == 0 {
		return nil
	}
	out := make([]domain.Action, 0, len(actions))
	for _, a := range actions {
		out = append(out, domain.Action{ID: a.ID, Label: a.Label})
	}
	return out
}

func fromDomainAlarm(a domain.Alarm) alarmPayload {
	actions := make([]actionPayload, 0, len(a.Actions))
	for _, ac := range a.Actions {
		actions = append(actions, actionPayload{ID: ac.ID, Label: ac.Label})
	}
	return alarmPayload{
		Tag:     a.Tag,
		Title:   a.Title,
		Body:    a.Body,
		FireAt:  a.FireAt.UnixMilli(),
		Actions: actions,
		Data:    a.Data,
	}
}

type messageEnvelope struct {
	Type domain.MessageType `json:"type" validate:"required"`
}

type syncAlarmsRequest struct {
	Alarms []alarmPayload `json:"alarms" validate:"dive"`
}

type showAlarmRequest struct {
	Title   string            `json:"title" validate:"required"`
	Body    string            `json:"body"`
	Tag     string            `json:"tag" validate:"required"`
	Actions []actionPayload   `json:"actions,omitempty" validate:"dive"`
	Data    map[string]string `json:"data,omitempty"`
}

type scheduleAlarmRequest struct {
	Title   string            `json:"title" validate:"required"`
	Body    string            `json:"body"`
	Tag     string            `json:"tag" validate:"required"`
	Delay   int64             `json:"delay" validate:"required,gt=0"`
	Actions []actionPayload   `json:"actions,omitempty" validate:"dive"`
	Data    map[string]string `json:"data,omitempty"`
}

type cancelAlarmRequest struct {
	Tag string `json:"tag" validate:"required"`
}

type interactionRequest struct {
	Tag      string            `json:"tag" validate:"required"`
	ActionID string            `json:"action_id" validate:"required"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
}

type statusPreferenceRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// PostMessage handles POST /messages: the inbound foreground message
// protocol, discriminated by the type field.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	var env messageEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(env); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	msg, err := h.decodeMessage(env.Type, raw)
	if err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok {
			httputil.ValidationError(w, ve)
			return
		}
		if errors.Is(err, ErrUnknownMessage) {
			httputil.HandleError(r.Context(), w, err, errorMappings)
			return
		}
		httputil.Error(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if err := h.engine.OnMessage(r.Context(), msg); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handler) decodeMessage(t domain.MessageType, raw []byte) (domain.Message, error) {
	switch t {
	case domain.MessageSyncAlarms:
		var req syncAlarmsRequest
		if err := unmarshalValidated(h.validator, raw, &req); err != nil {
			return nil, err
		}
		alarms := make([]domain.Alarm, 0, len(req.Alarms))
		for _, p := range req.Alarms {
			alarms = append(alarms, p.toDomain())
		}
		return domain.SyncAlarms{Alarms: alarms}, nil

	case domain.MessageShowAlarm:
		var req showAlarmRequest
		if err := unmarshalValidated(h.validator, raw, &req); err != nil {
			return nil, err
		}
		return domain.ShowAlarm{
			Title:   req.Title,
			Body:    req.Body,
			Tag:     req.Tag,
			Actions: toDomainActions(req.Actions),
			Data:    req.Data,
		}, nil

	case domain.MessageScheduleAlarm:
		var req scheduleAlarmRequest
		if err := unmarshalValidated(h.validator, raw, &req); err != nil {
			return nil, err
		}
		return domain.ScheduleAlarm{
			Title:   req.Title,
			Body:    req.Body,
			Tag:     req.Tag,
			Delay:   time.Duration(req.Delay) * time.Millisecond,
			Actions: toDomainActions(req.Actions),
			Data:    req.Data,
		}, nil

	case domain.MessageCancelAlarm:
		var req cancelAlarmRequest
		if err := unmarshalValidated(h.validator, raw, &req); err != nil {
			return nil, err
		}
		return domain.CancelAlarm{Tag: req.Tag}, nil

	case domain.MessageStartKeepAlive:
		return domain.StartKeepAlive{}, nil

	case domain.MessageSkipWaiting:
		return domain.SkipWaiting{}, nil

	default:
		return nil, ErrUnknownMessage
	}
}

// PeriodicTrigger handles POST /triggers/periodic.
func (h *Handler) PeriodicTrigger(w http.ResponseWriter, r *http.Request) {
	h.engine.OnPeriodicTrigger(r.Context())
	httputil.Success(w, http.StatusOK, map[string]string{"status": "ok"})
}

// PushTrigger handles POST /triggers/push.
func (h *Handler) PushTrigger(w http.ResponseWriter, r *http.Request) {
	h.engine.OnPush(r.Context())
	httputil.Success(w, http.StatusOK, map[string]string{"status": "ok"})
}

// PostInteraction handles POST /interactions: the host reporting a
// user's action on a displayed notification.
func (h *Handler) PostInteraction(w http.ResponseWriter, r *http.Request) {
	var req interactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	h.engine.OnInteraction(r.Context(), Interaction{
		Tag:      req.Tag,
		ActionID: req.ActionID,
		Title:    req.Title,
		Body:     req.Body,
		Data:     req.Data,
	})

	httputil.Success(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusRemoved handles POST /status-notification/removed.
func (h *Handler) StatusRemoved(w http.ResponseWriter, r *http.Request) {
	h.engine.OnStatusRemoved(r.Context())
	httputil.Success(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SetStatusPreference handles PUT /preferences/status-notification.
func (h *Handler) SetStatusPreference(w http.ResponseWriter, r *http.Request) {
	var req statusPreferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	h.engine.SetStatusEnabled(r.Context(), *req.Enabled)
	httputil.Success(w, http.StatusOK, map[string]bool{"enabled": *req.Enabled})
}

// ListAlarms handles GET /alarms.
func (h *Handler) ListAlarms(w http.ResponseWriter, r *http.Request) {
	alarms, err := h.engine.ListAlarms(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	payloads := make([]alarmPayload, 0, len(alarms))
	for _, a := range alarms {
		payloads = append(payloads, fromDomainAlarm(a))
	}
	httputil.Success(w, http.StatusOK, payloads)
}

func readBody(r *http.Request) ([]byte, error) {
	defer func() { _ = r.Body.Close() }()
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func unmarshalValidated(v *validator.Validate, raw []byte, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return err
	}
	return v.Struct(dst)
}
