package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/jmylchreest/consult-billing/internal/billing"
	"github.com/jmylchreest/consult-billing/internal/events"
	"github.com/jmylchreest/consult-billing/internal/http/mw"
	"github.com/jmylchreest/consult-billing/internal/models"
)

// disconnectStopTimeout bounds the stop issued when a consumer's last stream
// goes away.
const disconnectStopTimeout = 10 * time.Second

// EventsHandler streams a user's billing events over SSE.
type EventsHandler struct {
	broker    *events.Broker
	engine    *billing.Engine
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(broker *events.Broker, engine *billing.Engine, heartbeat time.Duration, logger *slog.Logger) *EventsHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &EventsHandler{
		broker:    broker,
		engine:    engine,
		heartbeat: heartbeat,
		logger:    logger.With("component", "events_stream"),
	}
}

// SSEConnectedEvent is sent once when the stream opens.
type SSEConnectedEvent struct {
	UserID string `json:"user_id"`
}

// Stream handles GET /api/v1/events.
// This is a raw HTTP handler (not Huma) to support SSE.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	claims := mw.GetUserClaims(r.Context())
	if claims == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	sub, err := h.broker.Subscribe(claims.UserID)
	if errors.Is(err, events.ErrTooManySubscribers) {
		http.Error(w, `{"error":"too many open event streams"}`, http.StatusTooManyRequests)
		return
	}
	if err != nil {
		http.Error(w, `{"error":"event stream unavailable"}`, http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	sendSSEEvent(w, flusher, "connected", SSEConnectedEvent{UserID: claims.UserID})

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.clientGone(r.Context(), claims, sub)
			return
		case env, ok := <-sub.C():
			if !ok {
				// Broker shut down. Live sessions are left for Resume.
				return
			}
			sendSSEEvent(w, flusher, string(env.Type), env)
		case <-ticker.C:
			sendSSEHeartbeat(w, flusher)
		}
	}
}

// clientGone releases the subscription. When it was the consumer's last
// stream, their live session is stopped with user_disconnected. Streams cut
// by broker shutdown leave the session live for Resume.
func (h *EventsHandler) clientGone(ctx context.Context, claims *mw.UserClaims, sub *events.Subscription) {
	remaining, shutdown := sub.Release()
	if remaining > 0 || shutdown || claims.IsProvider() {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectStopTimeout)
	defer cancel()

	s, err := h.engine.GetActiveSession(ctx, claims.UserID)
	if err != nil {
		h.logger.Warn("failed to look up session on disconnect", "user_id", claims.UserID, "error", err)
		return
	}
	if s == nil {
		return
	}
	if _, err := h.engine.StopSession(ctx, s.ID, models.EndReasonUserDisconnected); err != nil {
		h.logger.Error("failed to stop session on disconnect",
			"session_id", s.ID,
			"consumer_id", claims.UserID,
			"error", err,
		)
		return
	}
	h.logger.Info("stopped session after last stream closed", "session_id", s.ID, "consumer_id", claims.UserID)
}

// sendSSEEvent sends a Server-Sent Event.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", event)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}

// sendSSEHeartbeat sends an SSE comment as a keepalive/heartbeat.
// SSE comments start with a colon and are ignored by the client EventSource API.
func sendSSEHeartbeat(w http.ResponseWriter, flusher http.Flusher) {
	_, _ = fmt.Fprintf(w, ": heartbeat\n\n")
	flusher.Flush()
}

// =============================================================================
// Raw Endpoint OpenAPI Registration
// =============================================================================

// RegisterRawEndpoints registers the SSE stream with Huma for OpenAPI
// documentation. The real handler is mounted on chi behind mw.Auth.
func (h *EventsHandler) RegisterRawEndpoints(api huma.API) {
	sse.Register(api, huma.Operation{
		OperationID: "streamEvents",
		Method:      http.MethodGet,
		Path:        "/api/v1/events",
		Summary:     "Stream billing events via SSE",
		Description: `Server-Sent Events stream of the caller's billing events.

Events sent:
- **connected**: Stream opened
- **session:started**: A session involving the caller started
- **billing:tick**: A tick was charged (consumer only)
- **billing:low-balance**: The next tick cannot be afforded; the grace period has started
- **session:stopped**: A session involving the caller ended, with its settlement

Each data payload is an envelope of ` + "`{type, data, timestamp}`" + `. Heartbeat comments keep
the connection alive through proxies. Browsers may pass the bearer token as the
` + "`access_token`" + ` query parameter.

When a consumer's last open stream closes, their live session is stopped with
reason ` + "`user_disconnected`" + `.`,
		Tags:     []string{"Events"},
		Security: []map[string][]string{{mw.SecurityScheme: {}}},
	}, map[string]any{
		"connected":           SSEConnectedEvent{},
		"session:started":     events.SessionStarted{},
		"billing:tick":        events.BillingTick{},
		"billing:low-balance": events.LowBalance{},
		"session:stopped":     events.SessionStopped{},
	}, func(ctx context.Context, input *struct{}, send sse.Sender) {
		// Placeholder handler - actual SSE is handled by chi router.
		<-ctx.Done()
	})
}
