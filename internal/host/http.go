package host

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/signalsfoundry/livedemo/internal/catalog"
	"github.com/signalsfoundry/livedemo/internal/logging"
)

const (
	requestIDHeader   = "X-Request-ID"
	sseKeepalive      = 15 * time.Second
	sseSnapshotEvent  = "snapshot"
	contentTypeJSON   = "application/json"
	contentTypeStream = "text/event-stream"
)

// HTTPHandler serves widget listings and SSE snapshot streams.
type HTTPHandler struct {
	hub       *Hub
	log       logging.Logger
	keepalive time.Duration
	mux       *http.ServeMux
}

// NewHTTPHandler routes:
//
//	GET /healthz
//	GET /widgets                 {"kinds": [...]}
//	GET /widgets/{kind}/stream   text/event-stream of snapshots
func NewHTTPHandler(hub *Hub, log logging.Logger) *HTTPHandler {
	if log == nil {
		log = logging.Noop()
	}
	h := &HTTPHandler{hub: hub, log: log, keepalive: sseKeepalive, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /healthz", h.handleHealth)
	h.mux.HandleFunc("GET /widgets", h.handleList)
	h.mux.HandleFunc("GET /widgets/{kind}/stream", h.handleStream)
	return h
}

// ServeHTTP attaches a request_id and request logger before routing.
func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if incoming := r.Header.Get(requestIDHeader); incoming != "" {
		ctx = logging.ContextWithRequestID(ctx, incoming)
	}
	ctx, reqLog := logging.WithRequestLogger(ctx, h.log.With(
		logging.String("method", r.Method),
		logging.String("path", r.URL.Path),
	))
	ctx = logging.ContextWithLogger(ctx, reqLog)
	w.Header().Set(requestIDHeader, logging.RequestIDFromContext(ctx))
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"widgets": h.hub.Active(),
	})
}

func (h *HTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"kinds": h.hub.Kinds()})
}

// handleStream mounts a widget for as long as the client stays connected.
func (h *HTTPHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqLog := h.requestLogger(r)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sub, err := h.hub.Subscribe(ctx, r.PathValue("kind"))
	if err != nil {
		reqLog.Warn(ctx, "stream rejected", logging.Err(err))
		writeError(w, httpStatus(err), err.Error())
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", contentTypeStream)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Long-lived stream: lift any server write deadline.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	reqLog.Info(ctx, "stream started", logging.String("widget_id", sub.ID()))

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			reqLog.Info(ctx, "stream closed by client", logging.String("widget_id", sub.ID()))
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(":keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case snap, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				reqLog.Error(ctx, "encode snapshot", logging.Err(err))
				return
			}
			if _, err := w.Write(formatSSE(sseSnapshotEvent, data)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *HTTPHandler) requestLogger(r *http.Request) logging.Logger {
	if l := logging.LoggerFromContext(r.Context()); l != nil {
		return l
	}
	return h.log
}

// formatSSE frames one Server-Sent Events message.
func formatSSE(event string, data []byte) []byte {
	out := make([]byte, 0, len(event)+len(data)+16)
	out = append(out, "event: "...)
	out = append(out, event...)
	out = append(out, "\ndata: "...)
	out = append(out, data...)
	return append(out, "\n\n"...)
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, catalog.ErrUnknownWidget):
		return http.StatusNotFound
	case errors.Is(err, ErrMissingKind):
		return http.StatusBadRequest
	case errors.Is(err, ErrHubClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
