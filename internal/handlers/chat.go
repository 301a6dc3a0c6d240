package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"chatrelay/internal/llm"
	"chatrelay/internal/metrics"
	"chatrelay/pkg/logging"
)

// ChatHandler holds dependencies for the /api/chat endpoint.
type ChatHandler struct {
	Relay llm.Client
}

func NewChatHandler(relay llm.Client) *ChatHandler {
	return &ChatHandler{Relay: relay}
}

// detailResponse is the body of every non-2xx reply.
type detailResponse struct {
	Detail string `json:"detail"`
}

// Chat handles POST /api/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		reason := "could not read request body"
		if errors.As(err, &tooLarge) {
			reason = fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)
		}
		h.fail(w, logger, &llm.ValidationError{Reason: reason, Err: err}, start)
		return
	}

	resp, err := h.Relay.Forward(ctx, body)
	if err != nil {
		h.fail(w, logger, err, start)
		return
	}

	logger.Info("chat relayed",
		zap.Int("status", http.StatusOK),
		zap.Duration("total_latency", time.Since(start)),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp)
}

func (h *ChatHandler) fail(w http.ResponseWriter, logger *zap.Logger, err error, start time.Time) {
	status, detail := errorResponse(err)

	var vErr *llm.ValidationError
	if errors.As(err, &vErr) {
		metrics.ValidationFailuresTotal.Inc()
	}

	fields := []zap.Field{
		zap.Int("status", status),
		zap.Duration("total_latency", time.Since(start)),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("chat failed", fields...)
	} else {
		logger.Warn("chat rejected", fields...)
	}

	writeJSON(w, status, detailResponse{Detail: detail})
}

// errorResponse maps relay errors onto the status and detail sent to the caller.
func errorResponse(err error) (int, string) {
	var (
		vErr *llm.ValidationError
		uErr *llm.UpstreamError
		tErr *llm.TransportError
	)

	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest, "Invalid request payload: " + vErr.Reason
	case errors.As(err, &uErr):
		return uErr.StatusCode, fmt.Sprintf("%s API error: %s", uErr.Label, uErr.Body)
	case errors.As(err, &tErr):
		return http.StatusInternalServerError, fmt.Sprintf("Request error: %v", tErr.Err)
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// writeJSON is a small helper to send JSON responses consistently.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
