package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"chatrelay/internal/metrics"
)

// maxResponseSize caps how much of an upstream body is buffered.
const maxResponseSize = 8 * 1024 * 1024

// Forward validates body, sends exactly one request upstream and returns the
// JSON to hand back to the caller. Errors are *ValidationError,
// *UpstreamError or *TransportError. Nothing is retried.
//
// The upstream call is detached from ctx cancellation: if the caller goes
// away the call still runs to completion (bounded by UpstreamTimeout) and its
// result is dropped.
func (r *Relay) Forward(parentCtx context.Context, body []byte) ([]byte, error) {
	req, err := r.adapter.ParseRequest(body)
	if err != nil {
		return nil, err
	}

	payload, err := r.adapter.BuildRequest(body, req)
	if err != nil {
		return nil, err
	}

	provider := r.adapter.Name()
	logger := r.logger.With(zap.String("model", req.Model))
	logger.Debug("upstream request starting")

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), r.cfg.UpstreamTimeout)
	defer cancel()

	start := time.Now()
	respBody, status, err := r.post(ctx, payload)
	duration := time.Since(start)
	metrics.UpstreamLatencySeconds.WithLabelValues(provider).Observe(duration.Seconds())

	if err != nil {
		kind := classifyTransportError(err)
		metrics.UpstreamRequestsTotal.WithLabelValues(provider, metrics.OutcomeTransportError).Inc()
		logger.Error("upstream request failed",
			zap.String("kind", kind),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, &TransportError{Provider: provider, Kind: kind, Err: err}
	}

	if status < 200 || status >= 300 {
		metrics.UpstreamRequestsTotal.WithLabelValues(provider, metrics.OutcomeUpstreamError).Inc()
		logger.Warn("upstream returned error status",
			zap.Int("status", status),
			zap.String("body", truncate(string(respBody), 200)),
			zap.Duration("duration", duration),
		)
		return nil, &UpstreamError{
			Provider:   provider,
			Label:      r.adapter.Label(),
			StatusCode: status,
			Body:       string(respBody),
		}
	}

	out, err := r.adapter.ParseResponse(respBody)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(provider, metrics.OutcomeUpstreamError).Inc()
		logger.Error("upstream response unusable",
			zap.Int("status", status),
			zap.Error(err),
		)
		return nil, err
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(provider, metrics.OutcomeSuccess).Inc()
	logger.Info("upstream request completed",
		zap.Int("status", status),
		zap.Int("response_bytes", len(out)),
		zap.Duration("duration", duration),
	)

	return out, nil
}

// post issues the single outbound call and buffers the response body.
func (r *Relay) post(ctx context.Context, payload []byte) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.adapter.Endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("build HTTP request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read upstream response: %w", err)
	}
	if len(respBody) > maxResponseSize {
		return nil, resp.StatusCode, fmt.Errorf("upstream response exceeds %d bytes", maxResponseSize)
	}

	return respBody, resp.StatusCode, nil
}
