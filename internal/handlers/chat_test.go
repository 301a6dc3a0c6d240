package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"chatrelay/internal/llm"
	"chatrelay/internal/metrics"
)

type mockRelay struct {
	resp     []byte
	err      error
	calls    int
	lastBody []byte
}

func (m *mockRelay) Forward(ctx context.Context, body []byte) ([]byte, error) {
	m.calls++
	m.lastBody = body
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func postChat(t *testing.T, h *ChatHandler, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	h.Chat(rr, req)
	return rr
}

func decodeDetail(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()

	var resp detailResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Detail
}

func TestChatHandlerSuccess(t *testing.T) {
	relay := &mockRelay{resp: []byte(`{"choices":[{"message":{"role":"assistant","content":"hello!"}}]}`)}
	h := NewChatHandler(relay)

	const body = `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`
	rr := postChat(t, h, body)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, string(relay.resp), rr.Body.String())
	assert.Equal(t, 1, relay.calls)
	assert.Equal(t, body, string(relay.lastBody))
}

func TestChatHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantDetail string
	}{
		{
			name:       "validation",
			err:        &llm.ValidationError{Reason: "messages is required"},
			wantStatus: http.StatusBadRequest,
			wantDetail: "Invalid request payload: messages is required",
		},
		{
			name:       "upstream",
			err:        &llm.UpstreamError{Provider: "openai", Label: "OpenAI", StatusCode: http.StatusTooManyRequests, Body: `{"error":"slow down"}`},
			wantStatus: http.StatusTooManyRequests,
			wantDetail: `OpenAI API error: {"error":"slow down"}`,
		},
		{
			name:       "transport",
			err:        &llm.TransportError{Provider: "openai", Kind: llm.TransportConnection, Err: errors.New("dial tcp: connection refused")},
			wantStatus: http.StatusInternalServerError,
			wantDetail: "Request error: dial tcp: connection refused",
		},
		{
			name:       "unknown",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantDetail: "Internal server error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewChatHandler(&mockRelay{err: tc.err})

			rr := postChat(t, h, `{}`)

			assert.Equal(t, tc.wantStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			assert.Equal(t, tc.wantDetail, decodeDetail(t, rr))
		})
	}
}

func TestChatHandlerCountsOnlyValidationFailures(t *testing.T) {
	before := testutil.ToFloat64(metrics.ValidationFailuresTotal)

	postChat(t, NewChatHandler(&mockRelay{err: &llm.ValidationError{Reason: "messages is required"}}), `{}`)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ValidationFailuresTotal))

	postChat(t, NewChatHandler(&mockRelay{err: &llm.UpstreamError{Label: "OpenAI", StatusCode: http.StatusBadGateway}}), `{}`)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ValidationFailuresTotal))

	// Mapping an error to a response must not touch the counter.
	status, _ := errorResponse(&llm.ValidationError{Reason: "x"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ValidationFailuresTotal))
}

func TestChatHandlerBodyTooLarge(t *testing.T) {
	relay := &mockRelay{}
	h := NewChatHandler(relay)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(make([]byte, 64)))
	rr := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(rr, req.Body, 16)

	h.Chat(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid request payload: request body exceeds 16 bytes", decodeDetail(t, rr))
	assert.Zero(t, relay.calls)
}

// The tests below run the real relay against a fake upstream.

type upstreamStub struct {
	calls atomic.Int32
	body  atomic.Value // []byte
}

func newUpstream(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *upstreamStub) {
	t.Helper()

	stub := &upstreamStub{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		stub.body.Store(body)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, stub
}

func newRelayHandler(t *testing.T, adapter llm.Adapter, timeout time.Duration) *ChatHandler {
	t.Helper()

	relay, err := llm.NewRelay(llm.Config{APIKey: "test-key", UpstreamTimeout: timeout}, adapter, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = relay.Close() })
	return NewChatHandler(relay)
}

func TestChatPassThroughReturnsUpstreamBodyUnchanged(t *testing.T) {
	const upstream = `{"choices": [{"message": {"role": "assistant", "content": "Hi"}}]}`
	srv, stub := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, upstream)
	})

	h := newRelayHandler(t, llm.NewOpenAIAdapter(srv.URL), 0)
	rr := postChat(t, h, `{"model":"gpt-4o","messages":[{"role":"user","content":"Hello"}]}`)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, upstream, rr.Body.String())
	assert.EqualValues(t, 1, stub.calls.Load())
}

func TestChatMissingFieldsNeverCallUpstream(t *testing.T) {
	srv, stub := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {})

	openai := newRelayHandler(t, llm.NewOpenAIAdapter(srv.URL), 0)
	hf := newRelayHandler(t, llm.NewHuggingFaceAdapter(srv.URL, "m", llm.DefaultGenerationParams()), 0)

	for _, tc := range []struct {
		h    *ChatHandler
		body string
	}{
		{openai, `{"model":"gpt-4o"}`},
		{openai, `{"messages":[{"role":"user","content":"Hello"}]}`},
		{hf, `{"model":"gpt-4o"}`},
		{hf, `not json`},
		{openai, `{"Model":"gpt-4o","MESSAGES":[{"role":"user","content":"Hello"}]}`},
	} {
		rr := postChat(t, tc.h, tc.body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, tc.body)
		assert.True(t, strings.HasPrefix(decodeDetail(t, rr), "Invalid request payload"), tc.body)
	}

	assert.Zero(t, stub.calls.Load())
}

func TestChatPassThroughForwardsContentParts(t *testing.T) {
	const body = `{"model":"gpt-4o","messages":[{"role":"user","content":[{"type":"text","text":"hi"}]}]}`
	srv, stub := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[]}`)
	})

	h := newRelayHandler(t, llm.NewOpenAIAdapter(srv.URL), 0)
	rr := postChat(t, h, body)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, stub.calls.Load())
	assert.Equal(t, body, string(stub.body.Load().([]byte)))
}

func TestChatUpstream401IsMirrored(t *testing.T) {
	const upstream = `{"error":{"message":"Incorrect API key provided"}}`
	srv, _ := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, upstream)
	})

	h := newRelayHandler(t, llm.NewOpenAIAdapter(srv.URL), 0)
	rr := postChat(t, h, `{"model":"gpt-4o","messages":[{"role":"user","content":"Hello"}]}`)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, decodeDetail(t, rr), upstream)
}

func TestChatPromptFlattening(t *testing.T) {
	srv, stub := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"generated_text": "Hi there"}]`)
	})

	h := newRelayHandler(t, llm.NewHuggingFaceAdapter(srv.URL, "acme/chat", llm.DefaultGenerationParams()), 0)
	rr := postChat(t, h, `{"messages": [{"role": "user", "content": "Hello"}]}`)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"choices": [{"message": {"role": "assistant", "content": "Hi there"}}]}`, rr.Body.String())

	var sent struct {
		Inputs string `json:"inputs"`
	}
	require.NoError(t, json.Unmarshal(stub.body.Load().([]byte), &sent))
	assert.Equal(t, "User: Hello\n", sent.Inputs)
}

func TestChatUpstreamTimeout(t *testing.T) {
	release := make(chan struct{})
	srv, stub := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	// Registered after newUpstream so it runs before srv.Close.
	t.Cleanup(func() { close(release) })

	h := newRelayHandler(t, llm.NewOpenAIAdapter(srv.URL), 50*time.Millisecond)
	rr := postChat(t, h, `{"model":"gpt-4o","messages":[{"role":"user","content":"Hello"}]}`)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	detail := decodeDetail(t, rr)
	assert.True(t, strings.HasPrefix(detail, "Request error: "), detail)
	assert.Contains(t, detail, "deadline exceeded")
	assert.EqualValues(t, 1, stub.calls.Load())
}
