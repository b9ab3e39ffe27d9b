package assistants

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
	"github.com/kirillkom/claim-assistant/internal/infrastructure/resilience"
)

func TestRunLifecycle(t *testing.T) {
	var submitted map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		assert.Equal(t, defaultAPIVersion, r.URL.Query().Get("api-version"))
		switch r.Method + " " + r.URL.Path {
		case "POST /openai/threads":
			_, _ = w.Write([]byte(`{"id":"thread_1"}`))
		case "POST /openai/threads/thread_1/messages":
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "user", body["role"])
			_, _ = w.Write([]byte(`{"id":"msg_1"}`))
		case "POST /openai/threads/thread_1/runs":
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "asst_1", body["assistant_id"])
			_, _ = w.Write([]byte(`{"id":"run_1","thread_id":"thread_1","status":"queued"}`))
		case "GET /openai/threads/thread_1/runs/run_1":
			_, _ = w.Write([]byte(`{"id":"run_1","thread_id":"thread_1","status":"requires_action","required_action":{"type":"submit_tool_outputs","submit_tool_outputs":{"tool_calls":[{"id":"call_1","type":"function","function":{"name":"get_currencies","arguments":"{}"}}]}}}`))
		case "POST /openai/threads/thread_1/runs/run_1/submit_tool_outputs":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&submitted))
			_, _ = w.Write([]byte(`{"id":"run_1","thread_id":"thread_1","status":"queued"}`))
		case "GET /openai/threads/thread_1/messages":
			assert.Equal(t, "desc", r.URL.Query().Get("order"))
			assert.Equal(t, "1", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`{"data":[{"role":"assistant","content":[{"type":"text","text":{"value":"{\"status\":\"COMPLETED\"}"}}]}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(Config{Endpoint: server.URL, APIKey: "secret", AssistantID: "asst_1"}, nil)
	ctx := context.Background()

	threadID, err := client.CreateThread(ctx)
	require.NoError(t, err)
	require.NoError(t, client.AppendMessage(ctx, threadID, "user", "hello"))

	run, err := client.StartRun(ctx, threadID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusQueued, run.Status)

	run, err = client.GetRun(ctx, threadID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRequiresAction, run.Status)
	assert.Equal(t, []domain.ToolCall{{ID: "call_1", Name: "get_currencies", Arguments: "{}"}}, run.ToolCalls)

	_, err = client.SubmitToolOutputs(ctx, threadID, run.ID, []domain.ToolOutput{{ToolCallID: "call_1", Output: `{"currencies":[]}`}})
	require.NoError(t, err)
	outputs, ok := submitted["tool_outputs"].([]any)
	require.True(t, ok)
	require.Len(t, outputs, 1)
	assert.Equal(t, "call_1", outputs[0].(map[string]any)["tool_call_id"])

	text, err := client.LatestAssistantMessage(ctx, threadID)
	require.NoError(t, err)
	assert.Equal(t, `{"status":"COMPLETED"}`, text)
}

func TestGetRunCarriesLastError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"run_1","thread_id":"t","status":"failed","last_error":{"code":"rate_limit_exceeded","message":""}}`))
	}))
	defer server.Close()

	client := New(Config{Endpoint: server.URL}, nil)
	run, err := client.GetRun(context.Background(), "t", "run_1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Equal(t, "rate_limit_exceeded", run.LastError)
}

func TestLatestAssistantMessageRequiresReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"role":"user","content":[{"type":"text","text":{"value":"hi"}}]}]}`))
	}))
	defer server.Close()

	client := New(Config{Endpoint: server.URL}, nil)
	_, err := client.LatestAssistantMessage(context.Background(), "t")
	assert.True(t, domain.IsKind(err, domain.ErrInvalidResponse))
}

func TestRunPollsAreRetriedButRunStartsAreNot(t *testing.T) {
	var starts, polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "POST /openai/threads/thread_1/runs":
			starts.Add(1)
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		case "GET /openai/threads/thread_1/runs/run_1":
			if polls.Add(1) < 2 {
				http.Error(w, "overloaded", http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"id":"run_1","thread_id":"thread_1","status":"completed"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     1,
	})
	client := New(Config{Endpoint: server.URL, AssistantID: "asst_1"}, executor)
	ctx := context.Background()

	_, err := client.StartRun(ctx, "thread_1")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrTemporary))
	assert.Equal(t, int32(1), starts.Load())

	run, err := client.GetRun(ctx, "thread_1", "run_1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, int32(2), polls.Load())
}
