package assistants

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
	"github.com/kirillkom/claim-assistant/internal/infrastructure/httpclient"
	"github.com/kirillkom/claim-assistant/internal/infrastructure/resilience"
)

const (
	defaultAPIVersion = "2024-05-01-preview"
	service           = "assistant"
)

// Run polls and message reads are lookups; everything that adds to a thread
// runs once.
var (
	opCreateThread      = resilience.Submission(service, "create_thread")
	opAppendMessage     = resilience.Submission(service, "append_message")
	opStartRun          = resilience.Submission(service, "start_run")
	opGetRun            = resilience.Lookup(service, "get_run")
	opSubmitToolOutputs = resilience.Submission(service, "submit_tool_outputs")
	opListMessages      = resilience.Lookup(service, "list_messages")
)

type Config struct {
	Endpoint    string
	APIKey      string
	APIVersion  string
	AssistantID string
	Timeout     time.Duration
}

// Client drives threads and runs on a hosted assistant. The assistant's
// instructions and tool declarations live on the remote side.
type Client struct {
	assistantID string
	query       url.Values
	api         *httpclient.Client
}

func New(cfg Config, executor *resilience.Executor) *Client {
	version := strings.TrimSpace(cfg.APIVersion)
	if version == "" {
		version = defaultAPIVersion
	}
	base := strings.TrimRight(cfg.Endpoint, "/") + "/openai"
	headers := map[string]string{"api-key": cfg.APIKey}
	return &Client{
		assistantID: cfg.AssistantID,
		query:       url.Values{"api-version": {version}},
		api: httpclient.New(service, base, httpclient.Options{
			Timeout:  cfg.Timeout,
			Headers:  headers,
			Executor: executor,
		}),
	}
}

type runPayload struct {
	ID             string `json:"id"`
	ThreadID       string `json:"thread_id"`
	Status         string `json:"status"`
	RequiredAction *struct {
		SubmitToolOutputs struct {
			ToolCalls []struct {
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"submit_tool_outputs"`
	} `json:"required_action"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
}

func (p runPayload) toDomain() *domain.Run {
	run := &domain.Run{
		ID:       p.ID,
		ThreadID: p.ThreadID,
		Status:   domain.RunStatus(p.Status),
	}
	if p.RequiredAction != nil {
		for _, call := range p.RequiredAction.SubmitToolOutputs.ToolCalls {
			run.ToolCalls = append(run.ToolCalls, domain.ToolCall{
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			})
		}
	}
	if p.LastError != nil {
		run.LastError = strings.TrimSpace(p.LastError.Message)
		if run.LastError == "" {
			run.LastError = p.LastError.Code
		}
	}
	return run
}

func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if _, err := c.api.Do(ctx, http.MethodPost, "/threads", c.query, map[string]any{}, &out, opCreateThread); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("assistant create_thread: empty thread id")
	}
	return out.ID, nil
}

func (c *Client) AppendMessage(ctx context.Context, threadID, role, content string) error {
	payload := map[string]string{"role": role, "content": content}
	_, err := c.api.Do(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/messages", c.query, payload, nil, opAppendMessage)
	return err
}

func (c *Client) StartRun(ctx context.Context, threadID string) (*domain.Run, error) {
	var out runPayload
	payload := map[string]string{"assistant_id": c.assistantID}
	if _, err := c.api.Do(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/runs", c.query, payload, &out, opStartRun); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*domain.Run, error) {
	var out runPayload
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID)
	if _, err := c.api.Do(ctx, http.MethodGet, path, c.query, nil, &out, opGetRun); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []domain.ToolOutput) (*domain.Run, error) {
	var out runPayload
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID) + "/submit_tool_outputs"
	payload := map[string]any{"tool_outputs": outputs}
	if _, err := c.api.Do(ctx, http.MethodPost, path, c.query, payload, &out, opSubmitToolOutputs); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

// LatestAssistantMessage returns the text of the newest message on the thread.
func (c *Client) LatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	var out struct {
		Data []struct {
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text struct {
					Value string `json:"value"`
				} `json:"text"`
			} `json:"content"`
		} `json:"data"`
	}
	query := url.Values{"order": {"desc"}, "limit": {"1"}}
	for key, values := range c.query {
		query[key] = values
	}
	if _, err := c.api.Do(ctx, http.MethodGet, "/threads/"+url.PathEscape(threadID)+"/messages", query, nil, &out, opListMessages); err != nil {
		return "", err
	}
	if len(out.Data) == 0 || out.Data[0].Role != "assistant" {
		return "", domain.WrapError(domain.ErrInvalidResponse, "latest assistant message", fmt.Errorf("thread %s has no assistant reply", threadID))
	}

	var b strings.Builder
	for _, part := range out.Data[0].Content {
		if part.Type != "text" {
			continue
		}
		b.WriteString(part.Text.Value)
	}
	return b.String(), nil
}
