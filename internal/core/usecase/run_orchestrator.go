package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
	"github.com/kirillkom/claim-assistant/internal/core/ports"
)

const (
	defaultPollInterval = time.Second
	defaultRunTimeout   = 5 * time.Minute
)

// RunOrchestrator drives one assistant run from start to a settled state,
// answering tool calls from the registry along the way.
type RunOrchestrator struct {
	client       ports.AssistantClient
	tools        *ToolRegistry
	observer     ports.RunObserver
	pollInterval time.Duration
	runTimeout   time.Duration
}

func NewRunOrchestrator(
	client ports.AssistantClient,
	tools *ToolRegistry,
	observer ports.RunObserver,
	pollInterval time.Duration,
	runTimeout time.Duration,
) *RunOrchestrator {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if runTimeout <= 0 {
		runTimeout = defaultRunTimeout
	}
	return &RunOrchestrator{
		client:       client,
		tools:        tools,
		observer:     observer,
		pollInterval: pollInterval,
		runTimeout:   runTimeout,
	}
}

// StartRun appends contextMessage to the thread and starts a run on it. An
// empty threadID creates a new thread first.
func (o *RunOrchestrator) StartRun(ctx context.Context, threadID, contextMessage string) (domain.RunHandle, error) {
	if strings.TrimSpace(contextMessage) == "" {
		return domain.RunHandle{}, domain.WrapError(domain.ErrInvalidInput, "start run", errors.New("message is required"))
	}
	if threadID == "" {
		created, err := o.client.CreateThread(ctx)
		if err != nil {
			return domain.RunHandle{}, fmt.Errorf("create thread: %w", err)
		}
		threadID = created
	}
	if err := o.client.AppendMessage(ctx, threadID, "user", contextMessage); err != nil {
		return domain.RunHandle{}, fmt.Errorf("append message: %w", err)
	}
	run, err := o.client.StartRun(ctx, threadID)
	if err != nil {
		return domain.RunHandle{}, fmt.Errorf("start run: %w", err)
	}
	return domain.RunHandle{ThreadID: threadID, RunID: run.ID, StartedAt: time.Now()}, nil
}

// PollUntilSettled polls the run until it reaches a terminal status. Pending
// tool calls are resolved in order and their outputs submitted as one batch
// before polling resumes. When ctx ends first the returned run has status
// abandoned and no error; the remote run is left as it is.
func (o *RunOrchestrator) PollUntilSettled(ctx context.Context, session *domain.Session, handle domain.RunHandle) (*domain.Run, error) {
	logger := slog.With("thread_id", handle.ThreadID, "run_id", handle.RunID)
	started := handle.StartedAt
	if started.IsZero() {
		started = time.Now()
	}

	for {
		if ctx.Err() != nil {
			return o.abandon(handle, started, logger), nil
		}

		run, err := o.client.GetRun(ctx, handle.ThreadID, handle.RunID)
		o.recordPoll()
		if err != nil {
			if ctx.Err() != nil {
				return o.abandon(handle, started, logger), nil
			}
			return nil, fmt.Errorf("get run: %w", err)
		}

		if run.Status == domain.RunStatusRequiresAction {
			outputs := o.resolveToolCalls(ctx, session, run.ToolCalls, logger)
			run, err = o.client.SubmitToolOutputs(ctx, handle.ThreadID, handle.RunID, outputs)
			if err != nil {
				if ctx.Err() != nil {
					return o.abandon(handle, started, logger), nil
				}
				return nil, fmt.Errorf("submit tool outputs: %w", err)
			}
			logger.Info("tool_outputs_submitted", "count", len(outputs))
		}

		if run.Status.Terminal() {
			o.recordSettled(run.Status, started)
			logger.Info("run_settled", "status", run.Status, "duration_ms", time.Since(started).Milliseconds())
			return run, nil
		}

		timer := time.NewTimer(o.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return o.abandon(handle, started, logger), nil
		case <-timer.C:
		}
	}
}

func (o *RunOrchestrator) resolveToolCalls(ctx context.Context, session *domain.Session, calls []domain.ToolCall, logger *slog.Logger) []domain.ToolOutput {
	outputs := make([]domain.ToolOutput, 0, len(calls))
	seen := make(map[string]struct{}, len(calls))
	for _, call := range calls {
		if _, dup := seen[call.ID]; dup {
			continue
		}
		seen[call.ID] = struct{}{}

		output, err := o.tools.Resolve(ctx, session, call)
		outcome := "ok"
		switch {
		case err == nil:
		case errors.Is(err, ErrUnknownTool):
			outcome = "unknown"
			logger.Warn("tool_call_unknown", "tool", call.Name, "call_id", call.ID)
		default:
			outcome = "error"
			logger.Warn("tool_call_failed", "tool", call.Name, "call_id", call.ID, "error", err)
		}
		if o.observer != nil {
			o.observer.RecordToolCall(call.Name, outcome)
		}
		outputs = append(outputs, output)
	}
	return outputs
}

func (o *RunOrchestrator) abandon(handle domain.RunHandle, started time.Time, logger *slog.Logger) *domain.Run {
	o.recordSettled(domain.RunStatusAbandoned, started)
	logger.Warn("run_abandoned", "duration_ms", time.Since(started).Milliseconds())
	return &domain.Run{ID: handle.RunID, ThreadID: handle.ThreadID, Status: domain.RunStatusAbandoned}
}

func (o *RunOrchestrator) recordPoll() {
	if o.observer != nil {
		o.observer.RecordPoll()
	}
}

func (o *RunOrchestrator) recordSettled(status domain.RunStatus, started time.Time) {
	if o.observer != nil {
		o.observer.RecordRunSettled(status, time.Since(started))
	}
}

// Converse runs one conversational turn bounded by the run timeout. The
// session's thread is created on first use. A completed run's final message
// is parsed into a ClaimResponse; a parse failure is reported on the reply.
func (o *RunOrchestrator) Converse(ctx context.Context, session *domain.Session, message string) (*domain.AssistantReply, error) {
	runCtx, cancel := context.WithTimeout(ctx, o.runTimeout)
	defer cancel()

	handle, err := o.StartRun(runCtx, session.ThreadID, message)
	if err != nil {
		return nil, err
	}
	session.ThreadID = handle.ThreadID

	run, err := o.PollUntilSettled(runCtx, session, handle)
	if err != nil {
		return nil, err
	}

	reply := &domain.AssistantReply{
		ThreadID:  handle.ThreadID,
		RunID:     handle.RunID,
		RunStatus: run.Status,
		RunError:  run.LastError,
	}
	if run.Status != domain.RunStatusCompleted {
		if reply.RunError == "" {
			reply.RunError = fmt.Sprintf("run ended with status %s", run.Status)
		}
		return reply, nil
	}

	raw, err := o.client.LatestAssistantMessage(ctx, handle.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("read assistant message: %w", err)
	}
	reply.Raw = raw
	response, err := ParseClaimResponse(raw)
	if err != nil {
		slog.Warn("claim_response_invalid", "thread_id", handle.ThreadID, "run_id", handle.RunID, "error", err)
		reply.ParseError = err.Error()
		return reply, nil
	}
	reply.Response = response
	return reply, nil
}
