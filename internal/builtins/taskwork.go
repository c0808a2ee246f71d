// ABOUTME: Long-running task tools with progress reporting and cooperative cancellation
// ABOUTME: long_running_task executes in bounded steps; cancel_task flips the advisory flag

package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2389/warden-gateway/internal/auth"
	"github.com/2389/warden-gateway/internal/tasks"
	"github.com/2389/warden-gateway/internal/tools"
)

// Step bounds for long_running_task.
const (
	defaultTaskSteps = 5
	maxTaskSteps     = 50
	defaultStepDelay = 100 * time.Millisecond
	maxStepDelay     = 5 * time.Second
)

// TaskTools returns the long-running task tools wired to the given store.
func TaskTools(store *tasks.Store) []tools.Tool {
	h := &taskHandlers{store: store}
	return []tools.Tool{
		&tools.StaticTool{
			Definition: tools.Descriptor{
				Name:        "long_running_task",
				Description: "Run a multi-step task with progress reporting and cancellation",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"steps":{"type":"integer","minimum":1,"maximum":50},"step_duration_ms":{"type":"integer","minimum":0,"maximum":5000}}}`),
				Scopes:      &auth.ScopeRequirement{AnyOf: []string{"mcp:call"}},
			},
			Handler: h.LongRunningTask,
		},
		&tools.StaticTool{
			Definition: tools.Descriptor{
				Name:        "cancel_task",
				Description: "Request cancellation of a running task by id",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"task_id":{"type":"string"}},"required":["task_id"]}`),
				Scopes:      &auth.ScopeRequirement{AnyOf: []string{"mcp:call"}},
			},
			Handler: h.CancelTask,
		},
	}
}

type taskHandlers struct {
	store *tasks.Store
}

type longRunningInput struct {
	Steps          int `json:"steps"`
	StepDurationMS int `json:"step_duration_ms"`
}

// taskResult is the payload returned by long_running_task.
// Steps reports the number of steps actually executed, which is fewer
// than requested when the task was cancelled mid-run.
type taskResult struct {
	TaskID    string   `json:"task_id"`
	Completed bool     `json:"completed"`
	Cancelled bool     `json:"cancelled"`
	Steps     int      `json:"steps"`
	Progress  []string `json:"progress"`
}

func (h *taskHandlers) LongRunningTask(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in longRunningInput
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("invalid input: %w", err)
		}
	}

	steps := in.Steps
	if steps <= 0 {
		steps = defaultTaskSteps
	}
	if steps > maxTaskSteps {
		steps = maxTaskSteps
	}
	delay := defaultStepDelay
	if in.StepDurationMS > 0 {
		delay = time.Duration(in.StepDurationMS) * time.Millisecond
	}
	if delay > maxStepDelay {
		delay = maxStepDelay
	}

	rec := h.store.Create("long_running_task", steps)
	defer h.store.Remove(rec.ID)
	h.store.SetState(rec.ID, tasks.StateRunning)

	progress := make([]string, 0, steps)
	completed := 0

	for step := 1; step <= steps; step++ {
		// Re-read our own record before each step: cancellation is
		// observed cooperatively, never preempted.
		current, ok := h.store.Get(rec.ID)
		if !ok || current.Cancelled || ctx.Err() != nil {
			h.store.SetState(rec.ID, tasks.StateCancelled)
			return json.Marshal(taskResult{
				TaskID:    rec.ID,
				Completed: false,
				Cancelled: true,
				Steps:     completed,
				Progress:  progress,
			})
		}

		select {
		case <-ctx.Done():
			h.store.SetState(rec.ID, tasks.StateCancelled)
			return json.Marshal(taskResult{
				TaskID:    rec.ID,
				Completed: false,
				Cancelled: true,
				Steps:     completed,
				Progress:  progress,
			})
		case <-time.After(delay):
		}

		completed = step
		message := fmt.Sprintf("step %d/%d complete", step, steps)
		h.store.Advance(rec.ID, step, message)
		progress = append(progress, message)
	}

	h.store.SetState(rec.ID, tasks.StateCompleted)
	return json.Marshal(taskResult{
		TaskID:    rec.ID,
		Completed: true,
		Cancelled: false,
		Steps:     completed,
		Progress:  progress,
	})
}

type cancelInput struct {
	TaskID string `json:"task_id"`
}

func (h *taskHandlers) CancelTask(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in cancelInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	found := h.store.Cancel(in.TaskID)
	return json.Marshal(map[string]any{
		"task_id": in.TaskID,
		"found":   found,
	})
}
