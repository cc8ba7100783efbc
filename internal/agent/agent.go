// Package agent implements the perceive-plan-act control loop: page state is
// captured, a planner chooses the next action and the executor dispatches it
// against the browser until the task completes or the step budget runs out.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/llmutil"
	"github.com/xkilldash9x/webpilot/internal/observability"
	"github.com/xkilldash9x/webpilot/internal/pagestate"
	"github.com/xkilldash9x/webpilot/internal/planner"
)

// State is the lifecycle state of an Agent.
type State string

const (
	StateIdle      State = "IDLE"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StateStopped   State = "STOPPED"
)

// IsTerminal reports whether the state can no longer change.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateStopped
}

// FailureReason qualifies StateFailed.
type FailureReason string

const (
	ReasonStepLimit FailureReason = "STEP_LIMIT"
	ReasonError     FailureReason = "ERROR"
)

// askUserWait is the delay dispatched in place of a request for human input.
const askUserWait = 1.0

// rawLogLimit bounds planner output echoed into logs.
const rawLogLimit = 500

// Allows for mocking in tests.
var uuidNewString = uuid.NewString

// PageCapturer produces the page snapshot for a step. It must not fail.
type PageCapturer interface {
	Capture(ctx context.Context) schemas.PageState
}

var _ PageCapturer = (*pagestate.Extractor)(nil)

// Status is a point-in-time view of an Agent, safe to read while it runs.
type Status struct {
	State       State                 `json:"state"`
	Reason      FailureReason         `json:"reason,omitempty"`
	Step        int                   `json:"step"`
	MaxSteps    int                   `json:"max_steps"`
	Task        string                `json:"task"`
	RunID       string                `json:"run_id,omitempty"`
	Summary     Summary               `json:"summary"`
	LastSuccess *schemas.HistoryEntry `json:"last_success,omitempty"`
}

// Agent runs a single task. It is not reusable: once its run has ended, a new
// Agent is needed for the next task.
type Agent struct {
	cfg       config.AgentConfig
	llm       schemas.LLMClient
	metrics   *observability.Metrics
	logger    *zap.Logger
	extractor PageCapturer
	executor  *Executor
	memory    *Memory

	sleep func(ctx context.Context, d time.Duration)
	now   func() time.Time

	mu      sync.RWMutex
	state   State
	reason  FailureReason
	step    int
	runID   string
	stopped bool
	cancel  context.CancelFunc
}

// Option customizes an Agent.
type Option func(*Agent)

// WithExtractor replaces the default page-state extractor.
func WithExtractor(e PageCapturer) Option {
	return func(a *Agent) { a.extractor = e }
}

// WithSleep replaces the delay used between steps and after page interactions.
func WithSleep(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(a *Agent) {
		a.sleep = sleep
		a.executor.sleep = sleep
	}
}

// New wires an Agent over an already started browser. metrics may be nil.
func New(cfg config.Interface, browser schemas.Browser, llm schemas.LLMClient, metrics *observability.Metrics, logger *zap.Logger, opts ...Option) *Agent {
	agentCfg := cfg.Agent()
	logger = logger.Named("agent")

	a := &Agent{
		cfg:     agentCfg,
		llm:     llm,
		metrics: metrics,
		logger:  logger,
		extractor: pagestate.NewExtractor(browser, pagestate.Options{
			CaptureScreenshot: agentCfg.CaptureScreenshots,
		}, logger),
		executor: NewExecutor(browser, cfg.Browser().Settle, agentCfg.MaxWait, logger),
		memory:   NewMemory(agentCfg.HistoryLimit, agentCfg.ObservationLimit),
		sleep:    sleepCtx,
		now:      func() time.Time { return time.Now().UTC() },
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Memory exposes the run memory for read-only inspection.
func (a *Agent) Memory() *Memory { return a.memory }

// -- Lifecycle --

// Run drives the loop for task until it completes, fails or is stopped. A
// stop request, through Stop or ctx, is honored between steps and during a
// wait action; the browser and planner calls of the current step always run
// to completion.
// A stopped run returns ErrStopped and no result.
func (a *Agent) Run(ctx context.Context, task string) (result *schemas.TaskResult, err error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.mu.Lock()
	switch {
	case a.state == StateRunning:
		a.mu.Unlock()
		return nil, ErrAlreadyRunning
	case a.stopped:
		a.mu.Unlock()
		return nil, ErrStopped
	case a.state != StateIdle:
		a.mu.Unlock()
		return nil, ErrFinished
	}
	runID := uuidNewString()
	a.runID = runID
	a.cancel = cancel
	a.step = 0
	a.memory.Reset(task)
	a.state = StateRunning
	a.mu.Unlock()

	logger := a.logger.With(zap.String("run_id", runID))
	logger.Debug("Agent state transition", zap.String("from", string(StateIdle)), zap.String("to", string(StateRunning)))
	startedAt := a.now()
	maxSteps := a.cfg.MaxSteps

	logger.Info("Starting task run.",
		zap.String("task", task),
		zap.Int("max_steps", maxSteps),
		zap.Duration("step_delay", a.cfg.StepDelay),
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic recovered during control loop",
				zap.Any("panic_value", r),
				zap.Stack("stack"),
			)
			result = a.finish(logger, startedAt, StateFailed, ReasonError, "", fmt.Sprintf("agent panic: %v", r))
			err = nil
		}
	}()

	// Collaborator calls run to completion; only step boundaries observe stop.
	opCtx := context.WithoutCancel(runCtx)

	for step := 1; step <= maxSteps; step++ {
		if runCtx.Err() != nil {
			return a.stop(logger)
		}
		a.setStep(step)
		a.metrics.RecordStep()

		state := a.extractor.Capture(opCtx)
		if state.IsEmpty() {
			logger.Warn("Captured an empty page state.", zap.Int("step", step))
		}
		a.memory.AddObservation(state)

		plan := a.plan(opCtx, logger, state)
		action := plan.Action

		logger.Info("Step planned.",
			zap.Int("step", step),
			zap.String("action", string(action.Kind)),
			zap.Float64("confidence", plan.Confidence),
			zap.String("thoughts", llmutil.Truncate(plan.Thoughts, rawLogLimit)),
		)

		switch action.Kind {
		case schemas.ActionComplete:
			text := action.Details.Result
			if text == "" {
				text = schemas.DefaultCompletion
			}
			return a.finish(logger, startedAt, StateCompleted, "", text, ""), nil

		case schemas.ActionAskUser:
			if a.cfg.AskUserPolicy == config.AskUserAbort {
				msg := "planner requested user input"
				if q := action.Details.Question; q != "" {
					msg += ": " + q
				}
				return a.finish(logger, startedAt, StateFailed, ReasonError, "", msg), nil
			}
			logger.Info("Planner asked for user input, waiting instead.",
				zap.String("question", action.Details.Question))
			action = schemas.WaitFor(askUserWait)
		}

		// A wait touches no page state, so stop may cut it short.
		execCtx := opCtx
		if action.Kind == schemas.ActionWait {
			execCtx = runCtx
		}
		res := a.executor.Execute(execCtx, action)
		a.memory.AddAction(action, res)
		a.metrics.RecordAction(string(action.Kind), res.Success)

		logger.Debug("Step finished.",
			zap.Int("step", step),
			zap.Bool("success", res.Success),
			zap.String("result", res.Text()),
		)

		if step < maxSteps {
			a.sleep(runCtx, a.cfg.StepDelay)
		}
	}

	if runCtx.Err() != nil {
		return a.stop(logger)
	}
	return a.finish(logger, startedAt, StateFailed, ReasonStepLimit, "", fmt.Sprintf("step limit reached (%d)", maxSteps)), nil
}

// Stop asks the loop to exit at the next step boundary. Stopping an agent
// that has not started keeps it from ever running. Stop is idempotent.
func (a *Agent) Stop() {
	a.mu.Lock()
	a.stopped = true
	cancel := a.cancel
	idle := a.state == StateIdle
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if idle {
		a.updateState(StateStopped, "")
	}
}

func (a *Agent) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *Agent) Status() Status {
	a.mu.RLock()
	s := Status{
		State:    a.state,
		Reason:   a.reason,
		Step:     a.step,
		MaxSteps: a.cfg.MaxSteps,
		RunID:    a.runID,
	}
	a.mu.RUnlock()

	s.Task = a.memory.Task()
	s.Summary = a.memory.Summary()
	if last, ok := a.memory.LastSuccessfulAction(); ok {
		s.LastSuccess = &last
	}
	return s
}

// -- Step Internals --

// plan asks the planner for the next action. Neither a failed request nor
// unusable output ends the run; both yield the fallback plan.
func (a *Agent) plan(ctx context.Context, logger *zap.Logger, state schemas.PageState) schemas.Plan {
	llmCfg := a.cfg.LLM
	req := schemas.GenerationRequest{
		UserPrompt: planner.Format(a.memory.Task(), a.memory.RecentHistory(planner.HistoryWindow), state),
		Options: schemas.GenerationOptions{
			Temperature:     float64(llmCfg.Temperature),
			MaxTokens:       llmCfg.MaxTokens,
			ForceJSONFormat: true,
		},
	}

	apiCtx := ctx
	if llmCfg.APITimeout > 0 {
		var cancel context.CancelFunc
		apiCtx, cancel = context.WithTimeout(ctx, llmCfg.APITimeout)
		defer cancel()
	}

	started := time.Now()
	raw, err := a.llm.Generate(apiCtx, req)
	if err != nil {
		a.metrics.RecordPlannerRequest("error", time.Since(started))
		a.metrics.RecordFallback("planner_error")
		logger.Warn("Planner request failed, using fallback plan.", zap.Error(err))
		return schemas.FallbackPlan()
	}
	a.metrics.RecordPlannerRequest("ok", time.Since(started))

	plan, perr := planner.ParseWithReason(raw)
	if perr != nil {
		reason := planner.FallbackReason(perr)
		a.metrics.RecordFallback(reason)
		logger.Warn("Planner output unusable, using fallback plan.",
			zap.String("reason", reason),
			zap.Error(perr),
			zap.String("raw", llmutil.Truncate(raw, rawLogLimit)),
		)
	}
	return plan
}

func (a *Agent) finish(logger *zap.Logger, startedAt time.Time, state State, reason FailureReason, text, errText string) *schemas.TaskResult {
	a.updateState(state, reason)
	a.metrics.RecordRun(runLabel(state, reason))

	a.mu.RLock()
	steps, runID := a.step, a.runID
	a.mu.RUnlock()

	result := &schemas.TaskResult{
		RunID:      runID,
		Task:       a.memory.Task(),
		Success:    state == StateCompleted,
		Result:     text,
		Error:      errText,
		Steps:      steps,
		History:    a.memory.History(),
		StartedAt:  startedAt,
		FinishedAt: a.now(),
	}

	fields := []zap.Field{
		zap.String("state", string(state)),
		zap.Int("steps", steps),
		zap.Duration("elapsed", result.FinishedAt.Sub(startedAt)),
	}
	if result.Success {
		logger.Info("Task run completed.", append(fields, zap.String("result", text))...)
	} else {
		logger.Info("Task run failed.", append(fields, zap.String("reason", string(reason)), zap.String("error", errText))...)
	}
	return result
}

func (a *Agent) stop(logger *zap.Logger) (*schemas.TaskResult, error) {
	a.updateState(StateStopped, "")
	a.metrics.RecordRun(runLabel(StateStopped, ""))
	logger.Info("Task run stopped.", zap.Int("steps", a.Status().Step))
	return nil, ErrStopped
}

// runLabel names a terminal state for metrics, e.g. "failed_step_limit".
func runLabel(state State, reason FailureReason) string {
	label := strings.ToLower(string(state))
	if reason != "" {
		label += "_" + strings.ToLower(string(reason))
	}
	return label
}

func (a *Agent) setStep(step int) {
	a.mu.Lock()
	a.step = step
	a.mu.Unlock()
}

// updateState applies a transition. Terminal states cannot be exited.
func (a *Agent) updateState(next State, reason FailureReason) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == next {
		return
	}
	if a.state.IsTerminal() {
		a.logger.Warn("Attempted to transition out of a terminal state. Ignoring.",
			zap.String("current_state", string(a.state)),
			zap.String("attempted_state", string(next)))
		return
	}

	a.logger.Debug("Agent state transition", zap.String("from", string(a.state)), zap.String("to", string(next)))
	a.state = next
	a.reason = reason
}
