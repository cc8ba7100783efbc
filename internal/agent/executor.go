package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// Executor translates physical actions into browser primitive calls. It never
// returns an error: every outcome, including a panic in the browser adapter,
// becomes an ActionResult.
type Executor struct {
	browser schemas.Browser
	settle  config.SettleConfig
	maxWait time.Duration
	logger  *zap.Logger

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration)
}

// NewExecutor builds an Executor. A wait action longer than maxWait is cut
// to maxWait; a non-positive maxWait leaves only schemas.MaxWaitSeconds.
func NewExecutor(browser schemas.Browser, settle config.SettleConfig, maxWait time.Duration, logger *zap.Logger) *Executor {
	return &Executor{
		browser: browser,
		settle:  settle,
		maxWait: maxWait,
		logger:  logger.Named("executor"),
		sleep:   sleepCtx,
	}
}

// sleepCtx pauses for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Execute validates and dispatches one action.
func (e *Executor) Execute(ctx context.Context, action schemas.Action) (result schemas.ActionResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic recovered during action execution",
				zap.String("action", string(action.Kind)),
				zap.Any("panic_value", r),
				zap.Stack("stack"),
			)
			result = schemas.Failed(schemas.ErrCodeExecutorPanic, fmt.Sprintf("executor panic: %v", r))
		}
	}()

	if !action.Kind.IsPhysical() {
		return schemas.Failed(schemas.ErrCodeUnknownAction, schemas.ErrUnknownAction.Error())
	}
	if err := action.Validate(); err != nil {
		e.logger.Warn("Action rejected before dispatch",
			zap.String("action", string(action.Kind)),
			zap.Error(err),
		)
		return schemas.Failed(schemas.ErrCodeInvalidParameters, rejectionText(err))
	}

	result = e.dispatch(ctx, action)
	if !result.Success {
		e.logger.Warn("Action failed",
			zap.String("action", string(action.Kind)),
			zap.String("code", string(result.Code)),
			zap.String("error", result.Error),
		)
	}
	return result
}

func (e *Executor) dispatch(ctx context.Context, action schemas.Action) schemas.ActionResult {
	d := action.Details

	switch action.Kind {
	case schemas.ActionNavigate:
		if err := e.browser.Goto(ctx, d.URL); err != nil {
			return browserFailure(err)
		}
		e.sleep(ctx, e.settle.Navigate)
		return schemas.Succeeded("Navigated to " + d.URL)

	case schemas.ActionClick:
		if d.Selector != "" {
			if err := e.browser.Click(ctx, d.Selector); err != nil {
				return browserFailure(err)
			}
			e.sleep(ctx, e.settle.Click)
			return schemas.Succeeded("Clicked " + d.Selector)
		}
		x, y := *d.X, *d.Y
		if err := e.browser.ClickAt(ctx, x, y); err != nil {
			return browserFailure(err)
		}
		e.sleep(ctx, e.settle.Click)
		return schemas.Succeeded(fmt.Sprintf("Clicked at (%g, %g)", x, y))

	case schemas.ActionType:
		if err := e.browser.Fill(ctx, d.Selector, d.Text); err != nil {
			return browserFailure(err)
		}
		e.sleep(ctx, e.settle.Type)
		return schemas.Succeeded(fmt.Sprintf("Typed %q into %s", d.Text, d.Selector))

	case schemas.ActionPress:
		if err := e.browser.PressKey(ctx, d.Key); err != nil {
			return browserFailure(err)
		}
		e.sleep(ctx, e.settle.Press)
		return schemas.Succeeded("Pressed " + d.Key)

	case schemas.ActionScroll:
		dir := d.ResolvedDirection()
		dy := d.ScrollAmount()
		if dir == schemas.ScrollUp {
			dy = -dy
		}
		if err := e.browser.ScrollBy(ctx, 0, dy); err != nil {
			return browserFailure(err)
		}
		e.sleep(ctx, e.settle.Scroll)
		return schemas.Succeeded(fmt.Sprintf("Scrolled %s", dir))

	case schemas.ActionWait:
		wait := d.WaitDuration()
		if e.maxWait > 0 && wait > e.maxWait {
			e.logger.Info("Capping planner wait.",
				zap.Duration("requested", wait),
				zap.Duration("max_wait", e.maxWait),
			)
			wait = e.maxWait
		}
		e.sleep(ctx, wait)
		return schemas.Succeeded(fmt.Sprintf("Waited %g seconds", wait.Seconds()))
	}

	return schemas.Failed(schemas.ErrCodeUnknownAction, schemas.ErrUnknownAction.Error())
}

// rejectionText reports a missing field with the bare sentinel text; the
// field itself is in the log.
func rejectionText(err error) string {
	if errors.Is(err, schemas.ErrMissingField) {
		return schemas.ErrMissingField.Error()
	}
	return err.Error()
}

func browserFailure(err error) schemas.ActionResult {
	return schemas.Failed(ClassifyBrowserError(err), err.Error())
}
