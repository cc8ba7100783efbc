package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/agent"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

const replHelp = `Commands:
  /task <text>   run a task (a line without a leading slash does the same)
  /url <url>     navigate the browser (only while no task is running)
  /stop          stop the running task at the next step boundary
  /status        show the state of the current or last task
  /help          show this help
  /exit          stop any running task and quit
`

func newInteractiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "interactive",
		Aliases: []string{"repl"},
		Short:   "Start the interactive console (the default when no command is given)",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd)
		},
	}
}

func runInteractive(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg, err := configFromContext(ctx)
	if err != nil {
		return err
	}
	logger := observability.GetLogger().With(zap.String("command", "interactive"))

	comps, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer comps.Shutdown()

	b, err := comps.startBrowser(ctx)
	if err != nil {
		return err
	}
	defer comps.closeBrowser(b)

	r := newREPL(comps, b, cmd.OutOrStdout(), logger)
	return r.Loop(ctx, cmd.InOrStdin())
}

// repl is the interactive console. Tasks run in the background so /stop and
// /status stay responsive; at most one task runs at a time.
type repl struct {
	comps   *components
	browser schemas.Browser
	logger  *zap.Logger

	outMu sync.Mutex
	out   io.Writer

	mu      sync.Mutex
	current *agent.Agent
	done    chan struct{}
}

func newREPL(comps *components, b schemas.Browser, out io.Writer, logger *zap.Logger) *repl {
	return &repl{comps: comps, browser: b, out: out, logger: logger}
}

func (r *repl) printf(format string, args ...any) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

// Loop reads commands from in until EOF, /exit, or ctx is done.
func (r *repl) Loop(ctx context.Context, in io.Reader) error {
	r.printf("WebPilot %s interactive console. Type /help for commands.\n", Version)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-quit:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	defer r.shutdown()
	for {
		r.printf("> ")
		select {
		case <-ctx.Done():
			r.printf("\n")
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if r.handle(ctx, strings.TrimSpace(line)) {
				return nil
			}
		}
	}
}

// handle executes one console line and reports whether the console should exit.
func (r *repl) handle(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/exit", "/quit":
		return true
	case "/help":
		r.printf("%s", replHelp)
	case "/task":
		if arg == "" {
			r.printf("Usage: /task <text>\n")
			return false
		}
		r.startTask(ctx, arg)
	case "/url":
		r.navigate(ctx, arg)
	case "/stop":
		r.stop()
	case "/status":
		r.status(ctx)
	default:
		if strings.HasPrefix(name, "/") {
			r.printf("Unknown command %s. Type /help for commands.\n", name)
			return false
		}
		r.startTask(ctx, line)
	}
	return false
}

func (r *repl) runningLocked() bool {
	if r.done == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

func (r *repl) startTask(ctx context.Context, task string) {
	r.mu.Lock()
	if r.runningLocked() {
		r.mu.Unlock()
		r.printf("A task is already running. Use /stop first.\n")
		return
	}
	// Each task gets a fresh agent; the browser session carries over.
	a := r.comps.newAgent(r.browser)
	done := make(chan struct{})
	r.current, r.done = a, done
	r.mu.Unlock()

	r.printf("Started task: %s\n", task)
	go func() {
		defer close(done)
		res, err := r.comps.runTask(ctx, a, task)
		switch {
		case errors.Is(err, agent.ErrStopped):
			r.printf("\nTask stopped.\n")
		case err != nil:
			r.printf("\nTask error: %v\n", err)
		default:
			r.outMu.Lock()
			fmt.Fprintln(r.out)
			printResult(r.out, res)
			r.outMu.Unlock()
		}
	}()
}

func (r *repl) navigate(ctx context.Context, raw string) {
	if raw == "" {
		r.printf("Usage: /url <url>\n")
		return
	}
	r.mu.Lock()
	running := r.runningLocked()
	r.mu.Unlock()
	if running {
		r.printf("Cannot navigate while a task is running. Use /stop first.\n")
		return
	}

	target := normalizeURL(raw)
	if err := r.browser.Goto(ctx, target); err != nil {
		r.printf("Navigation failed: %v\n", err)
		return
	}
	r.printf("Navigated to %s\n", target)
}

func (r *repl) stop() {
	r.mu.Lock()
	a, running := r.current, r.runningLocked()
	r.mu.Unlock()
	if !running {
		r.printf("No task is running.\n")
		return
	}
	a.Stop()
	r.printf("Stop requested; the task ends at the next step boundary.\n")
}

func (r *repl) status(ctx context.Context) {
	r.mu.Lock()
	a, running := r.current, r.runningLocked()
	r.mu.Unlock()

	// A running agent owns the browser; its last snapshot stands in.
	if running {
		if obs, ok := a.Memory().LatestObservation(); ok && obs.PageState.URL != "" {
			r.printf("Page:    %s\n", obs.PageState.URL)
		}
	} else if url, err := r.browser.CurrentURL(ctx); err == nil && url != "" {
		r.printf("Page:    %s\n", url)
	}
	if a == nil {
		r.printf("No task has been run yet.\n")
		return
	}

	st := a.Status()
	state := string(st.State)
	if st.Reason != "" {
		state += " (" + string(st.Reason) + ")"
	}
	r.printf("Task:    %s\n", st.Task)
	r.printf("State:   %s\n", state)
	r.printf("Step:    %d/%d\n", st.Step, st.MaxSteps)
	r.printf("Actions: %d (%d successful)\n", st.Summary.Total, st.Summary.Successful)
	if st.LastSuccess != nil {
		r.printf("Last:    %s\n", st.LastSuccess.Action.Kind)
	}
}

// wait blocks until the background task, if any, has finished.
func (r *repl) wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (r *repl) shutdown() {
	r.mu.Lock()
	a, running := r.current, r.runningLocked()
	r.mu.Unlock()
	if running {
		a.Stop()
	}
	r.wait()
}
