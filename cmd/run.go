package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/agent"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

func newRunCmd() *cobra.Command {
	var task, startURL string

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single task to completion and persist its result",
		Example: `  webpilot run --task "Find the price of the cheapest flight to Lisbon" --url google.com/travel/flights
  webpilot run --task "Report the first headline" --url news.ycombinator.com --headless --max-steps 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			task = strings.TrimSpace(task)
			if task == "" {
				return errors.New("--task must not be empty")
			}
			logger := observability.GetLogger().With(zap.String("command", "run"))

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

			if startURL != "" {
				target := normalizeURL(startURL)
				if err := b.Goto(ctx, target); err != nil {
					return fmt.Errorf("failed to open start URL %s: %w", target, err)
				}
			}

			res, err := comps.runTask(ctx, comps.newAgent(b), task)
			if errors.Is(err, agent.ErrStopped) {
				fmt.Fprintln(cmd.OutOrStdout(), "Task stopped.")
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			}
			if err != nil {
				return err
			}

			printResult(cmd.OutOrStdout(), res)
			if !res.Success {
				return fmt.Errorf("task did not complete: %s", res.Error)
			}
			return nil
		},
	}

	flags := runCmd.Flags()
	flags.StringVarP(&task, "task", "t", "", "natural language task to perform (required)")
	flags.StringVarP(&startURL, "url", "u", "", "page to open before the first step")
	flags.Bool("headless", false, "run the browser without a visible window")
	flags.Int("max-steps", 0, "maximum planning steps before the run fails")
	flags.Duration("step-delay", time.Second, "pause between steps")
	flags.StringP("output", "o", "", "file or directory the result is written to (file sink)")
	flags.String("engine", "", "browser engine: chromedp or playwright")
	_ = runCmd.MarkFlagRequired("task")

	configFlag(runCmd, "headless", "browser.headless")
	configFlag(runCmd, "engine", "browser.engine")
	configFlag(runCmd, "max-steps", "agent.max_steps")
	configFlag(runCmd, "step-delay", "agent.step_delay")
	configFlag(runCmd, "output", "results.path")
	return runCmd
}
