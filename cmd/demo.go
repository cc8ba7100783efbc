package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/agent"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

type demoTask struct {
	Name string
	URL  string
	Task string
}

var demoTasks = []demoTask{
	{
		Name: "search",
		URL:  "https://duckduckgo.com",
		Task: "Search for 'Go programming language' and open the official website",
	},
	{
		Name: "encyclopedia",
		URL:  "https://en.wikipedia.org",
		Task: "Find the article about web browsers and report its first sentence",
	},
	{
		Name: "reading",
		URL:  "https://example.com",
		Task: "Report the main heading of the page and where its link leads",
	},
}

func newDemoCmd() *cobra.Command {
	var list bool

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a fixed set of demonstration tasks in one browser session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if list {
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tURL\tTASK")
				for _, d := range demoTasks {
					fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.URL, d.Task)
				}
				return w.Flush()
			}

			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger().With(zap.String("command", "demo"))

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

			failed := 0
			for i, d := range demoTasks {
				fmt.Fprintf(out, "\n[%d/%d] %s\n", i+1, len(demoTasks), d.Name)
				if err := b.Goto(ctx, d.URL); err != nil {
					logger.Warn("Demo start page failed to load.", zap.String("url", d.URL), zap.Error(err))
				}

				res, err := comps.runTask(ctx, comps.newAgent(b), d.Task)
				if errors.Is(err, agent.ErrStopped) {
					fmt.Fprintln(out, "Demo stopped.")
					return ctx.Err()
				}
				if err != nil {
					return err
				}
				printResult(out, res)
				if !res.Success {
					failed++
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d demo tasks failed", failed, len(demoTasks))
			}
			return nil
		},
	}
	demoCmd.Flags().BoolVar(&list, "list", false, "print the demo tasks without running them")
	return demoCmd
}
