package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/agent"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

// batchFile is the YAML document accepted by `webpilot batch`.
//
//	concurrency: 2
//	tasks:
//	  - name: headline
//	    url: news.ycombinator.com
//	    task: Report the first headline
type batchFile struct {
	Concurrency int         `yaml:"concurrency"`
	Tasks       []batchTask `yaml:"tasks"`
}

type batchTask struct {
	Name string `yaml:"name"`
	Task string `yaml:"task"`
	URL  string `yaml:"url"`
}

type batchOutcome struct {
	Name   string
	Result *schemas.TaskResult
	Err    error
}

// loadBatch reads and validates a batch file. Unknown keys are rejected.
func loadBatch(path string) (*batchFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open batch file: %w", err)
	}
	defer f.Close()

	var batch batchFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&batch); err != nil {
		return nil, fmt.Errorf("failed to parse batch file %s: %w", path, err)
	}

	if len(batch.Tasks) == 0 {
		return nil, errors.New("batch file contains no tasks")
	}
	for i := range batch.Tasks {
		t := &batch.Tasks[i]
		t.Task = strings.TrimSpace(t.Task)
		if t.Task == "" {
			return nil, fmt.Errorf("batch task %d has no task text", i+1)
		}
		if t.Name == "" {
			t.Name = fmt.Sprintf("task-%d", i+1)
		}
	}
	if batch.Concurrency <= 0 {
		batch.Concurrency = 1
	}
	return &batch, nil
}

func newBatchCmd() *cobra.Command {
	var concurrency int

	batchCmd := &cobra.Command{
		Use:   "batch <tasks.yaml>",
		Short: "Run every task in a YAML file, each in its own browser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			batch, err := loadBatch(args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") && concurrency > 0 {
				batch.Concurrency = concurrency
			}
			logger := observability.GetLogger().With(zap.String("command", "batch"))

			// Concurrent runs must not overwrite each other's result file.
			if cfg.Results().Sink == config.SinkFile && filepath.Ext(cfg.Results().Path) != "" {
				cfg.SetResultsPath(strings.TrimSuffix(cfg.Results().Path, filepath.Ext(cfg.Results().Path)) + string(filepath.Separator))
			}

			comps, err := initializeComponents(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer comps.Shutdown()

			logger.Info("Starting batch.", zap.Int("tasks", len(batch.Tasks)), zap.Int("concurrency", batch.Concurrency))
			outcomes := runBatch(cmd, comps, batch)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATUS\tSTEPS\tDETAIL")
			failed := 0
			for _, o := range outcomes {
				status, steps, detail := "success", 0, ""
				switch {
				case o.Err != nil:
					status, detail = "error", o.Err.Error()
				case o.Result == nil:
					status = "skipped"
				default:
					steps = o.Result.Steps
					detail = o.Result.Result
					if !o.Result.Success {
						status, detail = "failed", o.Result.Error
					}
				}
				if status != "success" {
					failed++
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", o.Name, status, steps, schemas.TruncateRunes(detail, 80))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if ctx.Err() != nil {
				return ctx.Err()
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d batch tasks did not succeed", failed, len(outcomes))
			}
			return nil
		},
	}
	batchCmd.Flags().IntVarP(&concurrency, "concurrency", "n", 0, "browsers to run at once (overrides the file)")
	batchCmd.Flags().Bool("headless", false, "run the browsers without visible windows")
	configFlag(batchCmd, "headless", "browser.headless")
	return batchCmd
}

// runBatch runs the tasks with bounded concurrency. One task failing never
// cancels the others; only the command context does.
func runBatch(cmd *cobra.Command, comps *components, batch *batchFile) []batchOutcome {
	ctx := cmd.Context()
	outcomes := make([]batchOutcome, len(batch.Tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batch.Concurrency)
	for i, t := range batch.Tasks {
		outcomes[i].Name = t.Name
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			logger := comps.logger.With(zap.String("batch_task", t.Name))

			b, err := comps.startBrowser(gctx)
			if err != nil {
				outcomes[i].Err = err
				return nil
			}
			defer comps.closeBrowser(b)

			if t.URL != "" {
				if err := b.Goto(gctx, normalizeURL(t.URL)); err != nil {
					logger.Warn("Batch start page failed to load.", zap.String("url", t.URL), zap.Error(err))
				}
			}

			res, err := comps.runTask(gctx, comps.newAgent(b), t.Task)
			if errors.Is(err, agent.ErrStopped) {
				outcomes[i].Err = err
				return nil
			}
			outcomes[i].Result, outcomes[i].Err = res, err
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}
