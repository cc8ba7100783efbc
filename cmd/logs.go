package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/hpcloud/tail"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
)

func newLogsCmd() *cobra.Command {
	var (
		follow   bool
		raw      bool
		minLevel string
	)

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Print or follow the WebPilot log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			path := cfg.Logger().LogFile
			if path == "" {
				return fmt.Errorf("logger.log_file is not set; there is no log file to read")
			}
			level, err := zapcore.ParseLevel(minLevel)
			if err != nil {
				return fmt.Errorf("invalid --level: %w", err)
			}

			t, err := tail.TailFile(path, tail.Config{
				Follow:    follow,
				ReOpen:    follow,
				MustExist: true,
				Logger:    tail.DiscardingLogger,
			})
			if err != nil {
				return fmt.Errorf("failed to open log file: %w", err)
			}
			defer t.Cleanup()

			out := cmd.OutOrStdout()
			for {
				select {
				case <-ctx.Done():
					_ = t.Stop()
					return nil
				case line, ok := <-t.Lines:
					if !ok {
						return t.Wait()
					}
					if line.Err != nil {
						return line.Err
					}
					writeLogLine(out, line.Text, raw, level)
				}
			}
		},
	}

	flags := logsCmd.Flags()
	flags.BoolVarP(&follow, "follow", "f", false, "keep reading as the log grows")
	flags.BoolVar(&raw, "raw", false, "print the JSON lines unchanged")
	flags.StringVar(&minLevel, "level", "debug", "lowest level to print")
	return logsCmd
}

// logEntry holds the keys of zap's production JSON encoder.
type logEntry struct {
	Level  string `json:"level"`
	TS     string `json:"ts"`
	Logger string `json:"logger"`
	Msg    string `json:"msg"`
	Error  string `json:"error"`
}

// writeLogLine renders one JSON log line as "ts LEVEL logger msg". Lines that
// are not JSON are printed as they are.
func writeLogLine(w io.Writer, text string, raw bool, min zapcore.Level) {
	var e logEntry
	if err := jsoniter.UnmarshalFromString(text, &e); err != nil || e.Msg == "" {
		fmt.Fprintln(w, text)
		return
	}
	if lvl, err := zapcore.ParseLevel(strings.ToLower(e.Level)); err == nil && lvl < min {
		return
	}
	if raw {
		fmt.Fprintln(w, text)
		return
	}

	var sb strings.Builder
	sb.WriteString(e.TS)
	sb.WriteString(" ")
	sb.WriteString(strings.ToUpper(e.Level))
	if e.Logger != "" {
		sb.WriteString(" ")
		sb.WriteString(e.Logger)
	}
	sb.WriteString(" ")
	sb.WriteString(e.Msg)
	if e.Error != "" {
		sb.WriteString(" error=")
		sb.WriteString(e.Error)
	}
	fmt.Fprintln(w, sb.String())
}
