package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

type contextKey string

const configKey contextKey = "webpilot.config"

// NewRootCommand builds a fresh command tree. Each call gets its own viper
// instance so tests never share configuration state.
func NewRootCommand() *cobra.Command {
	var cfgFile string
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "webpilot",
		Short: "WebPilot drives a real browser with an LLM planner to complete natural language tasks.",
		Long: `WebPilot observes the current page, asks a language model for the next
action, performs it, and repeats until the task is complete or the step
budget runs out. Without a subcommand it starts the interactive console.`,
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.SetDefaults(v)
			bindFlags(v, cmd)
			if err := initializeConfig(v, cfgFile); err != nil {
				return err
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "webpilot"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting WebPilot", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newRunCmd(),
		newInteractiveCmd(),
		newDemoCmd(),
		newBatchCmd(),
		newLogsCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command tree with ctx. Interrupts surface as
// context.Canceled for the caller to treat as a clean exit.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
	}
	observability.Sync()
	return err
}

// initializeConfig reads in the config file and ENV variables if set.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("WEBPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// viperKeyAnnotation marks a flag as an override for a config key.
const viperKeyAnnotation = "webpilot_viper_key"

// configFlag tags an already defined flag so bindFlags maps it onto key.
func configFlag(cmd *cobra.Command, flag, key string) {
	_ = cmd.Flags().SetAnnotation(flag, viperKeyAnnotation, []string{key})
}

// bindFlags binds the tagged flags of the executing command. A flag only wins
// over the config file and environment when the user actually set it.
func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if keys, ok := f.Annotations[viperKeyAnnotation]; ok && len(keys) == 1 {
			_ = v.BindPFlag(keys[0], f)
		}
	})
}

func configFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
