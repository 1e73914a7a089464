package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/banshee-data/hyperscan/internal/config"
	"github.com/banshee-data/hyperscan/internal/monitoring"
)

type globalOptions struct {
	LogLevel string
	EnvFile  string
}

func newRootCommand() *cobra.Command {
	g := &globalOptions{}
	root := &cobra.Command{
		Use:          "hyperscan",
		Short:        "Hyperparameter scans over a declarative parameter space",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := setupLogging(cmd.ErrOrStderr(), g.LogLevel); err != nil {
				return err
			}
			return config.LoadEnv(nil, g.EnvFile)
		},
	}
	root.PersistentFlags().StringVar(&g.LogLevel, "log-level", "info", "Diagnostic log level (debug, info, warn, error).")
	root.PersistentFlags().StringVar(&g.EnvFile, "env-file", ".env", "Environment file read before HYPERSCAN_* overrides.")

	root.AddCommand(newScanCommand(&scanOptions{}))
	root.AddCommand(newRestoreCommand(&restoreOptions{}))
	root.AddCommand(newReportCommand(&reportOptions{}))
	root.AddCommand(newVersionCommand())
	return root
}

// setupLogging routes the engine's diagnostic lines into a console zap
// logger on w.
func setupLogging(w io.Writer, level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:     "ts",
		MessageKey:  "msg",
		LevelKey:    "level",
		EncodeLevel: zapcore.LowercaseLevelEncoder,
		EncodeTime:  zapcore.ISO8601TimeEncoder,
	})
	logger := zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), lvl))
	monitoring.UseZap(logger.Sugar())
	return nil
}
