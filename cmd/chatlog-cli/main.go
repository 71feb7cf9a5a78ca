package main

import (
	"fmt"
	"io"
	"os"

	"chatlog-cli/internal/config"
	"chatlog-cli/internal/logger"

	"github.com/spf13/cobra"
)

// app 保存 PersistentPreRunE 为子命令解析出的配置。
type app struct {
	cfgPath   string
	overrides []string
	cfg       config.Config
	closers   []io.Closer
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
	if len(a.closers) > 0 {
		logger.Root().SetOutput(os.Stderr)
	}
	a.closers = nil
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "chatlog-cli",
		Short: "Browse persisted chat transcripts",
		Long: `chatlog-cli reads persisted chat history and shows it as a transcript.

Older messages are loaded a page at a time as you scroll up.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "Config file (default ~/.chatlog/config.toml)")
	root.PersistentFlags().StringArrayVarP(&a.overrides, "override", "c", nil, "Override config value key=value (repeatable)")

	root.AddCommand(newViewCmd(a))
	root.AddCommand(newConvertCmd(a))
	root.AddCommand(newImportCmd(a))
	root.AddCommand(newConfigCmd(a))
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = config.ApplyKVOverrides(cfg, a.overrides)

	logger.Configure(a.cfg.LogLevel)
	logPath := a.cfg.LogPath
	if logPath == "" {
		logPath = logger.DefaultLogPath
	}
	logFile, _, err := logger.SetupFile(logPath)
	if err != nil {
		logger.Warnf("failed to initialize log file: %v", err)
		return nil
	}
	a.closers = append(a.closers, logFile)
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
