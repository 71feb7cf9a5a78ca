package main

import (
	"context"
	"path/filepath"

	"chatlog-cli/internal/events"
	"chatlog-cli/internal/history"
	"chatlog-cli/internal/logger"
	"chatlog-cli/internal/tui"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newViewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "view [source]",
		Short: "Open the transcript viewer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				a.cfg.Source = args[0]
			}
			return runView(cmd.Context(), a)
		},
	}
}

func runView(ctx context.Context, a *app) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	src, err := history.Open(a.cfg.Driver, a.cfg.Source)
	if err != nil {
		return err
	}
	defer src.Close()

	queue := events.NewEventQueue(128)
	eqLog, eqCloser := events.NewQueueLogger(filepath.Join(filepath.Dir(logPathOrDefault(a)), filepath.Base(events.DefaultEQLogPath)))
	if eqCloser != nil {
		defer eqCloser.Close()
	}
	queue.SetLogger(eqLog)
	defer queue.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sessionID := uuid.NewString()
	loader := history.NewLoader(src, queue, a.cfg.PageSize)
	loaderDone := make(chan struct{})
	go func() {
		defer close(loaderDone)
		loader.Run(ctx)
	}()

	boot := history.NewBootstrapper(history.BootstrapOptions{
		Source:          src,
		Dispatcher:      queue,
		SessionID:       sessionID,
		FirstFetchDelay: a.cfg.BootstrapDelay(),
	})
	bootDone := make(chan struct{})
	go func() {
		defer close(bootDone)
		boot.Run(ctx)
	}()

	res, err := tui.Run(tui.Options{
		Queue:       queue,
		SessionID:   sessionID,
		Title:       filepath.Base(a.cfg.Source),
		Loader:      loader,
		ResetDelay:  a.cfg.ResetDelay(),
		ReinitDelay: a.cfg.ReinitDelay(),
		RetryDelay:  a.cfg.RetryDelay(),
	})
	cancel()
	<-bootDone
	<-loaderDone
	if err != nil {
		return err
	}
	logger.Named("view").WithField("session", res.SessionID).Infof("viewer closed with %d activities", res.Messages)
	return nil
}

func logPathOrDefault(a *app) string {
	if a.cfg.LogPath != "" {
		return a.cfg.LogPath
	}
	return logger.DefaultLogPath
}
