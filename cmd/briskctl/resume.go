package briskctl

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/briskdl/engine/internal/config"
	"github.com/briskdl/engine/internal/events"
	"github.com/briskdl/engine/internal/manager"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Resume a paused or interrupted download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withInstanceLock(func() error {
			return runResume(args[0])
		})
	},
}

func init() { rootCmd.AddCommand(resumeCmd) }

func runResume(partial string) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := resolveID(st, partial)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	var finalErr error
	sink := events.Sink{
		OnProgress: func(p events.Progress) {
			fmt.Printf("\r%s / %s  %.1f KB/s  ", humanBytes(p.Downloaded), humanBytes(p.Total), p.SpeedBps/1024)
		},
		OnCompleted: func(c events.Completed) { fmt.Printf("\ncompleted: %s\n", c.Filename); close(done) },
		OnFailed:    func(f events.Failed) { finalErr = f.Err; close(done) },
		OnPaused:    func(events.Paused) { fmt.Println("\npaused"); close(done) },
		OnCancelled: func(events.Cancelled) { fmt.Println("\ncancelled"); close(done) },
	}

	mgr := manager.New(st, sink, settings.DefaultDownloadDir, settings.MaxConnections, settings.SpeedLimitBytesPerS)
	if err := mgr.ResumeInterrupted(ctx, id); err != nil {
		return err
	}

	select {
	case <-done:
	case <-ctx.Done():
		mgr.GracefulShutdown(10 * time.Second)
	}
	return finalErr
}
