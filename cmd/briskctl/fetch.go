package briskctl

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/briskdl/engine/internal/config"
	"github.com/briskdl/engine/internal/events"
	"github.com/briskdl/engine/internal/manager"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Download a file, splitting it across parallel connections",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawurl := args[0]
		out, _ := cmd.Flags().GetString("out")
		conns, _ := cmd.Flags().GetInt("connections")
		speedLimit, _ := cmd.Flags().GetInt64("speed-limit")
		openWhenDone, _ := cmd.Flags().GetBool("open")
		showWhenDone, _ := cmd.Flags().GetBool("show-in-folder")

		return withInstanceLock(func() error {
			return runFetch(rawurl, out, conns, speedLimit, openWhenDone, showWhenDone)
		})
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().String("out", "", "destination directory (defaults to configured download folder)")
	fetchCmd.Flags().Int("connections", 0, "number of parallel connections (0 = use configured default)")
	fetchCmd.Flags().Int64("speed-limit", 0, "bandwidth cap in bytes/sec (0 = use configured limit)")
	fetchCmd.Flags().Bool("open", false, "open the file with its default handler once the download completes")
	fetchCmd.Flags().Bool("show-in-folder", false, "reveal the file in the OS file manager once the download completes")
}

func runFetch(rawurl, out string, conns int, speedLimit int64, openWhenDone, showWhenDone bool) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if out == "" {
		out = settings.DefaultDownloadDir
	}
	if conns <= 0 {
		conns = settings.MaxConnections
	}
	if speedLimit <= 0 {
		speedLimit = settings.SpeedLimitBytesPerS
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	var finalErr error
	var mgr *manager.Manager

	sink := events.Sink{
		OnProgress: func(p events.Progress) {
			fmt.Printf("\r%s / %s  %.1f KB/s  ", humanBytes(p.Downloaded), humanBytes(p.Total), p.SpeedBps/1024)
		},
		OnCompleted: func(c events.Completed) {
			fmt.Printf("\ncompleted: %s\n", c.Filename)
			destPath := filepath.Join(out, c.Filename)
			if openWhenDone {
				if err := mgr.OpenFile(destPath); err != nil {
					fmt.Printf("open %s: %v\n", destPath, err)
				}
			}
			if showWhenDone {
				if err := mgr.ShowInFolder(destPath); err != nil {
					fmt.Printf("show %s: %v\n", destPath, err)
				}
			}
			close(done)
		},
		OnFailed: func(f events.Failed) {
			finalErr = f.Err
			close(done)
		},
		OnPaused: func(p events.Paused) {
			fmt.Println("\npaused")
			close(done)
		},
		OnCancelled: func(events.Cancelled) {
			fmt.Println("\ncancelled")
			close(done)
		},
	}

	mgr = manager.New(st, sink, out, conns, speedLimit)

	info, err := mgr.Probe(ctx, rawurl)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}

	id, err := mgr.Start(ctx, rawurl, info)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	fmt.Printf("started %s -> %s\n", id, filepath.Join(out, info.Filename))

	select {
	case <-done:
	case <-ctx.Done():
		mgr.GracefulShutdown(10 * time.Second)
	}
	return finalErr
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for nn := n / unit; nn >= unit; nn /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
