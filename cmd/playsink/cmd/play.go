package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/playsink/playsink/internal/media"
	"github.com/playsink/playsink/internal/playback"
)

var playCmd = &cobra.Command{
	Use:   "play URL",
	Short: "Play a stream from the command line",
	Long: `Play a single stream URL with the headless sink.

The URL is classified, a backend is selected (remuxing through the
executor when the container needs it), and playback runs until the
stream ends or the process is interrupted. Progress is printed to
stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := initLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer rt.close()

	ended := make(chan struct{})
	events := playback.SessionEvents{
		OnStreamInfo: func(d media.StreamDescriptor) {
			fmt.Printf("stream: kind=%s category=%s\n", d.Kind, d.Category)
		},
		OnMediaInfo: func(info media.MediaInfo) {
			if info.Width > 0 {
				fmt.Printf("media: %dx%d %s/%s\n", info.Width, info.Height, info.VideoCodec, info.AudioCodec)
			}
			if info.Duration > 0 {
				fmt.Printf("duration: %s\n", time.Duration(info.Duration*float64(time.Second)).Round(time.Second))
			}
		},
		OnRemuxProgress: func(p float64) {
			fmt.Printf("remuxing: %3.0f%%\n", p*100)
		},
		OnTimeUpdate: func(cur, dur float64) {
			if dur > 0 {
				fmt.Printf("\rplaying: %6.1fs / %.1fs", cur, dur)
			} else {
				fmt.Printf("\rplaying: %6.1fs", cur)
			}
		},
		OnEnded: func() {
			fmt.Println("\nended")
			close(ended)
		},
		OnError: func(err error) {
			logger.Error("playback failed", slog.String("error", err.Error()))
		},
	}

	session, err := rt.manager.Play(ctx, args[0], events)
	if err != nil {
		return fmt.Errorf("starting playback: %w", err)
	}

	if session.Status() == playback.StatusReady {
		if err := session.Play(); err != nil {
			return fmt.Errorf("playing: %w", err)
		}
	}

	select {
	case <-ctx.Done():
		fmt.Println("\ninterrupted")
	case <-ended:
	}
	return nil
}
