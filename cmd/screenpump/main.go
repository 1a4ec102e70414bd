// Command screenpump captures the screen, encodes it and streams the
// elementary stream to stdout, a file, or a network output.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"go2tv.app/screenpump/capture"
	"go2tv.app/screenpump/encoder"
	"go2tv.app/screenpump/internal/config"
	"go2tv.app/screenpump/internal/logging"
	"go2tv.app/screenpump/pump"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(stderr, "screenpump: %v\n", err)
		return 1
	}
	cfg, err := config.Resolve(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "screenpump: %v\n", err)
		return 1
	}

	log := logging.Setup(cfg.Verbose).With("session", uuid.NewString())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var killed atomic.Bool
	p, err := setup(ctx, cfg, stdout, &killed, log)
	if err != nil {
		log.Error("startup failed", "err", err)
		return pump.ExitCode(err)
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)

	var stats pump.Stats
	g.Go(func() error {
		defer stop()
		var runErr error
		stats, runErr = p.Run(runCtx)
		return runErr
	})
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			log.Info("received signal, stopping", "signal", sig.String())
			killed.Store(true)
		case <-runCtx.Done():
			return nil
		}
		// a second signal stops blocking captures too
		select {
		case <-sigCh:
			stop()
		case <-runCtx.Done():
		}
		return nil
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, pump.ErrAborted) {
		log.Error("stream failed", "err", err, "stats", stats)
	}
	return pump.ExitCode(err)
}

// setup opens the capture source and the encoder backend and builds the
// pump. Startup errors carry the pump's sentinel so the exit code matches.
func setup(ctx context.Context, cfg *config.Config, stdout io.Writer, killed *atomic.Bool, log *slog.Logger) (*pump.Pump, error) {
	w, h, err := cfg.Resolution()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pump.ErrStartup, err)
	}

	src, err := capture.Open(ctx, cfg.Input, &capture.Options{
		Width:         w,
		Height:        h,
		FrameRate:     cfg.FPS,
		StreamIndex:   cfg.StreamIndex,
		FollowPointer: cfg.FollowPointer,
		Logger:        log,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: capture: %w", pump.ErrStartup, err)
	}

	enc, err := encoder.New(cfg.Encoder)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("%w: %w", pump.ErrStartup, err)
	}

	width, height := src.Size()
	p, err := pump.New(pump.Options{
		Source:  src,
		Encoder: enc,
		EncoderConfig: encoder.Config{
			Width:      width,
			Height:     height,
			FPS:        cfg.FPS,
			Quality:    cfg.Quality,
			Codec:      encoder.Codec(cfg.Codec),
			Preset:     cfg.Preset,
			Tune:       cfg.Tune,
			FFmpegPath: cfg.FFmpegPath,
			Hardware:   cfg.HardwareEncoder,
			Logger:     log,
		},
		Output: cfg.Output,
		Sink: func(p []byte) (int, error) {
			return stdout.Write(p)
		},
		Frames:    cfg.Frames,
		Seek:      cfg.Seek,
		Interlace: cfg.Interlace,
		Killed:    killed,
		Logger:    log,
	})
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	log.Info("session configured",
		"input", cfg.Input,
		"size", fmt.Sprintf("%dx%d", width, height),
		"encoder", cfg.Encoder,
		"codec", cfg.Codec,
		"output", cfg.Output,
	)
	return p, nil
}
