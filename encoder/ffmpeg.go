package encoder

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"go2tv.app/screenpump/internal/logging"
	"go2tv.app/screenpump/internal/processutil"
	"go2tv.app/screenpump/media"
)

const (
	ffmpegReadChunk  = 64 * 1024
	ffmpegChunkQueue = 256
)

func init() {
	Register("ffmpeg", func() Encoder { return &FFmpeg{} })
}

// FFmpeg pipes planar frames into an ffmpeg child and reads back an Annex B
// elementary stream with an access unit delimiter in front of every picture.
type FFmpeg struct {
	cfg  Config
	plan videoEncoderPlan
	log  *slog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	chunks chan []byte
	group  *errgroup.Group
	stderr *lockedBuffer

	cutter *auCutter
	pts    ptsQueue

	stdinClosed bool
	flushed     bool
	waited      bool
	waitErr     error

	closeOnce sync.Once
	closeErr  error
}

// ffmpegArgs builds the ffmpeg command line for a plan.
func ffmpegArgs(cfg Config, plan videoEncoderPlan, debug bool) []string {
	loglevel := "error"
	if debug {
		loglevel = "info"
	}
	args := []string{"-hide_banner", "-loglevel", loglevel, "-nostdin"}
	args = append(args, plan.globalArgs...)
	args = append(args,
		"-fflags", "nobuffer",
		"-flags", "low_delay",
		"-f", "rawvideo",
		"-pix_fmt", "yuv444p",
		"-s", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-r", strconv.Itoa(cfg.FPS),
		"-i", "pipe:0",
		"-an",
	)
	if strings.TrimSpace(plan.videoFilter) != "" {
		args = append(args, "-vf", plan.videoFilter)
	}
	args = append(args, plan.codecArgs...)
	args = append(args,
		"-bsf:v", string(cfg.Codec)+"_metadata=aud=insert",
		"-fps_mode", "passthrough",
		"-f", string(cfg.Codec),
		"pipe:1",
	)
	return args
}

func (e *FFmpeg) Open(cfg Config) error {
	if e.cmd != nil {
		return fmt.Errorf("%w: ffmpeg encoder opened twice", ErrInvalidConfig)
	}
	cfg, err := cfg.normalize()
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.log = cfg.Logger.With("component", "encoder", "backend", "ffmpeg")
	e.plan = selectVideoEncoder(cfg, e.log)

	debug := logging.DebugEnabled()
	args := ffmpegArgs(cfg, e.plan, debug)
	e.log.Debug("ffmpeg command", "path", cfg.FFmpegPath, "args", strings.Join(args, " "))

	cmd := exec.Command(cfg.FFmpegPath, args...)
	processutil.HideConsoleWindow(cmd)

	e.stderr = &lockedBuffer{}
	cmd.Stderr = e.stderr
	if debug {
		cmd.Stderr = io.MultiWriter(logging.Output(), e.stderr)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("ffmpeg start: %w", err)
	}

	e.cmd = cmd
	e.stdin = stdin
	e.chunks = make(chan []byte, ffmpegChunkQueue)
	e.cutter = newAUCutter(cfg.Codec)
	e.group = &errgroup.Group{}
	e.group.Go(func() error {
		defer close(e.chunks)
		buf := make([]byte, ffmpegReadChunk)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				e.chunks <- chunk
			}
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("ffmpeg stdout: %w", err)
			}
		}
	})
	return nil
}

// Headers returns nothing: ffmpeg writes parameter sets in-band in front of
// every keyframe.
func (e *FFmpeg) Headers() ([][]byte, error) {
	if e.cmd == nil {
		return nil, ErrNotOpen
	}
	return nil, nil
}

func (e *FFmpeg) Encode(f *media.Frame) ([]media.AccessUnit, error) {
	if e.cmd == nil {
		return nil, ErrNotOpen
	}
	if e.stdinClosed {
		return nil, ErrFlushed
	}
	if err := checkFrame(e.cfg, f); err != nil {
		return nil, err
	}

	e.pts.push(f.PTS)
	if _, err := e.stdin.Write(f.Data); err != nil {
		return nil, fmt.Errorf("ffmpeg write: %w: %s", err, e.stderr.Tail(300))
	}

	e.drain(false)
	return e.cut(false), nil
}

// Flush closes ffmpeg's input, waits for it to finish, and returns every unit
// still buffered. Later calls return nothing.
func (e *FFmpeg) Flush() ([]media.AccessUnit, error) {
	if e.cmd == nil {
		return nil, ErrNotOpen
	}
	if e.flushed {
		return nil, nil
	}
	e.flushed = true

	if !e.stdinClosed {
		e.stdinClosed = true
		if err := e.stdin.Close(); err != nil {
			return nil, fmt.Errorf("ffmpeg close input: %w", err)
		}
	}

	e.drain(true)
	units := e.cut(true)
	if err := e.wait(); err != nil {
		return units, fmt.Errorf("ffmpeg exited: %w: %s", err, e.stderr.Tail(300))
	}
	return units, nil
}

// drain moves stdout chunks into the cutter. With block set it reads until
// the reader goroutine has finished.
func (e *FFmpeg) drain(block bool) {
	for {
		if block {
			chunk, ok := <-e.chunks
			if !ok {
				return
			}
			e.cutter.Push(chunk)
			continue
		}
		select {
		case chunk, ok := <-e.chunks:
			if !ok {
				return
			}
			e.cutter.Push(chunk)
		default:
			return
		}
	}
}

func (e *FFmpeg) cut(final bool) []media.AccessUnit {
	var units []media.AccessUnit
	for {
		au, ok := e.cutter.Next()
		if !ok {
			break
		}
		units = append(units, e.unit(au))
	}
	if final {
		if rest := e.cutter.Drain(); len(rest) > 0 {
			units = append(units, e.unit(rest))
		}
	}
	return units
}

func (e *FFmpeg) unit(au []byte) media.AccessUnit {
	return media.AccessUnit{PTS: e.pts.next(), Segments: SplitNALUnits(au)}
}

func (e *FFmpeg) wait() error {
	if e.waited {
		return e.waitErr
	}
	e.waited = true
	readErr := e.group.Wait()
	e.waitErr = errors.Join(readErr, e.cmd.Wait())
	return e.waitErr
}

func (e *FFmpeg) Close() error {
	e.closeOnce.Do(func() {
		if e.cmd == nil || e.waited {
			return
		}
		if !e.stdinClosed {
			e.stdinClosed = true
			_ = e.stdin.Close()
		}
		if e.cmd.Process != nil {
			if err := e.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				e.closeErr = err
			}
		}
		// unblock the reader if the queue is full
		go func(chunks <-chan []byte) {
			for range chunks {
			}
		}(e.chunks)
		// a killed child exits non-zero; that is expected here
		_ = e.wait()
	})
	return e.closeErr
}

// StderrTail returns the last n bytes ffmpeg wrote to stderr.
func (e *FFmpeg) StderrTail(n int) string {
	if e.stderr == nil {
		return ""
	}
	return e.stderr.Tail(n)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Tail(n int) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := strings.TrimSpace(b.buf.String())
	if s == "" {
		return "no ffmpeg stderr output"
	}
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
