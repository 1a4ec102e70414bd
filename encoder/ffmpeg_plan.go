package encoder

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go2tv.app/screenpump/internal/processutil"
)

const encoderProbeTimeout = 5 * time.Second

// videoEncoderPlan is one way of running the ffmpeg encode step.
type videoEncoderPlan struct {
	label       string
	codec       string
	hardware    bool
	globalArgs  []string
	videoFilter string
	codecArgs   []string
}

// hwBackend is a hardware encoder family. The ffmpeg encoder name is the
// codec followed by suffix, e.g. hevc_nvenc.
type hwBackend struct {
	suffix string
	filter string
	// devices, when set, is a glob of render nodes; one plan per node.
	devices string
}

var hwBackends = map[string][]hwBackend{
	"darwin": {
		{suffix: "videotoolbox", filter: "format=yuv420p"},
	},
	"windows": {
		{suffix: "nvenc", filter: "format=yuv420p"},
		{suffix: "amf", filter: "format=yuv420p"},
		{suffix: "qsv", filter: "format=nv12"},
	},
	"linux": {
		{suffix: "nvenc", filter: "format=yuv420p"},
		{suffix: "vaapi", filter: "format=nv12,hwupload", devices: "/dev/dri/renderD*"},
		{suffix: "qsv", filter: "format=nv12"},
	},
}

// selectVideoEncoder returns the first hardware plan that ffmpeg lists and
// that survives a short test encode. Anything else gets the software plan.
func selectVideoEncoder(cfg Config, log *slog.Logger) videoEncoderPlan {
	software := softwareEncoderPlan(cfg)
	pick := func(plan videoEncoderPlan, reason string) videoEncoderPlan {
		attrs := []any{"encoder", plan.label, "hardware", plan.hardware}
		if reason != "" {
			attrs = append(attrs, "reason", reason)
		}
		log.Info("video encoder selected", attrs...)
		return plan
	}

	if !cfg.Hardware {
		return pick(software, "hardware_disabled")
	}
	candidates := hardwareEncoderCandidates(cfg)
	if len(candidates) == 0 {
		return pick(software, "no_hardware_candidates")
	}
	if _, err := exec.LookPath(cfg.FFmpegPath); err != nil {
		log.Debug("encoder probe: ffmpeg lookup failed", "path", cfg.FFmpegPath, "err", err)
		return pick(software, "ffmpeg_not_found")
	}

	// An unreadable list is not fatal; every candidate is then test-encoded.
	var listed map[string]struct{}
	if out, err := runProbe(cfg.FFmpegPath, "-hide_banner", "-encoders"); err != nil {
		log.Debug("encoder probe: ffmpeg -encoders failed", "err", err)
	} else {
		listed = parseEncoderList(string(out))
	}

	for _, c := range candidates {
		if listed != nil {
			if _, ok := listed[c.codec]; !ok {
				log.Debug("encoder probe: skip", "encoder", c.label, "reason", "not_listed")
				continue
			}
		}
		if _, err := runProbe(cfg.FFmpegPath, probeArgs(c)...); err != nil {
			log.Debug("encoder probe: failed", "encoder", c.label, "err", err)
			continue
		}
		return pick(c, "")
	}
	return pick(software, "all_hardware_probes_failed")
}

// parseEncoderList reads `ffmpeg -encoders`, whose rows look like
// " V....D hevc_nvenc  NVIDIA NVENC hevc encoder".
func parseEncoderList(out string) map[string]struct{} {
	encoders := make(map[string]struct{})
	for _, line := range strings.Split(out, "\n") {
		flags, rest, ok := strings.Cut(strings.TrimSpace(line), " ")
		if !ok || !strings.HasPrefix(flags, "V") {
			continue
		}
		if name := strings.Fields(rest); len(name) > 0 {
			encoders[name[0]] = struct{}{}
		}
	}
	return encoders
}

// probeArgs encodes half a second of black through the plan into the null
// muxer.
func probeArgs(plan videoEncoderPlan) []string {
	args := append([]string{"-v", "error", "-nostdin"}, plan.globalArgs...)
	args = append(args,
		"-f", "lavfi",
		"-i", "color=c=black:s=1280x720:r=30:d=0.5",
		"-an",
		"-frames:v", "8",
	)
	if plan.videoFilter != "" {
		args = append(args, "-vf", plan.videoFilter)
	}
	args = append(args, plan.codecArgs...)
	return append(args, "-f", "null", "-")
}

func runProbe(ffmpegPath string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), encoderProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	processutil.HideConsoleWindow(cmd)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("ffmpeg probe timed out after %s", encoderProbeTimeout)
	}
	if err != nil {
		tail := strings.TrimSpace(stderr.String())
		if len(tail) > 240 {
			tail = tail[len(tail)-240:]
		}
		return nil, fmt.Errorf("ffmpeg probe: %w: %s", err, tail)
	}
	return stdout.Bytes(), nil
}

func hardwareEncoderCandidates(cfg Config) []videoEncoderPlan {
	backends, ok := hwBackends[runtime.GOOS]
	if !ok {
		backends = hwBackends["linux"]
	}

	var plans []videoEncoderPlan
	for _, b := range backends {
		codec := string(cfg.Codec) + "_" + b.suffix
		if b.devices == "" {
			plans = append(plans, hardwareEncoderPlan(cfg, codec, codec, nil, b.filter))
			continue
		}
		nodes, _ := filepath.Glob(b.devices)
		for _, dev := range nodes {
			label := fmt.Sprintf("%s (%s)", codec, dev)
			plans = append(plans, hardwareEncoderPlan(cfg, codec, label, []string{"-vaapi_device", dev}, b.filter))
		}
	}
	return plans
}

// hardwareBitrate scales a 1080p30 budget of 2-8 Mbit/s by picture size,
// frame rate and quality, with a 300 kbit/s floor.
func hardwareBitrate(cfg Config) int {
	kbps := float64(2000 + cfg.Quality*60)
	kbps *= float64(cfg.Width*cfg.Height) / (1920 * 1080)
	kbps *= float64(cfg.FPS) / 30
	return max(int(kbps), 300)
}

func hardwareEncoderPlan(cfg Config, codec, label string, globalArgs []string, filter string) videoEncoderPlan {
	kbps := hardwareBitrate(cfg)
	k := func(v int) string { return strconv.Itoa(v) + "k" }
	return videoEncoderPlan{
		label:       label,
		codec:       codec,
		hardware:    true,
		globalArgs:  append([]string(nil), globalArgs...),
		videoFilter: filter,
		codecArgs: []string{
			"-c:v", codec,
			"-b:v", k(kbps),
			"-maxrate", k(kbps * 5 / 4),
			"-bufsize", k(kbps * 5 / 2),
			"-bf", "0",
			"-g", strconv.Itoa(cfg.FPS * 2),
		},
	}
}

// softwareEncoderPlan is libx265, or libx264 for H.264, at the configured CRF
// with a fixed two second GOP and no B-frames.
func softwareEncoderPlan(cfg Config) videoEncoderPlan {
	gop := strconv.Itoa(cfg.FPS * 2)
	plan := videoEncoderPlan{label: "libx265", codec: "libx265"}
	noBFrames := []string{"-x265-params", "log-level=error:bframes=0"}
	if cfg.Codec == CodecH264 {
		plan.label, plan.codec = "libx264", "libx264"
		noBFrames = []string{"-bf", "0"}
	}
	plan.codecArgs = append([]string{
		"-c:v", plan.codec,
		"-preset", cfg.Preset,
		"-tune", cfg.Tune,
		"-crf", strconv.Itoa(cfg.CRF()),
		"-pix_fmt", "yuv420p",
		"-g", gop,
		"-keyint_min", gop,
		"-sc_threshold", "0",
	}, noBFrames...)
	return plan
}
