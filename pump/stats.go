package pump

import (
	"log/slog"
	"strconv"
	"time"
)

// Stats is the running tally of a session.
type Stats struct {
	FramesIn  int
	FramesOut int
	Skipped   int
	Bytes     int64
	Elapsed   time.Duration
	Aborted   bool
}

// FPS is input frames per second of wall time.
func (s Stats) FPS() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.FramesIn) / s.Elapsed.Seconds()
}

// Kbps is the delivered payload rate in kilobits per second.
func (s Stats) Kbps() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Bytes) * 8 / 1000 / s.Elapsed.Seconds()
}

func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("frames_in", s.FramesIn),
		slog.Int("frames_out", s.FramesOut),
		slog.Int64("bytes", s.Bytes),
		slog.String("fps", formatRate(s.FPS())),
		slog.String("kbps", formatRate(s.Kbps())),
	)
}

func formatRate(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
