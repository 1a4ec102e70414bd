package config

import (
	"os"
	"strconv"
	"strings"
)

func BoolEnv(name string, defaultValue bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if v == "" {
		return defaultValue
	}

	switch v {
	case "1", "true", "on", "yes":
		return true
	case "0", "false", "off", "no":
		return false
	default:
		return defaultValue
	}
}

func IntEnvClamped(name string, defaultValue, minValue, maxValue int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return defaultValue
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}

	if minValue <= maxValue {
		if n < minValue {
			n = minValue
		}
		if n > maxValue {
			n = maxValue
		}
	}

	return n
}

func StringEnv(name, defaultValue string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return defaultValue
	}
	return v
}

// ApplyEnv overrides fields from SCREENPUMP_* variables. Unset or malformed
// variables leave the current value alone; numbers are clamped to range.
func (c *Config) ApplyEnv() {
	c.Input = StringEnv("SCREENPUMP_INPUT", c.Input)
	c.InputRes = StringEnv("SCREENPUMP_INPUT_RES", c.InputRes)
	c.Output = StringEnv("SCREENPUMP_OUTPUT", c.Output)
	c.FPS = IntEnvClamped("SCREENPUMP_FPS", c.FPS, minFPS, maxFPS)
	c.Quality = IntEnvClamped("SCREENPUMP_QUALITY", c.Quality, 0, 100)
	c.Encoder = StringEnv("SCREENPUMP_ENCODER", c.Encoder)
	c.Codec = StringEnv("SCREENPUMP_CODEC", c.Codec)
	c.Preset = StringEnv("SCREENPUMP_PRESET", c.Preset)
	c.Tune = StringEnv("SCREENPUMP_TUNE", c.Tune)
	c.FFmpegPath = StringEnv("SCREENPUMP_FFMPEG", c.FFmpegPath)
	c.HardwareEncoder = BoolEnv("SCREENPUMP_HW_ENCODER", c.HardwareEncoder)
	c.Interlace = BoolEnv("SCREENPUMP_INTERLACE", c.Interlace)
	c.FollowPointer = BoolEnv("SCREENPUMP_FOLLOW_POINTER", c.FollowPointer)
}
