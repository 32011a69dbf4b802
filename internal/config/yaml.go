// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	applog "playhead/internal/log"
	"playhead/internal/timeline"
	"playhead/pkg/bitint"
	"playhead/pkg/playhead"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// DefaultPath is searched when LoadConfig is called with an empty path.
const DefaultPath = "config.yaml"

// LoadConfig loads configuration from a YAML file specified by path. If path
// is empty, it looks for DefaultPath in the working directory and falls back
// to built-in defaults when that does not exist. Environment overrides are
// applied after the file, then the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		if _, err := os.Stat(DefaultPath); err == nil {
			path = DefaultPath
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot start with.
func (c *Config) Validate() error {
	a := c.Audio
	if a.InputDevice < MinDeviceID {
		return fmt.Errorf("%w: audio.input_device %d is below %d", ErrInvalid, a.InputDevice, MinDeviceID)
	}
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		return fmt.Errorf("%w: audio.sample_rate %.0f outside [%d, %d]", ErrInvalid, a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if !bitint.IsPowerOfTwo(a.FramesPerBuffer) || a.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("%w: audio.frames_per_buffer %d must be a power of two up to %d", ErrInvalid, a.FramesPerBuffer, MaxBufferFrames)
	}
	if a.InputChannels < 1 {
		return fmt.Errorf("%w: audio.input_channels must be at least 1", ErrInvalid)
	}

	tr := c.Transport
	if tr.Tempo < MinTempo || tr.Tempo > MaxTempo || math.IsNaN(tr.Tempo) {
		return fmt.Errorf("%w: transport.tempo %v outside [%d, %d]", ErrInvalid, tr.Tempo, MinTempo, MaxTempo)
	}
	if tr.TimeSigNumerator < 1 || tr.TimeSigDenominator < 1 {
		return fmt.Errorf("%w: transport time signature %d/%d must be positive", ErrInvalid, tr.TimeSigNumerator, tr.TimeSigDenominator)
	}
	if !tr.FrameRate.IsKnown() && tr.FrameRate != playhead.FPSUnknown {
		return fmt.Errorf("%w: transport.frame_rate %d is not a defined rate", ErrInvalid, int32(tr.FrameRate))
	}
	if tr.Looping && (tr.LoopStart < 0 || tr.LoopEnd <= tr.LoopStart) {
		return fmt.Errorf("%w: transport loop [%v, %v) is empty or negative", ErrInvalid, tr.LoopStart, tr.LoopEnd)
	}

	switch c.Recording.BitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("%w: recording.bit_depth %d must be 16, 24 or 32", ErrInvalid, c.Recording.BitDepth)
	}

	p := c.Publish
	if p.Interval <= 0 {
		return fmt.Errorf("%w: publish.interval must be positive", ErrInvalid)
	}
	if p.UDPEnabled {
		if _, _, err := net.SplitHostPort(p.UDPTargetAddress); err != nil {
			return fmt.Errorf("%w: publish.udp_target_address %q: %v", ErrInvalid, p.UDPTargetAddress, err)
		}
	}
	if p.MDNSEnabled && !p.WebSocketEnabled {
		return fmt.Errorf("%w: publish.mdns_enabled requires publish.websocket_enabled", ErrInvalid)
	}

	if c.LogLevel != "" {
		if _, ok := applog.ParseLevel(c.LogLevel); !ok {
			return fmt.Errorf("%w: unknown log_level %q", ErrInvalid, c.LogLevel)
		}
	}
	return nil
}

// Level returns the effective log level. Debug forces LevelDebug.
func (c *Config) Level() applog.LogLevel {
	if c.Debug {
		return applog.LevelDebug
	}
	level, _ := applog.ParseLevel(c.LogLevel)
	return level
}

// TimelineConfig converts the audio and transport sections into the
// settings the host timeline starts from.
func (c *Config) TimelineConfig() timeline.Config {
	return timeline.Config{
		SampleRate:         c.Audio.SampleRate,
		BPM:                c.Transport.Tempo,
		TimeSigNumerator:   c.Transport.TimeSigNumerator,
		TimeSigDenominator: c.Transport.TimeSigDenominator,
		FrameRate:          c.Transport.FrameRate,
		EditOriginTime:     c.Transport.EditOrigin,
		LoopStartPPQ:       c.Transport.LoopStart,
		LoopEndPPQ:         c.Transport.LoopEnd,
		Looping:            c.Transport.Looping,
	}
}

// WebSocketPort returns the numeric port of publish.websocket_address, or 0.
func (c *Config) WebSocketPort() int {
	_, port, err := net.SplitHostPort(c.Publish.WebSocketAddress)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(port)
	return n
}

// applyEnvOverrides lets ENV_* variables replace values from the file.
// Unparseable values are ignored with a warning.
func (c *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Debug = b
			applog.Infof("Config: Overriding debug from env: %v", b)
		} else {
			applog.Warnf("Config: Ignoring ENV_DEBUG=%q: %v", val, err)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
		applog.Infof("Config: Overriding log_level from env: %s", val)
	}

	// ENV_TEMPO
	if val, ok := os.LookupEnv("ENV_TEMPO"); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.Transport.Tempo = f
			applog.Infof("Config: Overriding transport.tempo from env: %v", f)
		} else {
			applog.Warnf("Config: Ignoring ENV_TEMPO=%q: %v", val, err)
		}
	}
	// ENV_FRAME_RATE
	if val, ok := os.LookupEnv("ENV_FRAME_RATE"); ok {
		var fr playhead.FrameRate
		if err := fr.UnmarshalText([]byte(val)); err == nil {
			c.Transport.FrameRate = fr
			applog.Infof("Config: Overriding transport.frame_rate from env: %s", fr)
		} else {
			applog.Warnf("Config: Ignoring ENV_FRAME_RATE=%q: %v", val, err)
		}
	}

	// ENV_UDP_{...}
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Publish.UDPEnabled = b
			applog.Infof("Config: Overriding publish.udp_enabled from env: %v", b)
		} else {
			applog.Warnf("Config: Ignoring ENV_UDP_ENABLED=%q: %v", val, err)
		}
	}
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Publish.UDPTargetAddress = val
		applog.Infof("Config: Overriding publish.udp_target_address from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if d, err := time.ParseDuration(val); err == nil {
			c.Publish.Interval = d
			applog.Infof("Config: Overriding publish.interval from env: %s", d)
		} else {
			applog.Warnf("Config: Ignoring ENV_UDP_SEND_INTERVAL=%q: %v", val, err)
		}
	}

	// ENV_WS_ADDRESS
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		c.Publish.WebSocketAddress = val
		c.Publish.WebSocketEnabled = val != ""
		applog.Infof("Config: Overriding publish.websocket_address from env: %s", val)
	}
}
