// SPDX-License-Identifier: MIT
package config

import (
	"time"

	"playhead/pkg/playhead"
)

// Core configuration constants that define the boundaries and defaults
// for the engine and its transport.
const (
	DefaultInputDevice     = MinDeviceID // System default device
	DefaultInputChannels   = 2
	DefaultFramesPerBuffer = 512   // Balanced latency/performance
	DefaultSampleRate      = 48000 // Hz
	DefaultLogLevel        = "info"

	DefaultTempo              = playhead.DefaultBPM
	DefaultTimeSigNumerator   = playhead.DefaultTimeSigNumerator
	DefaultTimeSigDenominator = playhead.DefaultTimeSigDenominator
	DefaultFrameRate          = playhead.FPS25

	DefaultRecordingDir   = "./recordings"
	DefaultRecordingDepth = 16

	DefaultWebSocketAddress = ":8080"
	DefaultUDPTarget        = "127.0.0.1:9090"
	DefaultFeedInterval     = 33 * time.Millisecond // ~30Hz
	DefaultKeepAlive        = time.Second
	DefaultServiceName      = "playhead"

	// Hardware and processing limits
	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer (power of 2)
	MinTempo        = 1
	MaxTempo        = 999
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Enable debug logging.
	LogLevel  string          `yaml:"log_level"` // Logging level ("debug", "info", "warn", "error").
	Audio     AudioConfig     `yaml:"audio"`     // Audio device settings.
	Transport TransportConfig `yaml:"transport"` // Initial transport (play head) settings.
	Recording RecordingConfig `yaml:"recording"` // Recording while the transport records.
	Publish   PublishConfig   `yaml:"publish"`   // Off-thread position feeds.
}

// AudioConfig holds settings related to audio input and block processing.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index for audio input (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz (e.g., 44100, 48000).
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per processing block (power of 2).
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio device.
	InputChannels   int     `yaml:"input_channels"`    // Number of input channels to capture.
}

// TransportConfig holds the initial state of the host timeline.
type TransportConfig struct {
	Tempo              float64            `yaml:"tempo"`                // Beats per minute.
	TimeSigNumerator   int32              `yaml:"time_sig_numerator"`   // e.g. 3 for 3/4.
	TimeSigDenominator int32              `yaml:"time_sig_denominator"` // e.g. 4 for 3/4.
	FrameRate          playhead.FrameRate `yaml:"frame_rate"`           // "24", "25", "29.97", "30", "29.97drop", ...
	EditOrigin         float64            `yaml:"edit_origin_seconds"`  // Timecode of the edit start in seconds.
	LoopStart          float64            `yaml:"loop_start_ppq"`       // Loop start in quarter notes.
	LoopEnd            float64            `yaml:"loop_end_ppq"`         // Loop end in quarter notes.
	Looping            bool               `yaml:"looping"`              // Start with looping enabled.
	AllowControl       bool               `yaml:"allow_control"`        // Let processors and the UI drive the transport.
}

// RecordingConfig holds settings for recording input while the transport records.
type RecordingConfig struct {
	OutputDir string `yaml:"output_dir"` // Directory to save recorded audio files.
	BitDepth  int    `yaml:"bit_depth"`  // Bit depth for recorded audio (16, 24 or 32).
	ArmOnRun  bool   `yaml:"arm_on_run"` // Start recording as soon as the engine runs.
}

// PublishConfig holds settings for sending positions to other processes.
type PublishConfig struct {
	Interval         time.Duration `yaml:"interval"`           // How often the play head is polled.
	KeepAlive        time.Duration `yaml:"keep_alive"`         // Resend an unchanged position after this long.
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Serve the JSON feed.
	WebSocketAddress string        `yaml:"websocket_address"`  // Listen address, e.g. ":8080".
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Send binary position packets over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target "host:port".
	MDNSEnabled      bool          `yaml:"mdns_enabled"`       // Advertise the WebSocket feed on the LAN.
	ServiceName      string        `yaml:"service_name"`       // mDNS instance name.
	LogPositions     bool          `yaml:"log_positions"`      // Log every published position at debug level.
}

// NewConfig creates a new Config instance with default values.
func NewConfig() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Audio: AudioConfig{
			InputDevice:     DefaultInputDevice,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			InputChannels:   DefaultInputChannels,
		},
		Transport: TransportConfig{
			Tempo:              DefaultTempo,
			TimeSigNumerator:   DefaultTimeSigNumerator,
			TimeSigDenominator: DefaultTimeSigDenominator,
			FrameRate:          DefaultFrameRate,
			AllowControl:       true,
		},
		Recording: RecordingConfig{
			OutputDir: DefaultRecordingDir,
			BitDepth:  DefaultRecordingDepth,
		},
		Publish: PublishConfig{
			Interval:         DefaultFeedInterval,
			KeepAlive:        DefaultKeepAlive,
			WebSocketAddress: DefaultWebSocketAddress,
			UDPTargetAddress: DefaultUDPTarget,
			ServiceName:      DefaultServiceName,
		},
	}
}
