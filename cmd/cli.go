// SPDX-License-Identifier: MIT
package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"playhead/internal/config"
	"playhead/pkg/bitint"
	"playhead/pkg/build"
)

// Commands selected by ParseArgs.
const (
	CommandRun      = "run"
	CommandList     = "list"
	CommandSimulate = "simulate"
	CommandVersion  = "version"
	CommandDiscover = "discover"
)

// DefaultSimulateBlocks is the number of blocks `simulate` runs by default.
const DefaultSimulateBlocks = 375 // 4 s at 512 frames, 48 kHz

// Options is the parsed command line.
type Options struct {
	Command string
	Config  *config.Config

	NoTUI   bool
	Record  bool
	Verbose bool

	// simulate
	Blocks int
	Fast   bool

	// discover
	Timeout time.Duration
}

type flagValues struct {
	configPath      string
	device          int
	sampleRate      float64
	framesPerBuffer int
	tempo           float64
}

// ParseArgs parses args (without the program name), loads the
// configuration and applies flag overrides to it.
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildInfo()
	opts := &Options{Command: CommandRun, Blocks: DefaultSimulateBlocks, Timeout: 2 * time.Second}
	var flags flagValues

	selectCommand := func(name string, needsConfig bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			opts.Command = name
			if !needsConfig {
				return nil
			}
			cfg, err := loadConfig(cmd, &flags)
			if err != nil {
				return err
			}
			opts.Config = cfg
			return nil
		}
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         build.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: selectCommand(CommandRun, true),
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the transport on the input device (default)",
		RunE:  selectCommand(CommandRun, true),
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		RunE:  selectCommand(CommandList, false),
	})

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive the transport from a generated signal without audio hardware",
		RunE:  selectCommand(CommandSimulate, true),
	}
	simulateCmd.Flags().IntVarP(&opts.Blocks, "blocks", "n", DefaultSimulateBlocks,
		"Number of blocks to process (0 runs until interrupted)")
	simulateCmd.Flags().BoolVar(&opts.Fast, "fast", false,
		"Process blocks as fast as possible instead of at the device rate")
	rootCmd.AddCommand(simulateCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE:  selectCommand(CommandVersion, false),
	})

	discoverCmd := &cobra.Command{
		Use:   "discover",
		Short: "Browse the network for position feeds",
		RunE:  selectCommand(CommandDiscover, false),
	}
	discoverCmd.Flags().DurationVar(&opts.Timeout, "timeout", opts.Timeout,
		"How long to wait for answers")
	rootCmd.AddCommand(discoverCmd)

	// Configuration
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "f", "",
		"Configuration file (default "+config.DefaultPath+" if present)")

	// Audio Device Configuration
	pf.IntVarP(&flags.device, "device", "d", config.DefaultInputDevice,
		"Specify input device ID. Use 'list' command to see available devices.")
	pf.Float64VarP(&flags.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&flags.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer, rounded up to a power of two")

	// Transport Configuration
	pf.Float64VarP(&flags.tempo, "tempo", "t", config.DefaultTempo,
		"Initial tempo in BPM")
	pf.BoolVarP(&opts.Record, "record", "r", false,
		"Start recording as soon as the engine runs")
	pf.BoolVar(&opts.NoTUI, "no-tui", false,
		"Run headless and log positions instead of showing the transport panel")

	// Debug Configuration
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return opts, nil
}

// loadConfig reads the configuration file and applies the flags the user
// set explicitly.
func loadConfig(cmd *cobra.Command, flags *flagValues) (*config.Config, error) {
	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("device") {
		cfg.Audio.InputDevice = flags.device
	}
	if f.Changed("sample-rate") {
		cfg.Audio.SampleRate = flags.sampleRate
	}
	if f.Changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = bitint.NextPowerOfTwo(flags.framesPerBuffer)
	}
	if f.Changed("tempo") {
		cfg.Transport.Tempo = flags.tempo
	}
	if f.Changed("record") && cfg.Recording.OutputDir == "" {
		cfg.Recording.OutputDir = config.DefaultRecordingDir
	}
	if f.Changed("verbose") {
		cfg.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
