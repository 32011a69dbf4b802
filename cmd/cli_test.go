// SPDX-License-Identifier: MIT
package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"playhead/internal/config"
)

func parse(t *testing.T, args ...string) *Options {
	t.Helper()
	t.Chdir(t.TempDir())
	opts, err := ParseArgs(args)
	if err != nil {
		t.Fatalf("ParseArgs(%q) error = %v", args, err)
	}
	return opts
}

func TestDefaultCommandIsRun(t *testing.T) {
	opts := parse(t)
	if opts.Command != CommandRun {
		t.Errorf("Command = %q, want %q", opts.Command, CommandRun)
	}
	if opts.Config == nil || opts.Config.Audio.SampleRate != config.DefaultSampleRate {
		t.Errorf("default config not loaded: %+v", opts.Config)
	}
	if opts.NoTUI || opts.Record {
		t.Error("flags set without being passed")
	}
}

func TestFlagOverrides(t *testing.T) {
	opts := parse(t, "run", "--device", "3", "--sample-rate", "44100",
		"--frames-per-buffer", "300", "--tempo", "90", "--no-tui", "--record", "-v")

	a := opts.Config.Audio
	if a.InputDevice != 3 || a.SampleRate != 44100 {
		t.Errorf("audio = %+v", a)
	}
	if a.FramesPerBuffer != 512 {
		t.Errorf("FramesPerBuffer = %d, want 512 (rounded up)", a.FramesPerBuffer)
	}
	if opts.Config.Transport.Tempo != 90 {
		t.Errorf("Tempo = %v, want 90", opts.Config.Transport.Tempo)
	}
	if !opts.NoTUI || !opts.Record || !opts.Verbose || !opts.Config.Debug {
		t.Errorf("bool flags not applied: %+v", opts)
	}
}

func TestSimulateFlags(t *testing.T) {
	opts := parse(t, "simulate", "--blocks", "10", "--fast")
	if opts.Command != CommandSimulate || opts.Blocks != 10 || !opts.Fast {
		t.Errorf("simulate options = %+v", opts)
	}
}

func TestCommandsWithoutConfig(t *testing.T) {
	for _, name := range []string{CommandList, CommandVersion, CommandDiscover} {
		t.Run(name, func(t *testing.T) {
			opts := parse(t, name)
			if opts.Command != name {
				t.Errorf("Command = %q, want %q", opts.Command, name)
			}
			if opts.Config != nil {
				t.Error("config loaded for a command that does not need it")
			}
		})
	}
}

func TestDiscoverTimeout(t *testing.T) {
	opts := parse(t, "discover", "--timeout", "500ms")
	if opts.Timeout != 500*time.Millisecond {
		t.Errorf("Timeout = %v", opts.Timeout)
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	data := "transport:\n  tempo: 140\n  frame_rate: 30drop\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := parse(t, "--config", path)
	if opts.Config.Transport.Tempo != 140 {
		t.Errorf("Tempo = %v, want 140", opts.Config.Transport.Tempo)
	}
}

func TestInvalidFlagValue(t *testing.T) {
	t.Chdir(t.TempDir())
	if _, err := ParseArgs([]string{"--tempo", "0"}); err == nil {
		t.Error("expected validation error for tempo 0")
	}
	if _, err := ParseArgs([]string{"--no-such-flag"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}
