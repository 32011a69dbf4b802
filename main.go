// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"text/tabwriter"

	"playhead/cmd"
	"playhead/internal/analysis"
	"playhead/internal/audio"
	"playhead/internal/config"
	"playhead/internal/discovery"
	applog "playhead/internal/log"
	"playhead/internal/timeline"
	"playhead/internal/transport"
	"playhead/internal/transport/udp"
	"playhead/internal/tui"
	"playhead/pkg/build"
	"playhead/pkg/playhead"
)

// main is the entry point for the transport host.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load configuration
//   - Execute one-off commands if requested
//   - Initialize PortAudio, the timeline and the processors
//
// 2. Concurrent Phase (Hot Path):
//   - Start the input stream (or the simulated one)
//   - Publish positions over WebSocket and UDP, advertise over mDNS
//   - Run the transport panel or wait for a signal
//
// 3. Shutdown Phase (Cold Path):
//   - Stop publishing
//   - Stop the engine and finalize any recording
//   - Close transports
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	if err := build.Initialize(); err != nil {
		applog.Debugf("Build information incomplete: %v", err)
	}

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		applog.Fatalf("%v", err)
	}

	switch opts.Command {
	case cmd.CommandVersion:
		fmt.Println(build.GetBuildInfo())
	case cmd.CommandList:
		err = listDevices(os.Stdout)
	case cmd.CommandDiscover:
		err = discover(os.Stdout, opts)
	default:
		err = run(opts)
	}
	if err != nil {
		applog.Fatalf("%v", err)
	}
}

func listDevices(w io.Writer) error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()
	return audio.ListDevices(w)
}

func discover(w io.Writer, opts *cmd.Options) error {
	feeds, err := discovery.Browse(opts.Timeout)
	if err != nil {
		return err
	}
	if len(feeds) == 0 {
		fmt.Fprintln(w, "No position feeds found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tURL\tVERSION")
	for _, f := range feeds {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Name, f.URL(), f.Version)
	}
	return tw.Flush()
}

// host is everything run starts, in the order it is torn down.
type host struct {
	engine     *audio.Engine
	feed       *transport.Feed
	advertiser *discovery.Advertiser
	meter      *analysis.LevelMeter
	beats      *analysis.BeatTracker
	positions  transport.Multi
	events     transport.Multi
	closers    []io.Closer
}

func run(opts *cmd.Options) error {
	cfg := opts.Config
	simulate := opts.Command == cmd.CommandSimulate
	showTUI := !opts.NoTUI && !simulate

	applog.SetLevel(cfg.Level())
	if showTUI {
		restore, err := logToFile(cfg)
		if err != nil {
			return err
		}
		defer restore()
	}

	if !simulate {
		// Limit OS threads to optimize for real-time audio processing:
		// - One thread dedicated to audio engine (time-critical)
		// - One thread for UI and I/O operations
		runtime.GOMAXPROCS(2)

		if err := audio.Initialize(); err != nil {
			return err
		}
		defer audio.Terminate()
	}

	h, err := newHost(cfg, opts, simulate)
	if err != nil {
		return err
	}
	defer h.close()

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.Record || cfg.Recording.ArmOnRun {
		h.engine.Control().TransportRecord(true)
		h.engine.Flush()
	}
	if h.feed != nil {
		h.feed.Start()
	}

	if simulate {
		h.engine.Control().TransportPlay(true)
		h.engine.Flush()
		err := h.engine.Simulate(ctx, opts.Blocks, !opts.Fast)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		if pos, ok := h.engine.Control().CurrentPosition(); ok {
			printPosition(os.Stdout, pos)
		}
		return err
	}

	if err := h.engine.StartInputStream(); err != nil {
		return err
	}

	if showTUI {
		return tui.Run(ctx, tui.Options{
			Title:     build.GetBuildInfo().Name,
			PlayHead:  h.engine.Control(),
			Transport: h.engine.Timeline(),
			Level:     h.meter.Level,
			Recorded:  h.engine.RecordedBytes,
		})
	}

	applog.Infof("Running headless, press Ctrl+C to stop")
	<-ctx.Done()
	return nil
}

func newHost(cfg *config.Config, opts *cmd.Options, simulate bool) (*host, error) {
	h := &host{}
	ok := false
	defer func() {
		if !ok {
			h.close()
		}
	}()

	if err := h.openTransports(cfg, opts, simulate); err != nil {
		return nil, err
	}

	tl, err := timeline.New(cfg.TimelineConfig())
	if err != nil {
		return nil, err
	}

	h.meter = analysis.NewLevelMeter(cfg.Audio.FramesPerBuffer * cfg.Audio.InputChannels)
	processors := []analysis.Processor{h.meter}
	if len(h.events) > 0 {
		h.beats, err = analysis.NewBeatTracker(cfg.Audio.SampleRate, cfg.Audio.InputChannels, h.events)
		if err != nil {
			return nil, err
		}
		processors = append(processors, h.beats)
	}

	if simulate {
		h.engine, err = audio.NewOfflineEngine(cfg, tl, processors...)
	} else {
		h.engine, err = audio.NewEngine(cfg, tl, processors...)
	}
	if err != nil {
		return nil, err
	}

	if len(h.positions) > 0 {
		h.feed, err = transport.NewFeed(h.engine.PlayHead(), h.positions, cfg.Publish.Interval, cfg.Publish.KeepAlive)
		if err != nil {
			return nil, err
		}
		applog.Infof("Publishing session %s", h.feed.Session())
	}

	ok = true
	return h, nil
}

// openTransports builds the position and event fan-outs. UDP packets carry
// positions only.
func (h *host) openTransports(cfg *config.Config, opts *cmd.Options, simulate bool) error {
	p := cfg.Publish

	if p.WebSocketEnabled {
		ws := transport.NewWebSocketTransport(p.WebSocketAddress)
		if err := ws.Start(); err != nil {
			_ = ws.Close()
			return fmt.Errorf("failed to start WebSocket feed: %w", err)
		}
		h.closers = append(h.closers, ws)
		h.positions = append(h.positions, ws)
		h.events = append(h.events, ws)

		if p.MDNSEnabled {
			adv, err := discovery.Advertise(discovery.Config{
				ServiceName: p.ServiceName,
				Port:        listenPort(ws.Addr()),
				Path:        transport.WebSocketPath,
				Version:     build.GetBuildInfo().Version,
			})
			if err != nil {
				applog.Warnf("mDNS advertisement disabled: %v", err)
			} else {
				h.advertiser = adv
			}
		}
	}

	if p.UDPEnabled {
		sender, err := udp.NewUDPSender(p.UDPTargetAddress)
		if err != nil {
			return err
		}
		pt := udp.NewPacketTransport(sender)
		h.closers = append(h.closers, pt)
		h.positions = append(h.positions, pt)
	}

	if p.LogPositions || (opts.NoTUI && !simulate) {
		lt := transport.NewLoggingTransport()
		h.closers = append(h.closers, lt)
		h.positions = append(h.positions, lt)
	}
	if simulate {
		h.events = append(h.events, &printTransport{w: os.Stdout})
	}
	return nil
}

// close tears down in reverse dependency order: publishers first so they
// stop reading the engine, then the engine, then processors and sinks.
func (h *host) close() {
	// ==================== SHUTDOWN PHASE (Cold Path) ====================
	if h.feed != nil {
		_ = h.feed.Stop()
	}
	if h.advertiser != nil {
		if err := h.advertiser.Close(); err != nil {
			applog.Errorf("Error stopping mDNS: %v", err)
		}
	}
	if h.engine != nil {
		if path, ok := h.engine.Recording(); ok {
			fmt.Printf("\nRecording saved to: %s\n", path)
		}
		if err := h.engine.Close(); err != nil {
			applog.Errorf("Error closing audio engine: %v", err)
		}
	}
	if h.beats != nil {
		if err := h.beats.Close(); err != nil {
			applog.Errorf("Error closing beat tracker: %v", err)
		}
	}
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i].Close(); err != nil {
			applog.Errorf("Error closing transport: %v", err)
		}
	}
}

// logToFile moves log output off the terminal while the panel is shown.
func logToFile(cfg *config.Config) (func(), error) {
	dir := cfg.Recording.OutputDir
	if dir == "" {
		applog.SetOutput(io.Discard)
		return func() { applog.SetOutput(os.Stderr) }, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "playhead.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	applog.SetOutput(f)
	return func() {
		applog.SetOutput(os.Stderr)
		f.Close()
	}, nil
}

func listenPort(addr string) int {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(port)
	return n
}

// printTransport writes beat events to the terminal during simulation.
type printTransport struct {
	w io.Writer
}

func (p *printTransport) Send(data any) error {
	if ev, ok := data.(analysis.BeatEvent); ok {
		mark := ""
		if ev.Downbeat {
			mark = " *"
		}
		_, err := fmt.Fprintf(p.w, "beat %3d.%d  ppq %8.3f  offset %4d%s\n", ev.Bar, ev.Beat, ev.PPQ, ev.SampleOffset, mark)
		return err
	}
	return nil
}

func (p *printTransport) Close() error { return nil }

func printPosition(w io.Writer, pos playhead.PositionInfo) {
	bar, beat, _ := pos.BarBeat()
	fmt.Fprintf(w, "stopped at %d.%d  %s  %.3f s  %d samples  %.2f BPM %d/%d\n",
		bar, beat, pos.Timecode(), pos.TimeInSeconds, pos.TimeInSamples,
		pos.BPM, pos.TimeSigNumerator, pos.TimeSigDenominator)
}
