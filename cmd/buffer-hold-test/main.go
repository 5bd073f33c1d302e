package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	bufferhold "github.com/e7canasta/orion-care-sensor/modules/buffer-hold"
	"github.com/e7canasta/orion-care-sensor/modules/buffer-hold/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/buffer-hold/internal/emitter"
	"github.com/e7canasta/orion-care-sensor/modules/buffer-hold/internal/metrics"
)

// Version information
const version = "v0.1.0"

const usageExamples = `
Examples:
  # Test ZED SDK with 50ms hold time (simulates slow processing)
  buffer-hold-test --source zedsrc --hold-time 50

  # Test Argus with 100ms hold time for 120 buffers
  buffer-hold-test --source argus --hold-time 100 --num-buffers 120

  # Hold last 5 buffers in memory (test buffer pool exhaustion)
  buffer-hold-test --source zedsrc --hold-buffers 5 --num-buffers 60

  # Test stereo mode (ZED SDK only)
  buffer-hold-test --source zedsrc --stereo --hold-time 50

  # Load a profile, export the report and publish to MQTT
  buffer-hold-test -c profile.yaml --report run.json --mqtt-broker localhost:1883
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// cliOptions is the resolved command line
type cliOptions struct {
	file        *config.File
	debug       bool
	showVersion bool
}

// parseArgs parses flags over the profile file (if any). Flags only
// override the profile when they are set explicitly.
func parseArgs(args []string, stderr io.Writer) (*cliOptions, error) {
	defaults := bufferhold.DefaultConfig()

	flags := pflag.NewFlagSet("buffer-hold-test", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprintf(stderr, "Test zero-copy NV12 buffer behavior by holding buffers\n\n")
		fmt.Fprintf(stderr, "Usage: buffer-hold-test [flags]\n\n")
		flags.PrintDefaults()
		fmt.Fprint(stderr, usageExamples)
	}

	source := flags.StringP("source", "s", string(defaults.Source), "Video source: zedsrc (ZED SDK NV12) or argus (nvarguscamerasrc)")
	holdTime := flags.IntP("hold-time", "t", defaults.HoldTimeMS, "Time in ms to hold each buffer before releasing")
	holdBuffers := flags.IntP("hold-buffers", "b", defaults.HoldBuffers, "Keep last N buffers in memory simultaneously")
	numBuffers := flags.IntP("num-buffers", "n", defaults.NumBuffers, "Number of buffers to capture (0 = unlimited)")
	resolution := flags.IntP("resolution", "r", int(defaults.Resolution), "Resolution enum: 0=HD2K, 1=HD1080, 2=HD1200, 3=HD720, 4=VGA, 5=WVGA")
	fps := flags.IntP("fps", "f", defaults.FPS, "Target frame rate")
	stereo := flags.Bool("stereo", defaults.Stereo, "Use stereo mode (ZED SDK only, side-by-side)")
	verbose := flags.BoolP("verbose", "v", false, "Verbose output (show each buffer)")
	configPath := flags.StringP("config", "c", "", "Test profile (.yaml, .yml or .toml)")
	sensorID := flags.Int("sensor-id", defaults.SensorID, "Argus sensor id")
	appsinkDrop := flags.Bool("appsink-drop", defaults.AppsinkDrop, "Let appsink drop buffers when its queue is full")
	appsinkMax := flags.Int("appsink-max-buffers", defaults.AppsinkMaxBuffers, "appsink queue length (0 = unlimited)")
	startRetries := flags.Int("start-retries", defaults.StartRetries, "Pipeline start retries before the first buffer")
	statsInterval := flags.Int("stats-interval", 0, "Seconds between progress reports (0 = off)")
	reportPath := flags.String("report", "", "Write the final report to this file (.json, .yaml or .yml)")
	metricsAddr := flags.String("metrics-addr", "", "Expose Prometheus metrics on this address (e.g. :9464)")
	mqttBroker := flags.String("mqtt-broker", "", "Publish stats and report to this MQTT broker")
	mqttTopic := flags.String("mqtt-topic", "", "MQTT base topic (default buffer-hold/<client-id>)")
	mqttFormat := flags.String("mqtt-format", "", "MQTT payload format: json, msgpack")
	debug := flags.Bool("debug", false, "Enable debug logging")
	showVersion := flags.Bool("version", false, "Show version and exit")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if *showVersion {
		return &cliOptions{showVersion: true}, nil
	}

	file := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		file = loaded
	}

	// Apply explicit flags over the profile
	if flags.Changed("source") {
		file.Test.Source = bufferhold.Source(*source)
	}
	if flags.Changed("hold-time") {
		file.Test.HoldTimeMS = *holdTime
	}
	if flags.Changed("hold-buffers") {
		file.Test.HoldBuffers = *holdBuffers
	}
	if flags.Changed("num-buffers") {
		file.Test.NumBuffers = *numBuffers
	}
	if flags.Changed("resolution") {
		file.Test.Resolution = bufferhold.Resolution(*resolution)
	}
	if flags.Changed("fps") {
		file.Test.FPS = *fps
	}
	if flags.Changed("stereo") {
		file.Test.Stereo = *stereo
	}
	if flags.Changed("sensor-id") {
		file.Test.SensorID = *sensorID
	}
	if flags.Changed("appsink-drop") {
		file.Test.AppsinkDrop = *appsinkDrop
	}
	if flags.Changed("appsink-max-buffers") {
		file.Test.AppsinkMaxBuffers = *appsinkMax
	}
	if flags.Changed("start-retries") {
		file.Test.StartRetries = *startRetries
	}
	if flags.Changed("verbose") {
		file.Output.Verbose = *verbose
	}
	if flags.Changed("stats-interval") {
		file.Output.StatsIntervalS = *statsInterval
	}
	if flags.Changed("report") {
		file.Output.ReportPath = *reportPath
	}
	if flags.Changed("metrics-addr") {
		file.Metrics.Addr = *metricsAddr
	}
	if flags.Changed("mqtt-broker") {
		file.MQTT.Broker = *mqttBroker
	}
	if flags.Changed("mqtt-topic") {
		file.MQTT.Topic = *mqttTopic
	}
	if flags.Changed("mqtt-format") {
		file.MQTT.Format = *mqttFormat
	}

	// Test errors are reported without the section prefix
	if err := file.Test.Validate(); err != nil {
		return nil, err
	}
	if err := config.Validate(file); err != nil {
		return nil, err
	}

	return &cliOptions{file: file, debug: *debug}, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	// Parse command-line flags
	opts, err := parseArgs(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if opts.showVersion {
		fmt.Fprintf(stdout, "buffer-hold-test %s\n", version)
		return 0
	}

	// Set up logging
	logLevel := slog.LevelInfo
	if opts.debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	file := opts.file
	cfg := file.Test
	verbose := file.Output.Verbose

	// Handle graceful shutdown
	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	var recorder *metrics.Recorder
	if file.Metrics.Addr != "" {
		recorder = metrics.NewRecorder(string(cfg.Source))
		go func() {
			if err := metrics.Serve(bgCtx, file.Metrics.Addr, recorder); err != nil {
				slog.Error("metrics: server failed", "addr", file.Metrics.Addr, "error", err)
			}
		}()
	}

	var em *emitter.MQTTEmitter
	if file.MQTT.Broker != "" {
		em = emitter.NewMQTTEmitter(emitter.Config{
			Broker:   file.MQTT.Broker,
			ClientID: file.MQTT.ClientID,
			Topic:    file.MQTT.Topic,
			QoS:      file.MQTT.QoS,
			Format:   file.MQTT.Format,
		})
		if err := em.Connect(ctx); err != nil {
			// Publishing is optional, the test still runs
			slog.Warn("emitter: disabled", "broker", file.MQTT.Broker, "error", err)
			em = nil
		} else {
			defer em.Disconnect()
		}
	}

	test, err := bufferhold.NewTest(cfg,
		bufferhold.WithMetrics(recorder),
		bufferhold.WithBufferObserver(bufferObserver(stdout, cfg, verbose)),
		bufferhold.WithEventObserver(func(ev bufferhold.Event) {
			printEvent(stdout, ev, verbose)
		}),
	)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	bufferhold.WriteBanner(stdout, cfg)

	// Missing camera plugins are reported before the pipeline starts
	if err := test.Check(); err != nil {
		fmt.Fprintf(stdout, "\n[ERROR] Failed to build pipeline: %v\n", err)
		return 1
	}

	if verbose {
		fmt.Fprintf(stdout, "\n[Pipeline] %s\n\n", test.Launch())
	}
	fmt.Fprintf(stdout, "\nStarting pipeline... (Ctrl+C to stop)\n\n")

	// Launch stats reporter goroutine
	if interval := file.Output.StatsIntervalS; interval > 0 {
		go reportProgress(bgCtx, test, em, time.Duration(interval)*time.Second)
	}

	report, err := test.Run(ctx)
	cancelBg()

	if err != nil && errors.Is(err, bufferhold.ErrLaunch) {
		fmt.Fprintf(stdout, "\n[ERROR] Failed to build pipeline: %v\n", err)
		return 1
	}
	if report == nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if report.StopReason == bufferhold.StopInterrupted {
		fmt.Fprintf(stdout, "\n\n[Interrupted by user]\n")
	}

	report.WriteSummary(stdout)

	if path := file.Output.ReportPath; path != "" {
		if err := report.WriteFile(path); err != nil {
			slog.Error("buffer-hold: report export failed", "path", path, "error", err)
		} else {
			slog.Info("buffer-hold: report written", "path", path)
		}
	}

	if em != nil {
		if err := em.PublishReport(report); err != nil {
			slog.Warn("emitter: report not published", "error", err)
		}
	}

	// Runtime pipeline errors were printed by the bus observer and are part
	// of the summary; the run itself completed.
	return 0
}

// reportProgress logs and publishes a live snapshot every interval.
func reportProgress(ctx context.Context, test *bufferhold.Test, em *emitter.MQTTEmitter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := test.Stats()
			fps := 0.0
			if stats.Elapsed > 0 {
				fps = float64(stats.Buffers) / stats.Elapsed.Seconds()
			}

			slog.Info("buffer-hold: progress",
				"buffers", humanize.Comma(int64(stats.Buffers)),
				"fps", fmt.Sprintf("%.1f", fps),
				"gaps", stats.Gaps,
				"estimated_dropped", stats.Dropped,
				"held", stats.Held,
				"qos", stats.QoSMessages,
				"elapsed", stats.Elapsed.Round(time.Millisecond),
			)

			if em != nil {
				if err := em.PublishStats(stats); err != nil {
					slog.Debug("emitter: stats not published", "error", err)
				}
			}
		}
	}
}

// bufferObserver prints the per-buffer lines. Everything it prints is
// verbose output.
func bufferObserver(w io.Writer, cfg bufferhold.Config, verbose bool) func(bufferhold.BufferObservation) {
	return func(obs bufferhold.BufferObservation) {
		if !verbose {
			return
		}
		if obs.Gap != nil {
			fmt.Fprintln(w, gapLine(*obs.Gap, cfg.FPS))
		}
		fmt.Fprintln(w, bufferLine(obs))
		if cfg.NumBuffers > 0 && obs.Buffer == uint64(cfg.NumBuffers) {
			fmt.Fprintf(w, "\n  Reached %d buffers, stopping...\n", cfg.NumBuffers)
		}
	}
}

// bufferLine formats the verbose per-buffer line. A buffer without PTS
// is shown as -1.
func bufferLine(obs bufferhold.BufferObservation) string {
	pts := -1.0
	if obs.HasPTS {
		pts = obs.PTS.Seconds()
	}
	return fmt.Sprintf("  Buffer %4d: PTS=%8.3fs, elapsed=%8.3fs, held=%d",
		obs.Buffer, pts, obs.Elapsed.Seconds(), obs.Held)
}

func gapLine(gap bufferhold.Gap, fps int) string {
	expected := 1000.0 / float64(fps)
	return fmt.Sprintf("  ⚠ PTS gap detected: %d frames missing (interval: %.1fms vs expected %.1fms)",
		gap.Frames, float64(gap.Interval)/float64(time.Millisecond), expected)
}

func printEvent(w io.Writer, ev bufferhold.Event, verbose bool) {
	switch ev.Kind {
	case bufferhold.EventEOS:
		fmt.Fprintf(w, "\n[EOS] End of stream\n")
	case bufferhold.EventError:
		fmt.Fprintf(w, "\n[ERROR] %s\n", ev.Message)
		if verbose && ev.Debug != "" {
			fmt.Fprintf(w, "  Debug: %s\n", ev.Debug)
		}
	case bufferhold.EventWarning:
		fmt.Fprintf(w, "\n[WARNING] %s\n", ev.Message)
	case bufferhold.EventQoS:
		if verbose {
			fmt.Fprintf(w, "  [QOS] Dropped buffer reported\n")
		}
	case bufferhold.EventStateChanged:
		if verbose {
			fmt.Fprintf(w, "  [State] %s -> %s\n", ev.From, ev.To)
		}
	}
}
