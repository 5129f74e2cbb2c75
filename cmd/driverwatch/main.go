// Command driverwatch runs the drowsiness monitoring daemon: it ingests
// detector landmark frames from the configured source, samples the
// microphone, fuses the signals into a drowsiness assessment, and serves the
// HTTP state/control API with the debug dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kestrel-sense/driverwatch/internal/api"
	"github.com/kestrel-sense/driverwatch/internal/capture"
	"github.com/kestrel-sense/driverwatch/internal/config"
	"github.com/kestrel-sense/driverwatch/internal/engine"
	"github.com/kestrel-sense/driverwatch/internal/framemux"
	"github.com/kestrel-sense/driverwatch/internal/fsutil"
	"github.com/kestrel-sense/driverwatch/internal/monitor"
	"github.com/kestrel-sense/driverwatch/internal/monitoring"
	"github.com/kestrel-sense/driverwatch/internal/notify"
	"github.com/kestrel-sense/driverwatch/internal/security"
	"github.com/kestrel-sense/driverwatch/internal/sink"
	"github.com/kestrel-sense/driverwatch/internal/timeutil"
	"github.com/kestrel-sense/driverwatch/internal/version"
)

var (
	listen   = flag.String("listen", ":8080", "HTTP listen address")
	driverID = flag.String("driver", "driver-001", "Driver identifier stamped on telemetry")
	mode     = flag.String("mode", "normal", "Initial alert mode (normal or demo)")

	source         = flag.String("source", "mock", "Detector frame source: mock, serial, udp, or replay")
	serialPort     = flag.String("serial-port", "/dev/ttyUSB0", "Serial port for -source=serial")
	serialBaud     = flag.Int("serial-baud", 115200, "Serial baud rate")
	udpListen      = flag.String("udp-listen", ":9999", "UDP listen address for -source=udp")
	replayFile     = flag.String("replay", "", "NDJSON frame file for -source=replay")
	replayInterval = flag.Duration("replay-interval", 66*time.Millisecond, "Frame pacing for -source=replay")
	replayLoop     = flag.Bool("replay-loop", false, "Loop the replay file forever")

	micMode = flag.String("mic", "none", "Audio capture: none, device, or synth")

	sinkURL    = flag.String("sink-url", "", "Telemetry collector endpoint (empty disables persistence)")
	tuningPath = flag.String("tuning", "", "Optional JSON tuning config path")

	mqttBroker = flag.String("mqtt-broker", "", "MQTT broker URL for alert publishing (empty disables)")
	mqttTopic  = flag.String("mqtt-topic", "driverwatch/alerts", "MQTT alert topic prefix; the cause is appended")

	verbose     = flag.Bool("verbose", false, "Enable per-tick debug logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// frameFeed is the mux surface the daemon needs, independent of the
// underlying source type.
type frameFeed interface {
	Subscribe() (string, chan string)
	Unsubscribe(string)
	Monitor(context.Context) error
	Close() error
	AttachAdminRoutes(*http.ServeMux)
}

// openFeed builds the configured detector source and its WebSocket ingest
// handler.
func openFeed(clk timeutil.Clock) (frameFeed, http.Handler, error) {
	switch *source {
	case "mock":
		m := framemux.NewMockFrameMux(clk)
		return m, framemux.IngestHandler(m), nil
	case "serial":
		m, err := framemux.NewSerialFrameMux(*serialPort, framemux.PortOptions{BaudRate: *serialBaud})
		if err != nil {
			return nil, nil, fmt.Errorf("opening serial detector: %w", err)
		}
		return m, framemux.IngestHandler(m), nil
	case "udp":
		src, err := framemux.NewUDPSource(*udpListen, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("opening UDP detector source: %w", err)
		}
		m := framemux.NewFrameMux(src)
		return m, framemux.IngestHandler(m), nil
	case "replay":
		if *replayFile == "" {
			return nil, nil, fmt.Errorf("-source=replay requires -replay")
		}
		if err := security.ValidateExportPath(*replayFile); err != nil {
			return nil, nil, fmt.Errorf("replay path: %w", err)
		}
		src, err := framemux.NewReplaySource(fsutil.OSFileSystem{}, clk, *replayFile, *replayInterval, *replayLoop)
		if err != nil {
			return nil, nil, fmt.Errorf("opening replay source: %w", err)
		}
		m := framemux.NewFrameMux(src)
		return m, framemux.IngestHandler(m), nil
	default:
		return nil, nil, fmt.Errorf("unknown -source %q: want mock, serial, udp, or replay", *source)
	}
}

// captureConfig returns the analysis-window parameters, with the FFT window
// size overridden by the tuning file when one is loaded.
func captureConfig(t *config.TuningConfig) capture.Config {
	cfg := capture.DefaultConfig()
	if t != nil {
		cfg.WindowSize = t.GetFFTWindowSize()
	}
	return cfg
}

// saveSettings returns the persistence retry and debounce parameters from
// the tuning file, falling back to the sink defaults.
func saveSettings(t *config.TuningConfig) (attempts int, backoff, debounce time.Duration) {
	if t == nil {
		return sink.DefaultAttempts, sink.DefaultBackoff, sink.DefaultDebounce
	}
	return t.GetSaveAttempts(), t.GetSaveBackoff(), t.GetSaveDebounce()
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("driverwatch " + version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	monitoring.Verbose = *verbose

	clk := timeutil.RealClock{}

	opts := engine.DefaultOptions(*driverID)
	opts.Mode = *mode
	opts.Clock = clk

	var tuning *config.TuningConfig
	if *tuningPath != "" {
		if err := security.ValidateExportPath(*tuningPath); err != nil {
			log.Fatalf("Tuning config path: %v", err)
		}
		loaded, err := config.LoadTuningConfig(fsutil.OSFileSystem{}, *tuningPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		tuning = loaded
		opts = opts.ApplyTuning(tuning)
		log.Printf("Applied tuning config from %s", *tuningPath)
	}

	// Audio capture: a window is only allocated when a source feeds it.
	switch *micMode {
	case "none":
	case "device":
		window := capture.NewCapture(captureConfig(tuning))
		opts.Capture = window
		opts.Mic = capture.NewMicSource(window)
	case "synth":
		window := capture.NewCapture(captureConfig(tuning))
		opts.Capture = window
		opts.Mic = capture.NewSyntheticSource(window, clk)
	default:
		log.Fatalf("Unknown -mic %q: want none, device, or synth", *micMode)
	}

	if *sinkURL != "" {
		client := sink.NewClient(nil, clk, *sinkURL)
		attempts, backoff, debounce := saveSettings(tuning)
		client.Attempts = attempts
		client.Backoff = backoff
		opts.Saver = sink.NewScheduler(client, clk, debounce)
		log.Printf("Persisting telemetry to %s", *sinkURL)
	}

	opts.Notifiers = []engine.Notifier{notify.LogNotifier{}}
	if *mqttBroker != "" {
		mn, err := notify.NewMQTTNotifier(*mqttBroker, "driverwatch-"+*driverID, *mqttTopic, *driverID)
		if err != nil {
			log.Fatalf("Failed to connect MQTT notifier: %v", err)
		}
		defer mn.Close()
		opts.Notifiers = append(opts.Notifiers, mn)
		log.Printf("Publishing alerts to %s at %s", *mqttTopic, *mqttBroker)
	}

	feed, ingest, err := openFeed(clk)
	if err != nil {
		log.Fatalf("Failed to open detector source: %v", err)
	}
	defer feed.Close()

	eng := engine.New(opts)
	defer eng.Close()

	mon := monitor.New(eng, clk)

	if *micMode != "none" {
		if err := eng.StartMic(); err != nil {
			// Keep running on video alone; the operator can retry over the
			// API once the device recovers.
			log.Printf("Audio capture unavailable: %v", err)
		}
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Source IO loop.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := feed.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("Detector feed stopped: %v", err)
		}
	}()

	// Pipeline loop.
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, frames := feed.Subscribe()
		defer feed.Unsubscribe(id)
		if err := eng.Run(ctx, frames); err != nil && err != context.Canceled {
			log.Printf("Engine stopped: %v", err)
		}
	}()

	// Debug history recorder.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mon.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("Monitor stopped: %v", err)
		}
	}()

	// HTTP server.
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(eng).ServeMux()
		mux.Handle("/api/frames", ingest)
		feed.AttachAdminRoutes(mux)
		mon.AttachRoutes(mux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("driverwatch %s listening on %s (driver %s, source %s)",
				version.Version, *listen, *driverID, *source)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("HTTP server failed: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
