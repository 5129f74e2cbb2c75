// Command replay-pcap replays captured detector UDP traffic against a
// running driverwatch daemon, honoring the recorded packet timing. Each UDP
// payload in the capture is one NDJSON landmark frame.
//
// PCAP reading needs libpcap; build with -tags=pcap to enable it.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/kestrel-sense/driverwatch/internal/security"
)

var (
	file    = flag.String("file", "", "PCAP file to replay")
	port    = flag.Int("port", 9999, "UDP port filter for detector packets in the capture")
	target  = flag.String("target", "127.0.0.1:9999", "Replay destination address")
	speed   = flag.Float64("speed", 1.0, "Replay speed multiplier (1.0 = recorded timing)")
	noDelay = flag.Bool("no-delay", false, "Ignore recorded timing and replay as fast as possible")
)

func main() {
	flag.Parse()

	if *file == "" {
		log.Fatal("-file is required")
	}
	if err := security.ValidateExportPath(*file); err != nil {
		log.Fatalf("Capture path: %v", err)
	}
	if *speed <= 0 {
		log.Fatal("-speed must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := replayPCAP(ctx, *file, *port, *target, *speed, *noDelay); err != nil && err != context.Canceled {
		log.Fatalf("Replay failed: %v", err)
	}
}
