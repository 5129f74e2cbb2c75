//go:build !pcap
// +build !pcap

package main

import (
	"context"
	"fmt"
)

// replayPCAP is a stub when PCAP support is disabled.
// Build with -tags=pcap to enable PCAP file replay.
func replayPCAP(ctx context.Context, pcapFile string, udpPort int, target string, speed float64, noDelay bool) error {
	return fmt.Errorf("PCAP support not enabled: rebuild with -tags=pcap to enable PCAP file replay")
}
