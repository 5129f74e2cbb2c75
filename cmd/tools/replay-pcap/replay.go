//go:build pcap
// +build pcap

package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// replayPCAP streams the UDP payloads of the capture to target, pacing each
// packet by the recorded inter-packet gap divided by speed.
func replayPCAP(ctx context.Context, pcapFile string, udpPort int, target string, speed float64, noDelay bool) error {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer handle.Close()

	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		return fmt.Errorf("failed to set BPF filter %q: %w", filterStr, err)
	}

	conn, err := net.Dial("udp", target)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", target, err)
	}
	defer conn.Close()

	log.Printf("Replaying %s to %s (filter %q, speed %.1fx)", pcapFile, target, filterStr, speed)

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	packetCount := 0
	startTime := time.Now()
	var lastCapture time.Time

	for {
		select {
		case <-ctx.Done():
			log.Printf("Replay stopping after %d packets", packetCount)
			return ctx.Err()
		case packet := <-packetSource.Packets():
			if packet == nil {
				log.Printf("Replay complete: %d packets in %v", packetCount, time.Since(startTime))
				return nil
			}

			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			payload := udpLayer.(*layers.UDP).Payload
			if len(payload) == 0 {
				continue
			}

			captureTime := packet.Metadata().Timestamp
			if !noDelay && !lastCapture.IsZero() {
				gap := captureTime.Sub(lastCapture)
				if gap > 0 {
					delay := time.Duration(float64(gap) / speed)
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(delay):
					}
				}
			}
			lastCapture = captureTime

			if _, err := conn.Write(payload); err != nil {
				return fmt.Errorf("sending packet %d: %w", packetCount, err)
			}
			packetCount++

			if packetCount%500 == 0 {
				log.Printf("Replayed %d packets", packetCount)
			}
		}
	}
}
