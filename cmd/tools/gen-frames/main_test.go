package main

import (
	"strings"
	"testing"
	"time"

	"github.com/kestrel-sense/driverwatch/internal/face"
	"github.com/kestrel-sense/driverwatch/internal/fsutil"
)

func TestRunWritesParsableFrames(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	if err := run(fsys, "frames.ndjson", 50); err != nil {
		t.Fatalf("run: %v", err)
	}

	data, err := fsys.ReadFile("frames.ndjson")
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 50 {
		t.Fatalf("got %d lines, want 50", len(lines))
	}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, line := range lines {
		frame, err := face.ParseFrame([]byte(line), now)
		if err != nil {
			t.Fatalf("line %d does not parse: %v", i, err)
		}
		if !frame.HasFullLandmarks() {
			t.Fatalf("line %d is missing landmarks", i)
		}
	}
}

func TestOutputPath(t *testing.T) {
	if got := outputPath("session.ndjson", "driver-001"); got != "session.ndjson" {
		t.Errorf("explicit -out = %q, want session.ndjson", got)
	}
	if got := outputPath("", "driver-001"); got != "frames-driver-001.ndjson" {
		t.Errorf("derived path = %q, want frames-driver-001.ndjson", got)
	}
	if got := outputPath("", "fleet/7 beta"); got != "frames-fleet_7_beta.ndjson" {
		t.Errorf("sanitized path = %q, want frames-fleet_7_beta.ndjson", got)
	}
}
