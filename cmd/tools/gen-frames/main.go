// Command gen-frames writes a deterministic synthetic detector session as an
// NDJSON frame file, suitable for driverwatch -source=replay. The scripted
// face blinks, yawns and nods on fixed cycles, so a generated session
// exercises every pipeline signal.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"

	"github.com/kestrel-sense/driverwatch/internal/framemux"
	"github.com/kestrel-sense/driverwatch/internal/fsutil"
	"github.com/kestrel-sense/driverwatch/internal/security"
)

var (
	out    = flag.String("out", "", "Output NDJSON file (default frames-<driver>.ndjson)")
	driver = flag.String("driver", "driver-001", "Driver identifier embedded in the default file name")
	frames = flag.Int("frames", 900, "Number of frames to generate (about 1min at detector rate)")
)

// outputPath resolves the output file: an explicit -out wins, otherwise the
// name derives from the driver identifier, sanitized for the filesystem.
func outputPath(out, driver string) string {
	if out != "" {
		return out
	}
	return "frames-" + security.SanitizeFilename(driver) + ".ndjson"
}

func main() {
	flag.Parse()

	if *frames < 1 {
		log.Fatal("-frames must be positive")
	}
	path := outputPath(*out, *driver)
	if err := security.ValidateExportPath(path); err != nil {
		log.Fatalf("Output path: %v", err)
	}

	if err := run(fsutil.OSFileSystem{}, path, *frames); err != nil {
		log.Fatalf("Failed to generate frames: %v", err)
	}
	fmt.Printf("Wrote %d frames to %s\n", *frames, path)
}

func run(fsys fsutil.FileSystem, path string, n int) error {
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for i := 0; i < n; i++ {
		if _, err := w.Write(framemux.SyntheticFrameLine(i)); err != nil {
			return fmt.Errorf("writing frame %d: %w", i, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("writing frame %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing output: %w", err)
	}
	return nil
}
