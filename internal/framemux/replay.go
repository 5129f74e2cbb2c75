package framemux

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/kestrel-sense/driverwatch/internal/fsutil"
	"github.com/kestrel-sense/driverwatch/internal/timeutil"
)

// DefaultReplayInterval paces replayed frames at roughly detector rate.
const DefaultReplayInterval = 66 * time.Millisecond

// ReplaySource feeds recorded NDJSON frames from a file, one line per
// interval, optionally looping when the recording ends. It lets the whole
// pipeline run from a capture instead of a live detector.
type ReplaySource struct {
	fsys     fsutil.FileSystem
	clock    timeutil.Clock
	path     string
	interval time.Duration
	loop     bool

	file    fs.File
	r       *bufio.Reader
	pending []byte
}

// NewReplaySource opens path on fsys for paced replay. A nil clk gets the
// real clock; a non-positive interval gets DefaultReplayInterval.
func NewReplaySource(fsys fsutil.FileSystem, clk timeutil.Clock, path string, interval time.Duration, loop bool) (*ReplaySource, error) {
	if clk == nil {
		clk = timeutil.RealClock{}
	}
	if interval <= 0 {
		interval = DefaultReplayInterval
	}
	file, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening replay file: %w", err)
	}
	return &ReplaySource{
		fsys:     fsys,
		clock:    clk,
		path:     path,
		interval: interval,
		loop:     loop,
		file:     file,
		r:        bufio.NewReader(file),
	}, nil
}

// Read serves one recorded line at a time, sleeping the replay interval
// before each new line. Blank lines are skipped without pacing.
func (s *ReplaySource) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		line, err := s.r.ReadBytes('\n')
		if err == io.EOF {
			if len(line) > 0 {
				// Final line without trailing newline.
				line = append(line, '\n')
			} else if s.loop {
				if err := s.rewind(); err != nil {
					return 0, err
				}
				continue
			} else {
				return 0, io.EOF
			}
		} else if err != nil {
			return 0, err
		}

		if len(trimEOL(line)) == 0 {
			continue
		}
		s.clock.Sleep(s.interval)
		s.pending = line
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Close releases the replay file.
func (s *ReplaySource) Close() error {
	return s.file.Close()
}

func (s *ReplaySource) rewind() error {
	s.file.Close()
	file, err := s.fsys.Open(s.path)
	if err != nil {
		return fmt.Errorf("rewinding replay file: %w", err)
	}
	s.file = file
	s.r = bufio.NewReader(file)
	return nil
}

func trimEOL(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
