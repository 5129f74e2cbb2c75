package framemux

import (
	"encoding/json"
	"io"
	"math"
	"sync"
	"time"

	"github.com/kestrel-sense/driverwatch/internal/timeutil"
)

// Scripted detector timing, in frames. The blink window spans five frames,
// about 330ms at the mock rate, which lands inside the blink duration band;
// the yawn and nod windows recur on longer cycles so a demo session
// exercises every signal path.
const (
	mockFrameInterval = 66 * time.Millisecond

	blinkCycle  = 45
	blinkFrames = 5
	yawnCycle   = 300
	yawnStart   = 200
	yawnFrames  = 15
	nodCycle    = 600
	nodStart    = 400
	nodFrames   = 6
)

// SyntheticFrameLine returns one NDJSON landmark frame for frame counter n.
// The script is fully deterministic: eyes blink shut on frames 0-4 of every
// 45-frame cycle, a yawn opens the mouth mid-cycle, and a nod drops the nose
// once per long cycle. Only the landmarks the feature extractor consumes are
// articulated; the rest are static filler in a plausible face layout.
func SyntheticFrameLine(n int) []byte {
	blink := n%blinkCycle < blinkFrames
	yawn := inWindow(n, yawnCycle, yawnStart, yawnFrames)
	nod := inWindow(n, nodCycle, nodStart, nodFrames)

	wire := struct {
		Points      [][]float64        `json:"points"`
		Expressions map[string]float64 `json:"expressions"`
	}{
		Points: syntheticLandmarks(blink, yawn, nod),
		Expressions: map[string]float64{
			"neutral": 0.9,
			"happy":   0.05,
		},
	}
	data, _ := json.Marshal(wire)
	return data
}

func inWindow(n, cycle, start, span int) bool {
	phase := n % cycle
	return phase >= start && phase < start+span
}

// syntheticLandmarks lays out a 68-point face in image coordinates (y grows
// downward). Eye corners span 4 units, eye centers sit 10 units apart, and
// the neutral nose tip hangs 1.1 spans below the eye midpoint, so the
// extracted EAR, MAR and pitch hit known values: open eyes read 0.35, shut
// eyes 0.20, a resting mouth about 0.20, a yawn saturates at 1.0, and the
// nod pose reads just over 15 degrees of forward pitch.
func syntheticLandmarks(blink, yawn, nod bool) [][]float64 {
	lid := 0.7
	if blink {
		lid = 0.4
	}
	lip := 0.15
	if yawn {
		lip = 0.9
	}
	noseY := 16.0
	if nod {
		noseY = 13.0
	}

	pts := make([][]float64, 0, 68)

	// Jawline, 17 points arcing ear to ear through the chin.
	for i := 0; i <= 16; i++ {
		t := float64(i) / 16
		pts = append(pts, []float64{-2 + 18*t, 4 + 18*math.Sin(t*math.Pi)})
	}

	// Brows, 5 points per side above each eye.
	for i := 0; i < 5; i++ {
		pts = append(pts, []float64{float64(i), 3.5})
	}
	for i := 0; i < 5; i++ {
		pts = append(pts, []float64{10 + float64(i), 3.5})
	}

	// Nose bridge and tip.
	pts = append(pts,
		[]float64{7, 8},
		[]float64{7, 10},
		[]float64{7, 12},
		[]float64{7, noseY},
	)

	// Nose base.
	for i := 0; i < 5; i++ {
		pts = append(pts, []float64{5.5 + 0.75*float64(i), 17})
	}

	// Eyes: corner, two upper lid points, corner, two lower lid points.
	for _, off := range []float64{0, 10} {
		pts = append(pts,
			[]float64{off, 5},
			[]float64{off + 1.3, 5 - lid},
			[]float64{off + 2.7, 5 - lid},
			[]float64{off + 4, 5},
			[]float64{off + 2.7, 5 + lid},
			[]float64{off + 1.3, 5 + lid},
		)
	}

	// Outer mouth, 12 static points around the lip line.
	pts = append(pts,
		[]float64{4.5, 18},
		[]float64{5.3, 17.3},
		[]float64{6.1, 17.1},
		[]float64{7, 17},
		[]float64{7.9, 17.1},
		[]float64{8.7, 17.3},
		[]float64{9.5, 18},
		[]float64{8.7, 18.7},
		[]float64{7.9, 18.9},
		[]float64{7, 19},
		[]float64{6.1, 18.9},
		[]float64{5.3, 18.7},
	)

	// Inner mouth: corner, three upper points, corner, three lower points.
	pts = append(pts,
		[]float64{5, 18},
		[]float64{6, 18 - lip},
		[]float64{7, 18 - lip},
		[]float64{8, 18 - lip},
		[]float64{9, 18},
		[]float64{8, 18 + lip},
		[]float64{7, 18 + lip},
		[]float64{6, 18 + lip},
	)

	return pts
}

// MockDetectorPort is a LineSource that synthesizes detector frames on a
// timer, for demos and tests that need the full pipeline without detector
// hardware attached.
type MockDetectorPort struct {
	r    *io.PipeReader
	w    *io.PipeWriter
	once sync.Once
	done chan struct{}
}

// NewMockDetectorPort starts a frame generator paced by clk. A nil clk gets
// the real clock.
func NewMockDetectorPort(clk timeutil.Clock) *MockDetectorPort {
	if clk == nil {
		clk = timeutil.RealClock{}
	}
	r, w := io.Pipe()
	p := &MockDetectorPort{r: r, w: w, done: make(chan struct{})}
	// Register the ticker before the goroutine starts so a caller advancing
	// a mock clock immediately after construction cannot lose the first tick.
	ticker := clk.NewTicker(mockFrameInterval)
	go p.run(ticker)
	return p
}

func (p *MockDetectorPort) run(ticker timeutil.Ticker) {
	defer ticker.Stop()
	for n := 0; ; n++ {
		select {
		case <-p.done:
			return
		case <-ticker.C():
		}
		line := append(SyntheticFrameLine(n), '\n')
		if _, err := p.w.Write(line); err != nil {
			return
		}
	}
}

func (p *MockDetectorPort) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

// Close stops the generator and unblocks any pending Read.
func (p *MockDetectorPort) Close() error {
	p.once.Do(func() {
		close(p.done)
		p.w.Close()
		p.r.Close()
	})
	return nil
}

// NewMockFrameMux creates a FrameMux backed by the synthetic detector.
func NewMockFrameMux(clk timeutil.Clock) *FrameMux[*MockDetectorPort] {
	return NewFrameMux(NewMockDetectorPort(clk))
}
