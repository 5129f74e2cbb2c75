// Package engine owns the fusion pipeline: it folds detector frames and
// audio sampling ticks into the per-component trackers, publishes change-
// gated snapshots and alert events, and exposes the control surface.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrel-sense/driverwatch/internal/alerts"
	"github.com/kestrel-sense/driverwatch/internal/audio"
	"github.com/kestrel-sense/driverwatch/internal/calibrate"
	"github.com/kestrel-sense/driverwatch/internal/capture"
	"github.com/kestrel-sense/driverwatch/internal/eyes"
	"github.com/kestrel-sense/driverwatch/internal/face"
	"github.com/kestrel-sense/driverwatch/internal/fusion"
	"github.com/kestrel-sense/driverwatch/internal/monitoring"
	"github.com/kestrel-sense/driverwatch/internal/sink"
	"github.com/kestrel-sense/driverwatch/internal/timeutil"
	"github.com/kestrel-sense/driverwatch/internal/units"
)

// subscriberBuffer is the event buffer per subscriber. Sends never block;
// a consumer this far behind misses intermediate events.
const subscriberBuffer = 8

// ErrNoMic is returned by StartMic when no capture source is configured.
var ErrNoMic = errors.New("no capture source configured")

// Engine serializes the pipeline under one mutex: the video tick, the audio
// tick and every control call acquire it, so components only ever see fully
// published peer state. Components themselves are single-owner and never
// locked individually.
type Engine struct {
	opts  Options
	clock timeutil.Clock

	mu sync.Mutex

	extractor   *face.Extractor
	expressions *face.ExpressionTracker
	closure     *eyes.Tracker
	analyzer    *audio.Analyzer
	envelope    *audio.Envelope
	calibration *calibrate.Session
	scorer      *fusion.Engine
	alerter     *alerts.Detector

	window    *capture.Capture
	mic       capture.Source
	saver     *sink.Scheduler
	notifiers []Notifier

	lastVideoTick time.Time
	lastStatus    fusion.Status

	// Latest cross-tick signals, advanced only under mu.
	hasVideo  bool
	ear       float64
	mar       float64
	pitch     float64
	nod       bool
	eyeState  eyes.State
	dominant  string
	lastMicro string

	hasAudio      bool
	micActive     bool
	soundScore    float64
	soundPeriodic bool
	volume        float64

	published    Snapshot
	hasPublished bool
	subscribers  map[string]chan Event

	closed bool
	wg     sync.WaitGroup
}

// New creates an engine from opts. Engine-level zero fields fall back to
// defaults; component configs are used as given.
func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.MinVideoTick <= 0 {
		opts.MinVideoTick = DefaultMinVideoTick
	}
	if opts.AudioInterval <= 0 {
		opts.AudioInterval = DefaultAudioInterval
	}
	if opts.Mode == "" {
		opts.Mode = units.ModeNormal
	}

	return &Engine{
		opts:        opts,
		clock:       opts.Clock,
		extractor:   face.NewExtractor(opts.Extractor),
		expressions: face.NewExpressionTracker(),
		closure:     eyes.NewTracker(opts.Eyes),
		analyzer:    audio.NewAnalyzer(opts.Audio),
		envelope:    audio.NewEnvelope(),
		calibration: calibrate.NewSession(opts.Calibration),
		scorer:      fusion.NewEngine(opts.Fusion),
		alerter:     alerts.NewDetector(opts.Alerts, opts.Mode),
		window:      opts.Capture,
		mic:         opts.Mic,
		saver:       opts.Saver,
		notifiers:   opts.Notifiers,
		lastStatus:  fusion.StatusAwake,
		subscribers: make(map[string]chan Event),
	}
}

// Run consumes detector frame lines until ctx ends or the channel closes,
// driving the audio sampling loop alongside. It returns the context error on
// cancellation and nil when the frame channel closes.
func (e *Engine) Run(ctx context.Context, frames <-chan string) error {
	ctx, cancel := context.WithCancel(ctx)
	e.wg.Add(1)
	go e.runAudio(ctx)
	defer func() {
		cancel()
		e.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-frames:
			if !ok {
				return nil
			}
			e.HandleFrameLine(line)
		}
	}
}

// HandleFrameLine parses one NDJSON detector line and folds it into the
// pipeline. Malformed lines are dropped without touching pipeline state.
func (e *Engine) HandleFrameLine(line string) {
	frame, err := face.ParseFrame([]byte(line), e.clock.Now())
	if err != nil {
		monitoring.Debugf("engine: dropping frame: %v", err)
		return
	}
	e.ProcessFrame(frame)
}

// ProcessFrame runs one video tick. Frames arriving within MinVideoTick of
// the previous accepted frame are dropped; frames without a full landmark
// set skip the tick and leave published state untouched.
func (e *Engine) ProcessFrame(frame *face.Frame) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	now := e.clock.Now()
	if !e.lastVideoTick.IsZero() && now.Sub(e.lastVideoTick) < e.opts.MinVideoTick {
		return
	}
	if frame == nil || !frame.HasFullLandmarks() {
		return
	}
	m, ok := e.extractor.Extract(frame, now)
	if !ok {
		return
	}
	e.lastVideoTick = now

	expr := e.expressions.Update(frame.Expressions, now)
	e.dominant = expr.Dominant
	if expr.Micro != "" {
		e.lastMicro = expr.Micro
	}

	if e.calibration.Active() {
		if res, done := e.calibration.Observe(m.EAR, now); done {
			e.applyCalibrationLocked(res)
		}
	}

	st := e.closure.Observe(m.EAR, now)

	out := e.scorer.Update(fusion.Inputs{
		EyesClosed:      st.Closed,
		ContinuousClose: st.ContinuousClose,
		Perclos:         st.Perclos,
		MAR:             m.MAR,
		PitchDeg:        m.Head.PitchDeg,
		PitchVelocity:   m.Head.PitchVelocityDegPerSec,
		Sound:           e.soundScore,
	})

	e.hasVideo = true
	e.ear = m.EAR
	e.mar = m.MAR
	e.pitch = m.Head.PitchDeg
	e.nod = out.Nod
	e.eyeState = st

	statusChanged := out.Status != e.lastStatus
	e.lastStatus = out.Status
	if statusChanged {
		monitoring.Logf("Status changed to %s (score %.3f)", out.Status, out.Score)
	}

	fired := e.alerter.Observe(alerts.Inputs{
		Score:           out.Score,
		SoundPeriodic:   e.soundPeriodic,
		MAR:             m.MAR,
		ContinuousClose: st.ContinuousClose,
		Perclos:         st.Perclos,
		EAR:             m.EAR,
	}, now)

	e.publishLocked(now, fired)

	// A sustained closure flushes every tick so the collector sees the
	// episode as it happens, not after the debounce.
	e.scheduleSaveLocked(now, statusChanged || st.ContinuousClose)
}

func (e *Engine) runAudio(ctx context.Context) {
	defer e.wg.Done()
	ticker := e.clock.NewTicker(e.opts.AudioInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			e.audioTick()
		}
	}
}

// audioTick runs one audio sampling tick. An inactive mic or a capture
// window that has not filled yet skips the tick.
func (e *Engine) audioTick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !e.micActive || e.window == nil {
		return
	}

	now := e.clock.Now()
	frame, ok := e.window.Snapshot(now)
	if !ok {
		return
	}

	reading := e.analyzer.Analyze(frame, now)
	e.envelope.Append(now, reading.RawBandRatio*100)
	score, per := audio.SoundScore(e.envelope, reading.RawBandRatio, e.opts.Periodicity)

	e.hasAudio = true
	e.soundScore = score
	e.soundPeriodic = per.Periodic
	e.volume = reading.Volume

	fired := e.alerter.Observe(alerts.Inputs{
		Score:           e.scorer.Score(),
		SoundPeriodic:   per.Periodic,
		MAR:             e.mar,
		ContinuousClose: e.eyeState.ContinuousClose,
		Perclos:         e.eyeState.Perclos,
		EAR:             e.alertEARLocked(),
	}, now)

	e.publishLocked(now, fired)
}

// alertEARLocked is the EAR the detector sees on ticks without a fresh video
// sample. Before the first frame there is no eye signal; a wide-open
// placeholder keeps the EAR floor condition from firing on nothing.
func (e *Engine) alertEARLocked() float64 {
	if !e.hasVideo {
		return 1
	}
	return e.ear
}

func (e *Engine) applyCalibrationLocked(res calibrate.Result) {
	if !res.Applied {
		monitoring.Logf("Calibration ended without samples, keeping thresholds")
		return
	}
	e.closure.SetThresholds(res.ClosedThreshold, res.OpenThreshold)
	monitoring.Logf("Calibration applied: closed %.3f open %.3f from %d samples",
		res.ClosedThreshold, res.OpenThreshold, res.SampleCount)
}

// StartCalibration begins a threshold collection session, discarding any
// session already running.
func (e *Engine) StartCalibration() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	now := e.clock.Now()
	e.calibration.Start(now)
	monitoring.Logf("Calibration started")
	e.publishLocked(now, nil)
}

// StopCalibration ends the session early and applies thresholds from
// whatever was collected. Stopping with no session running is a no-op.
func (e *Engine) StopCalibration() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	now := e.clock.Now()
	if res, ok := e.calibration.Stop(); ok {
		e.applyCalibrationLocked(res)
	}
	e.publishLocked(now, nil)
}

// SetMode switches the alert thresholds between normal and demo. Scoring is
// unaffected.
func (e *Engine) SetMode(mode string) error {
	if !units.IsValidMode(mode) {
		return fmt.Errorf("unknown mode %q, want one of: %s", mode, units.GetValidModesString())
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.alerter.Mode() == mode {
		return nil
	}
	e.alerter.SetMode(mode)
	monitoring.Logf("Alert mode set to %s", mode)
	e.publishLocked(e.clock.Now(), nil)
	return nil
}

// Mode returns the active alert mode.
func (e *Engine) Mode() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alerter.Mode()
}

// StartMic begins audio capture. A device failure is returned to the caller
// and leaves the sound modality disabled; the pipeline keeps running on
// video alone.
func (e *Engine) StartMic() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	if e.mic == nil {
		return ErrNoMic
	}
	if e.micActive {
		return nil
	}
	if err := e.mic.Start(); err != nil {
		monitoring.Logf("Mic start failed: %v", err)
		return fmt.Errorf("starting capture: %w", err)
	}
	if e.window != nil {
		e.window.Reset()
	}
	e.micActive = true
	monitoring.Logf("Mic capture started")
	e.publishLocked(e.clock.Now(), nil)
	return nil
}

// StopMic ends audio capture and zeroes the sound contribution. Stopping an
// inactive mic is a no-op.
func (e *Engine) StopMic() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !e.micActive {
		return
	}
	e.mic.Stop()
	e.micActive = false
	e.resetSoundLocked()
	monitoring.Logf("Mic capture stopped")
	e.publishLocked(e.clock.Now(), nil)
}

func (e *Engine) resetSoundLocked() {
	e.envelope.Reset()
	e.hasAudio = false
	e.soundScore = 0
	e.soundPeriodic = false
	e.volume = 0
}

// MicActive reports whether audio capture is running.
func (e *Engine) MicActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.micActive
}

// Snapshot returns the current observable state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(e.clock.Now())
}

// Subscribe registers an event consumer and returns its id and channel. The
// channel is closed by Unsubscribe or Close.
func (e *Engine) Subscribe() (string, <-chan Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := uuid.NewString()
	ch := make(chan Event, subscriberBuffer)
	if e.subscribers == nil {
		e.subscribers = make(map[string]chan Event)
	}
	e.subscribers[id] = ch
	// A new subscriber starts from the current state rather than waiting
	// for the next change.
	if e.hasPublished {
		snap := e.published
		ch <- Event{Type: EventSnapshot, Snapshot: &snap}
	}
	return id, ch
}

// Unsubscribe removes a consumer and closes its channel. Unknown ids are
// ignored.
func (e *Engine) Unsubscribe(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.subscribers[id]
	if !ok {
		return
	}
	delete(e.subscribers, id)
	close(ch)
}

// Close tears down the engine: capture stops, subscriber channels close and
// any pending telemetry flushes once. Safe to call more than once; ticks
// arriving after Close are ignored.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	mic, active := e.mic, e.micActive
	e.micActive = false
	subs := e.subscribers
	e.subscribers = nil
	e.mu.Unlock()

	if active && mic != nil {
		mic.Stop()
	}
	for _, ch := range subs {
		close(ch)
	}
	if e.saver != nil {
		e.saver.Close()
	}
}

func (e *Engine) snapshotLocked(now time.Time) Snapshot {
	return Snapshot{
		Status:              string(e.scorer.Status()),
		DrowsyScore:         e.scorer.Score(),
		DrowsyHistory:       e.scorer.History(),
		CalibrationProgress: e.calibration.Progress(),
		BlinkCount:          e.eyeState.BlinkCount,
		BlinkDetected:       e.closure.BlinkVisible(now),
		DominantEmotion:     e.dominant,
		SoundWarning:        e.soundPeriodic,
		ContinuousClose:     e.eyeState.ContinuousClose,
		Perclos:             e.eyeState.Perclos,
		EAR:                 e.ear,
		MAR:                 e.mar,
		MicActive:           e.micActive,
		Mode:                e.alerter.Mode(),
		DriverID:            e.opts.DriverID,
	}
}

// publishLocked fans out fired alerts, then a snapshot when the observable
// state moved past the publish gate. Sends never block.
func (e *Engine) publishLocked(now time.Time, fired []alerts.Alert) {
	for _, a := range fired {
		ev := AlertEvent{Cause: string(a.Cause), Score: a.Score, At: a.At}
		for _, n := range e.notifiers {
			n.Notify(ev)
		}
		e.broadcastLocked(Event{Type: EventAlert, Alert: &ev})
	}

	snap := e.snapshotLocked(now)
	if e.hasPublished && !snap.changedFrom(e.published, PublishEpsilon) {
		return
	}
	e.published = snap
	e.hasPublished = true
	e.broadcastLocked(Event{Type: EventSnapshot, Snapshot: &snap})
}

func (e *Engine) broadcastLocked(ev Event) {
	for id, ch := range e.subscribers {
		select {
		case ch <- ev:
		default:
			monitoring.Debugf("engine: subscriber %s lagging, dropped %s event", id, ev.Type)
		}
	}
}

// scheduleSaveLocked assembles a telemetry record from the latest signals
// and hands it to the persistence scheduler. Signals never observed stay
// null so the collector can tell unmeasured from zero.
func (e *Engine) scheduleSaveLocked(now time.Time, immediate bool) {
	if e.saver == nil {
		return
	}
	rec := sink.NewRecord(e.opts.DriverID, now)
	if e.hasVideo {
		rec.Drowsiness = sink.Float64(e.scorer.Score())
		rec.EyeAspectRatio = sink.Float64(e.ear)
		rec.MouthAspectRatio = sink.Float64(e.mar)
		rec.HeadPose = sink.String(face.PoseLabel(e.pitch, e.nod))
		rec.BlinkDetected = sink.Bool(e.closure.BlinkVisible(now))
		if e.dominant != "" {
			rec.Emotion = sink.String(e.dominant)
		}
		if e.lastMicro != "" {
			rec.MicroExpression = sink.String(e.lastMicro)
		}
	}
	if e.hasAudio {
		rec.SpeechVolume = sink.Float64(e.volume)
	}
	e.saver.Schedule(rec, immediate)
}
