package capture

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// MicSource captures from the default microphone into a Capture. Start
// acquires the audio context and device and begins streaming; Stop releases
// everything so start/stop cycles are cheap to repeat. Device and permission
// failures surface as Start errors; the caller downgrades the audio modality
// rather than aborting.
type MicSource struct {
	cap *Capture

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	dev    *malgo.Device
	active bool
}

// NewMicSource creates a microphone source feeding c.
func NewMicSource(c *Capture) *MicSource {
	return &MicSource{cap: c}
}

// Start opens the default capture device and begins streaming. Calling Start
// on an active source is a no-op.
func (m *MicSource) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("initializing audio context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(m.cap.SampleRate())

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, frameCount uint32) {
			m.cap.WritePCM16(data)
		},
	}

	dev, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("opening capture device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("starting capture device: %w", err)
	}

	m.ctx = ctx
	m.dev = dev
	m.active = true
	return nil
}

// Stop ends streaming and releases the device and context.
func (m *MicSource) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return
	}
	m.dev.Stop()
	m.dev.Uninit()
	m.ctx.Uninit()
	m.ctx.Free()
	m.dev = nil
	m.ctx = nil
	m.active = false
}

// Active reports whether the microphone is currently streaming.
func (m *MicSource) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}
