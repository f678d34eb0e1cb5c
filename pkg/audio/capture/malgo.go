// Package capture provides the malgo-backed microphone implementation of the
// audio.Capture contract. There is no playback side: this agent only
// listens, it never talks back.
package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/ghanavoice/ledger/internal/logging"
	"github.com/ghanavoice/ledger/pkg/audio"
)

// defaultPoolSize is the fixed frame-buffer pool size used when the caller
// doesn't override it with WithPoolSize.
const defaultPoolSize = 64

// Microphone is a malgo capture-only device implementing audio.Capture.
type Microphone struct {
	sampleRate int
	frameBytes int
	poolSize   int
	log        logging.Logger

	mctx   *malgo.AllocatedContext
	device *malgo.Device

	mu     sync.Mutex
	paused bool
	seq    uint64
	sink   func(audio.Frame)
	pool   *audio.Pool
}

// Option configures a Microphone at construction time.
type Option func(*Microphone)

// WithLogger attaches a logger, used for device lifecycle events.
func WithLogger(log logging.Logger) Option {
	return func(m *Microphone) { m.log = log }
}

// WithPoolSize overrides the number of pooled frame buffers (default 64).
// Once every buffer is checked out, the capture callback blocks on the next
// Pool.Get rather than dropping audio.
func WithPoolSize(size int) Option {
	return func(m *Microphone) { m.poolSize = size }
}

// NewMicrophone builds a Microphone that captures mono 16-bit PCM at
// sampleRate, delivering frames of frameMillis duration.
func NewMicrophone(sampleRate, frameMillis int, opts ...Option) *Microphone {
	frameBytes := sampleRate * frameMillis / 1000 * 2 // mono, 16-bit
	m := &Microphone{
		sampleRate: sampleRate,
		frameBytes: frameBytes,
		poolSize:   defaultPoolSize,
		log:        logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.pool = audio.NewPool(frameBytes, m.poolSize)
	return m
}

// SampleRate implements audio.Capture.
func (m *Microphone) SampleRate() int { return m.sampleRate }

// Start implements audio.Capture.
func (m *Microphone) Start(ctx context.Context, sink func(audio.Frame)) error {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("capture: init context: %w", err)
	}
	m.mctx = mctx

	m.mu.Lock()
	m.sink = sink
	m.mu.Unlock()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(m.sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	var carry []byte
	onSamples := func(_ []byte, pInput []byte, _ uint32) {
		m.mu.Lock()
		paused := m.paused
		s := m.sink
		m.mu.Unlock()
		if paused || s == nil || pInput == nil {
			return
		}

		carry = append(carry, pInput...)
		for len(carry) >= m.frameBytes {
			buf := m.pool.Get()
			copy(buf, carry[:m.frameBytes])
			carry = carry[m.frameBytes:]

			f := audio.Frame{
				Seq:        atomic.AddUint64(&m.seq, 1),
				SampleRate: m.sampleRate,
				PCM:        buf,
			}
			s(f)
		}
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
	})
	if err != nil {
		mctx.Uninit()
		return fmt.Errorf("capture: init device: %w", err)
	}
	m.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		mctx.Uninit()
		return fmt.Errorf("capture: start device: %w", err)
	}

	m.log.Info("capture started", "sample_rate", m.sampleRate, "frame_bytes", m.frameBytes)

	go func() {
		<-ctx.Done()
		_ = m.Stop()
	}()

	return nil
}

// Pause implements audio.Capture.
func (m *Microphone) Pause() error {
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()
	m.log.Info("capture paused")
	return nil
}

// Resume implements audio.Capture.
func (m *Microphone) Resume() error {
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
	m.log.Info("capture resumed")
	return nil
}

// Stop implements audio.Capture.
func (m *Microphone) Stop() error {
	if m.device != nil {
		m.device.Uninit()
	}
	if m.mctx != nil {
		m.mctx.Uninit()
	}
	m.log.Info("capture stopped")
	return nil
}
