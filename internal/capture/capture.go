// Package capture owns the microphone lifecycle for a single recording: it
// acquires a device, buffers PCM chunks on a periodic flush, and finalizes
// them into one immutable core.AudioPayload.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"voicespese/internal/core"
	"voicespese/internal/log"
)

type State int

const (
	StateIdle State = iota
	StateRequestingDevice
	StateRecording
	StateFinalizing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestingDevice:
		return "requesting_device"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Constraints describe the input stream a provider should open. Backends that
// cannot apply the processing flags ignore them.
type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
	SampleRate       uint32
	Channels         uint32
}

func DefaultConstraints() Constraints {
	return Constraints{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
		SampleRate:       16000,
		Channels:         1,
	}
}

// DataFunc receives raw S16LE PCM. The buffer may be reused after return.
type DataFunc func(pcm []byte)

type Device interface {
	Start(onData DataFunc) error
	// Stop halts capture; no DataFunc call may begin after it returns.
	Stop() error
	Close()
}

type Provider interface {
	Open(ctx context.Context, c Constraints) (Device, error)
}

// Platform errors providers wrap so the session can classify them.
var (
	ErrNoDevice           = errors.New("no audio input device")
	ErrAccessDenied       = errors.New("microphone access denied")
	ErrInsecureContext    = errors.New("capture requires a secure context")
	ErrFormatNotSupported = errors.New("audio format not supported")

	// ErrNotRecording is returned by Stop when there is nothing to finalize.
	ErrNotRecording = errors.New("not recording")
)

const DefaultFlushInterval = time.Second

type Option func(*Session)

func WithFlushInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.flushInterval = d
		}
	}
}

// WithMinBytes sets the smallest amount of captured PCM accepted by Stop.
func WithMinBytes(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.minBytes = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// Session is one recording lifecycle. The device callback only fills a
// pending buffer; the flush goroutine is the single writer of chunks.
type Session struct {
	provider      Provider
	flushInterval time.Duration
	minBytes      int
	logger        *slog.Logger

	mu          sync.Mutex
	state       State
	device      Device
	constraints Constraints
	chunks      [][]byte
	stopFlush   chan struct{}
	flushDone   chan struct{}

	pendingMu sync.Mutex
	pending   []byte
}

func NewSession(p Provider, opts ...Option) *Session {
	s := &Session{
		provider:      p,
		flushInterval: DefaultFlushInterval,
		minBytes:      core.MinPayloadBytes,
		logger:        log.WithComponent(log.ComponentCapture),
		state:         StateIdle,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start acquires a device and begins buffering. Platform failures are mapped
// onto the capture kinds of the core error taxonomy.
func (s *Session) Start(ctx context.Context, c Constraints) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRecording || s.state == StateRequestingDevice || s.state == StateFinalizing {
		return core.Newf(core.KindUnexpected, "capture session busy (%s)", s.state)
	}
	if c.SampleRate == 0 {
		c.SampleRate = DefaultConstraints().SampleRate
	}
	if c.Channels == 0 {
		c.Channels = 1
	}

	s.state = StateRequestingDevice
	dev, err := s.provider.Open(ctx, c)
	if err != nil {
		s.state = StateFailed
		return classify(err)
	}

	s.pendingMu.Lock()
	s.pending = nil
	s.pendingMu.Unlock()
	s.chunks = nil

	if err := dev.Start(s.onData); err != nil {
		dev.Close()
		s.state = StateFailed
		return classify(err)
	}

	s.device = dev
	s.constraints = c
	s.stopFlush = make(chan struct{})
	s.flushDone = make(chan struct{})
	go s.flushLoop(s.stopFlush, s.flushDone)

	s.state = StateRecording
	s.logger.Info("Recording started",
		"sample_rate", c.SampleRate,
		"channels", c.Channels,
		"echo_cancellation", c.EchoCancellation,
		"noise_suppression", c.NoiseSuppression,
		"auto_gain_control", c.AutoGainControl)
	return nil
}

// Stop flushes what the device delivered, releases the device and returns
// the finalized WAV payload. The session is Idle afterwards whether or not a
// payload was produced. Called outside Recording it does nothing and returns
// ErrNotRecording.
func (s *Session) Stop() (core.AudioPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecording {
		return core.AudioPayload{}, ErrNotRecording
	}
	s.state = StateFinalizing

	pcm := s.teardown()

	if len(pcm) < s.minBytes {
		s.state = StateIdle
		s.logger.Info("Recording too short", "bytes", len(pcm), "min_bytes", s.minBytes)
		return core.AudioPayload{}, core.Newf(core.KindRecordingTooShort,
			"captured %d bytes (minimum %d)", len(pcm), s.minBytes)
	}

	wav, err := EncodeWAV(pcm, int(s.constraints.SampleRate), int(s.constraints.Channels))
	if err != nil {
		s.state = StateIdle
		return core.AudioPayload{}, core.Wrap(core.KindUnsupportedFormat, "encode wav", err)
	}
	payload, err := core.NewAudioPayload(wav, "audio/wav", s.minBytes)
	if err != nil {
		s.state = StateIdle
		return core.AudioPayload{}, err
	}

	s.state = StateIdle
	s.logger.Info("Recording finalized", "pcm_bytes", len(pcm), "payload_bytes", payload.SizeBytes())
	return payload, nil
}

// Release tears down any active device and discards buffered audio. It is
// safe to call in every state.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device != nil {
		s.teardown()
		s.logger.Info("Recording released")
	}
	s.chunks = nil
	s.state = StateIdle
}

// teardown stops the device, waits for the final flush and closes the
// device. Callers hold s.mu.
func (s *Session) teardown() []byte {
	dev := s.device
	s.device = nil
	if dev == nil {
		return nil
	}
	defer dev.Close()

	if err := dev.Stop(); err != nil {
		s.logger.Warn("Device stop failed", "error", err)
	}
	close(s.stopFlush)
	<-s.flushDone

	size := 0
	for _, c := range s.chunks {
		size += len(c)
	}
	pcm := make([]byte, 0, size)
	for _, c := range s.chunks {
		pcm = append(pcm, c...)
	}
	s.chunks = nil
	return pcm
}

func (s *Session) onData(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	s.pendingMu.Lock()
	s.pending = append(s.pending, pcm...)
	s.pendingMu.Unlock()
}

func (s *Session) flushLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(s.flushInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.flush()
		case <-stop:
			s.flush()
			return
		}
	}
}

func (s *Session) flush() {
	s.pendingMu.Lock()
	chunk := s.pending
	s.pending = nil
	s.pendingMu.Unlock()
	if len(chunk) > 0 {
		s.chunks = append(s.chunks, chunk)
	}
}

func classify(err error) error {
	var ce *core.Error
	if errors.As(err, &ce) {
		return err
	}
	switch {
	case errors.Is(err, ErrAccessDenied):
		return core.Wrap(core.KindPermissionDenied, "microphone permission denied", err)
	case errors.Is(err, ErrNoDevice):
		return core.Wrap(core.KindDeviceUnavailable, "no microphone available", err)
	case errors.Is(err, ErrInsecureContext):
		return core.Wrap(core.KindInsecureContext, "insecure context", err)
	case errors.Is(err, ErrFormatNotSupported):
		return core.Wrap(core.KindUnsupportedFormat, "unsupported capture format", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return core.Wrap(core.KindUnexpected, "device request cancelled", err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "denied"), strings.Contains(msg, "permission"), strings.Contains(msg, "not allowed"):
		return core.Wrap(core.KindPermissionDenied, "microphone permission denied", err)
	case strings.Contains(msg, "secure"):
		return core.Wrap(core.KindInsecureContext, "insecure context", err)
	case strings.Contains(msg, "format"), strings.Contains(msg, "sample rate"), strings.Contains(msg, "channel"):
		return core.Wrap(core.KindUnsupportedFormat, "unsupported capture format", err)
	default:
		return core.Wrap(core.KindDeviceUnavailable, "microphone unavailable", err)
	}
}
