package audio

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// drainPoll is how often the engine checks the device buffer after the
// stream has been fully consumed.
const drainPoll = 5 * time.Millisecond

var (
	// ErrDeviceUnavailable is returned when no output device could be
	// opened at startup.
	ErrDeviceUnavailable = errors.New("audio device unavailable")

	// ErrBusy is returned when Play is called while a stream is active.
	// The worker is the only caller, so hitting this is a bug.
	ErrBusy = errors.New("playback already in progress")

	// ErrInvalidSampleRate is returned for non-positive sample rates.
	ErrInvalidSampleRate = errors.New("invalid sample rate")
)

// Engine renders PCM buffers through a Device, one at a time.
type Engine struct {
	dev    Device
	paused atomic.Bool

	mu      sync.Mutex
	current *stream
	project string
	playing bool
}

// NewEngine creates an engine on dev. A nil dev yields an engine whose
// Play always fails; the worker logs the failure and keeps draining,
// so the service stays useful for queue bookkeeping even without a
// sound card.
func NewEngine(dev Device) *Engine {
	return &Engine{dev: dev}
}

// Play renders pcm (16-bit signed LE mono at sampleRate) and blocks
// until the device has consumed it or Stop is called. The paused flag
// stretches playback: paused time feeds silence to the device without
// consuming pcm.
func (e *Engine) Play(pcm []byte, sampleRate int, project string) error {
	if e.dev == nil {
		return ErrDeviceUnavailable
	}
	if sampleRate <= 0 {
		return ErrInvalidSampleRate
	}
	if len(pcm) == 0 {
		// Zero-duration item: nothing to render, playback succeeds.
		return nil
	}
	if sampleRate != e.dev.SampleRate() {
		log.Debug("resampling for device", "from_hz", sampleRate, "to_hz", e.dev.SampleRate(), "bytes", len(pcm))
		pcm = Resample(pcm, sampleRate, e.dev.SampleRate())
	}

	s := newStream(pcm, &e.paused)

	e.mu.Lock()
	if e.playing {
		e.mu.Unlock()
		return ErrBusy
	}
	e.playing = true
	e.current = s
	e.project = project
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.playing = false
		e.current = nil
		e.project = ""
		e.mu.Unlock()
	}()

	p := e.dev.NewPlayer(s)
	p.Play()

	// Wait for the stream to be fully consumed (or stopped), then for
	// the device to drain what it buffered.
	<-s.done
	for p.IsPlaying() && p.BufferedSize() > 0 {
		time.Sleep(drainPoll)
	}
	return p.Close()
}

// Pause sets the paused flag. Idempotent, and valid while idle: audio
// arriving later starts paused.
func (e *Engine) Pause() {
	e.paused.Store(true)
}

// Resume clears the paused flag. Idempotent, and valid while idle.
func (e *Engine) Resume() {
	e.paused.Store(false)
}

// Stop aborts the current buffer, if any, clearing the paused flag so
// the abort takes effect immediately. Returns whether anything was
// playing; stopping while idle leaves the paused flag alone.
func (e *Engine) Stop() bool {
	e.mu.Lock()
	s := e.current
	e.mu.Unlock()

	if s == nil {
		return false
	}
	e.paused.Store(false)
	s.stop()
	return true
}

// Playing reports whether a buffer is being rendered.
func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// Paused reports the paused flag.
func (e *Engine) Paused() bool {
	return e.paused.Load()
}

// CurrentProject returns the project of the buffer being rendered, or
// "" when idle.
func (e *Engine) CurrentProject() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.project
}

// Position returns how many bytes of the current buffer the device has
// consumed, or 0 when idle. Used by tests to assert the cursor holds
// still across a pause.
func (e *Engine) Position() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return 0
	}
	return e.current.position()
}
