// Package audio renders PCM buffers through the output device. The
// engine blocks for the duration of each buffer and honors a paused
// flag on the read hot path: while paused the device receives silence
// and the read cursor does not move, so resume continues from the
// exact sample where playback stopped.
package audio

import (
	"fmt"
	"io"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Device abstracts the audio output backend so the engine can run
// against real hardware (oto) or a mock in tests.
type Device interface {
	// NewPlayer creates a player that pulls PCM from r. The player
	// starts paused; call Play to begin pulling.
	NewPlayer(r io.Reader) Player

	// SampleRate is the fixed output rate of the device.
	SampleRate() int

	// Close releases the device.
	Close() error
}

// Player is one playback session on a Device. It mirrors the subset of
// the oto player surface the engine needs.
type Player interface {
	Play()
	IsPlaying() bool
	BufferedSize() int
	Close() error
}

// otoDevice is the production Device backed by an oto context.
// Only one oto context may exist per process; create one device at
// startup and share it.
type otoDevice struct {
	ctx  *oto.Context
	rate int
}

// NewOtoDevice opens the platform audio output for 16-bit signed LE
// mono at the given rate and waits for the context to become ready.
func NewOtoDevice(sampleRate int) (Device, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   chunkFrames * time.Second / time.Duration(sampleRate),
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("open audio output: %w", err)
	}
	<-ready
	return &otoDevice{ctx: ctx, rate: sampleRate}, nil
}

func (d *otoDevice) NewPlayer(r io.Reader) Player { return d.ctx.NewPlayer(r) }

func (d *otoDevice) SampleRate() int { return d.rate }

func (d *otoDevice) Close() error {
	// oto contexts have no Close in v3; dropping the reference is all
	// there is to do.
	d.ctx = nil
	return nil
}
