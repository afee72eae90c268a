package audio

import (
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// MockDevice simulates an output device for tests. It consumes PCM at
// the configured multiple of real time without touching hardware.
type MockDevice struct {
	rate      int
	timeScale float64

	mu      sync.Mutex
	players []*MockPlayer
}

// NewMockDevice creates a mock running at rate Hz. timeScale scales
// consumption speed: 1 is real time, 100 consumes audio 100x faster.
func NewMockDevice(rate int, timeScale float64) *MockDevice {
	if timeScale <= 0 {
		timeScale = 1
	}
	return &MockDevice{rate: rate, timeScale: timeScale}
}

func (d *MockDevice) NewPlayer(r io.Reader) Player {
	p := &MockPlayer{dev: d, r: r}
	d.mu.Lock()
	d.players = append(d.players, p)
	d.mu.Unlock()
	return p
}

func (d *MockDevice) SampleRate() int { return d.rate }

func (d *MockDevice) Close() error { return nil }

// PlayersCreated returns how many playback sessions were opened.
func (d *MockDevice) PlayersCreated() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.players)
}

// LastPlayer returns the most recently created player, or nil.
func (d *MockDevice) LastPlayer() *MockPlayer {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.players) == 0 {
		return nil
	}
	return d.players[len(d.players)-1]
}

// MockPlayer pulls from its reader on a goroutine, pacing itself by
// the device's time scale, the way a real device callback would.
type MockPlayer struct {
	dev *MockDevice
	r   io.Reader

	playing  atomic.Bool
	closed   atomic.Bool
	consumed atomic.Int64
}

func (p *MockPlayer) Play() {
	if !p.playing.CompareAndSwap(false, true) {
		return
	}
	go p.run()
}

func (p *MockPlayer) run() {
	buf := make([]byte, chunkFrames*2)
	for !p.closed.Load() {
		n, err := p.r.Read(buf)
		if n > 0 {
			p.consumed.Add(int64(n))
			frames := n / 2
			d := time.Duration(frames) * time.Second / time.Duration(p.dev.rate)
			time.Sleep(time.Duration(float64(d) / p.dev.timeScale))
		}
		if err != nil {
			break
		}
	}
	p.playing.Store(false)
}

func (p *MockPlayer) IsPlaying() bool { return p.playing.Load() }

// BufferedSize is always zero: the mock "renders" bytes the
// moment it pulls them.
func (p *MockPlayer) BufferedSize() int { return 0 }

func (p *MockPlayer) Close() error {
	p.closed.Store(true)
	p.playing.Store(false)
	return nil
}

// Consumed returns the total bytes pulled from the reader, silence
// included.
func (p *MockPlayer) Consumed() int64 { return p.consumed.Load() }
