// Package hotkey watches one modifier key and reports press/release
// edges. Holding the key means the user is dictating into another
// application, so the service pauses speech for the duration.
//
// The Linux implementation reads evdev key events from /dev/input.
// Platforms without an implementation log once and stay idle; the
// service then simply runs without pause-on-dictation.
package hotkey

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// Known modifier identifiers.
const (
	KeyFn      = "fn"
	KeyCtrl    = "ctrl"
	KeyOption  = "option"
	KeyCommand = "command"
	KeyShift   = "shift"
)

var keyNames = map[string]string{
	KeyFn:      "Function (fn)",
	KeyCtrl:    "Control",
	KeyOption:  "Option/Alt",
	KeyCommand: "Command",
	KeyShift:   "Shift",
}

// Normalize validates a key identifier, falling back to fn with a
// warning for unknown values.
func Normalize(key string) string {
	if _, ok := keyNames[key]; !ok {
		log.Warn("unknown hotkey, defaulting to fn", "hotkey", key)
		return KeyFn
	}
	return key
}

// DefaultLockFile is the dictation lock file path. The file is an
// external contract: a legacy in-process player pauses itself while
// the file exists. Written on press, removed on release.
func DefaultLockFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".voicemode", "dictating.lock")
}

// Config configures a Monitor. Callbacks run synchronously on the
// monitor's reader goroutine and must be fast and non-blocking.
type Config struct {
	Key       string
	OnPress   func()
	OnRelease func()

	// LockFile enables the legacy dictation lock file when non-empty.
	LockFile string
}

// Status is a read-only view of the monitor.
type Status struct {
	Hotkey  string `json:"hotkey"`
	Pressed bool   `json:"hotkey_pressed"`
	Running bool   `json:"running"`
}

// Monitor watches the configured modifier on a background goroutine.
type Monitor struct {
	key       string
	onPress   func()
	onRelease func()
	lockFile  string

	pressed atomic.Bool
	running atomic.Bool

	mu       sync.Mutex
	held     map[uint16]bool
	devices  []*os.File
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor creates a monitor for cfg.Key (normalized).
func NewMonitor(cfg Config) *Monitor {
	key := Normalize(cfg.Key)
	log.Info("hotkey monitor configured", "hotkey", keyNames[key])
	return &Monitor{
		key:       key,
		onPress:   cfg.OnPress,
		onRelease: cfg.OnRelease,
		lockFile:  cfg.LockFile,
		held:      make(map[uint16]bool),
		stopCh:    make(chan struct{}),
	}
}

// Key returns the normalized key identifier.
func (m *Monitor) Key() string { return m.key }

// Pressed reports whether the key is currently held.
func (m *Monitor) Pressed() bool { return m.pressed.Load() }

// Status returns the monitor's state view.
func (m *Monitor) Status() Status {
	return Status{
		Hotkey:  m.key,
		Pressed: m.pressed.Load(),
		Running: m.running.Load(),
	}
}

// Start begins watching. Failure to attach (missing permissions,
// unsupported platform, unsupported key) is logged and leaves the
// monitor idle; no callbacks will ever fire. Start itself only errors
// on programmer misuse.
func (m *Monitor) Start() error {
	if m.running.Load() {
		log.Warn("hotkey monitor already running")
		return nil
	}
	m.start()
	return nil
}

// Stop terminates watching. Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.shutdown()
	m.wg.Wait()
	m.running.Store(false)
	log.Info("hotkey monitor stopped")
}

// setPressed latches the aggregate key state and dispatches edges.
// Spurious repeats collapse into the latch; each edge fires at most
// one callback.
func (m *Monitor) setPressed(now bool) {
	if m.pressed.Load() == now {
		return
	}
	m.pressed.Store(now)

	if now {
		log.Debug("hotkey pressed", "hotkey", m.key)
		m.writeLockFile()
		if m.onPress != nil {
			m.onPress()
		}
	} else {
		log.Debug("hotkey released", "hotkey", m.key)
		m.removeLockFile()
		if m.onRelease != nil {
			m.onRelease()
		}
	}
}

func (m *Monitor) writeLockFile() {
	if m.lockFile == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(m.lockFile), 0o755); err != nil {
		log.Error("failed to create lock file directory", "err", err)
		return
	}
	if err := os.WriteFile(m.lockFile, []byte("hotkey:"+m.key), 0o644); err != nil {
		log.Error("failed to create lock file", "path", m.lockFile, "err", err)
	}
}

func (m *Monitor) removeLockFile() {
	if m.lockFile == "" {
		return
	}
	if err := os.Remove(m.lockFile); err != nil && !os.IsNotExist(err) {
		log.Error("failed to remove lock file", "path", m.lockFile, "err", err)
	}
}
