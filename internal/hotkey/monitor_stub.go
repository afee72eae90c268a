//go:build !linux

package hotkey

import "github.com/charmbracelet/log"

// start logs once and leaves the monitor idle. The service runs
// without pause-on-dictation on platforms without a key watcher.
func (m *Monitor) start() {
	log.Error("hotkey monitoring not supported on this platform; pause-on-dictation disabled",
		"hotkey", m.key)
}

func (m *Monitor) shutdown() {}
