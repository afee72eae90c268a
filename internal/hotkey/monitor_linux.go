//go:build linux

package hotkey

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

const (
	evKey  = 0x01
	keyMax = 0x2ff

	// sizeof(struct input_event) on 64-bit: two 8-byte time fields,
	// then type, code, value.
	eventSize = 24
)

// Evdev key codes for each modifier, left and right variants.
var keyCodes = map[string][]uint16{
	KeyFn:      {464},      // KEY_FN; only some keyboards deliver it
	KeyCtrl:    {29, 97},   // KEY_LEFTCTRL, KEY_RIGHTCTRL
	KeyShift:   {42, 54},   // KEY_LEFTSHIFT, KEY_RIGHTSHIFT
	KeyOption:  {56, 100},  // KEY_LEFTALT, KEY_RIGHTALT
	KeyCommand: {125, 126}, // KEY_LEFTMETA, KEY_RIGHTMETA
}

// start attaches to every /dev/input device that exposes the
// configured key and spawns a reader per device.
func (m *Monitor) start() {
	codes := keyCodes[m.key]

	paths, err := filepath.Glob("/dev/input/event*")
	if err != nil || len(paths) == 0 {
		log.Error("no input devices found; pause-on-dictation disabled")
		return
	}

	var files []*os.File
	permDenied := false
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			if os.IsPermission(err) {
				permDenied = true
			}
			continue
		}
		if !supportsCodes(f, codes) {
			_ = f.Close()
			continue
		}
		files = append(files, f)
	}

	if len(files) == 0 {
		if permDenied {
			log.Error("cannot read /dev/input: permission denied; " +
				"add the service user to the 'input' group to enable pause-on-dictation")
		} else {
			log.Error("no input device exposes the configured hotkey; pause-on-dictation disabled",
				"hotkey", m.key)
		}
		return
	}

	m.mu.Lock()
	m.devices = files
	m.mu.Unlock()
	m.running.Store(true)

	for _, f := range files {
		m.wg.Add(1)
		go m.readLoop(f, codes)
	}
	log.Info("hotkey monitor started", "hotkey", m.key, "devices", len(files))
}

// shutdown closes the device files, unblocking the readers.
func (m *Monitor) shutdown() {
	m.mu.Lock()
	files := m.devices
	m.devices = nil
	m.mu.Unlock()
	for _, f := range files {
		_ = f.Close()
	}
}

// readLoop parses evdev events from one device until it is closed.
func (m *Monitor) readLoop(f *os.File, codes []uint16) {
	defer m.wg.Done()

	buf := make([]byte, eventSize*64)
	for {
		select {
		case <-m.stopCh:
			return
		default:
		}
		n, err := f.Read(buf)
		if err != nil {
			return
		}
		for off := 0; off+eventSize <= n; off += eventSize {
			typ := binary.LittleEndian.Uint16(buf[off+16:])
			code := binary.LittleEndian.Uint16(buf[off+18:])
			value := int32(binary.LittleEndian.Uint32(buf[off+20:]))
			m.handleKey(typ, code, value, codes)
		}
	}
}

// handleKey folds one key event into the aggregate held state. Left
// and right variants of the modifier count as the same key; autorepeat
// events (value 2) are ignored.
func (m *Monitor) handleKey(typ, code uint16, value int32, codes []uint16) {
	if typ != evKey || value == 2 {
		return
	}
	match := false
	for _, c := range codes {
		if c == code {
			match = true
			break
		}
	}
	if !match {
		return
	}

	m.mu.Lock()
	if value != 0 {
		m.held[code] = true
	} else {
		delete(m.held, code)
	}
	any := len(m.held) > 0
	m.mu.Unlock()

	m.setPressed(any)
}

// supportsCodes asks the device (EVIOCGBIT for EV_KEY) whether it can
// deliver any of the given key codes.
func supportsCodes(f *os.File, codes []uint16) bool {
	rc, err := f.SyscallConn()
	if err != nil {
		return false
	}

	var bits [keyMax/8 + 1]byte
	ok := false
	ctlErr := rc.Control(func(fd uintptr) {
		// _IOC(_IOC_READ, 'E', 0x20 + EV_KEY, sizeof(bits))
		ioc := uintptr(2)<<30 | uintptr(len(bits))<<16 | uintptr('E')<<8 | uintptr(0x20+evKey)
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, ioc, uintptr(unsafe.Pointer(&bits[0])))
		if errno != 0 {
			return
		}
		for _, c := range codes {
			if bits[c/8]&(1<<(c%8)) != 0 {
				ok = true
				return
			}
		}
	})
	return ctlErr == nil && ok
}
