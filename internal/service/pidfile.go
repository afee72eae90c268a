package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/log"
)

// DefaultPIDFile is where the daemon records its process id so
// service-management tooling can find it.
func DefaultPIDFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".voicemode", "audio_manager.pid")
}

// WritePIDFile records the current pid at path. Best-effort: failures
// are returned for logging but should not stop startup.
func WritePIDFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	log.Info("pid file written", "path", path)
	return nil
}

// RemovePIDFile deletes the pid file on clean exit.
func RemovePIDFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			log.Error("failed to remove pid file", "path", path, "err", err)
		}
		return
	}
	log.Info("pid file removed", "path", path)
}
