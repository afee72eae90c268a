// Package main provides the entry point for the audio-manager daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/voicemode/audio-manager/internal/api"
	"github.com/voicemode/audio-manager/internal/audio"
	"github.com/voicemode/audio-manager/internal/hotkey"
	"github.com/voicemode/audio-manager/internal/service"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	port       int
	hotkeyName string
	debugMode  bool

	rootCmd = &cobra.Command{
		Use:   "audio-manager",
		Short: "Centralized audio playback manager for voice-mode windows",
		Long: "audio-manager serializes spoken audio across assistant windows:\n" +
			"it queues TTS playback in reservation order, pauses while you\n" +
			"dictate, and rate-limits notification chimes.",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         execute,
	}
)

// envConfig carries the environment overrides.
type envConfig struct {
	Port   int    `env:"VOICEMODE_AUDIO_MANAGER_PORT"`
	Hotkey string `env:"VOICEMODE_PAUSE_HOTKEY"`
}

// defaultConfigPath is where the optional YAML config lives.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".voicemode", "audio_manager.yaml")
}

// resolveConfig layers file < environment < flags.
func resolveConfig(cmd *cobra.Command) (service.Config, error) {
	path := configFile
	if path == "" {
		path = defaultConfigPath()
	}
	cfg, err := service.LoadConfig(path)
	if err != nil {
		return cfg, err
	}

	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	if ec.Port != 0 {
		cfg.Port = ec.Port
	}
	if ec.Hotkey != "" {
		cfg.Hotkey = ec.Hotkey
	}

	if cmd.Flags().Changed("port") {
		cfg.Port = port
	}
	if cmd.Flags().Changed("hotkey") {
		cfg.Hotkey = hotkeyName
	}
	if cfg.DictationLockFile == "" {
		cfg.DictationLockFile = hotkey.DefaultLockFile()
	}
	return cfg, nil
}

func execute(cmd *cobra.Command, _ []string) error {
	log.SetOutput(os.Stderr)
	log.SetReportTimestamp(true)
	if debugMode {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	log.Info("starting audio manager", "version", version(), "port", cfg.Port, "hotkey", cfg.Hotkey)

	dev, err := audio.NewOtoDevice(cfg.DeviceSampleRate)
	if err != nil {
		// Keep running: the queue and HTTP surface still work, every
		// play attempt fails loudly in the worker's log.
		log.Error("audio device unavailable", "err", err)
		dev = nil
	}

	svc := service.New(cfg, dev)

	pidPath := service.DefaultPIDFile()
	if err := service.WritePIDFile(pidPath); err != nil {
		log.Warn("could not write pid file", "err", err)
	}
	defer service.RemovePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc.Start(ctx)

	srv := api.New(svc, fmt.Sprintf("127.0.0.1:%d", cfg.Port), version())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		svc.Shutdown()
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info("signal received, shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown", "err", err)
		}
		svc.Shutdown()
	}
	return nil
}

func version() string {
	if Version == "" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "(devel)" {
			Version = info.Main.Version
		} else {
			Version = "unknown (built from source)"
		}
	}
	if len(CommitSHA) >= 7 {
		return Version + " (" + CommitSHA[:7] + ")"
	}
	return Version
}

func init() {
	rootCmd.Flags().IntVarP(&port, "port", "p", 8881, "HTTP port to listen on")
	rootCmd.Flags().StringVarP(&hotkeyName, "hotkey", "k", "fn",
		"modifier that pauses audio while held (fn, ctrl, option, command, shift)")
	rootCmd.Flags().BoolVarP(&debugMode, "debug", "d", false, "enable debug logging")
	rootCmd.Flags().StringVar(&configFile, "config", "", "path to YAML config file")
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
