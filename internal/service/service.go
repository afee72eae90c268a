// Package service wires the audio manager together: the reservation
// queue, the playback engine, the completion registry, the chime
// limiter, and the hotkey monitor, all driven by a single playback
// worker. The HTTP layer talks only to this package.
package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/voicemode/audio-manager/internal/audio"
	"github.com/voicemode/audio-manager/internal/chime"
	"github.com/voicemode/audio-manager/internal/hotkey"
	"github.com/voicemode/audio-manager/internal/notify"
	"github.com/voicemode/audio-manager/internal/queue"
)

// workerTick is the dequeue wait used by the playback worker; it also
// bounds how stale an expired reservation can get before it is
// noticed.
const workerTick = 100 * time.Millisecond

// Service is the coordinator. All public methods are safe for
// concurrent use.
type Service struct {
	cfg      Config
	queue    *queue.AudioQueue
	engine   *audio.Engine
	registry *notify.Registry
	chimes   *chime.Limiter
	monitor  *hotkey.Monitor

	dictation atomic.Bool
	started   time.Time

	// hotkeyEdges decouples the monitor's reader goroutine from the
	// engine; edges are coalesced if the drain goroutine falls behind.
	hotkeyEdges chan bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New assembles a service on the given output device. A nil device is
// tolerated: playback fails and is logged, everything else works.
func New(cfg Config, dev audio.Device) *Service {
	s := &Service{
		cfg:         cfg,
		engine:      audio.NewEngine(dev),
		registry:    notify.NewRegistry(),
		chimes:      chime.NewLimiter(cfg.ChimeCooldown),
		started:     time.Now(),
		hotkeyEdges: make(chan bool, 8),
	}
	s.queue = queue.New(queue.Options{
		ReservationTimeout: cfg.ReservationTimeout,
		OnInsert:           func(it *queue.Item) { s.registry.Create(it.ID) },
		OnExpire:           s.finishExpired,
	})
	s.monitor = hotkey.NewMonitor(hotkey.Config{
		Key:       cfg.Hotkey,
		OnPress:   func() { s.postEdge(true) },
		OnRelease: func() { s.postEdge(false) },
		LockFile:  cfg.DictationLockFile,
	})
	return s
}

// Start launches the playback worker, the hotkey drain, and the
// monitor. Runs until ctx is cancelled or Shutdown is called.
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.worker(ctx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.drainHotkeyEdges(ctx)
	}()

	if err := s.monitor.Start(); err != nil {
		log.Error("hotkey monitor failed to start", "err", err)
	}
}

// Shutdown stops the worker and the monitor. An in-flight play is
// aborted so shutdown stays bounded.
func (s *Service) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
	s.engine.Stop()
	s.monitor.Stop()
	s.wg.Wait()
	s.registry.Close()
	log.Info("service shutdown complete")
}

// ReserveResult is the response to a slot reservation.
type ReserveResult struct {
	Reserved       bool   `json:"reserved"`
	ItemID         string `json:"item_id"`
	Position       int    `json:"position"`
	ShouldAnnounce bool   `json:"should_announce"`
}

// Reserve inserts a pending slot for project so FIFO order is frozen
// before synthesis starts. ShouldAnnounce is advisory: true when audio
// from another project is playing or scheduled ahead, so the caller
// may prepend a "from project X" preamble.
func (s *Service) Reserve(project string, priority queue.Priority) ReserveResult {
	it, pos := s.queue.Reserve(project, priority)

	announce := false
	if cur := s.engine.CurrentProject(); cur != "" && cur != project {
		announce = true
	}
	if !announce {
		for _, p := range s.queue.ProjectsAhead(it.ID) {
			if p != project {
				announce = true
				break
			}
		}
	}

	log.Info("slot reserved", "item_id", it.ID, "project", project, "position", pos, "should_announce", announce)
	return ReserveResult{Reserved: true, ItemID: it.ID, Position: pos, ShouldAnnounce: announce}
}

// Fill attaches audio to a previously reserved slot.
func (s *Service) Fill(id string, pcm []byte, sampleRate int) error {
	err := s.queue.Fill(id, pcm, sampleRate)
	if err != nil {
		log.Warn("failed to fill slot", "item_id", id, "err", err)
		return err
	}
	log.Info("slot filled", "item_id", id, "bytes", len(pcm))
	return nil
}

// EnqueueResult is the response to a direct enqueue.
type EnqueueResult struct {
	Queued          bool   `json:"queued"`
	ItemID          string `json:"item_id"`
	Position        int    `json:"position"`
	EstimatedWaitMS int    `json:"estimated_wait_ms"`
}

// Enqueue queues ready audio in one step (reserve + fill). Used for
// chimes and callers that already hold the PCM.
func (s *Service) Enqueue(pcm []byte, sampleRate int, project string, priority queue.Priority) EnqueueResult {
	it, pos, wait := s.queue.Enqueue(pcm, sampleRate, project, priority)
	log.Info("audio queued", "item_id", it.ID, "project", project, "position", pos)
	return EnqueueResult{Queued: true, ItemID: it.ID, Position: pos, EstimatedWaitMS: wait}
}

// WaitForItem blocks until the item has finished (played, expired, or
// cleared), the timeout elapses, or ctx is done. Unknown ids count as
// completed; their events have already been garbage-collected.
func (s *Service) WaitForItem(ctx context.Context, id string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = s.cfg.WaitTimeout
	}
	completed := s.registry.Wait(ctx, id, timeout)
	if !completed {
		if ctx.Err() != nil {
			log.Debug("wait abandoned by caller", "item_id", id)
		} else {
			log.Warn("timeout waiting for item", "item_id", id)
		}
	}
	return completed
}

// Pause sets the paused flag; current and future playback emit
// silence until Resume.
func (s *Service) Pause() { s.engine.Pause() }

// Resume clears the paused flag.
func (s *Service) Resume() { s.engine.Resume() }

// StopPlayback aborts the currently playing item, if any.
func (s *Service) StopPlayback() bool { return s.engine.Stop() }

// Clear drops queued items (all, or only project's when non-empty) and
// fires their completion events so waiters unblock.
func (s *Service) Clear(project string) int {
	removed := s.queue.Clear(project)
	for _, it := range removed {
		s.registry.Signal(it.ID)
		s.registry.Cleanup(it.ID, s.cfg.CleanupDelay)
	}
	if len(removed) > 0 {
		log.Info("queue cleared", "project", project, "removed", len(removed))
	}
	return len(removed)
}

// ChimeAllowed checks and records the shared chime cooldown.
func (s *Service) ChimeAllowed() (bool, float64) {
	return s.chimes.CheckAndRecord()
}

// Uptime reports time since the service was constructed.
func (s *Service) Uptime() time.Duration { return time.Since(s.started) }

// Status is the full state view served by GET /status.
type Status struct {
	Playing        bool    `json:"playing"`
	Paused         bool    `json:"paused"`
	CurrentProject *string `json:"current_project"`
	queue.Status
	DictationActive bool   `json:"dictation_active"`
	Hotkey          string `json:"hotkey"`
	HotkeyPressed   bool   `json:"hotkey_pressed"`
}

// Status assembles the state view across all components.
func (s *Service) Status() Status {
	var project *string
	if p := s.engine.CurrentProject(); p != "" {
		project = &p
	}
	hk := s.monitor.Status()
	return Status{
		Playing:         s.engine.Playing(),
		Paused:          s.engine.Paused(),
		CurrentProject:  project,
		Status:          s.queue.Status(),
		DictationActive: s.dictation.Load(),
		Hotkey:          hk.Hotkey,
		HotkeyPressed:   hk.Pressed,
	}
}

// worker is the single long-running playback loop. It must never die:
// any failure inside one iteration is contained, the item's completion
// fires, and the loop continues.
func (s *Service) worker(ctx context.Context) {
	log.Info("playback worker started")
	for {
		select {
		case <-ctx.Done():
			log.Info("playback worker stopped")
			return
		default:
		}

		it := s.queue.Dequeue(workerTick)
		if it == nil {
			continue
		}
		s.playItem(it)
	}
}

// playItem renders one item and fires its completion event, whatever
// happens during playback.
func (s *Service) playItem(it *queue.Item) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic during playback", "item_id", it.ID, "panic", r)
		}
		it.Finish()
		s.registry.Signal(it.ID)
		s.registry.Cleanup(it.ID, s.cfg.CleanupDelay)
	}()

	log.Info("playing audio", "item_id", it.ID, "project", it.Project,
		"priority", it.Priority.String(), "duration", it.Duration())
	if err := s.engine.Play(it.Audio, it.SampleRate, it.Project); err != nil {
		log.Error("playback failed", "item_id", it.ID, "err", err)
	}
}

// finishExpired fires the completion event of a timed-out reservation
// so its waiters unblock; from the client's perspective the item is
// done.
func (s *Service) finishExpired(it *queue.Item) {
	s.registry.Signal(it.ID)
	s.registry.Cleanup(it.ID, s.cfg.CleanupDelay)
}

// postEdge hands a hotkey edge from the monitor's goroutine to the
// drain loop without blocking the OS-event path.
func (s *Service) postEdge(pressed bool) {
	select {
	case s.hotkeyEdges <- pressed:
	default:
	}
}

// drainHotkeyEdges applies hotkey edges to the dictation flag and the
// engine's paused state.
func (s *Service) drainHotkeyEdges(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case pressed := <-s.hotkeyEdges:
			if pressed {
				log.Info("dictation started", "hotkey", s.monitor.Key())
				s.dictation.Store(true)
				s.engine.Pause()
			} else {
				log.Info("dictation ended", "hotkey", s.monitor.Key())
				s.dictation.Store(false)
				s.engine.Resume()
			}
		}
	}
}
