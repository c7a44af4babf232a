package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/kimhsiao/mdreader/core/internal/logging"
)

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	SyncInterval  time.Duration // full reconciliation cadence when online
	QueueInterval time.Duration // pending-document check cadence
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		SyncInterval:  30 * time.Second,
		QueueInterval: time.Minute,
	}
}

// Scheduler drives the manager opportunistically: a periodic pass while
// online, an immediate pass when connectivity returns, and explicit triggers
// from callers. Offline it stays quiet; the queue keeps accumulating.
type Scheduler struct {
	manager       *Manager
	syncInterval  time.Duration
	queueInterval time.Duration

	stopCh  chan struct{}
	pokeCh  chan struct{}
	wg      gosync.WaitGroup
	mu      gosync.RWMutex
	running bool
	online  bool
	lastRun time.Time
}

// NewScheduler creates a Scheduler over the given manager.
func NewScheduler(manager *Manager, config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	return &Scheduler{
		manager:       manager,
		syncInterval:  config.SyncInterval,
		queueInterval: config.QueueInterval,
		pokeCh:        make(chan struct{}, 1),
		online:        true,
	}
}

// Start launches the background loop. Starting twice is a no-op; a stopped
// scheduler may be started again.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stop := s.stopCh
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx, stop)

	logging.Info("sync scheduler started", map[string]interface{}{
		"sync_interval_seconds": s.syncInterval.Seconds(),
	})
}

// Stop halts the background loop and waits for the current pass to finish.
// In-flight writes run to completion; they are never cut off mid-apply.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	logging.Info("sync scheduler stopped", nil)
}

// SetOnline records a connectivity change. Regaining connectivity triggers
// an immediate reconciliation pass for everything queued while offline.
func (s *Scheduler) SetOnline(online bool) {
	s.mu.Lock()
	wasOnline := s.online
	s.online = online
	s.mu.Unlock()

	if wasOnline == online {
		return
	}
	logging.Info("connectivity changed", map[string]interface{}{
		"online": online,
	})
	if online {
		s.TriggerSync()
	}
}

// TriggerSync requests an immediate pass. Requests arriving while a pass is
// pending collapse into the one already scheduled.
func (s *Scheduler) TriggerSync() {
	select {
	case s.pokeCh <- struct{}{}:
	default:
	}
}

// IsOnline reports the recorded connectivity state.
func (s *Scheduler) IsOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

// LastRun reports when the last reconciliation pass completed; zero when no
// pass has run yet.
func (s *Scheduler) LastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()
	queueTicker := time.NewTicker(s.queueInterval)
	defer queueTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.runPass(ctx)
		case <-queueTicker.C:
			// safety net for passes missed while a prior pass overran
			if pending, err := s.manager.HasPendingDocuments(); err == nil && pending {
				s.runPass(ctx)
			}
		case <-s.pokeCh:
			s.runPass(ctx)
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context) {
	if !s.IsOnline() {
		logging.Debug("skipping sync pass while offline", nil)
		return
	}

	passCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	conflicts, err := s.manager.FlushAll(passCtx)
	if err != nil {
		logging.Error("sync pass incomplete", err, map[string]interface{}{
			"conflicts": len(conflicts),
		})
		return
	}

	s.mu.Lock()
	s.lastRun = time.Now()
	s.mu.Unlock()

	if len(conflicts) > 0 {
		logging.Warn("sync pass completed with conflicts", map[string]interface{}{
			"conflicts": len(conflicts),
		})
	} else {
		logging.Debug("sync pass completed", nil)
	}
}
