package services

import (
	"context"
	"sync"
	"time"

	"mailmirror/internal/errs"
	"mailmirror/internal/models"
	"mailmirror/internal/repository"
	"mailmirror/internal/utils"
)

// SyncScheduler periodically runs incremental sync for bindings whose
// auto-sync interval has elapsed. Claims go through the same state
// machine as manual syncs, so the scheduler can never collide with a
// user-triggered run.
type SyncScheduler struct {
	bindings *repository.BindingRepository
	engine   *DeltaSyncEngine
	state    *SyncStateService

	checkInterval time.Duration
	startupDelay  time.Duration

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *utils.Logger
}

// NewSyncScheduler creates a new scheduler
func NewSyncScheduler(
	bindings *repository.BindingRepository,
	engine *DeltaSyncEngine,
	state *SyncStateService,
	checkInterval, startupDelay time.Duration,
) *SyncScheduler {
	if checkInterval <= 0 {
		checkInterval = 5 * time.Minute
	}
	return &SyncScheduler{
		bindings:      bindings,
		engine:        engine,
		state:         state,
		checkInterval: checkInterval,
		startupDelay:  startupDelay,
		logger:        utils.NewLogger("SyncScheduler"),
	}
}

// Start launches the background loop
func (s *SyncScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true

	s.wg.Add(1)
	go s.run()
	s.logger.Info("Sync scheduler started (check every %v)", s.checkInterval)
	return nil
}

// Stop shuts the loop down and waits for an in-flight pass to finish
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Sync scheduler stopped")
}

func (s *SyncScheduler) run() {
	defer s.wg.Done()

	if s.startupDelay > 0 {
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.startupDelay):
		}
	}

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	s.syncDueBindings()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.syncDueBindings()
		}
	}
}

// syncDueBindings runs one scheduler pass. A binding's failure is
// recorded on that binding and never stops the pass.
func (s *SyncScheduler) syncDueBindings() {
	candidates, err := s.bindings.ListAutoSyncCandidates()
	if err != nil {
		s.logger.Error("Failed to list auto-sync candidates: %v", err)
		return
	}

	now := time.Now()
	for i := range candidates {
		binding := &candidates[i]
		if !binding.NeedsAutoSync(now) {
			continue
		}
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		s.syncOne(binding.ID)
	}
}

func (s *SyncScheduler) syncOne(bindingID uint) {
	if err := s.state.TryClaim(bindingID, models.SyncKindIncremental); err != nil {
		// Busy or cooling down; the next pass will retry
		if code := errs.CodeOf(err); code == errs.CodeAlreadyInProgress || code == errs.CodeTooSoon {
			return
		}
		s.logger.Warn("Could not claim binding %d: %v", bindingID, err)
		return
	}

	binding, err := s.bindings.GetByID(bindingID)
	if err != nil {
		s.state.Release(bindingID, err)
		return
	}

	result, err := s.engine.RunIncremental(s.ctx, binding)
	s.state.Release(bindingID, err)
	if err != nil {
		s.logger.Error("Auto-sync failed for binding %d: %v", bindingID, err)
		return
	}
	s.logger.Debug("Auto-sync for binding %d: added=%d updated=%d deleted=%d",
		bindingID, result.Added, result.Updated, result.Deleted)
}
