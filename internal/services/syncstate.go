package services

import (
	"context"
	"errors"
	"time"

	"mailmirror/internal/errs"
	"mailmirror/internal/models"
	"mailmirror/internal/repository"
	"mailmirror/internal/utils"

	"gorm.io/gorm"
)

// Cooldowns between successive sync attempts, keyed by sync kind
const (
	incrementalCooldown = time.Minute
	fullSyncCooldown    = time.Hour

	defaultWaitMax      = 5 * time.Minute
	defaultWaitInterval = 2 * time.Second
)

// WaitResult is the outcome of WaitForCompletion
type WaitResult int

const (
	// WaitCompleted means the concurrent run finished successfully
	WaitCompleted WaitResult = iota
	// WaitFailed means the concurrent run ended in Error
	WaitFailed
	// WaitStillRunning means maxWait elapsed with the sync in flight.
	// Not a failure; the caller should check back later.
	WaitStillRunning
)

// SyncStateService guards sync mutual exclusion and throttling.
// The binding's status column is the lock: claims go through a
// conditional update so two claimants can never both win.
type SyncStateService struct {
	bindings *repository.BindingRepository
	logger   *utils.Logger
}

// NewSyncStateService creates a new sync state service
func NewSyncStateService(bindings *repository.BindingRepository) *SyncStateService {
	return &SyncStateService{
		bindings: bindings,
		logger:   utils.NewLogger("SyncState"),
	}
}

// TryClaim attempts the Active|Error -> Syncing transition for one
// sync run. Returns nil when claimed; AlreadyInProgress when another
// run holds the claim; TooSoon when the kind's cooldown has not
// elapsed since the last completed sync.
func (s *SyncStateService) TryClaim(bindingID uint, kind models.SyncKind) error {
	binding, err := s.bindings.GetByID(bindingID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.Wrap(errs.CodeNotFound, err, "binding %d not found", bindingID)
	}
	if err != nil {
		// Transient storage failure, not an absent binding
		return err
	}

	if binding.SyncStatus == models.SyncStatusSyncing {
		return errs.New(errs.CodeAlreadyInProgress, "a sync is already running for binding %d", bindingID)
	}

	cooldown := incrementalCooldown
	if kind == models.SyncKindFull {
		cooldown = fullSyncCooldown
	}
	if binding.LastSyncTime != nil {
		if elapsed := time.Since(*binding.LastSyncTime); elapsed < cooldown {
			return errs.TooSoon(cooldown - elapsed)
		}
	}

	claimed, err := s.bindings.ClaimSyncing(bindingID)
	if err != nil {
		return err
	}
	if !claimed {
		// Lost the race to a concurrent claimant
		return errs.New(errs.CodeAlreadyInProgress, "a sync is already running for binding %d", bindingID)
	}
	return nil
}

// WaitForCompletion polls the binding until it leaves Syncing or
// maxWait elapses. No lock is held between polls; each interval
// re-reads current state. Zero durations take the defaults.
func (s *SyncStateService) WaitForCompletion(ctx context.Context, bindingID uint, maxWait, pollInterval time.Duration) (WaitResult, string, error) {
	if maxWait <= 0 {
		maxWait = defaultWaitMax
	}
	if pollInterval <= 0 {
		pollInterval = defaultWaitInterval
	}

	deadline := time.Now().Add(maxWait)
	for {
		binding, err := s.bindings.GetByID(bindingID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return WaitFailed, "", errs.Wrap(errs.CodeNotFound, err, "binding %d not found", bindingID)
		}
		if err != nil {
			return WaitFailed, "", err
		}

		switch binding.SyncStatus {
		case models.SyncStatusError:
			return WaitFailed, binding.LastSyncError, nil
		case models.SyncStatusSyncing:
			// keep polling
		default:
			// The concurrent run owns the counts; this caller only
			// learns that it finished.
			return WaitCompleted, "", nil
		}

		if time.Now().After(deadline) {
			return WaitStillRunning, "", nil
		}

		select {
		case <-ctx.Done():
			return WaitStillRunning, "", ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Release ends a claimed sync run. Must run on every exit path of a
// claimed sync so a binding is never stranded in Syncing.
func (s *SyncStateService) Release(bindingID uint, runErr error) {
	if runErr != nil {
		if err := s.bindings.UpdateSyncStatus(bindingID, models.SyncStatusError, runErr.Error()); err != nil {
			s.logger.Error("Failed to release binding %d to Error: %v", bindingID, err)
		}
		return
	}

	if err := s.bindings.UpdateSyncStatus(bindingID, models.SyncStatusActive, ""); err != nil {
		s.logger.Error("Failed to release binding %d to Active: %v", bindingID, err)
	}
	if err := s.bindings.UpdateLastSyncTime(bindingID, time.Now()); err != nil {
		s.logger.Error("Failed to stamp last sync time on binding %d: %v", bindingID, err)
	}
}
