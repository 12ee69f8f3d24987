package services

import (
	"context"

	"mailmirror/internal/errs"
	"mailmirror/internal/models"
	"mailmirror/internal/repository"
	"mailmirror/internal/utils"
)

// SyncOutcome is what a caller-triggered sync returns. Exactly one of
// the shapes applies: Result when this call ran the sync, Waited when
// it observed a concurrent run finish, StillRunning when the
// concurrent run outlasted the wait.
type SyncOutcome struct {
	Result       *AggregateResult `json:"result,omitempty"`
	Waited       bool             `json:"waited,omitempty"`
	StillRunning bool             `json:"stillRunning,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// SyncService is the caller-facing sync entry point: it claims the
// binding, runs the engine, and guarantees release. Callers that lose
// the claim share the concurrent run's outcome instead of failing.
type SyncService struct {
	bindings *repository.BindingRepository
	state    *SyncStateService
	engine   *DeltaSyncEngine
	logger   *utils.Logger
}

// NewSyncService creates a new sync service
func NewSyncService(bindings *repository.BindingRepository, state *SyncStateService, engine *DeltaSyncEngine) *SyncService {
	return &SyncService{
		bindings: bindings,
		state:    state,
		engine:   engine,
		logger:   utils.NewLogger("SyncService"),
	}
}

// SyncNow runs a sync of the given kind for the user's binding.
// maxPerFolder only applies to full syncs. TooSoon propagates to the
// caller; AlreadyInProgress turns into waiting on the concurrent run.
func (s *SyncService) SyncNow(ctx context.Context, userID uint, kind models.SyncKind, maxPerFolder int) (*SyncOutcome, error) {
	binding, err := s.bindings.GetByUser(userID, models.ProviderOutlook)
	if err != nil {
		return nil, err
	}
	if binding == nil {
		return nil, errs.New(errs.CodeNotFound, "no mailbox binding for user %d", userID)
	}

	if err := s.state.TryClaim(binding.ID, kind); err != nil {
		if errs.CodeOf(err) != errs.CodeAlreadyInProgress {
			return nil, err
		}
		return s.waitForConcurrent(ctx, binding.ID)
	}

	result, runErr := s.run(ctx, binding, kind, maxPerFolder)
	if runErr != nil {
		return nil, runErr
	}
	return &SyncOutcome{Result: result}, nil
}

// run executes the claimed sync and always releases the claim
func (s *SyncService) run(ctx context.Context, binding *models.Binding, kind models.SyncKind, maxPerFolder int) (result *AggregateResult, runErr error) {
	defer func() {
		s.state.Release(binding.ID, runErr)
	}()

	if kind == models.SyncKindFull {
		result, runErr = s.engine.RunFull(ctx, binding, maxPerFolder)
	} else {
		result, runErr = s.engine.RunIncremental(ctx, binding)
	}
	return result, runErr
}

func (s *SyncService) waitForConcurrent(ctx context.Context, bindingID uint) (*SyncOutcome, error) {
	outcome, errMsg, err := s.state.WaitForCompletion(ctx, bindingID, 0, 0)
	if err != nil {
		return nil, err
	}
	switch outcome {
	case WaitFailed:
		return &SyncOutcome{Waited: true, Error: errMsg}, nil
	case WaitStillRunning:
		return &SyncOutcome{Waited: true, StillRunning: true}, nil
	default:
		return &SyncOutcome{Waited: true}, nil
	}
}
