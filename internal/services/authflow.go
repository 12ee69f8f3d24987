package services

import (
	"context"

	"mailmirror/internal/errs"
	"mailmirror/internal/graph"
	"mailmirror/internal/models"
	"mailmirror/internal/repository"
	"mailmirror/internal/utils"
)

const (
	minSyncIntervalMinutes = 5
	maxSyncIntervalMinutes = 1440
)

// BindingService runs the OAuth binding lifecycle: authorization URL
// issuance, callback handling, settings, and unbind.
type BindingService struct {
	bindings *repository.BindingRepository
	messages *repository.MessageRepository
	client   *graph.Client
	tokens   *TokenService
	cipher   *TokenCipher
	states   *AuthStateStore

	defaultIntervalMinutes int
	logger                 *utils.Logger
}

// NewBindingService creates a new binding service
func NewBindingService(
	bindings *repository.BindingRepository,
	messages *repository.MessageRepository,
	client *graph.Client,
	tokens *TokenService,
	cipher *TokenCipher,
	defaultIntervalMinutes int,
) *BindingService {
	if defaultIntervalMinutes <= 0 {
		defaultIntervalMinutes = 15
	}
	return &BindingService{
		bindings:               bindings,
		messages:               messages,
		client:                 client,
		tokens:                 tokens,
		cipher:                 cipher,
		states:                 NewAuthStateStore(),
		defaultIntervalMinutes: defaultIntervalMinutes,
		logger:                 utils.NewLogger("BindingService"),
	}
}

// BeginAuthorization issues a CSRF state and the provider consent URL
func (s *BindingService) BeginAuthorization(userID uint, tenantID string) (string, string, error) {
	if userID == 0 {
		return "", "", errs.New(errs.CodeUnauthenticated, "no user id")
	}

	state := s.states.Issue(userID, tenantID)
	authURL := s.client.AuthorizeURL(state, tenantID)
	s.logger.Info("Issued authorization URL for user %d", userID)
	return authURL, state, nil
}

// CompleteAuthorization handles the OAuth callback. The state is
// consumed before the code exchange so it cannot be replayed even when
// the exchange fails.
func (s *BindingService) CompleteAuthorization(ctx context.Context, code, state, errParam string) (*models.Binding, error) {
	if errParam != "" {
		return nil, errs.New(errs.CodeInvalidRequest, "authorization failed: %s", errParam)
	}

	entry, ok := s.states.Consume(state)
	if !ok {
		return nil, errs.New(errs.CodeInvalidState, "unknown or expired authorization state")
	}
	if code == "" {
		return nil, errs.New(errs.CodeInvalidRequest, "missing authorization code")
	}

	tok, err := s.client.ExchangeCode(ctx, code, entry.TenantID)
	if err != nil {
		return nil, errs.Wrap(errs.CodeUpstream, err, "code exchange failed")
	}

	// Identity resolution is soft: sync works without the address, the
	// caller just loses dedup-by-email until a later rebind fills it.
	email := ""
	if profile, err := s.client.GetProfile(ctx, tok.AccessToken); err != nil {
		s.logger.Warn("Could not resolve mailbox address for user %d: %v", entry.UserID, err)
	} else {
		email = profile.EmailAddress()
	}

	if email != "" {
		other, err := s.bindings.GetByEmail(email, models.ProviderOutlook)
		if err != nil {
			return nil, err
		}
		if other != nil && other.UserID != entry.UserID {
			return nil, errs.New(errs.CodeConflict, "mailbox %s is already bound to another user", email)
		}
	}

	binding, err := s.bindings.GetByUser(entry.UserID, models.ProviderOutlook)
	if err != nil {
		return nil, err
	}
	if binding == nil {
		binding = &models.Binding{
			UserID:              entry.UserID,
			Provider:            models.ProviderOutlook,
			AutoSyncEnabled:     true,
			SyncIntervalMinutes: s.defaultIntervalMinutes,
		}
	}

	encAccess, err := s.cipher.Encrypt(tok.AccessToken)
	if err != nil {
		return nil, err
	}
	encRefresh, err := s.cipher.Encrypt(tok.RefreshToken)
	if err != nil {
		return nil, err
	}

	binding.Email = email
	binding.TenantID = entry.TenantID
	binding.AccessToken = encAccess
	binding.RefreshToken = encRefresh
	binding.TokenExpiresAt = tok.ExpiresAt
	binding.SyncStatus = models.SyncStatusActive
	binding.LastSyncError = ""

	if err := s.bindings.Save(binding); err != nil {
		return nil, err
	}

	s.logger.Info("Bound mailbox %s for user %d", email, entry.UserID)
	return binding, nil
}

// GetBinding returns the user's binding
func (s *BindingService) GetBinding(userID uint) (*models.Binding, error) {
	binding, err := s.bindings.GetByUser(userID, models.ProviderOutlook)
	if err != nil {
		return nil, err
	}
	if binding == nil {
		return nil, errs.New(errs.CodeNotFound, "no mailbox binding for user %d", userID)
	}
	return binding, nil
}

// Unbind removes the binding and purges every locally mirrored message
// for the user. This is the only path that deletes mirror data.
func (s *BindingService) Unbind(userID uint) error {
	binding, err := s.GetBinding(userID)
	if err != nil {
		return err
	}

	if err := s.messages.PurgeByOwner(userID); err != nil {
		return err
	}
	if err := s.bindings.Delete(binding.ID); err != nil {
		return err
	}

	s.logger.Info("Unbound mailbox %s for user %d and purged mirror", binding.Email, userID)
	return nil
}

// UpdateSettings changes auto-sync behavior. The interval is clamped
// to a sane range rather than rejected.
func (s *BindingService) UpdateSettings(userID uint, autoSync bool, intervalMinutes int) (*models.Binding, error) {
	binding, err := s.GetBinding(userID)
	if err != nil {
		return nil, err
	}

	if intervalMinutes < minSyncIntervalMinutes {
		intervalMinutes = minSyncIntervalMinutes
	}
	if intervalMinutes > maxSyncIntervalMinutes {
		intervalMinutes = maxSyncIntervalMinutes
	}

	if err := s.bindings.UpdateSettings(binding.ID, autoSync, intervalMinutes); err != nil {
		return nil, err
	}
	binding.AutoSyncEnabled = autoSync
	binding.SyncIntervalMinutes = intervalMinutes
	return binding, nil
}
