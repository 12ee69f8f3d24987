package services

import (
	"context"
	"sync"
	"time"

	"mailmirror/internal/errs"
	"mailmirror/internal/graph"
	"mailmirror/internal/models"
	"mailmirror/internal/repository"
	"mailmirror/internal/utils"
)

// Access tokens are refreshed this long before their actual expiry so
// an in-flight sync never runs off a token that lapses mid-call.
const tokenExpiryMargin = 5 * time.Minute

// TokenService owns the OAuth token lifecycle for a binding
type TokenService struct {
	bindings *repository.BindingRepository
	client   *graph.Client
	cipher   *TokenCipher
	logger   *utils.Logger

	// Serializes refreshes in this process so concurrent callers on
	// the same expired token trigger one provider round trip.
	refreshMu sync.Mutex
}

// NewTokenService creates a new token service
func NewTokenService(bindings *repository.BindingRepository, client *graph.Client, cipher *TokenCipher) *TokenService {
	return &TokenService{
		bindings: bindings,
		client:   client,
		cipher:   cipher,
		logger:   utils.NewLogger("TokenService"),
	}
}

// EnsureFreshToken returns a usable access token for the binding,
// refreshing and persisting the pair when the stored token is within
// the expiry margin. On refresh failure the binding is marked Error and
// the failure is fatal to the caller's operation.
func (s *TokenService) EnsureFreshToken(ctx context.Context, binding *models.Binding) (string, error) {
	access := s.cipher.Decrypt(binding.AccessToken)
	if access != "" && time.Until(binding.TokenExpiresAt) > tokenExpiryMargin {
		return access, nil
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	// The caller's binding is shared with other goroutines reading the
	// fast path above, so it is never written here. Work off a fresh
	// read instead; a concurrent caller may have refreshed while we
	// queued.
	refresh := s.cipher.Decrypt(binding.RefreshToken)
	tenantID := binding.TenantID
	if current, err := s.bindings.GetByID(binding.ID); err == nil {
		access = s.cipher.Decrypt(current.AccessToken)
		if access != "" && time.Until(current.TokenExpiresAt) > tokenExpiryMargin {
			return access, nil
		}
		refresh = s.cipher.Decrypt(current.RefreshToken)
		tenantID = current.TenantID
	}

	if refresh == "" {
		msg := "no refresh token available, rebind required"
		s.logger.Warn("Binding %d: %s", binding.ID, msg)
		if err := s.bindings.UpdateSyncStatus(binding.ID, models.SyncStatusError, msg); err != nil {
			s.logger.Error("Failed to record token error on binding %d: %v", binding.ID, err)
		}
		return "", errs.New(errs.CodeUnauthenticated, "%s", msg)
	}

	tok, err := s.client.Refresh(ctx, refresh, tenantID)
	if err != nil {
		msg := "token refresh failed: " + err.Error()
		if updErr := s.bindings.UpdateSyncStatus(binding.ID, models.SyncStatusError, msg); updErr != nil {
			s.logger.Error("Failed to record refresh error on binding %d: %v", binding.ID, updErr)
		}
		return "", errs.Wrap(errs.CodeUpstream, err, "token refresh failed")
	}

	if err := s.StoreTokens(binding.ID, tok); err != nil {
		return "", errs.Wrap(errs.CodeUpstream, err, "failed to persist refreshed tokens")
	}

	s.logger.Info("Refreshed access token for binding %d, expires %s", binding.ID, tok.ExpiresAt.Format(time.RFC3339))
	return tok.AccessToken, nil
}

// StoreTokens encrypts and persists a token pair. In-memory bindings
// are left alone; the next expiry check re-reads through the
// repository under refreshMu.
func (s *TokenService) StoreTokens(bindingID uint, tok *graph.Token) error {
	encAccess, err := s.cipher.Encrypt(tok.AccessToken)
	if err != nil {
		return err
	}
	encRefresh, err := s.cipher.Encrypt(tok.RefreshToken)
	if err != nil {
		return err
	}
	return s.bindings.UpdateTokens(bindingID, encAccess, encRefresh, tok.ExpiresAt)
}
