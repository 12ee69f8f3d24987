package repository

import (
	"errors"
	"fmt"
	"time"

	"mailmirror/internal/models"

	"gorm.io/gorm"
)

// BindingRepository handles mailbox binding persistence.
// All mutations are narrow, field-scoped updates so concurrent writers
// touching different fields never clobber each other.
type BindingRepository struct {
	db *gorm.DB
}

// NewBindingRepository creates a new binding repository
func NewBindingRepository(db *gorm.DB) *BindingRepository {
	return &BindingRepository{db: db}
}

// Create inserts a new binding
func (r *BindingRepository) Create(binding *models.Binding) error {
	return r.db.Create(binding).Error
}

// GetByID retrieves a binding by primary key
func (r *BindingRepository) GetByID(id uint) (*models.Binding, error) {
	var binding models.Binding
	if err := r.db.First(&binding, id).Error; err != nil {
		return nil, err
	}
	return &binding, nil
}

// GetByUser retrieves the binding for a user and provider, nil if none
func (r *BindingRepository) GetByUser(userID uint, provider models.ProviderType) (*models.Binding, error) {
	var binding models.Binding
	err := r.db.Where("user_id = ? AND provider = ?", userID, provider).First(&binding).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &binding, nil
}

// GetByEmail retrieves a binding by resolved mailbox address, nil if none
func (r *BindingRepository) GetByEmail(email string, provider models.ProviderType) (*models.Binding, error) {
	var binding models.Binding
	err := r.db.Where("email = ? AND provider = ?", email, provider).First(&binding).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &binding, nil
}

// Save persists the whole binding row. Only used on create-or-rebind;
// everything else goes through the narrow update methods below.
func (r *BindingRepository) Save(binding *models.Binding) error {
	return r.db.Save(binding).Error
}

// UpdateTokens atomically replaces the token pair. A successful refresh
// also clears any stale error so the binding is usable again.
func (r *BindingRepository) UpdateTokens(id uint, accessToken, refreshToken string, expiresAt time.Time) error {
	return r.db.Model(&models.Binding{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"access_token":     accessToken,
			"refresh_token":    refreshToken,
			"token_expires_at": expiresAt,
			"last_sync_error":  "",
		}).Error
}

// UpdateSyncStatus sets the sync status and error message
func (r *BindingRepository) UpdateSyncStatus(id uint, status models.SyncStatus, errMsg string) error {
	updates := map[string]interface{}{
		"sync_status": status,
	}
	if errMsg == "" {
		updates["last_sync_error"] = gorm.Expr("NULL")
	} else {
		updates["last_sync_error"] = errMsg
	}
	return r.db.Model(&models.Binding{}).Where("id = ?", id).Updates(updates).Error
}

// UpdateLastSyncTime stamps the completion time of a sync run
func (r *BindingRepository) UpdateLastSyncTime(id uint, t time.Time) error {
	return r.db.Model(&models.Binding{}).Where("id = ?", id).
		Update("last_sync_time", t).Error
}

// ClaimSyncing attempts the Active|Error -> Syncing transition.
// The conditional update is the mutual exclusion point: of two
// concurrent claimants exactly one sees RowsAffected == 1.
func (r *BindingRepository) ClaimSyncing(id uint) (bool, error) {
	res := r.db.Model(&models.Binding{}).
		Where("id = ? AND sync_status <> ?", id, models.SyncStatusSyncing).
		Update("sync_status", models.SyncStatusSyncing)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateDeltaCursor persists the cursor for one tracked folder without
// touching the other folders' cursors.
func (r *BindingRepository) UpdateDeltaCursor(id uint, folder models.Folder, cursor string) error {
	column, err := deltaCursorColumn(folder)
	if err != nil {
		return err
	}
	return r.db.Model(&models.Binding{}).Where("id = ?", id).
		Update(column, cursor).Error
}

// DeltaCursor reads the stored cursor for one tracked folder
func (r *BindingRepository) DeltaCursor(binding *models.Binding, folder models.Folder) (string, error) {
	switch folder {
	case models.FolderInbox:
		return binding.DeltaLinkInbox, nil
	case models.FolderSent:
		return binding.DeltaLinkSent, nil
	case models.FolderTrash:
		return binding.DeltaLinkDeleted, nil
	}
	return "", fmt.Errorf("folder %q has no delta cursor", folder)
}

func deltaCursorColumn(folder models.Folder) (string, error) {
	switch folder {
	case models.FolderInbox:
		return "delta_link_inbox", nil
	case models.FolderSent:
		return "delta_link_sent", nil
	case models.FolderTrash:
		return "delta_link_deleted", nil
	}
	return "", fmt.Errorf("folder %q has no delta cursor", folder)
}

// UpdateSettings changes the auto-sync flag and interval
func (r *BindingRepository) UpdateSettings(id uint, autoSync bool, intervalMinutes int) error {
	return r.db.Model(&models.Binding{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"auto_sync_enabled":     autoSync,
			"sync_interval_minutes": intervalMinutes,
		}).Error
}

// Delete soft-deletes a binding
func (r *BindingRepository) Delete(id uint) error {
	return r.db.Delete(&models.Binding{}, id).Error
}

// ListAutoSyncCandidates returns bindings with auto-sync enabled that
// are not currently syncing. Interval filtering happens in the caller.
func (r *BindingRepository) ListAutoSyncCandidates() ([]models.Binding, error) {
	var bindings []models.Binding
	err := r.db.Where("auto_sync_enabled = ? AND sync_status <> ?", true, models.SyncStatusSyncing).
		Find(&bindings).Error
	return bindings, err
}
