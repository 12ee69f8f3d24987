package repository

import (
	"errors"
	"time"

	"mailmirror/internal/models"

	"gorm.io/gorm"
)

// MessageRepository handles local message mirror persistence
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a new message
func (r *MessageRepository) Create(msg *models.Message) error {
	return r.db.Create(msg).Error
}

// GetByID retrieves a message by primary key
func (r *MessageRepository) GetByID(id uint) (*models.Message, error) {
	var msg models.Message
	if err := r.db.First(&msg, id).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetByExternalID finds the local copy of a remote message in any
// folder, Trash included. Callers decide what a Trash hit means.
func (r *MessageRepository) GetByExternalID(ownerID uint, externalID string) (*models.Message, error) {
	if externalID == "" {
		return nil, nil
	}
	var msg models.Message
	err := r.db.Where("owner_id = ? AND external_message_id = ?", ownerID, externalID).
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// FindRecentlySent looks for a locally composed Sent message that has
// no external id yet and whose sent time falls within the window around
// remoteSentAt. Used to link provider echoes of locally sent mail.
func (r *MessageRepository) FindRecentlySent(ownerID uint, subject string, remoteSentAt time.Time, window time.Duration) (*models.Message, error) {
	var msg models.Message
	err := r.db.Where(
		"owner_id = ? AND folder = ? AND subject = ? AND (external_message_id = '' OR external_message_id IS NULL) AND sent_at BETWEEN ? AND ?",
		ownerID, models.FolderSent, subject,
		remoteSentAt.Add(-window), remoteSentAt.Add(window),
	).Order("sent_at DESC").First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// SetExternalID links a local message to its remote counterpart
func (r *MessageRepository) SetExternalID(id uint, externalID string) error {
	return r.db.Model(&models.Message{}).Where("id = ?", id).
		Update("external_message_id", externalID).Error
}

// UpdateReadFlag sets the read flag only
func (r *MessageRepository) UpdateReadFlag(id uint, isRead bool) error {
	return r.db.Model(&models.Message{}).Where("id = ?", id).
		Update("is_read", isRead).Error
}

// UpdateBody stores a lazily fetched full body and preview
func (r *MessageRepository) UpdateBody(id uint, body, preview string) error {
	return r.db.Model(&models.Message{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"body":         body,
			"body_preview": preview,
		}).Error
}

// ListExternalIDs returns every external id present in a folder for an
// owner, keyed by local message id. Drives deletion reconciliation.
func (r *MessageRepository) ListExternalIDs(ownerID uint, folder models.Folder) (map[uint]string, error) {
	var rows []struct {
		ID                uint
		ExternalMessageID string
	}
	err := r.db.Model(&models.Message{}).
		Where("owner_id = ? AND folder = ? AND external_message_id <> ''", ownerID, folder).
		Select("id", "external_message_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]string, len(rows))
	for _, row := range rows {
		out[row.ID] = row.ExternalMessageID
	}
	return out, nil
}

// MoveToTrash moves a message to Trash remembering where it came from
func (r *MessageRepository) MoveToTrash(id uint, from models.Folder) error {
	return r.db.Model(&models.Message{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"folder":          models.FolderTrash,
			"original_folder": from,
		}).Error
}

// MoveToFolder relocates a message and clears its move history
func (r *MessageRepository) MoveToFolder(id uint, folder models.Folder) error {
	return r.db.Model(&models.Message{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"folder":          folder,
			"original_folder": "",
		}).Error
}

// ListByFolder returns an owner's messages in one folder, newest first
func (r *MessageRepository) ListByFolder(ownerID uint, folder models.Folder, limit, offset int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.Where("owner_id = ? AND folder = ?", ownerID, folder).
		Order("received_at DESC").
		Limit(limit).Offset(offset).
		Find(&msgs).Error
	return msgs, err
}

// PurgeByOwner hard-deletes all of an owner's mirrored messages and
// their attachment rows. Only the unbind path calls this.
func (r *MessageRepository) PurgeByOwner(ownerID uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		sub := tx.Unscoped().Model(&models.Message{}).Select("id").Where("owner_id = ?", ownerID)
		if err := tx.Unscoped().
			Where("message_id IN (?)", sub).
			Delete(&models.MessageAttachment{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Where("owner_id = ?", ownerID).Delete(&models.Message{}).Error
	})
}
