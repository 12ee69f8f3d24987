package repository

import (
	"errors"

	"mailmirror/internal/models"

	"gorm.io/gorm"
)

// AttachmentRepository handles attachment metadata persistence
type AttachmentRepository struct {
	db *gorm.DB
}

// NewAttachmentRepository creates a new attachment repository
func NewAttachmentRepository(db *gorm.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// Create inserts an attachment row
func (r *AttachmentRepository) Create(att *models.MessageAttachment) error {
	return r.db.Create(att).Error
}

// ListByMessage returns all attachment rows for a local message
func (r *AttachmentRepository) ListByMessage(messageID uint) ([]models.MessageAttachment, error) {
	var atts []models.MessageAttachment
	err := r.db.Where("message_id = ?", messageID).Find(&atts).Error
	return atts, err
}

// GetByExternalID finds an attachment by its provider id, nil if none
func (r *AttachmentRepository) GetByExternalID(externalID string) (*models.MessageAttachment, error) {
	if externalID == "" {
		return nil, nil
	}
	var att models.MessageAttachment
	err := r.db.Where("external_attachment_id = ?", externalID).First(&att).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &att, nil
}

// GetByID returns one attachment row
func (r *AttachmentRepository) GetByID(id uint) (*models.MessageAttachment, error) {
	var att models.MessageAttachment
	if err := r.db.First(&att, id).Error; err != nil {
		return nil, err
	}
	return &att, nil
}

// CountByMessage returns how many attachment rows a message has
func (r *AttachmentRepository) CountByMessage(messageID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.MessageAttachment{}).
		Where("message_id = ?", messageID).Count(&count).Error
	return count, err
}
