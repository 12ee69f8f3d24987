package services

import (
	"context"

	"mailmirror/internal/errs"
	"mailmirror/internal/models"
	"mailmirror/internal/repository"
	"mailmirror/internal/utils"
)

// MessageService serves the mirrored mailbox to callers, enriching
// message detail views on demand.
type MessageService struct {
	messages    *repository.MessageRepository
	attachments *repository.AttachmentRepository
	bindings    *BindingService
	content     *ContentResolver
	remote      *RemoteActions
	logger      *utils.Logger
}

// NewMessageService creates a new message service
func NewMessageService(
	messages *repository.MessageRepository,
	attachments *repository.AttachmentRepository,
	bindings *BindingService,
	content *ContentResolver,
	remote *RemoteActions,
) *MessageService {
	return &MessageService{
		messages:    messages,
		attachments: attachments,
		bindings:    bindings,
		content:     content,
		remote:      remote,
		logger:      utils.NewLogger("MessageService"),
	}
}

// List returns one folder page for the user
func (s *MessageService) List(userID uint, folder models.Folder, limit, offset int) ([]models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.messages.ListByFolder(userID, folder, limit, offset)
}

// GetDetail returns one message with its content fully resolved:
// body backfilled, inline images embedded, attachment metadata
// mirrored, and the message marked read. Every enrichment step is
// best-effort; the stored message is always returned.
func (s *MessageService) GetDetail(ctx context.Context, userID, messageID uint) (*models.Message, []models.MessageAttachment, error) {
	msg, err := s.messages.GetByID(messageID)
	if err != nil {
		return nil, nil, errs.Wrap(errs.CodeNotFound, err, "message %d not found", messageID)
	}
	if msg.OwnerID != userID {
		return nil, nil, errs.New(errs.CodeNotFound, "message %d not found", messageID)
	}

	binding, err := s.bindings.GetBinding(userID)
	if err != nil {
		// No binding: serve the mirror as-is, nothing to enrich from
		atts, _ := s.attachments.ListByMessage(msg.ID)
		return msg, atts, nil
	}

	msg = s.content.EnsureBody(ctx, binding, msg)
	msg.Body = s.content.RewriteInlineImages(ctx, binding, msg)

	if msg.HasAttachments && msg.ExternalMessageID != "" {
		count, err := s.attachments.CountByMessage(msg.ID)
		if err == nil && count == 0 {
			if _, err := s.content.SyncAttachmentMetadata(ctx, binding, msg.ExternalMessageID, msg.ID); err != nil {
				s.logger.Warn("Attachment backfill failed for message %d: %v", msg.ID, err)
			}
		}
	}

	if !msg.IsRead {
		if err := s.remote.MarkRead(ctx, binding, msg, true); err != nil {
			s.logger.Warn("Auto mark-read failed for message %d: %v", msg.ID, err)
		}
	}

	atts, err := s.attachments.ListByMessage(msg.ID)
	if err != nil {
		s.logger.Warn("Attachment listing failed for message %d: %v", msg.ID, err)
		atts = nil
	}
	return msg, atts, nil
}

// AttachmentContent is a downloaded attachment ready to serve
type AttachmentContent struct {
	Name        string
	ContentType string
	Data        []byte
}

// GetAttachmentContent downloads one attachment of the user's message
func (s *MessageService) GetAttachmentContent(ctx context.Context, userID, messageID, attachmentID uint) (*AttachmentContent, error) {
	msg, binding, err := s.ownedMessage(userID, messageID)
	if err != nil {
		return nil, err
	}
	if binding == nil || msg.ExternalMessageID == "" {
		return nil, errs.New(errs.CodeNotFound, "attachment %d has no remote content", attachmentID)
	}

	att, err := s.attachments.GetByID(attachmentID)
	if err != nil || att.MessageID != msg.ID {
		return nil, errs.New(errs.CodeNotFound, "attachment %d not found", attachmentID)
	}
	if att.ExternalAttachmentID == "" {
		return nil, errs.New(errs.CodeNotFound, "attachment %d has no remote content", attachmentID)
	}

	remote, data, err := s.content.FetchAttachment(ctx, binding, msg.ExternalMessageID, att.ExternalAttachmentID)
	if err != nil {
		return nil, err
	}

	contentType := remote.ContentType
	if contentType == "" {
		contentType = att.ContentType
	}
	return &AttachmentContent{Name: att.Name, ContentType: contentType, Data: data}, nil
}

// Delete moves a message to Trash
func (s *MessageService) Delete(ctx context.Context, userID, messageID uint) error {
	msg, binding, err := s.ownedMessage(userID, messageID)
	if err != nil {
		return err
	}
	return s.remote.Delete(ctx, binding, msg)
}

// Restore moves a trashed message back where it came from
func (s *MessageService) Restore(ctx context.Context, userID, messageID uint) error {
	msg, binding, err := s.ownedMessage(userID, messageID)
	if err != nil {
		return err
	}
	return s.remote.Restore(ctx, binding, msg)
}

// SetRead flips the read flag locally and remotely
func (s *MessageService) SetRead(ctx context.Context, userID, messageID uint, isRead bool) error {
	msg, binding, err := s.ownedMessage(userID, messageID)
	if err != nil {
		return err
	}
	return s.remote.MarkRead(ctx, binding, msg, isRead)
}

func (s *MessageService) ownedMessage(userID, messageID uint) (*models.Message, *models.Binding, error) {
	msg, err := s.messages.GetByID(messageID)
	if err != nil {
		return nil, nil, errs.Wrap(errs.CodeNotFound, err, "message %d not found", messageID)
	}
	if msg.OwnerID != userID {
		return nil, nil, errs.New(errs.CodeNotFound, "message %d not found", messageID)
	}
	// Local-only actions still work without a binding; the remote
	// push is simply skipped.
	binding, err := s.bindings.GetBinding(userID)
	if err != nil {
		binding = nil
	}
	return msg, binding, nil
}
