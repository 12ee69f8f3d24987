package services

import (
	"context"
	"encoding/base64"
	"time"

	"mailmirror/internal/errs"
	"mailmirror/internal/graph"
	"mailmirror/internal/models"
	"mailmirror/internal/repository"
	"mailmirror/internal/utils"
)

// RemoteActions propagates local mailbox actions back to the provider.
// Local state is updated first and always wins; the remote call is
// best-effort and its failure is only logged.
type RemoteActions struct {
	messages *repository.MessageRepository
	client   *graph.Client
	tokens   *TokenService
	logger   *utils.Logger
}

// NewRemoteActions creates a new remote actions service
func NewRemoteActions(messages *repository.MessageRepository, client *graph.Client, tokens *TokenService) *RemoteActions {
	return &RemoteActions{
		messages: messages,
		client:   client,
		tokens:   tokens,
		logger:   utils.NewLogger("RemoteActions"),
	}
}

// MarkRead sets the local read flag and mirrors it remotely
func (s *RemoteActions) MarkRead(ctx context.Context, binding *models.Binding, msg *models.Message, isRead bool) error {
	if err := s.messages.UpdateReadFlag(msg.ID, isRead); err != nil {
		return err
	}
	msg.IsRead = isRead

	if msg.ExternalMessageID == "" || binding == nil {
		return nil
	}
	access, err := s.tokens.EnsureFreshToken(ctx, binding)
	if err != nil {
		s.logger.Warn("Read-state push skipped for message %d: %v", msg.ID, err)
		return nil
	}
	if err := s.client.SetRead(ctx, access, msg.ExternalMessageID, isRead); err != nil {
		s.logger.Warn("Read-state push failed for message %d: %v", msg.ID, err)
	}
	return nil
}

// Delete moves the local message to Trash and the remote copy to the
// provider's deleted items folder.
func (s *RemoteActions) Delete(ctx context.Context, binding *models.Binding, msg *models.Message) error {
	if msg.Folder == models.FolderTrash {
		return nil
	}
	from := msg.Folder
	if err := s.messages.MoveToTrash(msg.ID, from); err != nil {
		return err
	}
	msg.OriginalFolder = from
	msg.Folder = models.FolderTrash

	if msg.ExternalMessageID == "" || binding == nil {
		return nil
	}
	access, err := s.tokens.EnsureFreshToken(ctx, binding)
	if err != nil {
		s.logger.Warn("Remote delete skipped for message %d: %v", msg.ID, err)
		return nil
	}
	if err := s.client.MoveMessage(ctx, access, msg.ExternalMessageID, graph.FolderDeletedItems); err != nil {
		s.logger.Warn("Remote delete failed for message %d: %v", msg.ID, err)
	}
	return nil
}

// Restore moves a trashed message back to its original folder,
// mirroring the move remotely when the target has a remote counterpart.
func (s *RemoteActions) Restore(ctx context.Context, binding *models.Binding, msg *models.Message) error {
	if msg.Folder != models.FolderTrash {
		return errs.New(errs.CodeInvalidRequest, "message %d is not in Trash", msg.ID)
	}
	target := msg.RestoreFolder()
	if err := s.messages.MoveToFolder(msg.ID, target); err != nil {
		return err
	}
	msg.Folder = target
	msg.OriginalFolder = ""

	if msg.ExternalMessageID == "" || binding == nil {
		return nil
	}
	remoteID := remoteFolderID(target)
	if remoteID == "" {
		return nil
	}
	access, err := s.tokens.EnsureFreshToken(ctx, binding)
	if err != nil {
		s.logger.Warn("Remote restore skipped for message %d: %v", msg.ID, err)
		return nil
	}
	if err := s.client.MoveMessage(ctx, access, msg.ExternalMessageID, remoteID); err != nil {
		s.logger.Warn("Remote restore failed for message %d: %v", msg.ID, err)
	}
	return nil
}

// OutboundAttachment is one attachment on an outbound message
type OutboundAttachment struct {
	Name        string
	ContentType string
	Content     []byte
}

// SendMail sends through the provider and records a local Sent copy.
// The provider echo of the sent message is linked to this copy by the
// next sync run. Unlike the enrichment paths, a send failure is fatal.
func (s *RemoteActions) SendMail(ctx context.Context, binding *models.Binding, to, cc []string, subject, body string, attachments []OutboundAttachment) (*models.Message, error) {
	if len(to) == 0 {
		return nil, errs.New(errs.CodeInvalidRequest, "no recipients")
	}

	access, err := s.tokens.EnsureFreshToken(ctx, binding)
	if err != nil {
		return nil, err
	}

	req := &graph.SendMailRequest{
		Message: graph.SendMessage{
			Subject: subject,
			Body:    graph.ItemBody{ContentType: "HTML", Content: body},
		},
		SaveToSentItems: true,
	}
	for _, addr := range to {
		req.Message.ToRecipients = append(req.Message.ToRecipients,
			graph.Recipient{EmailAddress: graph.EmailAddress{Address: addr}})
	}
	for _, addr := range cc {
		req.Message.CcRecipients = append(req.Message.CcRecipients,
			graph.Recipient{EmailAddress: graph.EmailAddress{Address: addr}})
	}
	for _, att := range attachments {
		req.Message.Attachments = append(req.Message.Attachments, graph.FileAttachment{
			ODataType:    "#microsoft.graph.fileAttachment",
			Name:         att.Name,
			ContentType:  att.ContentType,
			ContentBytes: base64.StdEncoding.EncodeToString(att.Content),
		})
	}

	if err := s.client.SendMail(ctx, access, req); err != nil {
		return nil, errs.Wrap(errs.CodeUpstream, err, "send failed")
	}

	now := time.Now()
	msg := &models.Message{
		OwnerID:        binding.UserID,
		Type:           models.MessageTypeEmail,
		Folder:         models.FolderSent,
		Subject:        subject,
		FromAddress:    binding.Email,
		Recipients:     models.StringSlice(to),
		Body:           body,
		BodyPreview:    BodyPreview(body),
		IsRead:         true,
		HasAttachments: len(attachments) > 0,
		SentAt:         &now,
		ReceivedAt:     &now,
	}
	if err := s.messages.Create(msg); err != nil {
		s.logger.Error("Sent mail but failed to record local copy: %v", err)
		return nil, err
	}
	return msg, nil
}
