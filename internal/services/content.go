package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"mailmirror/internal/errs"
	"mailmirror/internal/graph"
	"mailmirror/internal/models"
	"mailmirror/internal/repository"
	"mailmirror/internal/utils"
)

const bodyPreviewLength = 200

var (
	htmlTagPattern = regexp.MustCompile(`<[^>]*>`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
	// src="cid:..." / background="cid:..." in either quote style
	cidRefPattern = regexp.MustCompile(`(?i)(src|background)=["']cid:([^"']+)["']`)
)

// BodyPreview strips markup and truncates to a short plain-text preview
func BodyPreview(body string) string {
	text := htmlTagPattern.ReplaceAllString(body, " ")
	text = strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	if len(text) > bodyPreviewLength {
		text = text[:bodyPreviewLength]
	}
	return text
}

// ContentResolver lazily backfills message bodies, inline images and
// attachment metadata from the provider. Everything here is
// best-effort enrichment: a failure leaves the caller with whatever
// content was already present.
type ContentResolver struct {
	messages    *repository.MessageRepository
	attachments *repository.AttachmentRepository
	client      *graph.Client
	tokens      *TokenService
	logger      *utils.Logger
}

// NewContentResolver creates a new content resolver
func NewContentResolver(
	messages *repository.MessageRepository,
	attachments *repository.AttachmentRepository,
	client *graph.Client,
	tokens *TokenService,
) *ContentResolver {
	return &ContentResolver{
		messages:    messages,
		attachments: attachments,
		client:      client,
		tokens:      tokens,
		logger:      utils.NewLogger("ContentResolver"),
	}
}

// EnsureBody fetches and caches the full body when the mirror only
// holds a preview. Errors are swallowed; the message is returned with
// whatever body it has.
func (r *ContentResolver) EnsureBody(ctx context.Context, binding *models.Binding, msg *models.Message) *models.Message {
	if msg.Body != "" || msg.ExternalMessageID == "" {
		return msg
	}

	access, err := r.tokens.EnsureFreshToken(ctx, binding)
	if err != nil {
		r.logger.Warn("Body fetch skipped for message %d: %v", msg.ID, err)
		return msg
	}

	remote, err := r.client.GetMessage(ctx, access, msg.ExternalMessageID)
	if err != nil {
		r.logger.Warn("Body fetch failed for message %d: %v", msg.ID, err)
		return msg
	}

	body := remote.Body.Content
	if body == "" {
		return msg
	}
	preview := remote.BodyPreview
	if preview == "" {
		preview = BodyPreview(body)
	}

	if err := r.messages.UpdateBody(msg.ID, body, preview); err != nil {
		r.logger.Warn("Failed to cache body for message %d: %v", msg.ID, err)
		return msg
	}
	msg.Body = body
	msg.BodyPreview = preview
	return msg
}

// RewriteInlineImages replaces cid: references in the body with base64
// data URIs built from the message's inline attachments. A body with
// no cid: reference is returned unchanged, which makes the rewrite
// idempotent. References with no matching attachment stay untouched.
func (r *ContentResolver) RewriteInlineImages(ctx context.Context, binding *models.Binding, msg *models.Message) string {
	body := msg.Body
	if !strings.Contains(strings.ToLower(body), "cid:") {
		return body
	}
	if msg.ExternalMessageID == "" {
		return body
	}

	access, err := r.tokens.EnsureFreshToken(ctx, binding)
	if err != nil {
		r.logger.Warn("Inline image rewrite skipped for message %d: %v", msg.ID, err)
		return body
	}

	atts, err := r.client.ListAttachments(ctx, access, msg.ExternalMessageID)
	if err != nil {
		r.logger.Warn("Inline image rewrite failed for message %d: %v", msg.ID, err)
		return body
	}

	dataURIs := make(map[string]string)
	for _, att := range atts {
		if !att.IsInline || att.ContentID == "" || att.ContentBytes == "" {
			continue
		}
		dataURIs[strings.ToLower(att.ContentID)] = fmt.Sprintf("data:%s;base64,%s", att.ContentType, att.ContentBytes)
	}
	if len(dataURIs) == 0 {
		return body
	}

	return cidRefPattern.ReplaceAllStringFunc(body, func(match string) string {
		groups := cidRefPattern.FindStringSubmatch(match)
		uri, ok := dataURIs[strings.ToLower(groups[2])]
		if !ok {
			return match
		}
		return fmt.Sprintf(`%s="%s"`, groups[1], uri)
	})
}

// FetchAttachment downloads one attachment's content from the provider.
// Content is streamed to the caller, never written to disk.
func (r *ContentResolver) FetchAttachment(ctx context.Context, binding *models.Binding, externalMessageID, externalAttachmentID string) (*graph.Attachment, []byte, error) {
	access, err := r.tokens.EnsureFreshToken(ctx, binding)
	if err != nil {
		return nil, nil, err
	}

	att, err := r.client.GetAttachment(ctx, access, externalMessageID, externalAttachmentID)
	if err != nil {
		return nil, nil, errs.Wrap(errs.CodeUpstream, err, "attachment fetch failed")
	}
	if att.ContentBytes == "" {
		return nil, nil, errs.New(errs.CodeUpstream, "attachment %s carried no content", externalAttachmentID)
	}
	data, err := base64.StdEncoding.DecodeString(att.ContentBytes)
	if err != nil {
		return nil, nil, errs.Wrap(errs.CodeUpstream, err, "attachment content was not valid base64")
	}
	return att, data, nil
}

// SyncAttachmentMetadata mirrors the non-inline attachment metadata of
// a remote message. Inline attachments are excluded: those are served
// embedded in the HTML by RewriteInlineImages. Rows are deduped by
// external attachment id and content bytes are not downloaded here.
func (r *ContentResolver) SyncAttachmentMetadata(ctx context.Context, binding *models.Binding, externalMessageID string, localMessageID uint) (int, error) {
	access, err := r.tokens.EnsureFreshToken(ctx, binding)
	if err != nil {
		return 0, err
	}

	atts, err := r.client.ListAttachments(ctx, access, externalMessageID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, att := range atts {
		if att.IsInline {
			continue
		}
		existing, err := r.attachments.GetByExternalID(att.ID)
		if err != nil {
			return count, err
		}
		if existing != nil {
			continue
		}
		row := &models.MessageAttachment{
			MessageID:            localMessageID,
			ExternalAttachmentID: att.ID,
			Name:                 att.Name,
			ContentType:          att.ContentType,
			Size:                 att.Size,
			IsInline:             false,
			ContentID:            att.ContentID,
		}
		if err := r.attachments.Create(row); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
