package services

import (
	"context"
	"sync"
	"time"

	"mailmirror/internal/graph"
	"mailmirror/internal/models"
	"mailmirror/internal/repository"
	"mailmirror/internal/utils"
)

// Window for matching a provider echo of locally sent mail by
// owner + subject + sent time. Best-effort: ambiguous under identical
// subjects sent in quick succession.
const recentlySentWindow = 5 * time.Minute

// trackedFolders are the folders mirrored by sync, in fetch order
var trackedFolders = []models.Folder{
	models.FolderInbox,
	models.FolderSent,
	models.FolderTrash,
}

// remoteFolderID maps a tracked local folder to its Graph folder id
func remoteFolderID(folder models.Folder) string {
	switch folder {
	case models.FolderInbox:
		return graph.FolderInbox
	case models.FolderSent:
		return graph.FolderSentItems
	case models.FolderTrash:
		return graph.FolderDeletedItems
	case models.FolderDrafts:
		return graph.FolderDrafts
	case models.FolderArchive:
		return graph.FolderArchive
	}
	return ""
}

// localFolderFor maps a Graph folder id to the local taxonomy
func localFolderFor(remoteID string) models.Folder {
	switch remoteID {
	case graph.FolderInbox:
		return models.FolderInbox
	case graph.FolderSentItems:
		return models.FolderSent
	case graph.FolderDeletedItems:
		return models.FolderTrash
	case graph.FolderDrafts:
		return models.FolderDrafts
	case graph.FolderArchive:
		return models.FolderArchive
	}
	return models.FolderInbox
}

// FolderResult is one folder's outcome within a sync run
type FolderResult struct {
	Folder  models.Folder `json:"folder"`
	Added   int           `json:"added"`
	Updated int           `json:"updated"`
	Deleted int           `json:"deleted"`
	Cursor  string        `json:"-"`
	Err     string        `json:"error,omitempty"`
}

// AggregateResult sums the per-folder outcomes of a sync run.
// A folder error never fails the run; it is carried in that folder's
// result.
type AggregateResult struct {
	Added   int            `json:"added"`
	Updated int            `json:"updated"`
	Deleted int            `json:"deleted"`
	Folders []FolderResult `json:"folders"`
}

func (a *AggregateResult) add(fr *FolderResult) {
	a.Added += fr.Added
	a.Updated += fr.Updated
	a.Deleted += fr.Deleted
	a.Folders = append(a.Folders, *fr)
}

// DeltaSyncEngine reconciles per-folder Graph change sets into the
// local mirror.
type DeltaSyncEngine struct {
	bindings    *repository.BindingRepository
	messages    *repository.MessageRepository
	attachments *repository.AttachmentRepository
	client      *graph.Client
	tokens      *TokenService
	content     *ContentResolver
	logger      *utils.Logger

	fullSyncDefaultCount int
	fullSyncMaxCount     int
}

// NewDeltaSyncEngine creates a new delta sync engine
func NewDeltaSyncEngine(
	bindings *repository.BindingRepository,
	messages *repository.MessageRepository,
	attachments *repository.AttachmentRepository,
	client *graph.Client,
	tokens *TokenService,
	content *ContentResolver,
	fullSyncDefaultCount, fullSyncMaxCount int,
) *DeltaSyncEngine {
	if fullSyncDefaultCount <= 0 {
		fullSyncDefaultCount = 500
	}
	if fullSyncMaxCount <= 0 {
		fullSyncMaxCount = 2000
	}
	return &DeltaSyncEngine{
		bindings:             bindings,
		messages:             messages,
		attachments:          attachments,
		client:               client,
		tokens:               tokens,
		content:              content,
		logger:               utils.NewLogger("DeltaSync"),
		fullSyncDefaultCount: fullSyncDefaultCount,
		fullSyncMaxCount:     fullSyncMaxCount,
	}
}

// RunIncremental fetches and reconciles each tracked folder's delta
// change set. The folder fetches run concurrently; each folder writes
// only its own result slot. Token refresh failure is the only fatal
// error, folder failures are folder-scoped.
func (e *DeltaSyncEngine) RunIncremental(ctx context.Context, binding *models.Binding) (*AggregateResult, error) {
	access, err := e.tokens.EnsureFreshToken(ctx, binding)
	if err != nil {
		return nil, err
	}

	results := make([]*FolderResult, len(trackedFolders))
	var wg sync.WaitGroup
	for i, folder := range trackedFolders {
		wg.Add(1)
		go func(slot int, folder models.Folder) {
			defer wg.Done()
			results[slot] = e.syncFolderDelta(ctx, binding, access, folder)
		}(i, folder)
	}
	wg.Wait()

	aggregate := &AggregateResult{}
	for _, fr := range results {
		aggregate.add(fr)
	}
	e.logger.Info("Incremental sync for binding %d: added=%d updated=%d deleted=%d",
		binding.ID, aggregate.Added, aggregate.Updated, aggregate.Deleted)
	return aggregate, nil
}

// syncFolderDelta runs one folder's delta fetch and reconciliation
func (e *DeltaSyncEngine) syncFolderDelta(ctx context.Context, binding *models.Binding, access string, folder models.Folder) *FolderResult {
	result := &FolderResult{Folder: folder}
	remoteID := remoteFolderID(folder)

	cursor, err := e.bindings.DeltaCursor(binding, folder)
	if err != nil {
		result.Err = err.Error()
		return result
	}

	page, err := e.client.Delta(ctx, access, remoteID, cursor, 0)
	if err != nil && graph.IsDeltaExpired(err) {
		// Stale cursor: drop it and retry once from scratch, for this
		// folder only.
		e.logger.Warn("Delta cursor expired for binding %d folder %s, retrying full", binding.ID, folder)
		if clearErr := e.bindings.UpdateDeltaCursor(binding.ID, folder, ""); clearErr != nil {
			e.logger.Error("Failed to clear cursor for binding %d folder %s: %v", binding.ID, folder, clearErr)
		}
		page, err = e.client.Delta(ctx, access, remoteID, "", 0)
	}
	if err != nil {
		result.Err = err.Error()
		e.logger.Error("Delta fetch failed for binding %d folder %s: %v", binding.ID, folder, err)
		return result
	}

	seen := make(map[string]bool, len(page.Value))
	for _, item := range page.Value {
		if item.Removed != nil {
			// Tombstone: leaving it out of the seen set lets deletion
			// reconciliation pick it up below.
			continue
		}
		seen[item.ID] = true
		e.applyRemoteMessage(ctx, binding, folder, &item.Message, result)
	}

	// Cursor progression must survive even a zero-change poll
	if page.DeltaLink != "" {
		if err := e.bindings.UpdateDeltaCursor(binding.ID, folder, page.DeltaLink); err != nil {
			e.logger.Error("Failed to persist cursor for binding %d folder %s: %v", binding.ID, folder, err)
		} else {
			result.Cursor = page.DeltaLink
		}
	}

	if folder != models.FolderTrash && len(page.Value) > 0 {
		e.reconcileDeletions(binding, folder, seen, result)
	}

	return result
}

// applyRemoteMessage reconciles one remote message into the mirror
func (e *DeltaSyncEngine) applyRemoteMessage(ctx context.Context, binding *models.Binding, folder models.Folder, remote *graph.Message, result *FolderResult) {
	existing, err := e.messages.GetByExternalID(binding.UserID, remote.ID)
	if err != nil {
		e.logger.Error("Lookup failed for message %s: %v", remote.ID, err)
		return
	}

	if existing != nil {
		// User-initiated deletion is authoritative: a trashed copy is
		// never moved or resurrected by sync.
		if existing.Folder == models.FolderTrash {
			return
		}
		// The provider is the source of truth for read state during
		// sync. The message stays in whatever local folder it occupies.
		if existing.IsRead != remote.IsRead {
			if err := e.messages.UpdateReadFlag(existing.ID, remote.IsRead); err != nil {
				e.logger.Error("Failed to update read flag on message %d: %v", existing.ID, err)
				return
			}
			result.Updated++
		}
		return
	}

	// Mail the user composed locally comes back through the Sent delta
	// feed; link it instead of inserting a duplicate.
	if folder == models.FolderSent && remote.SentDateTime != nil {
		local, err := e.messages.FindRecentlySent(binding.UserID, remote.Subject, *remote.SentDateTime, recentlySentWindow)
		if err != nil {
			e.logger.Error("Recently-sent lookup failed: %v", err)
		} else if local != nil {
			if err := e.messages.SetExternalID(local.ID, remote.ID); err != nil {
				e.logger.Error("Failed to link sent message %d: %v", local.ID, err)
				return
			}
			result.Updated++
			return
		}
	}

	msg := &models.Message{
		OwnerID:           binding.UserID,
		Type:              models.MessageTypeEmail,
		Folder:            folder,
		ExternalMessageID: remote.ID,
		Subject:           remote.Subject,
		Body:              remote.Body.Content,
		BodyPreview:       remote.BodyPreview,
		Labels:            models.StringSlice{"External"},
		IsRead:            remote.IsRead,
		IsDraft:           remote.IsDraft,
		HasAttachments:    remote.HasAttachments,
		SentAt:            remote.SentDateTime,
		ReceivedAt:        remote.ReceivedDateTime,
	}
	if remote.From != nil {
		msg.FromAddress = remote.From.EmailAddress.Address
		msg.FromName = remote.From.EmailAddress.Name
	}
	for _, rcpt := range remote.ToRecipients {
		msg.Recipients = append(msg.Recipients, rcpt.EmailAddress.Address)
	}

	if err := e.messages.Create(msg); err != nil {
		e.logger.Error("Failed to insert message %s: %v", remote.ID, err)
		return
	}
	result.Added++

	if remote.HasAttachments {
		if _, err := e.content.SyncAttachmentMetadata(ctx, binding, remote.ID, msg.ID); err != nil {
			e.logger.Warn("Attachment metadata sync failed for message %s: %v", remote.ID, err)
		}
	}
}

// reconcileDeletions moves locally mirrored messages whose external id
// did not appear in this poll to Trash, remembering where they were.
// This is how provider-side deletes propagate.
func (e *DeltaSyncEngine) reconcileDeletions(binding *models.Binding, folder models.Folder, seen map[string]bool, result *FolderResult) {
	local, err := e.messages.ListExternalIDs(binding.UserID, folder)
	if err != nil {
		e.logger.Error("Deletion reconcile listing failed for folder %s: %v", folder, err)
		return
	}

	for id, externalID := range local {
		if seen[externalID] {
			continue
		}
		if err := e.messages.MoveToTrash(id, folder); err != nil {
			e.logger.Error("Failed to trash message %d: %v", id, err)
			continue
		}
		result.Deleted++
	}
}

// RunFull re-baselines each tracked folder sequentially: a cursorless
// delta fetch bounded by maxPerFolder. A fetch that reaches a delta
// baseline overwrites the stored cursor; one cut off at the bound
// leaves it untouched.
func (e *DeltaSyncEngine) RunFull(ctx context.Context, binding *models.Binding, maxPerFolder int) (*AggregateResult, error) {
	if maxPerFolder <= 0 {
		maxPerFolder = e.fullSyncDefaultCount
	}
	if maxPerFolder > e.fullSyncMaxCount {
		maxPerFolder = e.fullSyncMaxCount
	}

	access, err := e.tokens.EnsureFreshToken(ctx, binding)
	if err != nil {
		return nil, err
	}

	aggregate := &AggregateResult{}
	for _, folder := range trackedFolders {
		result := &FolderResult{Folder: folder}
		remoteID := remoteFolderID(folder)

		// The fetch itself is capped, not just the applied slice: the
		// client stops following next links at the bound.
		page, err := e.client.Delta(ctx, access, remoteID, "", maxPerFolder)
		if err != nil {
			result.Err = err.Error()
			e.logger.Error("Full fetch failed for binding %d folder %s: %v", binding.ID, folder, err)
			aggregate.add(result)
			continue
		}

		items := page.Value
		if len(items) > maxPerFolder {
			items = items[:maxPerFolder]
		}
		for _, item := range items {
			if item.Removed != nil {
				continue
			}
			e.applyRemoteMessage(ctx, binding, folder, &item.Message, result)
		}

		if page.DeltaLink != "" {
			if err := e.bindings.UpdateDeltaCursor(binding.ID, folder, page.DeltaLink); err != nil {
				e.logger.Error("Failed to persist baseline cursor for folder %s: %v", folder, err)
			} else {
				result.Cursor = page.DeltaLink
			}
		}
		aggregate.add(result)
	}

	e.logger.Info("Full sync for binding %d: added=%d updated=%d deleted=%d",
		binding.ID, aggregate.Added, aggregate.Updated, aggregate.Deleted)
	return aggregate, nil
}
