package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// StringSlice stores a []string as a JSON column
type StringSlice []string

// Scan implements the sql.Scanner interface
func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = []string{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if str, isString := value.(string); isString {
			bytes = []byte(str)
		} else {
			return nil
		}
	}
	return json.Unmarshal(bytes, s)
}

// Value implements the driver.Valuer interface
func (s StringSlice) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	return json.Marshal(s)
}

// ProviderType identifies an external mail provider
type ProviderType string

const (
	ProviderOutlook ProviderType = "outlook"
)

// SyncStatus is the per-binding synchronization state.
// The status column doubles as the sync lock: only one claimant may
// move a binding into Syncing at a time.
type SyncStatus string

const (
	SyncStatusActive  SyncStatus = "Active"
	SyncStatusSyncing SyncStatus = "Syncing"
	SyncStatusError   SyncStatus = "Error"
)

// SyncKind distinguishes incremental delta sync from a full re-baseline
type SyncKind string

const (
	SyncKindIncremental SyncKind = "incremental"
	SyncKindFull        SyncKind = "full"
)

// Folder is the local folder taxonomy
type Folder string

const (
	FolderInbox   Folder = "Inbox"
	FolderSent    Folder = "Sent"
	FolderDrafts  Folder = "Drafts"
	FolderTrash   Folder = "Trash"
	FolderArchive Folder = "Archive"
)

// MessageType classifies where a message originated
type MessageType string

const (
	MessageTypeInternal MessageType = "Internal"
	MessageTypeEmail    MessageType = "Email"
	MessageTypePortal   MessageType = "Portal"
)

// Binding associates a local user with one external mailbox account.
// Tokens are stored encrypted. At most one binding per (user, provider).
type Binding struct {
	ID       uint         `gorm:"primaryKey" json:"id"`
	UserID   uint         `gorm:"not null;uniqueIndex:idx_bindings_user_provider" json:"userId"`
	Provider ProviderType `gorm:"not null;default:'outlook';uniqueIndex:idx_bindings_user_provider" json:"provider"`
	Email    string       `gorm:"index" json:"email"`
	TenantID string       `json:"tenantId,omitempty"`

	AccessToken    string    `gorm:"type:text" json:"-"`
	RefreshToken   string    `gorm:"type:text" json:"-"`
	TokenExpiresAt time.Time `json:"tokenExpiresAt"`

	SyncStatus          SyncStatus `gorm:"default:'Active';index" json:"syncStatus"`
	LastSyncError       string     `json:"lastSyncError,omitempty"`
	LastSyncTime        *time.Time `json:"lastSyncTime,omitempty"`
	AutoSyncEnabled     bool       `gorm:"default:true" json:"autoSyncEnabled"`
	SyncIntervalMinutes int        `gorm:"default:15" json:"syncIntervalMinutes"`

	// One opaque delta cursor per tracked remote folder
	DeltaLinkInbox   string `gorm:"type:text" json:"-"`
	DeltaLinkSent    string `gorm:"type:text" json:"-"`
	DeltaLinkDeleted string `gorm:"type:text" json:"-"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// NeedsAutoSync reports whether the scheduler should pick this binding up
func (b *Binding) NeedsAutoSync(now time.Time) bool {
	if !b.AutoSyncEnabled || b.SyncIntervalMinutes <= 0 {
		return false
	}
	if b.LastSyncTime == nil {
		return true
	}
	return now.Sub(*b.LastSyncTime) >= time.Duration(b.SyncIntervalMinutes)*time.Minute
}

// Message is a locally mirrored (or locally composed) mail item.
// (OwnerID, ExternalMessageID) is unique among non-Trash rows; Trash
// rows are exempt so a user-deleted copy never blocks or resurrects.
type Message struct {
	ID      uint        `gorm:"primaryKey" json:"id"`
	OwnerID uint        `gorm:"not null;index:idx_messages_owner_external" json:"ownerId"`
	Type    MessageType `gorm:"default:'Email'" json:"type"`
	Folder  Folder      `gorm:"index" json:"folder"`
	// Folder the message occupied before it was moved to Trash
	OriginalFolder Folder `json:"originalFolder,omitempty"`

	// Empty for purely local drafts that were never echoed by the provider
	ExternalMessageID string `gorm:"index:idx_messages_owner_external" json:"externalMessageId,omitempty"`

	Subject     string      `json:"subject"`
	FromAddress string      `json:"fromAddress"`
	FromName    string      `json:"fromName,omitempty"`
	Recipients  StringSlice `gorm:"type:text" json:"recipients"`
	Body        string      `gorm:"type:text" json:"body,omitempty"`
	BodyPreview string      `json:"bodyPreview,omitempty"`
	Labels      StringSlice `gorm:"type:text" json:"labels,omitempty"`

	IsRead         bool `gorm:"default:false" json:"isRead"`
	IsDraft        bool `gorm:"default:false" json:"isDraft"`
	HasAttachments bool `gorm:"default:false" json:"hasAttachments"`

	SentAt     *time.Time `json:"sentAt,omitempty"`
	ReceivedAt *time.Time `gorm:"index" json:"receivedAt,omitempty"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// RestoreFolder is where an un-deleted message returns to
func (m *Message) RestoreFolder() Folder {
	if m.OriginalFolder != "" {
		return m.OriginalFolder
	}
	return FolderInbox
}

// MessageAttachment mirrors attachment metadata for a local message.
// Content is streamed from the provider on demand; StoragePath is
// reserved for a local content cache and stays empty.
type MessageAttachment struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	MessageID uint `gorm:"not null;index" json:"messageId"`

	// Unique once populated; dedup key for attachment metadata sync
	ExternalAttachmentID string `gorm:"index" json:"externalAttachmentId,omitempty"`

	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	IsInline    bool   `gorm:"default:false" json:"isInline"`
	ContentID   string `json:"contentId,omitempty"`
	StoragePath string `json:"storagePath,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
