package graph

import "time"

// Well-known mail folder ids in the Graph API
const (
	FolderInbox        = "inbox"
	FolderSentItems    = "sentitems"
	FolderDrafts       = "drafts"
	FolderDeletedItems = "deleteditems"
	FolderArchive      = "archive"
)

// TokenResponse is the provider token endpoint payload
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Token is a resolved token pair with an absolute expiry
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Profile is the subset of /me used to resolve the mailbox address
type Profile struct {
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// EmailAddress returns the best address for the account
func (p *Profile) EmailAddress() string {
	if p.Mail != "" {
		return p.Mail
	}
	return p.UserPrincipalName
}

// EmailAddress is a name/address pair
type EmailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// Recipient wraps an email address in the Graph envelope shape
type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

// ItemBody is a message body with its content type
type ItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// Message is a Graph mail message
type Message struct {
	ID               string      `json:"id"`
	Subject          string      `json:"subject"`
	BodyPreview      string      `json:"bodyPreview"`
	Body             ItemBody    `json:"body"`
	From             *Recipient  `json:"from,omitempty"`
	ToRecipients     []Recipient `json:"toRecipients,omitempty"`
	CcRecipients     []Recipient `json:"ccRecipients,omitempty"`
	IsRead           bool        `json:"isRead"`
	IsDraft          bool        `json:"isDraft"`
	HasAttachments   bool        `json:"hasAttachments"`
	SentDateTime     *time.Time  `json:"sentDateTime,omitempty"`
	ReceivedDateTime *time.Time  `json:"receivedDateTime,omitempty"`
}

// MessageList is a paged message collection
type MessageList struct {
	Value    []Message `json:"value"`
	NextLink string    `json:"@odata.nextLink,omitempty"`
}

// RemovedInfo marks a tombstone entry in a delta page
type RemovedInfo struct {
	Reason string `json:"reason"`
}

// DeltaMessage is a delta page entry; Removed is set for tombstones
type DeltaMessage struct {
	Message
	Removed *RemovedInfo `json:"@removed,omitempty"`
}

// DeltaPage is the aggregated result of one delta query.
// DeltaLink is the cursor to present on the next incremental call.
type DeltaPage struct {
	Value     []DeltaMessage `json:"value"`
	NextLink  string         `json:"@odata.nextLink,omitempty"`
	DeltaLink string         `json:"@odata.deltaLink,omitempty"`
}

// Attachment is Graph attachment metadata, plus base64 content when the
// single-attachment endpoint is used.
type Attachment struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size"`
	IsInline     bool   `json:"isInline"`
	ContentID    string `json:"contentId,omitempty"`
	ContentBytes string `json:"contentBytes,omitempty"`
}

// AttachmentList is the attachment collection payload
type AttachmentList struct {
	Value []Attachment `json:"value"`
}

// FileAttachment is an outbound attachment on sendMail
type FileAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

// SendMessage is the outbound message envelope
type SendMessage struct {
	Subject      string           `json:"subject"`
	Body         ItemBody         `json:"body"`
	ToRecipients []Recipient      `json:"toRecipients"`
	CcRecipients []Recipient      `json:"ccRecipients,omitempty"`
	Attachments  []FileAttachment `json:"attachments,omitempty"`
}

// SendMailRequest is the /me/sendMail payload
type SendMailRequest struct {
	Message         SendMessage `json:"message"`
	SaveToSentItems bool        `json:"saveToSentItems"`
}

// moveRequest is the /move payload
type moveRequest struct {
	DestinationID string `json:"destinationId"`
}

// readPatch is the PATCH payload toggling the read flag
type readPatch struct {
	IsRead bool `json:"isRead"`
}

// apiError is the Graph error envelope, used for logging only
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
