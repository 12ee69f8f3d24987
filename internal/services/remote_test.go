package services

import (
	"context"
	"encoding/base64"
	"testing"

	"mailmirror/internal/errs"
	"mailmirror/internal/graph"
	"mailmirror/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkReadPushesRemotely(t *testing.T) {
	f := newSyncFixture(t)

	msg := &models.Message{
		OwnerID:           1,
		ExternalMessageID: "m1",
		Type:              models.MessageTypeEmail,
		Folder:            models.FolderInbox,
	}
	require.NoError(t, f.messages.Create(msg))

	require.NoError(t, f.remote.MarkRead(context.Background(), f.binding, msg, true))
	assert.True(t, msg.IsRead)

	reloaded, err := f.messages.GetByID(msg.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsRead)
	assert.True(t, f.stub.readFlags["m1"])
}

func TestMarkReadLocalOnlyMessage(t *testing.T) {
	f := newSyncFixture(t)

	msg := &models.Message{OwnerID: 1, Type: models.MessageTypeEmail, Folder: models.FolderInbox}
	require.NoError(t, f.messages.Create(msg))

	// No external id and no binding: the local flag still flips
	require.NoError(t, f.remote.MarkRead(context.Background(), nil, msg, true))
	reloaded, err := f.messages.GetByID(msg.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsRead)
	assert.Empty(t, f.stub.readFlags)
}

func TestDeleteMovesToTrashAndPushes(t *testing.T) {
	f := newSyncFixture(t)

	msg := &models.Message{
		OwnerID:           1,
		ExternalMessageID: "m1",
		Type:              models.MessageTypeEmail,
		Folder:            models.FolderInbox,
	}
	require.NoError(t, f.messages.Create(msg))

	require.NoError(t, f.remote.Delete(context.Background(), f.binding, msg))

	reloaded, err := f.messages.GetByID(msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FolderTrash, reloaded.Folder)
	assert.Equal(t, models.FolderInbox, reloaded.OriginalFolder)
	assert.Equal(t, graph.FolderDeletedItems, f.stub.moves["m1"])

	// Deleting a trashed message is a no-op
	require.NoError(t, f.remote.Delete(context.Background(), f.binding, reloaded))
}

func TestRestoreReturnsToOriginalFolder(t *testing.T) {
	f := newSyncFixture(t)

	msg := &models.Message{
		OwnerID:           1,
		ExternalMessageID: "m1",
		Type:              models.MessageTypeEmail,
		Folder:            models.FolderTrash,
		OriginalFolder:    models.FolderSent,
	}
	require.NoError(t, f.messages.Create(msg))

	require.NoError(t, f.remote.Restore(context.Background(), f.binding, msg))

	reloaded, err := f.messages.GetByID(msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FolderSent, reloaded.Folder)
	assert.Empty(t, reloaded.OriginalFolder)
	assert.Equal(t, graph.FolderSentItems, f.stub.moves["m1"])

	// Only trashed messages can be restored
	err = f.remote.Restore(context.Background(), f.binding, reloaded)
	assert.Equal(t, errs.CodeInvalidRequest, errs.CodeOf(err))
}

func TestRestoreDefaultsToInbox(t *testing.T) {
	f := newSyncFixture(t)

	msg := &models.Message{
		OwnerID: 1,
		Type:    models.MessageTypeEmail,
		Folder:  models.FolderTrash,
	}
	require.NoError(t, f.messages.Create(msg))

	require.NoError(t, f.remote.Restore(context.Background(), f.binding, msg))
	reloaded, err := f.messages.GetByID(msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FolderInbox, reloaded.Folder)
}

func TestSendMailRecordsLocalCopy(t *testing.T) {
	f := newSyncFixture(t)

	msg, err := f.remote.SendMail(context.Background(), f.binding,
		[]string{"to@x.com"}, []string{"cc@x.com"}, "Hi", "<p>Hi</p>",
		[]OutboundAttachment{{Name: "a.txt", ContentType: "text/plain", Content: []byte("hello")}})
	require.NoError(t, err)

	require.Len(t, f.stub.sent, 1)
	sent := f.stub.sent[0]
	assert.Equal(t, "Hi", sent.Message.Subject)
	assert.True(t, sent.SaveToSentItems)
	require.Len(t, sent.Message.ToRecipients, 1)
	assert.Equal(t, "to@x.com", sent.Message.ToRecipients[0].EmailAddress.Address)
	require.Len(t, sent.Message.Attachments, 1)
	assert.Equal(t, "#microsoft.graph.fileAttachment", sent.Message.Attachments[0].ODataType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("hello")), sent.Message.Attachments[0].ContentBytes)

	// The local copy is linkable by the next Sent sync: no external id yet
	assert.Equal(t, models.FolderSent, msg.Folder)
	assert.Empty(t, msg.ExternalMessageID)
	assert.True(t, msg.IsRead)
	assert.NotNil(t, msg.SentAt)
	assert.Equal(t, "user@example.com", msg.FromAddress)

	stored, err := f.messages.ListByFolder(1, models.FolderSent, 50, 0)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestSendMailRequiresRecipients(t *testing.T) {
	f := newSyncFixture(t)

	_, err := f.remote.SendMail(context.Background(), f.binding, nil, nil, "Hi", "body", nil)
	assert.Equal(t, errs.CodeInvalidRequest, errs.CodeOf(err))
	assert.Empty(t, f.stub.sent)
}
