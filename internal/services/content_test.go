package services

import (
	"context"
	"strings"
	"testing"

	"mailmirror/internal/graph"
	"mailmirror/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBodyPreview(t *testing.T) {
	assert.Equal(t, "Hello world", BodyPreview("<p>Hello <b>world</b></p>"))
	assert.Equal(t, "spaced out", BodyPreview("  spaced \n\t out  "))
	assert.Equal(t, "", BodyPreview("<div></div>"))

	long := strings.Repeat("a", 500)
	assert.Len(t, BodyPreview(long), bodyPreviewLength)
}

func TestEnsureBodyFetchesAndCaches(t *testing.T) {
	f := newSyncFixture(t)

	require.NoError(t, f.messages.Create(&models.Message{
		OwnerID:           1,
		ExternalMessageID: "m1",
		Type:              models.MessageTypeEmail,
		Folder:            models.FolderInbox,
		Subject:           "Hello",
		BodyPreview:       "Hello wor",
	}))
	stored, err := f.messages.GetByExternalID(1, "m1")
	require.NoError(t, err)

	f.stub.fullBodies["m1"] = graph.Message{
		ID:   "m1",
		Body: graph.ItemBody{ContentType: "html", Content: "<p>Hello world</p>"},
	}

	result := f.content.EnsureBody(context.Background(), f.binding, stored)
	assert.Equal(t, "<p>Hello world</p>", result.Body)
	assert.Equal(t, "Hello world", result.BodyPreview)

	// Cached: the mirror row carries the body now
	reloaded, err := f.messages.GetByID(stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "<p>Hello world</p>", reloaded.Body)
}

func TestEnsureBodySkipsWhenPresentOrLocal(t *testing.T) {
	f := newSyncFixture(t)

	withBody := &models.Message{ID: 1, ExternalMessageID: "m1", Body: "already here"}
	assert.Equal(t, "already here", f.content.EnsureBody(context.Background(), f.binding, withBody).Body)

	localOnly := &models.Message{ID: 2}
	assert.Empty(t, f.content.EnsureBody(context.Background(), f.binding, localOnly).Body)
}

func TestEnsureBodySwallowsFetchFailure(t *testing.T) {
	f := newSyncFixture(t)

	require.NoError(t, f.messages.Create(&models.Message{
		OwnerID:           1,
		ExternalMessageID: "missing-upstream",
		Type:              models.MessageTypeEmail,
		Folder:            models.FolderInbox,
	}))
	stored, err := f.messages.GetByExternalID(1, "missing-upstream")
	require.NoError(t, err)

	result := f.content.EnsureBody(context.Background(), f.binding, stored)
	assert.Empty(t, result.Body, "a fetch failure leaves the mirror untouched")
}

func TestRewriteInlineImages(t *testing.T) {
	f := newSyncFixture(t)

	f.stub.attachments["m1"] = []graph.Attachment{
		{ID: "a1", Name: "logo.png", ContentType: "image/png", IsInline: true, ContentID: "Logo@X", ContentBytes: "aW1n"},
		{ID: "a2", Name: "report.pdf", ContentType: "application/pdf", ContentBytes: "cGRm"},
	}

	// Content id matching is case-insensitive
	msg := &models.Message{
		ID:                1,
		ExternalMessageID: "m1",
		Body:              `<img src="cid:LOGO@x"> and <img src="cid:unknown@x">`,
	}

	body := f.content.RewriteInlineImages(context.Background(), f.binding, msg)
	assert.Contains(t, body, `src="data:image/png;base64,aW1n"`)
	assert.Contains(t, body, `src="cid:unknown@x"`, "references with no matching attachment stay untouched")
	assert.NotContains(t, body, "cid:LOGO@x")

	// Rewritten bodies contain no cid: reference, so a second pass is a
	// no-op that never hits the provider.
	rewritten := &models.Message{ID: 1, ExternalMessageID: "m1", Body: `<img src="data:image/png;base64,aW1n">`}
	assert.Equal(t, rewritten.Body, f.content.RewriteInlineImages(context.Background(), f.binding, rewritten))
}

func TestRewriteInlineImagesBackgroundAttribute(t *testing.T) {
	f := newSyncFixture(t)

	f.stub.attachments["m1"] = []graph.Attachment{
		{ID: "a1", ContentType: "image/jpeg", IsInline: true, ContentID: "bg@x", ContentBytes: "anBn"},
	}

	msg := &models.Message{
		ID:                1,
		ExternalMessageID: "m1",
		Body:              `<td background='cid:bg@x'>`,
	}
	body := f.content.RewriteInlineImages(context.Background(), f.binding, msg)
	assert.Contains(t, body, `background="data:image/jpeg;base64,anBn"`)
}

func TestRewriteInlineImagesNoLocalEcho(t *testing.T) {
	f := newSyncFixture(t)

	// A locally composed message has no external id; the body passes
	// through even when it mentions cid:.
	msg := &models.Message{ID: 1, Body: `<img src="cid:x@y">`}
	assert.Equal(t, msg.Body, f.content.RewriteInlineImages(context.Background(), f.binding, msg))
}

func TestSyncAttachmentMetadata(t *testing.T) {
	f := newSyncFixture(t)

	require.NoError(t, f.messages.Create(&models.Message{
		OwnerID:           1,
		ExternalMessageID: "m1",
		Type:              models.MessageTypeEmail,
		Folder:            models.FolderInbox,
		HasAttachments:    true,
	}))
	stored, err := f.messages.GetByExternalID(1, "m1")
	require.NoError(t, err)

	f.stub.attachments["m1"] = []graph.Attachment{
		{ID: "att-1", Name: "a.pdf", ContentType: "application/pdf", Size: 10},
		{ID: "att-2", Name: "b.png", ContentType: "image/png", IsInline: true, ContentID: "b@x"},
		{ID: "att-3", Name: "c.zip", ContentType: "application/zip", Size: 99},
	}

	count, err := f.content.SyncAttachmentMetadata(context.Background(), f.binding, "m1", stored.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "inline attachments are excluded")

	// Second pass dedupes by external attachment id
	count, err = f.content.SyncAttachmentMetadata(context.Background(), f.binding, "m1", stored.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	rows, err := f.attachments.ListByMessage(stored.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	for _, row := range rows {
		assert.Empty(t, row.StoragePath)
	}
}
