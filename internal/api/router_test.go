package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mailmirror/internal/graph"
	"mailmirror/internal/models"
	"mailmirror/internal/repository"
	"mailmirror/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// apiFixture wires the full stack against a stub provider, the same
// shape as the production wiring.
type apiFixture struct {
	router      http.Handler
	provider    *httptest.Server
	bindings    *repository.BindingRepository
	messages    *repository.MessageRepository
	attachments *repository.AttachmentRepository
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Binding{}, &models.Message{}, &models.MessageAttachment{}))

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/oauth2/v2.0/token"):
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token":  "tok1",
				"refresh_token": "ref1",
				"expires_in":    3600,
			})
		case r.URL.Path == "/me":
			_ = json.NewEncoder(w).Encode(map[string]string{"mail": "bound@example.com"})
		case strings.HasSuffix(r.URL.Path, "/messages/delta"):
			_ = json.NewEncoder(w).Encode(graph.DeltaPage{})
		case r.URL.Path == "/me/sendMail":
			w.WriteHeader(http.StatusAccepted)
		case strings.Contains(r.URL.Path, "/attachments/"):
			_ = json.NewEncoder(w).Encode(graph.Attachment{
				ID: "a1", Name: "doc.pdf", ContentType: "application/pdf", ContentBytes: "cGF5bG9hZA==",
			})
		case strings.HasSuffix(r.URL.Path, "/attachments"):
			_ = json.NewEncoder(w).Encode(graph.AttachmentList{})
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(provider.Close)

	bindingRepo := repository.NewBindingRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	attachmentRepo := repository.NewAttachmentRepository(db)

	client, err := graph.NewClient(graph.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://localhost/callback",
		BaseURL:      provider.URL,
		Instance:     provider.URL,
		Timeout:      5 * time.Second,
		RateLimit:    1000,
	})
	require.NoError(t, err)

	cipher, err := services.NewTokenCipher("")
	require.NoError(t, err)
	tokens := services.NewTokenService(bindingRepo, client, cipher)
	bindingSvc := services.NewBindingService(bindingRepo, messageRepo, client, tokens, cipher, 15)
	content := services.NewContentResolver(messageRepo, attachmentRepo, client, tokens)
	state := services.NewSyncStateService(bindingRepo)
	engine := services.NewDeltaSyncEngine(bindingRepo, messageRepo, attachmentRepo, client, tokens, content, 500, 2000)
	syncSvc := services.NewSyncService(bindingRepo, state, engine)
	remote := services.NewRemoteActions(messageRepo, client, tokens)
	messageSvc := services.NewMessageService(messageRepo, attachmentRepo, bindingSvc, content, remote)

	router := NewRouter(
		NewBindingHandler(bindingSvc, syncSvc),
		NewMessageHandler(messageSvc, remote, bindingSvc),
	)

	return &apiFixture{
		router:      router,
		provider:    provider,
		bindings:    bindingRepo,
		messages:    messageRepo,
		attachments: attachmentRepo,
	}
}

func (f *apiFixture) do(method, path string, userID uint, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != 0 {
		req.Header.Set("X-User-ID", fmt.Sprintf("%d", userID))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// bindUser runs the authorize-url plus callback round trip for a user
func (f *apiFixture) bindUser(t *testing.T, userID uint) {
	t.Helper()

	rec := f.do(http.MethodGet, "/api/bindings/authorize-url", userID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var issued struct {
		AuthorizeURL string `json:"authorizeUrl"`
		State        string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))
	require.NotEmpty(t, issued.State)

	rec = f.do(http.MethodGet, "/api/bindings/callback?code=abc&state="+issued.State, 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "bound@example.com")
}

func TestHealthCheck(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/api/health", 0, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestAuthRequired(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/api/messages", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	req.Header.Set("X-User-ID", "not-a-number")
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestBindingLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	// No binding yet
	rec := f.do(http.MethodGet, "/api/bindings/current", 42, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.bindUser(t, 42)

	rec = f.do(http.MethodGet, "/api/bindings/current", 42, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var binding models.Binding
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &binding))
	assert.Equal(t, "bound@example.com", binding.Email)
	// Tokens never leak through the API
	assert.NotContains(t, rec.Body.String(), "tok1")
	assert.NotContains(t, rec.Body.String(), "ref1")

	rec = f.do(http.MethodPost, "/api/bindings/unbind", 42, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(http.MethodGet, "/api/bindings/current", 42, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCallbackRejectsUnknownState(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/api/bindings/callback?code=abc&state=bogus", 0, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Binding failed")
}

func TestUpdateSettings(t *testing.T) {
	f := newAPIFixture(t)
	f.bindUser(t, 42)

	rec := f.do(http.MethodPut, "/api/bindings/settings", 42,
		UpdateSettingsRequest{AutoSyncEnabled: true, SyncIntervalMinutes: 1})
	require.Equal(t, http.StatusOK, rec.Code)
	var binding models.Binding
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &binding))
	assert.Equal(t, 5, binding.SyncIntervalMinutes, "interval is clamped, not rejected")
}

func TestSyncEndpointAndCooldown(t *testing.T) {
	f := newAPIFixture(t)
	f.bindUser(t, 42)

	rec := f.do(http.MethodPost, "/api/bindings/sync", 42, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Immediately again: cooldown rejection with a retry hint
	rec = f.do(http.MethodPost, "/api/bindings/sync", 42, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	var resp struct {
		Code              string `json:"code"`
		RetryAfterSeconds int    `json:"retryAfterSeconds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "TooSoon", resp.Code)
	assert.Greater(t, resp.RetryAfterSeconds, 0)
}

func TestFullSyncEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.bindUser(t, 42)

	rec := f.do(http.MethodPost, "/api/bindings/sync/full", 42, FullSyncRequest{MaxCount: 10})
	require.Equal(t, http.StatusOK, rec.Code)
	var outcome services.SyncOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	require.NotNil(t, outcome.Result)
}

func TestMessageEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	f.bindUser(t, 42)

	require.NoError(t, f.messages.Create(&models.Message{
		OwnerID:           42,
		ExternalMessageID: "m1",
		Type:              models.MessageTypeEmail,
		Folder:            models.FolderInbox,
		Subject:           "Hello",
		Body:              "<p>Hello</p>",
	}))
	stored, err := f.messages.GetByExternalID(42, "m1")
	require.NoError(t, err)

	rec := f.do(http.MethodGet, "/api/messages?folder=Inbox", 42, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = f.do(http.MethodGet, fmt.Sprintf("/api/messages/%d", stored.ID), 42, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Hello")

	rec = f.do(http.MethodGet, fmt.Sprintf("/api/messages/%d", stored.ID), 7, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPut, fmt.Sprintf("/api/messages/%d/read", stored.ID), 42, ReadRequest{IsRead: true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodDelete, fmt.Sprintf("/api/messages/%d", stored.ID), 42, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	trashed, err := f.messages.GetByID(stored.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FolderTrash, trashed.Folder)

	rec = f.do(http.MethodPost, fmt.Sprintf("/api/messages/%d/restore", stored.ID), 42, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	restored, err := f.messages.GetByID(stored.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FolderInbox, restored.Folder)

	rec = f.do(http.MethodGet, "/api/messages/not-a-number", 42, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAttachmentDownloadEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.bindUser(t, 42)

	require.NoError(t, f.messages.Create(&models.Message{
		OwnerID:           42,
		ExternalMessageID: "m1",
		Type:              models.MessageTypeEmail,
		Folder:            models.FolderInbox,
	}))
	stored, err := f.messages.GetByExternalID(42, "m1")
	require.NoError(t, err)

	att := &models.MessageAttachment{
		MessageID:            stored.ID,
		ExternalAttachmentID: "a1",
		Name:                 "doc.pdf",
		ContentType:          "application/pdf",
	}
	require.NoError(t, f.attachments.Create(att))

	rec := f.do(http.MethodGet, fmt.Sprintf("/api/messages/%d/attachments/%d", stored.ID, att.ID), 42, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "payload", rec.Body.String())

	rec = f.do(http.MethodGet, fmt.Sprintf("/api/messages/%d/attachments/%d", stored.ID, att.ID), 7, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.bindUser(t, 42)

	rec := f.do(http.MethodPost, "/api/messages/send", 42,
		SendRequest{To: []string{"to@x.com"}, Subject: "Hi", Body: "<p>Hi</p>"})
	require.Equal(t, http.StatusCreated, rec.Code)

	sent, err := f.messages.ListByFolder(42, models.FolderSent, 10, 0)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "Hi", sent[0].Subject)

	// Sending without a binding fails up front
	rec = f.do(http.MethodPost, "/api/messages/send", 7,
		SendRequest{To: []string{"to@x.com"}, Subject: "Hi", Body: "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Without recipients
	rec = f.do(http.MethodPost, "/api/messages/send", 42,
		SendRequest{Subject: "Hi", Body: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
