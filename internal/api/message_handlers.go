package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"mailmirror/internal/models"
	"mailmirror/internal/services"
	"mailmirror/internal/utils"

	"github.com/gorilla/mux"
)

// MessageHandler exposes the mirrored mailbox over HTTP
type MessageHandler struct {
	messages *services.MessageService
	remote   *services.RemoteActions
	bindings *services.BindingService
	logger   *utils.Logger
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(messages *services.MessageService, remote *services.RemoteActions, bindings *services.BindingService) *MessageHandler {
	return &MessageHandler{
		messages: messages,
		remote:   remote,
		bindings: bindings,
		logger:   utils.NewLogger("MessageHandler"),
	}
}

func messageID(r *http.Request) (uint, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// ListHandler returns one folder page
func (h *MessageHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	folder := models.Folder(query.Get("folder"))
	if folder == "" {
		folder = models.FolderInbox
	}
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))

	msgs, err := h.messages.List(UserID(r), folder, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages": msgs,
		"count":    len(msgs),
	})
}

// DetailHandler returns one message with content resolved on demand
func (h *MessageHandler) DetailHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := messageID(r)
	if !ok {
		http.Error(w, "Invalid message id", http.StatusBadRequest)
		return
	}

	msg, atts, err := h.messages.GetDetail(r.Context(), UserID(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":     msg,
		"attachments": atts,
	})
}

// AttachmentDownloadHandler streams one attachment's content
func (h *MessageHandler) AttachmentDownloadHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := messageID(r)
	if !ok {
		http.Error(w, "Invalid message id", http.StatusBadRequest)
		return
	}
	rawAtt := mux.Vars(r)["attachmentId"]
	attID, err := strconv.ParseUint(rawAtt, 10, 32)
	if err != nil || attID == 0 {
		http.Error(w, "Invalid attachment id", http.StatusBadRequest)
		return
	}

	content, err := h.messages.GetAttachmentContent(r.Context(), UserID(r), id, uint(attID))
	if err != nil {
		writeError(w, err)
		return
	}

	contentType := content.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+content.Name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content.Data)
}

// DeleteHandler moves a message to Trash
func (h *MessageHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := messageID(r)
	if !ok {
		http.Error(w, "Invalid message id", http.StatusBadRequest)
		return
	}

	if err := h.messages.Delete(r.Context(), UserID(r), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// RestoreHandler moves a trashed message back to its original folder
func (h *MessageHandler) RestoreHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := messageID(r)
	if !ok {
		http.Error(w, "Invalid message id", http.StatusBadRequest)
		return
	}

	if err := h.messages.Restore(r.Context(), UserID(r), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

// ReadRequest is the read-flag payload
type ReadRequest struct {
	IsRead bool `json:"isRead"`
}

// ReadHandler flips the read flag
func (h *MessageHandler) ReadHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := messageID(r)
	if !ok {
		http.Error(w, "Invalid message id", http.StatusBadRequest)
		return
	}
	var req ReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.messages.SetRead(r.Context(), UserID(r), id, req.IsRead); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// SendRequest is the outbound mail payload
type SendRequest struct {
	To      []string `json:"to"`
	Cc      []string `json:"cc,omitempty"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// SendHandler sends mail through the bound provider account
func (h *MessageHandler) SendHandler(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	binding, err := h.bindings.GetBinding(UserID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	msg, err := h.remote.SendMail(r.Context(), binding, req.To, req.Cc, req.Subject, req.Body, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}
