package api

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"

	"mailmirror/internal/models"
	"mailmirror/internal/services"
	"mailmirror/internal/utils"
)

// BindingHandler exposes the mailbox binding lifecycle over HTTP
type BindingHandler struct {
	bindings *services.BindingService
	sync     *services.SyncService
	logger   *utils.Logger
}

// NewBindingHandler creates a new binding handler
func NewBindingHandler(bindings *services.BindingService, sync *services.SyncService) *BindingHandler {
	return &BindingHandler{
		bindings: bindings,
		sync:     sync,
		logger:   utils.NewLogger("BindingHandler"),
	}
}

// AuthorizeURLHandler returns the provider consent URL for the caller
func (h *BindingHandler) AuthorizeURLHandler(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenantId")

	url, state, err := h.bindings.BeginAuthorization(UserID(r), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"authorizeUrl": url,
		"state":        state,
	})
}

// CallbackHandler handles the OAuth redirect. It is anonymous (the
// browser arrives without local credentials) and renders a small HTML
// result page instead of JSON.
func (h *BindingHandler) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	code := query.Get("code")
	state := query.Get("state")
	errParam := query.Get("error")
	if desc := query.Get("error_description"); errParam != "" && desc != "" {
		errParam = fmt.Sprintf("%s: %s", errParam, desc)
	}

	binding, err := h.bindings.CompleteAuthorization(r.Context(), code, state, errParam)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err != nil {
		h.logger.Warn("Authorization callback failed: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, callbackPage, "Binding failed", html.EscapeString(err.Error()))
		return
	}

	fmt.Fprintf(w, callbackPage, "Mailbox bound",
		fmt.Sprintf("%s is now connected. You can close this window.", html.EscapeString(binding.Email)))
}

const callbackPage = `<!DOCTYPE html>
<html><head><title>Mailbox binding</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 4em;">
<h2>%s</h2><p>%s</p>
</body></html>`

// CurrentHandler returns the caller's binding
func (h *BindingHandler) CurrentHandler(w http.ResponseWriter, r *http.Request) {
	binding, err := h.bindings.GetBinding(UserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, binding)
}

// UnbindHandler removes the binding and purges the local mirror
func (h *BindingHandler) UnbindHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.bindings.Unbind(UserID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unbound"})
}

// UpdateSettingsRequest is the settings update payload
type UpdateSettingsRequest struct {
	AutoSyncEnabled     bool `json:"autoSyncEnabled"`
	SyncIntervalMinutes int  `json:"syncIntervalMinutes"`
}

// UpdateSettingsHandler changes auto-sync behavior
func (h *BindingHandler) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	binding, err := h.bindings.UpdateSettings(UserID(r), req.AutoSyncEnabled, req.SyncIntervalMinutes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, binding)
}

// SyncHandler triggers an incremental sync
func (h *BindingHandler) SyncHandler(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.sync.SyncNow(r.Context(), UserID(r), models.SyncKindIncremental, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// FullSyncRequest is the full sync payload
type FullSyncRequest struct {
	MaxCount int `json:"maxCount"`
}

// FullSyncHandler triggers a full re-baseline sync
func (h *BindingHandler) FullSyncHandler(w http.ResponseWriter, r *http.Request) {
	var req FullSyncRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	outcome, err := h.sync.SyncNow(r.Context(), UserID(r), models.SyncKindFull, req.MaxCount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}
