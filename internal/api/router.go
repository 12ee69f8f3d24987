package api

import (
	"net/http"

	"mailmirror/internal/utils"

	"github.com/gorilla/mux"
)

// NewRouter wires all handlers. Every route requires the forwarded
// user id except the OAuth callback, which the provider redirects to
// directly, and the health check.
func NewRouter(bindingHandler *BindingHandler, messageHandler *MessageHandler) http.Handler {
	router := mux.NewRouter()

	logger := utils.NewLogger("HTTP")
	router.Use(LoggingMiddleware(logger))

	apiRouter := router.PathPrefix("/api").Subrouter()

	// Public endpoints
	apiRouter.HandleFunc("/health", HealthCheckHandler).Methods("GET")
	apiRouter.HandleFunc("/bindings/callback", bindingHandler.CallbackHandler).Methods("GET")

	// Authenticated endpoints
	authed := apiRouter.NewRoute().Subrouter()
	authed.Use(UserAuthMiddleware)

	authed.HandleFunc("/bindings/authorize-url", bindingHandler.AuthorizeURLHandler).Methods("GET")
	authed.HandleFunc("/bindings/current", bindingHandler.CurrentHandler).Methods("GET")
	authed.HandleFunc("/bindings/unbind", bindingHandler.UnbindHandler).Methods("POST")
	authed.HandleFunc("/bindings/settings", bindingHandler.UpdateSettingsHandler).Methods("PUT")
	authed.HandleFunc("/bindings/sync", bindingHandler.SyncHandler).Methods("POST")
	authed.HandleFunc("/bindings/sync/full", bindingHandler.FullSyncHandler).Methods("POST")

	authed.HandleFunc("/messages", messageHandler.ListHandler).Methods("GET")
	authed.HandleFunc("/messages/send", messageHandler.SendHandler).Methods("POST")
	authed.HandleFunc("/messages/{id}", messageHandler.DetailHandler).Methods("GET")
	authed.HandleFunc("/messages/{id}", messageHandler.DeleteHandler).Methods("DELETE")
	authed.HandleFunc("/messages/{id}/restore", messageHandler.RestoreHandler).Methods("POST")
	authed.HandleFunc("/messages/{id}/attachments/{attachmentId}", messageHandler.AttachmentDownloadHandler).Methods("GET")
	authed.HandleFunc("/messages/{id}/read", messageHandler.ReadHandler).Methods("PUT")

	return router
}

// HealthCheckHandler reports service liveness
func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
