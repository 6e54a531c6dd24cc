package rest

import (
	"charity-chat/auth"
	"charity-chat/observability"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter mounts the public routes, then the token protected ones.
// socket is served behind the same token check, so a bad token is
// refused with 401 before any upgrade.
func NewRouter(log *slog.Logger, h *Handler, issuer *auth.TokenIssuer,
	socket http.Handler, metrics *observability.Metrics, healthy func() bool) *mux.Router {
	r := mux.NewRouter()
	r.Use(recoverMiddleware(log), loggingMiddleware(log, metrics))

	r.HandleFunc("/register/user", h.RegisterUser).Methods(http.MethodPost)
	r.HandleFunc("/register/charity", h.RegisterCharity).Methods(http.MethodPost)
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !healthy() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/").Subrouter()
	api.Use(auth.Middleware(issuer, func(w http.ResponseWriter, req *http.Request, err error) {
		writeError(log, w, req, err)
	}))
	api.HandleFunc("/profile", h.Profile).Methods(http.MethodGet)
	api.HandleFunc("/chats", h.ListChats).Methods(http.MethodGet)
	api.HandleFunc("/chats", h.CreateChat).Methods(http.MethodPost)
	api.HandleFunc("/chats/{id}", h.GetChat).Methods(http.MethodGet)
	api.HandleFunc("/messages", h.ListMessages).Methods(http.MethodGet)
	api.HandleFunc("/messages", h.PostMessage).Methods(http.MethodPost)
	api.HandleFunc("/messages/search", h.SearchMessages).Methods(http.MethodGet)
	if socket != nil {
		api.Handle("/socket", socket).Methods(http.MethodGet)
	}
	return r
}
