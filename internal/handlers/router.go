package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter registers the REST routes and the websocket endpoint. Global
// middleware, such as logging and rate limiting, is applied in order.
func NewRouter(authH *AuthHandler, tasksH *TasksHandler, live http.Handler, middleware ...mux.MiddlewareFunc) *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})
	for _, mw := range middleware {
		router.Use(mw)
	}

	router.HandleFunc("/auth/register", authH.Register).Methods(http.MethodPost)
	router.HandleFunc("/auth/login", authH.Login).Methods(http.MethodPost)
	router.HandleFunc("/auth/logout", authH.Logout).Methods(http.MethodPost)

	tasks := router.PathPrefix("/task").Subrouter()
	tasks.Use(authH.RequireAuth)
	tasks.HandleFunc("", tasksH.List).Methods(http.MethodGet)
	tasks.HandleFunc("", tasksH.Create).Methods(http.MethodPost)
	tasks.HandleFunc("/search", tasksH.Search).Methods(http.MethodGet)
	tasks.HandleFunc("/{id}", tasksH.Get).Methods(http.MethodGet)
	tasks.HandleFunc("/{id}", tasksH.Update).Methods(http.MethodPost, http.MethodPatch)
	tasks.HandleFunc("/{id}", tasksH.Delete).Methods(http.MethodDelete)

	router.Handle("/websocket", live).Methods(http.MethodGet)

	return router
}
