package handlers

import (
	"errors"
	"net/http"

	"github.com/cinequiz/apiserver/internal/services"
	"github.com/cinequiz/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
)

// UserHandler exposes the public user views.
type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// UserRouter registers user listing routes on the given router.
func UserRouter(r chi.Router, userService *services.UserService) {
	handler := NewUserHandler(userService)

	r.Get("/", handler.ListUsers)
	r.Get("/{userID}", handler.GetUser)
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id.")
		return
	}

	user, err := h.userService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found.")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}
