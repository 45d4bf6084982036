package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/userauth/internal/auth"
	"github.com/sakif/userauth/internal/model"
	"github.com/sakif/userauth/internal/service"
)

// ProfileReader returns the public view of one user.
type ProfileReader interface {
	Profile(ctx context.Context, id string) (*model.UserPublicView, error)
}

// ProfileUpdater applies a partial profile update.
type ProfileUpdater interface {
	UpdateProfile(ctx context.Context, id string, in service.UpdateProfileInput) (*model.UserPublicView, error)
}

// UserHandler serves the authenticated user's own profile.
// Both routes sit behind auth.RequireAuth, which puts the user ID in the context.
type UserHandler struct {
	profiles ProfileReader
	updater  ProfileUpdater
	logger   *slog.Logger
}

func NewUserHandler(profiles ProfileReader, updater ProfileUpdater, logger *slog.Logger) *UserHandler {
	return &UserHandler{profiles: profiles, updater: updater, logger: logger}
}

type updateProfileRequest struct {
	Name           *string `json:"name"           validate:"omitempty,min=1,max=100"`
	ProfilePicture *string `json:"profilePicture" validate:"omitempty,url"`
}

func (r *updateProfileRequest) normalize() {
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		r.Name = &name
	}
	if r.ProfilePicture != nil {
		pic := strings.TrimSpace(*r.ProfilePicture)
		r.ProfilePicture = &pic
	}
}

// HandleMe returns the current user's profile.
//
// HTTP: GET /api/me
// Auth: Required
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "authentication required"})
		return
	}

	profile, err := h.profiles.Profile(r.Context(), userID)
	if err != nil {
		logIfInternal(h.logger, r, "loading profile failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// HandleUpdateMe applies a partial update to the current user's profile.
//
// HTTP: PATCH /api/me
// Body: {"name": "...", "profilePicture": "..."}  (both optional;
// an empty profilePicture removes the picture)
func (h *UserHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "authentication required"})
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	profile, err := h.updater.UpdateProfile(r.Context(), userID, service.UpdateProfileInput{
		Name:           req.Name,
		ProfilePicture: req.ProfilePicture,
	})
	if err != nil {
		logIfInternal(h.logger, r, "updating profile failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}
