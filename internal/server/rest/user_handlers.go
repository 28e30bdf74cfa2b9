package rest

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/travelplanner/internal/server/guard"
	"github.com/dmitrijs2005/travelplanner/internal/server/models"
	"github.com/dmitrijs2005/travelplanner/internal/server/services"
	"github.com/go-chi/chi/v5"
)

type profileResponse struct {
	models.PublicUser
	ProfileImageURL string `json:"profile_image_url,omitempty"`
}

type updateProfileRequest struct {
	Name         *string `json:"name" validate:"omitempty,min=2,max=100"`
	ProfileImage *string `json:"profile_image" validate:"omitempty,max=512"`
}

type avatarResponse struct {
	Key       string `json:"key"`
	UploadURL string `json:"upload_url"`
}

// profile renders u, resolving the stored image key to a short-lived URL
// when an avatar store is configured. A presign failure only drops the URL.
func (h *Handler) profile(ctx context.Context, u *models.User) profileResponse {
	resp := profileResponse{PublicUser: u.Public()}
	if h.avatars == nil || u.ProfileImage == "" {
		return resp
	}

	url, err := h.avatars.DownloadURL(ctx, u.ProfileImage)
	if err != nil {
		h.logger.Warn(ctx, "presign avatar download failed", "user_id", u.ID, "error", err)
		return resp
	}
	resp.ProfileImageURL = url
	return resp
}

// Me handles GET /users/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, _ := guard.IdentityFrom(r.Context())

	u, err := h.sessions.Profile(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ok(w, h.profile(r.Context(), u))
}

// UpdateMe handles PUT /users/me.
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	id, _ := guard.IdentityFrom(r.Context())

	var req updateProfileRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	u, err := h.sessions.UpdateProfile(r.Context(), id.UserID, services.ProfileUpdate{
		Name:         req.Name,
		ProfileImage: req.ProfileImage,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ok(w, h.profile(r.Context(), u))
}

// Avatar handles POST /users/me/avatar. The client uploads the image to
// the returned URL; the key is already stored on the profile.
func (h *Handler) Avatar(w http.ResponseWriter, r *http.Request) {
	if h.avatars == nil {
		http.NotFound(w, r)
		return
	}

	id, _ := guard.IdentityFrom(r.Context())

	key, url, err := h.avatars.UploadURL(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ok(w, avatarResponse{Key: key, UploadURL: url})
}

// AdminGetUser handles GET /admin/users/{id}.
func (h *Handler) AdminGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.sessions.Profile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ok(w, h.profile(r.Context(), u))
}
