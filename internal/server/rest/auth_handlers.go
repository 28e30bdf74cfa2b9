package rest

import (
	"net/http"

	"github.com/dmitrijs2005/travelplanner/internal/server/guard"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required,min=2"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type socialLoginRequest struct {
	Provider    string `json:"provider" validate:"required"`
	AccessToken string `json:"access_token" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Register handles POST /auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	u, err := h.sessions.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	created(w, u.Public())
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	pair, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ok(w, pair)
}

// SocialLogin handles POST /auth/social/login.
func (h *Handler) SocialLogin(w http.ResponseWriter, r *http.Request) {
	var req socialLoginRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	pair, err := h.sessions.SocialLogin(r.Context(), req.Provider, req.AccessToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ok(w, pair)
}

// Refresh handles POST /auth/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	pair, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ok(w, pair)
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	id, _ := guard.IdentityFrom(r.Context())
	if err := h.sessions.Logout(r.Context(), id.UserID); err != nil {
		h.fail(w, r, err)
		return
	}
	noContent(w)
}
