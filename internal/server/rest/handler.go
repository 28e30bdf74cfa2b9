// Package rest exposes the session manager and access guard over HTTP/JSON.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/dmitrijs2005/travelplanner/internal/logging"
	"github.com/dmitrijs2005/travelplanner/internal/server/guard"
	"github.com/dmitrijs2005/travelplanner/internal/server/metrics"
	"github.com/dmitrijs2005/travelplanner/internal/server/models"
	"github.com/dmitrijs2005/travelplanner/internal/server/services"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

type SessionManager interface {
	Register(ctx context.Context, email, password, name string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	SocialLogin(ctx context.Context, provider, providerToken string) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, userID string) error
	Profile(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, upd services.ProfileUpdate) (*models.User, error)
}

type AvatarStore interface {
	UploadURL(ctx context.Context, userID string) (key, url string, err error)
	DownloadURL(ctx context.Context, key string) (string, error)
}

// Handler serves the auth and profile routes. avatars may be nil, in which
// case the avatar route answers 404 and profiles carry no image URL.
type Handler struct {
	sessions SessionManager
	avatars  AvatarStore
	guard    *guard.Guard
	metrics  *metrics.Metrics
	logger   logging.Logger
	validate *validator.Validate
}

func NewHandler(sessions SessionManager, avatars AvatarStore, g *guard.Guard, m *metrics.Metrics, logger logging.Logger) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		sessions: sessions,
		avatars:  avatars,
		guard:    g,
		metrics:  m,
		logger:   logger.With("module", "rest"),
		validate: v,
	}
}

// Routes builds the chi router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(h.instrument)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.Health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/social/login", h.SocialLogin)
		r.Post("/refresh", h.Refresh)
		r.With(h.require(guard.Authenticated)).Post("/logout", h.Logout)
	})

	r.Route("/users/me", func(r chi.Router) {
		r.Use(h.require(guard.Authenticated))
		r.Get("/", h.Me)
		r.Put("/", h.UpdateMe)
		r.Post("/avatar", h.Avatar)
	})

	r.With(h.require(guard.RequireRole(models.RoleAdmin))).Get("/admin/users/{id}", h.AdminGetUser)

	return r
}

// fail writes err as an error response. Unmapped errors are logged since
// the client only sees a generic message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", chimiddleware.GetReqID(r.Context()))
	}
	writeError(w, apiErr)
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return errBadRequest
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return &APIError{Code: "validation_error", Message: describe(verrs), Status: http.StatusBadRequest}
		}
		return errBadRequest
	}
	return nil
}

func describe(verrs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "email":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid email address", fe.Field()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return strings.Join(msgs, "; ")
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ok(w, map[string]string{"status": "ok"})
}
