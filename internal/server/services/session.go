// Package services contains server-side business logic. This file implements
// SessionService: registration, password and social login, refresh token
// rotation, logout and the signed-in user's profile.
package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/dmitrijs2005/travelplanner/internal/common"
	"github.com/dmitrijs2005/travelplanner/internal/logging"
	"github.com/dmitrijs2005/travelplanner/internal/server/auth"
	"github.com/dmitrijs2005/travelplanner/internal/server/metrics"
	"github.com/dmitrijs2005/travelplanner/internal/server/models"
	"github.com/dmitrijs2005/travelplanner/internal/server/repositories/users"
	"github.com/dmitrijs2005/travelplanner/internal/server/social"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// placeholderEmailDomain is used for social accounts whose provider shares
// no email address.
const placeholderEmailDomain = "users.noreply.travel-planner.local"

// TokenPair is what a successful login or refresh hands to the client.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// ProfileUpdate carries the fields a user may change on their own profile.
// Nil fields are left as they are.
type ProfileUpdate struct {
	Name         *string
	ProfileImage *string
}

type TokenIssuer interface {
	IssueAccessToken(userID string, role models.Role) (string, error)
	IssueRefreshToken(userID, family string) (string, error)
	Verify(token string, kind auth.Kind) (*auth.Claims, error)
	AccessTTL() time.Duration
}

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
	VerifyDummy(plaintext string) bool
}

type IdentityVerifier interface {
	Verify(ctx context.Context, provider, token string) (*social.Profile, error)
}

// registration holds the account rules every transport shares.
type registration struct {
	Email    string `name:"email" validate:"required,email,max=254"`
	Password string `name:"password" validate:"required,min=8"`
	Name     string `name:"name" validate:"required,min=2,max=100"`
}

type profileName struct {
	Name string `name:"name" validate:"min=2,max=100"`
}

// SessionService keeps one refresh lineage per user: every login replaces
// the stored fingerprint, every refresh swaps it, logout clears it.
type SessionService struct {
	users    users.Repository
	hasher   PasswordHasher
	issuer   TokenIssuer
	verifier IdentityVerifier
	metrics  *metrics.Metrics
	logger   logging.Logger
	validate *validator.Validate
}

func NewSessionService(repo users.Repository, hasher PasswordHasher, issuer TokenIssuer,
	verifier IdentityVerifier, m *metrics.Metrics, logger logging.Logger) *SessionService {
	return &SessionService{
		users:    repo,
		hasher:   hasher,
		issuer:   issuer,
		verifier: verifier,
		metrics:  m,
		logger:   logger.With("module", "session"),
		validate: newValidator(),
	}
}

func internalErr(err error) error {
	return fmt.Errorf("%w: %v", common.ErrorInternal, err)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("name")
	})
	return v
}

// check validates st and turns rule violations into common.ErrValidation.
func (s *SessionService) check(st any) error {
	err := s.validate.Struct(st)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return internalErr(err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "email":
			msgs = append(msgs, fe.Field()+" must be a valid email address")
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return fmt.Errorf("%w: %s", common.ErrValidation, strings.Join(msgs, "; "))
}

// Register creates a password account with role USER. No session is started.
func (s *SessionService) Register(ctx context.Context, email, password, name string) (u *models.User, err error) {
	defer func() { s.metrics.SessionOp("register", err) }()

	email = common.NormalizeEmail(email)
	name = strings.TrimSpace(name)
	if err := s.check(registration{Email: email, Password: password, Name: name}); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	u, err = s.users.Create(ctx, &models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         models.RoleUser,
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrEmailAlreadyExists
		}
		return nil, internalErr(err)
	}

	s.logger.Info(ctx, "user registered", "user_id", u.ID)
	return u, nil
}

// Login checks email and password. Unknown email, wrong password and
// social-only accounts all yield the same ErrInvalidCredentials, and all
// of them pay for one bcrypt comparison.
func (s *SessionService) Login(ctx context.Context, email, password string) (pair *TokenPair, err error) {
	defer func() { s.metrics.SessionOp("login", err) }()

	user, err := s.users.GetByEmail(ctx, common.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.VerifyDummy(password)
			return nil, common.ErrInvalidCredentials
		}
		return nil, internalErr(err)
	}

	if !user.HasPassword() {
		s.hasher.VerifyDummy(password)
		return nil, common.ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, common.ErrInvalidCredentials
	}

	return s.startSession(ctx, user)
}

// SocialLogin signs in with a provider access token, creating the account
// on first use. A provider email that already belongs to another account
// is refused rather than linked.
func (s *SessionService) SocialLogin(ctx context.Context, provider, providerToken string) (pair *TokenPair, err error) {
	defer func() { s.metrics.SessionOp("social_login", err) }()

	profile, err := s.verifier.Verify(ctx, provider, providerToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetBySocial(ctx, profile.Provider, profile.SubjectID)
	switch {
	case err == nil:
	case errors.Is(err, common.ErrorNotFound):
		user, err = s.createSocialUser(ctx, profile)
		if err != nil {
			return nil, err
		}
	default:
		return nil, internalErr(err)
	}

	return s.startSession(ctx, user)
}

func (s *SessionService) createSocialUser(ctx context.Context, p *social.Profile) (*models.User, error) {
	email := common.NormalizeEmail(p.Email)
	if email == "" {
		email = fmt.Sprintf("%s_%s@%s", p.Provider, strings.ToLower(p.SubjectID), placeholderEmailDomain)
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = p.Provider + " user"
	}

	created, err := s.users.Create(ctx, &models.User{
		Email:          email,
		Name:           name,
		Role:           models.RoleUser,
		SocialProvider: p.Provider,
		SocialID:       p.SubjectID,
	})
	if err == nil {
		s.logger.Info(ctx, "social user created", "user_id", created.ID, "provider", p.Provider)
		return created, nil
	}
	if !errors.Is(err, common.ErrorAlreadyExists) {
		return nil, internalErr(err)
	}

	// Either a concurrent first login created the pair, or the email is taken.
	existing, rerr := s.users.GetBySocial(ctx, p.Provider, p.SubjectID)
	if rerr == nil {
		return existing, nil
	}
	if errors.Is(rerr, common.ErrorNotFound) {
		return nil, common.ErrEmailAlreadyExists
	}
	return nil, internalErr(rerr)
}

// Refresh exchanges a refresh token for a new pair in the same family.
// The presented token must be the one most recently issued to the user;
// anything else, including a replay of an already rotated token, is
// ErrRefreshTokenRevoked.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (pair *TokenPair, err error) {
	defer func() { s.metrics.SessionOp("refresh", err) }()

	claims, err := s.issuer.Verify(refreshToken, auth.KindRefresh)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrRefreshTokenRevoked
		}
		return nil, internalErr(err)
	}

	pair, err = s.issuePair(user, claims.Family)
	if err != nil {
		return nil, err
	}

	err = s.users.SwapRefreshFingerprint(ctx, user.ID, auth.Fingerprint(refreshToken), auth.Fingerprint(pair.RefreshToken))
	if err != nil {
		if errors.Is(err, common.ErrFingerprintMismatch) || errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "stale refresh token presented", "user_id", user.ID, "family", claims.Family)
			return nil, common.ErrRefreshTokenRevoked
		}
		return nil, internalErr(err)
	}

	return pair, nil
}

// Logout ends the user's session. Access tokens already issued stay valid
// until they expire.
func (s *SessionService) Logout(ctx context.Context, userID string) (err error) {
	defer func() { s.metrics.SessionOp("logout", err) }()

	if err := s.users.SetRefreshFingerprint(ctx, userID, ""); err != nil && !errors.Is(err, common.ErrorNotFound) {
		return internalErr(err)
	}
	s.logger.Info(ctx, "user logged out", "user_id", userID)
	return nil
}

// Profile returns the stored user.
func (s *SessionService) Profile(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, internalErr(err)
	}
	return u, nil
}

// UpdateProfile changes the user's name and profile image key. The key may
// only be cleared or point at one of the user's own avatar objects.
func (s *SessionService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*models.User, error) {
	u, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	name, image := u.Name, u.ProfileImage
	if upd.Name != nil {
		name = strings.TrimSpace(*upd.Name)
		if err := s.check(profileName{Name: name}); err != nil {
			return nil, err
		}
	}
	if upd.ProfileImage != nil {
		image = strings.TrimSpace(*upd.ProfileImage)
		if image != "" && !ownsAvatarKey(userID, image) {
			return nil, fmt.Errorf("%w: profile_image must be one of your own avatar keys", common.ErrValidation)
		}
	}

	updated, err := s.users.UpdateProfile(ctx, userID, name, image)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, internalErr(err)
	}
	return updated, nil
}

// FindByEmail looks a user up by email; used by the operator CLI.
func (s *SessionService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.users.GetByEmail(ctx, common.NormalizeEmail(email))
}

// Promote sets the user's role. The new role shows up in access tokens
// issued from the next login or refresh on.
func (s *SessionService) Promote(ctx context.Context, userID string, role models.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", common.ErrValidation, role)
	}
	if err := s.users.SetRole(ctx, userID, role); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return err
		}
		return internalErr(err)
	}
	s.logger.Info(ctx, "role changed", "user_id", userID, "role", string(role))
	return nil
}

// startSession begins a new token family and overwrites the stored
// fingerprint, invalidating any earlier session of the user.
func (s *SessionService) startSession(ctx context.Context, user *models.User) (*TokenPair, error) {
	pair, err := s.issuePair(user, uuid.NewString())
	if err != nil {
		return nil, err
	}
	if err := s.users.SetRefreshFingerprint(ctx, user.ID, auth.Fingerprint(pair.RefreshToken)); err != nil {
		return nil, internalErr(err)
	}
	s.logger.Debug(ctx, "session started", "user_id", user.ID)
	return pair, nil
}

func (s *SessionService) issuePair(user *models.User, family string) (*TokenPair, error) {
	access, err := s.issuer.IssueAccessToken(user.ID, user.Role)
	if err != nil {
		return nil, internalErr(err)
	}
	refresh, err := s.issuer.IssueRefreshToken(user.ID, family)
	if err != nil {
		return nil, internalErr(err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.issuer.AccessTTL().Seconds()),
		TokenType:    common.BearerScheme,
	}, nil
}
