package users

import (
	"context"
	"crypto/subtle"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/travelplanner/internal/common"
	"github.com/dmitrijs2005/travelplanner/internal/server/models"
	"github.com/google/uuid"
)

// InMemoryRepository keeps users in process memory. It enforces the same
// uniqueness rules as the SQL schema and is used for local runs and tests.
type InMemoryRepository struct {
	mu       sync.Mutex
	byID     map[string]*models.User
	byEmail  map[string]string
	bySocial map[string]string
	now      func() time.Time
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byID:     make(map[string]*models.User),
		byEmail:  make(map[string]string),
		bySocial: make(map[string]string),
		now:      time.Now,
	}
}

func socialKey(provider, socialID string) string {
	return provider + "\x00" + socialID
}

func clone(u *models.User) *models.User {
	c := *u
	return &c
}

func (r *InMemoryRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, ok := r.byEmail[email]; ok {
		return nil, common.ErrorAlreadyExists
	}
	hasSocial := user.SocialProvider != "" && user.SocialID != ""
	if hasSocial {
		if _, ok := r.bySocial[socialKey(user.SocialProvider, user.SocialID)]; ok {
			return nil, common.ErrorAlreadyExists
		}
	}

	u := clone(user)
	u.ID = uuid.NewString()
	u.RefreshFingerprint = ""
	u.CreatedAt = r.now().UTC()
	u.UpdatedAt = u.CreatedAt

	r.byID[u.ID] = u
	r.byEmail[email] = u.ID
	if hasSocial {
		r.bySocial[socialKey(u.SocialProvider, u.SocialID)] = u.ID
	}
	return clone(u), nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(u), nil
}

func (r *InMemoryRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(r.byID[id]), nil
}

func (r *InMemoryRepository) GetBySocial(ctx context.Context, provider, socialID string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.bySocial[socialKey(provider, socialID)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(r.byID[id]), nil
}

func (r *InMemoryRepository) UpdateProfile(ctx context.Context, id, name, profileImage string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	u.Name = name
	u.ProfileImage = profileImage
	u.UpdatedAt = r.now().UTC()
	return clone(u), nil
}

func (r *InMemoryRepository) SetRole(ctx context.Context, id string, role models.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.Role = role
	u.UpdatedAt = r.now().UTC()
	return nil
}

func (r *InMemoryRepository) SetRefreshFingerprint(ctx context.Context, id, fingerprint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.RefreshFingerprint = fingerprint
	return nil
}

func (r *InMemoryRepository) SwapRefreshFingerprint(ctx context.Context, id, expected, next string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	if u.RefreshFingerprint == "" || subtle.ConstantTimeCompare([]byte(u.RefreshFingerprint), []byte(expected)) != 1 {
		return common.ErrFingerprintMismatch
	}
	u.RefreshFingerprint = next
	return nil
}
