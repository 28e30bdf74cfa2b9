package models

import "time"

// Role is the authorization role carried by a user and by its access tokens.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is the credential record. PasswordHash is empty for social-only
// accounts; SocialProvider and SocialID are either both set or both empty.
// RefreshFingerprint is empty when the user has no active session.
type User struct {
	ID                 string
	Email              string
	PasswordHash       string
	Name               string
	Role               Role
	SocialProvider     string
	SocialID           string
	ProfileImage       string
	RefreshFingerprint string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasPassword reports whether the account can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// PublicUser is the externally visible projection of a User. It never
// carries the password hash or the refresh fingerprint.
type PublicUser struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	Role           Role      `json:"role"`
	SocialProvider string    `json:"social_provider,omitempty"`
	ProfileImage   string    `json:"profile_image,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Public returns the externally visible fields of u.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		Role:           u.Role,
		SocialProvider: u.SocialProvider,
		ProfileImage:   u.ProfileImage,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}
