package user

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrIDRequired          = errors.New("user: id is required")
	ErrEmailRequired       = errors.New("user: email is required")
	ErrPasswordHashMissing = errors.New("user: password hash is required")
	ErrNameRequired        = errors.New("user: name is required")
	ErrEmailAlreadyUsed    = errors.New("user: email already used")
	ErrNotFound            = errors.New("user: not found")
)

type ID string

type User struct {
	ID           ID
	Email        string
	Name         string
	PictureURL   string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	Save(ctx context.Context, user *User) error
}

// Profile is the public subset exposed to other users, e.g. in conversation
// previews.
type Profile struct {
	ID         ID
	Name       string
	PictureURL string
}

// Directory resolves public profiles by id. Lookups for unknown users return
// ErrNotFound; callers degrade to placeholder display values.
type Directory interface {
	ProfileByID(ctx context.Context, id ID) (Profile, error)
}

type CreateParams struct {
	ID           ID
	Email        string
	Name         string
	PictureURL   string
	PasswordHash string
	CreatedAt    time.Time
}

func NewUser(params CreateParams) (*User, error) {
	id := strings.TrimSpace(string(params.ID))
	if id == "" {
		return nil, ErrIDRequired
	}
	email := normalizeEmail(params.Email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	if strings.TrimSpace(params.PasswordHash) == "" {
		return nil, ErrPasswordHashMissing
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, ErrNameRequired
	}

	now := params.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	return &User{
		ID:           ID(id),
		Email:        email,
		Name:         name,
		PictureURL:   strings.TrimSpace(params.PictureURL),
		PasswordHash: params.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (u *User) UpdateName(name string, now time.Time) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ErrNameRequired
	}
	u.Name = trimmed
	u.touch(now)
	return nil
}

func (u *User) UpdatePicture(url string, now time.Time) {
	u.PictureURL = strings.TrimSpace(url)
	u.touch(now)
}

func (u *User) SetPasswordHash(hash string, now time.Time) error {
	if strings.TrimSpace(hash) == "" {
		return ErrPasswordHashMissing
	}
	u.PasswordHash = hash
	u.touch(now)
	return nil
}

// PublicProfile projects the user into its directory representation.
func (u *User) PublicProfile() Profile {
	return Profile{ID: u.ID, Name: u.Name, PictureURL: u.PictureURL}
}

func (u *User) touch(now time.Time) {
	if now.IsZero() {
		now = time.Now()
	}
	u.UpdatedAt = now.UTC()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
