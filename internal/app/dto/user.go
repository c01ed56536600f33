package dto

import (
	"time"

	domainuser "campusmarket/internal/domain/user"
)

type UserProfile struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"full_name"`
	PictureURL string    `json:"profile_picture_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type AuthResponse struct {
	User  UserProfile `json:"user"`
	Token string      `json:"token"`
}

func MapUserProfile(user *domainuser.User) UserProfile {
	if user == nil {
		return UserProfile{}
	}
	return UserProfile{
		ID:         string(user.ID),
		Email:      user.Email,
		Name:       user.Name,
		PictureURL: user.PictureURL,
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	}
}

func NewAuthResponse(user *domainuser.User, token string) AuthResponse {
	return AuthResponse{
		User:  MapUserProfile(user),
		Token: token,
	}
}
