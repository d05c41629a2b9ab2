package dto

import "github.com/hongminglow/contacts-be/internal/models"

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token     string            `json:"token"`
	ExpiresIn int64             `json:"expiresIn"`
	User      models.PublicUser `json:"user"`
}
