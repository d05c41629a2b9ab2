package handlers

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/hongminglow/contacts-be/internal/apierror"
	"github.com/hongminglow/contacts-be/internal/auth"
	"github.com/hongminglow/contacts-be/internal/http/respond"
	"github.com/hongminglow/contacts-be/internal/models"
	"github.com/hongminglow/contacts-be/internal/models/dto"
	"github.com/hongminglow/contacts-be/internal/schema"
)

// AuthHandler exchanges Basic-style credentials for a Bearer token.
type AuthHandler struct {
	authn  *auth.Authenticator
	tokens *auth.TokenManager
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(authn *auth.Authenticator, tokens *auth.TokenManager) *AuthHandler {
	return &AuthHandler{authn: authn, tokens: tokens}
}

// Register attaches the login route to the router.
func (h *AuthHandler) Register(router *mux.Router) {
	router.HandleFunc("/login", h.handleLogin).Methods(http.MethodPost)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	req, err := schema.Decode[dto.LoginRequest](raw)
	if err != nil {
		respond.Problem(w, r, err)
		return
	}
	id, err := h.authn.Verify(r.Context(), req.Email, req.Password)
	if err != nil {
		respond.Problem(w, r, err)
		return
	}
	token, err := h.tokens.Generate(id)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("login: sign token")
		respond.Problem(w, r, apierror.Upstream(err))
		return
	}
	respond.Message(w, http.StatusOK, "login successful", dto.LoginResponse{
		Token:     token,
		ExpiresIn: int64(h.tokens.TTL().Seconds()),
		User:      models.PublicUser{ID: id.ID, Email: id.Email},
	})
}
