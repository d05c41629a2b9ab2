package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/hongminglow/contacts-be/internal/apierror"
	"github.com/hongminglow/contacts-be/internal/http/respond"
	"github.com/hongminglow/contacts-be/internal/storage"
)

// Authenticator resolves HTTP Basic credentials (and Bearer tokens when a
// TokenManager is configured) against the users collection.
type Authenticator struct {
	users  storage.Collection
	hasher PasswordHasher
	tokens *TokenManager
	dummy  string
}

// NewAuthenticator builds an authenticator. tokens may be nil, in which
// case Bearer credentials are rejected.
func NewAuthenticator(users storage.Collection, hasher PasswordHasher, tokens *TokenManager) (*Authenticator, error) {
	dummy, err := hasher.Hash("not-a-real-password")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &Authenticator{users: users, hasher: hasher, tokens: tokens, dummy: dummy}, nil
}

// Authenticate returns the caller's identity. Requests without an
// Authorization header are anonymous; bad credentials are an error.
func (a *Authenticator) Authenticate(r *http.Request) (Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Identity{}, nil
	}
	scheme, _, _ := strings.Cut(header, " ")
	switch strings.ToLower(scheme) {
	case "basic":
		email, password, ok := r.BasicAuth()
		if !ok || email == "" {
			return Identity{}, apierror.Unauthenticated("malformed basic credentials")
		}
		return a.basic(r.Context(), email, password)
	case "bearer":
		if a.tokens == nil {
			return Identity{}, apierror.Unauthenticated("bearer tokens are not enabled")
		}
		return a.bearer(r.Context(), strings.TrimSpace(header[len(scheme):]))
	}
	return Identity{}, apierror.Unauthenticated("unsupported authorization scheme")
}

// Middleware attaches the resolved identity to the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.Authenticate(r)
		if err != nil {
			respond.Problem(w, r, err)
			return
		}
		ctx := r.Context()
		if !id.Anonymous() {
			zerolog.Ctx(ctx).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("user", id.ID)
			})
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, id)))
	})
}

// Verify checks an email and password pair and returns the matching identity.
func (a *Authenticator) Verify(ctx context.Context, email, password string) (Identity, error) {
	return a.basic(ctx, email, password)
}

func (a *Authenticator) basic(ctx context.Context, email, password string) (Identity, error) {
	doc, err := a.users.FindOne(ctx, bson.M{"email": email})
	if errors.Is(err, storage.ErrNotFound) {
		_ = a.hasher.Compare(a.dummy, password)
		return Identity{}, apierror.Unauthenticated("invalid credentials")
	}
	if err != nil {
		return Identity{}, apierror.Upstream(err)
	}
	hash, _ := doc["password"].(string)
	if hash == "" || a.hasher.Compare(hash, password) != nil {
		return Identity{}, apierror.Unauthenticated("invalid credentials")
	}
	return Identity{ID: IDString(doc["_id"]), Email: email}, nil
}

func (a *Authenticator) bearer(ctx context.Context, raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, apierror.Unauthenticated("missing bearer token")
	}
	id, err := a.tokens.Parse(raw)
	if err != nil {
		return Identity{}, apierror.Unauthenticated("invalid token")
	}
	doc, err := a.users.FindOne(ctx, bson.M{"_id": id.ID})
	if errors.Is(err, storage.ErrNotFound) {
		return Identity{}, apierror.Unauthenticated("invalid token")
	}
	if err != nil {
		return Identity{}, apierror.Upstream(err)
	}
	email, _ := doc["email"].(string)
	return Identity{ID: id.ID, Email: email}, nil
}

// IDString renders a stored _id as the string form used in paths.
func IDString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case primitive.ObjectID:
		return id.Hex()
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
