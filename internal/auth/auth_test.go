package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/hongminglow/contacts-be/internal/apierror"
	"github.com/hongminglow/contacts-be/internal/storage"
	"github.com/hongminglow/contacts-be/internal/storage/memory"
)

var testHasher = BcryptHasher{Cost: bcrypt.MinCost}

func newTestAuthenticator(t *testing.T, tokens *TokenManager) (*Authenticator, storage.Collection) {
	t.Helper()
	users := memory.NewStore().Collection(storage.UsersCollection)
	hash, err := testHasher.Hash("secret")
	require.NoError(t, err)
	require.NoError(t, users.InsertOne(context.Background(), bson.M{"_id": "u1", "email": "a@b.com", "password": hash}))

	a, err := NewAuthenticator(users, testHasher, tokens)
	require.NoError(t, err)
	return a, users
}

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	var apiErr *apierror.Error
	require.True(t, errors.As(err, &apiErr), "expected *apierror.Error, got %v", err)
	assert.Equal(t, status, apiErr.Status)
}

func TestBcryptHasher(t *testing.T) {
	hash, err := testHasher.Hash("x")
	require.NoError(t, err)
	assert.NotEqual(t, "x", hash)
	assert.NoError(t, testHasher.Compare(hash, "x"))
	assert.Error(t, testHasher.Compare(hash, "y"))

	again, err := testHasher.Hash("x")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again, "salted hashes differ")
}

func TestTokenManager(t *testing.T) {
	tokens := NewTokenManager("s3cret", "contacts-be", time.Minute)

	raw, err := tokens.Generate(Identity{ID: "u1", Email: "a@b.com"})
	require.NoError(t, err)

	id, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, Identity{ID: "u1", Email: "a@b.com"}, id)

	_, err = NewTokenManager("other", "contacts-be", time.Minute).Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokenManager("s3cret", "someone-else", time.Minute).Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewTokenManager("s3cret", "contacts-be", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, err := expired.Generate(Identity{ID: "u1"})
	require.NoError(t, err)
	_, err = tokens.Parse(old)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticate_Basic(t *testing.T) {
	a, _ := newTestAuthenticator(t, nil)

	tests := []struct {
		name       string
		setup      func(r *http.Request)
		wantID     string
		wantStatus int
	}{
		{name: "anonymous", setup: func(*http.Request) {}},
		{name: "valid", setup: func(r *http.Request) { r.SetBasicAuth("a@b.com", "secret") }, wantID: "u1"},
		{name: "wrong password", setup: func(r *http.Request) { r.SetBasicAuth("a@b.com", "nope") }, wantStatus: http.StatusUnauthorized},
		{name: "unknown user", setup: func(r *http.Request) { r.SetBasicAuth("x@y.com", "secret") }, wantStatus: http.StatusUnauthorized},
		{name: "malformed", setup: func(r *http.Request) { r.Header.Set("Authorization", "Basic !!!") }, wantStatus: http.StatusUnauthorized},
		{name: "unknown scheme", setup: func(r *http.Request) { r.Header.Set("Authorization", "Digest abc") }, wantStatus: http.StatusUnauthorized},
		{name: "bearer disabled", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") }, wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/me", nil)
			tt.setup(r)
			id, err := a.Authenticate(r)
			if tt.wantStatus != 0 {
				requireStatus(t, err, tt.wantStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id.ID)
		})
	}
}

func TestAuthenticate_Bearer(t *testing.T) {
	tokens := NewTokenManager("s3cret", "contacts-be", time.Minute)
	a, users := newTestAuthenticator(t, tokens)

	raw, err := tokens.Generate(Identity{ID: "u1", Email: "a@b.com"})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/me", nil)
	r.Header.Set("Authorization", "Bearer "+raw)
	id, err := a.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, Identity{ID: "u1", Email: "a@b.com"}, id)

	r.Header.Set("Authorization", "Bearer garbage")
	_, err = a.Authenticate(r)
	requireStatus(t, err, http.StatusUnauthorized)

	_, err = users.DeleteOne(context.Background(), bson.M{"_id": "u1"})
	require.NoError(t, err)
	r.Header.Set("Authorization", "Bearer "+raw)
	_, err = a.Authenticate(r)
	requireStatus(t, err, http.StatusUnauthorized)
}

func TestMiddleware(t *testing.T) {
	a, _ := newTestAuthenticator(t, nil)
	var seen Identity
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	r := httptest.NewRequest(http.MethodGet, "/me", nil)
	r.SetBasicAuth("a@b.com", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u1", seen.ID)

	r = httptest.NewRequest(http.MethodGet, "/me", nil)
	r.SetBasicAuth("a@b.com", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Basic realm="contacts"`, rec.Header().Get("WWW-Authenticate"))
}

func TestIDString(t *testing.T) {
	oid := primitive.NewObjectID()
	assert.Equal(t, oid.Hex(), IDString(oid))
	assert.Equal(t, "abc", IDString("abc"))
	assert.Equal(t, "", IDString(nil))
	assert.Equal(t, "7", IDString(7))
}
