package handlers

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/hongminglow/contacts-be/internal/acl"
	"github.com/hongminglow/contacts-be/internal/apierror"
	"github.com/hongminglow/contacts-be/internal/auth"
	"github.com/hongminglow/contacts-be/internal/models"
	"github.com/hongminglow/contacts-be/internal/models/dto"
	"github.com/hongminglow/contacts-be/internal/resource"
	"github.com/hongminglow/contacts-be/internal/schema"
	"github.com/hongminglow/contacts-be/internal/storage"
)

// UserIDParam is the path variable naming the user. Descendants of /users
// rely on it for ownership checks.
const UserIDParam = "user"

// usersACL lets anyone sign up and restricts everything else, including
// every nested resource, to the user named in the path.
func usersACL() *acl.ACL {
	return &acl.ACL{
		SelfAndBelow: string(resource.OpFindObject),
		Entries: []acl.Entry{{
			Subject: acl.AnySubject,
			Permissions: map[string]acl.Rule{
				string(resource.OpInsertObject): acl.Allow(),
				acl.AnyOperation:                acl.ParamEqualsIdentity(UserIDParam),
			},
		}},
	}
}

type userHooks struct {
	resource.NopHooks
	users    storage.Collection
	contacts storage.Collection
	hasher   auth.PasswordHasher
}

// NewUsersResource builds /users.
func NewUsersResource(store storage.DocumentStore, hasher auth.PasswordHasher, newID func() string) (*resource.Resource, error) {
	hooks := &userHooks{
		users:    store.Collection(storage.UsersCollection),
		contacts: store.Collection(storage.ContactsCollection),
		hasher:   hasher,
	}
	return resource.New(resource.Config{
		Name:       "users",
		Collection: storage.UsersCollection,
		IDParam:    UserIDParam,
		Enabled: map[resource.Operation]bool{
			resource.OpInsertObject: true,
			resource.OpFindObject:   true,
			resource.OpUpdateObject: true,
			resource.OpRemoveObject: true,
		},
		AllowUnauthenticated: map[resource.Operation]bool{
			resource.OpInsertObject: true,
		},
		Schemas: resource.Schemas{
			Insert: schema.Object[dto.CreateUserRequest](),
			Update: schema.Update[dto.UpdateUserRequest](schema.KeepRequired[dto.CreateUserRequest]()),
		},
		ACL:   usersACL(),
		Hooks: hooks,
		NewID: newID,
	}, store)
}

// PreInsertObject builds the stored document from the email and a freshly
// hashed password, nothing else.
func (h *userHooks) PreInsertObject(ctx context.Context, _ *resource.Request, doc bson.M) (bson.M, error) {
	email := strings.TrimSpace(stringField(doc, "email"))
	if err := h.ensureEmailFree(ctx, email, ""); err != nil {
		return nil, err
	}
	hash, err := h.hasher.Hash(stringField(doc, "password"))
	if err != nil {
		return nil, apierror.Upstream(err)
	}
	return bson.M{"email": email, "password": hash}, nil
}

func (h *userHooks) PostInsertObject(_ context.Context, _ *resource.Request, doc bson.M) (any, error) {
	return publicUser(doc)
}

func (h *userHooks) PostFindObject(_ context.Context, _ *resource.Request, doc bson.M) (any, error) {
	return publicUser(doc)
}

// PreUpdateObject re-hashes a new password and rejects an email already
// owned by another user.
func (h *userHooks) PreUpdateObject(ctx context.Context, req *resource.Request, filter, update bson.M) (bson.M, bson.M, error) {
	set, _ := update["$set"].(bson.M)
	if len(set) == 0 {
		return nil, nil, apierror.Validation("update is empty")
	}
	if email, ok := set["email"].(string); ok {
		email = strings.TrimSpace(email)
		if err := h.ensureEmailFree(ctx, email, req.Params[UserIDParam]); err != nil {
			return nil, nil, err
		}
		set["email"] = email
	}
	if password, ok := set["password"].(string); ok {
		hash, err := h.hasher.Hash(password)
		if err != nil {
			return nil, nil, apierror.Upstream(err)
		}
		set["password"] = hash
	}
	return filter, bson.M{"$set": set}, nil
}

// PostRemoveObject deletes the removed user's contacts.
func (h *userHooks) PostRemoveObject(ctx context.Context, req *resource.Request, _ bson.M) error {
	_, err := h.contacts.DeleteMany(ctx, bson.M{"user": req.Params[UserIDParam]})
	return err
}

func (h *userHooks) ensureEmailFree(ctx context.Context, email, self string) error {
	filter := bson.M{"email": email}
	if self != "" {
		filter["_id"] = bson.M{"$ne": self}
	}
	_, err := h.users.FindOne(ctx, filter)
	switch {
	case err == nil:
		return apierror.Conflict("User exists with this email")
	case errors.Is(err, storage.ErrNotFound):
		return nil
	}
	return err
}

func publicUser(doc bson.M) (models.PublicUser, error) {
	var user models.User
	if err := schema.FromDocument(doc, &user); err != nil {
		return models.PublicUser{}, err
	}
	return user.Public(), nil
}

func stringField(doc bson.M, key string) string {
	s, _ := doc[key].(string)
	return s
}
