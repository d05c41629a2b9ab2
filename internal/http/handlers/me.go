package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/hongminglow/contacts-be/internal/acl"
	"github.com/hongminglow/contacts-be/internal/apierror"
	"github.com/hongminglow/contacts-be/internal/resource"
	"github.com/hongminglow/contacts-be/internal/storage"
)

// NewMeEndpoint builds GET /me, the caller's own public user view.
func NewMeEndpoint(store storage.DocumentStore) *resource.Endpoint {
	users := store.Collection(storage.UsersCollection)
	return &resource.Endpoint{
		Name: "me",
		ACL: &acl.ACL{Entries: []acl.Entry{{
			Subject:     acl.AnySubject,
			Permissions: map[string]acl.Rule{"get": acl.Allow()},
		}}},
		Methods: map[string]resource.EndpointFunc{
			http.MethodGet: func(ctx context.Context, req *resource.Request) (int, any, error) {
				doc, err := users.FindOne(ctx, bson.M{"_id": req.Identity.ID})
				if errors.Is(err, storage.ErrNotFound) {
					return 0, nil, apierror.NotFound("user not found")
				}
				if err != nil {
					return 0, nil, err
				}
				user, err := publicUser(doc)
				if err != nil {
					return 0, nil, err
				}
				return http.StatusOK, user, nil
			},
		},
	}
}
