package handlers

import (
	"github.com/gorilla/mux"

	"github.com/hongminglow/contacts-be/internal/auth"
	"github.com/hongminglow/contacts-be/internal/resource"
	"github.com/hongminglow/contacts-be/internal/storage"
)

// API is the resource tree served by the application.
type API struct {
	nodes []*resource.Node
}

// NewAPI builds the users, contacts and me resources over store. newID may
// be nil to use ObjectId hex strings.
func NewAPI(store storage.DocumentStore, hasher auth.PasswordHasher, newID func() string) (*API, error) {
	users, err := NewUsersResource(store, hasher, newID)
	if err != nil {
		return nil, err
	}
	contacts, err := NewContactsResource(store, newID)
	if err != nil {
		return nil, err
	}
	shared, err := NewSharedContactsResource(store, newID)
	if err != nil {
		return nil, err
	}
	return &API{nodes: []*resource.Node{
		{Resource: users, Children: []*resource.Node{{Resource: contacts}}},
		{Resource: shared},
		{Endpoint: NewMeEndpoint(store)},
	}}, nil
}

// Register mounts the tree on the router.
func (a *API) Register(router *mux.Router) error {
	return resource.Mount(router, a.nodes...)
}

// Methods lists the HTTP methods the tree answers.
func (a *API) Methods() []string {
	return resource.Methods(a.nodes...)
}
