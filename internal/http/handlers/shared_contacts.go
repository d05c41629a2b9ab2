package handlers

import (
	"github.com/hongminglow/contacts-be/internal/acl"
	"github.com/hongminglow/contacts-be/internal/models"
	"github.com/hongminglow/contacts-be/internal/models/dto"
	"github.com/hongminglow/contacts-be/internal/resource"
	"github.com/hongminglow/contacts-be/internal/schema"
	"github.com/hongminglow/contacts-be/internal/storage"
)

// NewSharedContactsResource builds the flat /contacts collection: every
// operation is enabled for any authenticated caller.
func NewSharedContactsResource(store storage.DocumentStore, newID func() string) (*resource.Resource, error) {
	enabled := make(map[resource.Operation]bool, len(resource.AllOperations))
	for _, op := range resource.AllOperations {
		enabled[op] = true
	}
	return resource.New(resource.Config{
		Name:       "contacts",
		Collection: storage.SharedContactsCollection,
		IDParam:    "id",
		Enabled:    enabled,
		Find: resource.FindConfig{
			PageSize:             50,
			SupportsSkipAndLimit: true,
			SupportsIDQuery:      true,
			SupportsQuery:        true,
		},
		Update:       resource.UpdateConfig{SupportsQuery: true, SupportsUpsert: true},
		UpdateObject: resource.UpdateConfig{},
		SaveObject:   resource.SaveObjectConfig{SupportsUpsert: true},
		Remove:       resource.RemoveConfig{SupportsQuery: true},
		Schemas: resource.Schemas{
			Insert: schema.Object[models.SharedContact](),
			Update: schema.Update[dto.SharedContactPatch](schema.KeepRequired[models.SharedContact]()),
		},
		ACL: &acl.ACL{Entries: []acl.Entry{{
			Subject:     acl.AnySubject,
			Permissions: map[string]acl.Rule{acl.AnyOperation: acl.Allow()},
		}}},
		NewID: newID,
	}, store)
}
