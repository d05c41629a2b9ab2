package handlers

import (
	"context"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/hongminglow/contacts-be/internal/models"
	"github.com/hongminglow/contacts-be/internal/resource"
	"github.com/hongminglow/contacts-be/internal/schema"
	"github.com/hongminglow/contacts-be/internal/storage"
)

// searchFields are matched by a free-text contact search.
var searchFields = []string{"firstName", "lastName", "email"}

// contactHooks scope every operation to the authenticated owner. Access to
// /users/{user}/contacts is already limited to that owner by the users ACL.
type contactHooks struct {
	resource.NopHooks
}

// NewContactsResource builds /users/{user}/contacts.
func NewContactsResource(store storage.DocumentStore, newID func() string) (*resource.Resource, error) {
	return resource.New(resource.Config{
		Name:       "contacts",
		Collection: storage.ContactsCollection,
		IDParam:    "contact",
		Enabled: map[resource.Operation]bool{
			resource.OpInsertObject: true,
			resource.OpFind:         true,
			resource.OpFindObject:   true,
			resource.OpSaveObject:   true,
			resource.OpRemoveObject: true,
		},
		Find: resource.FindConfig{
			PageSize:           100,
			MaxPageSize:        1000,
			SupportsPagination: true,
			SupportsQuery:      true,
		},
		Schemas: resource.Schemas{
			Insert: schema.Object[models.Contact](),
		},
		Hooks: contactHooks{},
		NewID: newID,
	}, store)
}

// PreInsertObject stamps the owner and discards any client-supplied id.
func (contactHooks) PreInsertObject(_ context.Context, req *resource.Request, doc bson.M) (bson.M, error) {
	delete(doc, "_id")
	doc["user"] = req.Identity.ID
	return doc, nil
}

func (contactHooks) PostInsertObject(_ context.Context, _ *resource.Request, doc bson.M) (any, error) {
	return contactView(doc)
}

// PreFind confines the listing to the owner, expands a search term over
// the name and email fields and always sorts by first name.
func (contactHooks) PreFind(_ context.Context, req *resource.Request, q *resource.Query) error {
	var search bson.M
	if q.Search != "" {
		pattern := regexp.QuoteMeta(q.Search)
		or := make(bson.A, 0, len(searchFields))
		for _, field := range searchFields {
			or = append(or, bson.M{field: bson.M{"$regex": pattern, "$options": "i"}})
		}
		search = bson.M{"$or": or}
		q.Search = ""
	}
	q.Filter = resource.And(bson.M{"user": req.Identity.ID}, q.Filter, search)
	q.Sort = bson.D{{Key: "firstName", Value: 1}}
	return nil
}

func (contactHooks) PostFind(_ context.Context, _ *resource.Request, docs []bson.M) (any, error) {
	out := make([]models.Contact, 0, len(docs))
	for _, doc := range docs {
		c, err := contactView(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (contactHooks) PreFindObject(_ context.Context, req *resource.Request, filter bson.M) (bson.M, error) {
	filter["user"] = req.Identity.ID
	return filter, nil
}

func (contactHooks) PostFindObject(_ context.Context, _ *resource.Request, doc bson.M) (any, error) {
	return contactView(doc)
}

func (contactHooks) PreSaveObject(_ context.Context, req *resource.Request, filter, doc bson.M) (bson.M, bson.M, error) {
	filter["user"] = req.Identity.ID
	doc["user"] = req.Identity.ID
	return filter, doc, nil
}

func (contactHooks) PostSaveObject(_ context.Context, _ *resource.Request, doc bson.M, _ bool) (any, error) {
	return contactView(doc)
}

func (contactHooks) PreRemoveObject(_ context.Context, req *resource.Request, filter bson.M) (bson.M, error) {
	filter["user"] = req.Identity.ID
	return filter, nil
}

// contactView drops the owner and any field the schema does not know.
func contactView(doc bson.M) (models.Contact, error) {
	var c models.Contact
	if err := schema.FromDocument(doc, &c); err != nil {
		return models.Contact{}, err
	}
	c.User = ""
	return c, nil
}
