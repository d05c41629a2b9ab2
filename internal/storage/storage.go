package storage

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
)

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness conflict.
var ErrAlreadyExists = errors.New("record already exists")

// Collection names shared by the resources and the authenticator.
const (
	UsersCollection          = "users"
	ContactsCollection       = "contacts"
	SharedContactsCollection = "shared_contacts"
)

// FindOptions shapes a multi-document read. Zero values mean "unset".
type FindOptions struct {
	Sort  bson.D
	Skip  int64
	Limit int64
}

// WriteResult reports how many documents a replace or update touched.
type WriteResult struct {
	Matched  int64
	Upserted bool
}

// Index describes an index the application relies on.
type Index struct {
	Collection string
	Keys       bson.D
	Unique     bool
}

// Indexes lists every index the API expects to exist.
var Indexes = []Index{
	{Collection: UsersCollection, Keys: bson.D{{Key: "email", Value: 1}}, Unique: true},
	{Collection: ContactsCollection, Keys: bson.D{{Key: "user", Value: 1}, {Key: "firstName", Value: 1}}},
}

// Collection captures the document operations the resource layer needs.
// Filters and updates are MongoDB-style documents.
type Collection interface {
	Find(ctx context.Context, filter bson.M, opts FindOptions) ([]bson.M, error)
	FindOne(ctx context.Context, filter bson.M) (bson.M, error)
	InsertOne(ctx context.Context, doc bson.M) error
	InsertMany(ctx context.Context, docs []bson.M) error
	ReplaceOne(ctx context.Context, filter, doc bson.M, upsert bool) (WriteResult, error)
	UpdateOne(ctx context.Context, filter, update bson.M, upsert bool) (WriteResult, error)
	UpdateMany(ctx context.Context, filter, update bson.M, upsert bool) (WriteResult, error)
	DeleteOne(ctx context.Context, filter bson.M) (int64, error)
	DeleteMany(ctx context.Context, filter bson.M) (int64, error)
}

// DocumentStore hands out collections and owns the underlying connection.
type DocumentStore interface {
	Collection(name string) Collection
	EnsureIndexes(ctx context.Context, indexes []Index) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
