package mongo

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/hongminglow/contacts-be/internal/storage"
)

// DefaultDatabase is used when the connection URI names no database.
const DefaultDatabase = "contacts"

// Ensure Store satisfies the storage.DocumentStore interface at compile time.
var _ storage.DocumentStore = (*Store)(nil)

// Store provides MongoDB-backed persistence. The client is pooled and safe
// for concurrent use.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewStore connects to uri, verifies the connection and selects the database
// named in the URI path.
func NewStore(ctx context.Context, uri string) (*Store, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, errors.Wrap(err, "parsing database uri")
	}
	dbName := cs.Database
	if dbName == "" {
		dbName = DefaultDatabase
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to database")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "pinging database")
	}

	return &Store{client: client, db: client.Database(dbName)}, nil
}

// Collection returns a handle on the named collection.
func (s *Store) Collection(name string) storage.Collection {
	return &collection{coll: s.db.Collection(name)}
}

// EnsureIndexes creates the indexes the API relies on. Creating an index
// that already exists is a no-op on the server.
func (s *Store) EnsureIndexes(ctx context.Context, indexes []storage.Index) error {
	for _, idx := range indexes {
		model := mongo.IndexModel{Keys: idx.Keys, Options: options.Index().SetUnique(idx.Unique)}
		if _, err := s.db.Collection(idx.Collection).Indexes().CreateOne(ctx, model); err != nil {
			return errors.Wrapf(err, "creating index on '%s'", idx.Collection)
		}
	}
	return nil
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return errors.Wrap(s.client.Ping(ctx, readpref.Primary()), "pinging database")
}

// Close releases the connection pool.
func (s *Store) Close(ctx context.Context) error {
	return errors.Wrap(s.client.Disconnect(ctx), "disconnecting from database")
}

type collection struct {
	coll *mongo.Collection
}

func (c *collection) Find(ctx context.Context, filter bson.M, opts storage.FindOptions) ([]bson.M, error) {
	findOpts := options.Find()
	if len(opts.Sort) > 0 {
		findOpts.SetSort(opts.Sort)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}

	cur, err := c.coll.Find(ctx, nonNil(filter), findOpts)
	if err != nil {
		return nil, errors.Wrapf(err, "finding documents in '%s'", c.coll.Name())
	}
	out := []bson.M{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrapf(err, "reading documents from '%s'", c.coll.Name())
	}
	return out, nil
}

func (c *collection) FindOne(ctx context.Context, filter bson.M) (bson.M, error) {
	var doc bson.M
	err := c.coll.FindOne(ctx, nonNil(filter)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "finding document in '%s'", c.coll.Name())
	}
	return doc, nil
}

func (c *collection) InsertOne(ctx context.Context, doc bson.M) error {
	_, err := c.coll.InsertOne(ctx, doc)
	return c.translate(err, "inserting document")
}

func (c *collection) InsertMany(ctx context.Context, docs []bson.M) error {
	if len(docs) == 0 {
		return nil
	}
	items := make([]any, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc)
	}
	_, err := c.coll.InsertMany(ctx, items, options.InsertMany().SetOrdered(true))
	return c.translate(err, "inserting documents")
}

func (c *collection) ReplaceOne(ctx context.Context, filter, doc bson.M, upsert bool) (storage.WriteResult, error) {
	res, err := c.coll.ReplaceOne(ctx, nonNil(filter), doc, options.Replace().SetUpsert(upsert))
	if err != nil {
		return storage.WriteResult{}, c.translate(err, "replacing document")
	}
	return storage.WriteResult{Matched: res.MatchedCount, Upserted: res.UpsertedCount > 0}, nil
}

func (c *collection) UpdateOne(ctx context.Context, filter, update bson.M, upsert bool) (storage.WriteResult, error) {
	res, err := c.coll.UpdateOne(ctx, nonNil(filter), update, options.Update().SetUpsert(upsert))
	if err != nil {
		return storage.WriteResult{}, c.translate(err, "updating document")
	}
	return storage.WriteResult{Matched: res.MatchedCount, Upserted: res.UpsertedCount > 0}, nil
}

func (c *collection) UpdateMany(ctx context.Context, filter, update bson.M, upsert bool) (storage.WriteResult, error) {
	res, err := c.coll.UpdateMany(ctx, nonNil(filter), update, options.Update().SetUpsert(upsert))
	if err != nil {
		return storage.WriteResult{}, c.translate(err, "updating documents")
	}
	return storage.WriteResult{Matched: res.MatchedCount, Upserted: res.UpsertedCount > 0}, nil
}

func (c *collection) DeleteOne(ctx context.Context, filter bson.M) (int64, error) {
	res, err := c.coll.DeleteOne(ctx, nonNil(filter))
	if err != nil {
		return 0, c.translate(err, "deleting document")
	}
	return res.DeletedCount, nil
}

func (c *collection) DeleteMany(ctx context.Context, filter bson.M) (int64, error) {
	res, err := c.coll.DeleteMany(ctx, nonNil(filter))
	if err != nil {
		return 0, c.translate(err, "deleting documents")
	}
	return res.DeletedCount, nil
}

func (c *collection) translate(err error, action string) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return errors.Wrapf(storage.ErrAlreadyExists, "%s in '%s': %v", action, c.coll.Name(), err)
	}
	return errors.Wrapf(err, "%s in '%s'", action, c.coll.Name())
}

// nonNil keeps the driver from rejecting a nil filter.
func nonNil(filter bson.M) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return filter
}
