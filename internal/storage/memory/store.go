// Package memory is an in-process storage.DocumentStore. It backs the test
// suites and the `STORE_BACKEND=memory` development mode; it understands the
// filter and update subset the API emits.
package memory

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/hongminglow/contacts-be/internal/storage"
)

// Ensure Store satisfies the storage.DocumentStore interface at compile time.
var _ storage.DocumentStore = (*Store)(nil)

// Store keeps every collection in memory behind one lock.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collectionData
}

type collectionData struct {
	docs   []bson.M
	unique [][]string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{collections: make(map[string]*collectionData)}
}

// Collection returns a handle to the named collection, creating it lazily.
func (s *Store) Collection(name string) storage.Collection {
	return &collection{store: s, name: name}
}

// EnsureIndexes registers the unique indexes; non-unique ones are no-ops.
func (s *Store) EnsureIndexes(_ context.Context, indexes []storage.Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, idx := range indexes {
		if !idx.Unique {
			continue
		}
		keys := make([]string, 0, len(idx.Keys))
		for _, k := range idx.Keys {
			keys = append(keys, k.Key)
		}
		data := s.data(idx.Collection)
		data.unique = append(data.unique, keys)
	}
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

// view must be called with at least the read lock held. It never creates
// the collection.
func (s *Store) view(name string) *collectionData {
	if d, ok := s.collections[name]; ok {
		return d
	}
	return &collectionData{}
}

// data must be called with the write lock held.
func (s *Store) data(name string) *collectionData {
	d, ok := s.collections[name]
	if !ok {
		d = &collectionData{}
		s.collections[name] = d
	}
	return d
}

type collection struct {
	store *Store
	name  string
}

func (c *collection) Find(_ context.Context, filter bson.M, opts storage.FindOptions) ([]bson.M, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	out := []bson.M{}
	for _, doc := range c.store.view(c.name).docs {
		ok, err := matches(doc, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, cloneDoc(doc))
		}
	}
	sortDocs(out, opts.Sort)
	if opts.Skip > 0 {
		if opts.Skip >= int64(len(out)) {
			return []bson.M{}, nil
		}
		out = out[opts.Skip:]
	}
	if opts.Limit > 0 && opts.Limit < int64(len(out)) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (c *collection) FindOne(_ context.Context, filter bson.M) (bson.M, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	i, err := c.indexOf(filter)
	if err != nil {
		return nil, err
	}
	if i < 0 {
		return nil, storage.ErrNotFound
	}
	return cloneDoc(c.store.view(c.name).docs[i]), nil
}

func (c *collection) InsertOne(_ context.Context, doc bson.M) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return c.insert(doc)
}

// InsertMany is ordered: it stops at the first failure like the driver does.
func (c *collection) InsertMany(_ context.Context, docs []bson.M) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	for _, doc := range docs {
		if err := c.insert(doc); err != nil {
			return err
		}
	}
	return nil
}

func (c *collection) ReplaceOne(_ context.Context, filter, doc bson.M, upsert bool) (storage.WriteResult, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	i, err := c.indexOf(filter)
	if err != nil {
		return storage.WriteResult{}, err
	}
	if i < 0 {
		if !upsert {
			return storage.WriteResult{}, nil
		}
		seeded := seedFromFilter(filter)
		for k, v := range doc {
			seeded[k] = v
		}
		if err := c.insert(seeded); err != nil {
			return storage.WriteResult{}, err
		}
		return storage.WriteResult{Upserted: true}, nil
	}
	data := c.store.data(c.name)
	replacement := cloneDoc(doc)
	if _, ok := replacement["_id"]; !ok {
		replacement["_id"] = data.docs[i]["_id"]
	}
	if err := c.checkUnique(replacement, i); err != nil {
		return storage.WriteResult{}, err
	}
	data.docs[i] = replacement
	return storage.WriteResult{Matched: 1}, nil
}

func (c *collection) UpdateOne(_ context.Context, filter, update bson.M, upsert bool) (storage.WriteResult, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return c.update(filter, update, upsert, false)
}

func (c *collection) UpdateMany(_ context.Context, filter, update bson.M, upsert bool) (storage.WriteResult, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return c.update(filter, update, upsert, true)
}

func (c *collection) DeleteOne(_ context.Context, filter bson.M) (int64, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	i, err := c.indexOf(filter)
	if err != nil || i < 0 {
		return 0, err
	}
	data := c.store.data(c.name)
	data.docs = append(data.docs[:i], data.docs[i+1:]...)
	return 1, nil
}

func (c *collection) DeleteMany(_ context.Context, filter bson.M) (int64, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	data := c.store.data(c.name)
	kept := data.docs[:0]
	var removed int64
	for _, doc := range data.docs {
		ok, err := matches(doc, filter)
		if err != nil {
			return 0, err
		}
		if ok {
			removed++
			continue
		}
		kept = append(kept, doc)
	}
	data.docs = kept
	return removed, nil
}

func (c *collection) update(filter, update bson.M, upsert, many bool) (storage.WriteResult, error) {
	data := c.store.data(c.name)
	var result storage.WriteResult
	for i, doc := range data.docs {
		ok, err := matches(doc, filter)
		if err != nil {
			return result, err
		}
		if !ok {
			continue
		}
		updated := cloneDoc(doc)
		if err := applyUpdate(updated, update); err != nil {
			return result, err
		}
		if err := c.checkUnique(updated, i); err != nil {
			return result, err
		}
		data.docs[i] = updated
		result.Matched++
		if !many {
			break
		}
	}
	if result.Matched > 0 || !upsert {
		return result, nil
	}
	seeded := seedFromFilter(filter)
	if err := applyUpdate(seeded, update); err != nil {
		return result, err
	}
	if err := c.insert(seeded); err != nil {
		return result, err
	}
	result.Upserted = true
	return result, nil
}

// insert must be called with the write lock held.
func (c *collection) insert(doc bson.M) error {
	stored := cloneDoc(doc)
	if _, ok := stored["_id"]; !ok {
		stored["_id"] = primitive.NewObjectID().Hex()
	}
	if err := c.checkUnique(stored, -1); err != nil {
		return err
	}
	data := c.store.data(c.name)
	data.docs = append(data.docs, stored)
	return nil
}

// checkUnique enforces _id and the registered unique indexes, ignoring the
// document at position skip.
func (c *collection) checkUnique(doc bson.M, skip int) error {
	data := c.store.data(c.name)
	keys := append([][]string{{"_id"}}, data.unique...)
	for i, existing := range data.docs {
		if i == skip {
			continue
		}
		for _, fields := range keys {
			if sameKey(existing, doc, fields) {
				return fmt.Errorf("%s: duplicate key on %v: %w", c.name, fields, storage.ErrAlreadyExists)
			}
		}
	}
	return nil
}

func sameKey(a, b bson.M, fields []string) bool {
	for _, f := range fields {
		va, aok := lookup(a, f)
		vb, bok := lookup(b, f)
		if !aok || !bok || !equal(va, vb) {
			return false
		}
	}
	return true
}

func (c *collection) indexOf(filter bson.M) (int, error) {
	for i, doc := range c.store.view(c.name).docs {
		ok, err := matches(doc, filter)
		if err != nil {
			return -1, err
		}
		if ok {
			return i, nil
		}
	}
	return -1, nil
}
