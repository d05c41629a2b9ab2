package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/hongminglow/contacts-be/internal/storage"
)

func seedContacts(t *testing.T, coll storage.Collection) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, coll.InsertMany(ctx, []bson.M{
		{"_id": "1", "firstName": "Mary", "lastName": "Smith", "email": "mary@smith.com", "user": "u1"},
		{"_id": "2", "firstName": "Bob", "lastName": "Jones", "email": "bob@jones.com", "user": "u1"},
		{"_id": "3", "firstName": "Alice", "email": "alice@example.com", "user": "u2"},
	}))
}

func ids(docs []bson.M) []any {
	out := make([]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, d["_id"])
	}
	return out
}

func TestFind_FiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	coll := NewStore().Collection("contacts")
	seedContacts(t, coll)

	tests := []struct {
		name   string
		filter bson.M
		opts   storage.FindOptions
		want   []any
	}{
		{name: "empty filter keeps insertion order", filter: bson.M{}, want: []any{"1", "2", "3"}},
		{name: "equality", filter: bson.M{"user": "u1"}, want: []any{"1", "2"}},
		{
			name:   "sorted ascending",
			filter: bson.M{"user": "u1"},
			opts:   storage.FindOptions{Sort: bson.D{{Key: "firstName", Value: 1}}},
			want:   []any{"2", "1"},
		},
		{
			name: "and with or regex",
			filter: bson.M{"$and": bson.A{
				bson.M{"user": "u1"},
				bson.M{"$or": bson.A{
					bson.M{"firstName": bson.M{"$regex": "mar", "$options": "i"}},
					bson.M{"email": bson.M{"$regex": "mar", "$options": "i"}},
				}},
			}},
			want: []any{"1"},
		},
		{name: "in", filter: bson.M{"_id": bson.M{"$in": bson.A{"1", "3"}}}, want: []any{"1", "3"}},
		{name: "exists false", filter: bson.M{"lastName": bson.M{"$exists": false}}, want: []any{"3"}},
		{name: "json decoded filter", filter: bson.M(map[string]any{"email": "bob@jones.com"}), want: []any{"2"}},
		{name: "skip and limit", filter: bson.M{}, opts: storage.FindOptions{Skip: 1, Limit: 1}, want: []any{"2"}},
		{name: "skip past end", filter: bson.M{}, opts: storage.FindOptions{Skip: 10}, want: []any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := coll.Find(ctx, tt.filter, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(docs))
		})
	}
}

func TestFind_UnsupportedOperator(t *testing.T) {
	coll := NewStore().Collection("contacts")
	seedContacts(t, coll)

	_, err := coll.Find(context.Background(), bson.M{"$where": "true"}, storage.FindOptions{})
	require.Error(t, err)
}

func TestFindOne_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	coll := NewStore().Collection("contacts")
	seedContacts(t, coll)

	doc, err := coll.FindOne(ctx, bson.M{"_id": "1"})
	require.NoError(t, err)
	doc["firstName"] = "changed"

	again, err := coll.FindOne(ctx, bson.M{"_id": "1"})
	require.NoError(t, err)
	assert.Equal(t, "Mary", again["firstName"])

	_, err = coll.FindOne(ctx, bson.M{"_id": "missing"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInsert_UniqueIndexes(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.EnsureIndexes(ctx, storage.Indexes))
	users := store.Collection(storage.UsersCollection)

	require.NoError(t, users.InsertOne(ctx, bson.M{"_id": "a", "email": "a@b.com"}))
	assert.ErrorIs(t, users.InsertOne(ctx, bson.M{"_id": "b", "email": "a@b.com"}), storage.ErrAlreadyExists)
	assert.ErrorIs(t, users.InsertOne(ctx, bson.M{"_id": "a", "email": "c@d.com"}), storage.ErrAlreadyExists)

	_, err := users.UpdateOne(ctx, bson.M{"_id": "a"}, bson.M{"$set": bson.M{"email": "a@b.com"}}, false)
	require.NoError(t, err, "updating a document to its own value is not a conflict")
}

func TestInsert_GeneratesID(t *testing.T) {
	ctx := context.Background()
	coll := NewStore().Collection("things")
	require.NoError(t, coll.InsertOne(ctx, bson.M{"name": "x"}))

	doc, err := coll.FindOne(ctx, bson.M{"name": "x"})
	require.NoError(t, err)
	id, ok := doc["_id"].(string)
	require.True(t, ok)
	assert.Len(t, id, 24)
}

func TestReplaceOne(t *testing.T) {
	ctx := context.Background()
	coll := NewStore().Collection("contacts")
	seedContacts(t, coll)

	res, err := coll.ReplaceOne(ctx, bson.M{"_id": "1"}, bson.M{"_id": "1", "firstName": "Maria"}, false)
	require.NoError(t, err)
	assert.Equal(t, storage.WriteResult{Matched: 1}, res)

	doc, err := coll.FindOne(ctx, bson.M{"_id": "1"})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"_id": "1", "firstName": "Maria"}, doc)

	res, err = coll.ReplaceOne(ctx, bson.M{"_id": "9"}, bson.M{"firstName": "Nobody"}, false)
	require.NoError(t, err)
	assert.Equal(t, storage.WriteResult{}, res)

	res, err = coll.ReplaceOne(ctx, bson.M{"_id": "9"}, bson.M{"firstName": "Somebody"}, true)
	require.NoError(t, err)
	assert.True(t, res.Upserted)
	doc, err = coll.FindOne(ctx, bson.M{"_id": "9"})
	require.NoError(t, err)
	assert.Equal(t, "Somebody", doc["firstName"])
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	coll := NewStore().Collection("contacts")
	seedContacts(t, coll)

	res, err := coll.UpdateMany(ctx, bson.M{"user": "u1"}, bson.M{"$set": bson.M{"firstName": "Spartacus"}}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Matched)

	docs, err := coll.Find(ctx, bson.M{"firstName": "Spartacus"}, storage.FindOptions{})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	res, err = coll.UpdateOne(ctx, bson.M{"_id": "3"}, bson.M{"$unset": bson.M{"email": ""}, "$set": bson.M{"phoneNumbers.mobile": "555"}}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Matched)
	doc, err := coll.FindOne(ctx, bson.M{"_id": "3"})
	require.NoError(t, err)
	assert.NotContains(t, doc, "email")
	assert.Equal(t, bson.M{"mobile": "555"}, doc["phoneNumbers"])

	res, err = coll.UpdateOne(ctx, bson.M{"_id": "7", "user": "u3"}, bson.M{"$set": bson.M{"firstName": "New"}}, true)
	require.NoError(t, err)
	assert.True(t, res.Upserted)
	doc, err = coll.FindOne(ctx, bson.M{"_id": "7"})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"_id": "7", "user": "u3", "firstName": "New"}, doc)

	_, err = coll.UpdateOne(ctx, bson.M{"_id": "1"}, bson.M{"$inc": bson.M{"n": 1}}, false)
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	coll := NewStore().Collection("contacts")
	seedContacts(t, coll)

	n, err := coll.DeleteOne(ctx, bson.M{"_id": "1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = coll.DeleteOne(ctx, bson.M{"_id": "1"})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = coll.DeleteMany(ctx, bson.M{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	docs, err := coll.Find(ctx, bson.M{}, storage.FindOptions{})
	require.NoError(t, err)
	assert.Empty(t, docs)
}
