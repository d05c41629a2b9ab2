package schema

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/hongminglow/contacts-be/internal/apierror"
)

type person struct {
	ID    string `json:"_id,omitempty" bson:"_id,omitempty"`
	Name  string `json:"name" bson:"name" validate:"required"`
	Email string `json:"email,omitempty" bson:"email,omitempty" validate:"omitempty,email"`
}

type personPatch struct {
	Name  *string `json:"name,omitempty" bson:"name,omitempty" validate:"omitempty,min=1"`
	Email *string `json:"email,omitempty" bson:"email,omitempty" validate:"omitempty,email"`
}

func requireValidation(t *testing.T, err error) *apierror.Error {
	t.Helper()
	var apiErr *apierror.Error
	require.True(t, errors.As(err, &apiErr), "expected *apierror.Error, got %v", err)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	return apiErr
}

func TestObject(t *testing.T) {
	decode := Object[person]()

	tests := []struct {
		name    string
		body    string
		want    bson.M
		wantErr string
	}{
		{name: "minimal", body: `{"name":"Mary"}`, want: bson.M{"name": "Mary"}},
		{name: "all fields", body: `{"_id":"1","name":"Mary","email":"mary@smith.com"}`, want: bson.M{"_id": "1", "name": "Mary", "email": "mary@smith.com"}},
		{name: "unknown field", body: `{"name":"Mary","age":3}`, wantErr: `unknown field "age"`},
		{name: "missing required", body: `{"email":"mary@smith.com"}`, wantErr: "name is required"},
		{name: "bad email", body: `{"name":"Mary","email":"nope"}`, wantErr: "email must be an email address"},
		{name: "wrong type", body: `{"name":3}`, wantErr: `field "name" must be string`},
		{name: "array", body: `[{"name":"Mary"}]`, wantErr: "body must be a JSON object"},
		{name: "trailing", body: `{"name":"Mary"}{}`, wantErr: "trailing data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := decode([]byte(tt.body))
			if tt.wantErr != "" {
				apiErr := requireValidation(t, err)
				assert.Contains(t, apiErr.Message, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, doc)
		})
	}
}

func TestUpdate(t *testing.T) {
	decode := Update[personPatch]()

	tests := []struct {
		name    string
		body    string
		want    bson.M
		wantErr string
	}{
		{name: "plain fields wrap in set", body: `{"email":"a@b.com"}`, want: bson.M{"$set": bson.M{"email": "a@b.com"}}},
		{name: "explicit set", body: `{"$set":{"name":"Spartacus"}}`, want: bson.M{"$set": bson.M{"name": "Spartacus"}}},
		{name: "unset", body: `{"$unset":{"email":""}}`, want: bson.M{"$unset": bson.M{"email": ""}}},
		{name: "unset unknown", body: `{"$unset":{"age":""}}`, wantErr: `cannot unset "age"`},
		{name: "unsupported operator", body: `{"$inc":{"name":1}}`, wantErr: "unsupported update operator $inc"},
		{name: "mixed", body: `{"$set":{"name":"x"},"email":"a@b.com"}`, wantErr: "cannot mix"},
		{name: "empty", body: `{}`, wantErr: "update is empty"},
		{name: "invalid set", body: `{"$set":{"email":"nope"}}`, wantErr: "email must be an email address"},
		{name: "not an object", body: `[1]`, wantErr: "update must be a JSON object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := decode([]byte(tt.body))
			if tt.wantErr != "" {
				apiErr := requireValidation(t, err)
				assert.Contains(t, apiErr.Message, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, doc)
		})
	}
}

func TestUpdate_KeepRequired(t *testing.T) {
	decode := Update[personPatch](KeepRequired[person]())

	_, err := decode([]byte(`{"$unset":{"name":""}}`))
	apiErr := requireValidation(t, err)
	assert.Contains(t, apiErr.Message, `cannot unset required field "name"`)

	doc, err := decode([]byte(`{"$unset":{"email":""}}`))
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$unset": bson.M{"email": ""}}, doc)

	_, err = Update[personPatch]()([]byte(`{"$unset":{"name":""}}`))
	assert.NoError(t, err, "without the option any known field may be unset")
}

func TestSplitArray(t *testing.T) {
	items, err := SplitArray([]byte(` [{"name":"a"},{"name":"b"}]`))
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = SplitArray([]byte(`{"name":"a"}`))
	requireValidation(t, err)
}

func TestFromDocument(t *testing.T) {
	var p person
	require.NoError(t, FromDocument(bson.M{"_id": "1", "name": "Mary", "user": "u1"}, &p))
	assert.Equal(t, person{ID: "1", Name: "Mary"}, p)
}
