package resource

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// Hooks is the lifecycle of a resource. Pre hooks may rewrite filters,
// documents and updates, or reject the request with an *apierror.Error.
// Post hooks shape what the client sees. Embed NopHooks and override only
// the stages a resource needs.
type Hooks interface {
	PreInsert(ctx context.Context, req *Request, docs []bson.M) ([]bson.M, error)
	PostInsert(ctx context.Context, req *Request, docs []bson.M) (any, error)

	PreInsertObject(ctx context.Context, req *Request, doc bson.M) (bson.M, error)
	PostInsertObject(ctx context.Context, req *Request, doc bson.M) (any, error)

	PreFind(ctx context.Context, req *Request, q *Query) error
	PostFind(ctx context.Context, req *Request, docs []bson.M) (any, error)

	PreFindObject(ctx context.Context, req *Request, filter bson.M) (bson.M, error)
	PostFindObject(ctx context.Context, req *Request, doc bson.M) (any, error)

	PreSave(ctx context.Context, req *Request, filter bson.M, docs []bson.M) (bson.M, []bson.M, error)
	PostSave(ctx context.Context, req *Request, docs []bson.M) (any, error)

	PreSaveObject(ctx context.Context, req *Request, filter, doc bson.M) (bson.M, bson.M, error)
	PostSaveObject(ctx context.Context, req *Request, doc bson.M, created bool) (any, error)

	PreUpdate(ctx context.Context, req *Request, filter, update bson.M) (bson.M, bson.M, error)
	PreUpdateObject(ctx context.Context, req *Request, filter, update bson.M) (bson.M, bson.M, error)

	PreRemove(ctx context.Context, req *Request, filter bson.M) (bson.M, error)
	PreRemoveObject(ctx context.Context, req *Request, filter bson.M) (bson.M, error)
	PostRemoveObject(ctx context.Context, req *Request, filter bson.M) error
}

// NopHooks passes everything through unchanged.
type NopHooks struct{}

var _ Hooks = NopHooks{}

func (NopHooks) PreInsert(_ context.Context, _ *Request, docs []bson.M) ([]bson.M, error) {
	return docs, nil
}

func (NopHooks) PostInsert(_ context.Context, _ *Request, docs []bson.M) (any, error) {
	return docs, nil
}

func (NopHooks) PreInsertObject(_ context.Context, _ *Request, doc bson.M) (bson.M, error) {
	return doc, nil
}

func (NopHooks) PostInsertObject(_ context.Context, _ *Request, doc bson.M) (any, error) {
	return doc, nil
}

func (NopHooks) PreFind(context.Context, *Request, *Query) error { return nil }

func (NopHooks) PostFind(_ context.Context, _ *Request, docs []bson.M) (any, error) {
	return docs, nil
}

func (NopHooks) PreFindObject(_ context.Context, _ *Request, filter bson.M) (bson.M, error) {
	return filter, nil
}

func (NopHooks) PostFindObject(_ context.Context, _ *Request, doc bson.M) (any, error) {
	return doc, nil
}

func (NopHooks) PreSave(_ context.Context, _ *Request, filter bson.M, docs []bson.M) (bson.M, []bson.M, error) {
	return filter, docs, nil
}

func (NopHooks) PostSave(_ context.Context, _ *Request, docs []bson.M) (any, error) {
	return docs, nil
}

func (NopHooks) PreSaveObject(_ context.Context, _ *Request, filter, doc bson.M) (bson.M, bson.M, error) {
	return filter, doc, nil
}

func (NopHooks) PostSaveObject(_ context.Context, _ *Request, doc bson.M, _ bool) (any, error) {
	return doc, nil
}

func (NopHooks) PreUpdate(_ context.Context, _ *Request, filter, update bson.M) (bson.M, bson.M, error) {
	return filter, update, nil
}

func (NopHooks) PreUpdateObject(_ context.Context, _ *Request, filter, update bson.M) (bson.M, bson.M, error) {
	return filter, update, nil
}

func (NopHooks) PreRemove(_ context.Context, _ *Request, filter bson.M) (bson.M, error) {
	return filter, nil
}

func (NopHooks) PreRemoveObject(_ context.Context, _ *Request, filter bson.M) (bson.M, error) {
	return filter, nil
}

func (NopHooks) PostRemoveObject(context.Context, *Request, bson.M) error { return nil }
