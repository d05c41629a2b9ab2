package resource

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/hongminglow/contacts-be/internal/acl"
	"github.com/hongminglow/contacts-be/internal/apierror"
	"github.com/hongminglow/contacts-be/internal/auth"
	"github.com/hongminglow/contacts-be/internal/http/respond"
	"github.com/hongminglow/contacts-be/internal/schema"
	"github.com/hongminglow/contacts-be/internal/storage"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

type result struct {
	status   int
	body     any
	location string
}

// binding is a Resource mounted below a chain of ancestor ACLs.
type binding struct {
	*Resource
	ancestors []*acl.ACL
}

func (b *binding) serveCollection(w http.ResponseWriter, r *http.Request) {
	var op Operation
	var body []byte
	switch r.Method {
	case http.MethodPost:
		raw, err := readBody(r)
		if err != nil {
			respond.Problem(w, r, err)
			return
		}
		body = raw
		op = OpInsertObject
		if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
			op = OpInsert
		}
	case http.MethodGet:
		op = OpFind
	case http.MethodPut:
		op = OpSave
	case http.MethodPatch:
		op = OpUpdate
	case http.MethodDelete:
		op = OpRemove
	default:
		respond.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	b.serve(w, r, op, body)
}

func (b *binding) serveObject(w http.ResponseWriter, r *http.Request) {
	var op Operation
	switch r.Method {
	case http.MethodGet:
		op = OpFindObject
	case http.MethodPut:
		op = OpSaveObject
	case http.MethodPatch:
		op = OpUpdateObject
	case http.MethodDelete:
		op = OpRemoveObject
	default:
		respond.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	b.serve(w, r, op, nil)
}

// serve checks, in order, that op is enabled, that the caller is
// authenticated where required and that the ACL chain grants op. No store
// call happens before all three pass.
func (b *binding) serve(w http.ResponseWriter, r *http.Request, op Operation, body []byte) {
	req := &Request{
		Op:       op,
		Identity: auth.FromContext(r.Context()),
		Params:   mux.Vars(r),
		Query:    r.URL.Query(),
	}
	if !b.cfg.Enabled[op] {
		respond.Problem(w, r, apierror.MethodNotAllowed("operation "+string(op)+" is not enabled"))
		return
	}
	if req.Identity.Anonymous() && !b.cfg.AllowUnauthenticated[op] {
		respond.Problem(w, r, apierror.Unauthenticated("authentication required"))
		return
	}
	if !acl.Authorize(b.ancestors, b.cfg.ACL, string(op), req.env()) {
		respond.Problem(w, r, apierror.Forbidden("forbidden"))
		return
	}

	if body == nil && (r.Method == http.MethodPut || r.Method == http.MethodPatch) {
		raw, err := readBody(r)
		if err != nil {
			respond.Problem(w, r, err)
			return
		}
		body = raw
	}

	res, err := b.run(r.Context(), req, body, r.URL.Path)
	if err != nil {
		respond.Problem(w, r, err)
		return
	}
	if res.location != "" {
		w.Header().Set("Location", res.location)
	}
	respond.JSON(w, res.status, res.body)
}

func (b *binding) run(ctx context.Context, req *Request, body []byte, path string) (result, error) {
	id := req.Params[b.cfg.IDParam]
	switch req.Op {
	case OpInsert:
		return b.insert(ctx, req, body)
	case OpInsertObject:
		return b.insertObject(ctx, req, body, strings.TrimSuffix(path, "/"))
	case OpFind:
		return b.find(ctx, req)
	case OpFindObject:
		return b.findObject(ctx, req, id)
	case OpSave:
		return b.save(ctx, req, body)
	case OpSaveObject:
		return b.saveObject(ctx, req, id, body)
	case OpUpdate:
		return b.update(ctx, req, body)
	case OpUpdateObject:
		return b.updateObject(ctx, req, id, body)
	case OpRemove:
		return b.remove(ctx, req)
	case OpRemoveObject:
		return b.removeObject(ctx, req, id)
	}
	return result{}, apierror.MethodNotAllowed("unknown operation")
}

func (b *binding) insert(ctx context.Context, req *Request, body []byte) (result, error) {
	docs, err := decodeAll(b.cfg.Schemas.Insert, body)
	if err != nil {
		return result{}, err
	}
	if docs, err = b.hooks.PreInsert(ctx, req, docs); err != nil {
		return result{}, err
	}
	for _, doc := range docs {
		b.assignID(doc)
	}
	if len(docs) > 0 {
		if err := b.coll.InsertMany(ctx, docs); err != nil {
			return result{}, err
		}
	}
	out, err := b.hooks.PostInsert(ctx, req, docs)
	if err != nil {
		return result{}, err
	}
	return result{status: http.StatusCreated, body: out}, nil
}

func (b *binding) insertObject(ctx context.Context, req *Request, body []byte, collectionPath string) (result, error) {
	doc, err := b.cfg.Schemas.Insert(body)
	if err != nil {
		return result{}, err
	}
	if doc, err = b.hooks.PreInsertObject(ctx, req, doc); err != nil {
		return result{}, err
	}
	id := b.assignID(doc)
	if err := b.coll.InsertOne(ctx, doc); err != nil {
		return result{}, err
	}
	out, err := b.hooks.PostInsertObject(ctx, req, doc)
	if err != nil {
		return result{}, err
	}
	return result{status: http.StatusCreated, body: out, location: collectionPath + "/" + id}, nil
}

func (b *binding) find(ctx context.Context, req *Request) (result, error) {
	q, err := parseFind(b.cfg.Find, req.Query)
	if err != nil {
		return result{}, err
	}
	if err := b.hooks.PreFind(ctx, req, &q); err != nil {
		return result{}, err
	}
	if q.Search != "" {
		return result{}, apierror.Validation("free-text search is not supported")
	}
	docs, err := b.coll.Find(ctx, q.Filter, storage.FindOptions{Sort: q.Sort, Skip: q.Skip, Limit: q.Limit})
	if err != nil {
		return result{}, err
	}
	if docs == nil {
		docs = []bson.M{}
	}
	out, err := b.hooks.PostFind(ctx, req, docs)
	if err != nil {
		return result{}, err
	}
	return result{status: http.StatusOK, body: out}, nil
}

func (b *binding) findObject(ctx context.Context, req *Request, id string) (result, error) {
	filter, err := b.hooks.PreFindObject(ctx, req, bson.M{"_id": id})
	if err != nil {
		return result{}, err
	}
	doc, err := b.coll.FindOne(ctx, filter)
	if errors.Is(err, storage.ErrNotFound) {
		return result{}, apierror.NotFound(b.cfg.Name + " not found")
	}
	if err != nil {
		return result{}, err
	}
	out, err := b.hooks.PostFindObject(ctx, req, doc)
	if err != nil {
		return result{}, err
	}
	return result{status: http.StatusOK, body: out}, nil
}

// save replaces every document in the resource's scope with the body.
func (b *binding) save(ctx context.Context, req *Request, body []byte) (result, error) {
	docs, err := decodeAll(b.cfg.Schemas.Save, body)
	if err != nil {
		return result{}, err
	}
	filter, docs, err := b.hooks.PreSave(ctx, req, bson.M{}, docs)
	if err != nil {
		return result{}, err
	}
	for _, doc := range docs {
		b.assignID(doc)
	}
	previous, err := b.coll.Find(ctx, filter, storage.FindOptions{})
	if err != nil {
		return result{}, err
	}
	if _, err := b.coll.DeleteMany(ctx, filter); err != nil {
		return result{}, err
	}
	if len(docs) > 0 {
		if err := b.coll.InsertMany(ctx, docs); err != nil {
			b.restore(ctx, filter, previous)
			return result{}, err
		}
	}
	out, err := b.hooks.PostSave(ctx, req, docs)
	if err != nil {
		return result{}, err
	}
	return result{status: http.StatusOK, body: out}, nil
}

// restore puts back the documents a failed save removed. Whatever part of
// the new batch was written is dropped first.
func (b *binding) restore(ctx context.Context, filter bson.M, previous []bson.M) {
	logger := zerolog.Ctx(ctx)
	if _, err := b.coll.DeleteMany(ctx, filter); err != nil {
		logger.Error().Err(err).Str("resource", b.cfg.Name).Msg("save rollback: delete partial batch")
		return
	}
	if len(previous) == 0 {
		return
	}
	if err := b.coll.InsertMany(ctx, previous); err != nil {
		logger.Error().Err(err).Str("resource", b.cfg.Name).Int("documents", len(previous)).Msg("save rollback: reinsert previous documents")
	}
}

func (b *binding) saveObject(ctx context.Context, req *Request, id string, body []byte) (result, error) {
	doc, err := b.cfg.Schemas.Save(body)
	if err != nil {
		return result{}, err
	}
	if bodyID, ok := doc["_id"]; ok && auth.IDString(bodyID) != id {
		return result{}, apierror.Validation("_id in body does not match the path")
	}
	doc["_id"] = id
	filter, doc, err := b.hooks.PreSaveObject(ctx, req, bson.M{"_id": id}, doc)
	if err != nil {
		return result{}, err
	}
	res, err := b.coll.ReplaceOne(ctx, filter, doc, b.cfg.SaveObject.SupportsUpsert)
	if err != nil {
		return result{}, err
	}
	if res.Matched == 0 && !res.Upserted {
		return result{}, apierror.NotFound(b.cfg.Name + " not found")
	}
	out, err := b.hooks.PostSaveObject(ctx, req, doc, res.Upserted)
	if err != nil {
		return result{}, err
	}
	status := http.StatusOK
	if res.Upserted {
		status = http.StatusCreated
	}
	return result{status: status, body: out}, nil
}

func (b *binding) update(ctx context.Context, req *Request, body []byte) (result, error) {
	update, err := b.cfg.Schemas.Update(body)
	if err != nil {
		return result{}, err
	}
	filter, err := queryFilter(req.Query, b.cfg.Update.SupportsQuery)
	if err != nil {
		return result{}, err
	}
	upsert, err := upsertParam(req.Query, b.cfg.Update.SupportsUpsert)
	if err != nil {
		return result{}, err
	}
	if filter, update, err = b.hooks.PreUpdate(ctx, req, filter, update); err != nil {
		return result{}, err
	}
	res, err := b.coll.UpdateMany(ctx, filter, update, upsert)
	if err != nil {
		return result{}, err
	}
	return result{status: http.StatusOK, body: countBody(res)}, nil
}

func (b *binding) updateObject(ctx context.Context, req *Request, id string, body []byte) (result, error) {
	update, err := b.cfg.Schemas.Update(body)
	if err != nil {
		return result{}, err
	}
	upsert, err := upsertParam(req.Query, b.cfg.UpdateObject.SupportsUpsert)
	if err != nil {
		return result{}, err
	}
	filter, update, err := b.hooks.PreUpdateObject(ctx, req, bson.M{"_id": id}, update)
	if err != nil {
		return result{}, err
	}
	res, err := b.coll.UpdateOne(ctx, filter, update, upsert)
	if err != nil {
		return result{}, err
	}
	if res.Matched == 0 && !res.Upserted {
		return result{}, apierror.NotFound(b.cfg.Name + " not found")
	}
	return result{status: http.StatusOK, body: countBody(res)}, nil
}

func (b *binding) remove(ctx context.Context, req *Request) (result, error) {
	filter, err := queryFilter(req.Query, b.cfg.Remove.SupportsQuery)
	if err != nil {
		return result{}, err
	}
	if filter, err = b.hooks.PreRemove(ctx, req, filter); err != nil {
		return result{}, err
	}
	n, err := b.coll.DeleteMany(ctx, filter)
	if err != nil {
		return result{}, err
	}
	return result{status: http.StatusOK, body: bson.M{"n": n}}, nil
}

func (b *binding) removeObject(ctx context.Context, req *Request, id string) (result, error) {
	filter, err := b.hooks.PreRemoveObject(ctx, req, bson.M{"_id": id})
	if err != nil {
		return result{}, err
	}
	n, err := b.coll.DeleteOne(ctx, filter)
	if err != nil {
		return result{}, err
	}
	if n == 0 {
		return result{}, apierror.NotFound(b.cfg.Name + " not found")
	}
	if err := b.hooks.PostRemoveObject(ctx, req, filter); err != nil {
		return result{}, err
	}
	return result{status: http.StatusOK, body: bson.M{"n": n}}, nil
}

func (b *binding) assignID(doc bson.M) string {
	if id, ok := doc["_id"]; ok && auth.IDString(id) != "" {
		return auth.IDString(id)
	}
	id := b.cfg.NewID()
	doc["_id"] = id
	return id
}

func countBody(res storage.WriteResult) bson.M {
	n := res.Matched
	if res.Upserted {
		n++
	}
	return bson.M{"n": n}
}

// decodeAll validates every element before any is accepted, so a bulk
// request either passes as a whole or is rejected as a whole.
func decodeAll(dec schema.Decoder, body []byte) ([]bson.M, error) {
	items, err := schema.SplitArray(body)
	if err != nil {
		return nil, err
	}
	docs := make([]bson.M, 0, len(items))
	seen := make(map[string]int, len(items))
	for i, item := range items {
		doc, err := dec(item)
		if err != nil {
			var apiErr *apierror.Error
			if errors.As(err, &apiErr) {
				return nil, apierror.Validation("item %d: %s", i, apiErr.Message)
			}
			return nil, err
		}
		if id := auth.IDString(doc["_id"]); id != "" {
			if first, dup := seen[id]; dup {
				return nil, apierror.Validation("item %d: _id %q repeats item %d", i, id, first)
			}
			seen[id] = i
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func readBody(r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, apierror.Validation("could not read request body")
	}
	if len(raw) > MaxBodyBytes {
		return nil, apierror.Validation("request body too large")
	}
	return raw, nil
}
