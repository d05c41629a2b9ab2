package resource

import (
	"bytes"
	"encoding/json"
	"math"
	"net/url"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/hongminglow/contacts-be/internal/acl"
	"github.com/hongminglow/contacts-be/internal/apierror"
	"github.com/hongminglow/contacts-be/internal/auth"
)

// Request is what hooks see of the HTTP request.
type Request struct {
	Op       Operation
	Identity auth.Identity
	// Params holds the path variables of this node and its ancestors.
	Params map[string]string
	Query  url.Values
}

func (r *Request) env() acl.Env {
	return acl.Env{Identity: r.Identity.ID, Params: r.Params}
}

// Query is a find request after parameter parsing. PreFind hooks may
// rewrite any field; a Search left non-empty after PreFind is rejected
// because the resource does not know which fields to search.
type Query struct {
	Filter bson.M
	Search string
	Sort   bson.D
	Skip   int64
	Limit  int64
}

// And conjoins the non-empty filters.
func And(filters ...bson.M) bson.M {
	parts := make(bson.A, 0, len(filters))
	for _, f := range filters {
		if len(f) > 0 {
			parts = append(parts, f)
		}
	}
	switch len(parts) {
	case 0:
		return bson.M{}
	case 1:
		return parts[0].(bson.M)
	}
	return bson.M{"$and": parts}
}

// server-side JavaScript and aggregation escapes are never accepted from clients.
var forbiddenOperators = map[string]bool{
	"$where":       true,
	"$function":    true,
	"$accumulator": true,
}

func parseFind(cfg FindConfig, values url.Values) (Query, error) {
	q := Query{Filter: bson.M{}}

	if raw, ok := single(values, "query"); ok {
		if !cfg.SupportsQuery {
			return q, apierror.Validation("parameter query is not supported")
		}
		filter, search, err := parseQueryParam(raw)
		if err != nil {
			return q, err
		}
		q.Filter, q.Search = filter, search
	}
	if term, ok := single(values, "search"); ok {
		if !cfg.SupportsQuery {
			return q, apierror.Validation("parameter search is not supported")
		}
		q.Search = strings.TrimSpace(term)
	}

	if ids, ok := values["_id"]; ok {
		if !cfg.SupportsIDQuery {
			return q, apierror.Validation("parameter _id is not supported")
		}
		in := make(bson.A, 0, len(ids))
		for _, id := range ids {
			in = append(in, id)
		}
		q.Filter = And(q.Filter, bson.M{"_id": bson.M{"$in": in}})
	}

	limit := cfg.PageSize
	if cfg.SupportsPagination {
		pageSize, err := intParam(values, "pageSize", cfg.PageSize)
		if err != nil {
			return q, err
		}
		if pageSize == 0 && values.Has("pageSize") {
			return q, apierror.Validation("parameter pageSize must be positive")
		}
		if cfg.MaxPageSize > 0 && pageSize > cfg.MaxPageSize {
			pageSize = cfg.MaxPageSize
		}
		page, err := intParam(values, "page", 0)
		if err != nil {
			return q, err
		}
		if pageSize > 0 && page > math.MaxInt64/pageSize {
			return q, apierror.Validation("parameter page is out of range")
		}
		q.Skip = page * pageSize
		limit = pageSize
	} else if values.Has("page") || values.Has("pageSize") {
		return q, apierror.Validation("pagination is not supported")
	}

	if cfg.SupportsSkipAndLimit {
		skip, err := intParam(values, "skip", 0)
		if err != nil {
			return q, err
		}
		if skip > math.MaxInt64-q.Skip {
			return q, apierror.Validation("parameter skip is out of range")
		}
		q.Skip += skip
		if values.Has("limit") {
			requested, err := intParam(values, "limit", 0)
			if err != nil {
				return q, err
			}
			if limit == 0 || requested < limit {
				limit = requested
			}
		}
	} else if values.Has("skip") || values.Has("limit") {
		return q, apierror.Validation("skip and limit are not supported")
	}

	if cfg.MaxPageSize > 0 && (limit == 0 || limit > cfg.MaxPageSize) {
		limit = cfg.MaxPageSize
	}
	q.Limit = limit
	return q, nil
}

// parseQueryParam accepts a JSON object filter, a JSON string or a bare
// string. Strings become the free-text search term.
func parseQueryParam(raw string) (bson.M, string, error) {
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "":
		return bson.M{}, "", nil
	case strings.HasPrefix(trimmed, "{"):
		filter, err := parseFilter(trimmed)
		return filter, "", err
	case strings.HasPrefix(trimmed, `"`):
		var term string
		if err := json.Unmarshal([]byte(trimmed), &term); err != nil {
			return nil, "", apierror.Validation("parameter query is not valid JSON")
		}
		return bson.M{}, strings.TrimSpace(term), nil
	}
	return bson.M{}, trimmed, nil
}

func parseFilter(raw string) (bson.M, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var filter bson.M
	if err := dec.Decode(&filter); err != nil || dec.More() {
		return nil, apierror.Validation("parameter query must be a JSON object")
	}
	normalized, err := normalize(filter)
	if err != nil {
		return nil, err
	}
	return normalized.(bson.M), nil
}

// normalize converts json.Number values and rejects forbidden operators.
func normalize(v any) (any, error) {
	switch t := v.(type) {
	case bson.M:
		return normalizeMap(t)
	case map[string]any:
		return normalizeMap(t)
	case []any:
		out := make(bson.A, len(t))
		for i, item := range t {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, apierror.Validation("invalid number %s in query", t)
		}
		return f, nil
	}
	return v, nil
}

func normalizeMap(m map[string]any) (bson.M, error) {
	out := make(bson.M, len(m))
	for k, v := range m {
		if forbiddenOperators[k] {
			return nil, apierror.Validation("operator %s is not allowed in query", k)
		}
		n, err := normalize(v)
		if err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, nil
}

// queryFilter reads an optional object filter for update and remove.
func queryFilter(values url.Values, supported bool) (bson.M, error) {
	raw, ok := single(values, "query")
	if !ok {
		return bson.M{}, nil
	}
	if !supported {
		return nil, apierror.Validation("parameter query is not supported")
	}
	if strings.TrimSpace(raw) == "" {
		return bson.M{}, nil
	}
	return parseFilter(strings.TrimSpace(raw))
}

func upsertParam(values url.Values, supported bool) (bool, error) {
	raw, ok := single(values, "upsert")
	if !ok {
		return false, nil
	}
	upsert, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apierror.Validation("parameter upsert must be a boolean")
	}
	if upsert && !supported {
		return false, apierror.Validation("upsert is not supported")
	}
	return upsert, nil
}

func single(values url.Values, key string) (string, bool) {
	vs, ok := values[key]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[len(vs)-1], true
}

func intParam(values url.Values, key string, def int64) (int64, error) {
	raw, ok := single(values, key)
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 0 {
		return 0, apierror.Validation("parameter %s must be a non-negative integer", key)
	}
	return n, nil
}
