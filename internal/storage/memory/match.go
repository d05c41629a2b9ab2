package memory

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// matches reports whether doc satisfies a MongoDB-style filter. It covers the
// subset the API produces: equality, $and, $or, $nor, $eq, $ne, $in, $nin,
// $exists, $regex/$options, $gt, $gte, $lt, $lte.
func matches(doc bson.M, filter map[string]any) (bool, error) {
	for key, cond := range filter {
		switch key {
		case "$and", "$or", "$nor":
			subs, ok := toSlice(cond)
			if !ok {
				return false, fmt.Errorf("%s requires an array", key)
			}
			hits := 0
			for _, sub := range subs {
				subFilter, ok := asDoc(sub)
				if !ok {
					return false, fmt.Errorf("%s entries must be documents", key)
				}
				ok, err := matches(doc, subFilter)
				if err != nil {
					return false, err
				}
				if ok {
					hits++
				}
			}
			switch {
			case key == "$and" && hits != len(subs):
				return false, nil
			case key == "$or" && hits == 0:
				return false, nil
			case key == "$nor" && hits > 0:
				return false, nil
			}
		default:
			if strings.HasPrefix(key, "$") {
				return false, fmt.Errorf("unsupported top-level operator %s", key)
			}
			value, present := lookup(doc, key)
			ok, err := matchField(value, present, cond)
			if err != nil || !ok {
				return false, err
			}
		}
	}
	return true, nil
}

func matchField(value any, present bool, cond any) (bool, error) {
	ops, ok := asDoc(cond)
	if !ok || !isOperatorDoc(ops) {
		return present && equal(value, cond), nil
	}
	for op, arg := range ops {
		var ok bool
		switch op {
		case "$eq":
			ok = present && equal(value, arg)
		case "$ne":
			ok = !present || !equal(value, arg)
		case "$in", "$nin":
			list, isList := toSlice(arg)
			if !isList {
				return false, fmt.Errorf("%s requires an array", op)
			}
			found := false
			for _, candidate := range list {
				if present && equal(value, candidate) {
					found = true
					break
				}
			}
			ok = found == (op == "$in")
		case "$exists":
			want, _ := arg.(bool)
			ok = present == want
		case "$regex":
			pattern, isString := arg.(string)
			if !isString {
				return false, fmt.Errorf("$regex requires a string")
			}
			if opts, _ := ops["$options"].(string); strings.Contains(opts, "i") {
				pattern = "(?i)" + pattern
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return false, fmt.Errorf("invalid $regex: %w", err)
			}
			s, isString := value.(string)
			ok = present && isString && re.MatchString(s)
		case "$options":
			ok = true
		case "$gt", "$gte", "$lt", "$lte":
			if !present {
				return false, nil
			}
			c, comparable := compare(value, arg)
			if !comparable {
				return false, nil
			}
			switch op {
			case "$gt":
				ok = c > 0
			case "$gte":
				ok = c >= 0
			case "$lt":
				ok = c < 0
			case "$lte":
				ok = c <= 0
			}
		default:
			return false, fmt.Errorf("unsupported operator %s", op)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func isOperatorDoc(doc map[string]any) bool {
	if len(doc) == 0 {
		return false
	}
	for key := range doc {
		if !strings.HasPrefix(key, "$") {
			return false
		}
	}
	return true
}

// lookup resolves a dotted path against nested documents.
func lookup(doc map[string]any, path string) (any, bool) {
	var current any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := asDoc(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func asDoc(v any) (map[string]any, bool) {
	switch d := v.(type) {
	case bson.M:
		return d, true
	case map[string]any:
		return d, true
	case bson.D:
		out := make(map[string]any, len(d))
		for _, e := range d {
			out[e.Key] = e.Value
		}
		return out, true
	}
	return nil, false
}

func toSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case bson.A:
		return s, true
	case []any:
		return s, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	da, aDoc := asDoc(a)
	db, bDoc := asDoc(b)
	if aDoc || bDoc {
		if !aDoc || !bDoc || len(da) != len(db) {
			return false
		}
		for k, v := range da {
			if w, ok := db[k]; !ok || !equal(v, w) {
				return false
			}
		}
		return true
	}
	sa, aList := toSlice(a)
	sb, bList := toSlice(b)
	if aList || bList {
		if !aList || !bList || len(sa) != len(sb) {
			return false
		}
		for i := range sa {
			if !equal(sa[i], sb[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two scalars of the same family. Missing values sort first.
func compare(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	if !aok || !bok {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

func sortDocs(docs []bson.M, order bson.D) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, key := range order {
			dir := 1
			if n, ok := toFloat(key.Value); ok && n < 0 {
				dir = -1
			}
			a, aok := lookup(docs[i], key.Key)
			b, bok := lookup(docs[j], key.Key)
			switch {
			case !aok && !bok:
				continue
			case !aok:
				return dir > 0
			case !bok:
				return dir < 0
			}
			if c, ok := compare(a, b); ok && c != 0 {
				return c*dir < 0
			}
		}
		return false
	})
}

// applyUpdate runs $set / $unset against doc in place.
func applyUpdate(doc bson.M, update bson.M) error {
	for op, arg := range update {
		fields, ok := asDoc(arg)
		if !ok {
			return fmt.Errorf("%s requires a document", op)
		}
		switch op {
		case "$set", "$setOnInsert":
			for path, v := range fields {
				if path == "_id" {
					if existing, ok := doc["_id"]; ok && !equal(existing, v) {
						return fmt.Errorf("_id is immutable")
					}
				}
				setPath(doc, path, clone(v))
			}
		case "$unset":
			for path := range fields {
				unsetPath(doc, path)
			}
		default:
			return fmt.Errorf("unsupported update operator %s", op)
		}
	}
	return nil
}

func setPath(doc bson.M, path string, v any) {
	parts := strings.Split(path, ".")
	current := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(bson.M)
		if !ok {
			if m, isMap := asDoc(current[part]); isMap {
				next = bson.M(m)
			} else {
				next = bson.M{}
			}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = v
}

func unsetPath(doc bson.M, path string) {
	parts := strings.Split(path, ".")
	var current map[string]any = doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := asDoc(current[part])
		if !ok {
			return
		}
		current = next
	}
	delete(current, parts[len(parts)-1])
}

// seedFromFilter builds the base document of an upsert from the plain
// equality clauses of its filter.
func seedFromFilter(filter bson.M) bson.M {
	doc := bson.M{}
	for key, cond := range filter {
		if strings.HasPrefix(key, "$") {
			continue
		}
		if m, ok := asDoc(cond); ok && isOperatorDoc(m) {
			if eq, ok := m["$eq"]; ok {
				setPath(doc, key, clone(eq))
			}
			continue
		}
		setPath(doc, key, clone(cond))
	}
	return doc
}

// clone deep-copies documents and arrays so callers never share state with
// the store.
func clone(v any) any {
	if m, ok := asDoc(v); ok {
		out := make(bson.M, len(m))
		for k, val := range m {
			out[k] = clone(val)
		}
		return out
	}
	if s, ok := toSlice(v); ok {
		out := make(bson.A, len(s))
		for i, val := range s {
			out[i] = clone(val)
		}
		return out
	}
	return v
}

func cloneDoc(doc bson.M) bson.M {
	return clone(doc).(bson.M)
}
