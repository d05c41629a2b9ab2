// Package schema decodes request bodies into typed structs, rejects unknown
// fields, validates `validate` tags and converts the result into documents.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/hongminglow/contacts-be/internal/apierror"
)

// Decoder turns a raw JSON body into a document ready for the store.
type Decoder func(raw []byte) (bson.M, error)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	return v
}

func jsonName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}

// Decode strictly decodes a single JSON object into T and validates it.
func Decode[T any](raw []byte) (T, error) {
	var v T
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return v, apierror.Validation("body must be a JSON object")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, apierror.Validation("invalid body: %s", describeDecodeError(err))
	}
	if dec.More() {
		return v, apierror.Validation("invalid body: trailing data")
	}
	if err := validate.Struct(v); err != nil {
		return v, apierror.Validation("invalid body: %s", describeValidationError(err))
	}
	return v, nil
}

// SplitArray splits a JSON array body into its raw elements.
func SplitArray(raw []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, apierror.Validation("body must be a JSON array")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, apierror.Validation("invalid body: %v", err)
	}
	return items, nil
}

// Object builds a Decoder for object bodies described by T.
func Object[T any]() Decoder {
	return func(raw []byte) (bson.M, error) {
		v, err := Decode[T](raw)
		if err != nil {
			return nil, err
		}
		return ToDocument(v)
	}
}

// UpdateOption adjusts the rules of an Update decoder.
type UpdateOption func(*updateRules)

type updateRules struct {
	keep map[string]struct{}
}

// KeepRequired forbids $unset of every field M tags as required, so a
// partial update cannot leave a document M would reject.
func KeepRequired[M any]() UpdateOption {
	required := requiredFields(reflect.TypeOf((*M)(nil)).Elem())
	return func(r *updateRules) {
		for name := range required {
			r.keep[name] = struct{}{}
		}
	}
}

// Update builds a Decoder for update bodies. A body without operators is
// validated against T and wrapped in $set. Operator bodies may use $set
// (validated against T) and $unset (keys must be fields of T).
// T should declare every field optional.
func Update[T any](opts ...UpdateOption) Decoder {
	fields := fieldNames(reflect.TypeOf((*T)(nil)).Elem())
	rules := updateRules{keep: map[string]struct{}{}}
	for _, opt := range opts {
		opt(&rules)
	}
	return func(raw []byte) (bson.M, error) {
		var top map[string]json.RawMessage
		if err := json.Unmarshal(raw, &top); err != nil || top == nil {
			return nil, apierror.Validation("update must be a JSON object")
		}
		if len(top) == 0 {
			return nil, apierror.Validation("update is empty")
		}
		operators := 0
		for key := range top {
			if strings.HasPrefix(key, "$") {
				operators++
			}
		}
		if operators == 0 {
			set, err := Object[T]()(raw)
			if err != nil {
				return nil, err
			}
			if len(set) == 0 {
				return nil, apierror.Validation("update is empty")
			}
			return bson.M{"$set": set}, nil
		}
		if operators != len(top) {
			return nil, apierror.Validation("update cannot mix operators and fields")
		}

		update := bson.M{}
		for op, body := range top {
			switch op {
			case "$set":
				set, err := Object[T]()(body)
				if err != nil {
					return nil, err
				}
				if len(set) > 0 {
					update["$set"] = set
				}
			case "$unset":
				var unset map[string]any
				if err := json.Unmarshal(body, &unset); err != nil {
					return nil, apierror.Validation("$unset must be an object")
				}
				doc := bson.M{}
				for key := range unset {
					if _, ok := fields[key]; !ok || key == "_id" {
						return nil, apierror.Validation("cannot unset %q", key)
					}
					if _, kept := rules.keep[key]; kept {
						return nil, apierror.Validation("cannot unset required field %q", key)
					}
					doc[key] = ""
				}
				if len(doc) > 0 {
					update["$unset"] = doc
				}
			default:
				return nil, apierror.Validation("unsupported update operator %s", op)
			}
		}
		if len(update) == 0 {
			return nil, apierror.Validation("update is empty")
		}
		return update, nil
	}
}

// ToDocument converts a bson-tagged value into a document. Empty fields
// tagged omitempty are dropped.
func ToDocument(v any) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return doc, nil
}

// FromDocument decodes a stored document into out.
func FromDocument(doc bson.M, out any) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal document: %w", err)
	}
	return nil
}

func fieldNames(t reflect.Type) map[string]struct{} {
	names := make(map[string]struct{})
	if t.Kind() != reflect.Struct {
		return names
	}
	for i := 0; i < t.NumField(); i++ {
		if name := jsonName(t.Field(i)); name != "" {
			names[name] = struct{}{}
		}
	}
	return names
}

func requiredFields(t reflect.Type) map[string]struct{} {
	names := make(map[string]struct{})
	if t.Kind() != reflect.Struct {
		return names
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := jsonName(field)
		if name == "" {
			continue
		}
		for _, tag := range strings.Split(field.Tag.Get("validate"), ",") {
			if tag == "required" {
				names[name] = struct{}{}
				break
			}
		}
	}
	return names
}

func describeDecodeError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("field %q must be %s", typeErr.Field, typeErr.Type)
	}
	return err.Error()
}

func describeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "email":
			msgs = append(msgs, fmt.Sprintf("%s must be an email address", field))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %q", field, fe.Tag()))
		}
	}
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}
