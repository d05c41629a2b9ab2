// Package resource binds declarative collection descriptors to HTTP. Each
// Resource maps the ten collection operations onto a storage.Collection,
// running access control and lifecycle hooks around every store call.
package resource

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/hongminglow/contacts-be/internal/acl"
	"github.com/hongminglow/contacts-be/internal/schema"
	"github.com/hongminglow/contacts-be/internal/storage"
)

// Operation names a collection operation. The names double as ACL
// permission keys.
type Operation string

const (
	OpInsert       Operation = "insert"
	OpInsertObject Operation = "insertObject"
	OpFind         Operation = "find"
	OpFindObject   Operation = "findObject"
	OpSave         Operation = "save"
	OpSaveObject   Operation = "saveObject"
	OpUpdate       Operation = "update"
	OpUpdateObject Operation = "updateObject"
	OpRemove       Operation = "remove"
	OpRemoveObject Operation = "removeObject"
)

// AllOperations lists every collection operation.
var AllOperations = []Operation{
	OpInsert, OpInsertObject, OpFind, OpFindObject, OpSave,
	OpSaveObject, OpUpdate, OpUpdateObject, OpRemove, OpRemoveObject,
}

// FindConfig shapes find requests.
type FindConfig struct {
	// PageSize is the default limit; zero means unlimited.
	PageSize int64
	// MaxPageSize caps any requested limit; zero means uncapped.
	MaxPageSize          int64
	SupportsPagination   bool
	SupportsSkipAndLimit bool
	SupportsIDQuery      bool
	SupportsQuery        bool
}

// UpdateConfig shapes update and updateObject requests.
type UpdateConfig struct {
	SupportsQuery  bool
	SupportsUpsert bool
}

// SaveObjectConfig shapes saveObject requests.
type SaveObjectConfig struct {
	SupportsUpsert bool
}

// RemoveConfig shapes remove requests.
type RemoveConfig struct {
	SupportsQuery bool
}

// Schemas holds the body decoders. Save falls back to Insert.
type Schemas struct {
	Insert schema.Decoder
	Save   schema.Decoder
	Update schema.Decoder
}

// Config describes one collection resource.
type Config struct {
	// Name is the URL path segment.
	Name       string
	Collection string
	// IDParam names the object id path variable. It must be unique along
	// the routing tree because children see their ancestors' variables.
	IDParam string

	Enabled              map[Operation]bool
	AllowUnauthenticated map[Operation]bool

	Find         FindConfig
	Update       UpdateConfig
	UpdateObject UpdateConfig
	SaveObject   SaveObjectConfig
	Remove       RemoveConfig

	Schemas Schemas
	ACL     *acl.ACL
	Hooks   Hooks
	NewID   func() string
}

// Resource is a validated, store-bound Config.
type Resource struct {
	cfg   Config
	coll  storage.Collection
	hooks Hooks
}

// New validates cfg and binds it to store.
func New(cfg Config, store storage.DocumentStore) (*Resource, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("resource: name is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("resource %s: collection is required", cfg.Name)
	}
	if cfg.IDParam == "" {
		cfg.IDParam = "id"
	}
	if cfg.Schemas.Save == nil {
		cfg.Schemas.Save = cfg.Schemas.Insert
	}
	if cfg.NewID == nil {
		cfg.NewID = newObjectID
	}
	for op, enabled := range cfg.Enabled {
		if !enabled {
			continue
		}
		if err := cfg.requireDecoder(op); err != nil {
			return nil, fmt.Errorf("resource %s: %w", cfg.Name, err)
		}
	}
	if err := cfg.ACL.Validate(); err != nil {
		return nil, fmt.Errorf("resource %s: acl: %w", cfg.Name, err)
	}
	hooks := cfg.Hooks
	if hooks == nil {
		hooks = NopHooks{}
	}
	return &Resource{cfg: cfg, coll: store.Collection(cfg.Collection), hooks: hooks}, nil
}

// Name returns the resource's path segment.
func (r *Resource) Name() string { return r.cfg.Name }

// ACL returns the resource's own access-control list.
func (r *Resource) ACL() *acl.ACL { return r.cfg.ACL }

func (c Config) requireDecoder(op Operation) error {
	var dec schema.Decoder
	switch op {
	case OpInsert, OpInsertObject:
		dec = c.Schemas.Insert
	case OpSave, OpSaveObject:
		dec = c.Schemas.Save
	case OpUpdate, OpUpdateObject:
		dec = c.Schemas.Update
	case OpFind, OpFindObject, OpRemove, OpRemoveObject:
		return nil
	default:
		return fmt.Errorf("unknown operation %q", op)
	}
	if dec == nil {
		return fmt.Errorf("operation %s needs a body schema", op)
	}
	return nil
}

func newObjectID() string {
	return primitive.NewObjectID().Hex()
}
