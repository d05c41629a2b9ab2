package resource

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/mux"

	"github.com/hongminglow/contacts-be/internal/acl"
	"github.com/hongminglow/contacts-be/internal/apierror"
	"github.com/hongminglow/contacts-be/internal/auth"
	"github.com/hongminglow/contacts-be/internal/http/respond"
)

// EndpointFunc serves one method of an Endpoint.
type EndpointFunc func(ctx context.Context, req *Request) (status int, body any, err error)

// Endpoint is a single non-collection path such as /me. ACL permission keys
// are lower-case method names.
type Endpoint struct {
	Name                 string
	ACL                  *acl.ACL
	AllowUnauthenticated bool
	Methods              map[string]EndpointFunc
}

// Node is one segment of the routing tree. Exactly one of Resource and
// Endpoint is set. Children of a resource are mounted below its object
// path (/users/{user}/contacts); children of an endpoint below its path.
// An ACL with SelfAndBelow governs every descendant.
type Node struct {
	Resource *Resource
	Endpoint *Endpoint
	Children []*Node
}

// Mount validates the tree rooted at nodes and registers it on router.
func Mount(router *mux.Router, nodes ...*Node) error {
	for _, n := range nodes {
		if err := n.mount(router, "", nil, map[string]bool{}); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) mount(router *mux.Router, prefix string, ancestors []*acl.ACL, vars map[string]bool) error {
	switch {
	case n.Resource != nil && n.Endpoint != nil:
		return fmt.Errorf("node under %q has both a resource and an endpoint", prefix)
	case n.Resource != nil:
		res := n.Resource
		if vars[res.cfg.IDParam] {
			return fmt.Errorf("resource %s: path variable %q already used by an ancestor", res.cfg.Name, res.cfg.IDParam)
		}
		b := &binding{Resource: res, ancestors: ancestors}
		collectionPath := prefix + "/" + res.cfg.Name
		objectPath := collectionPath + "/{" + res.cfg.IDParam + "}"
		router.HandleFunc(collectionPath, b.serveCollection)
		router.HandleFunc(objectPath, b.serveObject)
		return n.mountChildren(router, objectPath, append(ancestors, res.cfg.ACL), with(vars, res.cfg.IDParam))
	case n.Endpoint != nil:
		e := n.Endpoint
		if e.Name == "" {
			return fmt.Errorf("endpoint under %q has no name", prefix)
		}
		if err := e.ACL.Validate(); err != nil {
			return fmt.Errorf("endpoint %s: acl: %w", e.Name, err)
		}
		path := prefix + "/" + e.Name
		router.Handle(path, &endpointBinding{Endpoint: e, ancestors: ancestors})
		return n.mountChildren(router, path, append(ancestors, e.ACL), vars)
	}
	return fmt.Errorf("empty node under %q", prefix)
}

func (n *Node) mountChildren(router *mux.Router, prefix string, ancestors []*acl.ACL, vars map[string]bool) error {
	for _, child := range n.Children {
		// copy so siblings do not share a backing array
		chain := append([]*acl.ACL(nil), ancestors...)
		if err := child.mount(router, prefix, chain, vars); err != nil {
			return err
		}
	}
	return nil
}

func with(vars map[string]bool, name string) map[string]bool {
	out := make(map[string]bool, len(vars)+1)
	for k := range vars {
		out[k] = true
	}
	out[name] = true
	return out
}

type endpointBinding struct {
	*Endpoint
	ancestors []*acl.ACL
}

func (e *endpointBinding) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fn, ok := e.Methods[r.Method]
	if !ok {
		respond.Problem(w, r, apierror.MethodNotAllowed("method not allowed"))
		return
	}
	op := strings.ToLower(r.Method)
	req := &Request{
		Op:       Operation(op),
		Identity: auth.FromContext(r.Context()),
		Params:   mux.Vars(r),
		Query:    r.URL.Query(),
	}
	if req.Identity.Anonymous() && !e.AllowUnauthenticated {
		respond.Problem(w, r, apierror.Unauthenticated("authentication required"))
		return
	}
	if !acl.Authorize(e.ancestors, e.ACL, op, req.env()) {
		respond.Problem(w, r, apierror.Forbidden("forbidden"))
		return
	}
	status, body, err := fn(r.Context(), req)
	if err != nil {
		respond.Problem(w, r, err)
		return
	}
	respond.JSON(w, status, body)
}

var operationMethods = map[Operation]string{
	OpInsert:       http.MethodPost,
	OpInsertObject: http.MethodPost,
	OpFind:         http.MethodGet,
	OpFindObject:   http.MethodGet,
	OpSave:         http.MethodPut,
	OpSaveObject:   http.MethodPut,
	OpUpdate:       http.MethodPatch,
	OpUpdateObject: http.MethodPatch,
	OpRemove:       http.MethodDelete,
	OpRemoveObject: http.MethodDelete,
}

// Methods lists, sorted, the HTTP methods some node of the tree answers.
func Methods(nodes ...*Node) []string {
	set := map[string]struct{}{}
	var walk func([]*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			if n.Resource != nil {
				for op, enabled := range n.Resource.cfg.Enabled {
					if method, ok := operationMethods[op]; ok && enabled {
						set[method] = struct{}{}
					}
				}
			}
			if n.Endpoint != nil {
				for method := range n.Endpoint.Methods {
					set[method] = struct{}{}
				}
			}
			walk(n.Children)
		}
	}
	walk(nodes)

	methods := make([]string, 0, len(set))
	for method := range set {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return methods
}
