// Package acl evaluates access-control entries expressed as a small rule
// language instead of closures, so rule sets can be validated up front.
package acl

import (
	"fmt"
)

// Wildcards accepted in entries.
const (
	AnySubject   = "*"
	AnyOperation = "*"
)

// RuleKind enumerates the supported rules.
type RuleKind string

const (
	KindAllow               RuleKind = "allow"
	KindDeny                RuleKind = "deny"
	KindParamEqualsIdentity RuleKind = "paramEqualsIdentity"
)

// Rule decides a single permission.
type Rule struct {
	Kind  RuleKind
	Param string
}

// Allow grants unconditionally.
func Allow() Rule { return Rule{Kind: KindAllow} }

// Deny refuses unconditionally.
func Deny() Rule { return Rule{Kind: KindDeny} }

// ParamEqualsIdentity grants when the named path parameter is present and
// equals the authenticated identity. A missing parameter denies, which keeps
// collection-level operations closed.
func ParamEqualsIdentity(param string) Rule {
	return Rule{Kind: KindParamEqualsIdentity, Param: param}
}

// Validate reports malformed rules.
func (r Rule) Validate() error {
	switch r.Kind {
	case KindAllow, KindDeny:
		return nil
	case KindParamEqualsIdentity:
		if r.Param == "" {
			return fmt.Errorf("rule %s requires a parameter name", r.Kind)
		}
		return nil
	}
	return fmt.Errorf("unknown rule kind %q", r.Kind)
}

// Eval applies the rule to env.
func (r Rule) Eval(env Env) bool {
	switch r.Kind {
	case KindAllow:
		return true
	case KindParamEqualsIdentity:
		value, ok := env.Params[r.Param]
		return ok && value != "" && env.Identity != "" && value == env.Identity
	}
	return false
}

// Env is the request environment rules are evaluated against. An empty
// Identity means the caller is anonymous.
type Env struct {
	Identity string
	Params   map[string]string
}

// Entry grants permissions to a subject.
type Entry struct {
	Subject     string
	Permissions map[string]Rule
}

func (e Entry) matches(env Env) bool {
	if e.Subject == AnySubject {
		return true
	}
	return env.Identity != "" && e.Subject == env.Identity
}

// ACL is the access-control list of one routing-tree node. When SelfAndBelow
// names an operation, the rule for that operation also governs every node
// below this one.
type ACL struct {
	SelfAndBelow string
	Entries      []Entry
}

// Validate checks every entry and rule.
func (a *ACL) Validate() error {
	if a == nil {
		return nil
	}
	for i, entry := range a.Entries {
		if entry.Subject == "" {
			return fmt.Errorf("entry %d: empty subject", i)
		}
		for op, rule := range entry.Permissions {
			if err := rule.Validate(); err != nil {
				return fmt.Errorf("entry %d, operation %s: %w", i, op, err)
			}
		}
	}
	return nil
}

// Allows reports whether any matching entry grants op. An exact operation
// key takes precedence over the wildcard within an entry; anything not
// granted is denied.
func (a *ACL) Allows(op string, env Env) bool {
	if a == nil {
		return false
	}
	for _, entry := range a.Entries {
		if !entry.matches(env) {
			continue
		}
		rule, ok := entry.Permissions[op]
		if !ok {
			rule, ok = entry.Permissions[AnyOperation]
		}
		if ok && rule.Eval(env) {
			return true
		}
	}
	return false
}

// Authorize evaluates op against a node's own ACL and the ACLs of its
// ancestors (root first). Every ancestor with SelfAndBelow must grant its
// governing operation; then the node's own ACL decides. A node without an
// ACL is allowed only when at least one ancestor governs it.
func Authorize(ancestors []*ACL, own *ACL, op string, env Env) bool {
	governed := false
	for _, a := range ancestors {
		if a == nil || a.SelfAndBelow == "" {
			continue
		}
		if !a.Allows(a.SelfAndBelow, env) {
			return false
		}
		governed = true
	}
	if own != nil {
		return own.Allows(op, env)
	}
	return governed
}
