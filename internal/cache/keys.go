package cache

import (
	"net/url"
	"sort"
	"strings"
)

// Class groups keys that are invalidated together.
type Class string

const (
	ClassTickets  Class = "tickets"
	ClassAudit    Class = "audit"
	ClassAnalysis Class = "analysis"
	ClassPolicies Class = "policies"
)

// Prefix matches every key of the class.
func (c Class) Prefix() string {
	return string(c) + ":"
}

// Key is a typed cache key: a class plus named parameters. Two keys with the
// same class and parameters render identically regardless of insertion order.
type Key struct {
	class  Class
	params map[string]string
}

// NewKey starts a key for class.
func NewKey(class Class) Key {
	return Key{class: class, params: map[string]string{}}
}

// With returns a copy of k carrying name=value.
func (k Key) With(name, value string) Key {
	params := make(map[string]string, len(k.params)+1)
	for n, v := range k.params {
		params[n] = v
	}
	params[name] = value
	return Key{class: k.class, params: params}
}

// Class returns the key's class.
func (k Key) Class() Class {
	return k.class
}

// String renders "<class>:<k1>=<v1>&<k2>=<v2>" with names sorted and both
// sides query-escaped, so user input cannot forge another key.
func (k Key) String() string {
	names := make([]string, 0, len(k.params))
	for name := range k.params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(k.class.Prefix())
	for i, name := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(k.params[name]))
	}
	return b.String()
}

// TicketKey addresses one ticket's detail entry.
func TicketKey(id string) Key {
	return NewKey(ClassTickets).With("id", id)
}

// AuditKey addresses the audit trail of one entity.
func AuditKey(entityType, entityID string) Key {
	return NewKey(ClassAudit).With("entity", entityType).With("id", entityID)
}

// PolicyKey addresses the SLA policy of one priority.
func PolicyKey(priority string) Key {
	return NewKey(ClassPolicies).With("priority", priority)
}

// Dependency declares a cached class derived from an entity. Fields lists the
// entity fields whose change stales the class; empty means any change does.
// Scoped classes are keyed per entity and only that entity's key is dropped.
type Dependency struct {
	Class  Class
	Fields []string
	Scoped bool
}

// Invalidation is the set of prefixes and exact keys a mutation must drop.
type Invalidation struct {
	Prefixes []string
	Keys     []string
}

// Plan resolves deps against the fields a mutation changed.
func Plan(deps []Dependency, entityType, entityID string, changed []string) Invalidation {
	var inv Invalidation
	for _, dep := range deps {
		if !touches(dep.Fields, changed) {
			continue
		}
		if dep.Scoped {
			inv.Keys = append(inv.Keys, NewKey(dep.Class).With("entity", entityType).With("id", entityID).String())
			continue
		}
		inv.Prefixes = append(inv.Prefixes, dep.Class.Prefix())
	}
	return inv
}

func touches(fields, changed []string) bool {
	if len(fields) == 0 {
		return true
	}
	for _, f := range fields {
		for _, c := range changed {
			if f == c {
				return true
			}
		}
	}
	return false
}
