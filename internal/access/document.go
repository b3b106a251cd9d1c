// Package access implements the portal's role-based permission model and
// tenant scoping: permission documents, principal resolution, guards and
// data scopes.
package access

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Module names a functional area of the portal that a role can be granted
// operations on.
type Module string

// Operation is one of the four CRUD capabilities a role grants per module.
type Operation string

const (
	OpView   Operation = "view"
	OpAdd    Operation = "add"
	OpEdit   Operation = "edit"
	OpDelete Operation = "delete"
)

// Operations lists every operation in canonical order.
var Operations = []Operation{OpView, OpAdd, OpEdit, OpDelete}

const (
	ModuleDashboard       Module = "dashboard"
	ModuleUsers           Module = "users"
	ModuleRoles           Module = "roles"
	ModuleProducts        Module = "products"
	ModuleOrders          Module = "orders"
	ModuleMeetings        Module = "meetings"
	ModuleMarketReports   Module = "market_reports"
	ModulePayments        Module = "payments"
	ModuleInvoiceDelivery Module = "invoice_delivery"
)

// Permission is a single module.operation capability.
type Permission struct {
	Module    Module
	Operation Operation
}

// Perm is shorthand for constructing a Permission.
func Perm(m Module, op Operation) Permission {
	return Permission{Module: m, Operation: op}
}

func (p Permission) String() string {
	return string(p.Module) + "." + string(p.Operation)
}

// ParsePermission parses "module.operation". It does not check the result
// against any vocabulary.
func ParsePermission(s string) (Permission, error) {
	mod, op, ok := strings.Cut(s, ".")
	if !ok || mod == "" || op == "" {
		return Permission{}, fmt.Errorf("invalid permission %q: expected module.operation", s)
	}
	return Permission{Module: Module(mod), Operation: Operation(op)}, nil
}

// OperationSet holds the granted flags for one module.
type OperationSet struct {
	View   bool `json:"view" yaml:"view"`
	Add    bool `json:"add" yaml:"add"`
	Edit   bool `json:"edit" yaml:"edit"`
	Delete bool `json:"delete" yaml:"delete"`
}

// Allows reports whether op is granted. Unknown operations are never granted.
func (s OperationSet) Allows(op Operation) bool {
	switch op {
	case OpView:
		return s.View
	case OpAdd:
		return s.Add
	case OpEdit:
		return s.Edit
	case OpDelete:
		return s.Delete
	}
	return false
}

// Any reports whether at least one operation is granted.
func (s OperationSet) Any() bool {
	return s.View || s.Add || s.Edit || s.Delete
}

func (s *OperationSet) grant(op Operation) {
	switch op {
	case OpView:
		s.View = true
	case OpAdd:
		s.Add = true
	case OpEdit:
		s.Edit = true
	case OpDelete:
		s.Delete = true
	}
}

// Vocabulary is the set of known modules together with the operations that
// apply to each one. Operations outside a module's applicable subset are
// always false after normalization.
type Vocabulary struct {
	modules    []Module
	applicable map[Module][]Operation
}

// NewVocabulary builds a vocabulary from a module → applicable operations
// table. A module mapped to an empty slice gets all four operations.
func NewVocabulary(entries map[Module][]Operation) *Vocabulary {
	v := &Vocabulary{applicable: make(map[Module][]Operation, len(entries))}
	for m, ops := range entries {
		if len(ops) == 0 {
			ops = Operations
		}
		v.applicable[m] = append([]Operation(nil), ops...)
		v.modules = append(v.modules, m)
	}
	sort.Slice(v.modules, func(i, j int) bool { return v.modules[i] < v.modules[j] })
	return v
}

// DefaultVocabulary is the portal's module table. The dashboard only has a
// view operation.
var DefaultVocabulary = NewVocabulary(map[Module][]Operation{
	ModuleDashboard:       {OpView},
	ModuleUsers:           Operations,
	ModuleRoles:           Operations,
	ModuleProducts:        Operations,
	ModuleOrders:          Operations,
	ModuleMeetings:        Operations,
	ModuleMarketReports:   Operations,
	ModulePayments:        Operations,
	ModuleInvoiceDelivery: Operations,
})

// Modules returns the known modules in sorted order.
func (v *Vocabulary) Modules() []Module {
	return append([]Module(nil), v.modules...)
}

// Applicable returns the operations that apply to m, or nil if m is unknown.
func (v *Vocabulary) Applicable(m Module) []Operation {
	return v.applicable[m]
}

// Known reports whether m is part of the vocabulary.
func (v *Vocabulary) Known(m Module) bool {
	_, ok := v.applicable[m]
	return ok
}

// Empty returns the fully denied document: every module present, nothing
// granted.
func (v *Vocabulary) Empty() *Document {
	d := &Document{sets: make(map[Module]OperationSet, len(v.modules))}
	for _, m := range v.modules {
		d.sets[m] = OperationSet{}
	}
	return d
}

// Normalize parses stored permission JSON into a Document. Malformed input,
// including invalid JSON, yields the fully denied document.
func (v *Vocabulary) Normalize(raw []byte) *Document {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return v.Empty()
	}
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return v.Empty()
	}
	return v.NormalizeValue(parsed)
}

// NormalizeValue normalizes an already-decoded value. Accepted shapes are
// a module → operations object (as produced by encoding/json or yaml.v3),
// a JSON string or byte slice, or an existing *Document. Only a literal
// boolean true grants an operation; unknown modules and operations are
// dropped.
func (v *Vocabulary) NormalizeValue(in any) *Document {
	switch val := in.(type) {
	case nil:
		return v.Empty()
	case *Document:
		if val == nil {
			return v.Empty()
		}
		return v.fromSets(val.sets)
	case map[Module]OperationSet:
		return v.fromSets(val)
	case string:
		return v.Normalize([]byte(val))
	case []byte:
		return v.Normalize(val)
	case json.RawMessage:
		return v.Normalize(val)
	}

	obj, ok := asObject(in)
	if !ok {
		return v.Empty()
	}
	d := v.Empty()
	for name, rawOps := range obj {
		m := Module(name)
		applicable, known := v.applicable[m]
		if !known {
			continue
		}
		ops, ok := asObject(rawOps)
		if !ok {
			continue
		}
		var set OperationSet
		for _, op := range applicable {
			if granted, ok := ops[string(op)].(bool); ok && granted {
				set.grant(op)
			}
		}
		d.sets[m] = set
	}
	return d
}

func (v *Vocabulary) fromSets(sets map[Module]OperationSet) *Document {
	d := v.Empty()
	for m, in := range sets {
		applicable, known := v.applicable[m]
		if !known {
			continue
		}
		var set OperationSet
		for _, op := range applicable {
			if in.Allows(op) {
				set.grant(op)
			}
		}
		d.sets[m] = set
	}
	return d
}

// asObject accepts both map[string]any (encoding/json) and map[any]any
// (older YAML decoders) shapes.
func asObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			key, ok := k.(string)
			if !ok {
				continue
			}
			out[key] = val
		}
		return out, true
	}
	return nil, false
}

// Normalize normalizes raw against DefaultVocabulary.
func Normalize(raw []byte) *Document {
	return DefaultVocabulary.Normalize(raw)
}

// NormalizeValue normalizes v against DefaultVocabulary.
func NormalizeValue(v any) *Document {
	return DefaultVocabulary.NormalizeValue(v)
}

// Document is a normalized module → OperationSet table. It is immutable
// once built; changing a role produces a new Document.
type Document struct {
	sets map[Module]OperationSet
}

// Has reports whether op is granted on m. A nil document grants nothing.
func (d *Document) Has(m Module, op Operation) bool {
	if d == nil {
		return false
	}
	set, ok := d.sets[m]
	if !ok {
		return false
	}
	return set.Allows(op)
}

// HasAny reports whether any operation is granted on m.
func (d *Document) HasAny(m Module) bool {
	if d == nil {
		return false
	}
	return d.sets[m].Any()
}

// Get returns the operation set for m. Unknown modules return the zero set.
func (d *Document) Get(m Module) OperationSet {
	if d == nil {
		return OperationSet{}
	}
	return d.sets[m]
}

// Modules returns the modules present in the document, sorted.
func (d *Document) Modules() []Module {
	if d == nil {
		return nil
	}
	out := make([]Module, 0, len(d.sets))
	for m := range d.sets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Granted lists every granted permission in module then operation order.
func (d *Document) Granted() []Permission {
	var out []Permission
	for _, m := range d.Modules() {
		set := d.sets[m]
		for _, op := range Operations {
			if set.Allows(op) {
				out = append(out, Perm(m, op))
			}
		}
	}
	return out
}

// Sets returns a copy of the underlying table.
func (d *Document) Sets() map[Module]OperationSet {
	out := make(map[Module]OperationSet, len(d.Modules()))
	for _, m := range d.Modules() {
		out[m] = d.sets[m]
	}
	return out
}

// Equal reports whether two documents grant exactly the same permissions.
func (d *Document) Equal(other *Document) bool {
	a, b := d.Modules(), other.Modules()
	if len(a) != len(b) {
		return false
	}
	for _, m := range a {
		if d.Get(m) != other.Get(m) {
			return false
		}
	}
	return true
}

// MarshalJSON emits the full normalized shape, every module with all four
// operation flags.
func (d *Document) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	return json.Marshal(d.sets)
}

// UnmarshalJSON normalizes the input against DefaultVocabulary. It never
// returns an error for well-formed JSON of the wrong shape.
func (d *Document) UnmarshalJSON(b []byte) error {
	n := DefaultVocabulary.Normalize(b)
	d.sets = n.sets
	return nil
}
