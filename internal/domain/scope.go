package domain

import (
	"encoding/json"
	"fmt"
)

// Scope is the target of a run: either the whole catalog (Global) or one named
// entry. The zero value is Global.
type Scope struct {
	kind      ScopeKind
	entryName string
}

// Global returns the scope of a run that is not bound to any entry. It is the
// zero Scope so that scopes compare equal with ==.
func Global() Scope {
	return Scope{}
}

// EntryScope returns the scope of a run bound to the entry with the given name.
// The name is an opaque key; its existence is not checked.
func EntryScope(name string) Scope {
	return Scope{kind: ScopeKindEntry, entryName: name}
}

// ScopeFor maps an optional entry name to a scope: empty means Global.
func ScopeFor(entryName string) Scope {
	if entryName == "" {
		return Global()
	}
	return EntryScope(entryName)
}

// Kind returns the scope discriminator.
func (s Scope) Kind() ScopeKind {
	if s.kind == "" {
		return ScopeKindGlobal
	}
	return s.kind
}

// IsGlobal reports whether the scope is Global.
func (s Scope) IsGlobal() bool {
	return s.Kind() == ScopeKindGlobal
}

// EntryName returns the entry name and true for an Entry scope.
func (s Scope) EntryName() (string, bool) {
	if s.Kind() != ScopeKindEntry {
		return "", false
	}
	return s.entryName, true
}

// Label is the human-readable target used in log messages.
func (s Scope) Label() string {
	if name, ok := s.EntryName(); ok {
		return name
	}
	return "global"
}

// Key is a stable string form, unique per scope.
func (s Scope) Key() string {
	if name, ok := s.EntryName(); ok {
		return "entry:" + name
	}
	return "global"
}

func (s Scope) String() string {
	return s.Key()
}

type scopeJSON struct {
	Kind      ScopeKind `json:"kind"`
	EntryName string    `json:"entry_name,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s Scope) MarshalJSON() ([]byte, error) {
	name, _ := s.EntryName()
	return json.Marshal(scopeJSON{Kind: s.Kind(), EntryName: name})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Scope) UnmarshalJSON(data []byte) error {
	var raw scopeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Kind {
	case "", ScopeKindGlobal:
		*s = Global()
	case ScopeKindEntry:
		*s = EntryScope(raw.EntryName)
	default:
		return fmt.Errorf("unknown scope kind %q", raw.Kind)
	}
	return nil
}
