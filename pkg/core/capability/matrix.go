package capability

import (
	"sort"
	"strings"

	"github.com/jakechorley/fairshare/pkg/core/model"
)

// Key identifies one cell of a capability matrix using canonical spellings
type Key struct {
	Capability   string
	ResourceType string
}

func (k Key) String() string {
	return k.Capability + "_" + k.ResourceType
}

// Matrix maps every (capability, resource type) pair to a Value
type Matrix map[Key]Value

// NewMatrix returns a fully populated matrix with every cell Inactive
func NewMatrix(catalog *model.Catalog) Matrix {
	m := make(Matrix, len(catalog.Capabilities())*len(catalog.ResourceTypes()))
	for _, capability := range catalog.Capabilities() {
		for _, rt := range catalog.ResourceTypes() {
			m[Key{Capability: capability.Name, ResourceType: rt}] = Inactive
		}
	}
	return m
}

// Get returns the value for a cell, Inactive if missing
func (m Matrix) Get(capabilityName, resourceType string) Value {
	return m[Key{Capability: capabilityName, ResourceType: resourceType}]
}

// Clone returns an independent copy of the matrix
func (m Matrix) Clone() Matrix {
	clone := make(Matrix, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

// Row returns capability → value for one resource type
func (m Matrix) Row(catalog *model.Catalog, resourceType string) map[string]Value {
	row := make(map[string]Value, len(catalog.Capabilities()))
	for _, capability := range catalog.Capabilities() {
		row[capability.Name] = m.Get(capability.Name, resourceType)
	}
	return row
}

// Overrides is a raw override set keyed by shorthand keys
type Overrides map[string]Value

// Wildcard keys apply a value to every cell
var wildcardKeys = map[string]bool{"*": true, "all": true}

type keyKind int

const (
	kindWildcard keyKind = iota
	kindCapability
	kindResourceType
	kindPair
)

type classifiedKey struct {
	raw          string
	kind         keyKind
	capability   string
	resourceType string
}

// classify matches a raw key against the catalog: wildcard, single capability,
// single resource type, or a capability/resource-type pair joined by "_" in either order
func classify(catalog *model.Catalog, raw string) (classifiedKey, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if wildcardKeys[key] {
		return classifiedKey{raw: raw, kind: kindWildcard}, true
	}
	if capability, ok := catalog.Capability(key); ok {
		return classifiedKey{raw: raw, kind: kindCapability, capability: capability.Name}, true
	}
	if rt, ok := catalog.ResourceType(key); ok {
		return classifiedKey{raw: raw, kind: kindResourceType, resourceType: rt}, true
	}

	// Names may contain underscores themselves, so try every split point
	for i := 0; i < len(key); i++ {
		if key[i] != '_' {
			continue
		}
		left, right := key[:i], key[i+1:]
		if capability, ok := catalog.Capability(left); ok {
			if rt, ok := catalog.ResourceType(right); ok {
				return classifiedKey{raw: raw, kind: kindPair, capability: capability.Name, resourceType: rt}, true
			}
		}
		if rt, ok := catalog.ResourceType(left); ok {
			if capability, ok := catalog.Capability(right); ok {
				return classifiedKey{raw: raw, kind: kindPair, capability: capability.Name, resourceType: rt}, true
			}
		}
	}

	return classifiedKey{}, false
}

func (ck classifiedKey) cells(catalog *model.Catalog) []Key {
	switch ck.kind {
	case kindWildcard:
		keys := make([]Key, 0, len(catalog.Capabilities())*len(catalog.ResourceTypes()))
		for _, capability := range catalog.Capabilities() {
			for _, rt := range catalog.ResourceTypes() {
				keys = append(keys, Key{Capability: capability.Name, ResourceType: rt})
			}
		}
		return keys
	case kindCapability:
		keys := make([]Key, 0, len(catalog.ResourceTypes()))
		for _, rt := range catalog.ResourceTypes() {
			keys = append(keys, Key{Capability: ck.capability, ResourceType: rt})
		}
		return keys
	case kindResourceType:
		keys := make([]Key, 0, len(catalog.Capabilities()))
		for _, capability := range catalog.Capabilities() {
			keys = append(keys, Key{Capability: capability.Name, ResourceType: ck.resourceType})
		}
		return keys
	default:
		return []Key{{Capability: ck.capability, ResourceType: ck.resourceType}}
	}
}

// Expansion is an override set resolved to concrete matrix cells
type Expansion struct {
	Values map[Key]Value

	// UnknownKeys lists raw keys that matched neither a capability nor a resource type
	UnknownKeys []string
}

// Expand resolves shorthand override keys into matrix cells.
// Every cell takes its value from the single most specific key that covers it:
// pair over resource type over capability over wildcard.
func Expand(catalog *model.Catalog, overrides Overrides) Expansion {
	classified := make([]classifiedKey, 0, len(overrides))
	unknown := make([]string, 0)

	for raw := range overrides {
		ck, ok := classify(catalog, raw)
		if !ok {
			unknown = append(unknown, raw)
			continue
		}
		classified = append(classified, ck)
	}

	// Least specific first so more specific keys overwrite; raw key order breaks ties
	sort.Slice(classified, func(i, j int) bool {
		if classified[i].kind != classified[j].kind {
			return classified[i].kind < classified[j].kind
		}
		return classified[i].raw < classified[j].raw
	})
	sort.Strings(unknown)

	values := make(map[Key]Value)
	for _, ck := range classified {
		for _, cell := range ck.cells(catalog) {
			values[cell] = overrides[ck.raw]
		}
	}

	return Expansion{Values: values, UnknownKeys: unknown}
}

// Options controls how Resolve merges overrides into a baseline
type Options struct {
	// AllowExclusionOverride lets an Active or Weighted override lift a baseline exclusion
	AllowExclusionOverride bool

	// KeepUnprocessedWeighted leaves Weighted cells untouched by any override as Weighted.
	// By default they become Excluded.
	KeepUnprocessedWeighted bool
}

// Resolve merges an expanded override set into a copy of the baseline.
//
// Precedence per touched cell:
//   - Excluded baseline stays Excluded unless AllowExclusionOverride and the override performs
//   - Weighted baseline stays Weighted when the override performs, otherwise becomes Excluded
//   - any other baseline is replaced by the override
func Resolve(baseline Matrix, expansion Expansion, opts Options) Matrix {
	resolved := baseline.Clone()

	for key, override := range expansion.Values {
		current, ok := resolved[key]
		if !ok {
			current = Inactive
		}

		switch current {
		case Excluded:
			if opts.AllowExclusionOverride && override.Performs() {
				resolved[key] = override
			}
		case Weighted:
			if override.Performs() {
				resolved[key] = Weighted
			} else {
				resolved[key] = Excluded
			}
		default:
			resolved[key] = override
		}
	}

	if !opts.KeepUnprocessedWeighted {
		for key, v := range resolved {
			if v != Weighted {
				continue
			}
			if _, touched := expansion.Values[key]; !touched {
				resolved[key] = Excluded
			}
		}
	}

	return resolved
}

// DeriveApplicableResourceTypes returns the resource types an override set applies to,
// in catalog order. Wildcard and capability-only keys apply to every resource type.
func DeriveApplicableResourceTypes(catalog *model.Catalog, overrides Overrides) []string {
	applicable := make(map[string]bool)
	for raw := range overrides {
		ck, ok := classify(catalog, raw)
		if !ok {
			continue
		}
		switch ck.kind {
		case kindWildcard, kindCapability:
			for _, rt := range catalog.ResourceTypes() {
				applicable[rt] = true
			}
		default:
			applicable[ck.resourceType] = true
		}
	}

	result := make([]string, 0, len(applicable))
	for _, rt := range catalog.ResourceTypes() {
		if applicable[rt] {
			result = append(result, rt)
		}
	}
	return result
}

// BuildBaseline creates a fully populated matrix and applies overrides directly,
// without any precedence rules. Used to load roster baselines.
func BuildBaseline(catalog *model.Catalog, overrides Overrides) (Matrix, []string) {
	m := NewMatrix(catalog)
	expansion := Expand(catalog, overrides)
	for key, v := range expansion.Values {
		m[key] = v
	}
	return m, expansion.UnknownKeys
}
