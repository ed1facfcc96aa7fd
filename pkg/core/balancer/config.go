package balancer

import (
	"errors"
	"fmt"
	"time"

	"github.com/jakechorley/fairshare/pkg/core/model"
)

// ErrUnknownResourceType rejects a request for a resource type the catalog does not know
var ErrUnknownResourceType = errors.New("unknown resource type")

// Config holds the selection policy
type Config struct {
	// FallbackChains maps a resource type to its already flattened overflow chain
	FallbackChains map[string][]string

	// ExcludedBy maps a capability to the capabilities that exclude a worker from it
	// when they are Active or Weighted on the same resource type
	ExcludedBy map[string][]string

	// MinAssignments is the per-resource-type floor below which workers are preferred
	MinAssignments int

	// OverflowBuffer drops overflow candidates this close to the end of their segment
	OverflowBuffer time.Duration

	// DefaultCapability is used when a request names an unknown capability
	DefaultCapability string

	// DefaultWeightedMultiplier applies to Weighted assignments without a shift modifier
	DefaultWeightedMultiplier float64
}

// Flatten turns a nested chain such as ["mr", ["xray", ["ct"]]] into a flat list.
// Non-string leaves are ignored.
func Flatten(nested []interface{}) []string {
	flat := make([]string, 0, len(nested))
	for _, item := range nested {
		switch v := item.(type) {
		case string:
			flat = append(flat, v)
		case []string:
			flat = append(flat, v...)
		case []interface{}:
			flat = append(flat, Flatten(v)...)
		}
	}
	return flat
}

// validate canonicalises capability and resource type names against the catalog
func (c Config) validate(catalog *model.Catalog) (Config, error) {
	out := Config{
		FallbackChains:            make(map[string][]string, len(c.FallbackChains)),
		ExcludedBy:                make(map[string][]string, len(c.ExcludedBy)),
		MinAssignments:            c.MinAssignments,
		OverflowBuffer:            c.OverflowBuffer,
		DefaultWeightedMultiplier: c.DefaultWeightedMultiplier,
	}

	if c.DefaultCapability == "" {
		names := catalog.CapabilityNames()
		if len(names) == 0 {
			return Config{}, fmt.Errorf("catalog has no capabilities")
		}
		out.DefaultCapability = names[0]
	} else {
		capab, ok := catalog.Capability(c.DefaultCapability)
		if !ok {
			return Config{}, fmt.Errorf("default capability %q is not in the catalog", c.DefaultCapability)
		}
		out.DefaultCapability = capab.Name
	}

	for rt, chain := range c.FallbackChains {
		canonical, ok := catalog.ResourceType(rt)
		if !ok {
			return Config{}, fmt.Errorf("fallback chain for unknown resource type %q", rt)
		}
		out.FallbackChains[canonical] = chain
	}

	for capName, excluders := range c.ExcludedBy {
		capab, ok := catalog.Capability(capName)
		if !ok {
			return Config{}, fmt.Errorf("excluded-by rule for unknown capability %q", capName)
		}
		canonical := make([]string, 0, len(excluders))
		for _, e := range excluders {
			excluder, ok := catalog.Capability(e)
			if !ok {
				return Config{}, fmt.Errorf("excluded-by rule for %q names unknown capability %q", capName, e)
			}
			canonical = append(canonical, excluder.Name)
		}
		out.ExcludedBy[capab.Name] = canonical
	}

	if out.MinAssignments < 0 {
		return Config{}, fmt.Errorf("minimum assignments must not be negative, got %d", out.MinAssignments)
	}
	if out.OverflowBuffer < 0 {
		return Config{}, fmt.Errorf("overflow buffer must not be negative, got %s", out.OverflowBuffer)
	}

	return out, nil
}
