package model

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// WorkerID is the canonical identity used to aggregate a worker's workload
// across all display-name variants
type WorkerID string

// shortCodePattern extracts a short code written in parentheses, e.g. "Dr. Jane Doe (JDO)"
var shortCodePattern = regexp.MustCompile(`\(([^()]+)\)`)

// CanonicalID derives the canonical identity from a free-text display name.
// A short code in parentheses wins, otherwise the trimmed display name is used.
func CanonicalID(displayName string) WorkerID {
	if match := shortCodePattern.FindStringSubmatch(displayName); match != nil {
		if code := strings.TrimSpace(match[1]); code != "" {
			return WorkerID(code)
		}
	}
	return WorkerID(strings.Join(strings.Fields(displayName), " "))
}

// Identities memoizes display name to canonical identity mappings for the process lifetime
type Identities struct {
	mu     sync.Mutex
	byName map[string]WorkerID
	names  map[WorkerID]string
}

// NewIdentities creates an empty identity registry
func NewIdentities() *Identities {
	return &Identities{
		byName: make(map[string]WorkerID),
		names:  make(map[WorkerID]string),
	}
}

// Resolve returns the canonical identity for a display name, registering it on first sight.
// The first display name observed for an identity is kept as its preferred name.
func (ids *Identities) Resolve(displayName string) WorkerID {
	ids.mu.Lock()
	defer ids.mu.Unlock()

	if id, ok := ids.byName[displayName]; ok {
		return id
	}

	id := CanonicalID(displayName)
	ids.byName[displayName] = id
	if _, ok := ids.names[id]; !ok {
		ids.names[id] = strings.TrimSpace(displayName)
	}
	return id
}

// DisplayName returns the first display name seen for the identity
func (ids *Identities) DisplayName(id WorkerID) string {
	ids.mu.Lock()
	defer ids.mu.Unlock()

	if name, ok := ids.names[id]; ok {
		return name
	}
	return string(id)
}

// Capability describes a named skill and its base assignment weight
type Capability struct {
	Name   string
	Weight float64
}

// Catalog holds the ordered capability and resource-type lists.
// Lookups are case-insensitive and return canonical spellings.
type Catalog struct {
	capabilities  []Capability
	resourceTypes []string
	capIndex      map[string]int
	rtIndex       map[string]int
}

// NewCatalog builds a catalog, rejecting empty or duplicate names and names shared
// between capabilities and resource types
func NewCatalog(capabilities []Capability, resourceTypes []string) (*Catalog, error) {
	c := &Catalog{
		capabilities:  make([]Capability, 0, len(capabilities)),
		resourceTypes: make([]string, 0, len(resourceTypes)),
		capIndex:      make(map[string]int),
		rtIndex:       make(map[string]int),
	}

	for _, capability := range capabilities {
		key := normalize(capability.Name)
		if key == "" {
			return nil, fmt.Errorf("capability name must not be empty")
		}
		if _, exists := c.capIndex[key]; exists {
			return nil, fmt.Errorf("duplicate capability %q", capability.Name)
		}
		c.capIndex[key] = len(c.capabilities)
		c.capabilities = append(c.capabilities, Capability{Name: strings.TrimSpace(capability.Name), Weight: capability.Weight})
	}

	for _, rt := range resourceTypes {
		key := normalize(rt)
		if key == "" {
			return nil, fmt.Errorf("resource type name must not be empty")
		}
		if _, exists := c.rtIndex[key]; exists {
			return nil, fmt.Errorf("duplicate resource type %q", rt)
		}
		if _, clash := c.capIndex[key]; clash {
			return nil, fmt.Errorf("name %q is used for both a capability and a resource type", rt)
		}
		c.rtIndex[key] = len(c.resourceTypes)
		c.resourceTypes = append(c.resourceTypes, strings.TrimSpace(rt))
	}

	return c, nil
}

// Capabilities returns the ordered capability list
func (c *Catalog) Capabilities() []Capability {
	return c.capabilities
}

// CapabilityNames returns the ordered capability names
func (c *Catalog) CapabilityNames() []string {
	names := make([]string, len(c.capabilities))
	for i, capability := range c.capabilities {
		names[i] = capability.Name
	}
	return names
}

// ResourceTypes returns the ordered resource-type names
func (c *Catalog) ResourceTypes() []string {
	return c.resourceTypes
}

// Capability looks up a capability by name, case-insensitively
func (c *Catalog) Capability(name string) (Capability, bool) {
	i, ok := c.capIndex[normalize(name)]
	if !ok {
		return Capability{}, false
	}
	return c.capabilities[i], true
}

// ResourceType returns the canonical spelling of a resource type
func (c *Catalog) ResourceType(name string) (string, bool) {
	i, ok := c.rtIndex[normalize(name)]
	if !ok {
		return "", false
	}
	return c.resourceTypes[i], true
}

// Weight returns the base weight of a capability, 1 for unknown capabilities
func (c *Catalog) Weight(name string) float64 {
	if capability, ok := c.Capability(name); ok {
		return capability.Weight
	}
	return 1
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
