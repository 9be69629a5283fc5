package models

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed groups.yaml
var groupCatalogYAML []byte

// Group is an entry in the fixed group catalog.
type Group struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Image string `yaml:"image" json:"image"`
}

// GroupCatalog is the static, ordered set of joinable groups.
type GroupCatalog struct {
	groups []Group
	byID   map[string]Group
}

// LoadGroupCatalog parses a catalog document; ids must be unique and non-empty.
func LoadGroupCatalog(raw []byte) (*GroupCatalog, error) {
	var doc struct {
		Groups []Group `yaml:"groups"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse group catalog: %w", err)
	}

	catalog := &GroupCatalog{byID: make(map[string]Group, len(doc.Groups))}
	for _, group := range doc.Groups {
		if group.ID == "" {
			return nil, fmt.Errorf("group catalog entry %q has no id", group.Name)
		}
		if _, exists := catalog.byID[group.ID]; exists {
			return nil, fmt.Errorf("duplicate group id %q", group.ID)
		}
		catalog.byID[group.ID] = group
		catalog.groups = append(catalog.groups, group)
	}
	return catalog, nil
}

// DefaultGroupCatalog returns the catalog shipped with the service.
func DefaultGroupCatalog() *GroupCatalog {
	catalog, err := LoadGroupCatalog(groupCatalogYAML)
	if err != nil {
		panic(err)
	}
	return catalog
}

// All returns the groups in catalog order.
func (c *GroupCatalog) All() []Group {
	out := make([]Group, len(c.groups))
	copy(out, c.groups)
	return out
}

// Lookup finds a group by id.
func (c *GroupCatalog) Lookup(id string) (Group, bool) {
	group, ok := c.byID[id]
	return group, ok
}
