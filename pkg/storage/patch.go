package storage

import (
	"fmt"
	"sort"

	"github.com/platinummonkey/stockroom/pkg/models"
)

// Patch is a set of field updates keyed by storage field name
type Patch map[string]any

type fieldKind int

const (
	kindString fieldKind = iota
	kindInt
)

// writableFields lists the fields Update may change per resource. Identity,
// ownership, role and sku are fixed at creation.
var writableFields = map[models.ResourceType]map[string]fieldKind{
	models.ResourceOrganization: {
		"name": kindString,
	},
	models.ResourceUser: {
		"name": kindString,
	},
	models.ResourceWarehouse: {
		"name":     kindString,
		"location": kindString,
	},
	models.ResourceInventoryItem: {
		"name":        kindString,
		"description": kindString,
		"quantity":    kindInt,
	},
}

// filterableFields lists the fields Filter.Fields may match on per resource
var filterableFields = map[models.ResourceType]map[string]fieldKind{
	models.ResourceOrganization: {},
	models.ResourceUser: {
		"role": kindString,
	},
	models.ResourceWarehouse: {
		"name": kindString,
	},
	models.ResourceInventoryItem: {
		"sku":          kindString,
		"warehouse_id": kindString,
	},
}

// WritableFields returns the sorted field names Update accepts for resource
func WritableFields(resource models.ResourceType) []string {
	return sortedNames(writableFields[resource])
}

// FilterableFields returns the sorted field names Find accepts for resource
func FilterableFields(resource models.ResourceType) []string {
	return sortedNames(filterableFields[resource])
}

// Keys returns the patch field names in sorted order
func (p Patch) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Normalize validates p against the writable fields of resource and returns a
// copy with canonical value types (string, int64).
func (p Patch) Normalize(resource models.ResourceType) (Patch, error) {
	allowed, ok := writableFields[resource]
	if !ok {
		return nil, fmt.Errorf("%w: unknown resource %q", ErrInvalidArgument, resource)
	}
	if len(p) == 0 {
		return nil, fmt.Errorf("%w: empty patch for %s", ErrInvalidArgument, resource)
	}
	out := make(Patch, len(p))
	for field, value := range p {
		kind, ok := allowed[field]
		if !ok {
			return nil, fmt.Errorf("%w: field %q is not writable on %s", ErrInvalidArgument, field, resource)
		}
		v, err := coerce(kind, value)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidArgument, field, err)
		}
		out[field] = v
	}
	return out, nil
}

// NormalizeFilter validates filter fields for resource and returns a copy of
// the filter with canonical value types.
func NormalizeFilter(resource models.ResourceType, filter Filter) (Filter, error) {
	if !resource.Valid() {
		return Filter{}, fmt.Errorf("%w: unknown resource %q", ErrInvalidArgument, resource)
	}
	if filter.OrganizationID == "" {
		return Filter{}, fmt.Errorf("%w: organization filter is required", ErrInvalidArgument)
	}
	if len(filter.Fields) == 0 {
		return filter, nil
	}
	allowed := filterableFields[resource]
	fields := make(map[string]any, len(filter.Fields))
	for field, value := range filter.Fields {
		kind, ok := allowed[field]
		if !ok {
			return Filter{}, fmt.Errorf("%w: field %q is not filterable on %s", ErrInvalidArgument, field, resource)
		}
		v, err := coerce(kind, value)
		if err != nil {
			return Filter{}, fmt.Errorf("%w: field %q: %v", ErrInvalidArgument, field, err)
		}
		fields[field] = v
	}
	filter.Fields = fields
	return filter, nil
}

// SortedFieldNames returns the filter's field names in sorted order
func (f Filter) SortedFieldNames() []string {
	names := make([]string, 0, len(f.Fields))
	for k := range f.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func coerce(kind fieldKind, value any) (any, error) {
	switch kind {
	case kindString:
		switch v := value.(type) {
		case string:
			return v, nil
		case models.Role:
			return string(v), nil
		}
		return nil, fmt.Errorf("expected string, got %T", value)
	case kindInt:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			if v != float64(int64(v)) {
				return nil, fmt.Errorf("expected integer, got %v", v)
			}
			return int64(v), nil
		}
		return nil, fmt.Errorf("expected integer, got %T", value)
	}
	return nil, fmt.Errorf("unsupported field kind %d", kind)
}

func sortedNames(fields map[string]fieldKind) []string {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
