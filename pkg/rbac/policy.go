package rbac

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/stockroom/pkg/models"
)

// PolicyStore maps roles to permission sets. It is read-only once built and
// safe for concurrent use.
type PolicyStore struct {
	policies map[models.Role]map[Permission]struct{}
}

// NewPolicyStore validates policies and builds a store. Every required role
// must have a policy.
func NewPolicyStore(policies []RolePolicy, required ...models.Role) (*PolicyStore, error) {
	store := &PolicyStore{
		policies: make(map[models.Role]map[Permission]struct{}, len(policies)),
	}

	for _, policy := range policies {
		if policy.Role == "" {
			return nil, &PolicyError{Reason: ReasonUnknownRole, Err: fmt.Errorf("policy without role")}
		}
		if _, dup := store.policies[policy.Role]; dup {
			return nil, &PolicyError{Reason: ReasonUnknownRole, Role: policy.Role, Err: fmt.Errorf("duplicate policy")}
		}

		perms := make(map[Permission]struct{}, len(policy.Permissions))
		for _, perm := range policy.Permissions {
			if !perm.Resource.Valid() {
				return nil, &PolicyError{Reason: ReasonUnknownRole, Role: policy.Role, Err: fmt.Errorf("unknown resource type %q", perm.Resource)}
			}
			if !perm.Action.Valid() {
				return nil, &PolicyError{Reason: ReasonUnknownRole, Role: policy.Role, Err: fmt.Errorf("unknown action %q", perm.Action)}
			}
			perms[perm] = struct{}{}
		}
		store.policies[policy.Role] = perms
	}

	for _, role := range required {
		if _, ok := store.policies[role]; !ok {
			return nil, &PolicyError{Reason: ReasonUnknownRole, Role: role, Err: fmt.Errorf("no policy for required role")}
		}
	}

	return store, nil
}

// NewBuiltInPolicyStore returns the store for the default two-role model
func NewBuiltInPolicyStore() *PolicyStore {
	store, err := NewPolicyStore(BuiltInPolicies(), models.RoleManager, models.RoleStaff)
	if err != nil {
		panic(err)
	}
	return store
}

// PermissionsFor returns the permissions of a role sorted by resource and action
func (s *PolicyStore) PermissionsFor(role models.Role) ([]Permission, error) {
	perms, ok := s.policies[role]
	if !ok {
		return nil, &PolicyError{Reason: ReasonUnknownRole, Role: role}
	}

	result := make([]Permission, 0, len(perms))
	for perm := range perms {
		result = append(result, perm)
	}
	sortPermissions(result)
	return result, nil
}

// Allows reports whether role holds perm
func (s *PolicyStore) Allows(role models.Role, perm Permission) (bool, error) {
	perms, ok := s.policies[role]
	if !ok {
		return false, &PolicyError{Reason: ReasonUnknownRole, Role: role}
	}
	_, allowed := perms[perm]
	return allowed, nil
}

// Roles returns the configured roles in name order
func (s *PolicyStore) Roles() []models.Role {
	roles := make([]models.Role, 0, len(s.policies))
	for role := range s.policies {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

func sortPermissions(perms []Permission) {
	actionOrder := make(map[Action]int)
	for i, a := range Actions() {
		actionOrder[a] = i
	}
	sort.Slice(perms, func(i, j int) bool {
		if perms[i].Resource != perms[j].Resource {
			return perms[i].Resource < perms[j].Resource
		}
		return actionOrder[perms[i].Action] < actionOrder[perms[j].Action]
	})
}

// policyFile is the on-disk policy layout: role -> resource -> actions
type policyFile struct {
	Roles map[models.Role]map[models.ResourceType][]Action `yaml:"roles"`
}

// ParsePolicies decodes a YAML policy document
func ParsePolicies(r io.Reader) ([]RolePolicy, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var file policyFile
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	roles := make([]models.Role, 0, len(file.Roles))
	for role := range file.Roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })

	policies := make([]RolePolicy, 0, len(roles))
	for _, role := range roles {
		policy := RolePolicy{Role: role}
		for resource, actions := range file.Roles[role] {
			policy.Permissions = append(policy.Permissions, crud(resource, actions...)...)
		}
		sortPermissions(policy.Permissions)
		policies = append(policies, policy)
	}
	return policies, nil
}

// LoadPolicyFile reads a YAML policy file and builds a store requiring the
// manager and staff roles
func LoadPolicyFile(path string) (*PolicyStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	policies, err := ParsePolicies(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return NewPolicyStore(policies, models.RoleManager, models.RoleStaff)
}

// WriteYAML writes the store in the policy file layout
func (s *PolicyStore) WriteYAML(w io.Writer) error {
	file := policyFile{Roles: make(map[models.Role]map[models.ResourceType][]Action)}
	for _, role := range s.Roles() {
		perms, _ := s.PermissionsFor(role)
		byResource := make(map[models.ResourceType][]Action)
		for _, perm := range perms {
			byResource[perm.Resource] = append(byResource[perm.Resource], perm.Action)
		}
		file.Roles[role] = byResource
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(file); err != nil {
		return err
	}
	return encoder.Close()
}
