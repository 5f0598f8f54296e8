// Package authz resolves and caches layered role/permission decisions for
// users inside a tenant.
package authz

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Well-known roles. Owner bypasses every permission check;
// company managers additionally bypass store scoping.
const (
	RoleOwner          = "owner"
	RoleCompanyManager = "company_manager"
	RoleStoreManager   = "store_manager"
	RoleSalesperson    = "salesperson"
)

// PermissionSet maps a module to the list of allowed actions.
type PermissionSet map[string][]string

// Allows reports whether the set grants the action on the module.
func (p PermissionSet) Allows(module, action string) bool {
	actions, ok := p[module]
	if !ok {
		return false
	}
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so cached sets cannot be mutated by callers.
func (p PermissionSet) Clone() PermissionSet {
	if p == nil {
		return nil
	}
	out := make(PermissionSet, len(p))
	for module, actions := range p {
		out[module] = append([]string(nil), actions...)
	}
	return out
}

// LayerKind tags the origin of a permission layer.
type LayerKind string

const (
	LayerRoleDefault LayerKind = "role_default"
	LayerCustom      LayerKind = "custom"
	LayerStore       LayerKind = "store"
)

// Layer is one precedence level of a user's permissions. Layers are ordered
// lowest to highest; a higher layer's module entry fully replaces the lower
// one's for that module, it does not union with it.
type Layer struct {
	Kind        LayerKind
	StoreID     uuid.UUID // set for store layers
	Permissions PermissionSet
}

// Effective flattens layers lowest→highest into one PermissionSet.
func Effective(layers []Layer) PermissionSet {
	effective := make(PermissionSet)
	for _, layer := range layers {
		for module, actions := range layer.Permissions {
			effective[module] = append([]string(nil), actions...)
		}
	}
	return effective
}

// Serialized permission blobs are validated before decoding so malformed rows
// fail at the storage boundary instead of misbehaving during checks.
var (
	permissionSetSchema = jsonschema.MustCompileString("permission-set.json", `{
        "type": "object",
        "additionalProperties": {
            "type": "array",
            "items": { "type": "string" }
        }
    }`)
	actionListSchema = jsonschema.MustCompileString("action-list.json", `{
        "type": "array",
        "items": { "type": "string" }
    }`)
)

// DecodePermissionSet validates and decodes a serialized module→actions blob.
// Empty input decodes to an empty set.
func DecodePermissionSet(raw []byte) (PermissionSet, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return PermissionSet{}, nil
	}

	var document any
	if err := json.Unmarshal(raw, &document); err != nil {
		return nil, fmt.Errorf("decode permission blob: %w", err)
	}
	if err := permissionSetSchema.Validate(document); err != nil {
		return nil, fmt.Errorf("validate permission blob: %w", err)
	}

	var set PermissionSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("decode permission blob: %w", err)
	}
	return set, nil
}

// DecodeActionList validates and decodes a serialized action list.
func DecodeActionList(raw []byte) ([]string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	var document any
	if err := json.Unmarshal(raw, &document); err != nil {
		return nil, fmt.Errorf("decode action list: %w", err)
	}
	if err := actionListSchema.Validate(document); err != nil {
		return nil, fmt.Errorf("validate action list: %w", err)
	}

	var actions []string
	if err := json.Unmarshal(raw, &actions); err != nil {
		return nil, fmt.Errorf("decode action list: %w", err)
	}
	return actions, nil
}

// roleDefaults are the lowest permission layer per role. Owner is absent on
// purpose: owners bypass permission checks entirely.
var roleDefaults = map[string]PermissionSet{
	RoleCompanyManager: {
		"sales":     {"view", "add", "edit", "delete"},
		"products":  {"view", "add", "edit", "delete"},
		"customers": {"view", "add", "edit", "delete"},
		"inventory": {"view", "add", "edit"},
		"reports":   {"view", "export"},
		"users":     {"view", "add", "edit"},
		"stores":    {"view"},
	},
	RoleStoreManager: {
		"sales":     {"view", "add", "edit"},
		"products":  {"view", "add", "edit"},
		"customers": {"view", "add", "edit"},
		"inventory": {"view", "add", "edit"},
		"reports":   {"view"},
	},
	RoleSalesperson: {
		"sales":     {"view", "add"},
		"customers": {"view", "add"},
		"products":  {"view"},
	},
}

// RoleDefaults returns the default PermissionSet for the role; unknown roles
// start with no grants.
func RoleDefaults(role string) PermissionSet {
	defaults, ok := roleDefaults[role]
	if !ok {
		return PermissionSet{}
	}
	return defaults.Clone()
}
