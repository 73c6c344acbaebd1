package rbac

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed default_roles.yaml
var defaultRolesYAML []byte

// ErrInvalidRoleTable wraps every validation failure of a role table payload.
var ErrInvalidRoleTable = errors.New("rbac: invalid role table")

// RoleTable is the versioned configuration payload the registry is built from.
type RoleTable struct {
	Version string           `yaml:"version" json:"version" validate:"required"`
	Roles   []RoleDefinition `yaml:"roles" json:"roles" validate:"required,min=1,dive"`
}

// RoleDefinition is one role row as authored in the payload or stored in the roles table.
type RoleDefinition struct {
	ID             int64                 `yaml:"id" json:"id" validate:"required,gt=0"`
	Name           string                `yaml:"name" json:"name" validate:"required,max=64"`
	Description    string                `yaml:"description,omitempty" json:"description,omitempty"`
	HierarchyLevel int                   `yaml:"hierarchy_level" json:"hierarchy_level"`
	Active         bool                  `yaml:"active" json:"active"`
	Grants         map[string]GrantValue `yaml:"grants" json:"grants"`
}

var tableValidator = validator.New(validator.WithRequiredStructEnabled())

// DefaultRoleTable returns the embedded default role table.
func DefaultRoleTable() (RoleTable, error) {
	return ParseRoleTable(defaultRolesYAML)
}

// ParseRoleTable decodes and validates a YAML role table.
func ParseRoleTable(data []byte) (RoleTable, error) {
	var table RoleTable
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&table); err != nil {
		return RoleTable{}, fmt.Errorf("%w: decode: %v", ErrInvalidRoleTable, err)
	}
	if err := table.Validate(); err != nil {
		return RoleTable{}, err
	}
	return table, nil
}

// Validate checks structural rules and grant spelling. Unknown permission keys
// are tolerated; they never grant anything.
func (t RoleTable) Validate() error {
	if err := tableValidator.Struct(t); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRoleTable, err)
	}
	ids := make(map[int64]struct{}, len(t.Roles))
	names := make(map[string]struct{}, len(t.Roles))
	for _, role := range t.Roles {
		if _, dup := ids[role.ID]; dup {
			return fmt.Errorf("%w: duplicate role id %d", ErrInvalidRoleTable, role.ID)
		}
		ids[role.ID] = struct{}{}
		name := NormalizeRoleName(role.Name)
		if _, dup := names[name]; dup {
			return fmt.Errorf("%w: duplicate role name %q", ErrInvalidRoleTable, role.Name)
		}
		names[name] = struct{}{}
		for key, value := range role.Grants {
			kind := Permission(key).Kind()
			if kind == KindUnknown {
				continue
			}
			if _, err := value.Resolve(kind); err != nil {
				return fmt.Errorf("%w: role %q grant %s: %v", ErrInvalidRoleTable, role.Name, key, err)
			}
		}
	}
	return nil
}

// Marshal encodes the table back into YAML.
func (t RoleTable) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NormalizeRoleName folds a role name to the slug form the registry stores.
func NormalizeRoleName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// RoleSource yields the role table a registry is built from.
type RoleSource interface {
	LoadRoleTable(ctx context.Context) (RoleTable, error)
}

// FileRoleSource reads a YAML role table from disk. An empty Path yields the
// embedded defaults.
type FileRoleSource struct {
	Path string
}

// LoadRoleTable implements RoleSource.
func (s FileRoleSource) LoadRoleTable(ctx context.Context) (RoleTable, error) {
	if strings.TrimSpace(s.Path) == "" {
		return DefaultRoleTable()
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return RoleTable{}, fmt.Errorf("rbac: read role table: %w", err)
	}
	return ParseRoleTable(data)
}

// StaticRoleSource serves a fixed table. Tests use it to substitute arbitrary roles.
type StaticRoleSource struct {
	Table RoleTable
}

// LoadRoleTable implements RoleSource.
func (s StaticRoleSource) LoadRoleTable(ctx context.Context) (RoleTable, error) {
	if err := s.Table.Validate(); err != nil {
		return RoleTable{}, err
	}
	return s.Table, nil
}
