// Package voice resolves engine roles to configured synthesis voices.
package voice

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMissingRole is returned when a required role has no registry entry.
var ErrMissingRole = errors.New("role missing from voice registry")

// ErrNoRegistryFile is returned when none of the search paths exist.
var ErrNoRegistryFile = errors.New("no voice registry file found")

// Voice is the per-role synthesis configuration: the prebuilt voice name.
type Voice struct {
	Name string `yaml:"name"`
}

// Registry maps engine roles to voices.
type Registry map[string]Voice

// Roles returns the registry's role names, sorted.
func (r Registry) Roles() []string {
	roles := make([]string, 0, len(r))
	for role := range r {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// Resolve loads the first registry file that exists among searchPaths and
// returns the entries for exactly the required roles. Every required role
// must be configured.
func Resolve(requiredRoles []string, searchPaths ...string) (Registry, error) {
	if len(requiredRoles) == 0 {
		return nil, errors.New("no roles provided; at least one role is required")
	}

	var full Registry
	found := false
	for _, p := range searchPaths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		loaded, err := loadFile(p)
		if err != nil {
			return nil, err
		}
		full = loaded
		found = true
		break
	}
	if !found {
		return nil, fmt.Errorf("%w: tried %s", ErrNoRegistryFile, strings.Join(searchPaths, ", "))
	}

	var missing []string
	out := make(Registry, len(requiredRoles))
	for _, role := range requiredRoles {
		v, ok := full[role]
		if !ok {
			missing = append(missing, role)
			continue
		}
		out[role] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingRole, strings.Join(missing, ", "))
	}
	return out, nil
}

func loadFile(path string) (Registry, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
	default:
		return nil, fmt.Errorf("unsupported registry format %q (use .yml or .yaml)", filepath.Ext(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read voice registry: %w", err)
	}

	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("decode voice registry %s: %w", path, err)
	}
	if len(reg) == 0 {
		return nil, fmt.Errorf("empty voice registry: %s", path)
	}
	for role, v := range reg {
		if strings.TrimSpace(v.Name) == "" {
			return nil, fmt.Errorf("voice registry entry %q has no name", role)
		}
	}
	return reg, nil
}
