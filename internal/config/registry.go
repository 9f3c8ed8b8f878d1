package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// RegistryEntry is one repository known to the local environment.
type RegistryEntry struct {
	RepoName       string `json:"repo_name"`
	RepoSourcePath string `json:"repo_source_path"`
	RepoSourceURL  string `json:"repo_source_url,omitempty"`
}

// Registry is the environment registry stored at ~/.livrev/registry.json.
// PackageSettings carries package-scoped configuration such as the Unpaywall
// contact email.
type Registry struct {
	Repos           []RegistryEntry              `json:"repos"`
	PackageSettings map[string]map[string]string `json:"package_settings,omitempty"`
}

// RegistryPath returns the location of the environment registry.
func RegistryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, LivrevDir, "registry.json")
}

// LoadRegistry reads the environment registry. A missing file yields an empty
// registry, not an error.
func LoadRegistry() (*Registry, error) {
	return loadRegistryFrom(RegistryPath())
}

func loadRegistryFrom(path string) (*Registry, error) {
	reg := &Registry{PackageSettings: make(map[string]map[string]string)}
	if path == "" {
		return reg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return reg, nil
		}
		return nil, fmt.Errorf("reading registry: %w", err)
	}
	if err := json.Unmarshal(data, reg); err != nil {
		return nil, fmt.Errorf("parsing registry: %w", err)
	}
	if reg.PackageSettings == nil {
		reg.PackageSettings = make(map[string]map[string]string)
	}
	return reg, nil
}

// Save writes the registry back to disk, creating the directory if needed.
func (r *Registry) Save() error {
	return r.saveTo(RegistryPath())
}

func (r *Registry) saveTo(path string) error {
	if path == "" {
		return fmt.Errorf("registry path unavailable")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating registry directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing registry: %w", err)
	}
	return nil
}

// Register adds or updates an entry keyed by repo_source_path.
func (r *Registry) Register(entry RegistryEntry) {
	for i, existing := range r.Repos {
		if existing.RepoSourcePath == entry.RepoSourcePath {
			r.Repos[i] = entry
			return
		}
	}
	r.Repos = append(r.Repos, entry)
}

// PackageSetting returns a package-scoped setting ("" if unset).
func (r *Registry) PackageSetting(pkg, key string) string {
	if settings, ok := r.PackageSettings[pkg]; ok {
		return settings[key]
	}
	return ""
}

// SetPackageSetting stores a package-scoped setting.
func (r *Registry) SetPackageSetting(pkg, key, value string) {
	if r.PackageSettings[pkg] == nil {
		r.PackageSettings[pkg] = make(map[string]string)
	}
	r.PackageSettings[pkg][key] = value
}

// ResolvePath treats relative paths as relative to the project root.
func ResolvePath(root, path string) string {
	path = ExpandPath(path)
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
