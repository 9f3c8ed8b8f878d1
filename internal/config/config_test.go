package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/livrev/livrev/internal/fingerprint"
)

func setupProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(LivrevPath(dir), 0755); err != nil {
		t.Fatalf("creating .livrev: %v", err)
	}
	return dir
}

func TestSettingsRoundTrip(t *testing.T) {
	dir := setupProject(t)

	s := DefaultSettings("demo-review")
	s.Project.DelayAutomated = true
	s.Workers = 4
	if err := s.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Project.Name != "demo-review" {
		t.Errorf("Name = %q", loaded.Project.Name)
	}
	if loaded.Project.HashVersion != "v0.1" {
		t.Errorf("HashVersion = %q", loaded.Project.HashVersion)
	}
	if loaded.Project.Strategy != StrategyLiving {
		t.Errorf("Strategy = %q", loaded.Project.Strategy)
	}
	if !loaded.Project.DelayAutomated {
		t.Error("DelayAutomated not persisted")
	}
	if loaded.Dedupe.DupThreshold != 0.95 || loaded.Dedupe.NonDupThreshold != 0.70 {
		t.Errorf("thresholds = %v / %v", loaded.Dedupe.DupThreshold, loaded.Dedupe.NonDupThreshold)
	}
	if loaded.Workers != 4 {
		t.Errorf("Workers = %d", loaded.Workers)
	}
}

func TestValidate(t *testing.T) {
	s := DefaultSettings("x")
	s.Project.Strategy = "bogus"
	if err := s.Validate(); err == nil {
		t.Error("invalid strategy should fail validation")
	}

	s = DefaultSettings("x")
	s.Dedupe.DupThreshold = 0.5
	if err := s.Validate(); err == nil {
		t.Error("inverted thresholds should fail validation")
	}

	s = DefaultSettings("x")
	s.Project.HashVersion = "v99"
	if err := s.Validate(); err == nil {
		t.Error("unknown hash version should fail validation")
	}
}

func TestFingerprintDeclarations(t *testing.T) {
	dir := setupProject(t)

	s := DefaultSettings("x")
	s.Project.HashVersion = "cfg-v2"
	s.Fingerprints = map[string][]string{"cfg-v2": {"title", "author", "year"}}
	if err := s.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Project.HashVersion != "cfg-v2" {
		t.Errorf("HashVersion = %q", loaded.Project.HashVersion)
	}
	fn, err := fingerprint.Lookup("cfg-v2")
	if err != nil {
		t.Fatalf("declared version not registered on load: %v", err)
	}
	if len(fn.Fields) != 3 || fn.Fields[0] != "title" {
		t.Errorf("Fields = %v", fn.Fields)
	}

	// A conflicting redeclaration is rejected.
	bad := DefaultSettings("x")
	bad.Fingerprints = map[string][]string{"cfg-v2": {"title"}}
	if err := bad.Validate(); err == nil {
		t.Error("conflicting field list should fail validation")
	}
}

func TestFindProject(t *testing.T) {
	dir := setupProject(t)
	nested := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	root, err := FindProject(nested)
	if err != nil {
		t.Fatalf("FindProject: %v", err)
	}
	if root != dir {
		t.Errorf("FindProject = %q, want %q", root, dir)
	}

	if _, err := FindProject(t.TempDir()); err == nil {
		t.Error("FindProject outside a project should fail")
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")

	reg := &Registry{PackageSettings: make(map[string]map[string]string)}
	reg.Register(RegistryEntry{RepoName: "demo", RepoSourcePath: "/tmp/demo"})
	reg.SetPackageSetting("unpaywall", "email", "reviewer@example.org")
	if err := reg.saveTo(path); err != nil {
		t.Fatalf("saveTo: %v", err)
	}

	loaded, err := loadRegistryFrom(path)
	if err != nil {
		t.Fatalf("loadRegistryFrom: %v", err)
	}
	if len(loaded.Repos) != 1 || loaded.Repos[0].RepoName != "demo" {
		t.Errorf("Repos = %+v", loaded.Repos)
	}
	if got := loaded.PackageSetting("unpaywall", "email"); got != "reviewer@example.org" {
		t.Errorf("PackageSetting = %q", got)
	}

	// Registering the same path updates in place.
	loaded.Register(RegistryEntry{RepoName: "demo2", RepoSourcePath: "/tmp/demo"})
	if len(loaded.Repos) != 1 || loaded.Repos[0].RepoName != "demo2" {
		t.Errorf("Register should update in place: %+v", loaded.Repos)
	}
}

func TestLoadRegistryMissing(t *testing.T) {
	reg, err := loadRegistryFrom(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("loadRegistryFrom: %v", err)
	}
	if len(reg.Repos) != 0 {
		t.Errorf("missing registry should be empty, got %+v", reg.Repos)
	}
}

func TestResolvePath(t *testing.T) {
	if got := ResolvePath("/proj", "pdfs/a.pdf"); got != filepath.Join("/proj", "pdfs/a.pdf") {
		t.Errorf("ResolvePath relative = %q", got)
	}
	if got := ResolvePath("/proj", "/abs/a.pdf"); got != "/abs/a.pdf" {
		t.Errorf("ResolvePath absolute = %q", got)
	}
}
