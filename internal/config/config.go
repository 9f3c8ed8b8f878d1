// Package config handles project settings and project discovery.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/livrev/livrev/internal/fingerprint"
)

// Orchestration strategies.
const (
	StrategyTraditional = "traditional"
	StrategyDelayManual = "traditional-delay-manual"
	StrategyLiving      = "living"
)

// Settings represents project configuration stored in .livrev/settings.yml.
type Settings struct {
	Project struct {
		Name        string `yaml:"name"`
		HashVersion string `yaml:"hash_version"`
		Strategy    string `yaml:"strategy"`
		// DelayAutomated defers an operation until every record has cleared
		// all preceding states.
		DelayAutomated bool `yaml:"delay_automated_processing"`
	} `yaml:"project"`

	Dedupe struct {
		DupThreshold    float64 `yaml:"dup_threshold"`
		NonDupThreshold float64 `yaml:"non_dup_threshold"`
	} `yaml:"dedupe"`

	Prep struct {
		CrossrefEnrichment bool `yaml:"crossref_enrichment"`
	} `yaml:"prep"`

	// Fingerprints declares additional fingerprint versions as ordered field
	// lists, keyed by version. Declared versions are registered on load, so
	// `livrev rehash --version` can target them.
	Fingerprints map[string][]string `yaml:"fingerprints,omitempty"`

	Workers int `yaml:"workers,omitempty"` // 0 means NumCPU-2
}

const (
	// LivrevDir marks a project root.
	LivrevDir    = ".livrev"
	SettingsFile = "settings.yml"
	StatusFile   = "status.yml"
	RecordsFile  = "references.bib"
	OverlayFile  = "references.overlay.bib"
	SearchDir    = "search"
	PDFDir       = "pdfs"

	SearchDetailsFile = "search_details.csv"

	QueueOrderFile          = "queue_order.csv"
	DuplicateTuplesFile     = "duplicate_tuples.csv"
	NonDuplicatesFile       = "non_duplicates.csv"
	PotentialDuplicatesFile = "potential_duplicate_tuples.csv"
)

// DefaultSettings returns settings for a fresh project.
func DefaultSettings(name string) *Settings {
	s := &Settings{}
	s.Project.Name = name
	s.Project.HashVersion = fingerprint.DefaultVersion
	s.Project.Strategy = StrategyLiving
	s.Dedupe.DupThreshold = 0.95
	s.Dedupe.NonDupThreshold = 0.70
	s.Prep.CrossrefEnrichment = true
	return s
}

// LivrevPath returns the path to the .livrev directory from a root path.
func LivrevPath(root string) string {
	return filepath.Join(root, LivrevDir)
}

// SettingsPath returns the path to settings.yml from a root path.
func SettingsPath(root string) string {
	return filepath.Join(root, LivrevDir, SettingsFile)
}

// StatusPath returns the path to status.yml from a root path.
func StatusPath(root string) string {
	return filepath.Join(root, LivrevDir, StatusFile)
}

// RecordsPath returns the path to the canonical record file.
func RecordsPath(root string) string {
	return filepath.Join(root, RecordsFile)
}

// OverlayPath returns the path to the cleansed overlay written during living
// runs.
func OverlayPath(root string) string {
	return filepath.Join(root, OverlayFile)
}

// SearchPath returns the path to the search directory.
func SearchPath(root string) string {
	return filepath.Join(root, SearchDir)
}

// SearchDetailsPath returns the path to the search descriptor CSV.
func SearchDetailsPath(root string) string {
	return filepath.Join(root, SearchDir, SearchDetailsFile)
}

// PDFPath returns the path to the local PDF directory.
func PDFPath(root string) string {
	return filepath.Join(root, PDFDir)
}

// LedgerPath returns the path of a merge-engine ledger file.
func LedgerPath(root, name string) string {
	return filepath.Join(root, name)
}

// IsProject checks whether root contains a livrev project.
func IsProject(root string) bool {
	info, err := os.Stat(LivrevPath(root))
	return err == nil && info.IsDir()
}

// FindProject walks up from start to find a project root.
func FindProject(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	for {
		if IsProject(abs) {
			return abs, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("not in a livrev project (no %s directory found)", LivrevDir)
		}
		abs = parent
	}
}

// Load reads settings from the project at root.
func Load(root string) (*Settings, error) {
	data, err := os.ReadFile(SettingsPath(root))
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save writes settings to the project at root.
func (s *Settings) Save(root string) error {
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := os.WriteFile(SettingsPath(root), data, 0644); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}

// Validate checks settings consistency and registers any fingerprint
// versions the project declares.
func (s *Settings) Validate() error {
	switch s.Project.Strategy {
	case StrategyTraditional, StrategyDelayManual, StrategyLiving:
	default:
		return fmt.Errorf("invalid strategy: %q", s.Project.Strategy)
	}
	for version, fields := range s.Fingerprints {
		if err := fingerprint.Ensure(fingerprint.Function{Version: version, Fields: fields}); err != nil {
			return err
		}
	}
	if _, err := fingerprint.Lookup(s.Project.HashVersion); err != nil {
		return err
	}
	if s.Dedupe.DupThreshold <= s.Dedupe.NonDupThreshold {
		return fmt.Errorf("dup_threshold (%.2f) must exceed non_dup_threshold (%.2f)",
			s.Dedupe.DupThreshold, s.Dedupe.NonDupThreshold)
	}
	return nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
