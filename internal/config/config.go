package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the top-level configuration for hdl-force
type Config struct {
	// Designs is a list of glob patterns for elaborated design documents
	Designs []string `json:"designs,omitempty"`

	// Exclude is a list of glob patterns removed from Designs
	Exclude []string `json:"exclude,omitempty"`

	// Rules maps diagnostic codes to severity: "off", "info", "warning", "error"
	Rules map[string]string `json:"rules,omitempty"`

	// Output controls where lowered designs and facts are written
	Output OutputConfig `json:"output,omitempty"`

	// Analysis contains pipeline options
	Analysis AnalysisConfig `json:"analysis,omitempty"`
}

// OutputConfig controls the files written next to (or away from) the inputs
type OutputConfig struct {
	// Dir receives lowered documents; empty writes next to each input
	Dir string `json:"dir,omitempty"`

	// Suffix is inserted before the extension of lowered documents
	Suffix string `json:"suffix,omitempty"`

	// WriteFacts also writes the post-lowering fact tables
	WriteFacts bool `json:"writeFacts,omitempty"`

	// FactsDB exports the merged fact tables of a run to this SQLite file
	FactsDB string `json:"factsDB,omitempty"`
}

// CacheConfig controls the lowered-output cache
type CacheConfig struct {
	// Enabled turns on cache usage
	Enabled *bool `json:"enabled,omitempty"`

	// Dir is the cache directory (relative to project root if not absolute)
	Dir string `json:"dir,omitempty"`
}

// AnalysisConfig contains pipeline options
type AnalysisConfig struct {
	// MaxParallelFiles limits concurrent design processing (0 = auto)
	MaxParallelFiles int `json:"maxParallelFiles,omitempty"`

	// CheckContract validates inputs and outputs against the CUE schemas
	CheckContract *bool `json:"checkContract,omitempty"`

	// CheckOwnership runs the netlist ownership check after lowering
	CheckOwnership *bool `json:"checkOwnership,omitempty"`

	// PolicyDir overrides the embedded contract policy with .rego files
	PolicyDir string `json:"policyDir,omitempty"`

	// Cache controls the lowered-output cache
	Cache CacheConfig `json:"cache,omitempty"`
}

const (
	defaultSuffix   = ".lowered"
	defaultCacheDir = ".hdl_force_cache"
)

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Designs: []string{"*.json", "**/*.json"},
		Exclude: []string{"**/*" + defaultSuffix + ".json", defaultCacheDir + "/**"},
		Rules:   map[string]string{},
		Output: OutputConfig{
			Suffix: defaultSuffix,
		},
		Analysis: AnalysisConfig{
			MaxParallelFiles: 0, // auto
			CheckContract:    boolPtr(true),
			CheckOwnership:   boolPtr(true),
			Cache: CacheConfig{
				Enabled: boolPtr(true),
				Dir:     defaultCacheDir,
			},
		},
	}
}

func boolPtr(v bool) *bool {
	return &v
}

// FileName is the project configuration file name
const FileName = "hdl_force.json"

// Load returns the first configuration found, in this order: the working
// directory, rootPath when it is another directory, then
// ~/.config/hdl_force/config.json. Each directory is tried with the plain
// and the dotted file name. Without any file the defaults apply.
func Load(rootPath string) (*Config, error) {
	for _, path := range candidatePaths(rootPath) {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return LoadFile(path)
		}
	}
	return DefaultConfig(), nil
}

func candidatePaths(rootPath string) []string {
	var dirs []string
	cwd, _ := os.Getwd()
	if cwd != "" {
		dirs = append(dirs, cwd)
	}
	if info, err := os.Stat(rootPath); err == nil && info.IsDir() {
		if abs, err := filepath.Abs(rootPath); err == nil && abs != cwd {
			dirs = append(dirs, abs)
		}
	}
	var paths []string
	for _, dir := range dirs {
		paths = append(paths, filepath.Join(dir, FileName), filepath.Join(dir, "."+FileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "hdl_force", "config.json"))
	}
	return paths
}

// LoadFile reads one configuration file and fills in the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills in missing configuration with defaults
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if len(c.Designs) == 0 {
		c.Designs = def.Designs
		if c.Exclude == nil {
			c.Exclude = def.Exclude
		}
	}
	if c.Rules == nil {
		c.Rules = make(map[string]string)
	}
	if c.Output.Suffix == "" {
		c.Output.Suffix = defaultSuffix
	}
	if c.Analysis.CheckContract == nil {
		c.Analysis.CheckContract = boolPtr(true)
	}
	if c.Analysis.CheckOwnership == nil {
		c.Analysis.CheckOwnership = boolPtr(true)
	}
	if c.Analysis.Cache.Dir == "" {
		c.Analysis.Cache.Dir = defaultCacheDir
	}
	if c.Analysis.Cache.Enabled == nil {
		c.Analysis.Cache.Enabled = boolPtr(true)
	}
}

// Save writes the configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// GetRuleSeverity maps a diagnostic code or contract rule to its configured
// severity. Unconfigured rules keep def.
func (c *Config) GetRuleSeverity(rule, def string) string {
	if sev, ok := c.Rules[rule]; ok {
		return sev
	}
	return def
}

// IsRuleEnabled reports whether a rule is not switched "off".
func (c *Config) IsRuleEnabled(rule string) bool {
	return c.GetRuleSeverity(rule, "error") != "off"
}

// ContractEnabled reports whether CUE contract checks run
func (c *Config) ContractEnabled() bool {
	return c.Analysis.CheckContract == nil || *c.Analysis.CheckContract
}

// OwnershipEnabled reports whether the netlist ownership check runs
func (c *Config) OwnershipEnabled() bool {
	return c.Analysis.CheckOwnership == nil || *c.Analysis.CheckOwnership
}

// CacheEnabled reports whether the lowered-output cache is used
func (c *Config) CacheEnabled() bool {
	return c.Analysis.Cache.Enabled == nil || *c.Analysis.Cache.Enabled
}

// ShouldIgnoreFile reports whether an Exclude pattern matches the path or
// its base name.
func (c *Config) ShouldIgnoreFile(filePath string) bool {
	base := filepath.Base(filePath)
	for _, pattern := range c.Exclude {
		if ok, _ := filepath.Match(pattern, filePath); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// OutputPath returns where the lowered form of a design is written
func (c *Config) OutputPath(rootPath, designPath string) string {
	base := filepath.Base(designPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)] + c.Output.Suffix + ext
	if c.Output.Dir == "" {
		return filepath.Join(filepath.Dir(designPath), name)
	}
	dir := c.Output.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(rootPath, dir)
	}
	return filepath.Join(dir, name)
}

// FactsDBPath resolves FactsDB against the project root. Empty means no
// export.
func (c *Config) FactsDBPath(rootPath string) string {
	if c.Output.FactsDB == "" || filepath.IsAbs(c.Output.FactsDB) {
		return c.Output.FactsDB
	}
	return filepath.Join(rootPath, c.Output.FactsDB)
}

// FactsPath returns where the fact tables of a lowered design are written
func (c *Config) FactsPath(rootPath, designPath string) string {
	out := c.OutputPath(rootPath, designPath)
	return out[:len(out)-len(filepath.Ext(out))] + ".facts.json"
}
