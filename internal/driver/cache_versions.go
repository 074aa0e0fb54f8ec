package driver

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"

	"github.com/robert-at-pretension-io/hdl-force/internal/config"
)

func cacheEnabled(cfg *config.Config) bool {
	return cfg != nil && cfg.CacheEnabled()
}

func resolveCacheDir(rootPath string, cfg *config.Config) string {
	baseDir := rootPath
	if info, err := os.Stat(rootPath); err == nil && !info.IsDir() {
		baseDir = filepath.Dir(rootPath)
	}
	cacheDir := cfg.Analysis.Cache.Dir
	if cacheDir == "" {
		cacheDir = ".hdl_force_cache"
	}
	if !filepath.IsAbs(cacheDir) {
		cacheDir = filepath.Join(baseDir, cacheDir)
	}
	return cacheDir
}

// computeToolVersion fingerprints the lowering code. In a source checkout it
// hashes the pass and netlist sources; an installed binary falls back to its
// VCS revision.
func computeToolVersion() string {
	if repoRoot := findRepoRootForCache(); repoRoot != "" {
		var files []string
		for _, pkg := range []string{"force", "netlist"} {
			matches, _ := filepath.Glob(filepath.Join(repoRoot, "internal", pkg, "*.go"))
			files = append(files, matches...)
		}
		sort.Strings(files)
		h := sha256.New()
		for _, f := range files {
			h.Write([]byte(hashFileIfExists(f)))
		}
		if len(files) > 0 {
			return hex.EncodeToString(h.Sum(nil))
		}
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
		if info.Main.Version != "" {
			return info.Main.Version
		}
	}
	return "unknown"
}

func findRepoRootForCache() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return ""
	}
	dir := filepath.Dir(file)
	for {
		candidate := filepath.Join(dir, "internal", "force", "force.go")
		if _, err := os.Stat(candidate); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// configHash covers the settings that change a cached lowering result.
func configHash(cfg *config.Config) string {
	data, err := json.Marshal(struct {
		Rules          map[string]string `json:"rules"`
		CheckContract  bool              `json:"check_contract"`
		CheckOwnership bool              `json:"check_ownership"`
		Suffix         string            `json:"suffix"`
		Dir            string            `json:"dir"`
	}{cfg.Rules, cfg.ContractEnabled(), cfg.OwnershipEnabled(), cfg.Output.Suffix, cfg.Output.Dir})
	if err != nil {
		return "unknown"
	}
	return hashBytes(data)
}

func hashFileIfExists(path string) string {
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	h, err := hashFile(path)
	if err != nil {
		return ""
	}
	return h
}
