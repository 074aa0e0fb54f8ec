package driver

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/robert-at-pretension-io/hdl-force/internal/diag"
	"github.com/robert-at-pretension-io/hdl-force/internal/facts"
	"github.com/robert-at-pretension-io/hdl-force/internal/force"
)

const cacheIndexVersion = 1

// cacheKey is what must match for a cached lowering to be reused.
type cacheKey struct {
	ContentHash string `json:"content_hash"`
	ToolVersion string `json:"tool_version"`
	ConfigHash  string `json:"config_hash"`
}

type cacheEntry struct {
	cacheKey
	ResultPath string `json:"result_path"`
}

type cacheIndex struct {
	Version int                   `json:"version"`
	Entries map[string]cacheEntry `json:"entries"`
}

func emptyIndex() cacheIndex {
	return cacheIndex{Version: cacheIndexVersion, Entries: map[string]cacheEntry{}}
}

// cachedDesign is everything a later run needs to skip lowering a design
// whose content, tool and configuration are unchanged.
type cachedDesign struct {
	Output      string            `json:"output"`
	Stats       force.Stats       `json:"stats"`
	Diagnostics []diag.Diagnostic `json:"diagnostics"`
	Tables      facts.Tables      `json:"tables"`
}

// loweredCache maps design paths to cached lowering results under dir.
// Results live in designs/<sha256(path)>.json; index.json holds the keys.
type loweredCache struct {
	dir         string
	toolVersion string
	configHash  string

	mu    sync.Mutex
	index cacheIndex
}

func newLoweredCache(dir, toolVersion, configHash string) *loweredCache {
	return &loweredCache{dir: dir, toolVersion: toolVersion, configHash: configHash, index: emptyIndex()}
}

func (c *loweredCache) key(contentHash string) cacheKey {
	return cacheKey{ContentHash: contentHash, ToolVersion: c.toolVersion, ConfigHash: c.configHash}
}

func (c *loweredCache) indexPath() string {
	return filepath.Join(c.dir, "index.json")
}

func (c *loweredCache) resultPath(filePath string) string {
	return filepath.Join(c.dir, "designs", hashBytes([]byte(filePath))+".json")
}

// Load reads the index. A missing index is an empty cache; an index of
// another version is discarded.
func (c *loweredCache) Load() error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("cache mkdir: %w", err)
	}
	var idx cacheIndex
	switch err := readJSON(c.indexPath(), &idx); {
	case errors.Is(err, fs.ErrNotExist):
		idx = emptyIndex()
	case err != nil:
		return fmt.Errorf("cache index: %w", err)
	case idx.Version != cacheIndexVersion:
		idx = emptyIndex()
	case idx.Entries == nil:
		idx.Entries = map[string]cacheEntry{}
	}

	c.mu.Lock()
	c.index = idx
	c.mu.Unlock()
	return nil
}

func (c *loweredCache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return writeJSONAtomic(c.indexPath(), c.index)
}

// Get returns the cached lowering of a design. A hit also requires the
// lowered document to still exist on disk.
func (c *loweredCache) Get(filePath, contentHash string) (cachedDesign, bool, error) {
	c.mu.Lock()
	entry, ok := c.index.Entries[filePath]
	c.mu.Unlock()
	if !ok || entry.cacheKey != c.key(contentHash) {
		return cachedDesign{}, false, nil
	}

	var cached cachedDesign
	if err := readJSON(entry.ResultPath, &cached); err != nil {
		return cachedDesign{}, false, fmt.Errorf("cached design: %w", err)
	}
	if cached.Output != "" && !fileExists(cached.Output) {
		return cachedDesign{}, false, nil
	}
	return cached, true, nil
}

func (c *loweredCache) Put(filePath, contentHash string, cached cachedDesign) error {
	path := c.resultPath(filePath)
	if err := writeJSONAtomic(path, cached); err != nil {
		return err
	}
	c.mu.Lock()
	c.index.Entries[filePath] = cacheEntry{cacheKey: c.key(contentHash), ResultPath: path}
	c.mu.Unlock()
	return nil
}

// Clear removes the cache directory.
func (c *loweredCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = emptyIndex()
	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// writeJSONAtomic writes v as indented JSON through a temp file in the
// destination directory, so readers never see a partial document.
func writeJSONAtomic(path string, v any) (err error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*.json")
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
