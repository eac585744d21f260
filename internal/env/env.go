// Package env handles the environment variables read by rigging tools.
package env

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// BuilderDisable skips building program binaries when set.
	BuilderDisable = "RIGGING_BUILDER_DISABLE"
	// ManifestDir is the directory relative input paths are resolved against.
	ManifestDir = "RIGGING_MANIFEST_DIR"
	// OutDir is the default directory of generated files.
	OutDir = "RIGGING_OUT_DIR"
)

// Parse parses KEY=VALUE entries. Keys must be unique and non-empty.
func Parse(env []string) (map[string]string, error) {
	kvs := make(map[string]string, len(env))
	for _, e := range env {
		k, v, ok := strings.Cut(e, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid env entry %q, want KEY=VALUE", e)
		}
		if _, dup := kvs[k]; dup {
			return nil, fmt.Errorf("duplicate env key %q", k)
		}
		kvs[k] = v
	}

	return kvs, nil
}

// Enabled reports whether key is set to a true value. Values that do not
// parse as a boolean count as true.
func Enabled(key string) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err != nil || b
}

// Resolve resolves a relative path against the directory named by key.
func Resolve(key, path string) string {
	dir := os.Getenv(key)
	if dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
