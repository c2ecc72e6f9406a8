// Package configpaths locates configuration and calibration profile files.
package configpaths

import (
	"os"
	"path/filepath"
	"strings"
)

const appDir = "proxi"

// DefaultConfigDir returns the per-user configuration directory.
func DefaultConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appDir), nil
}

// ConfigCandidatePaths returns the config files kong should try, grouped by
// loader and in priority order. A user supplied path replaces the defaults
// and is routed by its extension (JSON when unknown).
func ConfigCandidatePaths(user string) (jsonPaths, yamlPaths, tomlPaths []string) {
	if user != "" {
		switch strings.ToLower(filepath.Ext(user)) {
		case ".yaml", ".yml":
			return nil, []string{user}, nil
		case ".toml":
			return nil, nil, []string{user}
		default:
			return []string{user}, nil, nil
		}
	}

	dirs := []string{"."}
	if d, err := DefaultConfigDir(); err == nil {
		dirs = append(dirs, d)
	}
	if d := systemConfigDir(); d != "" {
		dirs = append(dirs, d)
	}
	for _, d := range dirs {
		name := "config"
		if d == "." {
			name = appDir
		}
		base := filepath.Join(d, name)
		jsonPaths = append(jsonPaths, base+".json")
		yamlPaths = append(yamlPaths, base+".yaml", base+".yml")
		tomlPaths = append(tomlPaths, base+".toml")
	}
	return jsonPaths, yamlPaths, tomlPaths
}

// DefaultProfilePath is where calibration profiles are saved when no path
// is given.
func DefaultProfilePath() (string, error) {
	dir, err := ProfileDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "calibration.json"), nil
}
