package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the per-directory and per-user config file name.
const DefaultConfigFile = ".sbdl"

// XDGConfigFile is the file name looked up inside XDGConfigDir.
const XDGConfigFile = "config.yaml"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// LoadConfigFile reads the site configuration at path. Unknown keys are
// rejected so that a misspelt "useragent" does not silently fall back to
// the default. Host keys are lower-cased to match URL hosts.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-chosen config path
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	sites := make(map[string]SiteConfig, len(cf.Sites))
	for host, sc := range cf.Sites {
		key := strings.ToLower(strings.TrimSpace(host))
		if _, dup := sites[key]; dup {
			return nil, fmt.Errorf("parse config: host %q is listed twice", key)
		}
		sites[key] = sc
	}
	cf.Sites = sites

	return &cf, nil
}

// configCandidates lists the implicit config locations, most specific
// first: the working directory, the home directory, then the XDG config
// directory.
func configCandidates() []string {
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, DefaultConfigFile))
	}
	return append(paths, filepath.Join(XDGConfigDir(), XDGConfigFile))
}

// FindConfigFile returns the config file to load. An explicit configPath
// is used only if it exists; otherwise the first existing candidate wins.
// It returns "" when there is nothing to load.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if isRegularFile(configPath) {
			return configPath
		}
		return ""
	}

	for _, p := range configCandidates() {
		if isRegularFile(p) {
			return p
		}
	}
	return ""
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
