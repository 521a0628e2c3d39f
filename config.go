// config.go: Runtime configuration with section/key lookup
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/agilira/argus"
	"gopkg.in/yaml.v3"
)

// RuntimeConfig is the parsed configuration handed to the runtime and to
// extensions. Values are swapped atomically on reload; readers never block.
//
// Values are looked up by section and key. Both nested documents
//
//	[extensions]
//	retry_limit = 5
//
// and flat "section.key" entries are supported.
type RuntimeConfig struct {
	path   string
	values atomic.Pointer[map[string]interface{}]
}

// NewRuntimeConfig wraps already parsed values.
func NewRuntimeConfig(values map[string]interface{}) *RuntimeConfig {
	c := &RuntimeConfig{}
	c.Replace(values)
	return c
}

// LoadRuntimeConfig reads a configuration file. The format is detected from
// the file extension.
func LoadRuntimeConfig(path string) (*RuntimeConfig, error) {
	values, err := parseConfigFile(path)
	if err != nil {
		return nil, err
	}
	c := NewRuntimeConfig(values)
	c.path = path
	return c, nil
}

// Path returns the file the configuration was loaded from, if any.
func (c *RuntimeConfig) Path() string { return c.path }

// Reload re-reads the configuration file. On error the current values stay.
func (c *RuntimeConfig) Reload() error {
	if c.path == "" {
		return NewConfigWatcherError("configuration was not loaded from a file", nil)
	}
	values, err := parseConfigFile(c.path)
	if err != nil {
		return err
	}
	c.Replace(values)
	return nil
}

// Replace swaps in a new set of values.
func (c *RuntimeConfig) Replace(values map[string]interface{}) {
	if values == nil {
		values = make(map[string]interface{})
	}
	c.values.Store(&values)
}

func (c *RuntimeConfig) snapshot() map[string]interface{} {
	if v := c.values.Load(); v != nil {
		return *v
	}
	return nil
}

// Get returns the value of key in section, or def when it is missing. An
// empty section addresses top-level keys.
func (c *RuntimeConfig) Get(section, key string, def interface{}) interface{} {
	values := c.snapshot()
	if section == "" {
		if v, ok := values[key]; ok {
			return v
		}
		return def
	}
	if nested, ok := asStringMap(values[section]); ok {
		if v, ok := nested[key]; ok {
			return v
		}
	}
	if v, ok := values[section+"."+key]; ok {
		return v
	}
	return def
}

// GetString returns a value rendered as a string.
func (c *RuntimeConfig) GetString(section, key, def string) string {
	switch v := c.Get(section, key, nil).(type) {
	case nil:
		return def
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// GetInt returns an integer value; unparsable values yield def.
func (c *RuntimeConfig) GetInt(section, key string, def int) int {
	switch v := c.Get(section, key, nil).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// GetBool returns a boolean value; unparsable values yield def.
func (c *RuntimeConfig) GetBool(section, key string, def bool) bool {
	switch v := c.Get(section, key, nil).(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

// GetDuration returns a duration written as a Go duration string or as
// whole seconds.
func (c *RuntimeConfig) GetDuration(section, key string, def time.Duration) time.Duration {
	switch v := c.Get(section, key, nil).(type) {
	case string:
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	case int, int64, float64:
		return time.Duration(c.GetInt(section, key, 0)) * time.Second
	}
	return def
}

// Sections returns the names of all sections, sorted.
func (c *RuntimeConfig) Sections() []string {
	seen := make(map[string]struct{})
	for key, value := range c.snapshot() {
		if _, ok := asStringMap(value); ok {
			seen[key] = struct{}{}
			continue
		}
		if section, _, found := strings.Cut(key, "."); found {
			seen[section] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func asStringMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

// parseConfigFile parses YAML with yaml.v3 and every other format with argus.
func parseConfigFile(path string) (map[string]interface{}, error) {
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) // #nosec G304 - host supplied configuration path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewConfigNotFoundError(cleanPath, err)
		}
		return nil, NewConfigParseError(cleanPath, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return make(map[string]interface{}), nil
	}

	format := argus.DetectFormat(cleanPath)
	var values map[string]interface{}
	switch format {
	case argus.FormatYAML:
		err = yaml.Unmarshal(data, &values)
	default:
		values, err = argus.ParseConfig(data, format)
	}
	if err != nil {
		return nil, NewConfigParseError(cleanPath, err).WithContext("format", format.String())
	}
	if values == nil {
		values = make(map[string]interface{})
	}
	return values, nil
}
