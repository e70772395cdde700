// Package config loads optional p2psync defaults from a YAML file.
// Every field is a fallback for a CLI flag the user didn't set; a
// missing config file is not an error, only a malformed one is.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrMalformed wraps a YAML parse failure in an otherwise-present
// config file.
var ErrMalformed = errors.New("malformed config file")

// Defaults holds fallback values for p2psync's CLI flags.
type Defaults struct {
	TrackerURLs []string `yaml:"tracker_urls,omitempty"`
	Concurrency int      `yaml:"concurrency,omitempty"`
	Address     string   `yaml:"address,omitempty"`
	Port        int      `yaml:"port,omitempty"`
	Paths       []string `yaml:"paths,omitempty"`
}

// Load reads and parses the YAML defaults file at path. A path that
// does not exist returns a zero-value Defaults and no error; any other
// read failure, or a present-but-unparseable file, is an error.
func Load(path string) (Defaults, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Defaults{}, nil
	}
	if err != nil {
		return Defaults{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var d Defaults
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Defaults{}, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	return d, nil
}
