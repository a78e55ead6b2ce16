// Package profile loads the TUI connection settings from a YAML file.
package profile

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultURL = "ws://127.0.0.1:7878/ws"

// Profile describes how to reach a daemon.
type Profile struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// Load reads a profile from path. A missing file yields the defaults.
func Load(path string) (Profile, error) {
	p := Profile{URL: DefaultURL}
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if p.URL == "" {
		p.URL = DefaultURL
	}
	if _, err := url.Parse(p.URL); err != nil {
		return p, fmt.Errorf("profile url: %w", err)
	}
	return p, nil
}

// HTTPBase converts ws://host:port/ws to http://host:port.
func (p Profile) HTTPBase() string {
	u, err := url.Parse(p.URL)
	if err != nil || u.Host == "" {
		return "http://127.0.0.1:7878"
	}
	scheme := "http"
	if strings.HasPrefix(u.Scheme, "wss") {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, u.Host)
}
