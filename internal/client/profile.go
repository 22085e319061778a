package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/self-checkout-simulator/internal/model"
)

// DefaultHubURL is the event channel of a hub running locally.
const DefaultHubURL = "ws://localhost:5002/socket"

// Profile is the operator's local settings: which hub to talk to and the
// working config to push to it.
type Profile struct {
	HubURL string          `yaml:"hub_url"`
	Config model.AppConfig `yaml:"config"`
}

// DefaultProfile points at a local hub with the factory config.
func DefaultProfile() Profile {
	return Profile{HubURL: DefaultHubURL, Config: model.DefaultAppConfig()}
}

// LoadProfile reads path. A missing file yields DefaultProfile; fields
// absent from the file keep their defaults.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return DefaultProfile(), fmt.Errorf("parse profile %s: %w", path, err)
	}
	if p.HubURL == "" {
		p.HubURL = DefaultHubURL
	}
	return p, nil
}

// Save writes the profile to path, creating parent directories.
func (p Profile) Save(path string) error {
	b, err := yaml.Marshal(&p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("profile dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return os.Rename(tmp, path)
}
