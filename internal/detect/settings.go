// Package detect holds the detection settings, the counting zone, the
// object tracker and the simulated-object world. None of its types are safe
// for concurrent use; the checkout engine serializes access.
package detect

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/fairyhunter13/self-checkout-simulator/internal/model"
)

var (
	// ErrUnknownPreset is returned for preset names outside Presets.
	ErrUnknownPreset = errors.New("detect: unknown preset")
	// ErrUnknownGroup is returned for config groups other than
	// detection, visual and advanced.
	ErrUnknownGroup = errors.New("detect: unknown config group")
	// ErrNoSavedConfig is returned by Load when nothing was saved yet.
	ErrNoSavedConfig = errors.New("detect: no saved config")
	// ErrInvalidConfig wraps validation failures.
	ErrInvalidConfig = errors.New("detect: invalid config")
)

var (
	colorRe      = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	resolutionRe = regexp.MustCompile(`^[1-9][0-9]*x[1-9][0-9]*$`)
)

// Presets are named partial configurations.
var Presets = map[string]func(*model.AppConfig){
	"retail": func(c *model.AppConfig) {
		c.Detection.Threshold = 0.7
		c.Detection.AutoCount = true
		c.Visual.ShowBoxes = true
		c.Visual.ShowLabels = true
		c.Visual.ShowConfidence = false
	},
	"demo": func(c *model.AppConfig) {
		c.Detection.Threshold = 0.5
		c.Detection.AutoCount = true
		c.Visual.ShowBoxes = true
		c.Visual.ShowLabels = true
		c.Visual.ShowConfidence = true
	},
	"debug": func(c *model.AppConfig) {
		c.Detection.Threshold = 0.3
		c.Detection.AutoCount = false
		c.Visual.ShowBoxes = true
		c.Visual.ShowLabels = true
		c.Visual.ShowConfidence = true
	},
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for n := range Presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks value ranges of every group.
func Validate(c model.AppConfig) error {
	d, v, a := c.Detection, c.Visual, c.Advanced
	switch {
	case d.ZoneStart < 0 || d.ZoneStart > 100:
		return fmt.Errorf("%w: zoneStart %d outside 0-100", ErrInvalidConfig, d.ZoneStart)
	case d.ZoneWidth < 0 || d.ZoneWidth > 100:
		return fmt.Errorf("%w: zoneWidth %d outside 0-100", ErrInvalidConfig, d.ZoneWidth)
	case d.Threshold < 0 || d.Threshold > 1:
		return fmt.Errorf("%w: threshold %v outside 0-1", ErrInvalidConfig, d.Threshold)
	case v.ZoneOpacity < 0 || v.ZoneOpacity > 1:
		return fmt.Errorf("%w: zoneOpacity %v outside 0-1", ErrInvalidConfig, v.ZoneOpacity)
	case !colorRe.MatchString(v.ZoneColor):
		return fmt.Errorf("%w: zoneColor %q", ErrInvalidConfig, v.ZoneColor)
	case !colorRe.MatchString(v.BoxColor):
		return fmt.Errorf("%w: boxColor %q", ErrInvalidConfig, v.BoxColor)
	case a.FrameRate < 1 || a.FrameRate > 120:
		return fmt.Errorf("%w: frameRate %d outside 1-120", ErrInvalidConfig, a.FrameRate)
	case !resolutionRe.MatchString(a.Resolution):
		return fmt.Errorf("%w: resolution %q", ErrInvalidConfig, a.Resolution)
	}
	return nil
}

// Settings is the working detection configuration with file persistence.
type Settings struct {
	cfg  model.AppConfig
	path string
}

// NewSettings starts from the defaults. path is where Save and Load keep the
// JSON file; an empty path disables persistence.
func NewSettings(path string) *Settings {
	return &Settings{cfg: model.DefaultAppConfig(), path: path}
}

// Current returns a copy of the configuration.
func (s *Settings) Current() model.AppConfig { return s.cfg }

// Zone returns the counting zone percentages.
func (s *Settings) Zone() (start, width int) {
	return s.cfg.Detection.ZoneStart, s.cfg.Detection.ZoneWidth
}

// SetZone updates the counting zone percentages.
func (s *Settings) SetZone(start, width int) error {
	next := s.cfg
	next.Detection.ZoneStart = start
	next.Detection.ZoneWidth = width
	if err := Validate(next); err != nil {
		return err
	}
	s.cfg = next
	return nil
}

func applyGroup(c *model.AppConfig, group string, delta json.RawMessage) error {
	if len(delta) == 0 || string(delta) == "null" {
		return nil
	}
	var target any
	switch group {
	case model.GroupDetection:
		target = &c.Detection
	case model.GroupVisual:
		target = &c.Visual
	case model.GroupAdvanced:
		target = &c.Advanced
	default:
		return fmt.Errorf("%w: %q", ErrUnknownGroup, group)
	}
	if err := json.Unmarshal(delta, target); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, group, err)
	}
	return nil
}

// Merge returns the current configuration with the given group deltas
// applied, without committing it.
func (s *Settings) Merge(deltas map[string]json.RawMessage) (model.AppConfig, error) {
	next := s.cfg
	for _, group := range []string{model.GroupDetection, model.GroupVisual, model.GroupAdvanced} {
		if err := applyGroup(&next, group, deltas[group]); err != nil {
			return s.cfg, err
		}
	}
	for group := range deltas {
		switch group {
		case model.GroupDetection, model.GroupVisual, model.GroupAdvanced:
		default:
			return s.cfg, fmt.Errorf("%w: %q", ErrUnknownGroup, group)
		}
	}
	if err := Validate(next); err != nil {
		return s.cfg, err
	}
	return next, nil
}

// ApplyGroup merges a JSON delta into one group. Fields absent from the
// delta keep their values; the update is all-or-nothing.
func (s *Settings) ApplyGroup(group string, delta json.RawMessage) (model.AppConfig, error) {
	next, err := s.Merge(map[string]json.RawMessage{group: delta})
	if err != nil {
		return s.cfg, err
	}
	s.cfg = next
	return next, nil
}

// ApplyFull merges deltas for several groups at once.
func (s *Settings) ApplyFull(deltas map[string]json.RawMessage) (model.AppConfig, error) {
	next, err := s.Merge(deltas)
	if err != nil {
		return s.cfg, err
	}
	s.cfg = next
	return next, nil
}

// ApplyPreset overlays a named preset and records it as the active preset.
func (s *Settings) ApplyPreset(name string) (model.AppConfig, error) {
	fn, ok := Presets[name]
	if !ok {
		return s.cfg, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	next := s.cfg
	fn(&next)
	next.Advanced.Preset = name
	s.cfg = next
	return next, nil
}

// Replace installs a complete configuration after validating it.
func (s *Settings) Replace(c model.AppConfig) error {
	if err := Validate(c); err != nil {
		return err
	}
	s.cfg = c
	return nil
}

// Save writes cfg, or the current configuration when cfg is nil.
func (s *Settings) Save(cfg *model.AppConfig) error {
	if s.path == "" {
		return nil
	}
	c := s.cfg
	if cfg != nil {
		c = *cfg
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load merges the saved file into the current configuration. Fields the
// file does not mention keep their values.
func (s *Settings) Load() (model.AppConfig, error) {
	if s.path == "" {
		return s.cfg, ErrNoSavedConfig
	}
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return s.cfg, ErrNoSavedConfig
	}
	if err != nil {
		return s.cfg, fmt.Errorf("read config: %w", err)
	}
	var groups map[string]json.RawMessage
	if err := json.Unmarshal(b, &groups); err != nil {
		return s.cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return s.ApplyFull(groups)
}

// Reset restores the defaults and saves them.
func (s *Settings) Reset() (model.AppConfig, error) {
	s.cfg = model.DefaultAppConfig()
	return s.cfg, s.Save(nil)
}
