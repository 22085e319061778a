package model

// DetectionConfig controls the counting zone and detection filtering.
type DetectionConfig struct {
	ZoneStart int     `json:"zoneStart" yaml:"zoneStart"`
	ZoneWidth int     `json:"zoneWidth" yaml:"zoneWidth"`
	ShowZone  bool    `json:"showZone" yaml:"showZone"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
	AutoCount bool    `json:"autoCount" yaml:"autoCount"`
}

// VisualConfig controls the overlay drawn on the live feed.
type VisualConfig struct {
	ShowBoxes      bool    `json:"showBoxes" yaml:"showBoxes"`
	ShowLabels     bool    `json:"showLabels" yaml:"showLabels"`
	ShowConfidence bool    `json:"showConfidence" yaml:"showConfidence"`
	ZoneColor      string  `json:"zoneColor" yaml:"zoneColor"`
	BoxColor       string  `json:"boxColor" yaml:"boxColor"`
	ZoneOpacity    float64 `json:"zoneOpacity" yaml:"zoneOpacity"`
}

// AdvancedConfig holds capture and model knobs forwarded to the detector.
type AdvancedConfig struct {
	Resolution      string `json:"resolution" yaml:"resolution"`
	FrameRate       int    `json:"frameRate" yaml:"frameRate"`
	Model           string `json:"model" yaml:"model"`
	ProcessingSpeed string `json:"processingSpeed" yaml:"processingSpeed"`
	Preset          string `json:"preset" yaml:"preset"`
}

// AppConfig groups the three configuration sections.
type AppConfig struct {
	Detection DetectionConfig `json:"detection" yaml:"detection"`
	Visual    VisualConfig    `json:"visual" yaml:"visual"`
	Advanced  AdvancedConfig  `json:"advanced" yaml:"advanced"`
}

// Config group names used by update_<group>_config events.
const (
	GroupDetection = "detection"
	GroupVisual    = "visual"
	GroupAdvanced  = "advanced"
)

// DefaultAppConfig returns the factory configuration.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Detection: DetectionConfig{
			ZoneStart: 70,
			ZoneWidth: 20,
			ShowZone:  true,
			Threshold: 0.5,
			AutoCount: true,
		},
		Visual: VisualConfig{
			ShowBoxes:      true,
			ShowLabels:     true,
			ShowConfidence: true,
			ZoneColor:      "#ff0000",
			BoxColor:       "#00ff00",
			ZoneOpacity:    0.2,
		},
		Advanced: AdvancedConfig{
			Resolution:      "640x480",
			FrameRate:       30,
			Model:           "yolov5s",
			ProcessingSpeed: "balanced",
			Preset:          "retail",
		},
	}
}
