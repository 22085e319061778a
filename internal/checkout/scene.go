package checkout

import (
	"fmt"

	"github.com/fairyhunter13/self-checkout-simulator/internal/detect"
	"github.com/fairyhunter13/self-checkout-simulator/internal/feed"
)

// sceneLocked describes the frame the hub draws this tick. draw is false
// while a live camera feed is being shown.
func (e *Engine) sceneLocked() (scene feed.Scene, draw bool) {
	cfg := e.settings.Current()
	scene = feed.Scene{
		Width:      e.opts.FrameWidth,
		Height:     e.opts.FrameHeight,
		Background: feed.InfoBackground,
		BoxColor:   cfg.Visual.BoxColor,
		ShowBoxes:  cfg.Visual.ShowBoxes,
		ShowLabels: cfg.Visual.ShowLabels,
		ShowConf:   cfg.Visual.ShowConfidence,
		Footer:     e.footerLocked(),
	}
	if e.simulation {
		scene.Background = feed.SimulationBackground
		if cfg.Detection.ShowZone {
			z := detect.ZoneFor(e.opts.FrameWidth, cfg.Detection.ZoneStart, cfg.Detection.ZoneWidth)
			scene.Zone = &feed.ZoneOverlay{X: z.X, Width: z.Width, Color: cfg.Visual.ZoneColor, Opacity: cfg.Visual.ZoneOpacity}
		}
		objs := e.sim.Objects()
		for _, id := range sortedKeys(objs) {
			o := objs[id]
			scene.Boxes = append(scene.Boxes, feed.Box{
				Label:      o.Label,
				Confidence: 1,
				Rect:       detect.ClipBox(o, e.opts.FrameWidth, e.opts.FrameHeight),
			})
		}
		if len(objs) == 0 {
			scene.Title = "Simulation mode"
			scene.Lines = []string{"Add simulated objects to test detection"}
		}
		return scene, true
	}
	if !e.cameraEnabled {
		scene.Title = "Camera disabled"
		if e.detectorSeen {
			scene.Lines = []string{"Detector ready. Press camera button to enable"}
		} else {
			scene.Lines = []string{"Press camera button to enable"}
		}
		return scene, true
	}
	if e.cameraAvailableLocked() {
		return scene, false
	}
	scene.Background = feed.ErrorBackground
	scene.Title = "Camera Feed Error"
	scene.Lines = []string{"Camera not available", "Enable simulation mode for testing"}
	return scene, true
}

func (e *Engine) footerLocked() string {
	items := 0
	for _, line := range e.cart {
		items += line.Quantity
	}
	state := "idle"
	if e.scanning {
		state = "scanning"
	}
	return fmt.Sprintf("%s | cart: %d items | total: %.0f", state, items, e.cart.Total())
}
