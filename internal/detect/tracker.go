package detect

import (
	"fmt"
	"time"

	"github.com/fairyhunter13/self-checkout-simulator/internal/model"
)

const (
	// MatchIoU is the minimum overlap for a detection to continue a track.
	MatchIoU = 0.3
	// TrackTimeout drops tracks that were not seen for this long.
	TrackTimeout = 2 * time.Second
)

// Zone is the counting band in pixels.
type Zone struct {
	X     int
	Width int
}

// ZoneFor converts zone percentages into pixels for a frame width.
func ZoneFor(frameWidth, startPct, widthPct int) Zone {
	return Zone{X: frameWidth * startPct / 100, Width: frameWidth * widthPct / 100}
}

// Contains reports whether centerX lies strictly inside the band.
func (z Zone) Contains(centerX int) bool {
	return centerX > z.X && centerX < z.X+z.Width
}

// Center returns the horizontal centre of the band.
func (z Zone) Center() int { return z.X + z.Width/2 }

// IoU returns the intersection over union of two x1,y1,x2,y2 boxes.
func IoU(a, b [4]int) float64 {
	x1, y1 := max(a[0], b[0]), max(a[1], b[1])
	x2, y2 := min(a[2], b[2]), min(a[3], b[3])
	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	inter := float64((x2 - x1) * (y2 - y1))
	areaA := float64((a[2] - a[0]) * (a[3] - a[1]))
	areaB := float64((b[2] - b[0]) * (b[3] - b[1]))
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

type track struct {
	label    string
	box      [4]int
	lastSeen time.Time
}

// CountRules decide whether an object entering the zone is counted.
type CountRules struct {
	Zone      Zone
	AutoCount bool
	Threshold float64
	Known     func(label string) bool
}

// Tracker follows objects across frames and reports zone entries.
type Tracker struct {
	tracks  map[string]track
	inZone  map[string]bool
	counted map[string]bool
	now     func() time.Time
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		tracks:  make(map[string]track),
		inZone:  make(map[string]bool),
		counted: make(map[string]bool),
		now:     time.Now,
	}
}

// Reset forgets all tracks and zone state.
func (t *Tracker) Reset() {
	clear(t.tracks)
	clear(t.inZone)
	clear(t.counted)
}

// Forget drops zone state for one object id.
func (t *Tracker) Forget(id string) {
	delete(t.tracks, id)
	delete(t.inZone, id)
	delete(t.counted, id)
}

// InZone returns how many tracked objects are currently inside the zone.
func (t *Tracker) InZone() int {
	n := 0
	for _, in := range t.inZone {
		if in {
			n++
		}
	}
	return n
}

// step applies the zone transition for one object and reports whether it
// should be counted now.
func (t *Tracker) step(id string, in, eligible bool, autoCount bool) bool {
	was := t.inZone[id]
	count := false
	if in {
		if !was && !t.counted[id] && eligible && autoCount {
			t.counted[id] = true
			count = true
		}
		t.inZone[id] = true
		return count
	}
	if was {
		delete(t.counted, id)
	}
	t.inZone[id] = false
	return false
}

func (t *Tracker) match(label string, box [4]int, taken map[string]bool) string {
	best, bestIoU := "", 0.0
	for id, tr := range t.tracks {
		if tr.label != label || taken[id] {
			continue
		}
		if iou := IoU(box, tr.box); iou > MatchIoU && iou > bestIoU {
			best, bestIoU = id, iou
		}
	}
	return best
}

// Observe processes one frame of external detections and returns the labels
// that entered the zone and must be added to the cart.
func (t *Tracker) Observe(dets []model.Detection, r CountRules) []string {
	now := t.now()
	taken := make(map[string]bool, len(dets))
	var counted []string
	for i, d := range dets {
		if d.Confidence < r.Threshold || (r.Known != nil && !r.Known(d.Label)) {
			continue
		}
		id := t.match(d.Label, d.Box, taken)
		if id == "" {
			id = fmt.Sprintf("%s_%d_%d", d.Label, now.UnixMilli(), i)
		}
		taken[id] = true
		t.tracks[id] = track{label: d.Label, box: d.Box, lastSeen: now}
		centerX := (d.Box[0] + d.Box[2]) / 2
		if t.step(id, r.Zone.Contains(centerX), true, r.AutoCount) {
			counted = append(counted, d.Label)
		}
	}
	for id, tr := range t.tracks {
		if now.Sub(tr.lastSeen) > TrackTimeout {
			t.Forget(id)
		}
	}
	return counted
}

// ObserveSimulated processes the simulated objects clipped to the frame and
// returns the labels that entered the zone.
func (t *Tracker) ObserveSimulated(objs map[string]model.SimulatedObject, frameW, frameH int, r CountRules) []string {
	var counted []string
	for _, id := range sortedIDs(objs) {
		o := objs[id]
		box := ClipBox(o, frameW, frameH)
		centerX := (box[0] + box[2]) / 2
		known := r.Known == nil || r.Known(o.Label)
		if t.step(id, r.Zone.Contains(centerX), known, r.AutoCount) {
			counted = append(counted, o.Label)
		}
	}
	return counted
}

// ClipBox returns the simulated object's box clipped to the frame.
func ClipBox(o model.SimulatedObject, frameW, frameH int) [4]int {
	return [4]int{
		max(0, o.X),
		max(0, o.Y),
		min(frameW, o.X+o.Width),
		min(frameH, o.Y+o.Height),
	}
}
