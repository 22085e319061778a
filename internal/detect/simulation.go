package detect

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fairyhunter13/self-checkout-simulator/internal/model"
)

// ErrNoObject is returned for unknown simulated object ids.
var ErrNoObject = errors.New("detect: simulated object not found")

// ErrBadDirection is returned by Move for directions other than
// left, right, up and down.
var ErrBadDirection = errors.New("detect: bad direction")

// Movement bounds for manual moves.
const (
	MoveMaxX = 600
	MoveMaxY = 400
)

// Patch changes selected fields of a simulated object.
type Patch struct {
	Label  *string
	X      *int
	Y      *int
	Width  *int
	Height *int
}

// Simulation holds the synthetic objects and the conveyors moving them.
type Simulation struct {
	objects   map[string]model.SimulatedObject
	conveyors map[string]int
	nextID    int
	now       func() time.Time
}

// NewSimulation returns an empty world.
func NewSimulation() *Simulation {
	return &Simulation{
		objects:   make(map[string]model.SimulatedObject),
		conveyors: make(map[string]int),
		nextID:    1,
		now:       time.Now,
	}
}

// Add creates an object and returns its id (sim_<n>).
func (s *Simulation) Add(label string, x, y, w, h int) (string, model.SimulatedObject) {
	id := fmt.Sprintf("sim_%d", s.nextID)
	s.nextID++
	o := model.SimulatedObject{
		Label:       strings.ToLower(strings.TrimSpace(label)),
		X:           x,
		Y:           y,
		Width:       w,
		Height:      h,
		CreatedTime: float64(s.now().UnixNano()) / 1e9,
	}
	s.objects[id] = o
	return id, o
}

// Get returns one object.
func (s *Simulation) Get(id string) (model.SimulatedObject, bool) {
	o, ok := s.objects[id]
	return o, ok
}

// Update applies a patch.
func (s *Simulation) Update(id string, p Patch) (model.SimulatedObject, error) {
	o, ok := s.objects[id]
	if !ok {
		return o, ErrNoObject
	}
	if p.Label != nil {
		o.Label = strings.ToLower(strings.TrimSpace(*p.Label))
	}
	if p.X != nil {
		o.X = *p.X
	}
	if p.Y != nil {
		o.Y = *p.Y
	}
	if p.Width != nil {
		o.Width = *p.Width
	}
	if p.Height != nil {
		o.Height = *p.Height
	}
	s.objects[id] = o
	return o, nil
}

// Remove deletes an object and its conveyor.
func (s *Simulation) Remove(id string) bool {
	if _, ok := s.objects[id]; !ok {
		return false
	}
	delete(s.objects, id)
	delete(s.conveyors, id)
	return true
}

// Clear removes every object. Ids keep increasing.
func (s *Simulation) Clear() {
	clear(s.objects)
	clear(s.conveyors)
}

// Objects returns a copy of all objects keyed by id.
func (s *Simulation) Objects() map[string]model.SimulatedObject {
	out := make(map[string]model.SimulatedObject, len(s.objects))
	for k, v := range s.objects {
		out[k] = v
	}
	return out
}

// Len returns the number of objects.
func (s *Simulation) Len() int { return len(s.objects) }

// Move shifts an object by step pixels, clamped to the move bounds.
func (s *Simulation) Move(id, direction string, step int) (model.SimulatedObject, error) {
	o, ok := s.objects[id]
	if !ok {
		return o, ErrNoObject
	}
	switch direction {
	case "left":
		o.X = max(0, o.X-step)
	case "right":
		o.X = min(MoveMaxX, o.X+step)
	case "up":
		o.Y = max(0, o.Y-step)
	case "down":
		o.Y = min(MoveMaxY, o.Y+step)
	default:
		return o, fmt.Errorf("%w: %q", ErrBadDirection, direction)
	}
	s.objects[id] = o
	return o, nil
}

// StartConveyor makes Step move the object right by speed pixels per call.
func (s *Simulation) StartConveyor(id string, speed int) error {
	if _, ok := s.objects[id]; !ok {
		return ErrNoObject
	}
	s.conveyors[id] = speed
	return nil
}

// Conveyors returns how many objects are moving.
func (s *Simulation) Conveyors() int { return len(s.conveyors) }

// Step advances every conveyor once. Objects whose left edge passes
// frameWidth are removed and reported in exited.
func (s *Simulation) Step(frameWidth int) (moved map[string]model.SimulatedObject, exited []string) {
	moved = make(map[string]model.SimulatedObject, len(s.conveyors))
	for _, id := range sortedIDs(s.conveyors) {
		o, ok := s.objects[id]
		if !ok {
			delete(s.conveyors, id)
			continue
		}
		o.X += s.conveyors[id]
		if o.X > frameWidth {
			s.Remove(id)
			exited = append(exited, id)
			continue
		}
		s.objects[id] = o
		moved[id] = o
	}
	return moved, exited
}

func sortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
