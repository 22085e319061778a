// Package checkout owns the server-authoritative state of a checkout lane:
// the cart, the scanning flag, detection settings, the simulated objects and
// the camera/detector status. Every mutation is announced to all sessions
// through a Publisher.
package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/fairyhunter13/self-checkout-simulator/internal/catalog"
	"github.com/fairyhunter13/self-checkout-simulator/internal/detect"
	"github.com/fairyhunter13/self-checkout-simulator/internal/event"
	"github.com/fairyhunter13/self-checkout-simulator/internal/feed"
	"github.com/fairyhunter13/self-checkout-simulator/internal/ledger"
	"github.com/fairyhunter13/self-checkout-simulator/internal/model"
	"github.com/fairyhunter13/self-checkout-simulator/internal/obs"
)

// Publisher fans a message out to every connected session. Broadcast must
// not block.
type Publisher interface {
	Broadcast(event.Message)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(event.Message)

// Broadcast calls f(m).
func (f PublisherFunc) Broadcast(m event.Message) { f(m) }

// Options tune the engine.
type Options struct {
	FrameWidth       int
	FrameHeight      int
	HistoryThrottle  time.Duration
	CameraStaleAfter time.Duration
}

// DefaultOptions match the hub's configuration defaults.
func DefaultOptions() Options {
	return Options{
		FrameWidth:       640,
		FrameHeight:      480,
		HistoryThrottle:  2 * time.Second,
		CameraStaleAfter: 3 * time.Second,
	}
}

// Engine is safe for concurrent use. Attach the publisher and frame bus
// before the first command is handled.
type Engine struct {
	mu       sync.Mutex
	opts     Options
	catalog  *catalog.Store
	ledger   ledger.Ledger
	settings *detect.Settings
	tracker  *detect.Tracker
	sim      *detect.Simulation
	pub      Publisher
	frames   *feed.Bus
	now      func() time.Time

	cart          model.Cart
	scanning      bool
	simulation    bool
	cameraEnabled bool
	lastCamera    time.Time
	detectorSeen  bool
	lastBatchSeq  uint64
	lastDets      []model.Detection
	historyAt     map[string]time.Time
	ticks         uint64
}

// New builds an engine around its collaborators.
func New(opts Options, cat *catalog.Store, led ledger.Ledger, settings *detect.Settings) *Engine {
	def := DefaultOptions()
	if opts.FrameWidth <= 0 {
		opts.FrameWidth = def.FrameWidth
	}
	if opts.FrameHeight <= 0 {
		opts.FrameHeight = def.FrameHeight
	}
	if opts.CameraStaleAfter <= 0 {
		opts.CameraStaleAfter = def.CameraStaleAfter
	}
	if led == nil {
		led = ledger.Disconnected{}
	}
	if settings == nil {
		settings = detect.NewSettings("")
	}
	return &Engine{
		opts:      opts,
		catalog:   cat,
		ledger:    led,
		settings:  settings,
		tracker:   detect.NewTracker(),
		sim:       detect.NewSimulation(),
		now:       time.Now,
		cart:      make(model.Cart),
		historyAt: make(map[string]time.Time),
	}
}

// Attach sets the broadcast target.
func (e *Engine) Attach(p Publisher) { e.pub = p }

// AttachFeed sets the bus that receives camera and rendered frames.
func (e *Engine) AttachFeed(b *feed.Bus) { e.frames = b }

func (e *Engine) emit(name string, data any) {
	if e.pub == nil {
		return
	}
	e.pub.Broadcast(event.New(name, data))
}

// Greeting returns the status events a new session receives on connect.
func (e *Engine) Greeting() []event.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return []event.Message{
		event.New(event.CameraStatus, e.cameraStatusLocked()),
		event.New(event.YoloStatus, e.detectorStatusLocked()),
	}
}

// Forget drops per-session bookkeeping.
func (e *Engine) Forget(sessionID string) {
	e.mu.Lock()
	delete(e.historyAt, sessionID)
	e.mu.Unlock()
}

// Status is a point-in-time view for the debug endpoints.
type Status struct {
	Scanning         bool   `json:"detector_scanning"`
	Simulation       bool   `json:"simulation_mode"`
	CameraEnabled    bool   `json:"camera_enabled"`
	CameraAvailable  bool   `json:"camera_available"`
	DetectorReady    bool   `json:"detector_ready"`
	CartLines        int    `json:"cart_lines"`
	SimulatedObjects int    `json:"simulated_objects"`
	Conveyors        int    `json:"conveyors"`
	InZone           int    `json:"objects_in_zone"`
	LastDetections   int    `json:"last_detections"`
	LastBatchSeq     uint64 `json:"last_batch_seq"`
	Ticks            uint64 `json:"ticks"`
	LedgerConnected  bool   `json:"ledger_connected"`
	Products         int    `json:"products_count"`
}

// Status reports the current engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Scanning:         e.scanning,
		Simulation:       e.simulation,
		CameraEnabled:    e.cameraEnabled,
		CameraAvailable:  e.cameraAvailableLocked(),
		DetectorReady:    e.detectorSeen,
		CartLines:        len(e.cart),
		SimulatedObjects: e.sim.Len(),
		Conveyors:        e.sim.Conveyors(),
		InZone:           e.tracker.InZone(),
		LastDetections:   len(e.lastDets),
		LastBatchSeq:     e.lastBatchSeq,
		Ticks:            e.ticks,
		LedgerConnected:  e.ledger.Connected(),
		Products:         e.catalog.Len(),
	}
}

// Cart returns a copy of the cart and its total.
func (e *Engine) Cart() (model.Cart, float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.Clone(), e.cart.Total()
}

// Config returns the working detection configuration.
func (e *Engine) Config() model.AppConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.Current()
}

func (e *Engine) cartPayloadLocked() event.CartPayload {
	return event.CartPayload{Cart: e.cart.Clone(), Total: e.cart.Total()}
}

func (e *Engine) rulesLocked(frameWidth int) detect.CountRules {
	cfg := e.settings.Current()
	return detect.CountRules{
		Zone:      detect.ZoneFor(frameWidth, cfg.Detection.ZoneStart, cfg.Detection.ZoneWidth),
		AutoCount: cfg.Detection.AutoCount,
		Threshold: cfg.Detection.Threshold,
		Known: func(label string) bool {
			_, ok := e.catalog.Price(label)
			return ok
		},
	}
}

// addLabelsLocked puts one unit of every label into the cart and reports
// whether anything was added.
func (e *Engine) addLabelsLocked(labels []string) bool {
	added := false
	for _, label := range labels {
		price, ok := e.catalog.Price(label)
		if !ok {
			continue
		}
		line := e.cart[label]
		line.Price = price
		line.Quantity++
		e.cart[label] = line
		added = true
		obs.Logger.Info("item_counted", "label", label, "quantity", line.Quantity)
	}
	return added
}

// ApplyDetections counts a batch from the external detector. Batches older
// than the last applied one are dropped.
func (e *Engine) ApplyDetections(b model.DetectionBatch) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b.Sequence != 0 && b.Sequence <= e.lastBatchSeq {
		obs.Logger.Debug("detection_batch_stale", "sequence", b.Sequence, "last_sequence", e.lastBatchSeq)
		return
	}
	if b.Sequence != 0 {
		e.lastBatchSeq = b.Sequence
	}
	if !e.detectorSeen {
		e.detectorSeen = true
		e.emit(event.YoloStatus, e.detectorStatusLocked())
	}
	e.lastDets = b.Detections
	if !e.scanning || e.simulation {
		return
	}
	fw := b.FrameWidth
	if fw <= 0 {
		fw = e.opts.FrameWidth
	}
	if e.addLabelsLocked(e.tracker.Observe(b.Detections, e.rulesLocked(fw))) {
		e.emit(event.CartUpdate, e.cartPayloadLocked())
	}
}

// PostFrame records a JPEG frame from the external camera and forwards it
// to the feed while the camera is enabled and simulation is off.
func (e *Engine) PostFrame(jpeg []byte) {
	e.mu.Lock()
	wasAvailable := e.cameraAvailableLocked()
	e.lastCamera = e.now()
	show := e.cameraEnabled && !e.simulation
	if e.cameraEnabled && !wasAvailable {
		e.emit(event.CameraStatus, e.cameraStatusLocked())
	}
	e.mu.Unlock()
	if show && e.frames != nil {
		e.frames.Publish(jpeg, "camera")
	}
}

// Tick advances conveyors, counts simulated objects and refreshes the feed.
func (e *Engine) Tick() {
	e.mu.Lock()
	e.ticks++
	moved, exited := e.sim.Step(e.opts.FrameWidth)
	for _, id := range sortedKeys(moved) {
		o := moved[id]
		e.emit(event.SimulatedObjectMoved, event.SimObjectMovedPayload{Success: true, ObjID: id, X: o.X, Y: o.Y})
	}
	for _, id := range exited {
		e.tracker.Forget(id)
		e.emit(event.SimulatedObjectRemoved, event.SimObjectResult{Success: true, ObjID: id})
	}
	if e.scanning && e.simulation {
		labels := e.tracker.ObserveSimulated(e.sim.Objects(), e.opts.FrameWidth, e.opts.FrameHeight, e.rulesLocked(e.opts.FrameWidth))
		if e.addLabelsLocked(labels) {
			e.emit(event.CartUpdate, e.cartPayloadLocked())
		}
	}
	scene, draw := e.sceneLocked()
	e.mu.Unlock()

	if !draw || e.frames == nil {
		return
	}
	data, err := feed.Render(scene)
	if err != nil {
		obs.Logger.Warn("feed_render_failed", "error", err.Error())
		return
	}
	e.frames.Publish(data, "render")
}

// Interval returns the tick period derived from the configured frame rate.
func (e *Engine) Interval() time.Duration {
	e.mu.Lock()
	fps := e.settings.Current().Advanced.FrameRate
	e.mu.Unlock()
	if fps <= 0 {
		fps = 30
	}
	return time.Second / time.Duration(fps)
}

// Run ticks until ctx is done, following frame rate changes.
func (e *Engine) Run(ctx context.Context) {
	interval := e.Interval()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.Tick()
			if next := e.Interval(); next != interval {
				interval = next
				t.Reset(interval)
			}
		}
	}
}
