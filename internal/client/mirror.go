package client

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fairyhunter13/self-checkout-simulator/internal/event"
	"github.com/fairyhunter13/self-checkout-simulator/internal/model"
)

// State is a copy of everything the client mirrors.
type State struct {
	Connected        bool
	Cart             model.Cart
	Total            float64
	Products         model.Catalog
	Transactions     []model.Transaction
	SimulatedObjects map[string]model.SimulatedObject
	Scanning         bool
	Simulation       bool
	Camera           event.CameraStatusPayload
	Detector         event.YoloStatusPayload
	Config           model.AppConfig
}

func (s State) clone() State {
	out := s
	out.Cart = s.Cart.Clone()
	out.Products = s.Products.Clone()
	out.Transactions = make([]model.Transaction, len(s.Transactions))
	for i, tx := range s.Transactions {
		tx.Items = append([]model.TransactionItem(nil), tx.Items...)
		out.Transactions[i] = tx
	}
	out.SimulatedObjects = make(map[string]model.SimulatedObject, len(s.SimulatedObjects))
	for k, v := range s.SimulatedObjects {
		out.SimulatedObjects[k] = v
	}
	return out
}

// Mirror applies server events to a local copy of the hub's state. Each
// event replaces or patches one entity; a full list replaces whatever
// partial updates came before it.
type Mirror struct {
	mu       sync.Mutex
	st       State
	notify   *Notifier
	onChange []func(string)
}

// NewMirror returns an empty mirror with the default working config.
// Notifications go to n when it is non-nil.
func NewMirror(n *Notifier) *Mirror {
	return &Mirror{
		notify: n,
		st: State{
			Cart:             make(model.Cart),
			Products:         make(model.Catalog),
			SimulatedObjects: make(map[string]model.SimulatedObject),
			Config:           model.DefaultAppConfig(),
		},
	}
}

// OnChange registers fn to run after every applied event.
func (m *Mirror) OnChange(fn func(event string)) {
	m.mu.Lock()
	m.onChange = append(m.onChange, fn)
	m.mu.Unlock()
}

// Snapshot returns a deep copy of the mirrored state.
func (m *Mirror) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.clone()
}

func (m *Mirror) setConnected(v bool) {
	m.mu.Lock()
	m.st.Connected = v
	m.mu.Unlock()
}

func (m *Mirror) setScanning(v bool) {
	m.mu.Lock()
	m.st.Scanning = v
	m.mu.Unlock()
}

// SetConfig replaces the working config, e.g. from a saved profile.
func (m *Mirror) SetConfig(cfg model.AppConfig) {
	m.mu.Lock()
	m.st.Config = cfg
	m.mu.Unlock()
}

// Apply runs the handler for env. Events without a handler change no state.
func (m *Mirror) Apply(env event.Envelope) error {
	var (
		note string
		err  error
	)
	m.mu.Lock()
	// events with no state behind them still reach the watchers
	if h, ok := mirrorHandlers[env.Event]; ok {
		note, err = h(&m.st, env)
	}
	watchers := append(([]func(string))(nil), m.onChange...)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if note != "" && m.notify != nil {
		m.notify.Show(note)
	}
	for _, fn := range watchers {
		fn(env.Event)
	}
	return nil
}

// mirrorHandler mutates st and returns a notification, if any.
type mirrorHandler func(st *State, env event.Envelope) (string, error)

var mirrorHandlers = map[string]mirrorHandler{
	event.CartUpdate: func(st *State, env event.Envelope) (string, error) {
		var p event.CartPayload
		if err := env.Bind(&p); err != nil {
			return "", err
		}
		st.Cart, st.Total = nonNilCart(p.Cart), p.Total
		return "", nil
	},
	event.ScanningComplete: func(st *State, env event.Envelope) (string, error) {
		var p event.CartPayload
		if err := env.Bind(&p); err != nil {
			return "", err
		}
		st.Cart, st.Total = nonNilCart(p.Cart), p.Total
		st.Scanning = false
		return "", nil
	},
	event.ProductsList: func(st *State, env event.Envelope) (string, error) {
		var p model.Catalog
		if err := env.Bind(&p); err != nil {
			return "", err
		}
		if p == nil {
			p = make(model.Catalog)
		}
		st.Products = p
		return "", nil
	},
	event.ProductAdded: productSet("Product %s added successfully"),
	event.ProductUpdated: productSet("Product %s updated successfully"),
	event.ProductDeleted: func(st *State, env event.Envelope) (string, error) {
		var p event.ProductPayload
		if err := env.Bind(&p); err != nil {
			return "", err
		}
		delete(st.Products, p.Name)
		return fmt.Sprintf("Product %s deleted successfully", p.Name), nil
	},
	event.TransactionHistory: func(st *State, env event.Envelope) (string, error) {
		var txs []model.Transaction
		if err := env.Bind(&txs); err != nil {
			return "", err
		}
		st.Transactions = txs
		return "", nil
	},
	event.TransactionDeleted: func(st *State, env event.Envelope) (string, error) {
		var p event.TransactionDeletedPayload
		if err := env.Bind(&p); err != nil {
			return "", err
		}
		if !p.Success {
			return "", nil
		}
		kept := st.Transactions[:0:0]
		for _, tx := range st.Transactions {
			if tx.ID != p.ID {
				kept = append(kept, tx)
			}
		}
		st.Transactions = kept
		return "Transaction deleted successfully", nil
	},
	event.ItemRemoved: func(st *State, env event.Envelope) (string, error) {
		var p event.ItemRemovedPayload
		if err := env.Bind(&p); err != nil {
			return "", err
		}
		if !p.Success {
			return "", nil
		}
		return fmt.Sprintf("Removed %s from cart", p.Name), nil
	},
	event.SimulationToggled: func(st *State, env event.Envelope) (string, error) {
		var p event.SimulationToggledPayload
		if err := env.Bind(&p); err != nil {
			return "", err
		}
		st.Simulation = p.Enabled
		if !p.Enabled {
			st.SimulatedObjects = make(map[string]model.SimulatedObject)
		}
		return "", nil
	},
	event.SimulatedObjectsList: func(st *State, env event.Envelope) (string, error) {
		var objs map[string]model.SimulatedObject
		if err := env.Bind(&objs); err != nil {
			return "", err
		}
		if objs == nil {
			objs = make(map[string]model.SimulatedObject)
		}
		st.SimulatedObjects = objs
		return "", nil
	},
	event.SimulatedObjectAdded: func(st *State, env event.Envelope) (string, error) {
		var p event.SimObjectAddedPayload
		if err := env.Bind(&p); err != nil {
			return "", err
		}
		if !p.Success {
			return "", nil
		}
		st.SimulatedObjects[p.ObjID] = model.SimulatedObject{
			Label: p.Label, X: p.X, Y: p.Y, Width: p.Width, Height: p.Height,
		}
		return fmt.Sprintf("Added simulated %s", p.Label), nil
	},
	event.SimulatedObjectUpdated: func(st *State, env event.Envelope) (string, error) {
		var p event.SimObjectResult
		if err := env.Bind(&p); err != nil {
			return "", err
		}
		if p.Success && p.Object != nil {
			st.SimulatedObjects[p.ObjID] = *p.Object
		}
		return "", nil
	},
	event.SimulatedObjectMoved:     objectMoved,
	event.SimulatedObjectMovedZone: objectMoved,
	event.SimulatedObjectRemoved: func(st *State, env event.Envelope) (string, error) {
		var p event.SimObjectResult
		if err := env.Bind(&p); err != nil {
			return "", err
		}
		if !p.Success {
			return "", nil
		}
		delete(st.SimulatedObjects, p.ObjID)
		return "Simulated object removed", nil
	},
	event.ConfigUpdated: func(st *State, env event.Envelope) (string, error) {
		var p event.ConfigUpdatedPayload
		if err := env.Bind(&p); err != nil {
			return "", err
		}
		if !p.Success {
			return fmt.Sprintf("Invalid %s configuration", p.Type), nil
		}
		if err := mergeGroup(&st.Config, p.Type, p.Config); err != nil {
			return "", err
		}
		return "Configuration updated successfully", nil
	},
	event.ConfigApplied: configResult("Configuration applied", "Failed to apply configuration"),
	event.ConfigLoaded:  configResult("Configuration loaded", "Failed to load configuration"),
	event.ConfigReset:   configResult("Configuration reset to defaults", "Failed to reset configuration"),
	event.ConfigSaved:   configResult("Configuration saved", "Failed to save configuration"),
	event.CameraStatus: func(st *State, env event.Envelope) (string, error) {
		return "", env.Bind(&st.Camera)
	},
	event.YoloStatus: func(st *State, env event.Envelope) (string, error) {
		return "", env.Bind(&st.Detector)
	},
	event.CommandError: func(st *State, env event.Envelope) (string, error) {
		var p event.CommandErrorPayload
		if err := env.Bind(&p); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s: %s", p.Event, p.Message), nil
	},
}

func nonNilCart(c model.Cart) model.Cart {
	if c == nil {
		return make(model.Cart)
	}
	return c
}

func productSet(note string) mirrorHandler {
	return func(st *State, env event.Envelope) (string, error) {
		var p event.ProductPayload
		if err := env.Bind(&p); err != nil {
			return "", err
		}
		if p.Price != nil {
			st.Products[p.Name] = *p.Price
		}
		return fmt.Sprintf(note, p.Name), nil
	}
}

func objectMoved(st *State, env event.Envelope) (string, error) {
	var p event.SimObjectMovedPayload
	if err := env.Bind(&p); err != nil {
		return "", err
	}
	if !p.Success {
		return "", nil
	}
	if o, ok := st.SimulatedObjects[p.ObjID]; ok {
		o.X, o.Y = p.X, p.Y
		st.SimulatedObjects[p.ObjID] = o
	}
	return "", nil
}

func configResult(ok, failed string) mirrorHandler {
	return func(st *State, env event.Envelope) (string, error) {
		var p event.ConfigResultPayload
		if err := env.Bind(&p); err != nil {
			return "", err
		}
		if !p.Success {
			return failed, nil
		}
		if p.Config != nil {
			st.Config = *p.Config
		}
		if p.Preset != "" {
			return fmt.Sprintf("%s: %s preset", ok, p.Preset), nil
		}
		return ok, nil
	}
}

// mergeGroup decodes delta over one group of cfg so absent fields keep
// their values.
func mergeGroup(cfg *model.AppConfig, group string, delta json.RawMessage) error {
	if len(delta) == 0 {
		return nil
	}
	var target any
	switch group {
	case model.GroupDetection:
		target = &cfg.Detection
	case model.GroupVisual:
		target = &cfg.Visual
	case model.GroupAdvanced:
		target = &cfg.Advanced
	default:
		return fmt.Errorf("unknown config group %q", group)
	}
	if err := json.Unmarshal(delta, target); err != nil {
		return fmt.Errorf("merge %s config: %w", group, err)
	}
	return nil
}
