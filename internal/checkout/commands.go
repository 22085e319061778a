package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/fairyhunter13/self-checkout-simulator/internal/catalog"
	"github.com/fairyhunter13/self-checkout-simulator/internal/detect"
	"github.com/fairyhunter13/self-checkout-simulator/internal/event"
	"github.com/fairyhunter13/self-checkout-simulator/internal/ledger"
	"github.com/fairyhunter13/self-checkout-simulator/internal/model"
	"github.com/fairyhunter13/self-checkout-simulator/internal/obs"
)

// Defaults applied when a command omits a field.
const (
	DefaultZoneStart = 70
	DefaultZoneWidth = 20
	DefaultMoveStep  = 10
	DefaultSpeed     = 5
	DefaultSimLabel  = "person"
	DefaultSimPos    = 100
	DefaultSimSize   = 100
	// ZoneDropY is where preset_move_to_zone places an object vertically.
	ZoneDropY = 150
)

// ErrThrottled is returned when a session asks for history too often.
var ErrThrottled = errors.New("checkout: history request throttled")

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StartScanning sets the zone, empties the cart and forgets tracked
// objects before scanning starts.
func (e *Engine) StartScanning(zoneStart, zoneWidth int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.settings.SetZone(zoneStart, zoneWidth); err != nil {
		return err
	}
	clear(e.cart)
	e.tracker.Reset()
	e.lastDets = nil
	e.scanning = true
	obs.Logger.Info("scanning_started", "zone_start", zoneStart, "zone_width", zoneWidth)
	e.emit(event.CartUpdate, e.cartPayloadLocked())
	return nil
}

// StopScanning ends scanning and announces the final cart.
func (e *Engine) StopScanning() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scanning = false
	obs.Logger.Info("scanning_stopped", "cart_lines", len(e.cart))
	e.emit(event.ScanningComplete, e.cartPayloadLocked())
}

// UpdateZone moves the counting zone without touching the cart.
func (e *Engine) UpdateZone(zoneStart, zoneWidth int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.settings.SetZone(zoneStart, zoneWidth); err != nil {
		return err
	}
	obs.Logger.Info("zone_updated", "zone_start", zoneStart, "zone_width", zoneWidth)
	return nil
}

// ClearCart empties the cart and the zone state.
func (e *Engine) ClearCart() {
	e.mu.Lock()
	defer e.mu.Unlock()
	clear(e.cart)
	e.tracker.Reset()
	e.lastDets = nil
	e.emit(event.CartUpdate, e.cartPayloadLocked())
}

// RemoveItem takes one unit of name out of the cart.
func (e *Engine) RemoveItem(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := catalog.Normalize(name)
	line, ok := e.cart[key]
	if !ok {
		e.emit(event.ItemRemoved, event.ItemRemovedPayload{Success: false, Name: name})
		return false
	}
	if line.Quantity > 1 {
		line.Quantity--
		e.cart[key] = line
	} else {
		delete(e.cart, key)
	}
	e.emit(event.CartUpdate, e.cartPayloadLocked())
	e.emit(event.ItemRemoved, event.ItemRemovedPayload{Success: true, Name: name})
	return true
}

// CheckoutComplete records a non-empty cart in the ledger, when connected,
// and empties the cart. The returned transaction is nil when nothing was
// saved.
func (e *Engine) CheckoutComplete(ctx context.Context) (*model.Transaction, error) {
	e.mu.Lock()
	cart, total := e.cart.Clone(), e.cart.Total()
	clear(e.cart)
	e.tracker.Reset()
	e.lastDets = nil
	e.emit(event.CartUpdate, e.cartPayloadLocked())
	e.mu.Unlock()

	if len(cart) == 0 || !e.ledger.Connected() {
		obs.Logger.Info("checkout_completed", "saved", false, "cart_lines", len(cart))
		return nil, nil
	}
	tx, err := e.ledger.Save(ctx, cart, total)
	if err != nil {
		obs.Logger.Error("transaction_save_failed", "error", err.Error())
		return nil, fmt.Errorf("save transaction: %w", err)
	}
	obs.Logger.Info("checkout_completed", "saved", true, "transaction_id", tx.ID, "total", tx.Total)
	return &tx, nil
}

// Products broadcasts the catalog.
func (e *Engine) Products() {
	e.emit(event.ProductsList, e.catalog.All())
}

// AddProduct creates or overwrites a product.
func (e *Engine) AddProduct(name string, price float64) error {
	p, err := e.catalog.Add(name, price)
	if err != nil {
		return err
	}
	e.emit(event.ProductAdded, event.ProductPayload{Name: p.Name, Price: &p.Price})
	return nil
}

// UpdateProduct changes a price. Unknown products are ignored.
func (e *Engine) UpdateProduct(name string, price float64) error {
	p, err := e.catalog.Update(name, price)
	if errors.Is(err, catalog.ErrNotFound) {
		obs.Logger.Info("product_update_ignored", "name", name)
		return nil
	}
	if err != nil {
		return err
	}
	e.emit(event.ProductUpdated, event.ProductPayload{Name: p.Name, Price: &p.Price})
	return nil
}

// DeleteProduct removes a product. Unknown products are ignored.
func (e *Engine) DeleteProduct(name string) error {
	n, err := e.catalog.Delete(name)
	if errors.Is(err, catalog.ErrNotFound) {
		obs.Logger.Info("product_delete_ignored", "name", name)
		return nil
	}
	if err != nil {
		return err
	}
	e.emit(event.ProductDeleted, event.ProductPayload{Name: n})
	return nil
}

func (e *Engine) throttle(sessionID string) bool {
	if e.opts.HistoryThrottle <= 0 {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	if last, ok := e.historyAt[sessionID]; ok && now.Sub(last) < e.opts.HistoryThrottle {
		return true
	}
	e.historyAt[sessionID] = now
	return false
}

func (e *Engine) emitHistory(txs []model.Transaction) {
	if txs == nil {
		txs = []model.Transaction{}
	}
	e.emit(event.TransactionHistory, txs)
}

// TransactionHistory broadcasts the newest transactions. Requests from the
// same session closer together than the throttle window return
// ErrThrottled and emit nothing.
func (e *Engine) TransactionHistory(ctx context.Context, sessionID string, limit int) error {
	if e.throttle(sessionID) {
		obs.Logger.Debug("transaction_history_throttled", "session_id", sessionID)
		return ErrThrottled
	}
	if !e.ledger.Connected() {
		e.emitHistory(nil)
		return nil
	}
	if limit <= 0 {
		limit = ledger.DefaultLimit
	}
	txs, err := e.ledger.List(ctx, limit)
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}
	e.emitHistory(txs)
	return nil
}

// TransactionsByDate broadcasts transactions between two YYYY-MM-DD days,
// both inclusive. A missing bound falls back to the newest transactions.
func (e *Engine) TransactionsByDate(ctx context.Context, start, end string) error {
	if !e.ledger.Connected() {
		e.emitHistory(nil)
		return nil
	}
	if start == "" || end == "" {
		txs, err := e.ledger.List(ctx, ledger.DefaultLimit)
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		e.emitHistory(txs)
		return nil
	}
	from, to, err := ledger.ParseRange(start, end)
	if err != nil {
		return err
	}
	txs, err := e.ledger.ListRange(ctx, from, to)
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}
	e.emitHistory(txs)
	return nil
}

// DeleteTransaction removes one transaction and reports the outcome.
func (e *Engine) DeleteTransaction(ctx context.Context, id string) bool {
	fail := func(msg string) bool {
		e.emit(event.TransactionDeleted, event.TransactionDeletedPayload{Success: false, Message: msg})
		return false
	}
	if !e.ledger.Connected() {
		return fail("ledger not connected")
	}
	if id == "" {
		return fail("no transaction id provided")
	}
	if err := e.ledger.Delete(ctx, id); err != nil {
		obs.Logger.Warn("transaction_delete_failed", "transaction_id", id, "error", err.Error())
		return fail("failed to delete transaction")
	}
	obs.Logger.Info("transaction_deleted", "transaction_id", id)
	e.emit(event.TransactionDeleted, event.TransactionDeletedPayload{Success: true, ID: id})
	return true
}

// ToggleSimulation switches simulation mode. Turning it off removes every
// simulated object.
func (e *Engine) ToggleSimulation(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.simulation = enabled
	msg := "Simulation mode enabled"
	if !enabled {
		e.sim.Clear()
		e.tracker.Reset()
		msg = "Real detection mode enabled"
	}
	obs.Logger.Info("simulation_toggled", "enabled", enabled)
	e.emit(event.SimulationToggled, event.SimulationToggledPayload{Enabled: enabled, Message: msg})
}

// AddSimulatedObject creates an object; nil fields take the defaults.
func (e *Engine) AddSimulatedObject(req event.SimObjectRequest) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	label := req.Label
	if label == "" {
		label = DefaultSimLabel
	}
	id, o := e.sim.Add(label, orDefault(req.X, DefaultSimPos), orDefault(req.Y, DefaultSimPos),
		orDefault(req.Width, DefaultSimSize), orDefault(req.Height, DefaultSimSize))
	e.emit(event.SimulatedObjectAdded, event.SimObjectAddedPayload{
		Success: true, ObjID: id, Label: o.Label, X: o.X, Y: o.Y, Width: o.Width, Height: o.Height,
	})
	return id
}

func orDefault(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// UpdateSimulatedObject patches an object.
func (e *Engine) UpdateSimulatedObject(req event.SimObjectPatch) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, err := e.sim.Update(req.ObjID, detect.Patch{
		Label: req.Label, X: req.X, Y: req.Y, Width: req.Width, Height: req.Height,
	})
	res := event.SimObjectResult{Success: err == nil, ObjID: req.ObjID}
	if err == nil {
		res.Object = &o
	}
	e.emit(event.SimulatedObjectUpdated, res)
	return err == nil
}

// RemoveSimulatedObject deletes an object and its zone state.
func (e *Engine) RemoveSimulatedObject(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ok := e.sim.Remove(id)
	if ok {
		e.tracker.Forget(id)
	}
	e.emit(event.SimulatedObjectRemoved, event.SimObjectResult{Success: ok, ObjID: id})
	return ok
}

// SimulatedObjects broadcasts every simulated object.
func (e *Engine) SimulatedObjects() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emit(event.SimulatedObjectsList, e.sim.Objects())
}

// MoveSimulatedObject nudges an object. A zero step uses DefaultMoveStep.
func (e *Engine) MoveSimulatedObject(id, direction string, step int) error {
	if step == 0 {
		step = DefaultMoveStep
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	o, err := e.sim.Move(id, direction, step)
	switch {
	case errors.Is(err, detect.ErrNoObject):
		e.emit(event.SimulatedObjectMoved, event.SimObjectMovedPayload{Success: false, ObjID: id})
		return nil
	case err != nil:
		return err
	}
	e.emit(event.SimulatedObjectMoved, event.SimObjectMovedPayload{Success: true, ObjID: id, X: o.X, Y: o.Y})
	return nil
}

// MoveToZone centres an object on the counting zone.
func (e *Engine) MoveToZone(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	start, width := e.settings.Zone()
	x := detect.ZoneFor(e.opts.FrameWidth, start, width).Center() - DefaultSimSize/2
	y := ZoneDropY
	_, err := e.sim.Update(id, detect.Patch{X: &x, Y: &y})
	e.emit(event.SimulatedObjectMovedZone, event.SimObjectMovedPayload{Success: err == nil, ObjID: id, X: x, Y: y})
	return err == nil
}

// SimulateConveyor starts moving an object right on every tick.
func (e *Engine) SimulateConveyor(id string, speed int) error {
	if speed == 0 {
		speed = DefaultSpeed
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.sim.StartConveyor(id, speed); err != nil {
		return fmt.Errorf("%w: %s", err, id)
	}
	e.emit(event.ConveyorSimulationStarted, event.ConveyorPayload{ObjID: id, Speed: speed})
	return nil
}

// UpdateConfig merges a delta into one config group. Validation failures
// are reported with success=false and leave the config unchanged.
func (e *Engine) UpdateConfig(group string, delta json.RawMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.settings.ApplyGroup(group, delta)
	if errors.Is(err, detect.ErrUnknownGroup) {
		return err
	}
	if err != nil {
		obs.Logger.Warn("config_update_rejected", "group", group, "error", err.Error())
	}
	e.emit(event.ConfigUpdated, event.ConfigUpdatedPayload{Success: err == nil, Type: group, Config: delta})
	return nil
}

// ApplyPreset overlays a named preset.
func (e *Engine) ApplyPreset(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg, err := e.settings.ApplyPreset(name)
	res := event.ConfigResultPayload{Success: err == nil, Preset: name}
	if err == nil {
		res.Config = &cfg
	}
	e.emit(event.ConfigApplied, res)
}

func groupsOf(req event.FullConfigRequest) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, 3)
	if len(req.Detection) > 0 {
		out[model.GroupDetection] = req.Detection
	}
	if len(req.Visual) > 0 {
		out[model.GroupVisual] = req.Visual
	}
	if len(req.Advanced) > 0 {
		out[model.GroupAdvanced] = req.Advanced
	}
	return out
}

// ApplyFullConfig merges deltas for several groups at once.
func (e *Engine) ApplyFullConfig(req event.FullConfigRequest) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg, err := e.settings.ApplyFull(groupsOf(req))
	if err != nil {
		obs.Logger.Warn("config_apply_rejected", "error", err.Error())
		e.emit(event.ConfigApplied, event.ConfigResultPayload{Success: false})
		return
	}
	e.emit(event.ConfigApplied, event.ConfigResultPayload{Success: true, Config: &cfg})
}

// SaveConfig persists the working config, or the working config merged
// with req when given. The working config itself is not changed by req.
func (e *Engine) SaveConfig(req *event.FullConfigRequest) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if req == nil {
		err = e.settings.Save(nil)
	} else {
		var cfg model.AppConfig
		if cfg, err = e.settings.Merge(groupsOf(*req)); err == nil {
			err = e.settings.Save(&cfg)
		}
	}
	if err != nil {
		obs.Logger.Warn("config_save_failed", "error", err.Error())
	}
	e.emit(event.ConfigSaved, event.ConfigResultPayload{Success: err == nil})
}

// LoadConfig merges the saved config file into the working config.
func (e *Engine) LoadConfig() {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg, err := e.settings.Load()
	if err != nil {
		if !errors.Is(err, detect.ErrNoSavedConfig) {
			obs.Logger.Warn("config_load_failed", "error", err.Error())
		}
		e.emit(event.ConfigLoaded, event.ConfigResultPayload{Success: false})
		return
	}
	e.emit(event.ConfigLoaded, event.ConfigResultPayload{Success: true, Config: &cfg})
}

// ResetConfig restores and saves the factory config.
func (e *Engine) ResetConfig() {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg, err := e.settings.Reset()
	if err != nil {
		obs.Logger.Warn("config_reset_save_failed", "error", err.Error())
	}
	e.emit(event.ConfigReset, event.ConfigResultPayload{Success: err == nil, Config: &cfg})
}

func (e *Engine) cameraAvailableLocked() bool {
	return !e.lastCamera.IsZero() && e.now().Sub(e.lastCamera) <= e.opts.CameraStaleAfter
}

func (e *Engine) cameraStatusLocked() event.CameraStatusPayload {
	st := event.CameraStatusPayload{Enabled: e.cameraEnabled}
	if !e.cameraEnabled {
		return st
	}
	st.Available = e.cameraAvailableLocked()
	if !st.Available {
		st.Message = "camera feed not available"
	}
	return st
}

func (e *Engine) detectorStatusLocked() event.YoloStatusPayload {
	return event.YoloStatusPayload{Initialized: e.detectorSeen}
}

// ToggleCamera switches the camera feed on or off.
func (e *Engine) ToggleCamera(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cameraEnabled = enabled
	obs.Logger.Info("camera_toggled", "enabled", enabled)
	e.emit(event.CameraStatus, e.cameraStatusLocked())
}

// InitializeDetector reports whether the external detector has delivered
// detections yet.
func (e *Engine) InitializeDetector() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emit(event.YoloStatus, e.detectorStatusLocked())
}
