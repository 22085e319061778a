package checkout

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/self-checkout-simulator/internal/catalog"
	"github.com/fairyhunter13/self-checkout-simulator/internal/detect"
	"github.com/fairyhunter13/self-checkout-simulator/internal/event"
	"github.com/fairyhunter13/self-checkout-simulator/internal/feed"
	"github.com/fairyhunter13/self-checkout-simulator/internal/ledger"
	"github.com/fairyhunter13/self-checkout-simulator/internal/model"
)

type recorder struct {
	mu   sync.Mutex
	msgs []event.Message
}

func (r *recorder) Broadcast(m event.Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Name
	}
	return out
}

func (r *recorder) last(name string) (event.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if r.msgs[i].Name == name {
			return r.msgs[i], true
		}
	}
	return event.Message{}, false
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.msgs = nil
	r.mu.Unlock()
}

func setupEngine(t *testing.T, led ledger.Ledger) (*Engine, *recorder) {
	t.Helper()
	cat := catalog.New()
	require.NoError(t, cat.Seed([]model.Product{
		{Name: "mouse", Price: 300},
		{Name: "laptop", Price: 10000},
	}))
	settings := detect.NewSettings(filepath.Join(t.TempDir(), "detection_config.json"))
	e := New(DefaultOptions(), cat, led, settings)
	rec := &recorder{}
	e.Attach(rec)
	return e, rec
}

func cmd(t *testing.T, name string, data any) event.Envelope {
	t.Helper()
	frame, err := event.Encode(name, data)
	require.NoError(t, err)
	env, err := event.Decode(frame)
	require.NoError(t, err)
	return env
}

func TestStartScanningDefaultsAndClearsCart(t *testing.T) {
	e, rec := setupEngine(t, nil)
	e.cart["mouse"] = model.CartItem{Price: 300, Quantity: 2}

	replies := e.Handle(context.Background(), "s1", cmd(t, event.StartScanning, map[string]any{}))
	assert.Empty(t, replies)
	cart, total := e.Cart()
	assert.Empty(t, cart)
	assert.Zero(t, total)
	assert.True(t, e.Status().Scanning)
	start, width := e.zone()
	assert.Equal(t, 70, start)
	assert.Equal(t, 20, width)
	assert.Equal(t, []string{event.CartUpdate}, rec.names())
}

func TestStartScanningRejectsBadZone(t *testing.T) {
	e, _ := setupEngine(t, nil)
	replies := e.Handle(context.Background(), "s1", cmd(t, event.StartScanning, map[string]any{"zoneStart": 150}))
	require.Len(t, replies, 1)
	assert.Equal(t, event.CommandError, replies[0].Name)
	assert.False(t, e.Status().Scanning)
}

func TestUnknownCommandAndBadPayload(t *testing.T) {
	e, rec := setupEngine(t, nil)
	replies := e.Handle(context.Background(), "s1", cmd(t, "fly_away", nil))
	require.Len(t, replies, 1)
	p := replies[0].Data.(event.CommandErrorPayload)
	assert.Equal(t, "fly_away", p.Event)

	replies = e.Handle(context.Background(), "s1", cmd(t, event.RemoveItem, map[string]any{"name": 12}))
	require.Len(t, replies, 1)
	assert.Equal(t, event.CommandError, replies[0].Name)
	assert.Empty(t, rec.names())
}

func TestRemoveItemDecrementsThenDeletes(t *testing.T) {
	e, rec := setupEngine(t, nil)
	e.cart["mouse"] = model.CartItem{Price: 300, Quantity: 2}

	assert.True(t, e.RemoveItem("Mouse"))
	cart, total := e.Cart()
	assert.Equal(t, 1, cart["mouse"].Quantity)
	assert.Equal(t, 300.0, total)

	assert.True(t, e.RemoveItem("mouse"))
	cart, _ = e.Cart()
	assert.NotContains(t, cart, "mouse")

	assert.False(t, e.RemoveItem("mouse"))
	m, ok := rec.last(event.ItemRemoved)
	require.True(t, ok)
	assert.False(t, m.Data.(event.ItemRemovedPayload).Success)
	assert.Equal(t, []string{
		event.CartUpdate, event.ItemRemoved,
		event.CartUpdate, event.ItemRemoved,
		event.ItemRemoved,
	}, rec.names())
}

func TestCheckoutCompleteSavesNonEmptyCart(t *testing.T) {
	led := ledger.NewMemory()
	e, rec := setupEngine(t, led)
	ctx := context.Background()

	tx, err := e.CheckoutComplete(ctx)
	require.NoError(t, err)
	assert.Nil(t, tx, "empty cart is not saved")

	e.cart["laptop"] = model.CartItem{Price: 10000, Quantity: 1}
	e.cart["mouse"] = model.CartItem{Price: 300, Quantity: 2}
	tx, err = e.CheckoutComplete(ctx)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, 10600.0, tx.Total)

	cart, _ := e.Cart()
	assert.Empty(t, cart)
	m, _ := rec.last(event.CartUpdate)
	assert.Empty(t, m.Data.(event.CartPayload).Cart)

	list, err := led.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCheckoutCompleteDisconnectedLedgerStillClears(t *testing.T) {
	e, _ := setupEngine(t, nil)
	e.cart["mouse"] = model.CartItem{Price: 300, Quantity: 1}
	tx, err := e.CheckoutComplete(context.Background())
	require.NoError(t, err)
	assert.Nil(t, tx)
	cart, _ := e.Cart()
	assert.Empty(t, cart)
}

func TestProductCommands(t *testing.T) {
	e, rec := setupEngine(t, nil)
	ctx := context.Background()

	assert.Empty(t, e.Handle(ctx, "s", cmd(t, event.AddProduct, event.ProductRequest{Name: "Keyboard", Price: 500})))
	m, ok := rec.last(event.ProductAdded)
	require.True(t, ok)
	p := m.Data.(event.ProductPayload)
	assert.Equal(t, "keyboard", p.Name)
	assert.Equal(t, 500.0, *p.Price)

	replies := e.Handle(ctx, "s", cmd(t, event.AddProduct, event.ProductRequest{Name: "pen", Price: -1}))
	require.Len(t, replies, 1)

	rec.reset()
	assert.Empty(t, e.Handle(ctx, "s", cmd(t, event.UpdateProduct, event.ProductRequest{Name: "ghost", Price: 1})))
	assert.Empty(t, rec.names(), "missing product emits nothing")

	assert.Empty(t, e.Handle(ctx, "s", cmd(t, event.DeleteProduct, event.NameRequest{Name: "keyboard"})))
	assert.Equal(t, []string{event.ProductDeleted}, rec.names())

	e.Handle(ctx, "s", cmd(t, event.GetProducts, nil))
	m, _ = rec.last(event.ProductsList)
	assert.Equal(t, model.Catalog{"mouse": 300, "laptop": 10000}, m.Data)
}

func TestTransactionHistoryThrottledPerSession(t *testing.T) {
	led := ledger.NewMemory()
	e, rec := setupEngine(t, led)
	now := time.Unix(5000, 0)
	e.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, e.TransactionHistory(ctx, "a", 0))
	assert.ErrorIs(t, e.TransactionHistory(ctx, "a", 0), ErrThrottled)
	require.NoError(t, e.TransactionHistory(ctx, "b", 0), "other sessions are not throttled")

	now = now.Add(2 * time.Second)
	require.NoError(t, e.TransactionHistory(ctx, "a", 0))
	assert.Len(t, rec.names(), 3)

	m, _ := rec.last(event.TransactionHistory)
	assert.NotNil(t, m.Data)
	assert.Empty(t, m.Data)

	// the throttled request through Handle is silent
	rec.reset()
	assert.Empty(t, e.Handle(ctx, "a", cmd(t, event.GetTransactionHistory, nil)))
	assert.Empty(t, rec.names())
}

func TestTransactionsByDateAndDelete(t *testing.T) {
	led := ledger.NewMemory()
	e, rec := setupEngine(t, led)
	ctx := context.Background()
	tx, err := led.Save(ctx, model.Cart{"mouse": {Price: 300, Quantity: 1}}, 300)
	require.NoError(t, err)

	day := time.Now().UTC().Format(ledger.DateLayout)
	require.NoError(t, e.TransactionsByDate(ctx, day, day))
	m, _ := rec.last(event.TransactionHistory)
	assert.Len(t, m.Data, 1)

	replies := e.Handle(ctx, "s", cmd(t, event.GetTransactionsByDate, event.DateRangeRequest{StartDate: "yesterday", EndDate: day}))
	require.Len(t, replies, 1)

	assert.False(t, e.DeleteTransaction(ctx, ""))
	assert.False(t, e.DeleteTransaction(ctx, "nope"))
	assert.True(t, e.DeleteTransaction(ctx, tx.ID))
	m, _ = rec.last(event.TransactionDeleted)
	assert.Equal(t, event.TransactionDeletedPayload{Success: true, ID: tx.ID}, m.Data)
}

func TestDeleteTransactionDisconnected(t *testing.T) {
	e, rec := setupEngine(t, nil)
	assert.False(t, e.DeleteTransaction(context.Background(), "x"))
	m, _ := rec.last(event.TransactionDeleted)
	assert.Equal(t, "ledger not connected", m.Data.(event.TransactionDeletedPayload).Message)
}

func TestSimulationObjectsLifecycle(t *testing.T) {
	e, rec := setupEngine(t, nil)
	ctx := context.Background()

	e.Handle(ctx, "s", cmd(t, event.ToggleSimulation, event.ToggleRequest{Enabled: true}))
	e.Handle(ctx, "s", cmd(t, event.AddSimulatedObject, map[string]any{"label": "Laptop"}))
	m, _ := rec.last(event.SimulatedObjectAdded)
	added := m.Data.(event.SimObjectAddedPayload)
	assert.Equal(t, event.SimObjectAddedPayload{Success: true, ObjID: "sim_1", Label: "laptop", X: 100, Y: 100, Width: 100, Height: 100}, added)

	e.Handle(ctx, "s", cmd(t, event.MoveSimulatedObject, event.MoveRequest{ObjID: "sim_1", Direction: "right"}))
	m, _ = rec.last(event.SimulatedObjectMoved)
	assert.Equal(t, 110, m.Data.(event.SimObjectMovedPayload).X, "default step is 10")

	e.Handle(ctx, "s", cmd(t, event.MoveSimulatedObject, event.MoveRequest{ObjID: "sim_9", Direction: "left"}))
	m, _ = rec.last(event.SimulatedObjectMoved)
	assert.False(t, m.Data.(event.SimObjectMovedPayload).Success)

	replies := e.Handle(ctx, "s", cmd(t, event.MoveSimulatedObject, event.MoveRequest{ObjID: "sim_1", Direction: "diagonal"}))
	assert.Len(t, replies, 1)

	e.Handle(ctx, "s", cmd(t, event.PresetMoveToZone, event.ObjRequest{ObjID: "sim_1"}))
	m, _ = rec.last(event.SimulatedObjectMovedZone)
	assert.Equal(t, event.SimObjectMovedPayload{Success: true, ObjID: "sim_1", X: 462, Y: 150}, m.Data)

	e.Handle(ctx, "s", cmd(t, event.GetSimulatedObjects, nil))
	m, _ = rec.last(event.SimulatedObjectsList)
	objs := m.Data.(map[string]model.SimulatedObject)
	assert.Equal(t, 462, objs["sim_1"].X)

	e.Handle(ctx, "s", cmd(t, event.ToggleSimulation, event.ToggleRequest{Enabled: false}))
	assert.Equal(t, 0, e.Status().SimulatedObjects)
	m, _ = rec.last(event.SimulationToggled)
	assert.Equal(t, "Real detection mode enabled", m.Data.(event.SimulationToggledPayload).Message)
}

func TestTickCountsSimulatedObjectInZone(t *testing.T) {
	e, rec := setupEngine(t, nil)
	require.NoError(t, e.StartScanning(70, 20))
	e.ToggleSimulation(true)
	id := e.AddSimulatedObject(event.SimObjectRequest{Label: "mouse"})
	assert.True(t, e.MoveToZone(id))

	rec.reset()
	e.Tick()
	cart, total := e.Cart()
	assert.Equal(t, 1, cart["mouse"].Quantity)
	assert.Equal(t, 300.0, total)
	assert.Equal(t, []string{event.CartUpdate}, rec.names())

	rec.reset()
	e.Tick()
	assert.Empty(t, rec.names(), "unchanged cart is not rebroadcast")
}

func TestTickConveyorMovesAndRemoves(t *testing.T) {
	e, rec := setupEngine(t, nil)
	e.ToggleSimulation(true)
	x := 620
	id := e.AddSimulatedObject(event.SimObjectRequest{Label: "mouse", X: &x})
	require.NoError(t, e.SimulateConveyor(id, 0))
	m, _ := rec.last(event.ConveyorSimulationStarted)
	assert.Equal(t, event.ConveyorPayload{ObjID: id, Speed: 5}, m.Data)

	e.Tick()
	m, _ = rec.last(event.SimulatedObjectMoved)
	assert.Equal(t, 625, m.Data.(event.SimObjectMovedPayload).X)

	for i := 0; i < 4; i++ {
		e.Tick()
	}
	m, ok := rec.last(event.SimulatedObjectRemoved)
	require.True(t, ok)
	assert.Equal(t, id, m.Data.(event.SimObjectResult).ObjID)
	assert.Equal(t, 0, e.Status().SimulatedObjects)

	assert.Error(t, e.SimulateConveyor("sim_404", 3))
}

func TestApplyDetectionsCountsAndDropsStale(t *testing.T) {
	e, rec := setupEngine(t, nil)
	require.NoError(t, e.StartScanning(70, 20))
	rec.reset()

	inZone := model.DetectionBatch{
		FrameWidth: 640, FrameHeight: 480, Sequence: 2,
		Detections: []model.Detection{{Label: "mouse", Confidence: 0.9, Box: [4]int{460, 100, 520, 160}}},
	}
	e.ApplyDetections(inZone)
	assert.Equal(t, []string{event.YoloStatus, event.CartUpdate}, rec.names())

	stale := inZone
	stale.Sequence = 1
	stale.Detections = []model.Detection{{Label: "laptop", Confidence: 0.9, Box: [4]int{460, 200, 520, 260}}}
	e.ApplyDetections(stale)

	cart, _ := e.Cart()
	assert.Equal(t, model.Cart{"mouse": {Price: 300, Quantity: 1}}, cart)
	st := e.Status()
	assert.Equal(t, uint64(2), st.LastBatchSeq)
	assert.True(t, st.DetectorReady)
}

func TestApplyDetectionsIgnoredWhenNotScanning(t *testing.T) {
	e, _ := setupEngine(t, nil)
	e.ApplyDetections(model.DetectionBatch{
		Sequence:   1,
		Detections: []model.Detection{{Label: "mouse", Confidence: 0.9, Box: [4]int{460, 100, 520, 160}}},
	})
	cart, _ := e.Cart()
	assert.Empty(t, cart)
}

func TestConfigCommands(t *testing.T) {
	e, rec := setupEngine(t, nil)
	ctx := context.Background()

	e.Handle(ctx, "s", cmd(t, event.UpdateDetectionConfig, map[string]any{"threshold": 0.9}))
	m, _ := rec.last(event.ConfigUpdated)
	up := m.Data.(event.ConfigUpdatedPayload)
	assert.True(t, up.Success)
	assert.Equal(t, "detection", up.Type)
	assert.JSONEq(t, `{"threshold":0.9}`, string(up.Config))
	assert.Equal(t, 0.9, e.Config().Detection.Threshold)

	e.Handle(ctx, "s", cmd(t, event.UpdateVisualConfig, map[string]any{"zoneOpacity": 4}))
	m, _ = rec.last(event.ConfigUpdated)
	assert.False(t, m.Data.(event.ConfigUpdatedPayload).Success)

	e.Handle(ctx, "s", event.Envelope{Event: event.ApplyPresetConfig, Data: json.RawMessage(`"debug"`)})
	m, _ = rec.last(event.ConfigApplied)
	applied := m.Data.(event.ConfigResultPayload)
	assert.True(t, applied.Success)
	assert.Equal(t, "debug", applied.Preset)
	require.NotNil(t, applied.Config)
	assert.False(t, applied.Config.Detection.AutoCount)
	assert.False(t, e.Config().Detection.AutoCount)

	e.Handle(ctx, "s", cmd(t, event.ApplyPresetConfig, map[string]string{"preset": "nope"}))
	m, _ = rec.last(event.ConfigApplied)
	assert.False(t, m.Data.(event.ConfigResultPayload).Success)

	e.Handle(ctx, "s", cmd(t, event.LoadConfig, nil))
	m, _ = rec.last(event.ConfigLoaded)
	assert.False(t, m.Data.(event.ConfigResultPayload).Success, "nothing saved yet")

	e.Handle(ctx, "s", cmd(t, event.SaveConfig, map[string]any{"advanced": map[string]any{"frameRate": 10}}))
	m, _ = rec.last(event.ConfigSaved)
	assert.True(t, m.Data.(event.ConfigResultPayload).Success)
	assert.Equal(t, 30, e.Config().Advanced.FrameRate, "save does not change the working config")

	e.Handle(ctx, "s", cmd(t, event.LoadConfig, nil))
	m, _ = rec.last(event.ConfigLoaded)
	loaded := m.Data.(event.ConfigResultPayload)
	require.True(t, loaded.Success)
	assert.Equal(t, 10, loaded.Config.Advanced.FrameRate)
	assert.Equal(t, 100*time.Millisecond, e.Interval())

	e.Handle(ctx, "s", cmd(t, event.ResetConfig, nil))
	assert.Equal(t, model.DefaultAppConfig(), e.Config())

	e.Handle(ctx, "s", cmd(t, event.ApplyFullConfig, map[string]any{
		"detection": map[string]any{"zoneStart": 10},
		"visual":    map[string]any{"boxColor": "#0000ff"},
	}))
	m, _ = rec.last(event.ConfigApplied)
	full := m.Data.(event.ConfigResultPayload)
	require.True(t, full.Success)
	assert.Equal(t, 10, full.Config.Detection.ZoneStart)
	assert.Equal(t, "#0000ff", full.Config.Visual.BoxColor)
}

func TestCameraAndDetectorStatus(t *testing.T) {
	e, rec := setupEngine(t, nil)
	bus := feed.NewBus()
	e.AttachFeed(bus)
	now := time.Unix(100, 0)
	e.now = func() time.Time { return now }

	greet := e.Greeting()
	require.Len(t, greet, 2)
	assert.Equal(t, event.CameraStatusPayload{}, greet[0].Data)
	assert.Equal(t, event.YoloStatusPayload{}, greet[1].Data)

	e.ToggleCamera(true)
	m, _ := rec.last(event.CameraStatus)
	assert.Equal(t, event.CameraStatusPayload{Enabled: true, Message: "camera feed not available"}, m.Data)

	e.PostFrame([]byte{0xff, 0xd8})
	m, _ = rec.last(event.CameraStatus)
	assert.Equal(t, event.CameraStatusPayload{Enabled: true, Available: true}, m.Data)
	f, ok := bus.Latest()
	require.True(t, ok)
	assert.Equal(t, "camera", f.Source)

	now = now.Add(10 * time.Second)
	assert.False(t, e.Status().CameraAvailable)

	e.InitializeDetector()
	m, _ = rec.last(event.YoloStatus)
	assert.False(t, m.Data.(event.YoloStatusPayload).Initialized)
}

func TestTickRendersPlaceholderFrame(t *testing.T) {
	e, _ := setupEngine(t, nil)
	bus := feed.NewBus()
	e.AttachFeed(bus)
	e.Tick()
	f, ok := bus.Latest()
	require.True(t, ok)
	assert.Equal(t, "render", f.Source)
	assert.NotEmpty(t, f.Data)
}

func TestCommandsCoverEveryClientCommand(t *testing.T) {
	assert.Len(t, Commands(), 31)
	assert.Contains(t, Commands(), event.SimulateConveyor)
}
