package client

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/self-checkout-simulator/internal/event"
	"github.com/fairyhunter13/self-checkout-simulator/internal/model"
)

func env(t *testing.T, name string, data any) event.Envelope {
	t.Helper()
	frame, err := event.Encode(name, data)
	require.NoError(t, err)
	e, err := event.Decode(frame)
	require.NoError(t, err)
	return e
}

func apply(t *testing.T, m *Mirror, name string, data any) {
	t.Helper()
	require.NoError(t, m.Apply(env(t, name, data)))
}

func price(p float64) *float64 { return &p }

func TestMirrorCart(t *testing.T) {
	m := NewMirror(nil)
	m.setScanning(true)
	apply(t, m, event.CartUpdate, event.CartPayload{
		Cart:  model.Cart{"mouse": {Price: 300, Quantity: 2}},
		Total: 600,
	})
	st := m.Snapshot()
	assert.Equal(t, 2, st.Cart["mouse"].Quantity)
	assert.Equal(t, 600.0, st.Total)
	assert.True(t, st.Scanning)

	apply(t, m, event.ScanningComplete, event.CartPayload{Cart: model.Cart{}, Total: 0})
	st = m.Snapshot()
	assert.Empty(t, st.Cart)
	assert.False(t, st.Scanning)
}

func TestMirrorProducts(t *testing.T) {
	n := NewNotifier(time.Minute)
	defer n.Stop()
	m := NewMirror(n)

	apply(t, m, event.ProductAdded, event.ProductPayload{Name: "pen", Price: price(5)})
	msg, _ := n.Current()
	assert.Equal(t, "Product pen added successfully", msg)

	// a full list replaces partial updates
	apply(t, m, event.ProductsList, model.Catalog{"mouse": 300, "laptop": 10000})
	assert.Equal(t, model.Catalog{"mouse": 300, "laptop": 10000}, m.Snapshot().Products)

	apply(t, m, event.ProductUpdated, event.ProductPayload{Name: "mouse", Price: price(350)})
	apply(t, m, event.ProductDeleted, event.ProductPayload{Name: "laptop"})
	assert.Equal(t, model.Catalog{"mouse": 350}, m.Snapshot().Products)
	msg, _ = n.Current()
	assert.Equal(t, "Product laptop deleted successfully", msg)
}

func TestMirrorTransactions(t *testing.T) {
	n := NewNotifier(time.Minute)
	defer n.Stop()
	m := NewMirror(n)
	apply(t, m, event.TransactionHistory, []model.Transaction{
		{ID: "a", Total: 1, Items: []model.TransactionItem{{Name: "mouse", Quantity: 1}}},
		{ID: "b", Total: 2},
	})
	require.Len(t, m.Snapshot().Transactions, 2)

	apply(t, m, event.TransactionDeleted, event.TransactionDeletedPayload{Success: false, Message: "ledger not connected"})
	assert.Len(t, m.Snapshot().Transactions, 2)
	_, shown := n.Current()
	assert.False(t, shown, "failures are silent")

	apply(t, m, event.TransactionDeleted, event.TransactionDeletedPayload{Success: true, ID: "a"})
	txs := m.Snapshot().Transactions
	require.Len(t, txs, 1)
	assert.Equal(t, "b", txs[0].ID)
	msg, _ := n.Current()
	assert.Equal(t, "Transaction deleted successfully", msg)
}

func TestMirrorSimulatedObjects(t *testing.T) {
	m := NewMirror(nil)
	apply(t, m, event.SimulationToggled, event.SimulationToggledPayload{Enabled: true})
	apply(t, m, event.SimulatedObjectAdded, event.SimObjectAddedPayload{
		Success: true, ObjID: "sim_1", Label: "mouse", X: 100, Y: 100, Width: 100, Height: 100,
	})
	apply(t, m, event.SimulatedObjectAdded, event.SimObjectAddedPayload{Success: false, ObjID: "sim_x"})
	st := m.Snapshot()
	assert.True(t, st.Simulation)
	require.Len(t, st.SimulatedObjects, 1)

	apply(t, m, event.SimulatedObjectMoved, event.SimObjectMovedPayload{Success: true, ObjID: "sim_1", X: 115, Y: 100})
	apply(t, m, event.SimulatedObjectMovedZone, event.SimObjectMovedPayload{Success: false, ObjID: "sim_1", X: 1, Y: 1})
	assert.Equal(t, 115, m.Snapshot().SimulatedObjects["sim_1"].X)

	apply(t, m, event.SimulatedObjectMovedZone, event.SimObjectMovedPayload{Success: true, ObjID: "sim_1", X: 462, Y: 150})
	o := m.Snapshot().SimulatedObjects["sim_1"]
	assert.Equal(t, 462, o.X)
	assert.Equal(t, 150, o.Y)

	updated := model.SimulatedObject{Label: "laptop", X: 10, Y: 20, Width: 30, Height: 40}
	apply(t, m, event.SimulatedObjectUpdated, event.SimObjectResult{Success: true, ObjID: "sim_1", Object: &updated})
	assert.Equal(t, "laptop", m.Snapshot().SimulatedObjects["sim_1"].Label)

	apply(t, m, event.SimulatedObjectRemoved, event.SimObjectResult{Success: true, ObjID: "sim_1"})
	assert.Empty(t, m.Snapshot().SimulatedObjects)

	apply(t, m, event.SimulatedObjectsList, map[string]model.SimulatedObject{"sim_2": {Label: "pen"}})
	assert.Len(t, m.Snapshot().SimulatedObjects, 1)
	apply(t, m, event.SimulationToggled, event.SimulationToggledPayload{Enabled: false})
	st = m.Snapshot()
	assert.False(t, st.Simulation)
	assert.Empty(t, st.SimulatedObjects)
}

func TestMirrorConfig(t *testing.T) {
	n := NewNotifier(time.Minute)
	defer n.Stop()
	m := NewMirror(n)

	apply(t, m, event.ConfigUpdated, event.ConfigUpdatedPayload{
		Success: true, Type: model.GroupDetection, Config: json.RawMessage(`{"zoneStart":40}`),
	})
	cfg := m.Snapshot().Config
	assert.Equal(t, 40, cfg.Detection.ZoneStart)
	assert.Equal(t, 20, cfg.Detection.ZoneWidth, "absent fields keep their value")

	apply(t, m, event.ConfigUpdated, event.ConfigUpdatedPayload{
		Success: false, Type: model.GroupVisual, Config: json.RawMessage(`{"zoneOpacity":4}`),
	})
	assert.Equal(t, 0.2, m.Snapshot().Config.Visual.ZoneOpacity)
	msg, _ := n.Current()
	assert.Equal(t, "Invalid visual configuration", msg)

	reset := model.DefaultAppConfig()
	apply(t, m, event.ConfigReset, event.ConfigResultPayload{Success: true, Config: &reset})
	assert.Equal(t, reset, m.Snapshot().Config)

	apply(t, m, event.ConfigApplied, event.ConfigResultPayload{Success: false, Preset: "nope"})
	msg, _ = n.Current()
	assert.Equal(t, "Failed to apply configuration", msg)
}

func TestMirrorStatusAndErrors(t *testing.T) {
	n := NewNotifier(time.Minute)
	defer n.Stop()
	m := NewMirror(n)
	apply(t, m, event.CameraStatus, event.CameraStatusPayload{Enabled: true, Available: false, Message: "camera feed not available"})
	apply(t, m, event.YoloStatus, event.YoloStatusPayload{Initialized: true})
	st := m.Snapshot()
	assert.True(t, st.Camera.Enabled)
	assert.False(t, st.Camera.Available)
	assert.True(t, st.Detector.Initialized)

	apply(t, m, event.CommandError, event.CommandErrorPayload{Event: "add_product", Message: "bad price"})
	msg, _ := n.Current()
	assert.Equal(t, "add_product: bad price", msg)

	// unknown events are ignored
	require.NoError(t, m.Apply(event.Envelope{Event: "conveyor_simulation_started"}))
	assert.Error(t, m.Apply(event.Envelope{Event: event.CartUpdate, Data: json.RawMessage(`[1]`)}))
}

func TestMirrorOnChangeAndSnapshotCopy(t *testing.T) {
	m := NewMirror(nil)
	var seen []string
	m.OnChange(func(name string) { seen = append(seen, name) })
	apply(t, m, event.CartUpdate, event.CartPayload{Cart: model.Cart{"mouse": {Price: 1, Quantity: 1}}, Total: 1})
	apply(t, m, event.ProductsList, model.Catalog{"mouse": 1})
	require.NoError(t, m.Apply(event.Envelope{Event: event.ConveyorSimulationStarted}))
	assert.Equal(t, []string{event.CartUpdate, event.ProductsList, event.ConveyorSimulationStarted}, seen)

	st := m.Snapshot()
	st.Cart["mouse"] = model.CartItem{Quantity: 99}
	st.Products["other"] = 2
	again := m.Snapshot()
	assert.Equal(t, 1, again.Cart["mouse"].Quantity)
	assert.NotContains(t, again.Products, "other")
}
