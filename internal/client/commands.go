package client

import (
	"github.com/fairyhunter13/self-checkout-simulator/internal/event"
	"github.com/fairyhunter13/self-checkout-simulator/internal/model"
)

// DefaultMoveStep is the nudge distance the operator UI uses.
const DefaultMoveStep = 15

// StartScanning asks the hub to start counting. The local scanning flag is
// set right away rather than on a server event.
func (c *Client) StartScanning(req event.ScanRequest) error {
	c.mirror.setScanning(true)
	return c.Emit(event.StartScanning, req)
}

// StopScanning asks the hub to stop counting and clears the local flag.
func (c *Client) StopScanning() error {
	c.mirror.setScanning(false)
	return c.Emit(event.StopScanning, nil)
}

func (c *Client) UpdateZone(start, width int) error {
	return c.Emit(event.UpdateZone, event.ZoneRequest{ZoneStart: start, ZoneWidth: width})
}

func (c *Client) RemoveItem(name string) error {
	return c.Emit(event.RemoveItem, event.NameRequest{Name: name})
}

func (c *Client) ClearCart() error { return c.Emit(event.ClearCart, nil) }

func (c *Client) CheckoutComplete() error { return c.Emit(event.CheckoutComplete, nil) }

func (c *Client) GetProducts() error { return c.Emit(event.GetProducts, nil) }

func (c *Client) AddProduct(name string, price float64) error {
	return c.Emit(event.AddProduct, event.ProductRequest{Name: name, Price: price})
}

func (c *Client) UpdateProduct(name string, price float64) error {
	return c.Emit(event.UpdateProduct, event.ProductRequest{Name: name, Price: price})
}

func (c *Client) DeleteProduct(name string) error {
	return c.Emit(event.DeleteProduct, event.NameRequest{Name: name})
}

// GetTransactionHistory requests the newest transactions; limit 0 uses the
// hub's default.
func (c *Client) GetTransactionHistory(limit int) error {
	return c.Emit(event.GetTransactionHistory, event.HistoryRequest{Limit: limit})
}

// GetTransactionsByDate requests transactions between two YYYY-MM-DD dates.
func (c *Client) GetTransactionsByDate(start, end string) error {
	return c.Emit(event.GetTransactionsByDate, event.DateRangeRequest{StartDate: start, EndDate: end})
}

func (c *Client) DeleteTransaction(id string) error {
	return c.Emit(event.DeleteTransaction, event.IDRequest{ID: id})
}

func (c *Client) ToggleSimulation(enabled bool) error {
	return c.Emit(event.ToggleSimulation, event.ToggleRequest{Enabled: enabled})
}

func (c *Client) AddSimulatedObject(req event.SimObjectRequest) error {
	return c.Emit(event.AddSimulatedObject, req)
}

func (c *Client) UpdateSimulatedObject(p event.SimObjectPatch) error {
	return c.Emit(event.UpdateSimulatedObject, p)
}

func (c *Client) RemoveSimulatedObject(id string) error {
	return c.Emit(event.RemoveSimulatedObject, event.ObjRequest{ObjID: id})
}

func (c *Client) GetSimulatedObjects() error { return c.Emit(event.GetSimulatedObjects, nil) }

// MoveSimulatedObject nudges an object up, down, left or right. A step of 0
// uses DefaultMoveStep.
func (c *Client) MoveSimulatedObject(id, direction string, step int) error {
	if step == 0 {
		step = DefaultMoveStep
	}
	return c.Emit(event.MoveSimulatedObject, event.MoveRequest{ObjID: id, Direction: direction, Step: step})
}

func (c *Client) MoveToZone(id string) error {
	return c.Emit(event.PresetMoveToZone, event.ObjRequest{ObjID: id})
}

// SimulateConveyor starts moving an object across the frame; speed 0 uses
// the hub's default.
func (c *Client) SimulateConveyor(id string, speed int) error {
	return c.Emit(event.SimulateConveyor, event.ConveyorRequest{ObjID: id, Speed: speed})
}

// UpdateConfig pushes a delta for one group (detection, visual, advanced).
func (c *Client) UpdateConfig(group string, delta any) error {
	return c.Emit(event.UpdateConfigEvent(group), delta)
}

func (c *Client) ApplyPreset(name string) error {
	return c.Emit(event.ApplyPresetConfig, name)
}

func (c *Client) ApplyFullConfig(cfg model.AppConfig) error {
	return c.Emit(event.ApplyFullConfig, cfg)
}

// SaveConfig persists the hub's working config, after merging cfg when it
// is non-nil.
func (c *Client) SaveConfig(cfg *model.AppConfig) error {
	if cfg == nil {
		return c.Emit(event.SaveConfig, nil)
	}
	return c.Emit(event.SaveConfig, cfg)
}

func (c *Client) LoadConfig() error { return c.Emit(event.LoadConfig, nil) }

func (c *Client) ResetConfig() error { return c.Emit(event.ResetConfig, nil) }

func (c *Client) ToggleCamera(enabled bool) error {
	return c.Emit(event.ToggleCamera, event.ToggleRequest{Enabled: enabled})
}

func (c *Client) InitializeDetector() error { return c.Emit(event.InitializeYolo, nil) }
