package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fairyhunter13/self-checkout-simulator/internal/event"
	"github.com/fairyhunter13/self-checkout-simulator/internal/model"
	"github.com/fairyhunter13/self-checkout-simulator/internal/obs"
)

// ErrUnknownCommand is returned for event names without a handler.
var ErrUnknownCommand = errors.New("checkout: unknown command")

type handler func(e *Engine, ctx context.Context, sessionID string, env event.Envelope) error

var handlers = map[string]handler{
	event.StartScanning: func(e *Engine, _ context.Context, _ string, env event.Envelope) error {
		var req event.ScanRequest
		if err := env.Bind(&req); err != nil {
			return err
		}
		return e.StartScanning(orDefault(req.ZoneStart, DefaultZoneStart), orDefault(req.ZoneWidth, DefaultZoneWidth))
	},
	event.StopScanning: func(e *Engine, _ context.Context, _ string, _ event.Envelope) error {
		e.StopScanning()
		return nil
	},
	event.UpdateZone: func(e *Engine, _ context.Context, _ string, env event.Envelope) error {
		start, width := e.zone()
		req := event.ZoneRequest{ZoneStart: start, ZoneWidth: width}
		if err := env.Bind(&req); err != nil {
			return err
		}
		return e.UpdateZone(req.ZoneStart, req.ZoneWidth)
	},
	event.ClearCart: func(e *Engine, _ context.Context, _ string, _ event.Envelope) error {
		e.ClearCart()
		return nil
	},
	event.RemoveItem: func(e *Engine, _ context.Context, _ string, env event.Envelope) error {
		var req event.NameRequest
		if err := env.Bind(&req); err != nil {
			return err
		}
		e.RemoveItem(req.Name)
		return nil
	},
	event.CheckoutComplete: func(e *Engine, ctx context.Context, _ string, _ event.Envelope) error {
		_, err := e.CheckoutComplete(ctx)
		return err
	},
	event.GetProducts: func(e *Engine, _ context.Context, _ string, _ event.Envelope) error {
		e.Products()
		return nil
	},
	event.AddProduct: func(e *Engine, _ context.Context, _ string, env event.Envelope) error {
		var req event.ProductRequest
		if err := env.Bind(&req); err != nil {
			return err
		}
		return e.AddProduct(req.Name, req.Price)
	},
	event.UpdateProduct: func(e *Engine, _ context.Context, _ string, env event.Envelope) error {
		var req event.ProductRequest
		if err := env.Bind(&req); err != nil {
			return err
		}
		return e.UpdateProduct(req.Name, req.Price)
	},
	event.DeleteProduct: func(e *Engine, _ context.Context, _ string, env event.Envelope) error {
		var req event.NameRequest
		if err := env.Bind(&req); err != nil {
			return err
		}
		return e.DeleteProduct(req.Name)
	},
	event.GetTransactionHistory: func(e *Engine, ctx context.Context, sess string, env event.Envelope) error {
		var req event.HistoryRequest
		if err := env.Bind(&req); err != nil {
			return err
		}
		err := e.TransactionHistory(ctx, sess, req.Limit)
		if errors.Is(err, ErrThrottled) {
			return nil
		}
		return err
	},
	event.GetTransactionsByDate: func(e *Engine, ctx context.Context, _ string, env event.Envelope) error {
		var req event.DateRangeRequest
		if err := env.Bind(&req); err != nil {
			return err
		}
		return e.TransactionsByDate(ctx, req.StartDate, req.EndDate)
	},
	event.DeleteTransaction: func(e *Engine, ctx context.Context, _ string, env event.Envelope) error {
		var req event.IDRequest
		if err := env.Bind(&req); err != nil {
			return err
		}
		e.DeleteTransaction(ctx, req.ID)
		return nil
	},
	event.ToggleSimulation: func(e *Engine, _ context.Context, _ string, env event.Envelope) error {
		var req event.ToggleRequest
		if err := env.Bind(&req); err != nil {
			return err
		}
		e.ToggleSimulation(req.Enabled)
		return nil
	},
	event.AddSimulatedObject: func(e *Engine, _ context.Context, _ string, env event.Envelope) error {
		var req event.SimObjectRequest
		if err := env.Bind(&req); err != nil {
			return err
		}
		e.AddSimulatedObject(req)
		return nil
	},
	event.UpdateSimulatedObject: func(e *Engine, _ context.Context, _ string, env event.Envelope) error {
		var req event.SimObjectPatch
		if err := env.Bind(&req); err != nil {
			return err
		}
		e.UpdateSimulatedObject(req)
		return nil
	},
	event.RemoveSimulatedObject: func(e *Engine, _ context.Context, _ string, env event.Envelope) error {
		var req event.ObjRequest
		if err := env.Bind(&req); err != nil {
			return err
		}
		e.RemoveSimulatedObject(req.ObjID)
		return nil
	},
	event.GetSimulatedObjects: func(e *Engine, _ context.Context, _ string, _ event.Envelope) error {
		e.SimulatedObjects()
		return nil
	},
	event.MoveSimulatedObject: func(e *Engine, _ context.Context, _ string, env event.Envelope) error {
		var req event.MoveRequest
		if err := env.Bind(&req); err != nil {
			return err
		}
		return e.MoveSimulatedObject(req.ObjID, req.Direction, req.Step)
	},
	event.PresetMoveToZone: func(e *Engine, _ context.Context, _ string, env event.Envelope) error {
		var req event.ObjRequest
		if err := env.Bind(&req); err != nil {
			return err
		}
		e.MoveToZone(req.ObjID)
		return nil
	},
	event.SimulateConveyor: func(e *Engine, _ context.Context, _ string, env event.Envelope) error {
		var req event.ConveyorRequest
		if err := env.Bind(&req); err != nil {
			return err
		}
		return e.SimulateConveyor(req.ObjID, req.Speed)
	},
	event.UpdateDetectionConfig: configHandler(model.GroupDetection),
	event.UpdateVisualConfig:    configHandler(model.GroupVisual),
	event.UpdateAdvancedConfig:  configHandler(model.GroupAdvanced),
	event.ApplyPresetConfig: func(e *Engine, _ context.Context, _ string, env event.Envelope) error {
		name, err := presetName(env)
		if err != nil {
			return err
		}
		e.ApplyPreset(name)
		return nil
	},
	event.ApplyFullConfig: func(e *Engine, _ context.Context, _ string, env event.Envelope) error {
		var req event.FullConfigRequest
		if err := env.Bind(&req); err != nil {
			return err
		}
		e.ApplyFullConfig(req)
		return nil
	},
	event.SaveConfig: func(e *Engine, _ context.Context, _ string, env event.Envelope) error {
		if len(env.Data) == 0 || string(env.Data) == "null" {
			e.SaveConfig(nil)
			return nil
		}
		var req event.FullConfigRequest
		if err := env.Bind(&req); err != nil {
			return err
		}
		e.SaveConfig(&req)
		return nil
	},
	event.LoadConfig: func(e *Engine, _ context.Context, _ string, _ event.Envelope) error {
		e.LoadConfig()
		return nil
	},
	event.ResetConfig: func(e *Engine, _ context.Context, _ string, _ event.Envelope) error {
		e.ResetConfig()
		return nil
	},
	event.ToggleCamera: func(e *Engine, _ context.Context, _ string, env event.Envelope) error {
		var req event.ToggleRequest
		if err := env.Bind(&req); err != nil {
			return err
		}
		e.ToggleCamera(req.Enabled)
		return nil
	},
	event.InitializeYolo: func(e *Engine, _ context.Context, _ string, _ event.Envelope) error {
		e.InitializeDetector()
		return nil
	},
}

func configHandler(group string) handler {
	return func(e *Engine, _ context.Context, _ string, env event.Envelope) error {
		delta := env.Data
		if len(delta) == 0 {
			delta = json.RawMessage(`{}`)
		}
		return e.UpdateConfig(group, delta)
	}
}

// presetName accepts either a bare JSON string or {"preset": name}.
func presetName(env event.Envelope) (string, error) {
	var name string
	if err := json.Unmarshal(env.Data, &name); err == nil {
		return strings.TrimSpace(name), nil
	}
	var obj struct {
		Preset string `json:"preset"`
	}
	if err := env.Bind(&obj); err != nil {
		return "", err
	}
	return strings.TrimSpace(obj.Preset), nil
}

func (e *Engine) zone() (start, width int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.Zone()
}

// Commands lists the event names Handle accepts.
func Commands() []string { return sortedKeys(handlers) }

// Handle runs one command from a session. State changes are broadcast
// through the Publisher; the returned messages go to the sender alone and
// are non-empty only when the command failed.
func (e *Engine) Handle(ctx context.Context, sessionID string, env event.Envelope) []event.Message {
	h, ok := handlers[env.Event]
	var err error
	if !ok {
		err = fmt.Errorf("%w: %q", ErrUnknownCommand, env.Event)
	} else {
		err = h(e, ctx, sessionID, env)
	}
	if err == nil {
		return nil
	}
	obs.Logger.Warn("command_failed", "session_id", sessionID, "event", env.Event, "error", err.Error())
	return []event.Message{event.New(event.CommandError, event.CommandErrorPayload{Event: env.Event, Message: err.Error()})}
}
