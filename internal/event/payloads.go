package event

import (
	"encoding/json"

	"github.com/fairyhunter13/self-checkout-simulator/internal/model"
)

// ScanRequest is the start_scanning payload.
type ScanRequest struct {
	ZoneStart *int `json:"zoneStart,omitempty"`
	ZoneWidth *int `json:"zoneWidth,omitempty"`
}

// ZoneRequest is the update_zone payload.
type ZoneRequest struct {
	ZoneStart int `json:"zone_start"`
	ZoneWidth int `json:"zone_width"`
}

// NameRequest carries a product name (remove_item, delete_product).
type NameRequest struct {
	Name string `json:"name"`
}

// ProductRequest is the add_product / update_product payload.
type ProductRequest struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// HistoryRequest is the get_transaction_history payload.
type HistoryRequest struct {
	Limit int `json:"limit,omitempty"`
}

// DateRangeRequest is the get_transactions_by_date payload.
type DateRangeRequest struct {
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// IDRequest is the delete_transaction payload.
type IDRequest struct {
	ID string `json:"id"`
}

// ToggleRequest is the toggle_simulation / toggle_camera payload.
type ToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// SimObjectRequest is the add_simulated_object payload.
type SimObjectRequest struct {
	Label  string `json:"label,omitempty"`
	X      *int   `json:"x,omitempty"`
	Y      *int   `json:"y,omitempty"`
	Width  *int   `json:"width,omitempty"`
	Height *int   `json:"height,omitempty"`
}

// SimObjectPatch is the update_simulated_object payload; nil fields are
// left unchanged.
type SimObjectPatch struct {
	ObjID  string  `json:"obj_id"`
	Label  *string `json:"label,omitempty"`
	X      *int    `json:"x,omitempty"`
	Y      *int    `json:"y,omitempty"`
	Width  *int    `json:"width,omitempty"`
	Height *int    `json:"height,omitempty"`
}

// ObjRequest carries a simulated object id.
type ObjRequest struct {
	ObjID string `json:"obj_id"`
}

// MoveRequest is the move_simulated_object payload.
type MoveRequest struct {
	ObjID     string `json:"obj_id"`
	Direction string `json:"direction"`
	Step      int    `json:"step,omitempty"`
}

// ConveyorRequest is the simulate_conveyor_movement payload.
type ConveyorRequest struct {
	ObjID string `json:"obj_id"`
	Speed int    `json:"speed,omitempty"`
}

// FullConfigRequest is the apply_full_config / save_config payload. Each
// group is a raw delta so that absent fields keep their current values.
type FullConfigRequest struct {
	Detection json.RawMessage `json:"detection,omitempty"`
	Visual    json.RawMessage `json:"visual,omitempty"`
	Advanced  json.RawMessage `json:"advanced,omitempty"`
}

// CartPayload is the cart_update / scanning_complete payload.
type CartPayload struct {
	Cart  model.Cart `json:"cart"`
	Total float64    `json:"total"`
}

// ItemRemovedPayload is the item_removed payload.
type ItemRemovedPayload struct {
	Success bool   `json:"success"`
	Name    string `json:"name"`
}

// ProductPayload is the product_added / product_updated / product_deleted
// payload. Price is omitted on deletion.
type ProductPayload struct {
	Name  string   `json:"name"`
	Price *float64 `json:"price,omitempty"`
}

// TransactionDeletedPayload is the transaction_deleted payload.
type TransactionDeletedPayload struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

// SimulationToggledPayload is the simulation_toggled payload.
type SimulationToggledPayload struct {
	Enabled bool   `json:"enabled"`
	Message string `json:"message"`
}

// SimObjectAddedPayload is the simulated_object_added payload.
type SimObjectAddedPayload struct {
	Success bool   `json:"success"`
	ObjID   string `json:"obj_id"`
	Label   string `json:"label"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

// SimObjectResult is the simulated_object_updated / _removed payload.
// Object carries the patched object on a successful update.
type SimObjectResult struct {
	Success bool                   `json:"success"`
	ObjID   string                 `json:"obj_id"`
	Object  *model.SimulatedObject `json:"object,omitempty"`
}

// SimObjectMovedPayload is the simulated_object_moved(_to_zone) payload.
type SimObjectMovedPayload struct {
	Success bool   `json:"success"`
	ObjID   string `json:"obj_id"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
}

// ConveyorPayload is the conveyor_simulation_started payload.
type ConveyorPayload struct {
	ObjID string `json:"obj_id"`
	Speed int    `json:"speed"`
}

// ConfigUpdatedPayload is the config_updated payload.
type ConfigUpdatedPayload struct {
	Success bool            `json:"success"`
	Type    string          `json:"type"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// ConfigResultPayload is the config_applied / config_saved / config_loaded
// / config_reset payload.
type ConfigResultPayload struct {
	Success bool             `json:"success"`
	Preset  string           `json:"preset,omitempty"`
	Config  *model.AppConfig `json:"config,omitempty"`
}

// CameraStatusPayload is the camera_status payload.
type CameraStatusPayload struct {
	Enabled   bool   `json:"enabled"`
	Available bool   `json:"available"`
	Message   string `json:"message,omitempty"`
}

// YoloStatusPayload is the yolo_status payload.
type YoloStatusPayload struct {
	Initialized  bool   `json:"initialized"`
	Initializing bool   `json:"initializing"`
	Error        string `json:"error,omitempty"`
}

// CommandErrorPayload reports a command that could not be decoded or
// validated.
type CommandErrorPayload struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}
