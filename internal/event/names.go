package event

// Client to server commands.
const (
	StartScanning          = "start_scanning"
	StopScanning           = "stop_scanning"
	UpdateZone             = "update_zone"
	ClearCart              = "clear_cart"
	RemoveItem             = "remove_item"
	CheckoutComplete       = "checkout_complete"
	GetProducts            = "get_products"
	AddProduct             = "add_product"
	UpdateProduct          = "update_product"
	DeleteProduct          = "delete_product"
	GetTransactionHistory  = "get_transaction_history"
	GetTransactionsByDate  = "get_transactions_by_date"
	DeleteTransaction      = "delete_transaction"
	ToggleSimulation       = "toggle_simulation"
	AddSimulatedObject     = "add_simulated_object"
	UpdateSimulatedObject  = "update_simulated_object"
	RemoveSimulatedObject  = "remove_simulated_object"
	GetSimulatedObjects    = "get_simulated_objects"
	MoveSimulatedObject    = "move_simulated_object"
	PresetMoveToZone       = "preset_move_to_zone"
	SimulateConveyor       = "simulate_conveyor_movement"
	UpdateDetectionConfig  = "update_detection_config"
	UpdateVisualConfig     = "update_visual_config"
	UpdateAdvancedConfig   = "update_advanced_config"
	ApplyPresetConfig      = "apply_preset_config"
	ApplyFullConfig        = "apply_full_config"
	SaveConfig             = "save_config"
	LoadConfig             = "load_config"
	ResetConfig            = "reset_config"
	ToggleCamera           = "toggle_camera"
	InitializeYolo         = "initialize_yolo"
)

// Server to client notifications.
const (
	CameraStatus              = "camera_status"
	YoloStatus                = "yolo_status"
	CartUpdate                = "cart_update"
	ScanningComplete          = "scanning_complete"
	ItemRemoved               = "item_removed"
	ProductsList              = "products_list"
	ProductAdded              = "product_added"
	ProductUpdated            = "product_updated"
	ProductDeleted            = "product_deleted"
	TransactionHistory        = "transaction_history"
	TransactionDeleted        = "transaction_deleted"
	SimulationToggled         = "simulation_toggled"
	SimulatedObjectAdded      = "simulated_object_added"
	SimulatedObjectUpdated    = "simulated_object_updated"
	SimulatedObjectRemoved    = "simulated_object_removed"
	SimulatedObjectsList      = "simulated_objects_list"
	SimulatedObjectMoved      = "simulated_object_moved"
	SimulatedObjectMovedZone  = "simulated_object_moved_to_zone"
	ConveyorSimulationStarted = "conveyor_simulation_started"
	ConfigUpdated             = "config_updated"
	ConfigApplied             = "config_applied"
	ConfigSaved               = "config_saved"
	ConfigLoaded              = "config_loaded"
	ConfigReset               = "config_reset"
	CommandError              = "command_error"
)

// UpdateConfigEvent returns the update_<group>_config command name.
func UpdateConfigEvent(group string) string { return "update_" + group + "_config" }
