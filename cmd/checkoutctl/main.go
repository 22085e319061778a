// Package main is an operator console for a running self-checkout hub. Each
// invocation opens one event channel, sends a command, waits for the hub's
// answer and prints the mirrored state.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/joho/godotenv"

	"github.com/fairyhunter13/self-checkout-simulator/internal/client"
	"github.com/fairyhunter13/self-checkout-simulator/internal/event"
	"github.com/fairyhunter13/self-checkout-simulator/internal/obs"
)

const CheckoutCtlVersion = "1.0.0"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

const usage = `Self-checkout hub control.

The hub url is taken from --hub, then CHECKOUT_HUB_URL, then the profile's
hub_url (ws://localhost:5002/socket when unset).

Usage:
    checkoutctl status [options]
    checkoutctl watch [options] [--for=<duration>]
    checkoutctl scan start [options] [--zone-start=<pct>] [--zone-width=<pct>]
    checkoutctl scan stop [options]
    checkoutctl cart clear [options]
    checkoutctl cart remove [options] <name>
    checkoutctl checkout [options]
    checkoutctl products [options]
    checkoutctl product add [options] <name> <price>
    checkoutctl product update [options] <name> <price>
    checkoutctl product delete [options] <name>
    checkoutctl history [options] [--limit=<n>]
    checkoutctl history range [options] <start_date> <end_date>
    checkoutctl history delete [options] <id>
    checkoutctl sim (on|off) [options]
    checkoutctl sim list [options]
    checkoutctl sim add [options] [--label=<label>]
    checkoutctl sim move [options] <obj_id> <direction> [--step=<px>]
    checkoutctl sim zone [options] <obj_id>
    checkoutctl sim conveyor [options] <obj_id> [--speed=<px>]
    checkoutctl sim remove [options] <obj_id>
    checkoutctl config preset [options] <preset>
    checkoutctl config push [options]
    checkoutctl config (save|load|reset) [options]
    checkoutctl camera (on|off) [options]
    checkoutctl detector init [options]
    checkoutctl -h | --help
    checkoutctl --version

Options:
    -h --help              Show this screen.
    --version              Show version.
    --hub=<url>            Hub event channel url.
    --profile=<path>       Operator profile [default: checkoutctl.yaml].
    --wait=<duration>      How long to wait for the hub's answer [default: 2s].
    --for=<duration>       How long to watch events [default: 30s].
    --zone-start=<pct>     Counting zone start in percent of frame width.
    --zone-width=<pct>     Counting zone width in percent of frame width.
    --limit=<n>            Number of transactions [default: 0].
    --label=<label>        Simulated object label [default: person].
    --step=<px>            Move distance [default: 0].
    --speed=<px>           Conveyor speed per tick [default: 0].`

type command struct {
	args   docopt.Opts
	c      *client.Client
	events chan string
	wait   time.Duration
}

// await blocks until one of names arrives or the wait runs out.
func (cmd *command) await(names ...string) bool {
	deadline := time.After(cmd.wait)
	for {
		select {
		case got := <-cmd.events:
			for _, n := range names {
				if got == n {
					return true
				}
			}
		case <-deadline:
			Err.Printf("no answer from hub within %s (waiting for %v)", cmd.wait, names)
			return false
		case <-cmd.c.Done():
			Err.Printf("hub closed the connection")
			return false
		}
	}
}

func (cmd *command) run(emit func() error, names ...string) {
	if err := emit(); err != nil {
		Err.Fatalf("send: %v", err)
	}
	if len(names) > 0 {
		cmd.await(append(names, event.CommandError)...)
	}
	if msg, ok := cmd.c.Notifications().Current(); ok {
		Out.Printf("# %s", msg)
	}
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		Err.Fatalf("encode: %v", err)
	}
	Out.Println(string(b))
}

func optInt(opts docopt.Opts, key string) *int {
	s, _ := opts.String(key)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		Err.Fatalf("%s: %v", key, err)
	}
	return &n
}

func intArg(opts docopt.Opts, key string) int {
	if n := optInt(opts, key); n != nil {
		return *n
	}
	return 0
}

func floatArg(opts docopt.Opts, key string) float64 {
	s, _ := opts.String(key)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		Err.Fatalf("%s: %v", key, err)
	}
	return f
}

func durationArg(opts docopt.Opts, key string) time.Duration {
	s, _ := opts.String(key)
	d, err := time.ParseDuration(s)
	if err != nil {
		Err.Fatalf("%s: %v", key, err)
	}
	return d
}

func is(opts docopt.Opts, keys ...string) bool {
	for _, k := range keys {
		if v, _ := opts.Bool(k); !v {
			return false
		}
	}
	return true
}

func main() {
	_ = godotenv.Load()
	obs.InitLoggerLevel(os.Getenv("LOG_LEVEL"))

	opts, err := docopt.ParseArgs(usage, os.Args[1:], CheckoutCtlVersion)
	if err != nil {
		panic(err)
	}

	profilePath, _ := opts.String("--profile")
	profile, err := client.LoadProfile(profilePath)
	if err != nil {
		Err.Fatalf("profile: %v", err)
	}
	url, _ := opts.String("--hub")
	if url == "" {
		url = os.Getenv("CHECKOUT_HUB_URL")
	}
	if url == "" {
		url = profile.HubURL
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	c, err := client.Dial(ctx, url)
	cancel()
	if err != nil {
		Err.Fatalf("connect: %v", err)
	}
	defer c.Close()

	cmd := &command{
		args:   opts,
		c:      c,
		events: make(chan string, 256),
		wait:   durationArg(opts, "--wait"),
	}
	c.Mirror().SetConfig(profile.Config)
	c.Mirror().OnChange(func(name string) {
		select {
		case cmd.events <- name:
		default:
		}
	})

	switch {
	case is(opts, "status"):
		status(cmd)
	case is(opts, "watch"):
		watch(cmd)
	case is(opts, "scan", "start"):
		cmd.run(func() error {
			return c.StartScanning(event.ScanRequest{
				ZoneStart: optInt(opts, "--zone-start"),
				ZoneWidth: optInt(opts, "--zone-width"),
			})
		}, event.CartUpdate)
		printJSON(cartView(c.Snapshot()))
	case is(opts, "scan", "stop"):
		cmd.run(c.StopScanning, event.ScanningComplete)
		printJSON(cartView(c.Snapshot()))
	case is(opts, "cart", "clear"):
		cmd.run(c.ClearCart, event.CartUpdate)
		printJSON(cartView(c.Snapshot()))
	case is(opts, "cart", "remove"):
		name, _ := opts.String("<name>")
		cmd.run(func() error { return c.RemoveItem(name) }, event.ItemRemoved)
		printJSON(cartView(c.Snapshot()))
	case is(opts, "checkout"):
		cmd.run(c.CheckoutComplete, event.CartUpdate)
		printJSON(cartView(c.Snapshot()))
	case is(opts, "products"):
		cmd.run(c.GetProducts, event.ProductsList)
		printJSON(c.Snapshot().Products)
	case is(opts, "product"):
		product(cmd)
	case is(opts, "history"):
		history(cmd)
	case is(opts, "sim"):
		sim(cmd)
	case is(opts, "config"):
		configCmd(cmd, profile, profilePath)
	case is(opts, "camera"):
		on := is(opts, "on")
		cmd.run(func() error { return c.ToggleCamera(on) }, event.CameraStatus)
		printJSON(c.Snapshot().Camera)
	case is(opts, "detector", "init"):
		cmd.run(c.InitializeDetector, event.YoloStatus)
		printJSON(c.Snapshot().Detector)
	}
}

func cartView(st client.State) map[string]any {
	return map[string]any{"cart": st.Cart, "total": st.Total, "scanning": st.Scanning}
}

// status asks for the detector status; the greeting's camera_status is
// ahead of the answer on the same channel.
func status(cmd *command) {
	cmd.run(cmd.c.InitializeDetector, event.YoloStatus)
	st := cmd.c.Snapshot()
	printJSON(map[string]any{
		"connected": st.Connected,
		"camera":    st.Camera,
		"detector":  st.Detector,
	})
}

func watch(cmd *command) {
	stop := time.After(durationArg(cmd.args, "--for"))
	cmd.c.Notifications().Watch(func(msg string) {
		if msg != "" {
			Out.Printf("# %s", msg)
		}
	})
	for {
		select {
		case name := <-cmd.events:
			Out.Printf("%s %s", time.Now().Format(time.TimeOnly), name)
		case <-cmd.c.Done():
			Err.Printf("hub closed the connection")
			return
		case <-stop:
			return
		}
	}
}

func product(cmd *command) {
	c, opts := cmd.c, cmd.args
	name, _ := opts.String("<name>")
	switch {
	case is(opts, "add"):
		price := floatArg(opts, "<price>")
		cmd.run(func() error { return c.AddProduct(name, price) }, event.ProductAdded)
	case is(opts, "update"):
		price := floatArg(opts, "<price>")
		cmd.run(func() error { return c.UpdateProduct(name, price) }, event.ProductUpdated)
	case is(opts, "delete"):
		cmd.run(func() error { return c.DeleteProduct(name) }, event.ProductDeleted)
	}
	printJSON(c.Snapshot().Products)
}

func history(cmd *command) {
	c, opts := cmd.c, cmd.args
	switch {
	case is(opts, "range"):
		start, _ := opts.String("<start_date>")
		end, _ := opts.String("<end_date>")
		cmd.run(func() error { return c.GetTransactionsByDate(start, end) }, event.TransactionHistory)
	case is(opts, "delete"):
		id, _ := opts.String("<id>")
		cmd.run(func() error { return c.DeleteTransaction(id) }, event.TransactionDeleted)
		return
	default:
		limit := intArg(opts, "--limit")
		cmd.run(func() error { return c.GetTransactionHistory(limit) }, event.TransactionHistory)
	}
	printJSON(c.Snapshot().Transactions)
}

func sim(cmd *command) {
	c, opts := cmd.c, cmd.args
	id, _ := opts.String("<obj_id>")
	switch {
	case is(opts, "on"), is(opts, "off"):
		on := is(opts, "on")
		cmd.run(func() error { return c.ToggleSimulation(on) }, event.SimulationToggled)
	case is(opts, "list"):
		cmd.run(c.GetSimulatedObjects, event.SimulatedObjectsList)
	case is(opts, "add"):
		label, _ := opts.String("--label")
		cmd.run(func() error { return c.AddSimulatedObject(event.SimObjectRequest{Label: label}) }, event.SimulatedObjectAdded)
	case is(opts, "move"):
		dir, _ := opts.String("<direction>")
		step := intArg(opts, "--step")
		cmd.run(func() error { return c.MoveSimulatedObject(id, dir, step) }, event.SimulatedObjectMoved)
	case is(opts, "zone"):
		cmd.run(func() error { return c.MoveToZone(id) }, event.SimulatedObjectMovedZone)
	case is(opts, "conveyor"):
		speed := intArg(opts, "--speed")
		cmd.run(func() error { return c.SimulateConveyor(id, speed) }, event.ConveyorSimulationStarted)
	case is(opts, "remove"):
		cmd.run(func() error { return c.RemoveSimulatedObject(id) }, event.SimulatedObjectRemoved)
	}
	st := c.Snapshot()
	printJSON(map[string]any{"simulation": st.Simulation, "objects": st.SimulatedObjects})
}

func configCmd(cmd *command, profile client.Profile, profilePath string) {
	c, opts := cmd.c, cmd.args
	switch {
	case is(opts, "preset"):
		name, _ := opts.String("<preset>")
		cmd.run(func() error { return c.ApplyPreset(name) }, event.ConfigApplied)
	case is(opts, "push"):
		cmd.run(func() error { return c.ApplyFullConfig(profile.Config) }, event.ConfigApplied)
	case is(opts, "save"):
		cmd.run(func() error { return c.SaveConfig(nil) }, event.ConfigSaved)
	case is(opts, "load"):
		cmd.run(c.LoadConfig, event.ConfigLoaded)
	case is(opts, "reset"):
		cmd.run(c.ResetConfig, event.ConfigReset)
	}
	profile.Config = c.Snapshot().Config
	if err := profile.Save(profilePath); err != nil {
		Err.Printf("save profile: %v", err)
	}
	printJSON(profile.Config)
}
