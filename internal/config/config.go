// Package config provides runtime configuration values for the service.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds configuration knobs for the HTTP server, event hub,
// detection workers and storage.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string
	CORSOrigins     []string

	InitialWorkerCount      int
	WorkerMin               int
	WorkerMax               int
	ScaleInterval           time.Duration
	ScaleUpBacklogPerWorker int
	ScaleDownIdleTicks      int
	QueueHighWatermark      int

	ProductsPath        string
	DetectionConfigPath string
	LedgerDSN           string

	SessionSendBuffer int
	WSPingInterval    time.Duration
	WSWriteTimeout    time.Duration
	HistoryThrottle   time.Duration
	CameraStaleAfter  time.Duration
	FrameWidth        int
	FrameHeight       int
}

// ConfigFileEnv names the env var pointing at an optional config file.
const ConfigFileEnv = "CHECKOUT_CONFIG"

var defaults = map[string]any{
	"HTTP_ADDR":                   ":5002",
	"SHUTDOWN_TIMEOUT":            15,
	"LOG_LEVEL":                   "info",
	"CORS_ORIGINS":                "http://localhost:3002,http://127.0.0.1:3002",
	"WORKER_MIN":                  1,
	"WORKER_MAX":                  4,
	"SCALE_INTERVAL_MS":           500,
	"SCALE_UP_BACKLOG_PER_WORKER": 50,
	"SCALE_DOWN_IDLE_TICKS":       6,
	"QUEUE_HIGH_WATERMARK":        1000,
	"PRODUCTS_CONFIG_PATH":        "products.yaml",
	"DETECTION_CONFIG_PATH":       "detection_config.json",
	"LEDGER_DSN":                  "",
	"SESSION_SEND_BUFFER":         64,
	"WS_PING_INTERVAL_MS":         25000,
	"WS_WRITE_TIMEOUT_MS":         5000,
	"HISTORY_THROTTLE_MS":         2000,
	"CAMERA_STALE_AFTER_MS":       3000,
	"FRAME_WIDTH":                 640,
	"FRAME_HEIGHT":                480,
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()
	return v
}

func getenv(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func atoienv(v *viper.Viper, key string) int {
	n, err := strconv.Atoi(getenv(v, key))
	if err != nil {
		d, _ := defaults[key].(int)
		return d
	}
	return n
}

func durenvms(v *viper.Viper, key string) time.Duration {
	return time.Duration(atoienv(v, key)) * time.Millisecond
}

func durenvs(v *viper.Viper, key string) time.Duration {
	return time.Duration(atoienv(v, key)) * time.Second
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load collects configuration from environment with defaults. Values from
// the file named by CHECKOUT_CONFIG are applied first; environment
// variables override them. A missing or unreadable file is ignored.
func Load() Config {
	cfg, _ := LoadFile(os.Getenv(ConfigFileEnv))
	return cfg
}

// LoadFile is Load with an explicit config file path. It returns the error
// from reading the file, if any, alongside the env-and-default config.
func LoadFile(path string) (Config, error) {
	v := newViper()
	var fileErr error
	if path != "" {
		v.SetConfigFile(path)
		if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
			fileErr = v.ReadInConfig()
		}
	}
	minWorkers := atoienv(v, "WORKER_MIN")
	maxWorkers := atoienv(v, "WORKER_MAX")
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}
	initialWorkers := minWorkers
	if getenv(v, "WORKER_COUNT") != "" {
		if n, err := strconv.Atoi(getenv(v, "WORKER_COUNT")); err == nil {
			initialWorkers = n
		}
	}
	return Config{
		HTTPAddr:                getenv(v, "HTTP_ADDR"),
		ShutdownTimeout:         durenvs(v, "SHUTDOWN_TIMEOUT"),
		LogLevel:                getenv(v, "LOG_LEVEL"),
		CORSOrigins:             splitList(getenv(v, "CORS_ORIGINS")),
		InitialWorkerCount:      initialWorkers,
		WorkerMin:               minWorkers,
		WorkerMax:               maxWorkers,
		ScaleInterval:           durenvms(v, "SCALE_INTERVAL_MS"),
		ScaleUpBacklogPerWorker: atoienv(v, "SCALE_UP_BACKLOG_PER_WORKER"),
		ScaleDownIdleTicks:      atoienv(v, "SCALE_DOWN_IDLE_TICKS"),
		QueueHighWatermark:      atoienv(v, "QUEUE_HIGH_WATERMARK"),
		ProductsPath:            getenv(v, "PRODUCTS_CONFIG_PATH"),
		DetectionConfigPath:     getenv(v, "DETECTION_CONFIG_PATH"),
		LedgerDSN:               getenv(v, "LEDGER_DSN"),
		SessionSendBuffer:       atoienv(v, "SESSION_SEND_BUFFER"),
		WSPingInterval:          durenvms(v, "WS_PING_INTERVAL_MS"),
		WSWriteTimeout:          durenvms(v, "WS_WRITE_TIMEOUT_MS"),
		HistoryThrottle:         durenvms(v, "HISTORY_THROTTLE_MS"),
		CameraStaleAfter:        durenvms(v, "CAMERA_STALE_AFTER_MS"),
		FrameWidth:              atoienv(v, "FRAME_WIDTH"),
		FrameHeight:             atoienv(v, "FRAME_HEIGHT"),
	}, fileErr
}
