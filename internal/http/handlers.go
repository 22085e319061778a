package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/self-checkout-simulator/internal/catalog"
	"github.com/fairyhunter13/self-checkout-simulator/internal/checkout"
	"github.com/fairyhunter13/self-checkout-simulator/internal/config"
	"github.com/fairyhunter13/self-checkout-simulator/internal/feed"
	httpopenapi "github.com/fairyhunter13/self-checkout-simulator/internal/http/openapi"
	"github.com/fairyhunter13/self-checkout-simulator/internal/hub"
	"github.com/fairyhunter13/self-checkout-simulator/internal/model"
	"github.com/fairyhunter13/self-checkout-simulator/internal/obs"
	"github.com/fairyhunter13/self-checkout-simulator/internal/queue"
)

// Version is reported by the service banner.
const Version = "1.0.0"

// maxFrameBytes bounds POST /frames bodies.
const maxFrameBytes = 8 << 20

var jpegMagic = []byte{0xFF, 0xD8}

// App holds the collaborators the HTTP handlers need.
type App struct {
	Cfg     config.Config
	Engine  *checkout.Engine
	Catalog *catalog.Store
	Manager *queue.Manager
	Hub     *hub.Hub
	Feed    *feed.Bus
	closing atomic.Bool
	started time.Time
}

type ack struct {
	Status      string `json:"status"`
	RequestID   string `json:"request_id"`
	Sequence    uint64 `json:"sequence"`
	Detections  int    `json:"detections"`
	ReceivedAt  string `json:"received_at"`
	QueueDepth  int    `json:"queue_depth"`
	BacklogSize int    `json:"backlog_size"`
	WorkerCount int    `json:"worker_count"`
}

type frameAck struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
	Bytes     int    `json:"bytes"`
}

func NewApp(cfg config.Config, eng *checkout.Engine, cat *catalog.Store, m *queue.Manager, h *hub.Hub, bus *feed.Bus) *App {
	return &App{Cfg: cfg, Engine: eng, Catalog: cat, Manager: m, Hub: h, Feed: bus, started: time.Now()}
}

// StartShutdown stops accepting detections and frames.
func (a *App) StartShutdown() {
	a.closing.Store(true)
	a.Manager.CloseIntake()
}

func (a *App) shuttingDown() bool {
	return a.closing.Load() || a.Manager.IsShuttingDown()
}

func validateBatch(b model.DetectionBatch) error {
	if b.FrameWidth < 0 || b.FrameHeight < 0 {
		return fmt.Errorf("frame dimensions must be >= 0")
	}
	for i, d := range b.Detections {
		if strings.TrimSpace(d.Label) == "" {
			return fmt.Errorf("detections[%d]: label is required", i)
		}
		if d.Confidence < 0 || d.Confidence > 1 {
			return fmt.Errorf("detections[%d]: confidence must be within [0,1]", i)
		}
		if d.Box[2] < d.Box[0] || d.Box[3] < d.Box[1] {
			return fmt.Errorf("detections[%d]: box must be [x1,y1,x2,y2] with x1<=x2 and y1<=y2", i)
		}
	}
	return nil
}

func (a *App) postDetectionsHandler(w http.ResponseWriter, r *http.Request) {
	if a.shuttingDown() {
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
		return
	}
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		WriteJSONError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "expected application/json")
		return
	}
	var b model.DetectionBatch
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := validateBatch(b); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	seq, ok := a.Manager.Submit(b)
	if !ok {
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
		return
	}
	ac := ack{
		Status:      "accepted",
		RequestID:   RequestIDFromContext(r.Context()),
		Sequence:    seq,
		Detections:  len(b.Detections),
		ReceivedAt:  time.Now().UTC().Format(time.RFC3339),
		QueueDepth:  a.Manager.QueueDepth(),
		BacklogSize: a.Manager.BacklogSize(),
		WorkerCount: a.Manager.WorkerCount(),
	}
	writeJSON(w, http.StatusAccepted, ac)
	obs.Logger.Debug("detections_accepted",
		"request_id", ac.RequestID,
		"sequence", ac.Sequence,
		"detections", ac.Detections,
		"queue_depth", ac.QueueDepth,
		"backlog_size", ac.BacklogSize,
	)
}

func (a *App) postFrameHandler(w http.ResponseWriter, r *http.Request) {
	if a.shuttingDown() {
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
		return
	}
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(ct, "image/jpeg") {
		WriteJSONError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "expected image/jpeg")
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFrameBytes))
	if err != nil {
		WriteJSONError(w, http.StatusRequestEntityTooLarge, "frame_too_large", err.Error())
		return
	}
	if !bytes.HasPrefix(data, jpegMagic) {
		WriteJSONError(w, http.StatusBadRequest, "invalid_frame", "body is not a JPEG image")
		return
	}
	a.Engine.PostFrame(data)
	writeJSON(w, http.StatusAccepted, frameAck{
		Status:    "accepted",
		RequestID: RequestIDFromContext(r.Context()),
		Bytes:     len(data),
	})
}

func (a *App) indexHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Self-Checkout API Server",
		"status":  "running",
		"version": Version,
		"endpoints": map[string]string{
			"video_feed": "/video_feed",
			"socket":     "/socket",
		},
	})
}

func (a *App) apiHealthHandler(w http.ResponseWriter, r *http.Request) {
	st := a.Engine.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"camera":         st.CameraAvailable,
		"firestore":      st.LedgerConnected,
		"products_count": a.Catalog.Len(),
	})
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) debugHandler(w http.ResponseWriter, r *http.Request) {
	st := a.Engine.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    st,
		"feed":      a.Feed.Stats(),
		"sessions":  a.Hub.Sessions(),
		"timestamp": float64(time.Now().UnixMilli()) / 1000,
	})
}

func (a *App) metricsHandler(w http.ResponseWriter, r *http.Request) {
	enq, proc, backlog, depth := a.Manager.QueueMetrics()
	m := map[string]any{
		"detections_enqueued":  enq,
		"detections_processed": proc,
		"backlog_size":         backlog,
		"queue_depth":          depth,
		"worker_count":         a.Manager.WorkerCount(),
		"hub":                  a.Hub.Stats(),
		"feed":                 a.Feed.Stats(),
		"uptime_sec":           time.Since(a.started).Seconds(),
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *App) openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(httpopenapi.YAML)
}

func (a *App) docsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Self-Checkout Hub API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`
	_, _ = w.Write([]byte(html))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
