package httpapi

import (
	"expvar"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fairyhunter13/self-checkout-simulator/internal/feed"
)

// NewRouter registers HTTP routes and returns the handler with middleware.
func NewRouter(app *App) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", app.indexHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/health", app.apiHealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/healthz", app.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/debug", app.debugHandler).Methods(http.MethodGet)
	r.HandleFunc("/debug/metrics", app.metricsHandler).Methods(http.MethodGet)
	r.Handle("/debug/vars", expvar.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/detections", app.postDetectionsHandler).Methods(http.MethodPost)
	r.HandleFunc("/frames", app.postFrameHandler).Methods(http.MethodPost)

	stream := feed.StreamHandler(app.Feed)
	r.Handle("/video_feed", stream).Methods(http.MethodGet)
	r.Handle("/video_stream", stream).Methods(http.MethodGet)
	r.Handle("/current_frame", feed.CurrentFrameHandler(app.Feed)).Methods(http.MethodGet)

	r.Handle("/socket", app.Hub).Methods(http.MethodGet)
	r.Handle("/ws", app.Hub).Methods(http.MethodGet)

	r.HandleFunc("/openapi.yaml", app.openapiHandler).Methods(http.MethodGet)
	r.HandleFunc("/docs", app.docsHandler).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
	})
	return WithRequestID(WithLogging(WithCORS(app.Cfg.CORSOrigins, r)))
}
