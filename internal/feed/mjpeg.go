package feed

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/oklog/ulid/v2"

	"github.com/fairyhunter13/self-checkout-simulator/internal/obs"
)

// Boundary separates parts of the multipart stream.
const Boundary = "frame"

func noCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}

// StreamHandler serves the bus as multipart/x-mixed-replace MJPEG until the
// client goes away or the bus closes.
func StreamHandler(b *Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		id := ulid.Make().String()
		ch := make(chan Frame, 1)
		if err := b.Subscribe(id, ch); err != nil {
			http.Error(w, "feed closed", http.StatusServiceUnavailable)
			return
		}
		defer b.Unsubscribe(id)

		noCache(w)
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+Boundary)
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
		obs.Logger.Debug("feed_viewer_joined", "viewer_id", id, "path", r.URL.Path)

		sent := 0
		defer func() {
			obs.Logger.Debug("feed_viewer_left", "viewer_id", id, "frames", sent)
		}()
		for {
			select {
			case <-r.Context().Done():
				return
			case f, ok := <-ch:
				if !ok {
					return
				}
				if err := writePart(w, f.Data); err != nil {
					return
				}
				flusher.Flush()
				sent++
			}
		}
	}
}

func writePart(w http.ResponseWriter, data []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", Boundary, len(data)); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}

// CurrentFrameHandler returns the latest frame as a single JPEG.
func CurrentFrameHandler(b *Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, ok := b.Latest()
		if !ok {
			http.Error(w, "no frame yet", http.StatusServiceUnavailable)
			return
		}
		noCache(w)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
		w.Header().Set("X-Frame-Seq", strconv.FormatUint(f.Seq, 10))
		_, _ = w.Write(f.Data)
	}
}
