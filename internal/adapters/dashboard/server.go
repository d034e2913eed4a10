package dashboard

import (
	"net/http"
	"time"
)

// NewMux mounts the dashboard with the health and metrics endpoints.
// metrics may be nil, in which case /metrics is not served.
func NewMux(h *Handler, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if h.Engine == nil {
			writeError(w, http.StatusServiceUnavailable, "no table loaded")
			return
		}
		meta := h.Engine.Table().Meta()
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"records":     h.Engine.Table().Len(),
			"loaded_from": meta.LoadedFrom,
			"fallback":    meta.Fallback,
		})
	})
	mux.Handle("/", h)
	return mux
}

// NewServer wraps handler in an http.Server with conservative timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
}
