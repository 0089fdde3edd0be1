// Package webapp is the HTTP application ckan-spatial serves: a health check,
// the spatial bbox search over package extents and, once attached, the
// Prometheus metrics endpoint and middleware.
package webapp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/paulmach/orb"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ckan/ckanext-spatial/pkg/spatial"
)

const (
	healthPath    = "/healthcheck"
	metricsPath   = "/metrics"
	geoSearchPath = "/api/2/search/dataset/geo"
)

// ExtentSearcher finds packages whose extent intersects a box.
type ExtentSearcher interface {
	BBoxSearch(ctx context.Context, box orb.Bound, crsSRID int) ([]string, error)
}

// App is the web application. Metrics are attached at most once.
type App struct {
	mux    *http.ServeMux
	search ExtentSearcher
	logger *slog.Logger

	mu      sync.RWMutex
	metrics *Metrics
	// measured is mux behind the metrics middleware, built on attach.
	measured http.Handler
}

// New builds the application. search may be nil, in which case the geo
// search answers 503.
func New(search ExtentSearcher, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{mux: http.NewServeMux(), search: search, logger: logger}
	a.mux.HandleFunc("GET "+healthPath, a.handleHealth)
	a.mux.HandleFunc("GET "+metricsPath, a.handleMetrics)
	a.mux.HandleFunc("GET "+geoSearchPath, a.handleGeoSearch)
	return a
}

// SetSearcher replaces the extent searcher, e.g. once the database is open.
func (a *App) SetSearcher(search ExtentSearcher) {
	a.mu.Lock()
	a.search = search
	a.mu.Unlock()
}

// EnsureMetrics attaches the metrics middleware if none is attached yet. It
// reports whether this call attached it.
func (a *App) EnsureMetrics() (*Metrics, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.metrics != nil {
		return a.metrics, false
	}
	a.metrics = NewMetrics()
	a.measured = a.metrics.Middleware(a.mux, metricsPath, healthPath)
	a.logger.Info("Attached metrics middleware")
	return a.metrics, true
}

// Metrics returns the attached metrics, or nil.
func (a *App) Metrics() *Metrics {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.metrics
}

// ServeHTTP routes the request, through the metrics middleware once attached.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.RLock()
	h := a.measured
	a.mu.RUnlock()
	if h == nil {
		h = a.mux
	}
	h.ServeHTTP(w, r)
}

// Handler returns the traced application handler.
func (a *App) Handler() http.Handler {
	return otelhttp.NewHandler(a, "ckan-spatial")
}

func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

func (a *App) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m := a.Metrics()
	if m == nil {
		http.NotFound(w, r)
		return
	}
	m.Handler().ServeHTTP(w, r)
}

type searchResponse struct {
	Count   int      `json:"count"`
	Results []string `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *App) handleGeoSearch(w http.ResponseWriter, r *http.Request) {
	a.mu.RLock()
	search := a.search
	a.mu.RUnlock()
	if search == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "spatial search is not configured"})
		return
	}

	q := r.URL.Query()
	box, err := spatial.ParseBBox(q.Get("bbox"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	srid, err := spatial.ParseCRS(q.Get("crs"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	ids, err := search.BBoxSearch(r.Context(), box, srid)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.Canceled) {
			status = http.StatusServiceUnavailable
		}
		a.logger.Error("Spatial search failed", "bbox", q.Get("bbox"), "srid", srid, "error", err)
		writeJSON(w, status, errorResponse{Error: "spatial search failed"})
		return
	}
	if ids == nil {
		ids = []string{}
	}
	if m := a.Metrics(); m != nil {
		m.RecordSearch(len(ids))
	}
	writeJSON(w, http.StatusOK, searchResponse{Count: len(ids), Results: ids})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
