// Package server exposes a run monitor over HTTP: live renders streamed as
// server-sent events, the run configuration, Prometheus metrics, and a
// health check.
package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HerculesJack/blacklight/pkg/config"
	"github.com/HerculesJack/blacklight/pkg/engine"
	"github.com/HerculesJack/blacklight/pkg/output"
)

// Server serves interactive renders of one configured system.
type Server struct {
	cfg  *config.Config
	log  *slog.Logger
	port int
}

// NewServer wraps a validated configuration. Each render request runs its own
// engine against a copy of it.
func NewServer(cfg *config.Config, log *slog.Logger, port int) *Server {
	return &Server{cfg: cfg, log: log, port: port}
}

// ProgressUpdate is one snapshot's result sent via SSE.
type ProgressUpdate struct {
	Snapshot       int     `json:"snapshot"`
	TotalSnapshots int     `json:"totalSnapshots"`
	ImageData      string  `json:"imageData"` // base64 PNG of the intensity image
	Levels         int     `json:"levels"`
	FluxSum        float64 `json:"fluxSum"`
	ElapsedMs      int64   `json:"elapsedMs"`
	IsComplete     bool    `json:"isComplete"`
}

// Handler builds the route table; Start serves it.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir("static/")))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/render", s.handleRender)
	return mux
}

// Start blocks serving HTTP on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.log.Info("starting monitor server", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleConfig reports the run parameters a client can display or override.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	response := map[string]interface{}{
		"model": s.cfg.Model.String(),
		"camera": map[string]interface{}{
			"type":       s.cfg.Camera.Type.String(),
			"r":          s.cfg.Camera.R,
			"th":         s.cfg.Camera.Th,
			"width":      s.cfg.Camera.Width,
			"resolution": s.cfg.Camera.Resolution,
		},
		"image": map[string]interface{}{
			"frequency":    s.cfg.Image.Frequency,
			"polarization": s.cfg.Image.Polarization,
		},
		"adaptive": map[string]interface{}{
			"maxLevel":  s.cfg.Adaptive.MaxLevel,
			"blockSize": s.cfg.Adaptive.BlockSize,
		},
		"snapshots": s.cfg.Snapshots,
		"spin":      s.cfg.Spin(),
		"limits": map[string]interface{}{
			"resolution": map[string]int{"min": 2, "max": 2048},
			"snapshots":  map[string]int{"min": 1, "max": 1000},
		},
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// handleRender runs the pipeline and streams one SSE update per snapshot.
// The client's disconnect cancels the run through the request context.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	cfg, err := s.requestConfig(r)
	if err != nil {
		s.sendSSEError(w, fmt.Sprintf("invalid request: %v", err))
		return
	}

	e, err := engine.New(cfg, s.log)
	if err != nil {
		s.sendSSEError(w, err.Error())
		return
	}

	start := time.Now()
	runErr := e.Run(r.Context(), func(res engine.SnapshotResult) {
		update, err := s.snapshotUpdate(cfg, e, res, start)
		if err != nil {
			s.log.Warn("dropping progress update", "error", err)
			return
		}
		if err := s.sendSSEUpdate(w, update); err != nil {
			s.log.Warn("client write failed", "error", err)
		}
	})
	if runErr != nil {
		s.sendSSEError(w, fmt.Sprintf("render error: %v", runErr))
		return
	}
	s.sendSSEEvent(w, "complete", "run completed")
}

// snapshotUpdate flattens the finished snapshot's intensity image and wraps
// it with its statistics.
func (s *Server) snapshotUpdate(cfg *config.Config, e *engine.Engine,
	res engine.SnapshotResult, start time.Time) (ProgressUpdate, error) {
	rad := e.Radiation()
	off := rad.Offsets()
	update := ProgressUpdate{
		Snapshot:       res.Snapshot,
		TotalSnapshots: cfg.Snapshots,
		Levels:         res.Levels,
		FluxSum:        res.FluxSum,
		ElapsedMs:      time.Since(start).Milliseconds(),
		IsComplete:     res.Last,
	}
	if off.Light < 0 {
		return update, nil
	}

	planes := make([][]float64, res.Levels)
	for l := range planes {
		numPix := len(rad.Image[l]) / off.NumQuantities
		planes[l] = rad.Image[l][off.Light*numPix : (off.Light+1)*numPix]
	}
	blockSize := 0
	if cfg.Adaptive.MaxLevel > 0 {
		blockSize = cfg.Adaptive.BlockSize
	}
	light, outRes := output.Composite(planes, e.Camera().BlockLocs, blockSize, cfg.Camera.Resolution)

	var buf bytes.Buffer
	if err := png.Encode(&buf, output.Colormap(light, outRes)); err != nil {
		return update, fmt.Errorf("encoding image: %w", err)
	}
	update.ImageData = base64.StdEncoding.EncodeToString(buf.Bytes())
	return update, nil
}

// requestConfig copies the run configuration and applies the client's
// overrides.
func (s *Server) requestConfig(r *http.Request) (*config.Config, error) {
	cfg := *s.cfg
	// Interactive runs never touch the run's artifacts or checkpoints.
	cfg.Output = config.OutputParams{}
	cfg.Checkpoint = config.CheckpointParams{}

	q := r.URL.Query()
	res, err := parseIntParam(q, "resolution", cfg.Camera.Resolution, 2, 2048)
	if err != nil {
		return nil, err
	}
	cfg.Camera.Resolution = res
	if cfg.Snapshots, err = parseIntParam(q, "snapshots", cfg.Snapshots, 1, 1000); err != nil {
		return nil, err
	}
	if cfg.Image.Frequency, err = parseFloatParam(q, "frequency", cfg.Image.Frequency, 1e6, 1e30); err != nil {
		return nil, err
	}
	if cfg.Adaptive.MaxLevel > 0 && res%cfg.Adaptive.BlockSize != 0 {
		return nil, fmt.Errorf("resolution %d incompatible with block size %d", res, cfg.Adaptive.BlockSize)
	}
	return &cfg, nil
}

// parseIntParam reads an integer query parameter with range validation.
func parseIntParam(values url.Values, key string, defaultValue, min, max int) (int, error) {
	value := values.Get(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", key, value)
	}
	if parsed < min || parsed > max {
		return 0, fmt.Errorf("%s must be between %d and %d, got %d", key, min, max, parsed)
	}
	return parsed, nil
}

// parseFloatParam reads a float query parameter with range validation.
func parseFloatParam(values url.Values, key string, defaultValue, min, max float64) (float64, error) {
	value := values.Get(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", key, value)
	}
	if parsed < min || parsed > max {
		return 0, fmt.Errorf("%s must be between %g and %g, got %g", key, min, max, parsed)
	}
	return parsed, nil
}

func (s *Server) sendSSEUpdate(w http.ResponseWriter, update ProgressUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return s.sendSSEEvent(w, "progress", string(data))
}

func (s *Server) sendSSEError(w http.ResponseWriter, message string) error {
	return s.sendSSEEvent(w, "error", message)
}

func (s *Server) sendSSEEvent(w http.ResponseWriter, event, data string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming not supported")
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
	return nil
}
