package monitor

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/velodyne.report/internal/httputil"
	"github.com/banshee-data/velodyne.report/internal/lidar"
	"github.com/banshee-data/velodyne.report/internal/lidar/lidardb"
	"github.com/banshee-data/velodyne.report/internal/lidar/pipeline"
	"github.com/banshee-data/velodyne.report/internal/version"
)

//go:embed status.html
var statusFS embed.FS

var statusTemplate = template.Must(template.ParseFS(statusFS, "status.html"))

// PipelineStatus is the read side of the decode pipeline shown on the
// status page.
type PipelineStatus interface {
	State() pipeline.State
	Counters() (packets, rejected uint64)
}

// WebServer serves health, statistics and debug views of the decoder.
// It is also a batch sink: each decoded batch is copied so the latest one
// can be served.
type WebServer struct {
	address         string
	stats           *lidar.PacketStats
	pipeline        PipelineStatus
	db              *lidardb.LidarDB
	frameID         string
	udpAddress      string
	forwardAddress  string
	calibrationPath string
	server          *http.Server

	mu      sync.RWMutex
	latest  lidar.PointBatch
	batches uint64
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address         string
	Stats           *lidar.PacketStats
	Pipeline        PipelineStatus
	DB              *lidardb.LidarDB
	FrameID         string
	UDPAddress      string
	ForwardAddress  string
	CalibrationPath string
}

// NewWebServer creates a web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	stats := config.Stats
	if stats == nil {
		stats = lidar.NewPacketStats()
	}
	ws := &WebServer{
		address:         config.Address,
		stats:           stats,
		pipeline:        config.Pipeline,
		db:              config.DB,
		frameID:         config.FrameID,
		udpAddress:      config.UDPAddress,
		forwardAddress:  config.ForwardAddress,
		calibrationPath: config.CalibrationPath,
		latest:          lidar.PointBatch{Points: make([]lidar.Point3D, 0, lidar.SamplesPerPacket)},
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           ws.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws
}

// HandleBatch keeps a copy of the most recent non-empty batch.
func (ws *WebServer) HandleBatch(batch lidar.PointBatch) error {
	if batch.Empty() {
		return nil
	}
	ws.mu.Lock()
	batch.CopyInto(&ws.latest)
	ws.batches++
	ws.mu.Unlock()
	return nil
}

// LatestBatch returns a copy of the most recent batch, or false if none has
// been seen.
func (ws *WebServer) LatestBatch() (lidar.PointBatch, bool) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	if ws.batches == 0 {
		return lidar.PointBatch{}, false
	}
	return ws.latest.Clone(), true
}

// Handler builds the route table.
func (ws *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/api/stats", ws.handleStats)
	mux.HandleFunc("/api/batch/latest", ws.handleLatestBatch)
	mux.HandleFunc("/debug/points", ws.handlePointsChart)
	mux.HandleFunc("/debug/points.png", ws.handlePointsPNG)

	if ws.db != nil {
		mux.HandleFunc("/api/batches", ws.handleRecentBatches)
		if err := ws.db.AttachAdminRoutes(mux); err != nil {
			lidar.Opsf("admin routes disabled: %v", err)
		}
	}
	return mux
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ws.address)
	if err != nil {
		return err
	}
	return ws.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (ws *WebServer) Serve(ctx context.Context, ln net.Listener) error {
	errc := make(chan error, 1)
	go func() {
		lidar.Opsf("HTTP server listening on %s", ln.Addr())
		errc <- ws.server.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	lidar.Diagf("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		lidar.Opsf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			lidar.Opsf("HTTP server force close error: %v", err)
		}
	}
	return nil
}

func (ws *WebServer) pipelineState() string {
	if ws.pipeline == nil {
		return "unknown"
	}
	return ws.pipeline.State().String()
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"service":   "velodyne",
		"pipeline":  ws.pipelineState(),
		"version":   version.Version,
		"git_sha":   version.GitSHA,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type statsResponse struct {
	Uptime   string               `json:"uptime"`
	Pipeline string               `json:"pipeline"`
	Packets  uint64               `json:"pipeline_packets"`
	Rejected uint64               `json:"pipeline_rejected"`
	Batches  uint64               `json:"batches_seen"`
	Latest   *lidar.StatsSnapshot `json:"latest,omitempty"`
}

func (ws *WebServer) statsResponse() statsResponse {
	resp := statsResponse{
		Uptime:   ws.stats.Uptime().Round(time.Second).String(),
		Pipeline: ws.pipelineState(),
		Latest:   ws.stats.LatestSnapshot(),
	}
	if ws.pipeline != nil {
		resp.Packets, resp.Rejected = ws.pipeline.Counters()
	}
	ws.mu.RLock()
	resp.Batches = ws.batches
	ws.mu.RUnlock()
	return resp
}

func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodGet) {
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, ws.statsResponse())
}

func (ws *WebServer) handleLatestBatch(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodGet) {
		return
	}
	batch, ok := ws.LatestBatch()
	if !ok {
		httputil.WriteJSONError(w, http.StatusNotFound, "no batch decoded yet")
		return
	}
	resp := struct {
		Summary BatchSummary    `json:"summary"`
		Points  []lidar.Point3D `json:"points,omitempty"`
	}{Summary: Summarize(batch)}
	if r.URL.Query().Get("points") == "true" {
		resp.Points = batch.Points
	}
	_ = httputil.WriteJSON(w, http.StatusOK, resp)
}

func (ws *WebServer) handleRecentBatches(w http.ResponseWriter, r *http.Request) {
	if !httputil.AllowMethods(w, r, http.MethodGet) {
		return
	}
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v < 1 || v > 1000 {
			httputil.WriteJSONError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = v
	}
	records, err := ws.db.RecentBatches(limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "failed to list batches: %v", err)
		return
	}
	if records == nil {
		records = []lidardb.BatchRecord{}
	}
	_ = httputil.WriteJSON(w, http.StatusOK, records)
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	forwarding := "disabled"
	if ws.forwardAddress != "" {
		forwarding = "enabled (" + ws.forwardAddress + ")"
	}
	stats := ws.statsResponse()
	data := struct {
		FrameID         string
		UDPAddress      string
		HTTPAddress     string
		CalibrationPath string
		Forwarding      string
		Version         string
		Stats           statsResponse
		Formatted       string
		Persisting      bool
	}{
		FrameID:         ws.frameID,
		UDPAddress:      ws.udpAddress,
		HTTPAddress:     ws.address,
		CalibrationPath: ws.calibrationPath,
		Forwarding:      forwarding,
		Version:         version.Version,
		Stats:           stats,
		Persisting:      ws.db != nil,
	}
	if stats.Latest != nil {
		data.Formatted = lidar.FormatSnapshot(*stats.Latest)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusTemplate.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
	}
}
