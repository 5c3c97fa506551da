package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pdf-compressor-go/internal/config"
	"pdf-compressor-go/internal/engine"
	"pdf-compressor-go/internal/metadata"
	"pdf-compressor-go/internal/preset"
	"pdf-compressor-go/internal/scan"
	"pdf-compressor-go/internal/statistics"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Server exposes the compression engine over HTTP with websocket progress
// updates during batch runs.
type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	eng        *engine.Engine
	inspector  *metadata.Inspector
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.RWMutex

	// Current operation state
	operationMutex sync.RWMutex
	isRunning      bool
	cancelBatch    context.CancelFunc
	currentStats   *statistics.Statistics
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type CompressRequest struct {
	Paths          []string `json:"paths"`
	OutputDir      string   `json:"output_dir,omitempty"`
	Quality        string   `json:"quality,omitempty"`
	MaxDPI         int      `json:"max_dpi,omitempty"`
	ImageQuality   int      `json:"image_quality,omitempty"`
	UseGhostscript *bool    `json:"use_ghostscript,omitempty"`
	UseQPDF        *bool    `json:"use_qpdf,omitempty"`
}

type FileProgress struct {
	InputPath    string  `json:"input_path"`
	OutputPath   string  `json:"output_path"`
	Status       string  `json:"status"`
	Backend      string  `json:"backend,omitempty"`
	OriginalSize int64   `json:"original_size"`
	FinalSize    int64   `json:"final_size"`
	SavedPercent float64 `json:"saved_percent"`
	Detail       string  `json:"detail,omitempty"`
}

type DirectoryInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	IsDirectory  bool   `json:"is_directory"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewServer creates the web server around an engine instance.
func NewServer(cfg *config.Config, log *logrus.Logger, eng *engine.Engine, inspector *metadata.Inspector) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		eng:       eng,
		inspector: inspector,
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/backends", s.handleBackends).Methods("GET")
	api.HandleFunc("/backends/refresh", s.handleRefreshBackends).Methods("POST")
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")
	api.HandleFunc("/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/inspect", s.handleInspect).Methods("GET")
	api.HandleFunc("/directories", s.handleListDirectories).Methods("GET")
	api.HandleFunc("/statistics", s.handleGetStatistics).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.PathPrefix("/static/").Handler(
		http.StripPrefix("/static/", http.FileServer(http.Dir("web/static/"))),
	)

	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, "web/templates/index.html")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	stats := s.currentStats
	s.operationMutex.RUnlock()

	var statsData interface{}
	if stats != nil {
		statsData = map[string]interface{}{
			"summary": stats.GetSummary(),
		}
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":    running,
			"statistics": statsData,
		},
	})
}

func (s *Server) handleBackends(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    s.eng.ProbeBackends(r.Context()),
	})
}

func (s *Server) handleRefreshBackends(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	s.operationMutex.RUnlock()
	if running {
		s.writeError(w, "Cannot refresh backends while a batch is running", http.StatusConflict)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    s.eng.RefreshBackends(r.Context()),
	})
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	var req CompressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if len(req.Paths) == 0 {
		s.writeError(w, "At least one input path is required", http.StatusBadRequest)
		return
	}

	requests, err := s.buildRequests(req)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(requests) == 0 {
		s.writeError(w, "No PDF files found under the given paths", http.StatusBadRequest)
		return
	}

	if !s.beginOperation() {
		s.writeError(w, "Operation already in progress", http.StatusConflict)
		return
	}

	go s.runBatchAsync(requests)

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Compression started for %d file(s)", len(requests)),
	})
}

// buildRequests translates the API payload into engine requests, applying
// configuration defaults for anything not set on the request.
func (s *Server) buildRequests(req CompressRequest) ([]engine.Request, error) {
	files, err := scan.CollectPDFs(req.Paths)
	if err != nil {
		return nil, err
	}

	tier := s.cfg.Tier()
	if req.Quality != "" {
		tier, err = preset.ParseTier(req.Quality)
		if err != nil {
			return nil, err
		}
	}

	overrides := s.cfg.Overrides()
	if req.MaxDPI > 0 {
		dpi := req.MaxDPI
		overrides.MaxDPI = &dpi
	}
	if req.ImageQuality > 0 {
		q := req.ImageQuality
		overrides.ImageQuality = &q
	}

	useGS := s.cfg.Compression.UseGhostscript
	if req.UseGhostscript != nil {
		useGS = *req.UseGhostscript
	}
	useQPDF := s.cfg.Compression.UseQPDF
	if req.UseQPDF != nil {
		useQPDF = *req.UseQPDF
	}

	requests := make([]engine.Request, 0, len(files))
	for _, f := range files {
		requests = append(requests, engine.Request{
			InputPath:      f,
			OutputPath:     scan.OutputPath(f, req.OutputDir, s.cfg.Compression.OutputSuffix),
			Tier:           tier,
			Overrides:      overrides,
			UseGhostscript: useGS,
			UseQPDF:        useQPDF,
			AllowFallback:  s.cfg.Compression.AllowFallback,
		})
	}
	return requests, nil
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.Lock()
	if s.cancelBatch != nil {
		s.cancelBatch()
	}
	s.operationMutex.Unlock()

	s.broadcastWSMessage("operation_stopped", map[string]interface{}{
		"message": "Operation stopped by user",
	})

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Operation stopped",
	})
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.writeError(w, "path query parameter is required", http.StatusBadRequest)
		return
	}

	info, err := s.inspector.Inspect(path)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to inspect file: %v", err), http.StatusBadRequest)
		return
	}

	s.writeJSON(w, APIResponse{Success: true, Data: info})
}

func (s *Server) handleListDirectories(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "."
	}

	// Security check - prevent directory traversal
	path = filepath.Clean(path)
	if strings.Contains(path, "..") {
		s.writeError(w, "Invalid path", http.StatusBadRequest)
		return
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to read directory: %v", err), http.StatusInternalServerError)
		return
	}

	var directories []DirectoryInfo
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}

		fullPath := filepath.Join(path, entry.Name())
		directories = append(directories, DirectoryInfo{
			Path:         fullPath,
			Name:         entry.Name(),
			IsDirectory:  entry.IsDir(),
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format(time.RFC3339),
		})
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    directories,
	})
}

func (s *Server) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	stats := s.currentStats
	s.operationMutex.RUnlock()

	if stats == nil {
		s.writeJSON(w, APIResponse{
			Success: true,
			Data:    nil,
		})
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"summary":  stats.GetSummary(),
			"backends": stats.GetBackendBreakdown(),
			"errors":   stats.GetErrorSummary(),
		},
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

// beginOperation atomically claims the single operation slot. The flag is
// set before the batch goroutine spawns, so a second compress request or a
// backend refresh can never interleave with a starting batch.
func (s *Server) beginOperation() bool {
	s.operationMutex.Lock()
	defer s.operationMutex.Unlock()
	if s.isRunning {
		return false
	}
	s.isRunning = true
	return true
}

// endOperation releases the operation slot claimed by beginOperation.
func (s *Server) endOperation() {
	s.operationMutex.Lock()
	s.isRunning = false
	s.cancelBatch = nil
	s.operationMutex.Unlock()
}

// runBatchAsync runs one batch; the caller must have claimed the operation
// slot via beginOperation.
func (s *Server) runBatchAsync(requests []engine.Request) {
	ctx, cancel := context.WithCancel(context.Background())

	s.operationMutex.Lock()
	s.cancelBatch = cancel
	s.currentStats = statistics.NewStatistics()
	stats := s.currentStats
	s.operationMutex.Unlock()

	defer cancel()

	for range requests {
		stats.IncrementFilesFound()
	}

	s.broadcastWSMessage("compress_started", map[string]interface{}{
		"files": len(requests),
	})

	result := s.eng.CompressBatch(ctx, requests, s.cfg.Performance.WorkerThreads, func(outcome engine.Outcome) {
		stats.RecordOutcomeCounts(string(outcome.Status))
		stats.AddBytes(outcome.OriginalSize, outcome.FinalSize)
		failed := 0
		for _, att := range outcome.Attempts {
			if att.Failed() {
				failed++
			}
		}
		stats.AddAttempts(len(outcome.Attempts), failed)

		progress := FileProgress{
			InputPath:    outcome.InputPath,
			OutputPath:   outcome.OutputPath,
			Status:       string(outcome.Status),
			OriginalSize: outcome.OriginalSize,
			FinalSize:    outcome.FinalSize,
			SavedPercent: outcome.SavedPercent(),
			Detail:       outcome.Detail,
		}
		if outcome.Winning != nil {
			progress.Backend = outcome.Winning.Backend
			stats.RecordBackendWin(outcome.Winning.Backend)
		}
		if outcome.Status != engine.StatusSuccess && outcome.Status != engine.StatusNoImprovement {
			stats.AddError(outcome.InputPath, "compress", outcome.Detail)
		}
		if outcome.Status == engine.StatusNoImprovement {
			if err := engine.CopyOriginal(outcome.InputPath, outcome.OutputPath); err != nil {
				s.log.Warnf("keeping original for %s failed: %v", outcome.InputPath, err)
			}
		}
		s.broadcastWSMessage("file_completed", progress)
	})

	stats.Finalize()

	s.endOperation()

	s.broadcastWSMessage("compress_completed", map[string]interface{}{
		"statistics": stats.GetSummary(),
		"succeeded":  result.Succeeded,
		"failed":     result.Failed,
	})
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	s.wsMutex.RLock()
	defer s.wsMutex.RUnlock()

	for conn := range s.wsClients {
		err := conn.WriteMessage(websocket.TextMessage, msgBytes)
		if err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			// Remove failed connection
			go func(c *websocket.Conn) {
				s.wsMutex.Lock()
				delete(s.wsClients, c)
				s.wsMutex.Unlock()
				c.Close()
			}(conn)
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
