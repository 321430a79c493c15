// Package api exposes the persisted chain metrics over HTTP: the per-chain
// listing, the family-class summary, a refresh trigger, and a websocket feed
// of run progress.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"chainpulse/internal/domain"
	"chainpulse/internal/observability"
	"chainpulse/internal/storage"
)

// Options for creating a Server.
type Options struct {
	// Store is read for the listing and summary endpoints. Required.
	Store storage.MetricsStore

	// Refresh, when set, starts a measurement sweep for POST /api/refresh.
	// It runs on its own goroutine; only one sweep at a time.
	Refresh func() error

	Logger *log.Logger

	// AllowedOrigin is the CORS origin header value. Defaults to "*".
	AllowedOrigin string
}

// Server handles the read API.
type Server struct {
	opts     Options
	upgrader websocket.Upgrader

	mu             sync.Mutex
	clients        map[*websocket.Conn]bool
	refreshRunning bool
}

// New creates a Server.
func New(opts Options) *Server {
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[api] ", log.LstdFlags)
	}
	return &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]bool),
	}
}

// Routes returns the handler tree with CORS applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chains", s.handleChains)
	mux.HandleFunc("/api/summary", s.handleSummary)
	mux.HandleFunc("/api/refresh", s.handleRefresh)
	mux.HandleFunc("/ws/progress", s.handleProgress)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", observability.Handler())
	return s.cors(mux)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.opts.AllowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// chainView is one listing row: the persisted record plus the derived
// family-class tag the frontend filters on.
type chainView struct {
	domain.ChainMetricsRecord
	Type string `json:"type"`
}

// isEVMChainID reports whether the id follows the account-model convention
// of an integer-looking chain id.
func isEVMChainID(id string) bool {
	if id == "" {
		return false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := s.opts.Store.List(r.Context())
	if err != nil {
		s.opts.Logger.Printf("list chains: %v", err)
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}

	views := make([]chainView, 0, len(records))
	for _, rec := range records {
		view := chainView{ChainMetricsRecord: *rec, Type: "Non-EVM"}
		if isEVMChainID(rec.ChainID) {
			view.Type = "EVM"
		}
		views = append(views, view)
	}
	writeJSON(w, views)
}

// classSummary aggregates one family class.
type classSummary struct {
	TPS     float64 `json:"tps"`
	History float64 `json:"history"`
	Count   int     `json:"count"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := s.opts.Store.List(r.Context())
	if err != nil {
		s.opts.Logger.Printf("summary: %v", err)
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}

	summary := map[string]*classSummary{
		"evm":     {},
		"non_evm": {},
	}
	for _, rec := range records {
		class := summary["non_evm"]
		if isEVMChainID(rec.ChainID) {
			class = summary["evm"]
		}
		if rec.TPS10Min != nil {
			class.TPS += *rec.TPS10Min
		}
		if rec.TotalTxCount != nil {
			class.History += *rec.TotalTxCount
		}
		class.Count++
	}
	writeJSON(w, summary)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.opts.Refresh == nil {
		http.Error(w, "refresh not configured", http.StatusNotImplemented)
		return
	}

	s.mu.Lock()
	if s.refreshRunning {
		s.mu.Unlock()
		http.Error(w, "refresh already running", http.StatusConflict)
		return
	}
	s.refreshRunning = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.refreshRunning = false
			s.mu.Unlock()
		}()
		if err := s.opts.Refresh(); err != nil {
			s.opts.Logger.Printf("refresh: %v", err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"status": "started"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// progressEvent is the websocket frame sent after each target completes.
type progressEvent struct {
	Done  int64 `json:"done"`
	Total int64 `json:"total"`
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.opts.Logger.Printf("ws upgrade: %v", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	// Read loop exists only to detect the close; inbound frames are ignored.
	go func() {
		defer s.dropClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// BroadcastProgress pushes a progress frame to every connected client,
// dropping clients whose writes fail.
func (s *Server) BroadcastProgress(done, total int64) {
	payload, err := json.Marshal(progressEvent{Done: done, Total: total})
	if err != nil {
		return
	}

	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.dropClient(conn)
		}
	}
}

func (s *Server) dropClient(conn *websocket.Conn) {
	s.mu.Lock()
	if s.clients[conn] {
		delete(s.clients, conn)
		conn.Close()
	}
	s.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
