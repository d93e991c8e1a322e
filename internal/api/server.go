package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"trade_sync/internal/domain"
	"trade_sync/internal/service"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Server exposes the read query surface, the manual sync trigger, the
// health endpoint, and the websocket fan-out.
type Server struct {
	svc    *service.SyncService
	router *mux.Router
	hub    *Hub
	http   *http.Server
	logger *slog.Logger
}

// NewServer creates the API server around a sync coordinator.
func NewServer(svc *service.SyncService, hub *Hub) *Server {
	s := &Server{
		svc:    svc,
		router: mux.NewRouter(),
		hub:    hub,
		logger: slog.Default().With("module", "api"),
	}
	s.setupRoutes()
	return s
}

// Hub returns the fan-out hub, for wiring as the coordinator's publisher.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/trades", s.handleGetTrades).Methods("GET")
	api.HandleFunc("/trades/stats", s.handleGetTradeStats).Methods("GET")
	api.HandleFunc("/positions", s.handleGetPositions).Methods("GET")
	api.HandleFunc("/sync", s.handleTriggerSync).Methods("POST")

	s.router.HandleFunc("/ws", s.hub.serveWS)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string, allowedOrigins []string) error {
	go s.hub.Run(ctx)

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.http = &http.Server{
		Addr:    addr,
		Handler: c.Handler(s.router),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.http.Shutdown(shutdownCtx)
	}()

	s.logger.Info("API server starting", slog.String("addr", addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	filter := tradeFilterFromQuery(r)

	trades, err := s.svc.GetTrades(filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "query failed", err.Error())
		return
	}

	respondJSON(w, map[string]any{
		"trades": trades,
		"count":  len(trades),
	})
}

func (s *Server) handleGetTradeStats(w http.ResponseWriter, r *http.Request) {
	filter := tradeFilterFromQuery(r)

	stats, err := s.svc.GetTradeStats(filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "query failed", err.Error())
		return
	}

	respondJSON(w, stats)
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.svc.GetOpenPositions()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "query failed", err.Error())
		return
	}

	respondJSON(w, map[string]any{
		"positions": positions,
		"count":     len(positions),
	})
}

func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	// The sync runs detached from the request context so a closed client
	// connection cannot cancel it mid-flight.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.svc.TriggerSync(ctx); err != nil {
			s.logger.Warn("Manual sync failed", slog.Any("error", err))
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "sync started"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.svc.Status())
}

// ==============================
// Helpers
// ==============================

func tradeFilterFromQuery(r *http.Request) domain.TradeFilter {
	q := r.URL.Query()

	filter := domain.TradeFilter{
		Underlying: q.Get("underlying"),
		Status:     q.Get("status"),
		Limit:      50,
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 && v <= 500 {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		filter.Offset = v
	}
	return filter
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Response encode failed", slog.Any("error", err))
	}
}

func respondError(w http.ResponseWriter, status int, message, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":  message,
		"detail": detail,
	})
}
