// Package api provides the HTTP and WebSocket server.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/atlas-desktop/adaptive-engine/internal/data"
	"github.com/atlas-desktop/adaptive-engine/internal/engine"
	"github.com/atlas-desktop/adaptive-engine/internal/events"
	"github.com/atlas-desktop/adaptive-engine/internal/performance"
	"github.com/atlas-desktop/adaptive-engine/internal/regime"
	"github.com/atlas-desktop/adaptive-engine/internal/risk"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
	"github.com/atlas-desktop/adaptive-engine/pkg/utils"
)

// Server is the HTTP/WebSocket API server.
type Server struct {
	logger     *zap.Logger
	config     *types.ServerConfig
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	hub        *Hub

	engine  *engine.Engine
	store   *data.Store
	tracker *performance.Tracker
	risk    *risk.Manager
	breaker *risk.CircuitBreaker
	bus     *events.EventBus

	started time.Time
}

// NewServer creates the API server and wires its routes.
func NewServer(logger *zap.Logger, config *types.ServerConfig, eng *engine.Engine, store *data.Store, tracker *performance.Tracker, riskMgr *risk.Manager, breaker *risk.CircuitBreaker, bus *events.EventBus) *Server {
	server := &Server{
		logger:  logger.Named("api"),
		config:  config,
		router:  mux.NewRouter(),
		hub:     NewHub(logger.Named("ws")),
		engine:  eng,
		store:   store,
		tracker: tracker,
		risk:    riskMgr,
		breaker: breaker,
		bus:     bus,
		started: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/v1/status", s.handleStatus).Methods("GET")

	s.router.HandleFunc("/api/v1/regime/{pair}", s.handleGetRegime).Methods("GET")
	s.router.HandleFunc("/api/v1/quality/{pair}", s.handleGetQuality).Methods("GET")
	s.router.HandleFunc("/api/v1/decisions", s.handleGetDecisions).Methods("GET")
	s.router.HandleFunc("/api/v1/decide/{pair}", s.handleDecide).Methods("POST")
	s.router.HandleFunc("/api/v1/ensemble/{pair}", s.handleGetEnsemble).Methods("GET")

	s.router.HandleFunc("/api/v1/risk", s.handleGetRisk).Methods("GET")
	s.router.HandleFunc("/api/v1/breaker/reset", s.handleResetBreaker).Methods("POST")

	s.router.HandleFunc("/api/v1/performance", s.handleGetAllPerformance).Methods("GET")
	s.router.HandleFunc("/api/v1/performance/{strategy}", s.handleGetPerformance).Methods("GET")
	s.router.HandleFunc("/api/v1/trades", s.handleRecordTrade).Methods("POST")

	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
	}

	s.router.HandleFunc(s.config.WebSocketPath, s.handleWebSocket)
}

// Start starts the HTTP server and the WebSocket hub.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	go s.hub.Run()
	if s.bus != nil {
		s.hub.BridgeEvents(s.bus)
	}

	s.logger.Info("starting API server", zap.String("addr", addr))

	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the mux router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	config := s.engine.Config()
	s.writeJSON(w, map[string]interface{}{
		"uptime":         time.Since(s.started).String(),
		"pairs":          config.Pairs,
		"timeframe":      config.Timeframe,
		"selection_mode": config.SelectionMode,
		"breaker":        s.breaker.Status(),
		"clients":        s.hub.ClientCount(),
		"bus":            s.bus.Stats(),
	})
}

func (s *Server) handleGetRegime(w http.ResponseWriter, r *http.Request) {
	pair := utils.FormatSymbol(mux.Vars(r)["pair"])

	snap, ok := s.engine.LastSnapshot(pair)
	if !ok {
		http.Error(w, "no analysis available for pair", http.StatusNotFound)
		return
	}

	s.writeJSON(w, map[string]interface{}{
		"pair":            pair,
		"snapshot":        snap,
		"recommendations": regime.Recommendations(snap),
		"adjustments":     regime.Adjust(snap),
	})
}

func (s *Server) handleGetQuality(w http.ResponseWriter, r *http.Request) {
	pair := utils.FormatSymbol(mux.Vars(r)["pair"])

	report, err := s.store.Quality(r.Context(), pair, s.engine.Config().Timeframe, s.lookbackParam(r))
	if err != nil {
		http.Error(w, "failed to load candles", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, report)
}

func (s *Server) handleGetDecisions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	decisions := s.engine.Decisions(limit)
	s.writeJSON(w, map[string]interface{}{
		"decisions": decisions,
		"count":     len(decisions),
	})
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	pair := utils.FormatSymbol(mux.Vars(r)["pair"])
	decision := s.engine.Decide(r.Context(), pair)
	s.writeJSON(w, decision)
}

func (s *Server) handleGetEnsemble(w http.ResponseWriter, r *http.Request) {
	pair := utils.FormatSymbol(mux.Vars(r)["pair"])

	weights := s.engine.Ensemble(pair)
	if len(weights) == 0 {
		http.Error(w, "no analysis available for pair", http.StatusNotFound)
		return
	}

	s.writeJSON(w, map[string]interface{}{
		"pair":    pair,
		"weights": weights,
	})
}

func (s *Server) handleGetRisk(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"portfolio": s.risk.Status(),
		"breaker":   s.breaker.Status(),
	})
}

func (s *Server) handleResetBreaker(w http.ResponseWriter, r *http.Request) {
	s.breaker.Reset()
	if s.bus != nil {
		s.bus.Publish(events.NewBreakerEvent(false, "manual reset"))
	}
	s.writeJSON(w, s.breaker.Status())
}

func (s *Server) handleGetAllPerformance(w http.ResponseWriter, r *http.Request) {
	lookback := s.lookbackParam(r)
	stats := s.tracker.AllStrategyStats(lookback)

	out := make(map[string]interface{}, len(stats))
	for name, st := range stats {
		out[name] = statsPayload(st)
	}
	s.writeJSON(w, out)
}

func (s *Server) handleGetPerformance(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["strategy"]
	lookback := s.lookbackParam(r)

	stats := s.tracker.StrategyStats(name, lookback)
	s.writeJSON(w, map[string]interface{}{
		"strategy": name,
		"lookback": lookback.String(),
		"stats":    statsPayload(stats),
	})
}

func (s *Server) handleRecordTrade(w http.ResponseWriter, r *http.Request) {
	var trade types.TradeRecord
	if err := json.NewDecoder(r.Body).Decode(&trade); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if trade.Pair == "" || trade.Strategy == "" {
		http.Error(w, "pair and strategy are required", http.StatusBadRequest)
		return
	}

	trade.Pair = utils.FormatSymbol(trade.Pair)
	s.engine.RecordTradeResult(trade)

	w.WriteHeader(http.StatusAccepted)
	s.writeJSON(w, map[string]string{"status": "recorded"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.New().String(), s.hub, conn)
	s.hub.register <- client

	s.logger.Info("websocket client connected", zap.String("id", client.id))

	go client.ReadPump()
	go client.WritePump()
}

func (s *Server) lookbackParam(r *http.Request) time.Duration {
	lookback := 7 * 24 * time.Hour
	if raw := r.URL.Query().Get("lookback"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			lookback = d
		}
	}
	return lookback
}

func (s *Server) writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

// statsPayload flattens derived stats into a JSON-friendly map.
func statsPayload(st performance.Stats) map[string]interface{} {
	return map[string]interface{}{
		"total_trades":  st.TotalTrades,
		"wins":          st.WinningTrades,
		"losses":        st.LosingTrades,
		"win_rate":      st.WinRate(),
		"profit_factor": st.ProfitFactor(),
		"avg_profit":    st.AvgProfit(),
		"avg_loss":      st.AvgLoss(),
		"expectancy":    st.Expectancy(),
		"sharpe":        st.SharpeApprox(),
		"total_profit":  st.TotalProfit,
		"total_loss":    st.TotalLoss,
		"max_win":       st.MaxWin,
		"max_loss":      st.MaxLoss,
		"avg_hold":      utils.FormatDuration(st.AvgHold),
	}
}
