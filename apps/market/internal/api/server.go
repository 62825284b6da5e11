package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the API server
type Server struct {
	orderHandler   *OrderHandler
	accountHandler *AccountHandler
	infoHandler    *InfoHandler
	gatherer       prometheus.Gatherer
	logger         *zap.Logger
	server         *http.Server
}

// NewServer creates a new API server
func NewServer(port int, orderHandler *OrderHandler, accountHandler *AccountHandler, infoHandler *InfoHandler, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	return &Server{
		orderHandler:   orderHandler,
		accountHandler: accountHandler,
		infoHandler:    infoHandler,
		gatherer:       gatherer,
		logger:         logger,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start starts the API server
func (s *Server) Start() error {
	s.server.Handler = s.Handler()

	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	return nil
}

// Stop stops the API server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")
	return s.server.Shutdown(ctx)
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.Use(s.loggingMiddleware)
	router.Use(s.corsMiddleware)

	router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()

	// Order endpoints
	api.HandleFunc("/orders/sell", s.orderHandler.CreateSellOrder).Methods("POST")
	api.HandleFunc("/orders/offer", s.orderHandler.CreateOfferOrder).Methods("POST")
	api.HandleFunc("/orders/signature", s.orderHandler.CheckSignature).Methods("POST")
	api.HandleFunc("/orders/sell/{contract}/{token_id}", s.orderHandler.ListSellOrders).Methods("GET")
	api.HandleFunc("/orders/offer/{contract}/{token_id}", s.orderHandler.ListOfferOrders).Methods("GET")
	api.HandleFunc("/orders/{id}", s.orderHandler.GetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/verify", s.orderHandler.VerifyOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/buy", s.orderHandler.BuyFromSell).Methods("POST")
	api.HandleFunc("/orders/{id}/accept", s.orderHandler.AcceptOffer).Methods("POST")
	api.HandleFunc("/orders/{id}/counter", s.orderHandler.CreateCounterOrder).Methods("POST")
	api.HandleFunc("/makers/{address}/orders", s.orderHandler.ListMakerOrders).Methods("GET")
	api.HandleFunc("/proxy/{address}", s.orderHandler.GetProxy).Methods("GET")

	// Account endpoints
	api.HandleFunc("/accounts/{address}", s.accountHandler.GetAccount).Methods("GET")

	// Info endpoint
	api.HandleFunc("/info", s.infoHandler.GetInfo).Methods("GET")

	// Health check endpoint
	api.HandleFunc("/health", s.healthCheck).Methods("GET")

	return router
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// corsMiddleware handles CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// healthCheck handles the health check endpoint
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to encode health check response", zap.Error(err))
	}
}
