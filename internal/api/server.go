// Package api implements the control surface: a gin HTTP server exposing
// start/stop, health, chain inspection and manual order/balance/leverage
// routes, plus a WebSocket broadcast of chain and decision events.
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"zonechain-engine/internal/auth"
	"zonechain-engine/internal/chain"
	"zonechain-engine/internal/events"
	"zonechain-engine/internal/exchange"
	"zonechain-engine/internal/logging"
	"zonechain-engine/internal/scheduler"
)

// requestLoggingMiddleware records method, path, status and elapsed time
// for every request through gin's handler chain.
func requestLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Default().
			WithField("method", c.Request.Method).
			WithField("path", c.Request.URL.Path).
			WithField("status_code", c.Writer.Status()).
			WithDuration(time.Since(start)).
			WithComponent("api").
			Info("request completed")
	}
}

// Server wires the chain store, scheduler and exchange client to the
// control HTTP surface.
type Server struct {
	engine    *gin.Engine
	store     *chain.Store
	scheduler *scheduler.Scheduler
	client    exchange.Client
	leverage  int
	hub       *Hub
}

// New builds a Server. authManager may be nil, in which case no guard is
// installed and every route is open, matching the single-operator default.
func New(store *chain.Store, sched *scheduler.Scheduler, client exchange.Client, bus *events.Bus, authManager *auth.Manager, leverage int, allowedOrigins string) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLoggingMiddleware())

	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{allowedOrigins},
		AllowMethods:     []string{"GET", "POST", "PUT"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	hub := NewHub()
	if bus != nil {
		bus.Subscribe(hub.onEvent)
	}

	s := &Server{
		engine:    engine,
		store:     store,
		scheduler: sched,
		client:    client,
		leverage:  leverage,
		hub:       hub,
	}
	s.registerRoutes(authManager)
	return s
}

func (s *Server) registerRoutes(authManager *auth.Manager) {
	guard := func(c *gin.Context) { c.Next() }
	if authManager != nil {
		guard = authManager.Middleware()
	}

	s.engine.GET("/trades/health-check", s.handleHealthCheck)
	s.engine.GET("/trades/chain", s.handleChain)
	s.engine.GET("/trades/chain/last", s.handleChainLast)
	s.engine.GET("/trades/balance", s.handleBalance)
	s.engine.GET("/trades/feed", s.handleFeed)

	s.engine.POST("/trades/start", guard, s.handleStart)
	s.engine.POST("/trades/stop", guard, s.handleStop)
	s.engine.POST("/trades/order/open", guard, s.handleOrderOpen)
	s.engine.POST("/trades/order/close", guard, s.handleOrderClose)
	s.engine.PUT("/trades/leverage", guard, s.handleLeverage)
}

// Run starts the HTTP listener, blocking until it returns an error (ListenAndServe never returns nil).
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

func (s *Server) handleStart(c *gin.Context) {
	s.scheduler.Start()
	c.Status(http.StatusOK)
}

func (s *Server) handleStop(c *gin.Context) {
	s.scheduler.Stop()
	c.Status(http.StatusOK)
}

func (s *Server) handleHealthCheck(c *gin.Context) {
	if s.scheduler.IsActive() {
		c.String(http.StatusOK, "status: UP")
		return
	}
	c.String(http.StatusOK, "status: DOWN")
}

func (s *Server) handleChain(c *gin.Context) {
	if !s.store.ValidateAll() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "chain integrity check failed"})
		return
	}
	c.JSON(http.StatusOK, s.store.All())
}

func (s *Server) handleChainLast(c *gin.Context) {
	symbol := c.Query("symbol")
	trade := s.store.Tail(symbol)
	if trade == nil {
		c.Status(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, trade)
}

func (s *Server) handleBalance(c *gin.Context) {
	balance, err := s.client.Balance(c.Request.Context(), "USDT")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (s *Server) handleOrderOpen(c *gin.Context) {
	var body struct {
		Side     string  `json:"side"`
		Symbol   string  `json:"symbol"`
		Quantity float64 `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	side := exchange.Side(body.Side)
	if side != exchange.Buy && side != exchange.Sell {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be BUY or SELL"})
		return
	}

	err := s.client.Order(c.Request.Context(), body.Symbol, side, body.Quantity, false)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) handleOrderClose(c *gin.Context) {
	if err := s.client.CloseAllPositions(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) handleLeverage(c *gin.Context) {
	symbol := c.Query("symbol")
	if err := s.client.SetLeverage(c.Request.Context(), symbol, s.leverage); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) handleFeed(c *gin.Context) {
	s.hub.ServeWS(c.Writer, c.Request)
}
