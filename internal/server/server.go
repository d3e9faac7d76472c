// Package server exposes the read-only HTTP API: per-trader status,
// decision history, and the competition leaderboard.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ai-trader-arena/internal/decisionlog"
	"ai-trader-arena/internal/logger"
	"ai-trader-arena/internal/manager"
	"ai-trader-arena/internal/trader"
)

type Server struct {
	manager *manager.Manager
	log     *decisionlog.Store
	http    *http.Server
}

func New(addr string, m *manager.Manager, log *decisionlog.Store) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{manager: m, log: log}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)
	api := r.Group("/api")
	{
		api.GET("/traders", s.traders)
		api.GET("/competition", s.competition)
		api.GET("/status", s.status)
		api.GET("/account", s.account)
		api.GET("/positions", s.positions)
		api.GET("/decisions", s.decisions)
		api.GET("/decisions/latest", s.latestDecision)
		api.GET("/performance", s.performance)
	}

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Info(ctx, "HTTP API listening", "addr", s.http.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) traders(c *gin.Context) {
	out := make([]trader.Status, 0)
	for _, t := range s.manager.Traders() {
		out = append(out, t.Status())
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) competition(c *gin.Context) {
	c.JSON(http.StatusOK, s.manager.Comparison(c.Request.Context()))
}

func (s *Server) status(c *gin.Context) {
	t, ok := s.resolveTrader(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, t.Status())
}

func (s *Server) account(c *gin.Context) {
	t, ok := s.resolveTrader(c)
	if !ok {
		return
	}
	acct, err := t.Account(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, acct)
}

func (s *Server) positions(c *gin.Context) {
	t, ok := s.resolveTrader(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, t.Status().Positions)
}

func (s *Server) decisions(c *gin.Context) {
	t, ok := s.resolveTrader(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := s.log.List(c.Request.Context(), t.TraderID(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) latestDecision(c *gin.Context) {
	t, ok := s.resolveTrader(c)
	if !ok {
		return
	}
	rec, err := s.log.Latest(c.Request.Context(), t.TraderID())
	if errors.Is(err, decisionlog.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no decisions yet"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) performance(c *gin.Context) {
	t, ok := s.resolveTrader(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, t.Performance())
}

// resolveTrader picks the trader from ?trader_id=; with a single
// registered trader the parameter may be omitted.
func (s *Server) resolveTrader(c *gin.Context) (*trader.Controller, bool) {
	id := c.Query("trader_id")
	if id == "" {
		traders := s.manager.Traders()
		if len(traders) == 1 {
			return traders[0], true
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "trader_id query parameter required"})
		return nil, false
	}
	t, ok := s.manager.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown trader " + id})
		return nil, false
	}
	return t, true
}
