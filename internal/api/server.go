package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fundingflow/config"
	"fundingflow/internal/aggregate"
	"fundingflow/internal/models"
	"fundingflow/logger"
)

// Aggregator is the query surface the HTTP layer exposes.
type Aggregator interface {
	Aggregate(ctx context.Context, req aggregate.Request) (aggregate.Response, error)
	ExchangeFunding(ctx context.Context, ex models.Exchange, req aggregate.Request) (aggregate.Response, error)
	Tickers(ctx context.Context) ([]string, error)
	Coins(keyword string) []aggregate.Coin
}

// Server serves the funding query API.
type Server struct {
	agg  Aggregator
	addr string
	srv  *http.Server
	log  *logger.Entry
}

func NewServer(cfg config.APIConfig, agg Aggregator) *Server {
	return &Server{
		agg:  agg,
		addr: cfg.Addr,
		log:  logger.GetLogger().WithComponent("api"),
	}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		v1.GET("/aggregated-funding", s.handleAggregatedFunding)
		v1.GET("/funding/:exchange", s.handleExchangeFunding)
		v1.GET("/tickers", s.handleTickers)
		v1.GET("/coins", s.handleCoins)
	}

	return r
}

func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:    s.addr,
		Handler: s.Router(),
	}

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("http server failed")
		}
	}()

	s.log.WithFields(logger.Fields{"addr": s.addr}).Info("api server started")
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.IncrementAPIRequest()
		s.log.WithFields(logger.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("request handled")
	}
}

func abortWithError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"code": status, "message": msg})
}

// parseRequest reads the shared query parameters of the funding routes.
func parseRequest(c *gin.Context) (aggregate.Request, bool) {
	req := aggregate.Request{
		Timeframe: c.DefaultQuery("time", "1h"),
		SortOrder: c.DefaultQuery("sort_order", "asc"),
		Keyword:   c.Query("keyword"),
	}

	var err error
	if req.Page, err = strconv.Atoi(c.DefaultQuery("page", "1")); err != nil {
		abortWithError(c, http.StatusBadRequest, "page must be an integer")
		return req, false
	}
	if req.Limit, err = strconv.Atoi(c.DefaultQuery("limit", "10")); err != nil {
		abortWithError(c, http.StatusBadRequest, "limit must be an integer")
		return req, false
	}
	return req, true
}

func (s *Server) handleAggregatedFunding(c *gin.Context) {
	req, ok := parseRequest(c)
	if !ok {
		return
	}

	resp, err := s.agg.Aggregate(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleExchangeFunding(c *gin.Context) {
	ex, ok := models.ParseExchange(c.Param("exchange"))
	if !ok {
		abortWithError(c, http.StatusBadRequest, "unknown exchange "+c.Param("exchange"))
		return
	}

	req, reqOK := parseRequest(c)
	if !reqOK {
		return
	}

	resp, err := s.agg.ExchangeFunding(c.Request.Context(), ex, req)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleTickers(c *gin.Context) {
	req, ok := parseRequest(c)
	if !ok {
		return
	}

	tickers, err := s.agg.Tickers(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickers": paginate(tickers, req.Page, req.Limit)})
}

func (s *Server) handleCoins(c *gin.Context) {
	req, ok := parseRequest(c)
	if !ok {
		return
	}

	coins := s.agg.Coins(req.Keyword)
	c.JSON(http.StatusOK, gin.H{"coins": paginate(coins, req.Page, req.Limit)})
}

// paginate slices out one page, clamped so out-of-range pages yield an empty
// array rather than null.
func paginate[T any](items []T, page, limit int) []T {
	if page < 1 || limit < 1 {
		return []T{}
	}
	start := (page - 1) * limit
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	out := items[start:end]
	if out == nil {
		out = []T{}
	}
	return out
}
