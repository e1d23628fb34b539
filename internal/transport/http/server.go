package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"btcpulse/internal/analysis/indicator"
	"btcpulse/internal/store"
	"btcpulse/internal/syncer"
)

// Server 提供 Gin 接口：仪表盘首页、序列/状态/指标查询、同步控制。
type Server struct {
	addr      string
	engine    *syncer.Engine
	series    store.SeriesStore
	indicator indicator.Settings
	router    *gin.Engine
}

type Config struct {
	Addr      string
	Engine    *syncer.Engine
	Series    store.SeriesStore
	Indicator indicator.Settings
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine 不能为空")
	}
	if cfg.Series == nil {
		return nil, errors.New("series store 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8088"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:      cfg.Addr,
		engine:    cfg.Engine,
		series:    cfg.Series,
		indicator: cfg.Indicator,
		router:    router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/", s.handleIndex)
	api := s.router.Group("/api")
	api.GET("/series", s.handleSeries)
	api.GET("/status", s.handleStatus)
	api.GET("/indicators", s.handleIndicators)
	api.GET("/heatmap", s.handleHeatmap)
	api.POST("/refresh", s.handleRefresh)
	api.POST("/enable", s.handleEnable)
	api.POST("/disable", s.handleDisable)
}

// handleIndex 渲染仪表盘页面：K 线 + 日收益热力图。
func (s *Server) handleIndex(c *gin.Context) {
	series := s.engine.Series()
	days := indicator.DailyStats(series, time.UTC)
	page := dashboardPage(series, days, s.engine.Status())
	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := page.Render(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) handleSeries(c *gin.Context) {
	var start, end time.Time
	if v, _ := strconv.ParseInt(c.Query("start_ts"), 10, 64); v > 0 {
		start = time.Unix(v, 0).UTC()
	}
	if v, _ := strconv.ParseInt(c.Query("end_ts"), 10, 64); v > 0 {
		end = time.Unix(v, 0).UTC()
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "500"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit 非法"})
		return
	}
	bars, err := s.series.Window(c.Request.Context(), start, end, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bars": bars, "count": len(bars)})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": s.engine.Status()})
}

func (s *Server) handleIndicators(c *gin.Context) {
	rep, err := indicator.Compute(s.engine.Series(), s.indicator)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"indicators": rep})
}

func (s *Server) handleHeatmap(c *gin.Context) {
	days := indicator.DailyStats(s.engine.Series(), time.UTC)
	c.JSON(http.StatusOK, gin.H{"days": days})
}

func (s *Server) handleRefresh(c *gin.Context) {
	if err := s.engine.Refresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "status": s.engine.Status()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": s.engine.Status()})
}

func (s *Server) handleEnable(c *gin.Context) {
	if err := s.engine.Enable(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": s.engine.Status()})
}

func (s *Server) handleDisable(c *gin.Context) {
	if err := s.engine.Disable(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": s.engine.Status()})
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
