package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/deskwidgets/internal/api/middleware"
	"github.com/GriffinCanCode/deskwidgets/internal/domain/instance"
	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/types"
)

// widgetView is a catalogue row as served to tray and search listings
type widgetView struct {
	types.WidgetMetadata
	Pinned  bool   `json:"pinned"`
	Breaker string `json:"breaker,omitempty"`
}

func (h *Host) startDiagnostics() error {
	ln, err := net.Listen("tcp", h.cfg.Diagnostics.Addr)
	if err != nil {
		return fmt.Errorf("diagnostics listen %s: %w", h.cfg.Diagnostics.Addr, err)
	}
	h.diagAddr = ln.Addr()
	h.diag = &http.Server{
		Handler:           h.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := h.diag.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.log.Error("diagnostics server", zap.Error(err))
		}
	}()
	h.log.Info("diagnostics listening", zap.Stringer("addr", h.diagAddr))
	return nil
}

func (h *Host) router() *gin.Engine {
	if !h.cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(h.metrics))
	router.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: h.cfg.Diagnostics.RequestsPerSecond,
		Burst:             h.cfg.Diagnostics.Burst,
		OnReject: func(c *gin.Context) {
			h.log.Debug("diagnostics request throttled", zap.String("client", c.ClientIP()))
		},
	}))

	router.GET("/health", h.health)
	router.GET("/widgets", h.listWidgets)
	router.GET("/widgets/:id", h.getWidget)
	router.GET("/instances", h.listInstances)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.reg, promhttp.HandlerOpts{})))
	return router
}

func (h *Host) health(c *gin.Context) {
	ran, panics := h.loop.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"owner":     h.coordinator != nil && h.coordinator.Owner(),
		"registry":  h.registry.Stats(),
		"instances": h.instances.Stats(),
		"dispatcher": gin.H{
			"ran":    ran,
			"panics": panics,
		},
	})
}

func (h *Host) listWidgets(c *gin.Context) {
	all := h.registry.All()
	views := make([]widgetView, 0, len(all))
	for _, meta := range all {
		views = append(views, h.widgetView(meta))
	}
	c.JSON(http.StatusOK, gin.H{
		"widgets":    views,
		"rejections": h.registry.Rejections(),
	})
}

func (h *Host) getWidget(c *gin.Context) {
	meta, err := h.resolve(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.widgetView(meta))
}

func (h *Host) widgetView(meta types.WidgetMetadata) widgetView {
	v := widgetView{WidgetMetadata: meta, Pinned: h.pins.IsPinnedDesktop(meta.ID)}
	if meta.RequiresNetwork {
		v.Breaker = h.gate.BreakerState(meta.ID).String()
	}
	return v
}

func (h *Host) listInstances(c *gin.Context) {
	insts := h.instances.List()
	views := make([]instance.View, 0, len(insts))
	for _, inst := range insts {
		views = append(views, inst.Snapshot())
	}
	c.JSON(http.StatusOK, gin.H{
		"instances": views,
		"stats":     h.instances.Stats(),
	})
}
