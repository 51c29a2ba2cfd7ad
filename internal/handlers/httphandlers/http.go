package httphandlers

import (
	"errors"
	"net/http/pprof"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gitlab.com/freelanced/escrowd/internal/config"
	"gitlab.com/freelanced/escrowd/internal/escrow"
	"gitlab.com/freelanced/escrowd/internal/interfaces"
)

type HTTPHandler struct {
	service   *escrow.Service
	config    *config.Config
	publicUrl *url.URL
	log       interfaces.ILogger
}

func NewHTTPHandler(service *escrow.Service, cfg *config.Config, publicUrl *url.URL, log interfaces.ILogger) *gin.Engine {
	handl := &HTTPHandler{
		service:   service,
		config:    cfg,
		publicUrl: publicUrl,
		log:       log,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthcheck", handl.HealthCheck)
	r.GET("/config", handl.GetConfig)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/projects", handl.GetProjects)
	r.GET("/projects/:ID", handl.GetProject)
	r.GET("/projects/:ID/milestones/:index", handl.GetMilestone)
	r.GET("/projects/:ID/vault", handl.GetVault)

	r.POST("/projects", handl.CreateProject)
	r.POST("/projects/:ID/milestones", handl.AddMilestone)
	r.POST("/projects/:ID/start", handl.StartProject)
	r.POST("/projects/:ID/cancel", handl.CancelProject)
	r.POST("/projects/:ID/refund", handl.RefundProject)
	r.POST("/projects/:ID/milestones/:index/submit", handl.SubmitMilestone)
	r.POST("/projects/:ID/milestones/:index/approve", handl.ApproveMilestone)
	r.POST("/projects/:ID/milestones/:index/dispute", handl.DisputeMilestone)
	r.POST("/projects/:ID/milestones/:index/resolve", handl.ResolveDispute)

	r.Any("/debug/pprof/*action", gin.WrapF(pprof.Index))

	err := r.SetTrustedProxies(nil)
	if err != nil {
		panic(err)
	}

	return r
}

func (h *HTTPHandler) HealthCheck(ctx *gin.Context) {
	ctx.JSON(200, gin.H{
		"status":  "healthy",
		"version": config.BuildVersion,
	})
}

func (h *HTTPHandler) GetConfig(ctx *gin.Context) {
	ctx.JSON(200, h.config.GetSanitized())
}

func (h *HTTPHandler) abortWithError(ctx *gin.Context, err error) {
	status := 500
	switch {
	case errors.Is(err, escrow.ErrInvalidArgument), errors.Is(err, escrow.ErrFundingMismatch):
		status = 400
	case errors.Is(err, escrow.ErrUnauthorized):
		status = 403
	case errors.Is(err, escrow.ErrNotFound):
		status = 404
	case errors.Is(err, escrow.ErrInvalidTransition):
		status = 409
	case errors.Is(err, escrow.ErrLockTimeout):
		status = 503
	}
	if status == 500 {
		h.log.Errorf("request failed: %s", err)
	}
	ctx.JSON(status, gin.H{"error": err.Error()})
}
