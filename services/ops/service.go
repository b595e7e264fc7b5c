package ops

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"certassist-backend/services/jobs"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("certassist.services.ops")

// Prober reports whether the upstream portal is reachable.
type Prober interface {
	Check(ctx context.Context) error
}

type Options struct {
	// static bearer token guarding every route except /healthz
	Token string `json:"token"`
}

// Service exposes the operator HTTP API: job inspection, claiming and
// completion, plus a health probe.
type Service struct {
	db    *sql.DB
	jobs  jobs.Service
	probe Prober
	opts  Options
}

func NewService(database *sql.DB, jobSvc jobs.Service, probe Prober, opts Options) *Service {
	return &Service{
		db:    database,
		jobs:  jobSvc,
		probe: probe,
		opts:  opts,
	}
}

func (s *Service) Router() *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	r.GET("/healthz", s.health)

	authed := r.Group("/")
	authed.Use(s.auth())
	authed.GET("/jobs", s.listJobs)
	authed.GET("/jobs/:id", s.getJob)
	authed.POST("/jobs/:id/claim", s.claimJob)
	authed.POST("/jobs/:id/complete", s.completeJob)

	return r
}

func (s *Service) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.Token == "" {
			c.Next()
			return
		}
		if c.GetHeader("Authorization") != "Bearer "+s.opts.Token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

func (s *Service) health(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "health")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	out := gin.H{"database": "ok", "portal": "ok"}
	status := http.StatusOK

	err := s.db.PingContext(ctx)
	if err != nil {
		out["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if s.probe != nil {
		err = s.probe.Check(ctx)
		if err != nil {
			out["portal"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	} else {
		out["portal"] = "unchecked"
	}

	c.JSON(status, out)
}

func (s *Service) listJobs(c *gin.Context) {
	open, err := s.jobs.ListOpen(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": open})
}

func (s *Service) getJob(c *gin.Context) {
	job, err := s.jobs.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

type claimReq struct {
	OperatorID string `json:"operator_id"`
}

func (s *Service) claimJob(c *gin.Context) {
	var req claimReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.OperatorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "operator_id required"})
		return
	}

	job, err := s.jobs.Claim(c.Request.Context(), c.Param("id"), req.OperatorID)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(err, jobs.ErrNotClaimable):
		c.JSON(http.StatusConflict, gin.H{"error": "job is not claimable"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, job)
	}
}

type completeReq struct {
	ArtifactRef string `json:"artifact_ref"`
}

func (s *Service) completeJob(c *gin.Context) {
	var req completeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.ArtifactRef == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "artifact_ref required"})
		return
	}

	job, err := s.jobs.Complete(c.Request.Context(), c.Param("id"), req.ArtifactRef)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(err, jobs.ErrNotCompletable):
		c.JSON(http.StatusConflict, gin.H{"error": "job is not completable"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, job)
	}
}
