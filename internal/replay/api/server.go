// Package api exposes recorder/replayer control as an HTTP surface:
// start/pause/resume/stop, VCR-style seek/step/speed, range queries, and a
// Prometheus /metrics endpoint. One Server instance owns exactly one
// recorder+replayer pair bound to a single recording directory; running
// several sessions means running several Servers on different ports.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/replaycore/internal/replay/errs"
	"github.com/annel0/replaycore/internal/replay/recorder"
	"github.com/annel0/replaycore/internal/replay/replayer"
	"github.com/annel0/replaycore/internal/replaylog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config wires an existing recorder/replayer pair into an HTTP server.
// Either field may be nil (e.g. a record-only or replay-only deployment);
// the corresponding routes then answer 503.
type Config[T any] struct {
	Port      string
	JWTSecret []byte // empty disables auth entirely (local/dev use)
	Recorder  *recorder.Recorder[T]
	Replayer  *replayer.Replayer[T]
}

// Server is the gin-based control surface for one recorder/replayer pair.
type Server[T any] struct {
	router *gin.Engine
	port   string
	secret []byte
	rec    *recorder.Recorder[T]
	ply    *replayer.Replayer[T]
	log    *replaylog.Logger

	reqDuration *prometheus.HistogramVec
	metrics     *domainMetrics[T]
}

// New builds a Server and registers its routes. Call Run to start serving.
func New[T any](cfg Config[T]) *Server[T] {
	if cfg.Port == "" {
		cfg.Port = ":8090"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("replay_api"))

	s := &Server[T]{
		router: router,
		port:   cfg.Port,
		secret: cfg.JWTSecret,
		rec:    cfg.Recorder,
		ply:    cfg.Replayer,
		log:    replaylog.GetLogger("api"),
		reqDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "replay_api",
			Name:      "http_request_duration_seconds",
			Help:      "Latency of replay control-surface HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
	prometheus.MustRegister(s.reqDuration)

	s.metrics = newDomainMetrics(cfg.Recorder, cfg.Replayer)

	router.Use(s.requestLogger())
	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(s.authMiddleware(RoleViewer))
	{
		api.GET("/recorder/state", s.handleRecorderState)
		api.GET("/replayer/state", s.handleReplayerState)
		api.GET("/replayer/range", s.handleRangeQuery)
	}

	admin := router.Group("/api")
	admin.Use(s.authMiddleware(RoleAdmin))
	{
		admin.POST("/recorder/start", s.handleRecorderStart)
		admin.POST("/recorder/pause", s.handleRecorderPause)
		admin.POST("/recorder/resume", s.handleRecorderResume)
		admin.POST("/recorder/stop", s.handleRecorderStop)
		admin.POST("/recorder/record", s.handleRecorderRecord)

		admin.POST("/replayer/play", s.handleReplayerPlay)
		admin.POST("/replayer/pause", s.handleReplayerPause)
		admin.POST("/replayer/resume", s.handleReplayerResume)
		admin.POST("/replayer/stop", s.handleReplayerStop)
		admin.POST("/replayer/seek", s.handleReplayerSeek)
		admin.POST("/replayer/seekToTime", s.handleReplayerSeekToTime)
		admin.POST("/replayer/step", s.handleReplayerStep)
		admin.POST("/replayer/speed", s.handleReplayerSpeed)
	}

	return s
}

// Run starts the domain-metrics poll loop and the HTTP server; blocks until
// the server exits or errors.
func (s *Server[T]) Run() error {
	s.metrics.start()
	defer s.metrics.stop()
	return s.router.Run(s.port)
}

func (s *Server[T]) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		traceID := uuid.NewString()
		if span.SpanContext().IsValid() {
			traceID = span.SpanContext().TraceID().String()
		}

		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		s.reqDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
		s.log.Debug("%s %s -> %d (%s) trace=%s", method, path, status, time.Since(start), traceID)
	}
}

// authMiddleware requires a "Bearer <jwt>" Authorization header whose role
// is minRole or stronger (admin implies viewer). Auth is skipped entirely
// when the server was built with an empty JWTSecret.
func (s *Server[T]) authMiddleware(minRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(s.secret) == 0 {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errResponse("missing bearer token"))
			return
		}

		role, err := ValidateToken(s.secret, header[len(prefix):])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errResponse(err.Error()))
			return
		}

		if minRole == RoleAdmin && role != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, errResponse("admin role required"))
			return
		}
		if role != RoleAdmin && role != RoleViewer {
			c.AbortWithStatusJSON(http.StatusForbidden, errResponse("viewer role required"))
			return
		}

		c.Next()
	}
}

func errResponse(msg string) gin.H {
	return gin.H{"success": false, "message": msg}
}

func okResponse(data interface{}) gin.H {
	return gin.H{"success": true, "data": data}
}

func (s *Server[T]) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Unix()})
}

// statusFor maps a domain error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errs.ErrInvalidState), errors.Is(err, errs.ErrInvalidArgs):
		return http.StatusConflict
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
