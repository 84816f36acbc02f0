// Package web exposes the dashboard service over HTTP using gin.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fedaidash/internal/auth"
	"fedaidash/internal/core"
)

// SessionCookie names the cookie carrying the admin session token.
const SessionCookie = "fedaidash_session"

// Server routes HTTP requests to the dashboard service.
type Server struct {
	svc           *core.Service
	auth          *auth.Manager
	logger        core.Logger
	registry      *prometheus.Registry
	metrics       *httpMetrics
	secureCookies bool
}

// Option configures a Server.
type Option func(*Server)

// WithAuth enables the admin login endpoints. Without it every admin
// request is rejected.
func WithAuth(m *auth.Manager) Option {
	return func(s *Server) { s.auth = m }
}

// WithLogger sets the request logger.
func WithLogger(l core.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRegistry sets the registry used for HTTP metrics and served on
// /metrics. Service metrics registered on the same registry are exposed too.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// WithSecureCookies marks the session cookie Secure.
func WithSecureCookies(secure bool) Option {
	return func(s *Server) { s.secureCookies = secure }
}

// NewServer builds a server for svc.
func NewServer(svc *core.Service, opts ...Option) (*Server, error) {
	s := &Server{
		svc:      svc,
		logger:   core.NewZapLogger(nil),
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	metrics, err := newHTTPMetrics(s.registry)
	if err != nil {
		return nil, err
	}
	s.metrics = metrics
	return s, nil
}

// Handler returns the gin engine with every route registered.
func (s *Server) Handler() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.metrics.middleware(), s.requestLog())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/overview", s.overview)
		v1.GET("/organizations", s.organizations)
		registerCollection(v1, s.svc.Agencies())
		registerCollection(v1, s.svc.Tools())
		registerCollection(v1, s.svc.Products())
		registerCollection(v1, s.svc.Incidents())
		registerCollection(v1, s.svc.UseCases())
	}

	admin := router.Group("/admin")
	{
		admin.POST("/login", s.login)
		admin.POST("/logout", s.logout)

		protected := admin.Group("", s.requireSession())
		protected.GET("/session", s.session)
		protected.POST("/profiles", s.createProfile)
		protected.PUT("/profiles/:id", s.updateProfile)
		protected.DELETE("/profiles/:id", s.deleteProfile)
		protected.POST("/tools", s.createTool)
		protected.PUT("/tools/:id", s.updateTool)
		protected.DELETE("/tools/:id", s.deleteTool)
		protected.POST("/products/:id/review", s.reviewProduct)
		protected.POST("/exports", s.archiveExport)
	}
	return router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
// within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func writeError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// writeServiceError maps a read-path error to a status and a safe message.
func writeServiceError(c *gin.Context, err error) {
	var notFound core.ErrNotFound
	if errors.As(err, &notFound) {
		writeError(c, http.StatusNotFound, core.MsgNotFound)
		return
	}
	writeError(c, http.StatusInternalServerError, core.MsgRequestFailed)
}

func (s *Server) overview(c *gin.Context) {
	out, err := s.svc.Overview(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) organizations(c *gin.Context) {
	out, err := s.svc.Organizations(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
