// Package admin serves the HTTP control surface: health, supervisor status,
// prometheus metrics and the pending confirmation prompt.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/apductl/internal/observability"
	"github.com/danmuck/apductl/internal/supervisor"
	"github.com/danmuck/apductl/internal/ux"
)

const Version = "0.1.0"

// StatusSource reports the supervisor snapshot.
type StatusSource interface {
	Status() supervisor.Status
}

// PromptController exposes the open prompt and accepts decisions.
type PromptController interface {
	Current() (ux.Prompt, bool)
	Decide(approved bool) error
}

type Server struct {
	addr    string
	router  *gin.Engine
	status  StatusSource
	prompts PromptController
	started time.Time
}

// New builds the router. prompts may be nil when decisions come from
// elsewhere.
func New(addr string, corsOrigins []string, status StatusSource, prompts PromptController) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger, func() (string, string) {
		if status == nil {
			return "", ""
		}
		st := status.Status()
		return st.SessionID, st.IOState
	}))
	r.Use(observability.RequestMetricsMiddleware())
	if origins := normalizeOrigins(corsOrigins); len(origins) > 0 {
		cfg := cors.Config{
			AllowMethods: []string{"GET", "POST"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}
		if len(origins) == 1 && origins[0] == "*" {
			cfg.AllowAllOrigins = true
		} else {
			cfg.AllowOrigins = origins
		}
		r.Use(cors.New(cfg))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		addr:    addr,
		router:  r,
		status:  status,
		prompts: prompts,
		started: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"version": Version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.status.Status())
	})

	s.router.GET("/prompt", func(c *gin.Context) {
		if s.prompts == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "prompts are answered locally"})
			return
		}
		p, ok := s.prompts.Current()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": ux.ErrNoPrompt.Error()})
			return
		}
		c.JSON(http.StatusOK, p)
	})

	s.router.POST("/prompt/:decision", func(c *gin.Context) {
		if s.prompts == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "prompts are answered locally"})
			return
		}
		var approved bool
		switch c.Param("decision") {
		case "approve":
			approved = true
		case "reject":
			approved = false
		default:
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown decision"})
			return
		}
		if err := s.prompts.Decide(approved); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ux.ErrNoPrompt) {
				status = http.StatusConflict
			} else if errors.Is(err, ux.ErrQueueFull) {
				status = http.StatusServiceUnavailable
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		log.Info().Bool("approved", approved).Msg("admin.Server decision posted")
		c.JSON(http.StatusAccepted, gin.H{"status": "ok", "approved": approved})
	})
}

// Serve listens on the configured address until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()
	log.Info().Str("addr", ln.Addr().String()).Msg("admin.Server.Serve listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
