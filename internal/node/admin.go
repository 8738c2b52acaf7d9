package node

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/ringdht/internal/auth"
	"github.com/danmuck/ringdht/internal/observability"
	"github.com/danmuck/ringdht/internal/pdu"
	"github.com/danmuck/ringdht/internal/ring"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdminRouter builds the HTTP admin API.
func (s *Service) AdminRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(s.log))
	r.Use(observability.RequestMetricsMiddleware(s.cfg.ID))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(s.cfg.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(s.started).String(),
			"node":   s.cfg.ID,
		})
	})

	var guard auth.Validator
	if s.cfg.AdminToken != "" {
		guard = auth.StaticToken{Token: s.cfg.AdminToken}
	}
	state := r.Group("/", auth.Require(guard))

	state.GET("/range", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Snapshot())
	})

	state.GET("/records/:ssn", func(c *gin.Context) {
		ssn := c.Param("ssn")
		if len(ssn) != pdu.SSNLength {
			c.JSON(http.StatusBadRequest, gin.H{"error": pdu.ErrInvalidSSN.Error()})
			return
		}
		if !s.Owner(ssn) {
			c.JSON(http.StatusMisdirectedRequest, gin.H{
				"error":     "not owned by this node",
				"slot":      ring.Slot(ssn),
				"successor": s.Snapshot().Successor,
			})
			return
		}
		rec, ok, err := s.store.Get(ssn)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"ssn":   rec.SSN,
			"name":  rec.Name,
			"email": rec.Email,
			"slot":  ring.Slot(ssn),
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// ServeAdmin serves the admin API until ctx ends.
func (s *Service) ServeAdmin(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.AdminRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("admin listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
