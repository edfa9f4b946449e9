// Package rag provides the SupNum knowledge base service application.
package rag

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	httpopts "github.com/sidi-cnm/supnum-backend/pkg/options/http"
)

// shutdownTimeout bounds graceful drain of in-flight requests.
const shutdownTimeout = 10 * time.Second

// httpServer wraps the gin engine with an http.Server and graceful shutdown.
type httpServer struct {
	engine *gin.Engine
	server *http.Server
}

func newHTTPServer(opts *httpopts.Options) *httpServer {
	gin.SetMode(opts.Mode)

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	return &httpServer{
		engine: engine,
		server: &http.Server{
			Addr:         opts.Addr,
			Handler:      engine,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  opts.IdleTimeout,
		},
	}
}

// Run starts the server and blocks until SIGINT/SIGTERM, then drains.
func (s *httpServer) Run(cleanups ...func()) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Infow("Shutting down server...", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.server.Shutdown(ctx)
	for _, cleanup := range cleanups {
		cleanup()
	}
	if err != nil {
		logger.Errorw("server forced to shutdown", "error", err.Error())
		return err
	}
	logger.Info("Server exited")
	return nil
}

// requestLogger logs each request through the structured logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Infow("http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}
