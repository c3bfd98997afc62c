// Package server exposes the ingestion pipeline over HTTP: Pub/Sub push
// delivery, manual triggers, health and monitoring.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Veraticus/the-spice-must-ingest/internal/common"
	"github.com/Veraticus/the-spice-must-ingest/internal/ingest"
	"github.com/Veraticus/the-spice-must-ingest/internal/model"
	"github.com/Veraticus/the-spice-must-ingest/internal/notify"
)

// Ingestor is the part of the orchestrator the server drives.
type Ingestor interface {
	notify.Handler
	ProcessMessage(ctx context.Context, messageID string) (ingest.Outcome, error)
}

// StatsSource reports monitoring counters.
type StatsSource interface {
	GetStats(ctx context.Context) (*model.Stats, error)
}

// Config configures the HTTP server.
type Config struct {
	Logger *slog.Logger
	Addr   string
	// PushToken, when set, must match the push endpoint's token query parameter.
	PushToken string
	// RequestTimeout bounds each pipeline call.
	RequestTimeout time.Duration
}

// Server is the HTTP front end.
type Server struct {
	engine  *gin.Engine
	ingest  Ingestor
	stats   StatsSource
	logger  *slog.Logger
	cfg     Config
	started time.Time
}

// New builds the router.
func New(ing Ingestor, stats StatsSource, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		engine:  r,
		ingest:  ing,
		stats:   stats,
		logger:  cfg.Logger,
		cfg:     cfg,
		started: time.Now(),
	}
	r.Use(s.requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.health)
	s.engine.GET("/monitoring", s.monitoring)
	s.engine.POST("/pubsub/push", s.pubsubPush)
	s.engine.POST("/trigger/:messageId", s.trigger)
}

// Handler returns the router for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) monitoring(c *gin.Context) {
	if s.stats == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "monitoring unavailable"})
		return
	}
	stats, err := s.stats.GetStats(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to load stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_emails":       stats.TotalEmails,
		"parsed_emails":      stats.ParsedEmails,
		"unparsed_emails":    stats.UnparsedEmails,
		"total_transactions": stats.TotalTransactions,
		"total_merchants":    stats.TotalMerchants,
		"emails_by_provider": stats.EmailsByProvider,
		"latest_email":       stats.LatestEmail,
	})
}

// pushEnvelope is the body Pub/Sub push subscriptions POST.
type pushEnvelope struct {
	Message struct {
		Attributes map[string]string `json:"attributes"`
		Data       []byte            `json:"data"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// pubsubPush acknowledges with 2xx and asks for redelivery with 5xx.
func (s *Server) pubsubPush(c *gin.Context) {
	if s.cfg.PushToken != "" {
		token := c.Query("token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.PushToken)) != 1 {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid token"})
			return
		}
	}

	var env pushEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		s.logger.Warn("malformed push envelope", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed push envelope"})
		return
	}

	n, err := notify.DecodeNotification(env.Message.Data)
	if err != nil {
		// Acked: redelivering a bad payload cannot help.
		s.logger.Warn("dropping undecodable notification",
			"pubsub_id", env.Message.MessageID,
			"error", err)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()

	res, err := s.ingest.HandleNotification(ctx, uint64(n.HistoryID))
	if err != nil {
		s.logger.Error("notification failed",
			"pubsub_id", env.Message.MessageID,
			"history_id", uint64(n.HistoryID),
			"error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "notification failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"cursor":      res.Cursor,
		"initialized": res.Initialized,
		"stale":       res.Stale,
		"processed":   res.Batch.Processed,
		"stored":      res.Batch.Stored,
		"failed":      res.Batch.Failed,
	})
}

func (s *Server) trigger(c *gin.Context) {
	id := c.Param("messageId")

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()

	outcome, err := s.ingest.ProcessMessage(ctx, id)
	switch {
	case errors.Is(err, common.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found", "message_id": id})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "message_id": id})
	default:
		c.JSON(http.StatusOK, gin.H{"message_id": id, "outcome": outcome})
	}
}
