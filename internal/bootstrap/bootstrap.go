// Package bootstrap wires the configured backing stores into the assessment
// service for the long-running commands.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/irb-determination-server/internal/cache"
	"github.com/irb-determination-server/internal/database"
	"github.com/irb-determination-server/internal/domain"
	"github.com/irb-determination-server/internal/feedback"
	"github.com/irb-determination-server/internal/repository"
	"github.com/irb-determination-server/internal/service"
)

// HealthCheck probes one backing dependency.
type HealthCheck func(ctx context.Context) error

// Components are the collaborators shared by the HTTP and MCP servers.
type Components struct {
	Assessments  *service.AssessmentService
	Feedback     feedback.Store
	HealthChecks map[string]HealthCheck

	closers []func() error
}

// NewLogger builds the process logger from configuration. Output "stderr"
// keeps stdout free for protocols such as MCP stdio.
func NewLogger(cfg domain.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	if strings.ToLower(cfg.Format) == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(level)

	var out io.Writer
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
	}
	logger.SetOutput(out)

	return logger, nil
}

// Build connects the configured stores. With no database host the service
// runs without an audit log, and feedback falls back to SQLite when
// mcp.feedback_db_path is set.
func Build(ctx context.Context, configManager domain.ConfigManager, logger *logrus.Logger) (*Components, error) {
	cfg := configManager.GetConfig()
	c := &Components{HealthChecks: make(map[string]HealthCheck)}

	var opts []service.AssessmentOption

	if cfg.Engine.CacheResults {
		resultCache := cache.New(cfg.Cache, logger)
		opts = append(opts, service.WithResultCache(resultCache, cfg.Cache.DefaultTTL))
		c.closers = append(c.closers, func() error {
			if tiered, ok := resultCache.(*cache.TieredCache); ok {
				stats := tiered.Stats()
				logger.WithFields(logrus.Fields{
					"memory_hits":   stats.MemoryHits,
					"memory_misses": stats.MemoryMisses,
					"remote_hits":   stats.RemoteHits,
					"remote_misses": stats.RemoteMisses,
					"errors":        stats.ErrorCount,
				}).Info("Result cache statistics")
			}
			return resultCache.Close()
		})
		if pinger, ok := resultCache.(interface{ Ping(context.Context) error }); ok {
			c.HealthChecks["cache"] = pinger.Ping
		}
	}

	if cfg.Database.Host != "" {
		dbConfig := database.ConfigFrom(cfg.Database)

		if cfg.Database.AutoMigrate {
			if err := database.Migrate(ctx, dbConfig.URL(), logger); err != nil {
				c.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		db, err := database.NewConnection(ctx, dbConfig, logger)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		c.closers = append(c.closers, func() error {
			stat := db.Stats()
			logger.WithFields(logrus.Fields{
				"acquire_count":  stat.AcquireCount(),
				"total_conns":    stat.TotalConns(),
				"max_conns":      stat.MaxConns(),
				"acquire_millis": stat.AcquireDuration().Milliseconds(),
			}).Info("Database pool statistics")
			db.Close()
			return nil
		})
		c.HealthChecks["database"] = db.Health

		if cfg.Engine.RecordDeterminations {
			opts = append(opts, service.WithRecorder(repository.NewDeterminationRepository(db.Pool, logger)))
		}

		store, err := feedback.NewPostgresStoreFromURL(dbConfig.URL())
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to open feedback store: %w", err)
		}
		c.Feedback = store
	} else if cfg.MCP.FeedbackDBPath != "" {
		store, err := feedback.NewSQLiteStore(cfg.MCP.FeedbackDBPath)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to open feedback store: %w", err)
		}
		c.Feedback = store
	}
	if c.Feedback != nil {
		c.closers = append(c.closers, c.Feedback.Close)
	}

	c.Assessments = service.NewAssessmentService(logger, opts...)

	logger.WithFields(logrus.Fields{
		"database":         cfg.Database.Host != "",
		"redis":            cfg.Cache.RedisURL != "",
		"cache_results":    cfg.Engine.CacheResults,
		"record_audit_log": cfg.Database.Host != "" && cfg.Engine.RecordDeterminations,
		"feedback_enabled": c.Feedback != nil,
	}).Info("Components initialized")

	return c, nil
}

// Close releases every store in reverse order of opening.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
