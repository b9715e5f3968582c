package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/rfid-gate/internal/config"
	httpapi "github.com/tbourn/rfid-gate/internal/http"
	"github.com/tbourn/rfid-gate/internal/notify"
	"github.com/tbourn/rfid-gate/internal/observability"
	"github.com/tbourn/rfid-gate/internal/relay"
	"github.com/tbourn/rfid-gate/internal/repo"
	"github.com/tbourn/rfid-gate/internal/services"
	"github.com/tbourn/rfid-gate/internal/sysutil"
)

const shutdownTimeout = 10 * time.Second

var centerCmd = &cobra.Command{
	Use:   "center",
	Short: "Run the central decision service",
	Long: `Serves POST /api/tags, GET /api/events and GET /api/health, decides
every tag read against the known-tag registry and reader schedules, fires
the relay board and keeps the audit log.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadCenter(configPath())
		if err != nil {
			return err
		}
		logger := sysutil.SetupLogger("center", cfg.Logging.Level, cfg.Logging.Pretty)
		return runCenter(cmd.Context(), cfg, logger)
	},
}

// center bundles the long-lived resources of the service.
type center struct {
	cfg       config.Center
	log       zerolog.Logger
	db        *gorm.DB
	board     *relay.Board
	publisher notify.Publisher
	engine    *gin.Engine
	otelStop  func(context.Context) error
}

// newCenter opens storage and wires the engine. Call close when done.
func newCenter(ctx context.Context, cfg config.Center, logger zerolog.Logger) (*center, error) {
	otelStop, err := observability.SetupOTel(ctx, cfg.OTEL, observability.Process{Role: "center", Version: version})
	if err != nil {
		return nil, fmt.Errorf("otel: %w", err)
	}
	c := &center{cfg: cfg, log: logger, otelStop: otelStop, publisher: notify.Nop{}}

	c.db, err = repo.OpenSQLite(cfg.DBPath, repo.Options{Tracing: cfg.OTEL.Enabled})
	if err != nil {
		c.close(ctx)
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repo.MigrateCenter(c.db); err != nil {
		c.close(ctx)
		return nil, fmt.Errorf("migrate: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		c.close(ctx)
		return nil, fmt.Errorf("timezone: %w", err)
	}

	c.board = relay.New(relay.Options{
		Enabled: cfg.Relay.Enabled,
		Port:    cfg.Relay.Port,
		Baud:    cfg.Relay.Baudrate,
		Timeout: cfg.Relay.Timeout(),
		Mapping: cfg.Relay.Mapping,
	}, logger)

	if cfg.MQTT.Enabled {
		m, err := notify.NewMQTT(cfg.MQTT, logger)
		if err != nil {
			// Decisions never depend on the broker.
			logger.Warn().Err(err).Str("broker", cfg.MQTT.Broker).Msg("mqtt unavailable, publishing disabled")
		} else {
			c.publisher = m
		}
	}

	svc := &services.DecisionService{
		DB:          c.db,
		Tags:        config.LoadKnownTags(cfg.KnownTagsFile, logger),
		Schedules:   cfg.ReaderSchedules,
		Location:    loc,
		DedupWindow: cfg.Dedup.Window(),
		IgnoreLate:  cfg.Dedup.IgnoreLate(),
		MaxEvents:   cfg.MaxEvents,
		Relay:       c.board,
		Notifier:    c.publisher,
	}

	if cfg.HTTP.GinMode != "" {
		gin.SetMode(cfg.HTTP.GinMode)
	}
	c.engine = gin.New()
	httpapi.RegisterRoutes(c.engine, svc, cfg)
	return c, nil
}

func (c *center) close(ctx context.Context) {
	if c.publisher != nil {
		c.publisher.Close()
	}
	if c.board != nil {
		if err := c.board.Close(); err != nil {
			c.log.Warn().Err(err).Msg("close relay")
		}
	}
	if c.db != nil {
		if err := repo.Close(c.db); err != nil {
			c.log.Warn().Err(err).Msg("close database")
		}
	}
	if c.otelStop != nil {
		if err := c.otelStop(ctx); err != nil {
			c.log.Warn().Err(err).Msg("otel shutdown")
		}
	}
}

func runCenter(ctx context.Context, cfg config.Center, logger zerolog.Logger) error {
	c, err := newCenter(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           c.engine,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		MaxHeaderBytes:    cfg.HTTP.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("db", cfg.DBPath).
			Bool("relay", c.board.Enabled()).
			Msg("center listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Error().Err(serr).Msg("http shutdown")
	}
	c.close(shutdownCtx)
	return err
}
