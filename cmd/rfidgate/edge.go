package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/rfid-gate/internal/config"
	"github.com/tbourn/rfid-gate/internal/edge"
	"github.com/tbourn/rfid-gate/internal/frame"
	"github.com/tbourn/rfid-gate/internal/observability"
	"github.com/tbourn/rfid-gate/internal/outbox"
	"github.com/tbourn/rfid-gate/internal/repo"
	"github.com/tbourn/rfid-gate/internal/serialline"
	"github.com/tbourn/rfid-gate/internal/sysutil"
	"github.com/tbourn/rfid-gate/internal/uplink"
)

// finalFlushTimeout bounds the best-effort flush on shutdown.
const finalFlushTimeout = 3 * time.Second

var edgeCmd = &cobra.Command{
	Use:   "edge",
	Short: "Run the reader-side agent",
	Long: `Polls the RFID reader on a serial line, decodes tag frames, persists
every read in a local outbox and uploads pending reads to the center.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadEdge(configPath())
		if err != nil {
			return err
		}
		logger := sysutil.SetupLogger("edge", cfg.Logging.Level, cfg.Logging.Pretty)
		return runEdge(cmd.Context(), cfg, logger, serialline.OpenSerial)
	},
}

// edgeNode bundles the resources of the agent.
type edgeNode struct {
	db       *gorm.DB
	agent    *edge.Agent
	sender   *uplink.Sender
	otelStop func(context.Context) error
}

// newEdge opens the outbox and wires the loop. open is the serial opener.
func newEdge(ctx context.Context, cfg config.Edge, logger zerolog.Logger, open serialline.OpenFunc) (*edgeNode, error) {
	dec, err := frame.New(cfg.Protocol)
	if err != nil {
		return nil, err
	}

	otelStop, err := observability.SetupOTel(ctx, cfg.OTEL, observability.Process{
		Role:     "edge",
		Version:  version,
		Instance: cfg.ReaderID,
	})
	if err != nil {
		return nil, fmt.Errorf("otel: %w", err)
	}

	db, err := repo.OpenSQLite(cfg.DBPath, repo.Options{Tracing: cfg.OTEL.Enabled})
	if err != nil {
		_ = otelStop(ctx)
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	if err := repo.MigrateEdge(db); err != nil {
		_ = repo.Close(db)
		_ = otelStop(ctx)
		return nil, fmt.Errorf("migrate outbox: %w", err)
	}

	box := outbox.New(db, cfg.MaxEvents, logger)
	sender := uplink.NewSender(box, uplink.NewClient(cfg.ServerURL, cfg.HTTPTimeout()), cfg.ReaderID, uplink.Policy{
		Interval:  cfg.SendInterval(),
		BatchSize: cfg.SendBatchSize,
	}, logger)

	line := serialline.NewWithOpener(serialline.Options{
		Port:       cfg.SerialPort,
		Baud:       cfg.Baudrate,
		RetryDelay: cfg.ReconnectDelay,
	}, logger, open)

	agent := edge.New(line, dec, box, sender, edge.Options{PollInterval: cfg.PollInterval}, logger)
	return &edgeNode{db: db, agent: agent, sender: sender, otelStop: otelStop}, nil
}

func (n *edgeNode) close(logger zerolog.Logger) {
	if err := repo.Close(n.db); err != nil {
		logger.Warn().Err(err).Msg("close outbox")
	}
	ctx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
	defer cancel()
	if err := n.otelStop(ctx); err != nil {
		logger.Warn().Err(err).Msg("otel shutdown")
	}
}

func runEdge(ctx context.Context, cfg config.Edge, logger zerolog.Logger, open serialline.OpenFunc) error {
	n, err := newEdge(ctx, cfg, logger, open)
	if err != nil {
		return err
	}
	defer n.close(logger)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics listener failed")
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	logger.Info().
		Str("reader_id", cfg.ReaderID).
		Str("port", cfg.SerialPort).
		Str("protocol", cfg.Protocol).
		Str("server", cfg.ServerURL).
		Msg("edge starting")

	if err := n.agent.Run(ctx); err != nil {
		return err
	}

	// Whatever is left stays in the outbox for the next start.
	flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
	defer cancel()
	if sent, err := n.sender.Flush(flushCtx); err != nil {
		logger.Warn().Err(err).Msg("final flush failed")
	} else if sent > 0 {
		logger.Info().Int("count", sent).Msg("final flush")
	}
	return nil
}
