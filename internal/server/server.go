package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/Real-Craft-Tech/stampwire/internal/config"
	"github.com/Real-Craft-Tech/stampwire/internal/database"
	"github.com/Real-Craft-Tech/stampwire/internal/dispatcher"
	"github.com/Real-Craft-Tech/stampwire/internal/receiver"
	"github.com/Real-Craft-Tech/stampwire/internal/retention"
	"github.com/Real-Craft-Tech/stampwire/internal/secrets"
	"github.com/Real-Craft-Tech/stampwire/pkg/standardwebhooks"
)

type Server struct {
	cfg        *config.Config
	db         *database.DB
	secrets    *secrets.Store
	receipts   *receiver.ReceiptStore
	registry   *receiver.Registry
	dispatcher *dispatcher.Dispatcher
	retention  *retention.Job
	httpServer *http.Server
	router     *Router
}

func New(cfg *config.Config, db *database.DB) (*Server, error) {
	store, err := secrets.NewStore(cfg.Receiver.EndpointsFile, standardwebhooks.Options{
		Tolerance: cfg.Receiver.Tolerance,
	})
	if err != nil {
		return nil, fmt.Errorf("loading endpoints: %w", err)
	}

	srv := &Server{
		cfg:      cfg,
		db:       db,
		secrets:  store,
		receipts: receiver.NewReceiptStore(db),
		registry: receiver.NewRegistry(),
	}

	if cfg.Dispatcher.Enabled {
		srv.dispatcher = dispatcher.New(db, cfg.Dispatcher)
	}

	queueStore := dispatcher.NewQueueStore(db)
	srv.retention = retention.NewJob(cfg.Retention, srv.receipts, queueStore)

	srv.router = NewRouter(srv)
	srv.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      srv.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return srv, nil
}

// Start launches background workers and serves HTTP until Shutdown or a
// listener error.
func (s *Server) Start(ctx context.Context) error {
	log.Info().
		Str("addr", s.cfg.Server.Address()).
		Msg("Starting server")

	if err := s.secrets.Watch(); err != nil {
		return fmt.Errorf("watching endpoints file: %w", err)
	}

	if s.dispatcher != nil {
		s.dispatcher.Start()
	}

	if err := s.retention.Start(); err != nil {
		return fmt.Errorf("starting retention job: %w", err)
	}

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down server")

	if s.dispatcher != nil {
		s.dispatcher.Stop()
	}

	s.retention.Stop()

	if err := s.secrets.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing secrets store")
	}

	return s.httpServer.Shutdown(ctx)
}

// Registry exposes the event handler registry so embedding applications
// can attach handlers before Start.
func (s *Server) Registry() *receiver.Registry {
	return s.registry
}

// Dispatcher returns the outbound dispatcher, or nil when disabled.
func (s *Server) Dispatcher() *dispatcher.Dispatcher {
	return s.dispatcher
}

func (s *Server) Config() *config.Config {
	return s.cfg
}

func (s *Server) DB() *database.DB {
	return s.db
}
