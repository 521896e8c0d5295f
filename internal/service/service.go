// Package service holds the session state of bagdesk and the operations the
// transports expose.
package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/oddrm/pse25/internal/catalog"
	"github.com/oddrm/pse25/internal/config"
	"github.com/oddrm/pse25/internal/logsink"
	"github.com/oddrm/pse25/internal/repository"
	"github.com/oddrm/pse25/internal/tracker"
)

// ErrInvalidInput is returned for malformed requests.
var ErrInvalidInput = errors.New("invalid input")

// Service is one session: its catalog, run tracker and log, plus the entry store.
type Service struct {
	store   repository.Store
	catalog *catalog.Catalog
	tracker *tracker.Tracker
	sink    *logsink.Sink
	config  *config.Config
	logger  zerolog.Logger
}

// New creates a Service. The catalog is loaded here.
func New(store repository.Store, cat *catalog.Catalog, trk *tracker.Tracker, sink *logsink.Sink, cfg *config.Config, logger zerolog.Logger) *Service {
	cat.Load()
	return &Service{
		store:   store,
		catalog: cat,
		tracker: trk,
		sink:    sink,
		config:  cfg,
		logger:  logger,
	}
}

// Tracker returns the session's run tracker.
func (s *Service) Tracker() *tracker.Tracker {
	return s.tracker
}

// Sink returns the session log.
func (s *Service) Sink() *logsink.Sink {
	return s.sink
}

// Close ends the session: active runs are dropped without logging.
func (s *Service) Close() {
	s.tracker.Reset()
}

// Ping checks that the entry store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
