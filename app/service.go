package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/petriage/petriage/api/requests"
	"github.com/petriage/petriage/config"
	"github.com/petriage/petriage/core/dispatch"
	"github.com/petriage/petriage/core/geofence"
	"github.com/petriage/petriage/core/match"
	coremetrics "github.com/petriage/petriage/core/metrics"
	"github.com/petriage/petriage/core/notify"
	corestore "github.com/petriage/petriage/core/store"
	"github.com/petriage/petriage/infra/logger"
	"github.com/petriage/petriage/infra/metrics"
	"github.com/petriage/petriage/infra/mqtt"
	"github.com/petriage/petriage/infra/store"
)

// Service wires the dispatch engine, the geofencing monitor and their
// adapters.
type Service struct {
	cfg      *config.Config
	svc      *dispatch.Service
	monitor  *geofence.Monitor
	bus      *notify.Bus
	requests corestore.RequestStore
	log      logger.Logger

	mqttPub *mqtt.Dispatcher
	mqttSub *mqtt.LocationSubscriber
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	log := logger.New("service")

	var (
		reqStore corestore.RequestStore
		vetStore corestore.VetStore
		chat     corestore.ChatStore
	)
	switch cfg.Store.Backend {
	case "sqlite":
		db, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
		reqStore = db
		vetStore = db.VetStore()
		chat = db.ChatStore()
	default:
		reqStore = store.NewMemoryRequestStore()
		vetStore = store.NewMemoryVetStore()
		chat = store.NewMemoryChatStore()
	}

	if cfg.VetSeedFile != "" {
		roster, err := config.LoadRoster(cfg.VetSeedFile)
		if err != nil {
			return nil, fmt.Errorf("vet roster: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, v := range roster.Vets {
			if err := vetStore.Put(ctx, v); err != nil {
				return nil, fmt.Errorf("seed vet %s: %w", v.ID, err)
			}
		}
		log.Infof("seeded %d vets", len(roster.Vets))
	}

	var sink coremetrics.Sink = coremetrics.NopSink{}
	if cfg.Metrics.InfluxEnabled {
		sink = metrics.NewInfluxSinkWithFallback(
			cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken,
			cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket,
		)
	}

	bus := notify.NewBus()
	notifier := notify.Multi{bus}
	svc := &Service{cfg: cfg, bus: bus, requests: reqStore, log: log}
	if cfg.MQTT.Enabled {
		pub, err := mqtt.NewDispatcher(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		svc.mqttPub = pub
		notifier = append(notifier, pub)
	}

	finder := match.NewFinder(vetStore, logger.New("finder"))
	registry := dispatch.NewRegistry()
	engine, err := dispatch.NewService(dispatch.Deps{
		Requests: reqStore,
		Vets:     vetStore,
		Chat:     chat,
		Finder:   finder,
		Notifier: notifier,
		Sink:     sink,
		Registry: registry,
		Log:      logger.New("dispatch"),
		Cfg:      cfg.Dispatch,
	}, cfg.Pricing)
	if err != nil {
		return nil, fmt.Errorf("dispatch service: %w", err)
	}
	monitor := geofence.NewMonitor(reqStore, vetStore, notifier, sink, logger.New("geofence"), cfg.Geofence)

	svc.svc = engine
	svc.monitor = monitor
	if cfg.MQTT.Enabled {
		sub, err := mqtt.NewLocationSubscriber(cfg.MQTT, monitor)
		if err != nil {
			return nil, fmt.Errorf("mqtt location subscriber: %w", err)
		}
		svc.mqttSub = sub
	}
	return svc, nil
}

// Run serves the HTTP API and, when enabled, the Prometheus endpoint until
// the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	handler := requests.NewHandler(s.svc, s.monitor, logger.New("api"))
	srv := &http.Server{Addr: s.cfg.API.Addr, Handler: handler.Mux()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api shutdown: %v", err)
		}
	}()
	s.log.Infof("serving dispatch API on %s", s.cfg.API.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.monitor.Stop()
	s.bus.Close()
	if s.mqttPub != nil {
		s.mqttPub.Close()
	}
	if s.mqttSub != nil {
		s.mqttSub.Close()
	}
	return s.requests.Close()
}
