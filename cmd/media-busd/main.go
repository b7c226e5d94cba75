package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/al-kimmel-serj/media-bus"
	"github.com/al-kimmel-serj/media-bus/addr_book"
	"github.com/al-kimmel-serj/media-bus/config"
	"github.com/al-kimmel-serj/media-bus/consul_publishers_registry"
	"github.com/al-kimmel-serj/media-bus/logging"
	"github.com/al-kimmel-serj/media-bus/prom_metrics"
	"github.com/al-kimmel-serj/media-bus/relay"
	"github.com/al-kimmel-serj/media-bus/stub_publishers_registry"
	"github.com/al-kimmel-serj/media-bus/zmq_publisher"
	"github.com/al-kimmel-serj/media-bus/zmq_subscriber"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		logging.L().WithError(err).Fatal("load config")
	}

	logging.Init(cfg.Log.Level)
	log := logging.L()

	opts := []bus.Option{
		bus.WithLogger(logging.Component("bus")),
		bus.WithMailboxSize(cfg.Bus.MailboxSize),
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		prom := prom_metrics.New()
		opts = append(opts, bus.WithMetrics(prom))

		mux := http.NewServeMux()
		mux.Handle("/metrics", prom.Handler())
		metricsServer = &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	handle := bus.New(opts...)

	var registry bus.PublishersRegistry
	if cfg.Consul.Enabled {
		registry = consul_publishers_registry.New(cfg.Consul.Address, logging.Component("consul"))
	} else {
		endpoints := make([]bus.PublisherEndpoint, 0, len(cfg.ZMQ.Endpoints))
		for _, e := range cfg.ZMQ.Endpoints {
			endpoints = append(endpoints, bus.PublisherEndpoint(e))
		}
		registry = stub_publishers_registry.New(endpoints)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup

	// Relays come first so that exports may name them as publishers.
	var relays []*relay.Relay
	for _, imp := range cfg.ZMQ.Import {
		r, err := relay.New(handle, imp.To, bus.EventIDOf(imp.Event), logging.Component("relay"))
		if err != nil {
			log.WithError(err).Fatal("start relay")
		}
		relays = append(relays, r)
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Run(ctx)
		}()
	}

	var publisher *zmq_publisher.Publisher
	if len(cfg.ZMQ.Export) > 0 {
		events := make([]bus.Event, 0, len(cfg.ZMQ.Export))
		for _, e := range cfg.ZMQ.Export {
			event, err := bus.NewEvent(e.Publisher, bus.EventIDOf(e.Event))
			if err != nil {
				log.WithError(err).Fatal("zmq.export")
			}
			events = append(events, event)
		}

		publisher, err = zmq_publisher.New(handle, cfg.ZMQ.Host, cfg.ZMQ.Port, events, registry, logging.Component("zmq_publisher"))
		if err != nil {
			log.WithError(err).Fatal("start zmq publisher")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			publisher.Run(ctx)
		}()
	}

	book, err := addr_book.New(handle, cfg.AddrBook.Size)
	if err != nil {
		log.WithError(err).Fatal("addr book")
	}

	var subscribers []*zmq_subscriber.Subscriber
	for _, imp := range cfg.ZMQ.Import {
		event, err := bus.NewEvent(imp.Publisher, bus.EventIDOf(imp.Event))
		if err != nil {
			log.WithError(err).Fatal("zmq.import")
		}
		to, err := bus.NewName(imp.To)
		if err != nil {
			log.WithError(err).Fatal("zmq.import")
		}

		entry := logging.Component("zmq_subscriber").WithField("event", event).WithField("to", to)
		subscriber, err := zmq_subscriber.New(event, to, registry, book, func(err error) {
			entry.WithError(err).Warn("import failed")
		})
		if err != nil {
			log.WithError(err).Fatal("start zmq subscriber")
		}
		subscribers = append(subscribers, subscriber)
	}

	log.WithField("exports", len(cfg.ZMQ.Export)).WithField("imports", len(cfg.ZMQ.Import)).Info("media-bus started")

	<-ctx.Done()

	for _, subscriber := range subscribers {
		if err := subscriber.Stop(); err != nil {
			log.WithError(err).Warn("stop zmq subscriber")
		}
	}

	wg.Wait()
	for _, r := range relays {
		_ = r.Close()
	}
	if publisher != nil {
		if err := publisher.Stop(); err != nil {
			log.WithError(err).Warn("stop zmq publisher")
		}
	}

	_ = handle.Close()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	log.Info("media-bus stopped")
}
