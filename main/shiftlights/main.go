package main

import (
	"context"
	"flag"
	"github.com/jd3nn1s/shiftlights"
	"github.com/jd3nn1s/shiftlights/assetto"
	"github.com/jd3nn1s/shiftlights/canlights"
	"github.com/jd3nn1s/shiftlights/config"
	"github.com/jd3nn1s/shiftlights/dirt"
	"github.com/jd3nn1s/shiftlights/g29"
	"github.com/jd3nn1s/shiftlights/loop"
	"github.com/jd3nn1s/shiftlights/metrics"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

var configFile = flag.String("config", "shiftlights.toml", "configuration file, relative to the binary unless absolute")
var testMode = flag.Bool("testmode", false, "generate test data")
var printTelemetry = flag.Bool("print-telemetry", false, "print telemetry to stdout")

type client interface {
	Connect() error
	Disconnect()
}

func main() {
	log.SetLevel(log.InfoLevel)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal("unable to load configuration: ", err)
	}
	level, _ := cfg.LogLevel()
	log.SetLevel(level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.Metrics.Listen != "" {
		go serveMetrics(cfg.Metrics.Listen, reg)
	}

	if *testMode {
		if err := runTestMode(ctx, cfg); err != nil {
			log.Fatal("unable to start test mode: ", err)
		}
	}

	l := loop.New()
	ind := shiftlights.NewIndicator(shiftlights.IndicatorConfig{
		Flash:          cfg.Indicator.Flash,
		DefaultPeakRPM: cfg.Indicator.DefaultPeakRPM,
		PrintTelemetry: *printTelemetry,
	}, l, m, deviceOpener(cfg.Indicator))

	var clients []client
	if cfg.Assetto.Enabled {
		clients = append(clients, assetto.NewClient(assetto.Config{
			Host: cfg.Assetto.Host,
			Port: cfg.Assetto.Port,
			Spot: cfg.Assetto.Subscription == config.SubscriptionSpot,
		}, l, m, ind.AssettoCallbacks()))
	}
	if cfg.Dirt.Enabled {
		clients = append(clients, dirt.NewClient(dirt.Config{
			Port: cfg.Dirt.Port,
		}, l, m, ind.DirtCallbacks()))
	}

	l.Post(func() {
		for _, c := range clients {
			if err := c.Connect(); err != nil {
				log.Fatal("unable to connect telemetry client: ", err)
			}
		}
	})

	log.Info("shiftlights running")
	if err := run(ctx, l); err != nil {
		log.WithField("err", err).Error("event loop stopped")
	}

	// the loop has stopped, nothing else touches the clients or indicator
	log.Info("shutting down")
	for _, c := range clients {
		c.Disconnect()
	}
	if err := ind.Close(); err != nil {
		log.WithField("err", err).Error("unable to close indicator device")
	}
}

// run drives the loop until ctx ends. Cancellation is the normal shutdown
// path and is not reported.
func run(ctx context.Context, l *loop.Loop) error {
	if err := l.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func deviceOpener(cfg config.IndicatorConfig) func() (shiftlights.LEDs, error) {
	if cfg.Device == config.DeviceCAN {
		return func() (shiftlights.LEDs, error) {
			c, err := canlights.Connect(cfg.CANInterface)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}
	return func() (shiftlights.LEDs, error) {
		c, err := g29.Connect()
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.WithField("addr", addr).Info("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithField("err", err).Error("metrics listener stopped")
	}
}
