package main

import (
	"context"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/namsral/flag"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/akhenakh/tracklink/config"
	"github.com/akhenakh/tracklink/devstatus"
	"github.com/akhenakh/tracklink/telemetry"
)

const (
	appName = "trackerd"

	// restartCode is the exit code asking the supervisor to restart on the
	// new firmware.
	restartCode = 3
)

var (
	version = "no version from LDFLAGS"

	configPath  = flag.String("config", "tracker.yaml", "YAML configuration path")
	workDir     = flag.String("workDir", ".", "Directory holding the log and the downloads")
	argosAddr   = flag.String("argosAddr", "", "ARGOS ground station UDP address, frames are dropped when empty")
	natsURL     = flag.String("natsURL", "", "NATS server receiving the events, disabled when empty")
	fixInterval = flag.Duration("fixInterval", time.Minute, "Interval between two simulated GPS fixes")
	startLat    = flag.Float64("lat", 48.8566, "Simulated start latitude")
	startLng    = flag.Float64("lng", 2.3522, "Simulated start longitude")
	walk        = flag.Float64("walk", 200, "Largest simulated move between two fixes, meters")
	logLevel    = flag.String("logLevel", "info", "Log level: debug, info, warn or error")

	httpMetricsPort = flag.Int("httpMetricsPort", 8889, "http port")

	httpMetricsServer *http.Server
)

func main() {
	flag.Parse()

	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stdout))
	logger = log.With(logger, "caller", log.DefaultCaller, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "app", appName)
	logger = level.NewFilter(logger, levelOption(*logLevel))

	stdlog.SetOutput(log.NewStdlibAdapter(logger))

	level.Info(logger).Log("msg", "Starting app", "version", version)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		level.Error(logger).Log("msg", "can't load configuration", "error", err, "path", *configPath)
		os.Exit(2)
	}

	ctx := context.Background()
	ctx, cancel := context.WithCancel(ctx)

	// catch termination
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	g, ctx := errgroup.WithContext(ctx)

	// web server metrics
	g.Go(func() error {
		httpMetricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", *httpMetricsPort),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		level.Info(logger).Log("msg", fmt.Sprintf("HTTP Metrics server serving at :%d", *httpMetricsPort))

		// Register Prometheus metrics handler.
		http.Handle("/metrics", promhttp.Handler())

		if err := httpMetricsServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}

		return nil
	})

	var pub telemetry.Publisher
	if *natsURL != "" {
		nc, err := nats.Connect(*natsURL,
			nats.Name(appName+"-"+cfg.Device.Name),
			nats.ReconnectWait(2*time.Second),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			level.Error(logger).Log("msg", "can't connect to NATS", "error", err)
			os.Exit(2)
		}
		defer nc.Close()
		pub = nc
	}

	opts := deviceOptions{
		WorkDir:   *workDir,
		ArgosAddr: *argosAddr,
		Publisher: pub,
		Start:     devstatus.Location{Latitude: *startLat, Longitude: *startLng},
		Walk:      *walk,
		Seed:      time.Now().UnixNano(),
	}

	var exitCode int
	g.Go(func() error {
		defer cancel()
		for {
			d, err := newDevice(ctx, cfg, opts, logger)
			if err != nil {
				level.Error(logger).Log("msg", "can't start the device", "error", err)
				return err
			}
			act := run(ctx, d, *fixInterval)
			opts.Start = d.fix

			switch act {
			case actionReload:
				ncfg, err := d.reloadConfig(*configPath)
				d.updater.action = actionNone
				if err != nil {
					level.Error(logger).Log("msg", "downloaded configuration rejected", "error", err)
				} else {
					cfg = ncfg
					level.Info(logger).Log("msg", "configuration reloaded", "version", cfg.Device.ConfigVersion)
				}
				d.close()
			case actionRestart:
				level.Info(logger).Log("msg", "restarting on new firmware", "version", d.updater.firmware)
				d.close()
				exitCode = restartCode
				return nil
			default:
				d.close()
				return nil
			}
		}
	})

	select {
	case <-interrupt:
		cancel()
		break
	case <-ctx.Done():
		break
	}

	level.Warn(logger).Log("msg", "received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if httpMetricsServer != nil {
		_ = httpMetricsServer.Shutdown(shutdownCtx)
	}

	err = g.Wait()
	if err != nil {
		level.Error(logger).Log("msg", "device returning an error", "error", err)
		os.Exit(2)
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// run drives the device every second until ctx is done or an update has
// to be applied.
func run(ctx context.Context, d *device, fixEvery time.Duration) action {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	fixTicker := time.NewTicker(fixEvery)
	defer fixTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return actionNone
		case <-fixTicker.C:
			d.newFix()
		case <-ticker.C:
			if act := d.step(ctx); act != actionNone {
				return act
			}
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	config.Normalize(cfg)
	return cfg, nil
}

func levelOption(s string) level.Option {
	switch s {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	}
	return level.AllowInfo()
}
