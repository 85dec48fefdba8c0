package main

import (
	"context"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/dgraph-io/badger/v2/options"
	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/gorilla/handlers"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	grpc_middleware "github.com/mwitkow/go-grpc-middleware"
	grpc_opentracing "github.com/mwitkow/go-grpc-middleware/tracing/opentracing"
	"github.com/namsral/flag"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/akhenakh/tracklink/groundstation"
	"github.com/akhenakh/tracklink/shadow"
	"github.com/akhenakh/tracklink/storage"
	badgeridx "github.com/akhenakh/tracklink/storage/badger"
	"github.com/akhenakh/tracklink/telemetry"
)

const appName = "shadowd"

var (
	version = "no version from LDFLAGS"

	secret     = flag.String("secret", "", "The HS256 secret shared with the trackers")
	argosNames = flag.String("argosNames", "", "ARGOS id to device name mapping, eg 0x1234567=tracker-1,0x42=tracker-2")
	filesDir   = flag.String("filesDir", "", "A directory of update files loaded at startup")
	natsURL    = flag.String("natsURL", "", "NATS server to watch the tracker events on, disabled when empty")

	dbPath = flag.String("dbPath", "shadow.db", "DB path")

	httpMetricsPort = flag.Int("httpMetricsPort", 8888, "http port")
	httpAPIPort     = flag.Int("httpAPIPort", 9201, "http API port")
	grpcPort        = flag.Int("grpcPort", 9200, "gRPC API port")
	healthPort      = flag.Int("healthPort", 6666, "grpc health port")
	argosPort       = flag.Int("argosPort", 9300, "ARGOS ground station UDP port")

	httpServer        *http.Server
	grpcHealthServer  *grpc.Server
	grpcServer        *grpc.Server
	httpMetricsServer *http.Server
)

func main() {
	flag.Parse()

	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stdout))
	logger = log.With(logger, "caller", log.DefaultCaller, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "app", appName)
	logger = level.NewFilter(logger, level.AllowAll())

	stdlog.SetOutput(log.NewStdlibAdapter(logger))

	level.Info(logger).Log("msg", "Starting app", "version", version)

	if *secret == "" {
		level.Error(logger).Log("msg", "a secret is required to authenticate the trackers")
		os.Exit(2)
	}

	names, err := parseNames(*argosNames)
	if err != nil {
		level.Error(logger).Log("msg", "invalid ARGOS names", "error", err)
		os.Exit(2)
	}

	ctx := context.Background()
	ctx, cancel := context.WithCancel(ctx)

	// catch termination
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	g, ctx := errgroup.WithContext(ctx)

	// Badger
	opts := badger.DefaultOptions(*dbPath)
	opts.Logger = nil
	opts.TableLoadingMode = options.FileIO

	bdb, err := badger.Open(opts)
	if err != nil {
		level.Error(logger).Log("msg", "failed to open DB", "error", err, "path", *dbPath)
		os.Exit(2)
	}
	defer bdb.Close()

	idx := &badgeridx.Indexer{DB: bdb}
	store := &badgeridx.Store{DB: bdb}

	if *filesDir != "" {
		n, err := loadFiles(store, *filesDir)
		if err != nil {
			level.Error(logger).Log("msg", "can't load update files", "error", err, "path", *filesDir)
			os.Exit(2)
		}
		level.Info(logger).Log("msg", "update files loaded", "count", n)
	}

	// gRPC Health Server
	healthServer := health.NewServer()
	g.Go(func() error {
		grpcHealthServer = grpc.NewServer()

		healthpb.RegisterHealthServer(grpcHealthServer, healthServer)

		haddr := fmt.Sprintf(":%d", *healthPort)
		hln, err := net.Listen("tcp", haddr)
		if err != nil {
			level.Error(logger).Log("msg", "gRPC Health server: failed to listen", "error", err)
			os.Exit(2)
		}
		level.Info(logger).Log("msg", fmt.Sprintf("gRPC health server serving at %s", haddr))
		return grpcHealthServer.Serve(hln)
	})

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

	// gRPC Server, the instrumented health endpoint for the load balancers
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", *grpcPort)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			level.Error(logger).Log("msg", "gRPC server: failed to listen", "error", err)
			os.Exit(2)
		}

		grpcServer = newGRPCServer(healthServer)
		level.Info(logger).Log("msg", fmt.Sprintf("gRPC server serving at %s", addr))

		healthServer.SetServingStatus(fmt.Sprintf("grpc.health.v1.%s", appName), healthpb.HealthCheckResponse_SERVING)

		return grpcServer.Serve(ln)
	})

	// web server
	g.Go(func() error {
		s := shadow.NewServer(appName, logger, store, idx, shadow.Config{Secret: []byte(*secret)})

		r := s.Router()

		httpServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", *httpAPIPort),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			Handler: handlers.CompressHandler(
				handlers.CORS(handlers.AllowedOrigins([]string{"*"}))(r),
			),
		}
		level.Info(logger).Log("msg", fmt.Sprintf("HTTP API server serving at :%d", *httpAPIPort))

		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}

		return nil
	})

	// ARGOS ground station
	gs := groundstation.NewServer(appName, logger, idx, store, names)
	if err := gs.StartListener(ctx, fmt.Sprintf(":%d", *argosPort)); err != nil {
		os.Exit(2)
	}
	defer gs.Close()

	// tracker events
	if *natsURL != "" {
		g.Go(func() error {
			logger := log.With(logger, "component", "natsclient")
			nc, err := nats.Connect(*natsURL,
				nats.Name(appName),
				nats.ReconnectWait(2*time.Second),
				nats.MaxReconnects(-1),
			)
			if err != nil {
				level.Error(logger).Log("msg", "can't connect to NATS", "error", err)
				return err
			}
			defer nc.Close()

			w := telemetry.NewWatcher(logger)
			sub, err := nc.Subscribe(telemetry.WatchSubject(), func(m *nats.Msg) {
				if _, err := w.HandleMessage(m.Subject, m.Data); err != nil {
					level.Info(logger).Log("msg", "can't handle tracker event", "error", err)
				}
			})
			if err != nil {
				level.Error(logger).Log("msg", "can't subscribe to events", "error", err)
				return err
			}
			level.Info(logger).Log("msg", "subscribed to tracker events", "subject", telemetry.WatchSubject())

			<-ctx.Done()
			level.Info(logger).Log("msg", "unsubscribing from tracker events")
			return sub.Unsubscribe()
		})
	}

	select {
	case <-interrupt:
		cancel()
		break
	case <-ctx.Done():
		break
	}

	level.Warn(logger).Log("msg", "received shutdown signal")

	healthServer.SetServingStatus(fmt.Sprintf("grpc.health.v1.%s", appName), healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if httpMetricsServer != nil {
		_ = httpMetricsServer.Shutdown(shutdownCtx)
	}

	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	if grpcHealthServer != nil {
		grpcHealthServer.GracefulStop()
	}

	err = g.Wait()
	if err != nil {
		level.Error(logger).Log("msg", "server returning an error", "error", err)
		os.Exit(2)
	}
}

// parseNames reads a comma separated list of id=name.
func parseNames(s string) (map[uint32]string, error) {
	names := make(map[uint32]string)
	if s == "" {
		return names, nil
	}
	for _, kv := range strings.Split(s, ",") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || parts[1] == "" {
			return nil, fmt.Errorf("invalid mapping %q", kv)
		}
		id, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 0, 28)
		if err != nil {
			return nil, fmt.Errorf("invalid ARGOS id %q: %w", parts[0], err)
		}
		names[uint32(id)] = strings.TrimSpace(parts[1])
	}
	return names, nil
}

// loadFiles stores every regular file of dir as an update file.
func loadFiles(store storage.Store, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var n int
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return n, err
		}
		if err := store.PutFile(e.Name(), b); err != nil {
			return n, fmt.Errorf("file %s: %w", e.Name(), err)
		}
		n++
	}
	return n, nil
}

// newGRPCServer returns the traced and instrumented gRPC server, it only
// carries the health service.
func newGRPCServer(hs *health.Server) *grpc.Server {
	s := grpc.NewServer(
		// MaxConnectionAge is just to avoid long connection, to facilitate load balancing
		// MaxConnectionAgeGrace will torn them, default to infinity
		grpc.KeepaliveParams(keepalive.ServerParameters{MaxConnectionAge: 2 * time.Minute}),
		grpc.StreamInterceptor(grpc_middleware.ChainStreamServer(
			grpc_opentracing.StreamServerInterceptor(),
			grpc_prometheus.StreamServerInterceptor,
		)),
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
			grpc_opentracing.UnaryServerInterceptor(),
			grpc_prometheus.UnaryServerInterceptor,
		)),
	)
	healthpb.RegisterHealthServer(s, hs)
	grpc_prometheus.Register(s)
	return s
}
