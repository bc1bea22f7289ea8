package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	kitlog "github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/acme/autocert"

	"github.com/DECODEproject/iotdashboard/pkg/dashboard"
	"github.com/DECODEproject/iotdashboard/pkg/metrics"
	"github.com/DECODEproject/iotdashboard/pkg/postgres"
	"github.com/DECODEproject/iotdashboard/pkg/sensors"
	"github.com/DECODEproject/iotdashboard/pkg/system"
	"github.com/DECODEproject/iotdashboard/pkg/telemetry"
	"github.com/DECODEproject/iotdashboard/pkg/version"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "decode",
			Subsystem: "dashboard",
			Name:      "build_info",
			Help:      "Information about the current build of the service",
		}, []string{"name", "version", "build_date"},
	)
)

func init() {
	metrics.MustRegister(buildInfo)
}

// Config is a top level config object. Populated by viper in the command setup,
// we then pass down config to the right places.
type Config struct {
	ListenAddr      string
	ConnStr         string
	Verbose         bool
	CertFile        string
	KeyFile         string
	Domains         []string
	Telemetry       *telemetry.Config
	Feeds           map[sensors.Kind]string
	Actuators       map[string]int
	PublicDriveLink string
}

// Server is our top level type, contains all other components, is responsible
// for starting and stopping them in the correct order.
type Server struct {
	srv       *http.Server
	db        *postgres.DB
	telemetry telemetry.Client
	logger    kitlog.Logger
	certFile  string
	keyFile   string
	domains   []string
}

// Pinger is implemented by any dependency able to report on its own health.
type Pinger interface {
	Ping() error
}

// PulseHandler is the simplest possible handler function - used to expose an
// endpoint which a load balancer can ping to verify that a node is running and
// is able to reach the database.
func PulseHandler(db Pinger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := db.Ping()
		if err != nil {
			http.Error(w, "failed to connect to DB", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "ok")
	})
}

// NewServer returns a new simple HTTP server. Is also responsible for
// constructing all components, and injecting them into the right place.
func NewServer(config *Config, logger kitlog.Logger) (*Server, error) {
	db := postgres.NewDB(&postgres.Config{
		ConnStr: config.ConnStr,
	}, logger)

	telemetryConfig := config.Telemetry
	if telemetryConfig == nil {
		telemetryConfig = &telemetry.Config{}
	}

	client, err := telemetry.NewClient(telemetryConfig, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telemetry client")
	}

	dashConfig := &dashboard.Config{
		Store:           db,
		Feeds:           sensors.DefaultFeeds().With(config.Feeds),
		Actuators:       config.Actuators,
		PublicDriveLink: config.PublicDriveLink,
		Verbose:         config.Verbose,
	}

	// a nil interface, not a typed nil, signals no telemetry
	if client != nil {
		dashConfig.Telemetry = client
	}

	dash := dashboard.NewDashboard(dashConfig, logger)

	buildInfo.WithLabelValues(version.BinaryName, version.Version, version.BuildDate).Set(1)

	logger = kitlog.With(logger, "module", "server")
	logger.Log("msg", "creating server", "telemetry", client != nil, "domains", len(config.Domains))

	srv := &http.Server{
		Addr:              config.ListenAddr,
		Handler:           NewMux(dash, db, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{
		srv:       srv,
		db:        db,
		telemetry: client,
		logger:    logger,
		certFile:  config.CertFile,
		keyFile:   config.KeyFile,
		domains:   config.Domains,
	}, nil
}

// Start starts the server running. This is responsible for starting components
// in the correct order, and in addition we attempt to run all up migrations as
// we start.
//
// We also create a channel listening for interrupt signals before gracefully
// shutting down.
func (s *Server) Start() error {
	// start the postgres connection pool
	err := s.db.Start()
	if err != nil {
		return errors.Wrap(err, "failed to start db")
	}

	// migrate up the database
	err = s.db.MigrateUp()
	if err != nil {
		return errors.Wrap(err, "failed to migrate the database")
	}

	// the mqtt transport holds a broker connection, the rest transport does not
	err = system.StartAll(s.telemetry)
	if err != nil {
		return errors.Wrap(err, "failed to start telemetry client")
	}

	// add signal handling stuff to shutdown gracefully
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		s.logger.Log("listenAddr", s.srv.Addr, "msg", "starting server", "tlsEnabled", isTLSEnabled(s.certFile, s.keyFile), "autocert", len(s.domains) > 0)

		if err := s.listen(); err != nil && err != http.ErrServerClosed {
			s.logger.Log("err", err)
			os.Exit(1)
		}
	}()

	<-stopChan
	return s.Stop()
}

// listen serves HTTPS with the configured certificate files, HTTPS with
// certificates obtained from Let's Encrypt when domains are configured, or
// plain HTTP otherwise.
func (s *Server) listen() error {
	if isTLSEnabled(s.certFile, s.keyFile) {
		return s.srv.ListenAndServeTLS(s.certFile, s.keyFile)
	}

	if len(s.domains) > 0 {
		m := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(s.domains...),
			Cache:      s.db,
		}

		s.srv.TLSConfig = m.TLSConfig()

		return s.srv.ListenAndServeTLS("", "")
	}

	return s.srv.ListenAndServe()
}

// Stop the server and all child components
func (s *Server) Stop() error {
	s.logger.Log("msg", "stopping")
	ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFn()

	err := s.srv.Shutdown(ctx)
	if err != nil {
		return err
	}

	return system.StopAll(s.db, s.telemetry)
}

// isTLSEnabled returns true if we have passed in paths for both cert and key
// files
func isTLSEnabled(certFile, keyFile string) bool {
	return certFile != "" && keyFile != ""
}
