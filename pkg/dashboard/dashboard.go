// Package dashboard implements the operations behind the IoT dashboard API:
// reconciling live sensor values from the telemetry API and the store,
// aligning historical readings into chartable series, ingesting readings,
// relaying actuator commands and listing intrusion events.
//
// Every read operation is best effort. Upstream failures are logged and
// counted but never returned to the caller, who instead receives a partial or
// empty result.
package dashboard

import (
	"context"
	"time"

	kitlog "github.com/go-kit/kit/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/DECODEproject/iotdashboard/pkg/clock"
	"github.com/DECODEproject/iotdashboard/pkg/metrics"
	"github.com/DECODEproject/iotdashboard/pkg/postgres"
	"github.com/DECODEproject/iotdashboard/pkg/sensors"
	"github.com/DECODEproject/iotdashboard/pkg/telemetry"
)

const (
	// LabelLayout is the format of timeline labels and event timestamps. It
	// sorts lexicographically in chronological order.
	LabelLayout = "2006-01-02 15:04:05"

	// DateLayout is the format of date only parameters.
	DateLayout = "2006-01-02"
)

var (
	// upstreamErrors counts failures talking to the telemetry API or the store
	// that were swallowed in order to return a degraded result.
	upstreamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "decode",
			Subsystem: "dashboard",
			Name:      "upstream_errors",
			Help:      "Count of swallowed errors from the telemetry API or store",
		}, []string{"upstream", "operation"},
	)

	// liveValues counts the source from which each live value was populated.
	liveValues = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "decode",
			Subsystem: "dashboard",
			Name:      "live_values",
			Help:      "Count of live sensor values by kind and source",
		}, []string{"kind", "source"},
	)

	// historyBuckets records the number of aligned rows returned by history
	// requests.
	historyBuckets = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "decode",
			Subsystem: "dashboard",
			Name:      "history_buckets",
			Help:      "Number of timeline buckets returned by history requests",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)
)

func init() {
	metrics.MustRegister(upstreamErrors, liveValues, historyBuckets)
}

// Store is the subset of the durable store used by the dashboard. It is
// satisfied by *postgres.DB.
type Store interface {
	InsertReading(ctx context.Context, reading *postgres.Reading) (*postgres.Reading, error)
	RecentReadings(ctx context.Context, since time.Time, fragments []string, limit int) ([]*postgres.Reading, error)
	ReadingsBetween(ctx context.Context, start, end time.Time, sensorTypes []string) ([]*postgres.Reading, error)
	IntrusionEvents(ctx context.Context, start, end time.Time) ([]*postgres.IntrusionEvent, error)
}

// Config carries the dependencies and settings of a Dashboard.
type Config struct {
	Store Store

	// Telemetry is optional, a nil client means live values come from the
	// store only.
	Telemetry telemetry.Client

	Clock           clock.Clock
	Feeds           sensors.Feeds
	Actuators       map[string]int
	PublicDriveLink string
	Verbose         bool
}

// Dashboard exposes the dashboard operations. It holds no per request state
// so may be shared between concurrent requests.
type Dashboard struct {
	store           Store
	telemetry       telemetry.Client
	clock           clock.Clock
	feeds           sensors.Feeds
	actuators       map[string]int
	publicDriveLink string
	verbose         bool
	logger          kitlog.Logger
}

// NewDashboard returns a new Dashboard, filling in defaults for any
// unspecified clock, feeds or actuators.
func NewDashboard(config *Config, logger kitlog.Logger) *Dashboard {
	logger = kitlog.With(logger, "module", "dashboard")

	cl := config.Clock
	if cl == nil {
		cl = clock.New()
	}

	feeds := config.Feeds
	if feeds == nil {
		feeds = sensors.DefaultFeeds()
	}

	actuators := config.Actuators
	if len(actuators) == 0 {
		actuators = DefaultActuators()
	}

	logger.Log("msg", "creating dashboard", "telemetry", config.Telemetry != nil)

	return &Dashboard{
		store:           config.Store,
		telemetry:       config.Telemetry,
		clock:           cl,
		feeds:           feeds,
		actuators:       actuators,
		publicDriveLink: config.PublicDriveLink,
		verbose:         config.Verbose,
		logger:          logger,
	}
}

// Summary is the data shown on the dashboard home page.
type Summary struct {
	Live        LiveStatus `json:"live"`
	PublicDrive string     `json:"public_drive"`
}

// Summary returns the current live status along with the configured link to
// the shared image folder.
func (d *Dashboard) Summary(ctx context.Context) *Summary {
	return &Summary{
		Live:        d.LiveStatus(ctx),
		PublicDrive: d.publicDriveLink,
	}
}

// swallow records an upstream failure that is not being returned to the
// caller.
func (d *Dashboard) swallow(upstream, operation string, err error, keyvals ...interface{}) {
	upstreamErrors.WithLabelValues(upstream, operation).Inc()

	if d.verbose {
		keyvals = append([]interface{}{"msg", "upstream failure", "upstream", upstream, "operation", operation, "err", err}, keyvals...)
		d.logger.Log(keyvals...)
	}
}
