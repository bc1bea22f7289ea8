// Package telemetry contains clients for the feed based telemetry API used to
// exchange near real time sensor values and actuator commands with devices.
// Two transports are supported: the HTTP REST API and the MQTT broker.
package telemetry

import (
	"context"
	"time"

	kitlog "github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/DECODEproject/iotdashboard/pkg/metrics"
)

const (
	// TransportREST selects the HTTP REST client.
	TransportREST = "rest"

	// TransportMQTT selects the MQTT client.
	TransportMQTT = "mqtt"

	// DefaultURL is the base URL of the hosted REST API.
	DefaultURL = "https://io.adafruit.com"

	// DefaultBroker is the address of the hosted MQTT broker.
	DefaultBroker = "tls://io.adafruit.com:8883"

	// DefaultTimeout bounds every individual telemetry call.
	DefaultTimeout = 10 * time.Second
)

var (
	// requestHistogram records the duration and outcome of every telemetry call
	requestHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "decode",
			Subsystem: "dashboard",
			Name:      "telemetry_request_duration_sec",
			Help:      "Time (in seconds) spent on telemetry API calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"transport", "operation", "outcome"},
	)
)

func init() {
	metrics.MustRegister(requestHistogram)
}

// Client is the contract the dashboard relies on for talking to the telemetry
// API. Both methods may fail on any call.
type Client interface {
	// Receive returns the most recent raw value published to the named feed.
	Receive(ctx context.Context, feed string) (string, error)

	// Send publishes a raw value to the named feed.
	Send(ctx context.Context, feed, value string) error
}

// Config carries the settings needed to construct a Client.
type Config struct {
	Transport string
	Username  string
	Key       string
	URL       string
	Broker    string
	Timeout   time.Duration
	Verbose   bool
}

// Configured reports whether enough credentials were supplied to talk to the
// telemetry API at all.
func (c *Config) Configured() bool {
	return c != nil && c.Username != "" && c.Key != ""
}

// NewClient returns a Client for the configured transport. If no credentials
// are configured it returns a nil Client and no error: callers must treat the
// telemetry API as an optional capability.
func NewClient(config *Config, logger kitlog.Logger) (Client, error) {
	logger = kitlog.With(logger, "module", "telemetry")

	if !config.Configured() {
		logger.Log("msg", "telemetry API not configured, live values will come from the store only")
		return nil, nil
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	switch config.Transport {
	case "", TransportREST:
		url := config.URL
		if url == "" {
			url = DefaultURL
		}
		logger.Log("msg", "creating telemetry client", "transport", TransportREST, "url", url)
		return NewRESTClient(url, config.Username, config.Key, timeout, config.Verbose, logger), nil

	case TransportMQTT:
		broker := config.Broker
		if broker == "" {
			broker = DefaultBroker
		}
		logger.Log("msg", "creating telemetry client", "transport", TransportMQTT, "broker", broker)
		return NewMQTTClient(broker, config.Username, config.Key, timeout, config.Verbose, NewConnector(), logger), nil
	}

	return nil, errors.Errorf("unknown telemetry transport: %s", config.Transport)
}

// observe records the duration of a telemetry call started at start.
func observe(transport, operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	requestHistogram.WithLabelValues(transport, operation, outcome).Observe(time.Since(start).Seconds())
}
