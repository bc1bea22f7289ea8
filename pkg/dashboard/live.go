package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/kit/log/level"

	"github.com/DECODEproject/iotdashboard/pkg/sensors"
)

const (
	// liveLookback bounds how old a stored reading may be to count as live.
	liveLookback = time.Hour

	// liveRowLimit bounds how many stored readings are scanned for live values.
	liveRowLimit = 20
)

// LiveStatus maps each sensor kind to its most current known value. Motion is
// held as a whole number. Kinds with no known value are absent.
type LiveStatus map[sensors.Kind]float64

// outcome is the result of attempting to read one kind from the telemetry
// API.
type outcome struct {
	kind  sensors.Kind
	value float64
	err   error
}

// LiveStatus returns one current value per sensor kind. Values are read from
// the telemetry API where available, with any kinds still missing filled from
// the most recent stored readings. It never fails; the result simply omits
// kinds for which no value could be found.
func (d *Dashboard) LiveStatus(ctx context.Context) LiveStatus {
	status := LiveStatus{}

	if d.telemetry != nil {
		for _, o := range d.readFeeds(ctx) {
			if o.err != nil {
				d.swallow("telemetry", "receive", o.err, "kind", o.kind)
				continue
			}

			status[o.kind] = o.value
			liveValues.WithLabelValues(string(o.kind), "telemetry").Inc()
		}
	}

	d.fillFromStore(ctx, status)

	return status
}

// readFeeds attempts to read every live kind from the telemetry API. Each
// attempt runs concurrently and yields its own outcome so that one failing
// feed never affects another.
func (d *Dashboard) readFeeds(ctx context.Context) []outcome {
	outcomes := make([]outcome, len(sensors.Live))

	var wg sync.WaitGroup

	for i, kind := range sensors.Live {
		feed, ok := d.feeds[kind]
		if !ok || feed == "" {
			outcomes[i] = outcome{kind: kind, err: errNoFeed}
			continue
		}

		wg.Add(1)
		go func(i int, kind sensors.Kind, feed string) {
			defer wg.Done()
			outcomes[i] = d.readFeed(ctx, kind, feed)
		}(i, kind, feed)
	}

	wg.Wait()

	return outcomes
}

// readFeed reads and coerces a single feed value.
func (d *Dashboard) readFeed(ctx context.Context, kind sensors.Kind, feed string) outcome {
	raw, err := d.telemetry.Receive(ctx, feed)
	if err != nil {
		return outcome{kind: kind, err: err}
	}

	value, err := kind.Coerce(raw)
	if err != nil {
		return outcome{kind: kind, err: err}
	}

	return outcome{kind: kind, value: value}
}

// fillFromStore populates kinds missing from status using the newest stored
// readings from the last hour. Only kinds recognizable by label can be filled,
// which excludes motion. The first (most recent) matching row wins.
func (d *Dashboard) fillFromStore(ctx context.Context, status LiveStatus) {
	missing := []sensors.Kind{}
	fragments := []string{}

	for _, kind := range sensors.Live {
		fragment, ok := kind.Fragment()
		if !ok {
			continue
		}

		fragments = append(fragments, fragment)

		if _, found := status[kind]; !found {
			missing = append(missing, kind)
		}
	}

	if len(missing) == 0 {
		return
	}

	since := d.clock.Now().Add(-liveLookback)

	readings, err := d.store.RecentReadings(ctx, since, fragments, liveRowLimit)
	if err != nil {
		d.swallow("store", "recent_readings", err)
		return
	}

	for _, r := range readings {
		for _, kind := range missing {
			if _, found := status[kind]; found {
				continue
			}

			if kind.Matches(r.SensorType) {
				status[kind] = r.Value
				liveValues.WithLabelValues(string(kind), "store").Inc()
			}
		}
	}

	if d.verbose {
		level.Debug(d.logger).Log("msg", "filled live status from store", "rows", len(readings), "kinds", len(status))
	}
}
