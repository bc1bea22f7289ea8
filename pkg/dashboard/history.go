package dashboard

import (
	"context"
	"sort"
	"strings"
	"time"

	"gopkg.in/guregu/null.v3"

	"github.com/DECODEproject/iotdashboard/pkg/postgres"
	"github.com/DECODEproject/iotdashboard/pkg/sensors"
)

// historyWindow is the range used when the caller does not give one.
const historyWindow = 24 * time.Hour

// timestampLayouts are the accepted forms of a full timestamp parameter.
// Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// Range is an inclusive time range.
type Range struct {
	Start time.Time
	End   time.Time
}

// Timeline is a set of parallel series: one label per bucket and one value
// per tracked kind per bucket. Absent values marshal as JSON null.
type Timeline struct {
	Labels      []string     `json:"labels"`
	Temperature []null.Float `json:"temperature"`
	Humidity    []null.Float `json:"humidity"`
	Pressure    []null.Float `json:"pressure"`
}

// NewTimeline returns an empty but well formed Timeline.
func NewTimeline() *Timeline {
	return &Timeline{
		Labels:      []string{},
		Temperature: []null.Float{},
		Humidity:    []null.Float{},
		Pressure:    []null.Float{},
	}
}

// Len returns the number of buckets in the timeline.
func (t *Timeline) Len() int {
	return len(t.Labels)
}

// bucket holds the optional value of each tracked kind at one instant.
type bucket struct {
	temperature null.Float
	humidity    null.Float
	pressure    null.Float
}

func (b *bucket) set(kind sensors.Kind, value float64) {
	switch kind {
	case sensors.Temperature:
		b.temperature = null.FloatFrom(value)
	case sensors.Humidity:
		b.humidity = null.FloatFrom(value)
	case sensors.Pressure:
		b.pressure = null.FloatFrom(value)
	}
}

// ParseRange converts the start and end parameters into a Range. If either is
// empty the range is the 24 hours up to now. Date only values cover the whole
// day: a start date begins at 00:00:00 and an end date finishes at 23:59:59.
func ParseRange(start, end string, now time.Time) (Range, error) {
	start = strings.TrimSpace(start)
	end = strings.TrimSpace(end)

	if start == "" || end == "" {
		return Range{Start: now.Add(-historyWindow), End: now}, nil
	}

	s, err := parseInstant(start, false)
	if err != nil {
		return Range{}, InvalidArgumentError("start", "must be a date (YYYY-MM-DD) or timestamp")
	}

	e, err := parseInstant(end, true)
	if err != nil {
		return Range{}, InvalidArgumentError("end", "must be a date (YYYY-MM-DD) or timestamp")
	}

	return Range{Start: s, End: e}, nil
}

// parseInstant parses a date or timestamp parameter. A date alone is taken as
// the start of the day, or its last second when endOfDay is true.
func parseInstant(value string, endOfDay bool) (time.Time, error) {
	if len(value) == len(DateLayout) {
		t, err := time.Parse(DateLayout, value)
		if err != nil {
			return time.Time{}, err
		}
		if endOfDay {
			t = t.Add(24*time.Hour - time.Second)
		}
		return t, nil
	}

	var err error
	for _, layout := range timestampLayouts {
		var t time.Time
		t, err = time.Parse(layout, value)
		if err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, err
}

// History returns the aligned timeline of temperature, humidity and pressure
// readings for the given range parameters. The only error returned is an
// ArgumentError for unparseable parameters; a store failure yields an empty
// timeline.
func (d *Dashboard) History(ctx context.Context, start, end string) (*Timeline, error) {
	rng, err := ParseRange(start, end, d.clock.Now())
	if err != nil {
		return nil, err
	}

	return d.Aggregate(ctx, rng), nil
}

// Aggregate loads every tracked reading within the range and aligns it into a
// Timeline.
func (d *Dashboard) Aggregate(ctx context.Context, rng Range) *Timeline {
	sensorTypes := make([]string, len(sensors.Historical))
	for i, kind := range sensors.Historical {
		sensorTypes[i] = string(kind)
	}

	readings, err := d.store.ReadingsBetween(ctx, rng.Start, rng.End, sensorTypes)
	if err != nil {
		d.swallow("store", "readings_between", err, "start", rng.Start, "end", rng.End)
		return NewTimeline()
	}

	timeline := Align(readings)
	historyBuckets.Observe(float64(timeline.Len()))

	return timeline
}

// Align reshapes a flat list of readings, in ascending timestamp order, into a
// Timeline with one bucket per distinct whole second. When a kind has more
// than one reading in a bucket the last one wins. Readings of untracked kinds
// are ignored.
func Align(readings []*postgres.Reading) *Timeline {
	buckets := map[string]*bucket{}

	for _, r := range readings {
		kind, ok := sensors.Parse(r.SensorType)
		if !ok || kind == sensors.Motion {
			continue
		}

		key := Label(r.Timestamp)

		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}

		b.set(kind, r.Value)
	}

	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	timeline := NewTimeline()
	for _, key := range keys {
		b := buckets[key]

		timeline.Labels = append(timeline.Labels, key)
		timeline.Temperature = append(timeline.Temperature, b.temperature)
		timeline.Humidity = append(timeline.Humidity, b.humidity)
		timeline.Pressure = append(timeline.Pressure, b.pressure)
	}

	return timeline
}

// Label formats an instant as a bucket label, truncated to the second in UTC.
func Label(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(LabelLayout)
}
