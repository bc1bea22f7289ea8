// Package sensors holds the vocabulary of sensor kinds the dashboard
// understands, together with the rules for normalizing stored labels and
// coercing raw values read from upstream sources.
package sensors

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Kind is a recognized type of environmental sensor.
type Kind string

const (
	// Temperature readings, floating point degrees.
	Temperature Kind = "temperature"

	// Humidity readings, floating point relative humidity.
	Humidity Kind = "humidity"

	// Pressure readings, floating point.
	Pressure Kind = "pressure"

	// Motion readings, integer presence flag (0 or 1).
	Motion Kind = "motion"
)

var (
	// Live is the ordered list of kinds reported by the live status view.
	Live = []Kind{Temperature, Humidity, Pressure, Motion}

	// Historical is the ordered list of kinds tracked by the history view.
	// Motion is not charted.
	Historical = []Kind{Temperature, Humidity, Pressure}

	// fragments are the lowercase substrings used to recognize a stored label
	// as belonging to a kind. Substring matching means labels like
	// "temperature_2" or "Temp" are also accepted.
	fragments = map[Kind]string{
		Temperature: "temp",
		Humidity:    "humid",
		Pressure:    "pressure",
	}
)

// Normalize returns the canonical form in which a sensor label is stored:
// surrounding whitespace removed and lowercased.
func Normalize(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// Parse returns the Kind exactly matching the normalized label.
func Parse(label string) (Kind, bool) {
	switch k := Kind(Normalize(label)); k {
	case Temperature, Humidity, Pressure, Motion:
		return k, true
	}
	return "", false
}

// Fragment returns the substring used to match stored labels against this
// kind. Motion has no fragment as it is never read back from the store by
// label.
func (k Kind) Fragment() (string, bool) {
	f, ok := fragments[k]
	return f, ok
}

// Matches reports whether a stored label should be treated as a reading of
// this kind, using a case-insensitive substring match.
func (k Kind) Matches(label string) bool {
	f, ok := fragments[k]
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(label), f)
}

// Coerce parses a raw value for this kind. Motion values must be integers;
// all other kinds are parsed as floating point. Non finite values are
// rejected as they cannot be represented in a JSON response.
func (k Kind) Coerce(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)

	if k == Motion {
		i, err := strconv.Atoi(raw)
		if err != nil {
			return 0, errors.Wrapf(err, "failed to coerce %s value", k)
		}
		return float64(i), nil
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to coerce %s value", k)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.Errorf("failed to coerce %s value: %s is not finite", k, raw)
	}

	return f, nil
}

// Feeds maps each live kind to the name of the telemetry feed it is read from.
type Feeds map[Kind]string

// DefaultFeeds returns the feed names used by the dashboard hardware.
func DefaultFeeds() Feeds {
	return Feeds{
		Temperature: "temperature",
		Humidity:    "Humidity",
		Pressure:    "Pressure",
		Motion:      "motion_feed",
	}
}

// With returns a copy of the feeds with any non empty overrides applied.
func (f Feeds) With(overrides map[Kind]string) Feeds {
	out := Feeds{}
	for k, v := range f {
		out[k] = v
	}
	for k, v := range overrides {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
