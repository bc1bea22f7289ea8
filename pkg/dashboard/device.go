package dashboard

import (
	"context"
	"reflect"
	"strconv"
	"strings"
)

// feedSuffix is appended to a device name to derive its control feed.
const feedSuffix = "_control"

// DeviceCommand is the acknowledgement of a device state change.
type DeviceCommand struct {
	Device    string `json:"device"`
	State     int    `json:"state"`
	Forwarded bool   `json:"sent_to_aio"`
}

// DefaultActuators returns the actuators controllable from the dashboard,
// all initially off.
func DefaultActuators() map[string]int {
	return map[string]int{
		"LEDs":   0,
		"Buzzer": 0,
		"Servo":  0,
		"Camera": 0,
	}
}

// Actuators returns a copy of the configured actuators and their initial
// states.
func (d *Dashboard) Actuators() map[string]int {
	out := make(map[string]int, len(d.actuators))
	for k, v := range d.actuators {
		out[k] = v
	}
	return out
}

// FeedName returns the telemetry feed controlling the named device: the name
// lowercased with spaces replaced by underscores, plus a control suffix.
func FeedName(device string) string {
	return strings.ReplaceAll(strings.ToLower(device), " ", "_") + feedSuffix
}

// StateValue reduces an arbitrary decoded JSON value to 0 or 1. Absent,
// false, zero, empty strings and empty collections are 0; anything else is 1.
func StateValue(v interface{}) int {
	if v == nil {
		return 0
	}

	switch t := v.(type) {
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		if t == "" {
			return 0
		}
		return 1
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Int() == 0 {
			return 0
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.Uint() == 0 {
			return 0
		}
	case reflect.Float32, reflect.Float64:
		if rv.Float() == 0 {
			return 0
		}
	case reflect.Slice, reflect.Map, reflect.Array:
		if rv.Len() == 0 {
			return 0
		}
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return 0
		}
	}

	return 1
}

// SetDevice forwards the requested state of a device to its telemetry control
// feed. It always succeeds: the acknowledgement records whether the command
// actually reached the telemetry API.
func (d *Dashboard) SetDevice(ctx context.Context, device string, state interface{}) *DeviceCommand {
	cmd := &DeviceCommand{
		Device: device,
		State:  StateValue(state),
	}

	if d.telemetry == nil {
		return cmd
	}

	feed := FeedName(device)

	err := d.telemetry.Send(ctx, feed, strconv.Itoa(cmd.State))
	if err != nil {
		d.swallow("telemetry", "send", err, "device", device, "feed", feed)
		return cmd
	}

	cmd.Forwarded = true

	return cmd
}
