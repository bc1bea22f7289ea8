package dashboard

import (
	"context"
	"strings"
	"time"

	"gopkg.in/guregu/null.v3"
)

// SecurityEvent is an intrusion event formatted for display.
type SecurityEvent struct {
	ID        int64       `json:"id"`
	Timestamp string      `json:"timestamp"`
	EventType string      `json:"event_type"`
	ImageURL  null.String `json:"image_url"`
	Processed bool        `json:"processed"`
}

// SecurityEvents returns the intrusion events recorded on the given day
// (YYYY-MM-DD), newest first. A store failure yields an empty list.
func (d *Dashboard) SecurityEvents(ctx context.Context, date string) ([]*SecurityEvent, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return nil, &ArgumentError{Argument: "date", Message: "date required (YYYY-MM-DD)"}
	}

	day, err := time.Parse(DateLayout, date)
	if err != nil {
		return nil, InvalidArgumentError("date", "must be formatted as YYYY-MM-DD")
	}

	start := day
	end := day.Add(24*time.Hour - time.Second)

	events, err := d.store.IntrusionEvents(ctx, start, end)
	if err != nil {
		d.swallow("store", "intrusion_events", err, "date", date)
		return []*SecurityEvent{}, nil
	}

	out := make([]*SecurityEvent, 0, len(events))
	for _, e := range events {
		out = append(out, &SecurityEvent{
			ID:        e.ID,
			Timestamp: e.Timestamp.UTC().Format(LabelLayout),
			EventType: e.EventType,
			ImageURL:  e.ImageURL,
			Processed: e.Processed,
		})
	}

	return out, nil
}
