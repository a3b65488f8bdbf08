// Package observability is the diagnostic sink shared by the hub and its
// transports. Level values align with OpenTelemetry SeverityNumbers so events
// can be forwarded to OTel collectors without translation.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// Level is the severity of a hub event. Each named level is the first number
// of its OTel SeverityNumber band, and every band spans four numbers.
type Level int

const (
	LevelVerbose Level = 5
	LevelInfo    Level = 9
	LevelWarning Level = 13
	LevelError   Level = 17
)

var severityText = [...]string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (l Level) String() string {
	band := (int(l) - 1) / 4
	return severityText[min(max(band, 0), len(severityText)-1)]
}

// SlogLevel maps the level onto slog. TRACE folds into debug and FATAL into
// error.
func (l Level) SlogLevel() slog.Level {
	switch {
	case l < LevelInfo:
		return slog.LevelDebug
	case l < LevelWarning:
		return slog.LevelInfo
	case l < LevelError:
		return slog.LevelWarn
	}
	return slog.LevelError
}

// EventType identifies the kind of event. Emitting packages define their own
// constants ("hub.response.unmatched", "stream.frame.rejected").
type EventType string

// Event describes something that happened inside a hub or transport. Data
// holds execution metadata (ids, channels, errors), never payloads.
type Event struct {
	Type      EventType
	Level     Level
	Timestamp time.Time
	Source    string
	Data      map[string]any
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType EventType, level Level, source string, data map[string]any) Event {
	return Event{
		Type:      eventType,
		Level:     level,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
	}
}

// Observer receives diagnostic events. OnEvent must not block the caller for
// long and must not panic: hubs call it from their receive path.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

// NoOpObserver drops every event.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(context.Context, Event) {}
