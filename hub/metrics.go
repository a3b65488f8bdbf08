package hub

import "sync/atomic"

type MetricsSnapshot struct {
	RequestsSent      int64
	ResponsesReceived int64
	RequestsServed    int64
	HandlerFailures   int64
	EventsEmitted     int64
	EventsDelivered   int64
	Unmatched         int64
	Dropped           int64
	Pending           int64
}

type Metrics struct {
	requestsSent      atomic.Int64
	responsesReceived atomic.Int64
	requestsServed    atomic.Int64
	handlerFailures   atomic.Int64
	eventsEmitted     atomic.Int64
	eventsDelivered   atomic.Int64
	unmatched         atomic.Int64
	dropped           atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordRequestSent(delta int) {
	m.requestsSent.Add(int64(delta))
}

func (m *Metrics) RecordResponseReceived(delta int) {
	m.responsesReceived.Add(int64(delta))
}

func (m *Metrics) RecordRequestServed(delta int) {
	m.requestsServed.Add(int64(delta))
}

func (m *Metrics) RecordHandlerFailure(delta int) {
	m.handlerFailures.Add(int64(delta))
}

func (m *Metrics) RecordEventEmitted(delta int) {
	m.eventsEmitted.Add(int64(delta))
}

func (m *Metrics) RecordEventDelivered(delta int) {
	m.eventsDelivered.Add(int64(delta))
}

func (m *Metrics) RecordUnmatched(delta int) {
	m.unmatched.Add(int64(delta))
}

func (m *Metrics) RecordDropped(delta int) {
	m.dropped.Add(int64(delta))
}

// Snapshot reads every counter. pending is supplied by the caller since it is
// a gauge owned by the pending-request table.
func (m *Metrics) Snapshot(pending int) MetricsSnapshot {
	return MetricsSnapshot{
		RequestsSent:      m.requestsSent.Load(),
		ResponsesReceived: m.responsesReceived.Load(),
		RequestsServed:    m.requestsServed.Load(),
		HandlerFailures:   m.handlerFailures.Load(),
		EventsEmitted:     m.eventsEmitted.Load(),
		EventsDelivered:   m.eventsDelivered.Load(),
		Unmatched:         m.unmatched.Load(),
		Dropped:           m.dropped.Load(),
		Pending:           int64(pending),
	}
}
