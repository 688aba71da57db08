package models

import (
	"math"
	"net"
	"time"
)

// UnknownOperation is the identity reported when a payload yields no method or id.
const UnknownOperation = "unknown"

// EventKind distinguishes the two halves of a captured exchange.
type EventKind string

const (
	EventRequest  EventKind = "request"
	EventResponse EventKind = "response"
)

// Endpoint is one side of a captured TCP conversation.
type Endpoint struct {
	IP   string
	Port string
}

// String renders the endpoint as host:port, tolerating empty fields.
func (e Endpoint) String() string {
	if e.IP == "" && e.Port == "" {
		return "-"
	}
	return net.JoinHostPort(e.IP, e.Port)
}

// CapturedEvent is a single packet-level observation produced by a capture source.
// Request events fill Method/Host/URI/Payload; response events fill Status,
// Latency (raw text as emitted by the capture tool) and RequestIn.
type CapturedEvent struct {
	Kind      EventKind
	Frame     string
	Timestamp float64
	Src       Endpoint
	Dst       Endpoint
	Method    string
	Host      string
	URI       string
	Payload   string
	Status    string
	Latency   string
	RequestIn string
}

// CapturedExchange is one completed request/response pair.
type CapturedExchange struct {
	Frame            string
	Timestamp        float64
	RequestTimestamp float64
	Src              Endpoint
	Dst              Endpoint
	Method           string
	Host             string
	URI              string
	Status           string
	// Latency is the measured round trip in seconds; NaN when the capture reported garbage.
	Latency   float64
	Operation string
	PayloadID string

	Annotation *Annotation
	Link       *Link
}

// Annotation records a temporal match against the independent event log.
type Annotation struct {
	EventID   string
	EventType string
	Actor     string
	// Swapped reports whether Src/Dst were exchanged to follow the logical initiator.
	Swapped bool
	DeltaMS float64
}

// Link records the nearest preceding primary exchange for a secondary exchange.
type Link struct {
	CrossReferenceID string
	PrimaryFrame     string
	DelayMS          float64
}

// Anchor returns the estimated issue time of the exchange.
func (e CapturedExchange) Anchor() float64 {
	if math.IsNaN(e.Latency) {
		return e.Timestamp
	}
	return e.Timestamp - e.Latency
}

// HasLatency reports whether the latency is usable for order statistics.
func (e CapturedExchange) HasLatency() bool {
	return !math.IsNaN(e.Latency) && !math.IsInf(e.Latency, 0)
}

// CrossReferenceID returns the id joining this exchange with a counterpart record, if any.
func (e CapturedExchange) CrossReferenceID() string {
	if e.Link != nil && e.Link.CrossReferenceID != "" {
		return e.Link.CrossReferenceID
	}
	if e.Annotation != nil {
		return e.Annotation.EventID
	}
	return ""
}

// SecondaryDelayMS returns the linked delay in milliseconds and whether one was set.
func (e CapturedExchange) SecondaryDelayMS() (float64, bool) {
	if e.Link != nil {
		return e.Link.DelayMS, true
	}
	if e.Annotation != nil {
		return e.Annotation.DeltaMS, true
	}
	return 0, false
}

// Time converts the fractional epoch timestamp to a UTC time.
func (e CapturedExchange) Time() time.Time {
	return EpochToTime(e.Timestamp)
}

// EpochToTime converts fractional epoch seconds into a UTC time.
func EpochToTime(seconds float64) time.Time {
	sec, frac := math.Modf(seconds)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}
