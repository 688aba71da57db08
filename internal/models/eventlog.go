package models

// LogEvent is one entry from the persisted application message log.
type LogEvent struct {
	ID        string
	Type      string
	Timestamp float64
	From      string
	To        string
	// Consumed flips to true at most once, when the event is matched to an exchange.
	Consumed bool
}

// EventLog is the materialised log plus the resolved hub actor (empty when unresolved).
type EventLog struct {
	Events   []LogEvent
	HubActor string
}
