// SPDX-License-Identifier: MIT
package transport

import "time"

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe and must not block the caller for
// long: the pipeline forwards events from a single goroutine.
type Transport interface {
	Send(data any) error
	Close() error
}

// Event types carried in Event.Type.
const (
	EventRaw            = "raw"
	EventFiltered       = "filtered"
	EventBands          = "bands"
	EventClassification = "classification"
	EventStatus         = "status"
)

// Event is the envelope every transport publishes. Data holds the payload
// (a sample, the band powers of all channels, a classification or a status
// change) and is encoded as JSON by the network transports.
type Event struct {
	Type   string    `json:"type"`
	Stream string    `json:"stream"`
	SentAt time.Time `json:"sent_at"`
	Data   any       `json:"data"`
}
