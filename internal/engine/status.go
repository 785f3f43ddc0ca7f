// SPDX-License-Identifier: MIT
package engine

import (
	"errors"
	"time"

	"eegstream/internal/eeg"
)

// ErrCycleBusy is returned when an analysis cycle is requested while the
// previous one is still running. The request is skipped, not queued.
var ErrCycleBusy = errors.New("analysis cycle still running")

// Status is the liveness of a stream.
type Status int32

const (
	// StatusLive means samples are arriving.
	StatusLive Status = iota
	// StatusStale means no sample arrived within the silence timeout.
	StatusStale
	// StatusDisconnected is final; the coordinator no longer accepts samples.
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusLive:
		return "live"
	case StatusStale:
		return "stale"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// MarshalText lets statuses appear by name in JSON events.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StatusEvent reports a status transition.
type StatusEvent struct {
	Stream string    `json:"stream"`
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// Result is the outcome of one analysis cycle.
type Result struct {
	Timestamp      time.Duration      `json:"timestamp"`
	Bands          []eeg.BandPowers   `json:"bands"`
	Classification eeg.Classification `json:"classification"`
}
