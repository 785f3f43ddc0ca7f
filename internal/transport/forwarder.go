// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"time"

	"eegstream/internal/eeg"
	"eegstream/internal/engine"
	"eegstream/internal/log"
)

// ForwardOptions selects which coordinator events reach the transports.
// Band powers, classifications and status changes are always forwarded.
type ForwardOptions struct {
	Raw      bool // forward raw samples
	Filtered bool // forward filtered samples
	// SampleEvery forwards one sample in every SampleEvery; values below 2
	// forward every sample.
	SampleEvery int
}

// Forwarder subscribes to a coordinator and sends its events, wrapped in
// Event envelopes, to every transport.
type Forwarder struct {
	stream     string
	transports []Transport
	opts       ForwardOptions

	raw      *engine.Subscription[eeg.Sample]
	filtered *engine.Subscription[eeg.Sample]
	bands    *engine.Subscription[[]eeg.BandPowers]
	classes  *engine.Subscription[eeg.Classification]
	status   *engine.Subscription[engine.StatusEvent]
}

// NewForwarder subscribes to c. Run must be called to start forwarding.
func NewForwarder(c *engine.Coordinator, opts ForwardOptions, transports ...Transport) *Forwarder {
	f := &Forwarder{
		stream:     c.Stream().Name,
		transports: transports,
		opts:       opts,
		bands:      c.SubscribeBands(),
		classes:    c.SubscribeClassification(),
		status:     c.SubscribeStatus(),
	}
	if opts.Raw {
		f.raw = c.SubscribeRaw()
	}
	if opts.Filtered {
		f.filtered = c.SubscribeFiltered()
	}
	return f
}

// Run forwards events until the coordinator disconnects or ctx is done.
// It unsubscribes before returning.
func (f *Forwarder) Run(ctx context.Context) {
	defer f.unsubscribe()

	raw := chanOf(f.raw)
	filtered := chanOf(f.filtered)
	bands := f.bands.C()
	classes := f.classes.C()
	status := f.status.C()

	var rawN, filteredN int
	for raw != nil || filtered != nil || bands != nil || classes != nil || status != nil {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-raw:
			if !ok {
				raw = nil
				continue
			}
			if f.keep(&rawN) {
				f.send(EventRaw, s)
			}
		case s, ok := <-filtered:
			if !ok {
				filtered = nil
				continue
			}
			if f.keep(&filteredN) {
				f.send(EventFiltered, s)
			}
		case b, ok := <-bands:
			if !ok {
				bands = nil
				continue
			}
			f.send(EventBands, b)
		case c, ok := <-classes:
			if !ok {
				classes = nil
				continue
			}
			f.send(EventClassification, c)
		case s, ok := <-status:
			if !ok {
				status = nil
				continue
			}
			f.send(EventStatus, s)
		}
	}
}

func (f *Forwarder) keep(counter *int) bool {
	n := *counter
	*counter++
	return f.opts.SampleEvery < 2 || n%f.opts.SampleEvery == 0
}

func (f *Forwarder) send(kind string, data any) {
	ev := Event{Type: kind, Stream: f.stream, SentAt: time.Now(), Data: data}
	for _, t := range f.transports {
		if err := t.Send(ev); err != nil {
			log.Debugf("Forwarder: %T rejected %s event: %v", t, kind, err)
		}
	}
}

func (f *Forwarder) unsubscribe() {
	if f.raw != nil {
		f.raw.Unsubscribe()
	}
	if f.filtered != nil {
		f.filtered.Unsubscribe()
	}
	f.bands.Unsubscribe()
	f.classes.Unsubscribe()
	f.status.Unsubscribe()
}

// chanOf returns the channel of sub, or nil (never ready) when sub is nil.
func chanOf[T any](sub *engine.Subscription[T]) <-chan T {
	if sub == nil {
		return nil
	}
	return sub.C()
}
