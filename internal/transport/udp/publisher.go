// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"eegstream/internal/eeg"
	applog "eegstream/internal/log"
	"eegstream/internal/transport"
)

// UDPPublisher keeps the most recent band powers it was sent and
// periodically packs them into a binary packet sent over UDP. It
// implements transport.Transport so a Forwarder can feed it; events other
// than band powers are ignored.
type UDPPublisher struct {
	sender   *UDPSender
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // protects ticker and doneChan

	latestMu sync.Mutex
	latest   []eeg.BandPowers
	fresh    bool

	sequenceNum uint32

	f32Buffer    []float32
	packetBuffer *bytes.Buffer
}

// NewUDPPublisher creates a publisher sending through sender. An interval
// <= 0 defaults to 200ms, the analysis cadence.
func NewUDPPublisher(interval time.Duration, sender *UDPSender) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if interval <= 0 {
		interval = 200 * time.Millisecond
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}
	applog.Infof("UDPPublisher: Initializing (Interval: %s)", interval)
	return &UDPPublisher{
		sender:       sender,
		interval:     interval,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Send records the band powers carried by a bands Event (or a bare
// []eeg.BandPowers). They go out on the next tick.
func (p *UDPPublisher) Send(data any) error {
	var bands []eeg.BandPowers
	switch v := data.(type) {
	case transport.Event:
		if v.Type != transport.EventBands {
			return nil
		}
		b, ok := v.Data.([]eeg.BandPowers)
		if !ok {
			return fmt.Errorf("UDPPublisher: bands event carries %T", v.Data)
		}
		bands = b
	case []eeg.BandPowers:
		bands = v
	default:
		return nil
	}

	p.latestMu.Lock()
	p.latest = append(p.latest[:0], bands...)
	p.fresh = true
	p.latestMu.Unlock()
	return nil
}

// Start begins periodic publishing. Calling Start while running is a no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Infof("UDPPublisher: Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop terminates the publisher goroutine and waits for it. Safe to call
// more than once.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("UDPPublisher: Publisher goroutine finished.")
	return nil
}

/*
UDP packet layout (big endian):

	| Sequence | Timestamp | Count  | Powers          |
	| uint32   | int64     | uint16 | Count * float32 |

Timestamp is the stream timestamp of the analysis in nanoseconds. Powers
are channel-major: for each channel delta, theta, alpha, beta, gamma.
Count is channels * 5.
*/

// buildAndSendPacket sends the latest band powers. Nothing is sent until
// new powers arrive after the previous packet.
func (p *UDPPublisher) buildAndSendPacket() {
	p.latestMu.Lock()
	if !p.fresh || len(p.latest) == 0 {
		p.latestMu.Unlock()
		return
	}
	p.fresh = false
	timestamp := int64(p.latest[0].Timestamp)
	p.f32Buffer = p.f32Buffer[:0]
	for _, bp := range p.latest {
		for b := eeg.Band(0); b < eeg.BandCount; b++ {
			p.f32Buffer = append(p.f32Buffer, float32(bp.Get(b)))
		}
	}
	p.latestMu.Unlock()

	packet, err := p.pack(timestamp)
	if err != nil {
		applog.Errorf("UDPPublisher: Error packing data into binary buffer: %v", err)
		return
	}
	if err := p.sender.Send(packet); err == nil {
		applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, len(packet))
	}
}

func (p *UDPPublisher) pack(timestamp int64) ([]byte, error) {
	p.sequenceNum++
	p.packetBuffer.Reset()

	err := binary.Write(p.packetBuffer, binary.BigEndian, p.sequenceNum)
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, timestamp)
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, uint16(len(p.f32Buffer)))
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, p.f32Buffer)
	}
	if err != nil {
		return nil, err
	}
	return p.packetBuffer.Bytes(), nil
}

// Close stops the publisher and closes its sender.
func (p *UDPPublisher) Close() error {
	if err := p.Stop(); err != nil {
		return err
	}
	applog.Infof("UDPPublisher: %d packets sent, %d failed", p.sender.Sent(), p.sender.Failed())
	return p.sender.Close()
}

var _ transport.Transport = (*UDPPublisher)(nil)
