// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	applog "eegstream/internal/log"

	"go.uber.org/zap"
)

// ErrSenderClosed is returned by Send after Close.
var ErrSenderClosed = errors.New("udp sender closed")

// UDPSender writes datagrams to one target over a connected socket.
type UDPSender struct {
	logger *zap.SugaredLogger

	mu   sync.Mutex
	conn *net.UDPConn // nil once closed

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewUDPSender resolves target ("host:port") and connects a socket to it.
func NewUDPSender(target string) (*UDPSender, error) {
	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, fmt.Errorf("resolve udp target %q: %w", target, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp target %q: %w", target, err)
	}

	s := &UDPSender{
		conn:   conn,
		logger: applog.With("target", conn.RemoteAddr().String()),
	}
	s.logger.Infow("udp sender connected", "local", conn.LocalAddr().String())
	return s, nil
}

// Send writes datagram as a single packet. A failed write is counted and
// returned; the socket stays usable.
func (s *UDPSender) Send(datagram []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return ErrSenderClosed
	}
	if _, err := s.conn.Write(datagram); err != nil {
		s.failed.Add(1)
		s.logger.Debugw("udp send failed", "bytes", len(datagram), "error", err)
		return fmt.Errorf("udp send: %w", err)
	}
	s.sent.Add(1)
	return nil
}

// Sent returns the number of datagrams written.
func (s *UDPSender) Sent() uint64 {
	return s.sent.Load()
}

// Failed returns the number of writes that returned an error.
func (s *UDPSender) Failed() uint64 {
	return s.failed.Load()
}

// Close releases the socket. Later calls are no-ops.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.logger.Infow("udp sender closed", "sent", s.sent.Load(), "failed", s.failed.Load())
	if err != nil {
		return fmt.Errorf("close udp sender: %w", err)
	}
	return nil
}
