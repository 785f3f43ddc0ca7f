// SPDX-License-Identifier: MIT
package transport

import (
	"eegstream/internal/log"

	"go.uber.org/zap"
)

// LoggingTransport implements the Transport interface by logging every
// event at debug level. Useful when no network consumer is attached.
type LoggingTransport struct {
	logger *zap.SugaredLogger
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	log.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{logger: log.With("transport", "log")}
}

// Send logs the received data.
func (lt *LoggingTransport) Send(data any) error {
	if ev, ok := data.(Event); ok {
		lt.logger.Debugw("event", "type", ev.Type, "stream", ev.Stream, "data", ev.Data)
		return nil
	}
	lt.logger.Debugw("event", "data", data)
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	lt.logger.Debugw("close called")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
