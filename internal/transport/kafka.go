// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"eegstream/internal/log"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	kafkaQueue        = 1024
	kafkaWriteTimeout = 5 * time.Second
)

// MessageWriter is the part of *kafka.Writer the transport uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaTransport publishes events as JSON messages keyed by stream name, so
// all events of one stream land on the same partition in order. Messages
// are queued and written by a background goroutine; a full queue drops new
// events.
type KafkaTransport struct {
	writer  MessageWriter
	queue   chan kafka.Message
	wg      sync.WaitGroup
	logger  *zap.SugaredLogger
	closeMu sync.RWMutex
	closed  bool

	sent    atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewKafkaWriter builds a kafka-go writer for the given brokers and topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		BatchSize:              100,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// NewKafkaTransport publishes to topic on brokers.
func NewKafkaTransport(brokers []string, topic string) (*KafkaTransport, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka transport needs at least one broker")
	}
	if topic == "" {
		return nil, errors.New("kafka transport needs a topic")
	}
	log.Infof("Transport: Publishing to kafka topic %q on %v", topic, brokers)
	return NewKafkaTransportWithWriter(NewKafkaWriter(brokers, topic)), nil
}

// NewKafkaTransportWithWriter publishes through w.
func NewKafkaTransportWithWriter(w MessageWriter) *KafkaTransport {
	kt := &KafkaTransport{
		writer: w,
		queue:  make(chan kafka.Message, kafkaQueue),
		logger: log.With("transport", "kafka"),
	}
	kt.wg.Add(1)
	go kt.run()
	return kt
}

func (kt *KafkaTransport) run() {
	defer kt.wg.Done()
	for msg := range kt.queue {
		ctx, cancel := context.WithTimeout(context.Background(), kafkaWriteTimeout)
		err := kt.writer.WriteMessages(ctx, msg)
		cancel()
		if err != nil {
			kt.failed.Add(1)
			kt.logger.Warnw("write failed", "key", string(msg.Key), "error", err)
			continue
		}
		kt.sent.Add(1)
	}
}

// Send encodes data as JSON and queues it. Events are keyed by stream and
// carry their type in the "type" header.
func (kt *KafkaTransport) Send(data any) error {
	value, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode kafka message: %w", err)
	}
	msg := kafka.Message{Value: value}
	if ev, ok := data.(Event); ok {
		msg.Key = []byte(ev.Stream)
		msg.Headers = []kafka.Header{{Key: "type", Value: []byte(ev.Type)}}
	}

	kt.closeMu.RLock()
	defer kt.closeMu.RUnlock()
	if kt.closed {
		return errors.New("kafka transport is closed")
	}
	select {
	case kt.queue <- msg:
	default:
		kt.dropped.Add(1)
	}
	return nil
}

// Stats returns the sent, dropped and failed message counts.
func (kt *KafkaTransport) Stats() (sent, dropped, failed uint64) {
	return kt.sent.Load(), kt.dropped.Load(), kt.failed.Load()
}

// Close drains the queue and closes the writer.
func (kt *KafkaTransport) Close() error {
	kt.closeMu.Lock()
	if kt.closed {
		kt.closeMu.Unlock()
		return nil
	}
	kt.closed = true
	close(kt.queue)
	kt.closeMu.Unlock()

	kt.wg.Wait()
	sent, dropped, failed := kt.Stats()
	kt.logger.Infow("closed", "sent", sent, "dropped", dropped, "failed", failed)
	if err := kt.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}

var _ Transport = (*KafkaTransport)(nil)
var _ MessageWriter = (*kafka.Writer)(nil)
