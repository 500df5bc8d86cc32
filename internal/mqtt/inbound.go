package mqtt

import (
	"log/slog"
	"sync/atomic"
)

// defaultQueueSize bounds the inbound queue between polls.
const defaultQueueSize = 16

type inboundMessage struct {
	topic   string
	payload []byte
}

// inboundQueue buffers messages between the Paho receive goroutine and
// the control goroutine. When full, the newest message is dropped.
type inboundQueue struct {
	ch      chan inboundMessage
	dropped atomic.Int64
	logger  *slog.Logger
}

func newInboundQueue(size int, logger *slog.Logger) *inboundQueue {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &inboundQueue{
		ch:     make(chan inboundMessage, size),
		logger: logger,
	}
}

// push enqueues a copy of payload. It never blocks.
func (q *inboundQueue) push(topic string, payload []byte) bool {
	msg := inboundMessage{topic: topic, payload: append([]byte(nil), payload...)}
	select {
	case q.ch <- msg:
		return true
	default:
		n := q.dropped.Add(1)
		q.logger.Warn("mqtt inbound queue full, message dropped",
			"topic", topic,
			"payload_size", len(payload),
			"dropped_total", n,
		)
		return false
	}
}

// drain calls fn for every queued message without waiting for more.
func (q *inboundQueue) drain(fn func(topic string, payload []byte)) int {
	n := 0
	for {
		select {
		case msg := <-q.ch:
			fn(msg.topic, msg.payload)
			n++
		default:
			return n
		}
	}
}
