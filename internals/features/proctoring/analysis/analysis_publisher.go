// file: internals/features/proctoring/analysis/analysis_publisher.go
package analysis

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"examproctor_backend/internals/configs"
)

/* =========================================================
   ASYNC-ANALYSIS OUTBOUND QUEUE
   Fire-and-forget handoff to the AI workers. Bounded buffer
   with drop-oldest backpressure: a saturated broker costs
   detection recall, never ingest latency or session state.
========================================================= */

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Publisher struct {
	writer messageWriter

	mu      sync.Mutex
	buf     chan kafka.Message
	dropped int64

	done chan struct{}
}

// brokerList splits a comma-separated KAFKA_BROKERS value into addresses.
func brokerList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func NewPublisher() *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokerList(configs.KafkaBrokers)...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireNone, // at-most-once, latency over durability
		Async:        false,
		BatchTimeout: 50 * time.Millisecond,
	}
	return NewPublisherWithWriter(w, configs.AnalysisQueueSize)
}

func NewPublisherWithWriter(w messageWriter, queueSize int) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Publisher{
		writer: w,
		buf:    make(chan kafka.Message, queueSize),
		done:   make(chan struct{}),
	}
}

// Start launches the drain loop. Publish may be called before Start; the
// buffer simply fills (and sheds oldest) until draining begins.
func (p *Publisher) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-p.buf:
				wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
				err := p.writer.WriteMessages(wctx, msg)
				cancel()
				if err != nil && ctx.Err() == nil {
					// transient delivery failure: logged, never escalated
					log.Printf("[ANALYSIS] publish failed topic=%s: %v", msg.Topic, err)
				}
			}
		}
	}()
}

// Publish enqueues without blocking. When the buffer is full the oldest
// queued message is shed to make room (drop-oldest policy).
func (p *Publisher) Publish(topic, key string, payload []byte) {
	msg := kafka.Message{Topic: topic, Key: []byte(key), Value: payload, Time: time.Now().UTC()}

	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		select {
		case p.buf <- msg:
			return
		default:
		}
		select {
		case <-p.buf:
			p.dropped++
			if p.dropped%100 == 1 {
				log.Printf("[ANALYSIS] outbound queue saturated, dropped=%d", p.dropped)
			}
		default:
		}
	}
}

// Dropped reports how many messages were shed under saturation.
func (p *Publisher) Dropped() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Pending reports the current buffer depth.
func (p *Publisher) Pending() int {
	return len(p.buf)
}
