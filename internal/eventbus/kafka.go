package eventbus

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/IBM/sarama"

	"collabcore/internal/model"
)

// KafkaOptions configures the Kafka-backed event bus's local queue and
// retry policy. Grounded on
// collab-service/backend/internal/collab/kafka_dispatcher.go's
// KafkaDispatcherOptions.
type KafkaOptions struct {
	Topic       string
	QueueSize   int
	Workers     int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Concurrency int
}

func (o KafkaOptions) withDefaults() KafkaOptions {
	if o.QueueSize <= 0 {
		o.QueueSize = 10_000
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxRetry <= 0 {
		o.MaxRetry = 3
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = 50 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 1 * time.Second
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 100
	}
	return o
}

// Kafka is an EventBus that publishes domain events to a Kafka topic
// through a local bounded queue drained by a small worker pool, so a
// slow or unavailable broker never blocks the caller — which, for this
// bus, is the collaboration engine's serialized per-editor loop.
// Grounded on
// collab-service/backend/internal/collab/kafka_dispatcher.go, adapted
// from a single-purpose DocOpEvent dispatcher into a generic
// model.Event sink.
type Kafka struct {
	producer sarama.SyncProducer
	opts     KafkaOptions
	queue    chan model.Event
	sem      *semaphore
	logger   *log.Logger
}

// NewKafka starts opts.Workers background goroutines draining the
// internal queue and returns the bus. Callers should arrange to stop
// publishing and let the queue drain (or just let the process exit) on
// shutdown; there is no separate Close because in-flight sends have a
// bounded retry budget and never block indefinitely.
func NewKafka(producer sarama.SyncProducer, opts KafkaOptions, logger *log.Logger) *Kafka {
	opts = opts.withDefaults()
	if logger == nil {
		logger = log.Default()
	}
	k := &Kafka{
		producer: producer,
		opts:     opts,
		queue:    make(chan model.Event, opts.QueueSize),
		sem:      newSemaphore(opts.Concurrency),
		logger:   logger,
	}
	for i := 0; i < opts.Workers; i++ {
		go k.workerLoop(i)
	}
	return k
}

// Publish enqueues evt for asynchronous delivery. If the local queue is
// full the event is logged and dropped rather than applying
// backpressure to the caller — Kafka delivery is best-effort for this
// bus: the event sink is an external collaborator, not part of the
// core's consistency guarantees.
func (k *Kafka) Publish(ctx context.Context, evt model.Event) {
	select {
	case k.queue <- evt:
	default:
		k.logger.Printf("eventbus: queue full, dropping event type=%s editor=%s", evt.Type, evt.EditorID)
	}
}

func (k *Kafka) workerLoop(workerID int) {
	for evt := range k.queue {
		k.sendWithRetry(workerID, evt)
	}
}

func (k *Kafka) sendWithRetry(workerID int, evt model.Event) {
	for attempt := 0; attempt <= k.opts.MaxRetry; attempt++ {
		if err := k.sem.Acquire(context.Background()); err == nil {
			err = k.sendOnce(evt)
			k.sem.Release()
			if err == nil {
				return
			}
			if attempt == k.opts.MaxRetry {
				k.logger.Printf("eventbus: kafka send failed, dropping event type=%s editor=%s worker=%d err=%v",
					evt.Type, evt.EditorID, workerID, err)
				return
			}
		}

		backoff := k.opts.BaseBackoff * time.Duration(1<<attempt)
		if backoff > k.opts.MaxBackoff {
			backoff = k.opts.MaxBackoff
		}
		time.Sleep(backoff)
	}
}

func (k *Kafka) sendOnce(evt model.Event) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: k.opts.Topic,
		Key:   sarama.StringEncoder(evt.EditorID),
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = k.producer.SendMessage(msg)
	return err
}
