// Package rabbitmq implements the work queue on RabbitMQ. Undecodable or
// unhandled deliveries are rejected into a dead-letter queue.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/creatorgen/internal/queue"
	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// DeadLetterQueue returns the name of the dead-letter queue paired with name.
func DeadLetterQueue(name string) string {
	return name + ".dlq"
}

// declare sets up the durable main queue and its dead-letter queue.
func declare(ch *amqp.Channel, name string) error {
	if _, err := ch.QueueDeclare(DeadLetterQueue(name), true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter queue: %w", err)
	}
	_, err := ch.QueueDeclare(name, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": DeadLetterQueue(name),
	})
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	return nil
}

func dial(url, name string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbit dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbit channel: %w", err)
	}
	if err := declare(ch, name); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// Publisher enqueues work items as persistent messages.
type Publisher struct {
	conn  *amqp.Connection
	mu    sync.Mutex
	ch    *amqp.Channel
	queue string
}

func NewPublisher(url, name string) (*Publisher, error) {
	conn, ch, err := dial(url, name)
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: name}, nil
}

func (p *Publisher) Enqueue(ctx context.Context, item queue.WorkItem) error {
	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal work item: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(cctx,
		"",      // default exchange
		p.queue, // routing key = queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    item.JobID.String(),
			Body:         body,
			Timestamp:    item.EnqueuedAt,
		},
	)
	if err != nil {
		return fmt.Errorf("publish work item: %w", err)
	}
	return nil
}

// Ping reports whether the broker connection is still open.
func (p *Publisher) Ping(_ context.Context) error {
	if p.conn.IsClosed() {
		return amqp.ErrClosed
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Consumer runs a fixed pool of handlers over queue deliveries. Prefetch
// equals the pool size so the broker never hands out more than can run.
type Consumer struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	queue       string
	concurrency int
}

func NewConsumer(url, name string, concurrency int) (*Consumer, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	conn, ch, err := dial(url, name)
	if err != nil {
		return nil, err
	}
	if err := ch.Qos(concurrency, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbit qos: %w", err)
	}
	return &Consumer{conn: conn, ch: ch, queue: name, concurrency: concurrency}, nil
}

// Consume blocks until ctx is cancelled or the broker closes the delivery
// channel. Deliveries already dispatched finish before it returns.
func (c *Consumer) Consume(ctx context.Context, handler queue.Handler) error {
	msgs, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbit consume: %w", err)
	}

	deliveries := make(chan amqp.Delivery, c.concurrency)

	var wg sync.WaitGroup
	wg.Add(c.concurrency)
	for i := 0; i < c.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range deliveries {
				c.handle(ctx, workerID, d, handler)
			}
		}(i)
	}

	// dispatcher
	var result error
	for {
		select {
		case <-ctx.Done():
			close(deliveries)
			wg.Wait()
			return result
		case d, ok := <-msgs:
			if !ok {
				close(deliveries)
				wg.Wait()
				if ctx.Err() == nil {
					result = queue.ErrClosed
				}
				return result
			}
			deliveries <- d
		}
	}
}

func (c *Consumer) handle(ctx context.Context, workerID int, d amqp.Delivery, handler queue.Handler) {
	handleDelivery(ctx, workerID, d, handler)
}

// handleDelivery settles one delivery. Undecodable bodies are dead-lettered.
// Deliveries still buffered at shutdown, or interrupted by it, go back to the
// queue untouched. Any other handler error is retried once by requeueing and
// dead-lettered on the redelivery.
func handleDelivery(ctx context.Context, workerID int, d amqp.Delivery, handler queue.Handler) {
	var item queue.WorkItem
	if err := json.Unmarshal(d.Body, &item); err != nil || item.JobID == uuid.Nil {
		slog.Error("undecodable work item, dead-lettering", "worker", workerID, "message_id", d.MessageId, "error", err)
		nack(d, workerID, item.JobID, false)
		return
	}

	if ctx.Err() != nil {
		slog.Info("consumer stopping, requeueing work item", "worker", workerID, "job_id", item.JobID)
		nack(d, workerID, item.JobID, true)
		return
	}

	start := time.Now()
	if err := handler(ctx, item); err != nil {
		requeue := ctx.Err() != nil || !d.Redelivered
		slog.Error("work item not handled",
			"worker", workerID,
			"job_id", item.JobID,
			"redelivered", d.Redelivered,
			"requeue", requeue,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
		nack(d, workerID, item.JobID, requeue)
		return
	}

	if err := d.Ack(false); err != nil {
		slog.Warn("ack failed", "worker", workerID, "job_id", item.JobID, "error", err)
	}
}

func nack(d amqp.Delivery, workerID int, jobID uuid.UUID, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		slog.Warn("nack failed", "worker", workerID, "job_id", jobID, "requeue", requeue, "error", err)
	}
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

var (
	_ queue.Queue    = (*Publisher)(nil)
	_ queue.Consumer = (*Consumer)(nil)
)
