package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	retryBaseDelay = 200 * time.Millisecond
	retryMaxDelay  = 30 * time.Second
)

// Handler must return nil only when the message was processed and its
// offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r       *kafka.Reader
	workers int
	logger  *slog.Logger
}

func NewConsumer(brokers []string, group, topic string, workers int, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, logger: logger}
}

// Start fetches messages and fans them out to a pool of workers until ctx
// is cancelled. All messages of a partition go to the same worker, which
// retries a failing message until it succeeds before moving on, so a
// partition's offset is never committed past an unprocessed message.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	queues := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup

	for i := range queues {
		queues[i] = make(chan kafka.Message, 256)
		wg.Add(1)
		go func(id int, jobs <-chan kafka.Message) {
			defer wg.Done()
			for m := range jobs {
				if err := handleWithRetry(ctx, h, m, c.logger.With(slog.Int("worker", id))); err != nil {
					// Only ctx ends the retry loop; the message stays
					// uncommitted and is redelivered after restart.
					return
				}
				if err := c.r.CommitMessages(ctx, m); err != nil {
					c.logger.Error("commit offset failed", slog.Int64("offset", m.Offset), slog.Any("error", err))
				}
			}
		}(i, queues[i])
	}

	defer wg.Wait()
	defer func() {
		for _, q := range queues {
			close(q)
		}
	}()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		select {
		case queues[m.Partition%c.workers] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

// handleWithRetry runs h until it succeeds, backing off exponentially
// between attempts. It returns ctx's error if ctx ends first.
func handleWithRetry(ctx context.Context, h Handler, m kafka.Message, logger *slog.Logger) error {
	delay := retryBaseDelay
	for attempt := 1; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			return nil
		}
		logger.Error("handle message failed",
			slog.Int("partition", m.Partition),
			slog.Int64("offset", m.Offset),
			slog.Int("attempt", attempt),
			slog.Any("error", err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}
}
