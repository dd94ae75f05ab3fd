package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Consume reads receipts from queue until ctx is done or the delivery channel
// closes. Messages handle accepts are acked. Messages that cannot be decoded
// are dropped. A message handle rejects is requeued once and dropped when it
// fails again on redelivery.
func Consume(ctx context.Context, ch Channel, queue string, logger *slog.Logger, handle func(ReceiptMessage) error) error {
	if queue == "" {
		queue = DefaultQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := declare(ch, queue); err != nil {
		return err
	}
	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			var msg ReceiptMessage
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				logger.Warn("dropping malformed receipt", "message_id", d.MessageId, "err", err)
				_ = d.Reject(false)
				continue
			}
			if err := handle(msg); err != nil {
				logger.Warn("receipt handler failed", "seq", msg.Seq, "redelivered", d.Redelivered, "err", err)
				_ = d.Reject(!d.Redelivered)
				continue
			}
			if err := d.Ack(false); err != nil {
				logger.Warn("ack failed", "seq", msg.Seq, "err", err)
			}
		}
	}
}
