// Package notify delivers chat messages to users out of band through a
// redis-backed outbox.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"vpsbot/internal/logger"
	"vpsbot/internal/metrics"
)

const (
	queueKey   = "notifications"
	failedKey  = "notifications:failed"
	maxTries   = 3
	popTimeout = 2 * time.Second
)

// Message is one outbound chat message. Image, when set, is a PNG sent with
// Text as its caption.
type Message struct {
	ChatID  int64     `json:"chat_id"`
	Text    string    `json:"text"`
	Image   []byte    `json:"image,omitempty"`
	Tries   int       `json:"tries"`
	Created time.Time `json:"created"`
}

// Sender queues a message for a chat user.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Transport hands a message to the chat platform.
type Transport interface {
	Deliver(ctx context.Context, m Message) error
}

type Queue struct {
	redis      redis.Cmdable
	transport  Transport
	retryDelay time.Duration
}

func New(rdb redis.Cmdable, transport Transport) *Queue {
	return &Queue{
		redis:      rdb,
		transport:  transport,
		retryDelay: 5 * time.Second,
	}
}

func (q *Queue) Send(ctx context.Context, chatID int64, text string) error {
	return q.enqueue(ctx, Message{ChatID: chatID, Text: text, Created: time.Now()})
}

func (q *Queue) SendImage(ctx context.Context, chatID int64, caption string, png []byte) error {
	return q.enqueue(ctx, Message{ChatID: chatID, Text: caption, Image: png, Created: time.Now()})
}

func (q *Queue) enqueue(ctx context.Context, m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		logger.Errorf("Failed to marshal notification: %v", err)
		return err
	}

	if err := q.redis.LPush(ctx, queueKey, data).Err(); err != nil {
		logger.Error("failed to queue notification", "chat_id", m.ChatID, "error", err)
		metrics.RecordNotification("enqueue_failed")
		return err
	}

	metrics.RecordNotification("queued")
	logger.Debug("notification queued", "chat_id", m.ChatID)
	return nil
}

// Start drains the queue until ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	logger.Info("Notification worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Notification worker stopped")
			return
		default:
			q.processNext(ctx)
		}
	}
}

func (q *Queue) processNext(ctx context.Context) {
	result, err := q.redis.BRPop(ctx, popTimeout, queueKey).Result()
	if err != nil {
		return
	}

	var m Message
	if err := json.Unmarshal([]byte(result[1]), &m); err != nil {
		logger.Errorf("Bad notification data: %v", err)
		return
	}

	m.Tries++
	if err := q.transport.Deliver(ctx, m); err != nil {
		logger.Error("notification delivery failed", "chat_id", m.ChatID, "attempt", m.Tries, "error", err)

		if m.Tries < maxTries {
			if q.retryDelay > 0 {
				time.Sleep(q.retryDelay)
			}
			data, _ := json.Marshal(m)
			q.redis.LPush(context.Background(), queueKey, data)
			metrics.RecordNotification("retried")
		} else {
			q.saveFailed(m, err)
		}
		return
	}

	metrics.RecordNotification("delivered")
	logger.Debug("notification delivered", "chat_id", m.ChatID)
}

func (q *Queue) saveFailed(m Message, err error) {
	failed := map[string]interface{}{
		"message": m,
		"error":   err.Error(),
		"time":    time.Now(),
	}
	data, _ := json.Marshal(failed)
	q.redis.LPush(context.Background(), failedKey, data)
	metrics.RecordNotification("failed")
	logger.Error("notification moved to failed queue", "chat_id", m.ChatID, "tries", m.Tries)
}

func (q *Queue) QueueLength(ctx context.Context) int64 {
	length, _ := q.redis.LLen(ctx, queueKey).Result()
	metrics.SetNotificationQueueLength(length)
	return length
}
