package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	SearchStream = "ingest:search-requests"
	SearchGroup  = "ingest-workers"

	payloadField = "payload"
	streamMaxLen = 10000
)

// SearchMessage is one queued interactive search
type SearchMessage struct {
	RequestID  string    `json:"request_id,omitempty"`
	UserID     string    `json:"user_id"`
	Query      string    `json:"search_query"`
	Location   string    `json:"location,omitempty"`
	Limit      int       `json:"limit,omitempty"`
	TBS        string    `json:"tbs,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Encode renders a message as stream field values.
func Encode(msg SearchMessage) (map[string]any, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return map[string]any{payloadField: string(b)}, nil
}

// Decode reads a message back from stream field values.
func Decode(values map[string]any) (SearchMessage, error) {
	var msg SearchMessage
	raw, ok := values[payloadField]
	if !ok {
		return msg, fmt.Errorf("stream message has no %q field", payloadField)
	}
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return msg, fmt.Errorf("unexpected payload type %T", raw)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("decode search message: %w", err)
	}
	if msg.UserID == "" || strings.TrimSpace(msg.Query) == "" {
		return msg, fmt.Errorf("search message missing user_id or search_query")
	}
	return msg, nil
}

// Handler processes one dequeued search
type Handler func(ctx context.Context, msg SearchMessage) error

// SearchQueue produces and consumes queued searches
type SearchQueue struct {
	rdb      *redis.Client
	stream   string
	group    string
	consumer string
	block    time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewSearchQueue creates a queue bound to the default stream and group.
// consumer must be unique per process.
func NewSearchQueue(rdb *redis.Client, consumer string, logger *zap.Logger) *SearchQueue {
	return &SearchQueue{
		rdb:      rdb,
		stream:   SearchStream,
		group:    SearchGroup,
		consumer: consumer,
		block:    5 * time.Second,
		logger:   logger,
		now:      time.Now,
	}
}

// Enqueue appends a search and returns its stream id.
func (q *SearchQueue) Enqueue(ctx context.Context, msg SearchMessage) (string, error) {
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = q.now().UTC()
	}
	values, err := Encode(msg)
	if err != nil {
		return "", err
	}

	id, err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue search: %w", err)
	}
	return id, nil
}

// Consume reads the stream until ctx is done. It first replays messages
// this consumer left unacknowledged, then reads new ones. A message is
// acknowledged once handled or when it cannot be decoded; a handler error
// leaves it pending, and each start replays it once.
func (q *SearchQueue) Consume(ctx context.Context, handle Handler) error {
	if err := q.ensureGroup(ctx); err != nil {
		return err
	}
	q.logger.Info("Search queue consumer started",
		zap.String("stream", q.stream),
		zap.String("group", q.group),
		zap.String("consumer", q.consumer),
	)

	// pending entries are replayed once each, walking past the last id seen
	start := "0"
	for {
		if ctx.Err() != nil {
			return nil
		}

		streams, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: q.consumer,
			Streams:  []string{q.stream, start},
			Count:    10,
			Block:    q.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			start = ">"
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			q.logger.Warn("XReadGroup failed", zap.Error(err))
			if !sleep(ctx, time.Second) {
				return nil
			}
			continue
		}

		last := ""
		for _, s := range streams {
			for _, m := range s.Messages {
				last = m.ID
				q.process(ctx, m, handle)
			}
		}
		if start == ">" {
			continue
		}
		if last == "" {
			start = ">"
		} else {
			start = last
		}
	}
}

func (q *SearchQueue) process(ctx context.Context, m redis.XMessage, handle Handler) {
	msg, err := Decode(m.Values)
	if err != nil {
		q.logger.Warn("Dropping malformed search message", zap.String("id", m.ID), zap.Error(err))
		q.ack(ctx, m.ID)
		return
	}

	if err := handle(ctx, msg); err != nil {
		q.logger.Error("Queued search failed",
			zap.String("id", m.ID),
			zap.String("user_id", msg.UserID),
			zap.Error(err),
		)
		return
	}
	q.ack(ctx, m.ID)
}

func (q *SearchQueue) ack(ctx context.Context, id string) {
	// a handled message is acked even when shutdown began meanwhile
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := q.rdb.XAck(ctx, q.stream, q.group, id).Err(); err != nil {
		q.logger.Warn("XAck failed", zap.String("id", id), zap.Error(err))
	}
}

func (q *SearchQueue) ensureGroup(ctx context.Context) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
