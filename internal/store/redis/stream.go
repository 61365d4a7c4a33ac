package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/0Papitchu/GBPBot-sub003/internal/domain/model"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultStatusStream = "executor:tx_status"
	DefaultMaxLen       = 100_000
)

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// StatusStream publishes terminal transaction states to a Redis stream so
// other processes can follow outcomes without polling the executor.
type StatusStream struct {
	client *redis.Client
	adder  streamAdder
	stream string
	maxLen int64
}

func NewStatusStream(ctx context.Context, url, stream string, maxLen int64) (*StatusStream, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	s := newStatusStream(client, stream, maxLen)
	s.client = client
	return s, nil
}

func newStatusStream(adder streamAdder, stream string, maxLen int64) *StatusStream {
	if stream == "" {
		stream = DefaultStatusStream
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &StatusStream{adder: adder, stream: stream, maxLen: maxLen}
}

// PublishStatus appends entry to the stream, trimming it approximately to
// the configured length.
func (s *StatusStream) PublishStatus(ctx context.Context, network string, entry model.HistoryEntry) error {
	values, err := statusPayload(network, entry)
	if err != nil {
		return err
	}
	if err := s.adder.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

func (s *StatusStream) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// statusPayload flattens entry into stream fields. The full result travels
// as JSON in the "result" field.
func statusPayload(network string, entry model.HistoryEntry) (map[string]any, error) {
	values := map[string]any{
		"id":            entry.ID,
		"network":       network,
		"chain":         entry.Chain.String(),
		"status":        entry.Status.String(),
		"priority":      entry.Priority.String(),
		"hash":          entry.Hash,
		"confirmations": strconv.Itoa(entry.ConfirmationCount),
		"updated_at":    entry.LastUpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if entry.LastError != "" {
		values["error"] = entry.LastError
	}
	if entry.Result != nil {
		raw, err := json.Marshal(entry.Result)
		if err != nil {
			return nil, fmt.Errorf("encode result for %s: %w", entry.ID, err)
		}
		values["result"] = string(raw)
	}
	return values, nil
}
