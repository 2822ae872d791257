package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/devhub/devhub-go/devhub"
)

// DefaultKeyPrefix namespaces DevHub session keys.
const DefaultKeyPrefix = "devhub:session"

// RedisMemory stores sessions in Redis so several DevHub processes can
// share them.
//
// Data layout:
//   - Key: "{prefix}:{session_id}:messages"
//   - Type: sorted set, score is the message time in Unix microseconds
//   - Member: JSON-encoded devhub.Message
type RedisMemory struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	maxSize   int64
}

// RedisConfig configures RedisMemory.
type RedisConfig struct {
	URL       string        `yaml:"url"`
	TTL       time.Duration `yaml:"ttl"`
	KeyPrefix string        `yaml:"keyPrefix"`
	MaxSize   int           `yaml:"maxSize"`
}

// NewRedisMemory parses cfg.URL and creates a client. No connection is made
// until the first command; call Ping to check reachability.
func NewRedisMemory(cfg RedisConfig) (*RedisMemory, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	return newRedisMemory(redis.NewClient(opts), cfg), nil
}

func newRedisMemory(client *redis.Client, cfg RedisConfig) *RedisMemory {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	maxSize := int64(cfg.MaxSize)
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &RedisMemory{
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: prefix,
		maxSize:   maxSize,
	}
}

// Ping checks that Redis answers.
func (r *RedisMemory) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}
	return nil
}

func (r *RedisMemory) sessionKey(sessionID string) string {
	return fmt.Sprintf("%s:%s:messages", r.keyPrefix, sessionID)
}

func encodeMessage(message *devhub.Message) (string, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return "", fmt.Errorf("failed to serialize message: %w", err)
	}
	return string(data), nil
}

func decodeMessage(data string) (*devhub.Message, error) {
	var message devhub.Message
	if err := json.Unmarshal([]byte(data), &message); err != nil {
		return nil, fmt.Errorf("failed to deserialize message: %w", err)
	}
	if message.Metadata == nil {
		message.Metadata = make(map[string]interface{})
	}
	return &message, nil
}

// Store appends message, trims the session to its cap and refreshes the TTL
// in one pipeline.
func (r *RedisMemory) Store(ctx context.Context, sessionID string, message *devhub.Message) error {
	if err := message.Validate(); err != nil {
		return err
	}
	value, err := encodeMessage(message)
	if err != nil {
		return err
	}

	key := r.sessionKey(sessionID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(message.Timestamp.UnixMicro()), Member: value})
		pipe.ZRemRangeByRank(ctx, key, 0, -r.maxSize-1)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store message: %w", err)
	}
	return nil
}

// Retrieve returns session messages, most recent first. Malformed members
// are skipped.
func (r *RedisMemory) Retrieve(ctx context.Context, sessionID string, opts RetrieveOptions) ([]*devhub.Message, error) {
	limit := opts.limit()
	lower := "-inf"
	if !opts.Since.IsZero() {
		lower = strconv.FormatInt(opts.Since.UnixMicro(), 10)
	}

	values, err := r.client.ZRevRangeByScore(ctx, r.sessionKey(sessionID), &redis.ZRangeBy{
		Min:   lower,
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve messages: %w", err)
	}

	messages := make([]*devhub.Message, 0, len(values))
	for _, value := range values {
		message, err := decodeMessage(value)
		if err != nil {
			continue
		}
		messages = append(messages, message)
	}
	return messages, nil
}

// Clear deletes the session key.
func (r *RedisMemory) Clear(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (r *RedisMemory) Close() error {
	return r.client.Close()
}
