/**
 * @description
 * Redis-backed storage for OTP challenge records. Records and their attempt
 * counters live under separate keys with the same TTL, so an expired
 * challenge simply vanishes and later lookups report ErrOTPNotFound.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Redis client.
 */
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/IvanTran0101/ibanking-tuition/internal/otp/domain"
)

// ErrOTPNotFound reports a challenge that never existed, already expired, or
// was consumed.
var ErrOTPNotFound = errors.New("otp record not found")

// Store owns the lifecycle of OTP challenge records.
type Store interface {
	// PutIfAbsent writes the record unless one already exists for the
	// payment. Returns true when this call created the record.
	PutIfAbsent(ctx context.Context, rec domain.Record, ttl time.Duration) (bool, error)

	// Find returns the live record or ErrOTPNotFound.
	Find(ctx context.Context, paymentID string) (*domain.Record, error)

	// Delete removes the record and its attempt counter.
	Delete(ctx context.Context, paymentID string) error

	// IncrementAttempts bumps the failed-attempt counter and returns the
	// new count. The counter shares the record's TTL.
	IncrementAttempts(ctx context.Context, paymentID string, ttl time.Duration) (int64, error)
}

func recordKey(paymentID string) string  { return fmt.Sprintf("otp:%s", paymentID) }
func attemptKey(paymentID string) string { return fmt.Sprintf("otp:attempts:%s", paymentID) }

// RedisStore is a concrete implementation of the Store interface for Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new instance of RedisStore.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) PutIfAbsent(ctx context.Context, rec domain.Record, ttl time.Duration) (bool, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	// SetNX keeps regeneration idempotent under redelivery.
	return s.client.SetNX(ctx, recordKey(rec.PaymentID), body, ttl).Result()
}

func (s *RedisStore) Find(ctx context.Context, paymentID string) (*domain.Record, error) {
	body, err := s.client.Get(ctx, recordKey(paymentID)).Bytes()
	if err == redis.Nil {
		return nil, ErrOTPNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec domain.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *RedisStore) Delete(ctx context.Context, paymentID string) error {
	return s.client.Del(ctx, recordKey(paymentID), attemptKey(paymentID)).Err()
}

func (s *RedisStore) IncrementAttempts(ctx context.Context, paymentID string, ttl time.Duration) (int64, error) {
	n, err := s.client.Incr(ctx, attemptKey(paymentID)).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := s.client.Expire(ctx, attemptKey(paymentID), ttl).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}
