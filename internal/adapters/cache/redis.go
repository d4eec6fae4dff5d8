package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bazarly/auth-service/internal/domain"
	"github.com/bazarly/auth-service/internal/ports"
)

// expiredRetention keeps a session readable for a short while past its
// expiry so verification can report EXPIRED instead of NO_ACTIVE_SESSION.
const expiredRetention = 10 * time.Minute

func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") {
		opt, parseErr := redis.ParseURL(redisURL)
		if parseErr != nil {
			return nil, fmt.Errorf("parse redis url: %w", parseErr)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

type RedisOTPSessionStore struct {
	client *redis.Client
}

func NewRedisOTPSessionStore(client *redis.Client) *RedisOTPSessionStore {
	return &RedisOTPSessionStore{client: client}
}

func sessionKey(phoneNumber string) string { return "auth:otp:session:" + phoneNumber }

func (s *RedisOTPSessionStore) Put(ctx context.Context, phoneNumber string, session ports.OTPSession, ttl time.Duration) error {
	key := sessionKey(phoneNumber)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key,
			"code_hash", session.CodeHash,
			"issued_at", session.IssuedAt.Unix(),
			"expires_at", session.ExpiresAt.Unix(),
			"attempt_count", session.AttemptCount,
			"max_attempts", session.MaxAttempts,
			"last_sent_at", session.LastSentAt.Unix(),
		)
		p.Expire(ctx, key, ttl+expiredRetention)
		return nil
	})
	return err
}

func (s *RedisOTPSessionStore) Get(ctx context.Context, phoneNumber string) (*ports.OTPSession, error) {
	data, err := s.client.HGetAll(ctx, sessionKey(phoneNumber)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	session := ports.OTPSession{PhoneNumber: phoneNumber, CodeHash: data["code_hash"]}
	session.IssuedAt = unixField(data, "issued_at")
	session.ExpiresAt = unixField(data, "expires_at")
	session.LastSentAt = unixField(data, "last_sent_at")
	session.AttemptCount = intField(data, "attempt_count")
	session.MaxAttempts = intField(data, "max_attempts")
	return &session, nil
}

func (s *RedisOTPSessionStore) IncrementAttempts(ctx context.Context, phoneNumber string) (int, error) {
	key := sessionKey(phoneNumber)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, domain.ErrNoActiveSession
	}
	count, err := s.client.HIncrBy(ctx, key, "attempt_count", 1).Result()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *RedisOTPSessionStore) Delete(ctx context.Context, phoneNumber string) (bool, error) {
	n, err := s.client.Del(ctx, sessionKey(phoneNumber)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RedisRateLimitStore tracks send timestamps per phone number in a sorted set
// scored by unix nanos, trimming entries that fell out of the window.
type RedisRateLimitStore struct {
	client *redis.Client
}

func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

func windowKey(phoneNumber string) string { return "auth:otp:window:" + phoneNumber }

func (s *RedisRateLimitStore) RecordSend(ctx context.Context, phoneNumber string, now time.Time, window time.Duration, limit int) (ports.RateLimitDecision, error) {
	key := windowKey(phoneNumber)
	cutoff := now.Add(-window).UnixNano()

	if err := s.client.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return ports.RateLimitDecision{}, err
	}
	count, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return ports.RateLimitDecision{}, err
	}
	if int(count) >= limit {
		oldest, err := s.client.ZRangeWithScores(ctx, key, 0, 0).Result()
		if err != nil {
			return ports.RateLimitDecision{}, err
		}
		retryAfter := window
		if len(oldest) > 0 {
			freeAt := time.Unix(0, int64(oldest[0].Score)).Add(window)
			if until := freeAt.Sub(now); until > 0 {
				retryAfter = until
			}
		}
		return ports.RateLimitDecision{Allowed: false, RetryAfter: retryAfter}, nil
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, key, redis.Z{
			Score:  float64(now.UnixNano()),
			Member: strconv.FormatInt(now.UnixNano(), 10),
		})
		p.Expire(ctx, key, window+time.Minute)
		return nil
	})
	if err != nil {
		return ports.RateLimitDecision{}, err
	}
	return ports.RateLimitDecision{Allowed: true}, nil
}

// ReleaseSend drops the window member written for sentAt. Members are keyed
// by nanosecond timestamp, so the rolled-back send is removed exactly.
func (s *RedisRateLimitStore) ReleaseSend(ctx context.Context, phoneNumber string, sentAt time.Time) error {
	return s.client.ZRem(ctx, windowKey(phoneNumber), strconv.FormatInt(sentAt.UnixNano(), 10)).Err()
}

type RedisRegistrationTicketStore struct {
	client *redis.Client
}

func NewRedisRegistrationTicketStore(client *redis.Client) *RedisRegistrationTicketStore {
	return &RedisRegistrationTicketStore{client: client}
}

func ticketKey(token string) string { return "auth:otp:regticket:" + token }

func (s *RedisRegistrationTicketStore) Put(ctx context.Context, token string, ticket ports.RegistrationTicket, ttl time.Duration) error {
	raw, err := json.Marshal(ticket)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, ticketKey(token), raw, ttl).Err()
}

func (s *RedisRegistrationTicketStore) Get(ctx context.Context, token string) (*ports.RegistrationTicket, error) {
	raw, err := s.client.Get(ctx, ticketKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var out ports.RegistrationTicket
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *RedisRegistrationTicketStore) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, ticketKey(token)).Err()
}

func unixField(data map[string]string, field string) time.Time {
	raw, ok := data[field]
	if !ok || raw == "" {
		return time.Time{}
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}

func intField(data map[string]string, field string) int {
	raw, ok := data[field]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
