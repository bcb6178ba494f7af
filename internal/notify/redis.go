package notify

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

const redisKeyPrefix = "notify:sent:"

// RedisDeduper shares notification claims across processes. Claims expire
// after ttl.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) Claim(ctx context.Context, learnerID, trainingID string, version int) (bool, error) {
	ok, err := d.client.SetNX(ctx, redisKey(learnerID, trainingID, version), 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim notification: %w", err)
	}
	return ok, nil
}

func (d *RedisDeduper) Release(ctx context.Context, learnerID, trainingID string, version int) error {
	if err := d.client.Del(ctx, redisKey(learnerID, trainingID, version)).Err(); err != nil {
		return fmt.Errorf("release notification claim: %w", err)
	}
	return nil
}

// redisKey hashes the identity so arbitrary ids make fixed-size keys.
func redisKey(learnerID, trainingID string, version int) string {
	sum := blake2b.Sum256([]byte(dedupeKey(learnerID, trainingID, version)))
	return redisKeyPrefix + hex.EncodeToString(sum[:])
}

func dedupeKey(learnerID, trainingID string, version int) string {
	return learnerID + "\x00" + trainingID + "\x00" + strconv.Itoa(version)
}
