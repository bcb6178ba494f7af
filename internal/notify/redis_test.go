package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisKey(t *testing.T) {
	k := redisKey("alice", "minis", 2)
	if !strings.HasPrefix(k, redisKeyPrefix) {
		t.Fatalf("key %q missing prefix", k)
	}
	if len(k) != len(redisKeyPrefix)+64 {
		t.Errorf("len(key) = %d, want prefix + 64 hex chars", len(k))
	}
	if k != redisKey("alice", "minis", 2) {
		t.Error("key is not deterministic")
	}

	distinct := []string{
		redisKey("alice", "minis", 3),
		redisKey("bob", "minis", 2),
		redisKey("alice", "video", 2),
		redisKey("alice\x00minis", "", 2),
	}
	for _, other := range distinct {
		if other == k {
			t.Errorf("key collision: %q", other)
		}
	}
}

func TestRedisDeduper_UnreachableHost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping unreachable host test in short mode")
	}

	client := redis.NewClient(&redis.Options{Addr: "localhost:59999", DialTimeout: time.Second})
	defer client.Close()

	if _, err := NewRedisDeduper(client, time.Hour).Claim(t.Context(), "alice", "minis", 2); err == nil {
		t.Fatal("Claim() should return error for unreachable host")
	}
}
