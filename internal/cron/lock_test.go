package cron

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLockPair(t *testing.T) (*RedisLock, *RedisLock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	a, err := NewRedisLock(client, "tc:cron_lock:teamcart", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	b, err := NewRedisLock(client, "tc:cron_lock:teamcart", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	return a, b, mr
}

func TestRedisLockIsExclusive(t *testing.T) {
	a, b, mr := newLockPair(t)
	ctx := context.Background()

	ok, err := a.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if ttl := mr.TTL("tc:cron_lock:teamcart"); ttl != time.Minute {
		t.Fatalf("unexpected ttl %s", ttl)
	}
	ok, err = b.Acquire(ctx)
	if err != nil || ok {
		t.Fatalf("second acquire should fail: ok=%v err=%v", ok, err)
	}
	if err := b.Release(ctx); err != nil {
		t.Fatalf("release without ownership: %v", err)
	}
	if !mr.Exists("tc:cron_lock:teamcart") {
		t.Fatal("non-owner release must not delete the lock")
	}

	if err := a.Release(ctx); err != nil {
		t.Fatalf("owner release: %v", err)
	}
	ok, err = b.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestRedisLockReleaseAfterExpiryKeepsNewOwner(t *testing.T) {
	a, b, mr := newLockPair(t)
	ctx := context.Background()

	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}
	mr.FastForward(2 * time.Minute)
	if ok, _ := b.Acquire(ctx); !ok {
		t.Fatal("lock should be free after ttl")
	}
	if err := a.Release(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if !mr.Exists("tc:cron_lock:teamcart") {
		t.Fatal("stale owner deleted the new owner's lock")
	}
}

func TestRedisLockRenewsOwnLease(t *testing.T) {
	a, _, mr := newLockPair(t)
	ctx := context.Background()

	if ok, err := a.Acquire(ctx); err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	mr.FastForward(40 * time.Second)
	if ok, err := a.Acquire(ctx); err != nil || !ok {
		t.Fatalf("re-acquire by owner: ok=%v err=%v", ok, err)
	}
	if ttl := mr.TTL("tc:cron_lock:teamcart"); ttl != time.Minute {
		t.Fatalf("lease not renewed, ttl %s", ttl)
	}
	got, err := mr.Get("tc:cron_lock:teamcart")
	if err != nil || got != a.Owner() {
		t.Fatalf("lock value %q, want %q (err %v)", got, a.Owner(), err)
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", time.Second); err == nil {
		t.Fatal("expected client error")
	}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	if _, err := NewRedisLock(client, "", time.Second); err == nil {
		t.Fatal("expected key error")
	}
}
