package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisLockSingleOwner(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	a := New(rdb, nil, "send:ghl", time.Minute)
	b := New(rdb, nil, "send:ghl", time.Minute)

	ok, err := a.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first acquire = %v, %v", ok, err)
	}
	if ok, _ = b.Acquire(ctx); ok {
		t.Fatal("second holder acquired a held lock")
	}

	if err := a.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ = b.Acquire(ctx); !ok {
		t.Fatal("lock not acquirable after release")
	}
}

func TestRedisLockReleaseRequiresOwnership(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	a := New(rdb, nil, "send:lob_letter", time.Minute)
	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}

	// A stranger's Release must not drop the holder's lock.
	stranger := New(rdb, nil, "send:lob_letter", time.Minute)
	if err := stranger.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := stranger.Acquire(ctx); ok {
		t.Fatal("lock dropped by a non-owner release")
	}
}

func TestRedisLockExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	a := New(rdb, nil, "send:instantly", time.Second)
	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}
	mr.FastForward(2 * time.Second)

	b := New(rdb, nil, "send:instantly", time.Second)
	if ok, _ := b.Acquire(ctx); !ok {
		t.Fatal("lock did not expire")
	}
}
