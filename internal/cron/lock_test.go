package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeRedis struct {
	values   map[string]string
	setErr   error
	released []string
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if f.setErr != nil {
		return false, f.setErr
	}
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeRedis) ReleaseIfOwner(_ context.Context, key, owner string) (bool, error) {
	f.released = append(f.released, owner)
	if f.values[key] != owner {
		return false, nil
	}
	delete(f.values, key)
	return true, nil
}

func TestRedisLockAcquireRelease(t *testing.T) {
	store := &fakeRedis{values: map[string]string{}}
	first, err := NewRedisLock(store, "er:lock:cron", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, _ := NewRedisLock(store, "er:lock:cron", time.Minute)
	ctx := context.Background()

	ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil || ok {
		t.Fatalf("second acquire should lose: ok=%v err=%v", ok, err)
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release without ownership: %v", err)
	}
	if len(store.released) != 0 {
		t.Fatalf("non-owner should not touch the key")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, held := store.values["er:lock:cron"]; held {
		t.Fatalf("expected key deleted after owner release")
	}
	ok, _ = second.Acquire(ctx)
	if !ok {
		t.Fatalf("expected lock to be free after release")
	}
}

func TestRedisLockAcquireError(t *testing.T) {
	lock, _ := NewRedisLock(&fakeRedis{values: map[string]string{}, setErr: errors.New("timeout")}, "k", 0)
	if _, err := lock.Acquire(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if lock.ttl != defaultLockTTL {
		t.Fatalf("expected default ttl, got %s", lock.ttl)
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", time.Minute); err == nil {
		t.Fatalf("expected nil client error")
	}
	if _, err := NewRedisLock(&fakeRedis{}, "", time.Minute); err == nil {
		t.Fatalf("expected empty key error")
	}
}

func TestRedisLockReportsTTL(t *testing.T) {
	lock, err := NewRedisLock(&fakeRedis{}, "cron", 0)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	if lock.TTL() != defaultLockTTL {
		t.Fatalf("expected default ttl %v, got %v", defaultLockTTL, lock.TTL())
	}
}
