package utils

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestContactCooldown(t *testing.T) {
	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	if !ContactCooldownTry(ctx, cli, "1.2.3.4", time.Minute) {
		t.Fatal("first submission must pass")
	}
	if ContactCooldownTry(ctx, cli, "1.2.3.4", time.Minute) {
		t.Fatal("second submission within cooldown must be refused")
	}
	if !ContactCooldownTry(ctx, cli, "5.6.7.8", time.Minute) {
		t.Fatal("other IPs are unaffected")
	}
	mr.FastForward(time.Minute + time.Second)
	if !ContactCooldownTry(ctx, cli, "1.2.3.4", time.Minute) {
		t.Fatal("cooldown must lapse")
	}
}

func TestContactDailyReserve(t *testing.T) {
	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if !ContactDailyReserve(ctx, cli, "ip", 2) {
			t.Fatalf("submission %d refused", i)
		}
	}
	if ContactDailyReserve(ctx, cli, "ip", 2) {
		t.Fatal("third submission must be refused")
	}
	if ttl := mr.TTL(dailyKey("ip")); ttl <= 0 || ttl > 24*time.Hour {
		t.Fatalf("quota key ttl = %v", ttl)
	}
}

func TestContactDailyReserveConcurrent(t *testing.T) {
	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()
	const limit, callers = 3, 20

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ContactDailyReserve(ctx, cli, "10.0.0.1", limit) {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := accepted.Load(); got != limit {
		t.Fatalf("accepted %d submissions, limit is %d", got, limit)
	}
}

func TestContactDailyRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	if !ContactDailyReserve(ctx, cli, "ip", 1) {
		t.Fatal("first submission refused")
	}
	ContactDailyRelease(ctx, cli, "ip")
	if !ContactDailyReserve(ctx, cli, "ip", 1) {
		t.Fatal("released slot must be reusable")
	}
}

func TestContactGuardFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()
	ctx := context.Background()
	if !ContactCooldownTry(ctx, cli, "ip", time.Minute) || !ContactDailyReserve(ctx, cli, "ip", 1) {
		t.Fatal("guards must fail open without redis")
	}
}
