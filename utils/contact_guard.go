package utils

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const guardTimeout = 500 * time.Millisecond

func contactKey(parts ...string) string {
	return "contact:" + strings.Join(parts, ":")
}

// ContactCooldownTry enforces a short cooldown between submissions per IP.
// It fails open when redis is unreachable.
func ContactCooldownTry(ctx context.Context, cli *redis.Client, ip string, cooldown time.Duration) bool {
	if cli == nil || cooldown <= 0 {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, guardTimeout)
	defer cancel()
	ok, err := cli.SetNX(ctx, contactKey("cooldown", ip), "1", cooldown).Result()
	if err != nil {
		return true
	}
	return ok
}

func dailyKey(ip string) string {
	return contactKey("day", ip, time.Now().UTC().Format("20060102"))
}

// ContactDailyReserve takes one of today's limit slots for ip. The counter is
// incremented before it is compared, so concurrent submissions cannot both
// take the last slot. Refused attempts keep counting. It fails open.
func ContactDailyReserve(ctx context.Context, cli *redis.Client, ip string, limit int) bool {
	if cli == nil || limit <= 0 {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, guardTimeout)
	defer cancel()
	key := dailyKey(ip)
	var incr *redis.IntCmd
	_, err := cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, 24*time.Hour)
		return nil
	})
	if err != nil {
		return true
	}
	return incr.Val() <= int64(limit)
}

// ContactDailyRelease returns a slot taken by ContactDailyReserve when the
// inquiry was not stored after all.
func ContactDailyRelease(ctx context.Context, cli *redis.Client, ip string) {
	if cli == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, guardTimeout)
	defer cancel()
	_ = cli.Decr(ctx, dailyKey(ip)).Err()
}
