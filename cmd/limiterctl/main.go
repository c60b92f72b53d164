// Package main is the administrative tool for the rate limiter state. It
// inspects and resets buckets in whichever backend the service is configured
// to use.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alex-user-go/rates/internal/app"
	"github.com/alex-user-go/rates/internal/config"
	"github.com/alex-user-go/rates/internal/obs"
	"github.com/alex-user-go/rates/internal/ratelimit"
)

var errUsage = errors.New("invalid usage")

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		printUsage(os.Stdout)
		os.Exit(0)
	}

	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if args[0] == "stats" {
		return printStats(ctx, cfg.Stats, out)
	}

	st, closeStore, err := app.OpenStore(ctx, cfg.RateLimit)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeStore(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: error closing store: %v\n", closeErr)
		}
	}()

	limiter := ratelimit.New(st, cfg.RateLimit.Requests, cfg.RateLimit.Window)

	switch {
	case args[0] == "show" && len(args) == 2:
		return show(ctx, limiter, args[1], out)
	case args[0] == "reset" && len(args) == 2:
		if err := limiter.Reset(ctx, args[1]); err != nil {
			return fmt.Errorf("failed to reset %s: %w", args[1], err)
		}
		fmt.Fprintf(out, "reset %s\n", args[1])
		return nil
	case args[0] == "reset-all" && len(args) == 1:
		if err := limiter.ResetAll(ctx); err != nil {
			return fmt.Errorf("failed to reset all identifiers: %w", err)
		}
		fmt.Fprintln(out, "reset all identifiers")
		return nil
	}
	return errUsage
}

func show(ctx context.Context, limiter *ratelimit.Limiter, id string, out io.Writer) error {
	b, ok, err := limiter.Snapshot(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	remaining, err := limiter.Remaining(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	reset, err := limiter.ResetTime(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	fmt.Fprintf(out, "identifier:  %s\n", id)
	fmt.Fprintf(out, "limit:       %d per %s\n", limiter.Limit(), limiter.Window())
	if ok {
		fmt.Fprintf(out, "tokens:      %g\n", b.Tokens)
		fmt.Fprintf(out, "last refill: %s\n", time.Unix(b.LastRefill, 0).UTC().Format(time.RFC3339))
	} else {
		fmt.Fprintln(out, "tokens:      (no bucket)")
	}
	fmt.Fprintf(out, "remaining:   %d\n", remaining)
	fmt.Fprintf(out, "resets at:   %s\n", reset.UTC().Format(time.RFC3339))
	return nil
}

func printStats(ctx context.Context, cfg config.StatsConfig, out io.Writer) error {
	if cfg.RedisAddr == "" {
		return errors.New("RATE_STATS_REDIS_ADDR is not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	allowed, denied, err := obs.NewRedisStats(rdb, obs.WithStatsPrefix(cfg.Prefix)).Totals(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}
	fmt.Fprintf(out, "allowed: %d\ndenied:  %d\n", allowed, denied)
	return nil
}

// printUsage prints the command-line usage information.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, `limiterctl - inspect and reset rate limiter state

Usage:
  limiterctl show <identifier>    Show the bucket of a client
  limiterctl reset <identifier>   Forget one client
  limiterctl reset-all            Forget every client
  limiterctl stats                Print decision totals from Redis

The backend and limits come from the same environment and .env files as the
server (RATE_LIMIT_BACKEND, RATE_LIMIT_FILE, RATE_LIMIT_REQUESTS, ...).`)
}
