// internal/cache/redis.go

// Package cache keeps computed daily reports in Redis so repeated summary
// requests for the same day skip the database.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"mcp-meal-snap/internal/nutrition"
)

const (
	keyPrefix        = "meal-snap:report:"
	versionKeyPrefix = "meal-snap:report-version:"

	// version keys outlive the reports they guard
	minVersionTTL = 48 * time.Hour
)

var errStale = errors.New("report version changed")

// Connect opens a client and checks the server answers.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

type RedisReportCache struct {
	client     *redis.Client
	ttl        time.Duration
	versionTTL time.Duration
}

func NewRedisReportCache(client *redis.Client, ttl time.Duration) *RedisReportCache {
	return &RedisReportCache{client: client, ttl: ttl, versionTTL: max(2*ttl, minVersionTTL)}
}

func key(userID, date string) string {
	return keyPrefix + userID + ":" + date
}

func versionKey(userID, date string) string {
	return versionKeyPrefix + userID + ":" + date
}

// Get returns ok=false on a miss. The version is returned either way and
// must be handed to Set.
func (c *RedisReportCache) Get(ctx context.Context, userID, date string) (*nutrition.DailyReport, int64, bool, error) {
	values, err := c.client.MGet(ctx, key(userID, date), versionKey(userID, date)).Result()
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to read cached report: %w", err)
	}

	version, err := parseVersion(values[1])
	if err != nil {
		return nil, 0, false, err
	}

	data, isString := values[0].(string)
	if !isString {
		return nil, version, false, nil
	}
	var report nutrition.DailyReport
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		// A stale or foreign value; treat it as a miss and let Set overwrite it.
		return nil, version, false, nil
	}
	return &report, version, true, nil
}

// Set stores report unless the day was invalidated since version was read.
// A skipped write is not an error.
func (c *RedisReportCache) Set(ctx context.Context, userID, date string, version int64, report *nutrition.DailyReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	vkey := versionKey(userID, date)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, vkey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key(userID, date), data, c.ttl)
			return nil
		})
		return err
	}, vkey)
	switch {
	case err == nil, errors.Is(err, errStale), errors.Is(err, redis.TxFailedErr):
		return nil
	default:
		return fmt.Errorf("failed to cache report: %w", err)
	}
}

// Invalidate drops the cached report and bumps the day's version.
func (c *RedisReportCache) Invalidate(ctx context.Context, userID, date string) error {
	vkey := versionKey(userID, date)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, vkey)
		pipe.Expire(ctx, vkey, c.versionTTL)
		pipe.Del(ctx, key(userID, date))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate report: %w", err)
	}
	return nil
}

func parseVersion(v any) (int64, error) {
	s, isString := v.(string)
	if !isString {
		return 0, nil
	}
	version, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid report version %q: %w", s, err)
	}
	return version, nil
}
