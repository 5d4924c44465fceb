package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"torgbot/internal/database"
)

// RateLimitService enforces a fixed per-user question budget per window.
// Check and Record are deliberately separate: a question is only charged
// against the budget after it passes relevance and cache checks, so cached
// and off-topic answers stay free.
//
// Redis, when configured, is the fast path; without it (or when it errors)
// the persisted user_limits table serves the same semantics. Any storage
// fault fails open: a broken limiter must not block the bot.
type RateLimitService struct {
	db     *database.DB
	rdb    *redis.Client
	limit  int
	window time.Duration

	now func() time.Time
}

func NewRateLimitService(db *database.DB, rdb *redis.Client, limit int, window time.Duration) *RateLimitService {
	return &RateLimitService{
		db:     db,
		rdb:    rdb,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Check reports whether the user may ask another question in the current
// window. Check owns window rollover: an expired window is reset here, never
// in Record.
func (s *RateLimitService) Check(ctx context.Context, userID int64) bool {
	if s.rdb != nil {
		count, err := s.rdb.Get(ctx, s.redisKey(userID)).Int()
		if err == nil {
			return count < s.limit
		}
		if errors.Is(err, redis.Nil) {
			return true
		}
		log.Printf("⚠️  [RATELIMIT] Redis check failed, falling back to database: %v", err)
	}

	return s.checkDB(userID)
}

func (s *RateLimitService) checkDB(userID int64) bool {
	var count int
	var lastReset time.Time

	err := s.db.QueryRow(
		`SELECT requests_count, last_reset FROM user_limits WHERE user_id = ?`, userID,
	).Scan(&count, &lastReset)
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	if err != nil {
		log.Printf("⚠️  [RATELIMIT] Check failed for user %d, allowing: %v", userID, err)
		return true
	}

	if s.now().Sub(lastReset) >= s.window {
		if _, err := s.db.Exec(
			`UPDATE user_limits SET requests_count = 0, last_reset = ? WHERE user_id = ?`,
			s.now(), userID,
		); err != nil {
			log.Printf("⚠️  [RATELIMIT] Window reset failed for user %d: %v", userID, err)
		}
		return true
	}

	return count < s.limit
}

// Record charges one question against the user's budget
func (s *RateLimitService) Record(ctx context.Context, userID int64) {
	if s.rdb != nil {
		key := s.redisKey(userID)
		count, err := s.rdb.Incr(ctx, key).Result()
		if err == nil {
			// ExpireNX also heals a counter whose TTL was lost on an earlier
			// increment; a counter without a TTL would limit the user forever
			if err := s.rdb.ExpireNX(ctx, key, s.window).Err(); err != nil {
				log.Printf("⚠️  [RATELIMIT] Failed to set TTL on %s: %v", key, err)
				if count == 1 {
					s.rdb.Del(ctx, key)
				}
			}
			return
		}
		log.Printf("⚠️  [RATELIMIT] Redis record failed, falling back to database: %v", err)
	}

	stmt := `INSERT INTO user_limits (user_id, requests_count, last_reset) VALUES (?, 1, ?)
		 ON CONFLICT(user_id) DO UPDATE SET requests_count = requests_count + 1`
	if s.db.IsMySQL() {
		stmt = `INSERT INTO user_limits (user_id, requests_count, last_reset) VALUES (?, 1, ?)
		 ON DUPLICATE KEY UPDATE requests_count = requests_count + 1`
	}

	if _, err := s.db.Exec(stmt, userID, s.now()); err != nil {
		log.Printf("⚠️  [RATELIMIT] Record failed for user %d: %v", userID, err)
	}
}

func (s *RateLimitService) redisKey(userID int64) string {
	return fmt.Sprintf("ratelimit:user:%d", userID)
}
