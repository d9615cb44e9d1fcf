package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue keeps each kind under "{prefix}:{kind}:*". The braces are a
// cluster hash tag so every key of a kind lands in one slot and the Lua
// scripts stay atomic.
//
//	jobs      HASH  id -> job json
//	attempts  HASH  id -> delivery count
//	waiting   LIST  ids, LPUSH in / RPOP out
//	delayed   ZSET  id scored by run-at ms
//	active    ZSET  id scored by lease deadline ms
//	dead      ZSET  id scored by failed-at ms
//	done:{id} STRING tombstone so a re-add after ack is ignored
type RedisQueue struct {
	rdb     *redis.Client
	prefix  string
	doneTTL time.Duration
	now     func() time.Time
}

type RedisOptions struct {
	Prefix string
	// DoneTTL is how long an acknowledged id stays deduplicated.
	DoneTTL time.Duration
}

func NewRedisQueue(rdb *redis.Client, opts RedisOptions) *RedisQueue {
	prefix := strings.TrimSpace(opts.Prefix)
	if prefix == "" {
		prefix = "gobarber:q"
	}
	if opts.DoneTTL <= 0 {
		opts.DoneTTL = 7 * 24 * time.Hour
	}
	return &RedisQueue{rdb: rdb, prefix: prefix, doneTTL: opts.DoneTTL, now: time.Now}
}

type kindKeys struct {
	jobs, attempts, waiting, delayed, active, dead, done string
}

func (q *RedisQueue) keys(kind string) kindKeys {
	base := q.prefix + ":{" + kind + "}:"
	return kindKeys{
		jobs:     base + "jobs",
		attempts: base + "attempts",
		waiting:  base + "waiting",
		delayed:  base + "delayed",
		active:   base + "active",
		dead:     base + "dead",
		done:     base + "done:",
	}
}

var addScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[3]) == 1 then
  return 0
end
if redis.call("HSETNX", KEYS[1], ARGV[1], ARGV[2]) == 0 then
  return 0
end
redis.call("LPUSH", KEYS[2], ARGV[1])
return 1
`)

// KEYS: jobs, attempts, waiting, delayed, active. ARGV: now ms, lease ms.
var claimScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local due = redis.call("ZRANGEBYSCORE", KEYS[4], "-inf", now, "LIMIT", 0, 100)
for _, id in ipairs(due) do
  redis.call("ZREM", KEYS[4], id)
  redis.call("LPUSH", KEYS[3], id)
end
local expired = redis.call("ZRANGEBYSCORE", KEYS[5], "-inf", now, "LIMIT", 0, 100)
for _, id in ipairs(expired) do
  redis.call("ZREM", KEYS[5], id)
  redis.call("RPUSH", KEYS[3], id)
end
while true do
  local id = redis.call("RPOP", KEYS[3])
  if not id then
    return false
  end
  local raw = redis.call("HGET", KEYS[1], id)
  if raw then
    local attempts = redis.call("HINCRBY", KEYS[2], id, 1)
    redis.call("ZADD", KEYS[5], now + tonumber(ARGV[2]), id)
    return {raw, attempts}
  end
end
`)

// KEYS: jobs, attempts, active, done. ARGV: id, done ttl ms.
var ackScript = redis.NewScript(`
redis.call("ZREM", KEYS[3], ARGV[1])
redis.call("HDEL", KEYS[1], ARGV[1])
redis.call("HDEL", KEYS[2], ARGV[1])
redis.call("SET", KEYS[4], "1", "PX", ARGV[2])
return 1
`)

// Moves an id from active into a scored set. KEYS: jobs, active, target.
// ARGV: id, job json, score.
var parkScript = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call("ZREM", KEYS[2], ARGV[1])
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
redis.call("ZADD", KEYS[3], ARGV[3], ARGV[1])
return 1
`)

// KEYS: jobs, attempts, dead, waiting. ARGV: id, job json.
var redriveScript = redis.NewScript(`
if redis.call("ZREM", KEYS[3], ARGV[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
redis.call("HDEL", KEYS[2], ARGV[1])
redis.call("LPUSH", KEYS[4], ARGV[1])
return 1
`)

func (q *RedisQueue) Add(ctx context.Context, job Job) (Job, error) {
	if err := validate(job); err != nil {
		return Job{}, err
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = q.now().UTC()
	}
	job.Attempts = 0
	raw, err := json.Marshal(job)
	if err != nil {
		return Job{}, err
	}
	k := q.keys(job.Kind)
	if err := addScript.Run(ctx, q.rdb, []string{k.jobs, k.waiting, k.done + job.ID}, job.ID, raw).Err(); err != nil {
		return Job{}, fmt.Errorf("jobqueue add %s: %w", job.ID, err)
	}
	return job, nil
}

func (q *RedisQueue) Claim(ctx context.Context, kind string, lease time.Duration) (Job, error) {
	k := q.keys(kind)
	res, err := claimScript.Run(ctx, q.rdb,
		[]string{k.jobs, k.attempts, k.waiting, k.delayed, k.active},
		q.now().UnixMilli(), lease.Milliseconds(),
	).Slice()
	if errors.Is(err, redis.Nil) {
		return Job{}, ErrEmpty
	}
	if err != nil {
		return Job{}, fmt.Errorf("jobqueue claim %s: %w", kind, err)
	}
	if len(res) != 2 {
		return Job{}, fmt.Errorf("jobqueue claim %s: unexpected reply %v", kind, res)
	}
	raw, _ := res[0].(string)
	attempts, _ := res[1].(int64)

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return Job{}, fmt.Errorf("jobqueue claim %s: decode: %w", kind, err)
	}
	job.Attempts = int(attempts)
	return job, nil
}

func (q *RedisQueue) Ack(ctx context.Context, job Job) error {
	k := q.keys(job.Kind)
	return ackScript.Run(ctx, q.rdb,
		[]string{k.jobs, k.attempts, k.active, k.done + job.ID},
		job.ID, q.doneTTL.Milliseconds(),
	).Err()
}

func (q *RedisQueue) Retry(ctx context.Context, job Job, runAt time.Time, reason string) error {
	job.LastError = reason
	k := q.keys(job.Kind)
	return q.park(ctx, job, []string{k.jobs, k.active, k.delayed}, runAt.UnixMilli())
}

func (q *RedisQueue) Bury(ctx context.Context, job Job, reason string) error {
	now := q.now().UTC()
	job.LastError = reason
	job.FailedAt = &now
	k := q.keys(job.Kind)
	return q.park(ctx, job, []string{k.jobs, k.active, k.dead}, now.UnixMilli())
}

func (q *RedisQueue) park(ctx context.Context, job Job, keys []string, score int64) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	moved, err := parkScript.Run(ctx, q.rdb, keys, job.ID, raw, score).Int()
	if err != nil {
		return fmt.Errorf("jobqueue park %s: %w", job.ID, err)
	}
	if moved == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *RedisQueue) Dead(ctx context.Context, kind string, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	k := q.keys(kind)
	ids, err := q.rdb.ZRevRange(ctx, k.dead, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := q.rdb.Pipeline()
	rawCmd := pipe.HMGet(ctx, k.jobs, ids...)
	attemptsCmd := pipe.HMGet(ctx, k.attempts, ids...)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	attempts := attemptsCmd.Val()
	jobs := make([]Job, 0, len(ids))
	for i, v := range rawCmd.Val() {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, fmt.Errorf("jobqueue dead %s: decode %s: %w", kind, ids[i], err)
		}
		if s, ok := attempts[i].(string); ok {
			if n, err := strconv.Atoi(s); err == nil {
				job.Attempts = n
			}
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (q *RedisQueue) Redrive(ctx context.Context, kind, id string) error {
	k := q.keys(kind)
	raw, err := q.rdb.HGet(ctx, k.jobs, id).Result()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return err
	}
	job.Attempts = 0
	job.FailedAt = nil
	fresh, err := json.Marshal(job)
	if err != nil {
		return err
	}
	moved, err := redriveScript.Run(ctx, q.rdb, []string{k.jobs, k.attempts, k.dead, k.waiting}, id, fresh).Int()
	if err != nil {
		return fmt.Errorf("jobqueue redrive %s: %w", id, err)
	}
	if moved == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *RedisQueue) Stats(ctx context.Context, kind string) (Stats, error) {
	k := q.keys(kind)
	pipe := q.rdb.Pipeline()
	waiting := pipe.LLen(ctx, k.waiting)
	delayed := pipe.ZCard(ctx, k.delayed)
	active := pipe.ZCard(ctx, k.active)
	dead := pipe.ZCard(ctx, k.dead)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, err
	}
	return Stats{
		Waiting: waiting.Val(),
		Delayed: delayed.Val(),
		Active:  active.Val(),
		Dead:    dead.Val(),
	}, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

var _ Queue = (*RedisQueue)(nil)
