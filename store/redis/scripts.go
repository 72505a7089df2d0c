package redis

import goredis "github.com/redis/go-redis/v9"

// enqueueScript creates the job Hash unless the ID is taken.
// KEYS: job, all, state. ARGV: id, score, field/value pairs...
var enqueueScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 3))
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[1])
return 1
`)

// candidateScript returns the first ready pending ID not excluded.
// KEYS: pending. ARGV: job key prefix, now, excluded IDs...
var candidateScript = goredis.NewScript(`
local skip = {}
for i = 3, #ARGV do
	skip[ARGV[i]] = true
end
local now = tonumber(ARGV[2])
for _, id in ipairs(redis.call('ZRANGE', KEYS[1], 0, -1)) do
	if not skip[id] then
		local nra = tonumber(redis.call('HGET', ARGV[1] .. id, 'next_run_at') or '0')
		if nra <= now then
			return id
		end
	end
end
return false
`)

// claimScript moves a ready pending job to processing.
// KEYS: job, pending, processing. ARGV: id, now, updated_at.
var claimScript = goredis.NewScript(`
local f = redis.call('HMGET', KEYS[1], 'state', 'next_run_at', 'score')
if f[1] ~= 'pending' then
	return 0
end
if tonumber(f[2] or '0') > tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], 'state', 'processing', 'updated_at', ARGV[3])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[3], f[3], ARGV[1])
return 1
`)

// heartbeatScript refreshes updated_at on a processing job.
// KEYS: job. ARGV: updated_at.
var heartbeatScript = goredis.NewScript(`
if redis.call('HGET', KEYS[1], 'state') ~= 'processing' then
	return 0
end
redis.call('HSET', KEYS[1], 'updated_at', ARGV[1])
return 1
`)

// outcomeScript records a transition against a processing job.
// KEYS: job, processing, target. ARGV: id, state, attempts, next_run_at, updated_at.
var outcomeScript = goredis.NewScript(`
local f = redis.call('HMGET', KEYS[1], 'state', 'score')
if f[1] ~= 'processing' then
	return 0
end
redis.call('HSET', KEYS[1], 'state', ARGV[2], 'attempts', ARGV[3], 'next_run_at', ARGV[4], 'updated_at', ARGV[5])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[3], f[2], ARGV[1])
return 1
`)

// requeueScript returns -1 for an unknown job, 0 for one that is not dead,
// and 1 after moving a dead job back to pending.
// KEYS: job, dead, pending. ARGV: id, updated_at.
var requeueScript = goredis.NewScript(`
local f = redis.call('HMGET', KEYS[1], 'state', 'score')
if not f[1] then
	return -1
end
if f[1] ~= 'dead' then
	return 0
end
redis.call('HSET', KEYS[1], 'state', 'pending', 'attempts', '0', 'next_run_at', '0', 'updated_at', ARGV[2])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[3], f[2], ARGV[1])
return 1
`)

// reapScript returns processing jobs last updated before a cutoff to
// pending. Timestamps are fixed width, so string order is time order.
// KEYS: processing, pending. ARGV: job key prefix, stale_before, now.
var reapScript = goredis.NewScript(`
local reaped = {}
for _, id in ipairs(redis.call('ZRANGE', KEYS[1], 0, -1)) do
	local key = ARGV[1] .. id
	local f = redis.call('HMGET', key, 'updated_at', 'score')
	if f[1] and f[1] < ARGV[2] then
		redis.call('HSET', key, 'state', 'pending', 'next_run_at', '0', 'updated_at', ARGV[3])
		redis.call('ZREM', KEYS[1], id)
		redis.call('ZADD', KEYS[2], f[2], id)
		table.insert(reaped, id)
	end
end
return reaped
`)

var scripts = []*goredis.Script{
	enqueueScript, candidateScript, claimScript, heartbeatScript,
	outcomeScript, requeueScript, reapScript,
}
