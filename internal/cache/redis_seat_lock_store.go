package cache

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smarttransit/seat-booking-core/internal/models"
)

const (
	defaultKeyPrefix = "seatlock:"

	// expiry value stored for a permanent lock
	permanentExpiry = "0"
)

// Locks of one schedule live in a hash keyed by seat number. Each value is
// "<owner>|<acquired ms>|<expires ms>" with expires 0 for a permanent lock.
// Expiry is compared against the caller's clock, never the server's, so an
// expired entry stays in the hash as a dead lock until the sweeper deletes it.
//
// Every multi-seat operation runs as one Lua script and is therefore atomic.
// RenewOwner and Sweep touch hashes that are not declared as KEYS, so the
// store targets a single Redis node, not a cluster.
const luaDecode = `
local function decode(v)
  local o, a, e = string.match(v, '^(.*)|(%d+)|(%d+)$')
  return o, a, e
end
`

// KEYS[1] schedule hash, KEYS[2] owner index, KEYS[3] schedule index
// ARGV owner, now, expires, schedule id, seats...
var acquireScript = redis.NewScript(luaDecode + `
local hash, owner, now, exp = KEYS[1], ARGV[1], tonumber(ARGV[2]), ARGV[3]
local conflicts = {}
for i = 5, #ARGV do
  local v = redis.call('HGET', hash, ARGV[i])
  if v then
    local o, a, e = decode(v)
    local en = tonumber(e)
    if (en == 0 or en > now) and (o ~= owner or en == 0) then
      conflicts[#conflicts + 1] = ARGV[i]
    end
  end
end
if #conflicts > 0 then
  table.insert(conflicts, 1, 'conflict')
  return conflicts
end
local out = {'ok'}
for i = 5, #ARGV do
  local seat = ARGV[i]
  local acquired, expires = ARGV[2], exp
  local v = redis.call('HGET', hash, seat)
  if v then
    local o, a, e = decode(v)
    if tonumber(e) > now then
      acquired = a
      if tonumber(e) > tonumber(exp) then
        expires = e
      end
    end
  end
  local value = owner .. '|' .. acquired .. '|' .. expires
  redis.call('HSET', hash, seat, value)
  redis.call('SADD', KEYS[2], ARGV[4] .. '#' .. seat)
  out[#out + 1] = seat .. '|' .. value
end
redis.call('SADD', KEYS[3], ARGV[4])
return out
`)

// KEYS[1] schedule hash, KEYS[2] owner index
// ARGV owner, schedule id, "1" to drop permanent locks too, seats...
var releaseScript = redis.NewScript(luaDecode + `
local released = 0
for i = 4, #ARGV do
  local v = redis.call('HGET', KEYS[1], ARGV[i])
  if v then
    local o, a, e = decode(v)
    if o == ARGV[1] and (ARGV[3] == '1' or tonumber(e) ~= 0) then
      redis.call('HDEL', KEYS[1], ARGV[i])
      redis.call('SREM', KEYS[2], ARGV[2] .. '#' .. ARGV[i])
      released = released + 1
    end
  end
end
return released
`)

// KEYS[1] schedule hash
// ARGV owner, now, new expiry (0 = permanent), seats...
var updateOwnedScript = redis.NewScript(luaDecode + `
local owner, now = ARGV[1], tonumber(ARGV[2])
local missing = {}
local held = {}
for i = 4, #ARGV do
  local v = redis.call('HGET', KEYS[1], ARGV[i])
  local ok = false
  if v then
    local o, a, e = decode(v)
    local en = tonumber(e)
    if o == owner and en ~= 0 and en > now then
      ok = true
      held[ARGV[i]] = a
    end
  end
  if not ok then
    missing[#missing + 1] = ARGV[i]
  end
end
if #missing > 0 then
  table.insert(missing, 1, 'missing')
  return missing
end
for i = 4, #ARGV do
  redis.call('HSET', KEYS[1], ARGV[i], owner .. '|' .. held[ARGV[i]] .. '|' .. ARGV[3])
end
return {'ok'}
`)

// KEYS[1] owner index
// ARGV owner, now, expires, schedule hash prefix
var renewOwnerScript = redis.NewScript(luaDecode + `
local owner, now = ARGV[1], tonumber(ARGV[2])
local renewed = 0
for _, member in ipairs(redis.call('SMEMBERS', KEYS[1])) do
  local schedule, seat = string.match(member, '^(.*)#(%d+)$')
  local hash = ARGV[4] .. schedule
  local v = redis.call('HGET', hash, seat)
  local o, a, e
  if v then
    o, a, e = decode(v)
  end
  if not v or o ~= owner then
    redis.call('SREM', KEYS[1], member)
  else
    local en = tonumber(e)
    if en ~= 0 and en > now then
      if en < tonumber(ARGV[3]) then
        redis.call('HSET', hash, seat, owner .. '|' .. a .. '|' .. ARGV[3])
      end
      renewed = renewed + 1
    end
  end
end
return renewed
`)

// KEYS[1] schedule hash, KEYS[2] schedule index
// ARGV now, owner index prefix, schedule id
var sweepScript = redis.NewScript(luaDecode + `
local now = tonumber(ARGV[1])
local removed = 0
local entries = redis.call('HGETALL', KEYS[1])
for i = 1, #entries, 2 do
  local o, a, e = decode(entries[i + 1])
  local en = tonumber(e)
  if en ~= 0 and en <= now then
    redis.call('HDEL', KEYS[1], entries[i])
    redis.call('SREM', ARGV[2] .. o, ARGV[3] .. '#' .. entries[i])
    removed = removed + 1
  end
end
if redis.call('HLEN', KEYS[1]) == 0 then
  redis.call('SREM', KEYS[2], ARGV[3])
end
return removed
`)

// RedisSeatLockStore keeps seat locks in Redis so several engine instances
// can share them
type RedisSeatLockStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisSeatLockStore creates a store; an empty prefix uses "seatlock:"
func NewRedisSeatLockStore(client redis.UniversalClient, prefix string) *RedisSeatLockStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisSeatLockStore{client: client, prefix: prefix}
}

func (s *RedisSeatLockStore) scheduleKey(scheduleID string) string {
	return s.prefix + "schedule:" + scheduleID
}

func (s *RedisSeatLockStore) ownerKey(owner string) string {
	return s.prefix + "owner:" + owner
}

func (s *RedisSeatLockStore) schedulesKey() string {
	return s.prefix + "schedules"
}

// Acquire grants every seat to owner or none of them
func (s *RedisSeatLockStore) Acquire(ctx context.Context, scheduleID string, seats []int, owner string, now, expiresAt time.Time) ([]models.SeatLock, error) {
	seats = models.NormalizeSeats(seats)

	args := append([]interface{}{owner, millis(now), millis(expiresAt), scheduleID}, seatArgs(seats)...)
	res, err := acquireScript.Run(ctx, s.client,
		[]string{s.scheduleKey(scheduleID), s.ownerKey(owner), s.schedulesKey()}, args...,
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("acquire script failed: %w", err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("acquire script returned no status")
	}

	if res[0] == "conflict" {
		conflicts, err := parseSeats(res[1:])
		if err != nil {
			return nil, err
		}
		return nil, models.ConflictError{Resource: "seat", Seats: conflicts}
	}

	granted := make([]models.SeatLock, 0, len(res)-1)
	for _, entry := range res[1:] {
		i := strings.IndexByte(entry, '|')
		if i < 0 {
			return nil, fmt.Errorf("malformed lock entry %q", entry)
		}
		seat, err := strconv.Atoi(entry[:i])
		if err != nil {
			return nil, fmt.Errorf("malformed lock entry %q", entry)
		}
		lock, err := decodeLock(scheduleID, seat, entry[i+1:])
		if err != nil {
			return nil, err
		}
		granted = append(granted, lock)
	}
	return granted, nil
}

// Release deletes the owner's temporary locks on seats
func (s *RedisSeatLockStore) Release(ctx context.Context, scheduleID string, seats []int, owner string) (int, error) {
	return s.release(ctx, scheduleID, seats, owner, "0")
}

// ReleaseAssigned deletes the owner's locks on seats, permanent ones included
func (s *RedisSeatLockStore) ReleaseAssigned(ctx context.Context, scheduleID string, seats []int, owner string) (int, error) {
	return s.release(ctx, scheduleID, seats, owner, "1")
}

func (s *RedisSeatLockStore) release(ctx context.Context, scheduleID string, seats []int, owner, permanent string) (int, error) {
	args := append([]interface{}{owner, scheduleID, permanent}, seatArgs(models.NormalizeSeats(seats))...)
	n, err := releaseScript.Run(ctx, s.client,
		[]string{s.scheduleKey(scheduleID), s.ownerKey(owner)}, args...,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("release script failed: %w", err)
	}
	return n, nil
}

// RenewOwner extends every live, non-permanent lock of owner, never shortening one
func (s *RedisSeatLockStore) RenewOwner(ctx context.Context, owner string, now, expiresAt time.Time) (int, error) {
	n, err := renewOwnerScript.Run(ctx, s.client,
		[]string{s.ownerKey(owner)},
		owner, millis(now), millis(expiresAt), s.scheduleKey(""),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("renew script failed: %w", err)
	}
	return n, nil
}

// RenewSeats extends the owner's locks on seats, all or nothing
func (s *RedisSeatLockStore) RenewSeats(ctx context.Context, scheduleID string, seats []int, owner string, now, expiresAt time.Time) error {
	return s.updateOwned(ctx, scheduleID, seats, owner, now, millis(expiresAt))
}

// MakePermanent clears the expiry of the owner's locks on seats, all or nothing
func (s *RedisSeatLockStore) MakePermanent(ctx context.Context, scheduleID string, seats []int, owner string, now time.Time) error {
	return s.updateOwned(ctx, scheduleID, seats, owner, now, permanentExpiry)
}

func (s *RedisSeatLockStore) updateOwned(ctx context.Context, scheduleID string, seats []int, owner string, now time.Time, expiry string) error {
	args := append([]interface{}{owner, millis(now), expiry}, seatArgs(models.NormalizeSeats(seats))...)
	res, err := updateOwnedScript.Run(ctx, s.client, []string{s.scheduleKey(scheduleID)}, args...).StringSlice()
	if err != nil {
		return fmt.Errorf("seat lock update script failed: %w", err)
	}
	if len(res) > 0 && res[0] == "missing" {
		missing, err := parseSeats(res[1:])
		if err != nil {
			return err
		}
		return models.ConflictError{Resource: "seat lock", Seats: missing, Err: models.ErrSeatsNotLocked}
	}
	return nil
}

// LiveLocks lists live locks on a schedule ordered by seat
func (s *RedisSeatLockStore) LiveLocks(ctx context.Context, scheduleID string, now time.Time) ([]models.SeatLock, error) {
	entries, err := s.client.HGetAll(ctx, s.scheduleKey(scheduleID)).Result()
	if err != nil {
		return nil, err
	}

	locks := make([]models.SeatLock, 0, len(entries))
	for field, value := range entries {
		seat, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("malformed seat field %q", field)
		}
		lock, err := decodeLock(scheduleID, seat, value)
		if err != nil {
			return nil, err
		}
		if lock.IsLive(now) {
			locks = append(locks, lock)
		}
	}
	sort.Slice(locks, func(i, j int) bool { return locks[i].SeatNumber < locks[j].SeatNumber })
	return locks, nil
}

// Sweep deletes every lock that expired by now
func (s *RedisSeatLockStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	scheduleIDs, err := s.client.SMembers(ctx, s.schedulesKey()).Result()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range scheduleIDs {
		n, err := sweepScript.Run(ctx, s.client,
			[]string{s.scheduleKey(id), s.schedulesKey()},
			millis(now), s.ownerKey(""), id,
		).Int()
		if err != nil {
			return removed, fmt.Errorf("sweep script failed for schedule %s: %w", id, err)
		}
		removed += n
	}
	return removed, nil
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func seatArgs(seats []int) []interface{} {
	args := make([]interface{}, len(seats))
	for i, seat := range seats {
		args[i] = strconv.Itoa(seat)
	}
	return args
}

func parseSeats(values []string) ([]int, error) {
	seats := make([]int, len(values))
	for i, v := range values {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("malformed seat %q", v)
		}
		seats[i] = n
	}
	return seats, nil
}

// decodeLock parses "<owner>|<acquired ms>|<expires ms>"; the owner may itself contain '|'
func decodeLock(scheduleID string, seat int, value string) (models.SeatLock, error) {
	j := strings.LastIndexByte(value, '|')
	if j < 0 {
		return models.SeatLock{}, fmt.Errorf("malformed lock value %q", value)
	}
	i := strings.LastIndexByte(value[:j], '|')
	if i < 0 {
		return models.SeatLock{}, fmt.Errorf("malformed lock value %q", value)
	}

	acquired, err := strconv.ParseInt(value[i+1:j], 10, 64)
	if err != nil {
		return models.SeatLock{}, fmt.Errorf("malformed lock value %q", value)
	}
	expires, err := strconv.ParseInt(value[j+1:], 10, 64)
	if err != nil {
		return models.SeatLock{}, fmt.Errorf("malformed lock value %q", value)
	}

	lock := models.SeatLock{
		ScheduleID:     scheduleID,
		SeatNumber:     seat,
		OwnerSessionID: value[:i],
		AcquiredAt:     time.UnixMilli(acquired).UTC(),
	}
	if expires != 0 {
		exp := time.UnixMilli(expires).UTC()
		lock.ExpiresAt = &exp
	}
	return lock, nil
}
