package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/imageq/image-resizer/internal/model"
)

var (
	ErrTaskNotFound       = errors.New("task not found")
	ErrResultNotFound     = errors.New("result not found")
	ErrBackendUnavailable = errors.New("task store unavailable")
)

const (
	stateKeyPrefix  = "task:state:"
	resultKeyPrefix = "task:result:"
	errorKeyPrefix  = "task:error:"
)

// advanceScript moves the state key forward along the lifecycle. The write
// is skipped when the stored state already has an equal or higher rank, so
// a terminal state is never overwritten and redelivered messages cannot
// rewind a job. Ranks mirror model.State.
var advanceScript = redis.NewScript(`
local ranks = {SENT = 1, PENDING = 2, SUCCESS = 3, FAILURE = 3}
local cur = redis.call('GET', KEYS[1])
local curRank = 0
if cur then curRank = ranks[cur] or 0 end
local newRank = ranks[ARGV[1]] or 0
if newRank <= curRank then return 0 end
if tonumber(ARGV[2]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// setResultScript attaches the result reference and marks the task SUCCESS
// in one step. It refuses to touch a task that already reached a terminal
// state: a second delivery of the same job must not resurrect a result the
// client has already consumed.
var setResultScript = redis.NewScript(`
local ranks = {SENT = 1, PENDING = 2, SUCCESS = 3, FAILURE = 3}
local cur = redis.call('GET', KEYS[1])
local curRank = 0
if cur then curRank = ranks[cur] or 0 end
if curRank >= 3 then return 0 end
if tonumber(ARGV[2]) > 0 then
	redis.call('SET', KEYS[1], 'SUCCESS', 'PX', ARGV[2])
	redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[2])
else
	redis.call('SET', KEYS[1], 'SUCCESS')
	redis.call('SET', KEYS[2], ARGV[1])
end
return 1
`)

// Repository keeps task lifecycle state in Redis. Each task uses two keys:
// one for its state and one for the unconsumed result reference. Splitting
// the two lets TakeResult invalidate the result with a single GETDEL while
// the state keeps reporting SUCCESS.
type Repository struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRepository creates a Repository. A zero ttl keeps records forever.
func NewRepository(rdb *redis.Client, ttl time.Duration) *Repository {
	return &Repository{rdb: rdb, ttl: ttl}
}

// PutPlaceholder records that the task exists and is in flight. SETNX makes
// it safe to call after enqueueing: if a worker already claimed the job and
// advanced the state, the placeholder write is a no-op.
func (r *Repository) PutPlaceholder(ctx context.Context, id uuid.UUID) error {
	err := r.rdb.SetNX(ctx, stateKey(id), string(model.StateSent), r.ttl).Err()
	if err != nil {
		return fmt.Errorf("put placeholder: %w: %v", ErrBackendUnavailable, err)
	}

	return nil
}

// GetState returns the current state of the task, or StateUnknown when no
// record exists. Connectivity failures are reported as ErrBackendUnavailable
// so callers can tell an outage apart from a genuinely unknown ID.
func (r *Repository) GetState(ctx context.Context, id uuid.UUID) (model.State, error) {
	val, err := r.rdb.Get(ctx, stateKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.StateUnknown, nil
		}

		return model.StateUnknown, fmt.Errorf("get state: %w: %v", ErrBackendUnavailable, err)
	}

	return model.State(val), nil
}

// MarkPending records that a worker has claimed the task.
func (r *Repository) MarkPending(ctx context.Context, id uuid.UUID) error {
	_, err := r.advance(ctx, id, model.StatePending)
	return err
}

// SetFailure moves the task to FAILURE and keeps the reason alongside for
// operators. The reason is never exposed through the API. When the task is
// already terminal the call is a no-op: a redelivered message must not pin
// a failure reason onto a job that succeeded.
func (r *Repository) SetFailure(ctx context.Context, id uuid.UUID, reason string) error {
	advanced, err := r.advance(ctx, id, model.StateFailure)
	if err != nil {
		return err
	}

	if advanced && reason != "" {
		if err := r.rdb.Set(ctx, errorKey(id), reason, r.ttl).Err(); err != nil {
			return fmt.Errorf("set failure reason: %w: %v", ErrBackendUnavailable, err)
		}
	}

	return nil
}

// SetResult atomically attaches the result reference and moves the task to
// SUCCESS. Writing the same result twice is harmless; writing after the
// task is terminal is a no-op.
func (r *Repository) SetResult(ctx context.Context, id uuid.UUID, path string) error {
	keys := []string{stateKey(id), resultKey(id)}
	err := setResultScript.Run(ctx, r.rdb, keys, path, r.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("set result: %w: %v", ErrBackendUnavailable, err)
	}

	return nil
}

// TakeResult atomically reads and invalidates the result reference via
// GETDEL. Every call after the first returns ErrResultNotFound, which is
// what enforces at-most-once delivery. The state key is left untouched.
func (r *Repository) TakeResult(ctx context.Context, id uuid.UUID) (string, error) {
	path, err := r.rdb.GetDel(ctx, resultKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrResultNotFound
		}

		return "", fmt.Errorf("take result: %w: %v", ErrBackendUnavailable, err)
	}

	return path, nil
}

// advance reports whether the transition actually happened; a rank-guarded
// no-op returns false with no error.
func (r *Repository) advance(ctx context.Context, id uuid.UUID, to model.State) (bool, error) {
	n, err := advanceScript.Run(ctx, r.rdb, []string{stateKey(id)}, string(to), r.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("advance to %s: %w: %v", to, ErrBackendUnavailable, err)
	}

	return n == 1, nil
}

func stateKey(id uuid.UUID) string { return stateKeyPrefix + id.String() }

func resultKey(id uuid.UUID) string { return resultKeyPrefix + id.String() }

func errorKey(id uuid.UUID) string { return errorKeyPrefix + id.String() }
