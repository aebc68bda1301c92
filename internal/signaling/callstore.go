package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	callKeyPrefix      = "signal:call:"
	activeKeyPrefix    = "signal:active:"
	presenceKeyPrefix  = "signal:presence:"
	candidateKeySuffix = ":candidates"

	liveCallTTL    = 12 * time.Hour
	endedCallTTL   = 10 * time.Minute
	presenceTTL    = 2 * pongWait
	maxPendingICE  = 64
	staleRingGrace = time.Minute
	maxTxRetries   = 8
)

func callKey(id string) string         { return callKeyPrefix + id }
func activeKey(userID string) string   { return activeKeyPrefix + userID }
func presenceKey(userID string) string { return presenceKeyPrefix + userID }
func candidateKey(id string) string    { return callKeyPrefix + id + candidateKeySuffix }

// CallStore keeps call state in Redis so any instance can apply a
// transition. Transitions run under WATCH and retry on conflict.
type CallStore struct {
	redis *redis.Client
	now   func() time.Time
}

func NewCallStore(redisClient *redis.Client) *CallStore {
	return &CallStore{redis: redisClient, now: time.Now}
}

func (s *CallStore) Get(ctx context.Context, id string) (*Call, error) {
	return s.get(ctx, s.redis, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *CallStore) get(ctx context.Context, r getter, id string) (*Call, error) {
	data, err := r.Get(ctx, callKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCallNotFound
	}
	if err != nil {
		return nil, err
	}
	var call Call
	if err := json.Unmarshal(data, &call); err != nil {
		return nil, fmt.Errorf("decode call %s: %w", id, err)
	}
	return &call, nil
}

func newCallID() string {
	return "call_" + uuid.NewString()
}

// Refused builds the already-ended record of an attempt that Create turned
// away with ErrBusy. It is never stored as a live call.
func (s *CallStore) Refused(callerID, calleeID string, media Media, appointmentID string) *Call {
	now := s.now().UTC()
	return &Call{
		ID:            newCallID(),
		CallerID:      callerID,
		CalleeID:      calleeID,
		AppointmentID: appointmentID,
		Media:         media,
		State:         StateEnded,
		EndReason:     ReasonBusy,
		CreatedAt:     now,
		RingDeadline:  now,
		EndedAt:       &now,
	}
}

// Create starts a ringing call. It fails with ErrBusy when either user is
// already in a live call.
func (s *CallStore) Create(ctx context.Context, callerID, calleeID string, media Media, appointmentID string, ringTimeout time.Duration) (*Call, error) {
	now := s.now().UTC()
	call := &Call{
		ID:            newCallID(),
		CallerID:      callerID,
		CalleeID:      calleeID,
		AppointmentID: appointmentID,
		Media:         media,
		State:         StateRinging,
		CreatedAt:     now,
		RingDeadline:  now.Add(ringTimeout),
	}
	data, err := json.Marshal(call)
	if err != nil {
		return nil, err
	}

	txf := func(tx *redis.Tx) error {
		for _, userID := range call.Participants() {
			busy, err := s.busy(ctx, tx, userID, now)
			if err != nil {
				return err
			}
			if busy {
				return ErrBusy
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, callKey(call.ID), data, liveCallTTL)
			pipe.Set(ctx, activeKey(callerID), call.ID, liveCallTTL)
			pipe.Set(ctx, activeKey(calleeID), call.ID, liveCallTTL)
			return nil
		})
		return err
	}

	if err := s.watch(ctx, txf, activeKey(callerID), activeKey(calleeID)); err != nil {
		return nil, err
	}
	return call, nil
}

func (s *CallStore) busy(ctx context.Context, tx *redis.Tx, userID string, now time.Time) (bool, error) {
	id, err := tx.Get(ctx, activeKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	call, err := s.get(ctx, tx, id)
	if errors.Is(err, ErrCallNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return call.Live(now), nil
}

// Transition applies action to the call and persists the result. When the
// call ends, the participants' active-call index is released.
func (s *CallStore) Transition(ctx context.Context, id string, action Action, actor string) (*Call, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var result *Call
	txf := func(tx *redis.Tx) error {
		call, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := call.Apply(action, actor, s.now().UTC()); err != nil {
			return err
		}
		data, err := json.Marshal(call)
		if err != nil {
			return err
		}

		release := make([]string, 0, 2)
		if call.State == StateEnded {
			for _, userID := range call.Participants() {
				active, err := tx.Get(ctx, activeKey(userID)).Result()
				if err != nil && !errors.Is(err, redis.Nil) {
					return err
				}
				if active == id {
					release = append(release, activeKey(userID))
				}
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			ttl := liveCallTTL
			if call.State == StateEnded {
				ttl = endedCallTTL
				pipe.Del(ctx, candidateKey(id))
			}
			pipe.Set(ctx, callKey(id), data, ttl)
			if len(release) > 0 {
				pipe.Del(ctx, release...)
			}
			return nil
		})
		if err == nil {
			result = call
		}
		return err
	}

	keys := []string{callKey(id), activeKey(current.CallerID), activeKey(current.CalleeID)}
	if err := s.watch(ctx, txf, keys...); err != nil {
		return nil, err
	}
	return result, nil
}

// QueueCandidate stores a caller candidate while the call rings. It returns
// ErrInvalidState once the call is no longer ringing so the caller relays
// directly instead.
func (s *CallStore) QueueCandidate(ctx context.Context, id string, candidate []byte) error {
	txf := func(tx *redis.Tx) error {
		call, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if call.State != StateRinging {
			return ErrInvalidState
		}
		n, err := tx.LLen(ctx, candidateKey(id)).Result()
		if err != nil {
			return err
		}
		if n >= maxPendingICE {
			return ErrQueueFull
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, candidateKey(id), candidate)
			pipe.Expire(ctx, candidateKey(id), liveCallTTL)
			return nil
		})
		return err
	}
	return s.watch(ctx, txf, callKey(id), candidateKey(id))
}

// DrainCandidates returns and clears the queued candidates in arrival order.
func (s *CallStore) DrainCandidates(ctx context.Context, id string) ([][]byte, error) {
	var lrange *redis.StringSliceCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lrange = pipe.LRange(ctx, candidateKey(id), 0, -1)
		pipe.Del(ctx, candidateKey(id))
		return nil
	})
	if err != nil {
		return nil, err
	}
	items := lrange.Val()
	out := make([][]byte, len(items))
	for i, item := range items {
		out[i] = []byte(item)
	}
	return out, nil
}

// ActiveCall returns the user's live call, or ErrCallNotFound.
func (s *CallStore) ActiveCall(ctx context.Context, userID string) (*Call, error) {
	id, err := s.redis.Get(ctx, activeKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCallNotFound
	}
	if err != nil {
		return nil, err
	}
	call, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !call.Live(s.now()) {
		return nil, ErrCallNotFound
	}
	return call, nil
}

// Touch marks one socket of the user as present until now + presenceTTL.
func (s *CallStore) Touch(ctx context.Context, userID, connID string) error {
	now := s.now()
	key := presenceKey(userID)
	pipe := s.redis.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.Add(presenceTTL).UnixMilli()), Member: connID})
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.UnixMilli(), 10))
	pipe.Expire(ctx, key, presenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *CallStore) Leave(ctx context.Context, userID, connID string) error {
	return s.redis.ZRem(ctx, presenceKey(userID), connID).Err()
}

// Online reports whether any socket of the user, on any instance, is live.
func (s *CallStore) Online(ctx context.Context, userID string) (bool, error) {
	floor := strconv.FormatInt(s.now().UnixMilli(), 10)
	n, err := s.redis.ZCount(ctx, presenceKey(userID), "("+floor, "+inf").Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *CallStore) watch(ctx context.Context, txf func(*redis.Tx) error, keys ...string) error {
	for range maxTxRetries {
		err := s.redis.Watch(ctx, txf, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("call store: too much contention on %v", keys)
}
