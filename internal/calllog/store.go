package calllog

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	recordTTL   = 30 * 24 * time.Hour
	metricsTTL  = 8 * 24 * time.Hour
	historySize = 200
	dateLayout  = "2006-01-02"
)

type Store struct {
	redis *redis.Client
	now   func() time.Time
}

func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient, now: time.Now}
}

// Save stores an ended call, prepends it to both participants' history and
// bumps their hourly counters for the hour the call ended.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	ended := rec.EndedAt.UTC()
	date, hour := ended.Format(dateLayout), ended.Hour()

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, RecordKey(rec.CallID), data, recordTTL)

	for _, userID := range rec.Participants() {
		listKey := UserKey(userID)
		pipe.LPush(ctx, listKey, rec.CallID)
		pipe.LTrim(ctx, listKey, 0, historySize-1)
		pipe.Expire(ctx, listKey, recordTTL)

		key := MetricsKey(userID, date, hour)
		pipe.HIncrBy(ctx, key, "calls", 1)
		switch {
		case rec.Answered():
			pipe.HIncrBy(ctx, key, "answered", 1)
			pipe.HIncrBy(ctx, key, "duration_s", int64(rec.Duration().Seconds()))
		case rec.EndReason == ReasonRejected || rec.EndReason == ReasonBusy:
			pipe.HIncrBy(ctx, key, "rejected", 1)
		default:
			pipe.HIncrBy(ctx, key, "missed", 1)
		}
		pipe.Expire(ctx, key, metricsTTL)
	}

	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) Get(ctx context.Context, callID string) (*Record, error) {
	data, err := s.redis.Get(ctx, RecordKey(callID)).Bytes()
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// History returns the newest calls first. Records that expired before the
// list entry are skipped.
func (s *Store) History(ctx context.Context, userID string, limit int) ([]*Record, error) {
	ids, err := s.redis.LRange(ctx, UserKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = RecordKey(id)
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

func (s *Store) GetMetrics(ctx context.Context, userID string, hours int) ([]*Metrics, error) {
	now := s.now().UTC()
	var metrics []*Metrics

	for i := 0; i < hours; i++ {
		t := now.Add(-time.Duration(i) * time.Hour)
		date := t.Format(dateLayout)

		data, err := s.redis.HGetAll(ctx, MetricsKey(userID, date, t.Hour())).Result()
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			continue
		}

		metrics = append(metrics, &Metrics{
			UserID:       userID,
			Date:         date,
			Hour:         t.Hour(),
			Calls:        parseInt(data["calls"]),
			Answered:     parseInt(data["answered"]),
			Missed:       parseInt(data["missed"]),
			Rejected:     parseInt(data["rejected"]),
			DurationSecs: parseInt(data["duration_s"]),
		})
	}
	return metrics, nil
}

func (s *Store) GetSummary(ctx context.Context, userID string) (*Summary, error) {
	metrics, err := s.GetMetrics(ctx, userID, 7*24)
	if err != nil {
		return nil, err
	}

	sum := &Summary{UserID: userID, Period: "7d"}
	for _, m := range metrics {
		sum.TotalCalls += m.Calls
		sum.Answered += m.Answered
		sum.Missed += m.Missed
		sum.Rejected += m.Rejected
		sum.DurationSecs += m.DurationSecs
	}
	return sum, nil
}

func parseInt(v string) int64 {
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}
