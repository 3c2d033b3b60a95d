package leaderboard

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/misquote/internal/domain"
	"github.com/victornm/misquote/internal/errors"
	"github.com/victornm/misquote/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
	weeklyWindow    = 7 * 24 * time.Hour
	maxTxRetries    = 10
)

// mockEntries are the players every leaderboard starts with.
var mockEntries = []domain.LeaderboardEntry{
	{ID: "1", Name: "QuoteMaster", Score: 15420, TotalGames: 89, CorrectAnswers: 76, Streak: 12, Accuracy: 85},
	{ID: "2", Name: "HistoryBuff", Score: 12890, TotalGames: 67, CorrectAnswers: 58, Streak: 8, Accuracy: 87},
	{ID: "3", Name: "AIDetective", Score: 11750, TotalGames: 54, CorrectAnswers: 48, Streak: 15, Accuracy: 89},
	{ID: "4", Name: "WisdomSeeker", Score: 10200, TotalGames: 45, CorrectAnswers: 38, Streak: 6, Accuracy: 84},
	{ID: "5", Name: "QuoteNinja", Score: 9850, TotalGames: 42, CorrectAnswers: 36, Streak: 9, Accuracy: 86},
}

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
	Now      func() time.Time
	// After waits for a publish window to close. Defaults to time.After.
	After func(d time.Duration) <-chan time.Time
}

// Service keeps the leaderboard in Redis. Entries are kept in a hash, their
// insertion order in a sorted set so ranking ties resolve the same way every time.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
	after  func(d time.Duration) <-chan time.Time
}

// flushLeaderboard closes a publish window. It never leaves this package.
type flushLeaderboard struct{}

func (flushLeaderboard) Name() string { return "leaderboard.flush" }

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
		now:    c.Now,
		after:  c.After,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.after == nil {
		s.after = time.After
	}

	event.On(s.eb, func(ctx context.Context, e domain.EventPlayerUpdated) error {
		return s.UpdateLeaderboard(ctx, e)
	})
	event.On(s.eb, func(ctx context.Context, e domain.EventPlayerReset) error {
		return s.Remove(ctx, e.PlayerID)
	})
	event.On(s.eb, s.flush)

	return s
}

// Seed inserts the built-in entries once per Redis keyspace.
func (s *Service) Seed(ctx context.Context) error {
	ok, err := s.redis.SetNX(ctx, s.key("seeded"), s.now().UnixMilli(), 0).Result()
	if err != nil {
		return fmt.Errorf("seed leaderboard: %w", err)
	}
	if !ok {
		return nil
	}

	now := s.now().UTC()
	for _, e := range mockEntries {
		e.UpdateTime = now
		if _, err := s.upsert(ctx, e); err != nil {
			return fmt.Errorf("seed leaderboard: %s: %w", e.Name, err)
		}
	}

	return nil
}

type GetLeaderboardRequest struct {
	Metric domain.LeaderboardMetric
}

// GetLeaderboard ranks all entries descending by the metric. Equal values keep insertion order.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	metric := req.Metric
	if metric == "" {
		metric = domain.MetricAllTime
	}
	if !metric.Valid() {
		return nil, errors.InvalidArgument("unknown leaderboard metric: %q", metric)
	}

	entries, err := s.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if metric == domain.MetricWeekly {
		since := s.now().Add(-weeklyWindow)
		entries = slices.DeleteFunc(entries, func(e domain.LeaderboardEntry) bool {
			return e.UpdateTime.Before(since)
		})
	}

	Rank(entries, metric)

	return &domain.Leaderboard{
		Metric:  metric,
		Entries: entries,
	}, nil
}

// Rank sorts entries in place, descending by metric, and assigns ranks from 1.
func Rank(entries []domain.LeaderboardEntry, metric domain.LeaderboardMetric) {
	value := func(e domain.LeaderboardEntry) int { return e.Score }
	if metric == domain.MetricAccuracy {
		value = func(e domain.LeaderboardEntry) int { return e.Accuracy }
	}

	slices.SortStableFunc(entries, func(a, b domain.LeaderboardEntry) int {
		return value(b) - value(a)
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}
}

// UpdateLeaderboard overwrites the player's entry. Players who never answered a round are not listed,
// and a snapshot with fewer answered rounds than the stored entry is outdated and ignored.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventPlayerUpdated) error {
	p := e.Player
	if p.TotalGames <= 0 {
		return nil
	}

	entry := domain.LeaderboardEntry{
		ID:             p.ID,
		Name:           p.Name,
		Avatar:         p.Avatar,
		Score:          p.Score,
		TotalGames:     p.TotalGames,
		CorrectAnswers: p.CorrectAnswers,
		Streak:         p.Streak,
		Accuracy:       domain.Accuracy(p.CorrectAnswers, p.TotalGames),
		UpdateTime:     s.now().UTC(),
	}

	stored, err := s.upsert(ctx, entry)
	if err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}
	if !stored {
		return nil
	}

	return s.schedulePublishLeaderboard(ctx, entry.UpdateTime)
}

// Remove drops a player from the leaderboard.
func (s *Service) Remove(ctx context.Context, id string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.key("entries"), id)
		pipe.ZRem(ctx, s.key("order"), id)
		pipe.Del(ctx, s.gamesKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove from leaderboard: %w", err)
	}
	return nil
}

// upsert stores the entry unless the stored one has more answered rounds. The per-player
// games key is watched so concurrent snapshots of one player never interleave.
func (s *Service) upsert(ctx context.Context, e domain.LeaderboardEntry) (bool, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("marshal entry: %w", err)
	}

	gamesKey := s.gamesKey(e.ID)

	var stored bool
	txf := func(tx *redis.Tx) error {
		stored = false

		games, err := tx.Get(ctx, gamesKey).Int()
		switch {
		case stderrors.Is(err, redis.Nil):
		case err != nil:
			return err
		case games > e.TotalGames:
			return nil
		}

		err = tx.ZScore(ctx, s.key("order"), e.ID).Err()
		missing := stderrors.Is(err, redis.Nil)
		if err != nil && !missing {
			return err
		}

		var seq int64
		if missing {
			if seq, err = tx.Incr(ctx, s.key("seq")).Result(); err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.key("entries"), e.ID, b)
			pipe.Set(ctx, gamesKey, e.TotalGames, 0)
			if seq > 0 {
				pipe.ZAddNX(ctx, s.key("order"), redis.Z{Score: float64(seq), Member: e.ID})
			}
			return nil
		})
		if err != nil {
			return err
		}

		stored = true
		return nil
	}

	for range maxTxRetries {
		err := s.redis.Watch(ctx, txf, gamesKey)
		if stderrors.Is(err, redis.TxFailedErr) {
			continue
		}
		return stored, err
	}

	return false, fmt.Errorf("upsert %s: too many concurrent writes", e.ID)
}

func (s *Service) list(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	ids, err := s.redis.ZRange(ctx, s.key("order"), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domain.LeaderboardEntry{}, nil
	}

	vals, err := s.redis.HMGet(ctx, s.key("entries"), ids...).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]domain.LeaderboardEntry, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}

		var e domain.LeaderboardEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", ids[i], err)
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// schedulePublishLeaderboard publishes at most once per publish interval. Because many players
// may finish rounds in a short time, this reduces the number of published events. Changes that
// arrive while a window is open are published once it closes.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, t time.Time) error {
	ok, err := s.redis.SetNX(ctx, s.key("time"), t.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		if err := s.redis.Set(ctx, s.key("dirty"), t.UnixMilli(), 0).Err(); err != nil {
			return fmt.Errorf("mark dirty: %w", err)
		}
		return nil
	}

	return s.publishLeaderboard(ctx)
}

// flush runs when the publish window opened by publishLeaderboard closes. If anything changed
// meanwhile it opens the next window and publishes.
func (s *Service) flush(ctx context.Context, _ flushLeaderboard) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.after(publishInterval):
	}

	n, err := s.redis.Del(ctx, s.key("dirty")).Result()
	if err != nil {
		return fmt.Errorf("clear dirty: %w", err)
	}
	if n == 0 {
		return nil
	}

	if err := s.redis.Set(ctx, s.key("time"), s.now().UnixMilli(), publishInterval).Err(); err != nil {
		return fmt.Errorf("open publish window: %w", err)
	}

	return s.publishLeaderboard(ctx)
}

func (s *Service) publishLeaderboard(ctx context.Context) error {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{Metric: domain.MetricAllTime})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: %w", err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})
	s.eb.Publish(ctx, flushLeaderboard{})

	return nil
}

func (s *Service) key(name string) string {
	return fmt.Sprintf("%s:leaderboard:%s", s.prefix, name)
}

func (s *Service) gamesKey(id string) string {
	return s.key("games:" + id)
}
