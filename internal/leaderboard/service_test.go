package leaderboard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/misquote/internal/domain"
	"github.com/victornm/misquote/internal/errors"
	"github.com/victornm/misquote/internal/event"
	"github.com/victornm/misquote/internal/leaderboard"
)

func TestService_Seed(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	require.NoError(t, s.Seed(ctx))
	require.NoError(t, s.Seed(ctx), "seeding twice is a no-op")

	l, err := s.GetLeaderboard(ctx, leaderboard.GetLeaderboardRequest{})
	require.NoError(t, err)
	require.Equal(t, domain.MetricAllTime, l.Metric)
	require.Len(t, l.Entries, 5)
	assert.Equal(t, []string{"QuoteMaster", "HistoryBuff", "AIDetective", "WisdomSeeker", "QuoteNinja"}, names(l.Entries))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, ranks(l.Entries))
}

func TestService_GetLeaderboard(t *testing.T) {
	type (
		inputs struct {
			players []domain.Player
			metric  domain.LeaderboardMetric
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, l *domain.Leaderboard, err error)
	}{
		"should rank a new player by score among the seeded entries": {
			arrange: func() inputs {
				return inputs{
					players: []domain.Player{
						{ID: "p1", Name: "Ada", Score: 11000, TotalGames: 10, CorrectAnswers: 10},
					},
					metric: domain.MetricAllTime,
				}
			},
			assert: func(t *testing.T, l *domain.Leaderboard, err error) {
				require.NoError(t, err)
				assert.Equal(t, []string{"QuoteMaster", "HistoryBuff", "AIDetective", "Ada", "WisdomSeeker", "QuoteNinja"}, names(l.Entries))
				assert.Equal(t, 4, l.Entries[3].Rank)
				assert.Equal(t, 100, l.Entries[3].Accuracy)
			},
		},

		"should sort by accuracy when asked": {
			arrange: func() inputs {
				return inputs{
					players: []domain.Player{
						{ID: "p1", Name: "Ada", Score: 10, TotalGames: 4, CorrectAnswers: 2},
					},
					metric: domain.MetricAccuracy,
				}
			},
			assert: func(t *testing.T, l *domain.Leaderboard, err error) {
				require.NoError(t, err)
				assert.Equal(t, []string{"AIDetective", "HistoryBuff", "QuoteNinja", "QuoteMaster", "WisdomSeeker", "Ada"}, names(l.Entries))
			},
		},

		"should keep insertion order for equal scores": {
			arrange: func() inputs {
				return inputs{
					players: []domain.Player{
						{ID: "p1", Name: "Zed", Score: 9850, TotalGames: 1},
						{ID: "p2", Name: "Amy", Score: 9850, TotalGames: 1},
					},
					metric: domain.MetricAllTime,
				}
			},
			assert: func(t *testing.T, l *domain.Leaderboard, err error) {
				require.NoError(t, err)
				assert.Equal(t, []string{"QuoteNinja", "Zed", "Amy"}, names(l.Entries[4:]))
			},
		},

		"should keep the first position of a player whose score changes": {
			arrange: func() inputs {
				return inputs{
					players: []domain.Player{
						{ID: "p1", Name: "Zed", Score: 100, TotalGames: 1},
						{ID: "p2", Name: "Amy", Score: 500, TotalGames: 1},
						{ID: "p1", Name: "Zed", Score: 500, TotalGames: 2},
					},
					metric: domain.MetricAllTime,
				}
			},
			assert: func(t *testing.T, l *domain.Leaderboard, err error) {
				require.NoError(t, err)
				require.Len(t, l.Entries, 7)
				assert.Equal(t, []string{"Zed", "Amy"}, names(l.Entries[5:]))
			},
		},

		"should not list players without answered rounds": {
			arrange: func() inputs {
				return inputs{
					players: []domain.Player{
						{ID: "p1", Name: "Newbie"},
					},
					metric: domain.MetricAllTime,
				}
			},
			assert: func(t *testing.T, l *domain.Leaderboard, err error) {
				require.NoError(t, err)
				assert.NotContains(t, names(l.Entries), "Newbie")
			},
		},

		"should reject an unknown metric": {
			arrange: func() inputs {
				return inputs{metric: "monthly"}
			},
			assert: func(t *testing.T, _ *domain.Leaderboard, err error) {
				require.True(t, errors.Is(err, errors.CodeInvalidArgument))
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			s := makeService(t)
			ctx := context.Background()
			require.NoError(t, s.Seed(ctx))

			for _, p := range in.players {
				require.NoError(t, s.UpdateLeaderboard(ctx, domain.EventPlayerUpdated{Player: p}))
			}

			l, err := s.GetLeaderboard(ctx, leaderboard.GetLeaderboardRequest{Metric: in.metric})
			tt.assert(t, l, err)
		})
	}
}

func TestService_Weekly(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	clock := now.Add(-8 * 24 * time.Hour)

	s := makeService(t, withNow(func() time.Time { return clock }))
	ctx := context.Background()

	require.NoError(t, s.Seed(ctx))
	clock = now
	require.NoError(t, s.UpdateLeaderboard(ctx, domain.EventPlayerUpdated{
		Player: domain.Player{ID: "p1", Name: "Ada", Score: 300, TotalGames: 3, CorrectAnswers: 3},
	}))

	l, err := s.GetLeaderboard(ctx, leaderboard.GetLeaderboardRequest{Metric: domain.MetricWeekly})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ada"}, names(l.Entries))
	assert.Equal(t, 1, l.Entries[0].Rank)
}

func TestService_Remove(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	require.NoError(t, s.UpdateLeaderboard(ctx, domain.EventPlayerUpdated{
		Player: domain.Player{ID: "p1", Name: "Ada", Score: 300, TotalGames: 3},
	}))
	require.NoError(t, s.Remove(ctx, "p1"))

	l, err := s.GetLeaderboard(ctx, leaderboard.GetLeaderboardRequest{})
	require.NoError(t, err)
	assert.Empty(t, l.Entries)
}

func TestRank(t *testing.T) {
	entries := []domain.LeaderboardEntry{
		{Name: "a", Score: 1, Accuracy: 90},
		{Name: "b", Score: 3, Accuracy: 90},
		{Name: "c", Score: 3, Accuracy: 50},
		{Name: "d", Score: 2, Accuracy: 95},
	}

	leaderboard.Rank(entries, domain.MetricAllTime)
	assert.Equal(t, []string{"b", "c", "d", "a"}, names(entries))

	leaderboard.Rank(entries, domain.MetricAccuracy)
	assert.Equal(t, []string{"d", "b", "a", "c"}, names(entries))
	assert.Equal(t, []int{1, 2, 3, 4}, ranks(entries))
}

func TestService_PublishLeaderboardUpdated(t *testing.T) {
	type (
		inputs struct {
			receivedEvents []domain.EventPlayerUpdated
			wait           time.Duration
		}

		outputs struct {
			publishedEvents []domain.EventLeaderboardUpdated
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"should publish leaderboard.updated after a listed player changes": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventPlayerUpdated{
						{Player: domain.Player{ID: "u1", Name: "u1", Score: 110, TotalGames: 1, CorrectAnswers: 1}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1, "should receive 1 leaderboard updated event")
				require.Equal(t, []string{"u1"}, names(out.publishedEvents[0].Leaderboard.Entries))
			},
		},

		"should hold back updates within the publish interval until it closes": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventPlayerUpdated{
						{Player: domain.Player{ID: "u1", Name: "u1", Score: 110, TotalGames: 1}},
						{Player: domain.Player{ID: "u2", Name: "u2", Score: 220, TotalGames: 1}},
						{Player: domain.Player{ID: "u3", Name: "u3", Score: 330, TotalGames: 1}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 2, "should publish when the window opens and once when it closes")
				require.Equal(t, []string{"u1"}, names(out.publishedEvents[0].Leaderboard.Entries))
				require.Equal(t, []string{"u3", "u2", "u1"}, names(out.publishedEvents[1].Leaderboard.Entries))
			},
		},

		"should publish again once the publish interval elapsed": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventPlayerUpdated{
						{Player: domain.Player{ID: "u1", Name: "u1", Score: 110, TotalGames: 1}},
						{Player: domain.Player{ID: "u2", Name: "u2", Score: 220, TotalGames: 1}},
					},
					wait: 300 * time.Millisecond,
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 2, "should receive 2 leaderboard updated events")
			},
		},

		"should not publish for players without answered rounds": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventPlayerUpdated{
						{Player: domain.Player{ID: "u1", Name: "u1"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Empty(t, out.publishedEvents)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in, out := tt.arrange(), outputs{}

			eb := event.NewBus()

			var mu sync.Mutex
			event.On(eb, func(_ context.Context, e domain.EventLeaderboardUpdated) error {
				mu.Lock()
				out.publishedEvents = append(out.publishedEvents, e)
				mu.Unlock()
				return nil
			})

			rs := miniredis.RunT(t)
			s := makeService(t, withEventBus(eb), withRedis(rs))

			for _, e := range in.receivedEvents {
				err := s.UpdateLeaderboard(context.Background(), e)
				require.NoError(t, err)
				if in.wait > 0 {
					rs.FastForward(in.wait)
				}
			}

			eb.Stop()

			tt.assert(t, out)
		})
	}
}

func TestService_UpdateLeaderboard_IgnoresOutdatedSnapshots(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	snapshot := func(games, score, streak int) domain.EventPlayerUpdated {
		return domain.EventPlayerUpdated{Player: domain.Player{
			ID:             "u1",
			Name:           "u1",
			Score:          score,
			TotalGames:     games,
			CorrectAnswers: games,
			Streak:         streak,
		}}
	}

	require.NoError(t, s.UpdateLeaderboard(ctx, snapshot(1, 110, 1)))
	require.NoError(t, s.UpdateLeaderboard(ctx, snapshot(3, 330, 3)))
	require.NoError(t, s.UpdateLeaderboard(ctx, snapshot(2, 220, 2)), "a late snapshot is not an error")

	l, err := s.GetLeaderboard(ctx, leaderboard.GetLeaderboardRequest{})
	require.NoError(t, err)
	require.Len(t, l.Entries, 1)
	assert.Equal(t, 330, l.Entries[0].Score)
	assert.Equal(t, 3, l.Entries[0].TotalGames)
	assert.Equal(t, 3, l.Entries[0].Streak)

	require.NoError(t, s.Remove(ctx, "u1"))
	require.NoError(t, s.UpdateLeaderboard(ctx, snapshot(1, 50, 1)), "a removed player starts over")

	l, err = s.GetLeaderboard(ctx, leaderboard.GetLeaderboardRequest{})
	require.NoError(t, err)
	require.Len(t, l.Entries, 1)
	assert.Equal(t, 50, l.Entries[0].Score)
}

func names(entries []domain.LeaderboardEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}

func ranks(entries []domain.LeaderboardEntry) []int {
	out := make([]int, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Rank)
	}
	return out
}

type testConfig struct {
	leaderboard.Config
	rs *miniredis.Miniredis
}

func makeService(t *testing.T, opts ...options) *leaderboard.Service {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	c := testConfig{
		Config: leaderboard.Config{
			EventBus: event.NewBus(),
			Prefix:   "test",
		},
	}

	for _, opt := range opts {
		opt(&c)
	}

	if c.rs == nil {
		c.rs = miniredis.RunT(t)
	}
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{c.rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")
	c.Redis = rc

	return leaderboard.NewService(c.Config)
}

type options func(c *testConfig)

func withEventBus(eb *event.Bus) options {
	return func(c *testConfig) {
		c.EventBus = eb
	}
}

func withRedis(rs *miniredis.Miniredis) options {
	return func(c *testConfig) {
		c.rs = rs
	}
}

func withNow(now func() time.Time) options {
	return func(c *testConfig) {
		c.Now = now
	}
}
