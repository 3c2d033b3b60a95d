package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/misquote/internal/domain"
)

const maxConcurrent = 100

// Message is the envelope written to a user's pub/sub channel.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// PublishLeaderboardUpdated pushes the new leaderboard to every player listed on it.
// The seeded entries have no subscribers, publishing to them is harmless.
func (s *Service) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	l := e.Leaderboard

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range l.Entries {
		eg.Go(func() error {
			return s.publish(ctx, entry.ID, e.Name(), l)
		})
	}

	return eg.Wait()
}

// Subscribe opens the pub/sub channel of a user. Callers must close the returned PubSub.
func (s *Service) Subscribe(ctx context.Context, userID string) (*redis.PubSub, error) {
	if s.redis == nil {
		return nil, fmt.Errorf("pubsub: redis not configured")
	}

	ps := s.redis.Subscribe(ctx, s.channel(userID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("pubsub: subscribe %s: %w", userID, err)
	}

	return ps, nil
}

func (s *Service) publish(ctx context.Context, user, event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	msg, err := json.Marshal(Message{
		Event: event,
		Data:  b,
	})
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return s.redis.Publish(ctx, s.channel(user), msg).Err()
}

func (s *Service) channel(user string) string {
	return fmt.Sprintf("%s:user:%s", s.prefix, user)
}
