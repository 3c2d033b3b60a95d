package player

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/misquote/internal/domain"
	"github.com/victornm/misquote/internal/errors"
	"github.com/victornm/misquote/internal/event"
)

const (
	keyPlayer     = "misquote-player"
	maxNameLength = 20
	maxTxRetries  = 10
)

// Avatars lists the avatars a player may pick from. The first one is the default.
var Avatars = []string{"🎭", "🎨", "📚", "🔬", "🎪", "🎯", "🎲", "🎸", "🎬", "🎤"}

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
	Now      func() time.Time
}

// Service stores player profiles in Redis, one JSON document per player.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
		now:    c.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

type CreateRequest struct {
	Name   string
	Avatar string
}

// Create registers a new player with zeroed stats.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Player, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.InvalidArgument("player name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, errors.InvalidArgument("player name must be at most %d characters", maxNameLength)
	}

	avatar := req.Avatar
	if avatar == "" {
		avatar = Avatars[0]
	}
	if !slices.Contains(Avatars, avatar) {
		return nil, errors.InvalidArgument("unknown avatar: %q", avatar)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate player ID: %w", err)
	}

	p := &domain.Player{
		ID:       id.String(),
		Name:     name,
		Avatar:   avatar,
		JoinedAt: s.now().UTC(),
	}

	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal player: %w", err)
	}

	ok, err := s.redis.SetNX(ctx, s.key(p.ID), b, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("save player: %w", err)
	}
	if !ok {
		return nil, errors.New(errors.CodeAlreadyExists, errors.WithMessagef("player already exists: id=%s", p.ID))
	}

	s.eb.Publish(ctx, domain.EventPlayerUpdated{Player: *p})
	return p, nil
}

// Get loads a player. A record that no longer decodes is reported as Internal.
func (s *Service) Get(ctx context.Context, id string) (*domain.Player, error) {
	b, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, errors.NotFound("player not found: id=%s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get player: %w", err)
	}

	return decode(id, b)
}

type UpdateScoreRequest struct {
	PlayerID string
	Points   int
}

func (s *Service) UpdateScore(ctx context.Context, req UpdateScoreRequest) (*domain.Player, error) {
	return s.update(ctx, req.PlayerID, func(p *domain.Player) {
		p.Score += req.Points
	})
}

type UpdateStatsRequest struct {
	PlayerID string
	Correct  bool
}

// UpdateStats counts one more answered round. A miss resets the streak.
func (s *Service) UpdateStats(ctx context.Context, req UpdateStatsRequest) (*domain.Player, error) {
	return s.update(ctx, req.PlayerID, func(p *domain.Player) {
		applyStats(p, req.Correct)
	})
}

type ApplyRoundRequest struct {
	PlayerID string
	Correct  bool
	Points   int
}

// ApplyRound updates stats and score of a round outcome in a single write.
// Callers must apply a player's rounds in the order they were played.
func (s *Service) ApplyRound(ctx context.Context, req ApplyRoundRequest) (*domain.Player, error) {
	return s.update(ctx, req.PlayerID, func(p *domain.Player) {
		applyStats(p, req.Correct)
		if req.Correct {
			p.Score += req.Points
		}
	})
}

// Reset forgets the player.
func (s *Service) Reset(ctx context.Context, id string) error {
	n, err := s.redis.Del(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("delete player: %w", err)
	}
	if n == 0 {
		return errors.NotFound("player not found: id=%s", id)
	}

	s.eb.Publish(ctx, domain.EventPlayerReset{PlayerID: id})
	return nil
}

// update runs fn on the stored player inside an optimistic transaction, retrying when
// another writer touched the record in between.
func (s *Service) update(ctx context.Context, id string, fn func(p *domain.Player)) (*domain.Player, error) {
	key := s.key(id)

	var p *domain.Player
	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if stderrors.Is(err, redis.Nil) {
			return errors.NotFound("player not found: id=%s", id)
		}
		if err != nil {
			return err
		}

		p, err = decode(id, b)
		if err != nil {
			return err
		}

		fn(p)

		out, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal player: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}

	for range maxTxRetries {
		err := s.redis.Watch(ctx, txf, key)
		if stderrors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}

		s.eb.Publish(ctx, domain.EventPlayerUpdated{Player: *p})
		return p, nil
	}

	return nil, errors.Internal(fmt.Errorf("update player %s: too many concurrent writes", id))
}

func (s *Service) key(id string) string {
	if s.prefix == "" {
		return keyPlayer + ":" + id
	}
	return s.prefix + ":" + keyPlayer + ":" + id
}

func applyStats(p *domain.Player, correct bool) {
	p.TotalGames++
	if correct {
		p.CorrectAnswers++
		p.Streak++
		return
	}
	p.Streak = 0
}

func decode(id string, b []byte) (*domain.Player, error) {
	var p domain.Player
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, errors.New(errors.CodeInternal,
			errors.WithMessagef("stored player is corrupted: id=%s", id),
			errors.WithCause(err),
		)
	}
	return &p, nil
}
