package notification

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/misquote/internal/domain"
	"github.com/victornm/misquote/internal/errors"
	"github.com/victornm/misquote/internal/event"
	"github.com/victornm/misquote/internal/telemetry"
)

const (
	defaultTTL      = 5 * time.Second
	defaultCapacity = 20
	visible         = 3
)

type Config struct {
	EventBus *event.Bus
	// Redis carries notifications to connected clients. Optional.
	Redis    redis.UniversalClient
	Prefix   string
	TTL      time.Duration
	Capacity int
	Now      func() time.Time
}

// Service is a per-user queue of short-lived toasts, newest first.
type Service struct {
	eb       *event.Bus
	redis    redis.UniversalClient
	prefix   string
	ttl      time.Duration
	capacity int
	now      func() time.Time

	mu     sync.Mutex
	queues map[string][]domain.Notification
}

func NewService(c Config) *Service {
	s := &Service{
		eb:       c.EventBus,
		redis:    c.Redis,
		prefix:   c.Prefix,
		ttl:      c.TTL,
		capacity: c.Capacity,
		now:      c.Now,
		queues:   make(map[string][]domain.Notification),
	}

	if s.ttl <= 0 {
		s.ttl = defaultTTL
	}
	if s.capacity <= 0 {
		s.capacity = defaultCapacity
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.subscribe()
	return s
}

type ShowRequest struct {
	UserID  string
	Title   string
	Message string
	Type    domain.NotificationType
}

// Show queues a notification for the user. The oldest ones fall off once the queue is full.
func (s *Service) Show(ctx context.Context, req ShowRequest) (*domain.Notification, error) {
	if req.UserID == "" {
		return nil, errors.InvalidArgument("user ID is required")
	}
	if req.Type == "" {
		req.Type = domain.NotificationInfo
	}

	n := domain.Notification{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Title:     req.Title,
		Message:   req.Message,
		Type:      req.Type,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	q := append([]domain.Notification{n}, s.queues[req.UserID]...)
	if len(q) > s.capacity {
		q = q[:s.capacity]
	}
	s.queues[req.UserID] = q
	s.mu.Unlock()

	telemetry.NotificationsShown.WithLabelValues(string(n.Type)).Inc()
	s.eb.Publish(ctx, domain.EventNotificationCreated{Notification: n})

	return &n, nil
}

type ListRequest struct {
	UserID string
}

// List returns the notifications currently on screen: the newest few that have not expired.
func (s *Service) List(_ context.Context, req ListRequest) []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.pruneLocked(req.UserID)
	return slices.Clone(q[:min(len(q), visible)])
}

type RemoveRequest struct {
	UserID         string
	NotificationID string
}

// Remove dismisses a notification.
func (s *Service) Remove(_ context.Context, req RemoveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queues[req.UserID]
	i := slices.IndexFunc(q, func(n domain.Notification) bool {
		return n.ID == req.NotificationID
	})
	if i < 0 {
		return errors.NotFound("notification not found: id=%s", req.NotificationID)
	}

	s.queues[req.UserID] = slices.Delete(q, i, i+1)
	return nil
}

func (s *Service) pruneLocked(userID string) []domain.Notification {
	cutoff := s.now().Add(-s.ttl)
	q := slices.DeleteFunc(s.queues[userID], func(n domain.Notification) bool {
		return n.CreatedAt.Before(cutoff)
	})

	if len(q) == 0 {
		delete(s.queues, userID)
		return nil
	}

	s.queues[userID] = q
	return q
}

func (s *Service) subscribe() {
	event.On(s.eb, func(ctx context.Context, e domain.EventRoundCompleted) error {
		_, err := s.Show(ctx, roundToast(e))
		return err
	})

	event.On(s.eb, func(ctx context.Context, e domain.EventGameEnded) error {
		r := e.Record
		_, err := s.Show(ctx, ShowRequest{
			UserID:  r.PlayerID,
			Title:   r.Performance,
			Message: fmt.Sprintf("Final score: %d points, %d correct answers", r.Score, r.CorrectAnswers),
			Type:    domain.NotificationInfo,
		})
		return err
	})

	event.On(s.eb, func(ctx context.Context, e domain.EventJobPosted) error {
		_, err := s.Show(ctx, ShowRequest{
			UserID:  e.Job.EmployerID,
			Title:   "Job Posted!",
			Message: "Your job posting is now live",
			Type:    domain.NotificationSuccess,
		})
		return err
	})

	event.On(s.eb, func(ctx context.Context, e domain.EventApplicationSubmitted) error {
		_, err := s.Show(ctx, ShowRequest{
			UserID:  e.Application.CandidateID,
			Title:   "Application Submitted!",
			Message: "Your application has been sent to the employer",
			Type:    domain.NotificationSuccess,
		})
		return err
	})

	event.On(s.eb, func(ctx context.Context, e domain.EventApplicationStatusUpdated) error {
		typ := domain.NotificationSuccess
		if e.Application.Status == domain.StatusRejected {
			typ = domain.NotificationWarning
		}
		_, err := s.Show(ctx, ShowRequest{
			UserID:  e.EmployerID,
			Title:   "Application Updated",
			Message: fmt.Sprintf("Candidate has been %s", e.Application.Status),
			Type:    typ,
		})
		return err
	})

	if s.redis == nil {
		return
	}

	event.On(s.eb, func(ctx context.Context, e domain.EventNotificationCreated) error {
		return s.publish(ctx, e.Notification.UserID, e.Name(), e.Notification)
	})

	event.On(s.eb, func(ctx context.Context, e domain.EventLeaderboardUpdated) error {
		return s.PublishLeaderboardUpdated(ctx, e)
	})
}

func roundToast(e domain.EventRoundCompleted) ShowRequest {
	switch {
	case e.TimedOut:
		return ShowRequest{
			UserID:  e.PlayerID,
			Title:   "Time's Up!",
			Message: "You ran out of time",
			Type:    domain.NotificationWarning,
		}
	case e.Correct:
		return ShowRequest{
			UserID:  e.PlayerID,
			Title:   "Correct!",
			Message: fmt.Sprintf("+%d points", e.Points),
			Type:    domain.NotificationSuccess,
		}
	default:
		kind := "fake"
		if e.WasReal {
			kind = "real"
		}
		return ShowRequest{
			UserID:  e.PlayerID,
			Title:   "Wrong!",
			Message: fmt.Sprintf("The quote was %s", kind),
			Type:    domain.NotificationError,
		}
	}
}
