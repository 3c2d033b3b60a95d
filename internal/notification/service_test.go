package notification_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/misquote/internal/domain"
	"github.com/victornm/misquote/internal/errors"
	"github.com/victornm/misquote/internal/event"
	"github.com/victornm/misquote/internal/notification"
)

func TestService_ShowAndList(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	clock := now
	s := notification.NewService(notification.Config{
		EventBus: event.NewBus(),
		TTL:      5 * time.Second,
		Capacity: 4,
		Now:      func() time.Time { return clock },
	})
	ctx := context.Background()

	for _, title := range []string{"one", "two", "three", "four", "five"} {
		_, err := s.Show(ctx, notification.ShowRequest{UserID: "u1", Title: title})
		require.NoError(t, err)
		clock = clock.Add(time.Second)
	}

	got := s.List(ctx, notification.ListRequest{UserID: "u1"})
	require.Equal(t, []string{"five", "four", "three"}, titles(got), "newest three are visible")
	assert.Equal(t, domain.NotificationInfo, got[0].Type, "type defaults to info")

	assert.Empty(t, s.List(ctx, notification.ListRequest{UserID: "u2"}))

	clock = now.Add(9 * time.Second)
	got = s.List(ctx, notification.ListRequest{UserID: "u1"})
	require.Equal(t, []string{"five"}, titles(got), "expired notifications disappear")
}

func TestService_Remove(t *testing.T) {
	s := notification.NewService(notification.Config{EventBus: event.NewBus()})
	ctx := context.Background()

	n1, err := s.Show(ctx, notification.ShowRequest{UserID: "u1", Title: "one"})
	require.NoError(t, err)
	_, err = s.Show(ctx, notification.ShowRequest{UserID: "u1", Title: "two"})
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, notification.RemoveRequest{UserID: "u1", NotificationID: n1.ID}))
	require.Equal(t, []string{"two"}, titles(s.List(ctx, notification.ListRequest{UserID: "u1"})))

	err = s.Remove(ctx, notification.RemoveRequest{UserID: "u1", NotificationID: n1.ID})
	require.True(t, errors.Is(err, errors.CodeNotFound))

	_, err = s.Show(ctx, notification.ShowRequest{Title: "nobody"})
	require.True(t, errors.Is(err, errors.CodeInvalidArgument))
}

func TestService_Toasts(t *testing.T) {
	tests := map[string]struct {
		event event.Event
		user  string
		want  domain.Notification
	}{
		"correct answer": {
			event: domain.EventRoundCompleted{PlayerID: "p1", Correct: true, Points: 110},
			user:  "p1",
			want:  domain.Notification{Title: "Correct!", Message: "+110 points", Type: domain.NotificationSuccess},
		},
		"wrong answer on a real quote": {
			event: domain.EventRoundCompleted{PlayerID: "p1", WasReal: true},
			user:  "p1",
			want:  domain.Notification{Title: "Wrong!", Message: "The quote was real", Type: domain.NotificationError},
		},
		"wrong answer on a fake quote": {
			event: domain.EventRoundCompleted{PlayerID: "p1"},
			user:  "p1",
			want:  domain.Notification{Title: "Wrong!", Message: "The quote was fake", Type: domain.NotificationError},
		},
		"timeout": {
			event: domain.EventRoundCompleted{PlayerID: "p1", TimedOut: true, WasReal: true},
			user:  "p1",
			want:  domain.Notification{Title: "Time's Up!", Message: "You ran out of time", Type: domain.NotificationWarning},
		},
		"game over": {
			event: domain.EventGameEnded{Record: domain.GameRecord{PlayerID: "p1", Score: 850, CorrectAnswers: 8, Performance: "Outstanding!"}},
			user:  "p1",
			want:  domain.Notification{Title: "Outstanding!", Message: "Final score: 850 points, 8 correct answers", Type: domain.NotificationInfo},
		},
		"job posted": {
			event: domain.EventJobPosted{Job: domain.Job{EmployerID: "emp1"}},
			user:  "emp1",
			want:  domain.Notification{Title: "Job Posted!", Message: "Your job posting is now live", Type: domain.NotificationSuccess},
		},
		"application submitted": {
			event: domain.EventApplicationSubmitted{Application: domain.Application{CandidateID: "c1"}},
			user:  "c1",
			want:  domain.Notification{Title: "Application Submitted!", Message: "Your application has been sent to the employer", Type: domain.NotificationSuccess},
		},
		"application rejected": {
			event: domain.EventApplicationStatusUpdated{EmployerID: "emp1", Application: domain.Application{Status: domain.StatusRejected}},
			user:  "emp1",
			want:  domain.Notification{Title: "Application Updated", Message: "Candidate has been rejected", Type: domain.NotificationWarning},
		},
		"application shortlisted": {
			event: domain.EventApplicationStatusUpdated{EmployerID: "emp1", Application: domain.Application{Status: domain.StatusShortlisted}},
			user:  "emp1",
			want:  domain.Notification{Title: "Application Updated", Message: "Candidate has been shortlisted", Type: domain.NotificationSuccess},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			eb := event.NewBus()
			s := notification.NewService(notification.Config{EventBus: eb, TTL: time.Minute})

			eb.Publish(context.Background(), tt.event)
			eb.Stop()

			got := s.List(context.Background(), notification.ListRequest{UserID: tt.user})
			require.Len(t, got, 1)
			assert.Equal(t, tt.want.Title, got[0].Title)
			assert.Equal(t, tt.want.Message, got[0].Message)
			assert.Equal(t, tt.want.Type, got[0].Type)
		})
	}
}

func TestService_PublishesToUserChannel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{rs.Addr()}})

	eb := event.NewBus()
	s := notification.NewService(notification.Config{EventBus: eb, Redis: rc, Prefix: "test"})

	ps, err := s.Subscribe(ctx, "p1")
	require.NoError(t, err)
	defer ps.Close()

	_, err = s.Show(ctx, notification.ShowRequest{UserID: "p1", Title: "Correct!", Type: domain.NotificationSuccess})
	require.NoError(t, err)

	eb.Publish(ctx, domain.EventLeaderboardUpdated{Leaderboard: domain.Leaderboard{
		Metric:  domain.MetricAllTime,
		Entries: []domain.LeaderboardEntry{{ID: "p1", Name: "Ada", Rank: 1}},
	}})
	eb.Stop()

	got := make(map[string]json.RawMessage)
	for range 2 {
		m, err := ps.ReceiveMessage(ctx)
		require.NoError(t, err)
		require.Equal(t, "test:user:p1", m.Channel)

		var msg notification.Message
		require.NoError(t, json.Unmarshal([]byte(m.Payload), &msg))
		got[msg.Event] = msg.Data
	}

	require.Contains(t, got, domain.EventNameNotificationCreated)
	require.Contains(t, got, domain.EventNameLeaderboardUpdated)

	var n domain.Notification
	require.NoError(t, json.Unmarshal(got[domain.EventNameNotificationCreated], &n))
	assert.Equal(t, "Correct!", n.Title)
}

func titles(ns []domain.Notification) []string {
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.Title)
	}
	return out
}
