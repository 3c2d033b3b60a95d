package domain

const (
	EventNameRoundCompleted           = "game.round_completed"
	EventNameGameEnded                = "game.ended"
	EventNamePlayerUpdated            = "player.updated"
	EventNamePlayerReset              = "player.reset"
	EventNameLeaderboardUpdated       = "leaderboard.updated"
	EventNameJobPosted                = "job.posted"
	EventNameApplicationSubmitted     = "application.submitted"
	EventNameApplicationStatusUpdated = "application.status_updated"
	EventNameNotificationCreated      = "notification.created"
)

// EventRoundCompleted is published once per round, either on answer or on timeout.
type EventRoundCompleted struct {
	SessionID string
	PlayerID  string
	Round     int
	Correct   bool
	TimedOut  bool
	Points    int
	WasReal   bool
}

func (EventRoundCompleted) Name() string { return EventNameRoundCompleted }

type EventGameEnded struct {
	Record GameRecord
}

func (EventGameEnded) Name() string { return EventNameGameEnded }

type EventPlayerUpdated struct {
	Player Player
}

func (EventPlayerUpdated) Name() string { return EventNamePlayerUpdated }

type EventPlayerReset struct {
	PlayerID string
}

func (EventPlayerReset) Name() string { return EventNamePlayerReset }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }

type EventJobPosted struct {
	Job Job
}

func (EventJobPosted) Name() string { return EventNameJobPosted }

type EventApplicationSubmitted struct {
	Application Application
}

func (EventApplicationSubmitted) Name() string { return EventNameApplicationSubmitted }

type EventApplicationStatusUpdated struct {
	Application Application
	EmployerID  string
}

func (EventApplicationStatusUpdated) Name() string { return EventNameApplicationStatusUpdated }

type EventNotificationCreated struct {
	Notification Notification
}

func (EventNotificationCreated) Name() string { return EventNameNotificationCreated }
