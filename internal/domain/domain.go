package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

const (
	TotalRounds = 10
	basePoints  = 100
)

type difficultyRule struct {
	timeLimit  int
	multiplier decimal.Decimal
}

var difficultyRules = map[Difficulty]difficultyRule{
	DifficultyEasy:   {timeLimit: 20, multiplier: decimal.NewFromInt(1)},
	DifficultyMedium: {timeLimit: 15, multiplier: decimal.RequireFromString("1.5")},
	DifficultyHard:   {timeLimit: 10, multiplier: decimal.NewFromInt(2)},
}

func (d Difficulty) Valid() bool {
	_, ok := difficultyRules[d]
	return ok
}

// RoundTimeLimit is the number of seconds a player gets per round.
func RoundTimeLimit(d Difficulty) int {
	return difficultyRules[d].timeLimit
}

// Multiplier scales the points of a correct answer.
func Multiplier(d Difficulty) decimal.Decimal {
	r, ok := difficultyRules[d]
	if !ok {
		return decimal.Zero
	}
	return r.multiplier
}

// Points awarded for a correct answer: floor((100 + floor(timeLeft/2)) * multiplier).
func Points(d Difficulty, timeLeft int) int {
	if timeLeft < 0 {
		timeLeft = 0
	}
	bonus := timeLeft / 2
	return int(decimal.NewFromInt(int64(basePoints + bonus)).Mul(Multiplier(d)).Floor().IntPart())
}

// Accuracy is the percentage of correct answers, rounded to the nearest integer.
func Accuracy(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(total) * 100))
}

// Performance grades a finished game relative to 100 points per round.
func Performance(score, totalRounds int) string {
	if totalRounds <= 0 {
		return "Keep Practicing!"
	}

	pct := float64(score) / float64(totalRounds*basePoints) * 100
	switch {
	case pct >= 80:
		return "Outstanding!"
	case pct >= 60:
		return "Great Job!"
	case pct >= 40:
		return "Good Effort!"
	default:
		return "Keep Practicing!"
	}
}

type Quote struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Author     string     `json:"author"`
	IsReal     bool       `json:"is_real"`
	Difficulty Difficulty `json:"difficulty"`
	Category   string     `json:"category"`
}

// GameSession is one player's run of TotalRounds rounds.
// While active, CurrentRound is within [1, TotalRounds] and TimeLeft within [0, RoundTimeLimit].
type GameSession struct {
	ID                string     `json:"id"`
	PlayerID          string     `json:"player_id"`
	CurrentQuote      *Quote     `json:"current_quote,omitempty"`
	CurrentRound      int        `json:"current_round"`
	TotalRounds       int        `json:"total_rounds"`
	TimeLeft          int        `json:"time_left"`
	RoundTimeLimit    int        `json:"round_time_limit"`
	Score             int        `json:"score"`
	CorrectAnswers    int        `json:"correct_answers"`
	IsActive          bool       `json:"is_active"`
	Answered          bool       `json:"answered"`
	LastAnswerCorrect *bool      `json:"last_answer_correct,omitempty"`
	Difficulty        Difficulty `json:"difficulty"`
	StartTime         time.Time  `json:"start_time"`
	UpdateTime        time.Time  `json:"update_time"`
}

// Clone returns a deep copy so callers never share the quote or answer pointers.
func (g GameSession) Clone() GameSession {
	if g.CurrentQuote != nil {
		q := *g.CurrentQuote
		g.CurrentQuote = &q
	}
	if g.LastAnswerCorrect != nil {
		b := *g.LastAnswerCorrect
		g.LastAnswerCorrect = &b
	}
	return g
}

// Player is the profile a user plays under. It is stored as a single JSON document.
type Player struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Score          int       `json:"score"`
	TotalGames     int       `json:"totalGames"`
	CorrectAnswers int       `json:"correctAnswers"`
	Streak         int       `json:"streak"`
	Avatar         string    `json:"avatar"`
	JoinedAt       time.Time `json:"joinedAt"`
}

// Leaderboard is sorted descending by Metric, ranks start at 1.
type Leaderboard struct {
	Metric  LeaderboardMetric  `json:"metric"`
	Entries []LeaderboardEntry `json:"entries"`
}

type LeaderboardMetric string

const (
	MetricAllTime  LeaderboardMetric = "all-time"
	MetricWeekly   LeaderboardMetric = "weekly"
	MetricAccuracy LeaderboardMetric = "accuracy"
)

func (m LeaderboardMetric) Valid() bool {
	switch m {
	case MetricAllTime, MetricWeekly, MetricAccuracy:
		return true
	}
	return false
}

type LeaderboardEntry struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Avatar         string    `json:"avatar,omitempty"`
	Score          int       `json:"score"`
	TotalGames     int       `json:"total_games"`
	CorrectAnswers int       `json:"correct_answers"`
	Streak         int       `json:"streak"`
	Accuracy       int       `json:"accuracy"`
	Rank           int       `json:"rank"`
	UpdateTime     time.Time `json:"update_time"`
}

// GameRecord is the archived summary of a finished game.
type GameRecord struct {
	SessionID      string     `json:"session_id"`
	PlayerID       string     `json:"player_id"`
	Difficulty     Difficulty `json:"difficulty"`
	Score          int        `json:"score"`
	CorrectAnswers int        `json:"correct_answers"`
	Rounds         int        `json:"rounds"`
	Performance    string     `json:"performance"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
}

type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
	NotificationInfo    NotificationType = "info"
)

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	CreatedAt time.Time        `json:"created_at"`
}
