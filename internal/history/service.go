package history

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/misquote/internal/domain"
	"github.com/victornm/misquote/internal/errors"
	"github.com/victornm/misquote/internal/event"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Schema creates the archive table. It is safe to run on every start.
const Schema = `
CREATE TABLE IF NOT EXISTS games (
	session_id      TEXT        PRIMARY KEY,
	player_id       TEXT        NOT NULL,
	difficulty      TEXT        NOT NULL,
	score           INTEGER     NOT NULL,
	correct_answers INTEGER     NOT NULL,
	rounds          INTEGER     NOT NULL,
	performance     TEXT        NOT NULL,
	start_time      TIMESTAMPTZ NOT NULL,
	end_time        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS games_player_id_end_time_idx ON games (player_id, end_time DESC);`

type Config struct {
	EventBus *event.Bus
	// DB is optional. Without it the archive is disabled.
	DB *pgxpool.Pool
}

// Service archives finished games.
type Service struct {
	eb *event.Bus
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	s := &Service{
		eb: c.EventBus,
		db: c.DB,
	}

	if s.db != nil {
		s.subscribe()
	}

	return s
}

func (s *Service) Enabled() bool {
	return s.db != nil
}

// Migrate applies Schema.
func (s *Service) Migrate(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}

	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}

	return nil
}

func (s *Service) subscribe() {
	event.On(s.eb, func(ctx context.Context, e domain.EventGameEnded) error {
		err := s.Record(ctx, e.Record)
		if errors.Is(err, errors.CodeAlreadyExists) {
			slog.WarnContext(ctx, "history: game already archived", "session_id", e.Record.SessionID)
			return nil
		}
		return err
	})
}

// Record archives one finished game. Each session is archived at most once.
func (s *Service) Record(ctx context.Context, rec domain.GameRecord) error {
	if !s.Enabled() {
		return errors.FailedPrecondition("game history is disabled")
	}

	const stmt = `
INSERT INTO games (session_id, player_id, difficulty, score, correct_answers, rounds, performance, start_time, end_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`

	_, err := s.db.Exec(ctx, stmt,
		rec.SessionID,
		rec.PlayerID,
		string(rec.Difficulty),
		rec.Score,
		rec.CorrectAnswers,
		rec.Rounds,
		rec.Performance,
		rec.StartTime,
		rec.EndTime,
	)

	var pgErr *pgconn.PgError
	const codeUniqueViolation = "23505"
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("game already archived: session=%s", rec.SessionID),
			errors.WithCause(err))
	}

	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}

	return nil
}

type ListByPlayerRequest struct {
	PlayerID string
	// Limit defaults to 20 and is capped at 100.
	Limit int
}

// ListByPlayer returns the player's finished games, newest first.
func (s *Service) ListByPlayer(ctx context.Context, req ListByPlayerRequest) ([]domain.GameRecord, error) {
	if !s.Enabled() {
		return nil, errors.FailedPrecondition("game history is disabled")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	const stmt = `
SELECT session_id, player_id, difficulty, score, correct_answers, rounds, performance, start_time, end_time
FROM games
WHERE player_id = $1
ORDER BY end_time DESC
LIMIT $2;`

	rows, err := s.db.Query(ctx, stmt, req.PlayerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query games: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.GameRecord, error) {
		var (
			rec        domain.GameRecord
			difficulty string
		)
		if err := r.Scan(
			&rec.SessionID,
			&rec.PlayerID,
			&difficulty,
			&rec.Score,
			&rec.CorrectAnswers,
			&rec.Rounds,
			&rec.Performance,
			&rec.StartTime,
			&rec.EndTime,
		); err != nil {
			return domain.GameRecord{}, err
		}
		rec.Difficulty = domain.Difficulty(difficulty)
		return rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect games: %w", err)
	}

	return records, nil
}
