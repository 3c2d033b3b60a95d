package game

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/misquote/internal/domain"
	"github.com/victornm/misquote/internal/errors"
	"github.com/victornm/misquote/internal/event"
	"github.com/victornm/misquote/internal/player"
	"github.com/victornm/misquote/internal/quote"
	"github.com/victornm/misquote/internal/telemetry"
)

const (
	defaultTickInterval = time.Second
	defaultSessionTTL   = 2 * time.Hour
)

// Players is the subset of the player store a game needs.
type Players interface {
	Get(ctx context.Context, id string) (*domain.Player, error)
	ApplyRound(ctx context.Context, req player.ApplyRoundRequest) (*domain.Player, error)
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type Config struct {
	EventBus *event.Bus
	Quotes   *quote.Catalog
	Players  Players

	// AutoTick runs a server-side timer for every active round. When false,
	// clients drive the countdown through Tick.
	AutoTick      bool
	TickInterval  time.Duration
	SessionTTL    time.Duration
	NewTickerFunc func(d time.Duration) Ticker
	Now           func() time.Time
}

type Service struct {
	eb      *event.Bus
	quotes  *quote.Catalog
	players Players

	autoTick     bool
	tickInterval time.Duration
	ttl          time.Duration
	newTicker    func(d time.Duration) Ticker
	now          func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
	byPlayer map[string]string
	// outcomes holds, per player, a channel closed once the last queued round outcome is written.
	outcomes map[string]chan struct{}

	wg   sync.WaitGroup
	done chan struct{}
	once sync.Once
}

type session struct {
	state     domain.GameSession
	stopTimer chan struct{}
}

func NewService(c Config) *Service {
	s := &Service{
		eb:           c.EventBus,
		quotes:       c.Quotes,
		players:      c.Players,
		autoTick:     c.AutoTick,
		tickInterval: c.TickInterval,
		ttl:          c.SessionTTL,
		newTicker:    c.NewTickerFunc,
		now:          c.Now,
		sessions:     make(map[string]*session),
		byPlayer:     make(map[string]string),
		outcomes:     make(map[string]chan struct{}),
		done:         make(chan struct{}),
	}

	if s.tickInterval <= 0 {
		s.tickInterval = defaultTickInterval
	}
	if s.ttl <= 0 {
		s.ttl = defaultSessionTTL
	}
	if s.newTicker == nil {
		s.newTicker = newTimeTicker
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

type StartRequest struct {
	PlayerID   string
	Difficulty domain.Difficulty
}

// Start begins a new game for the player. A game the player still has running is ended first.
func (s *Service) Start(ctx context.Context, req StartRequest) (*domain.GameSession, error) {
	if !req.Difficulty.Valid() {
		return nil, errors.InvalidArgument("unknown difficulty: %q", req.Difficulty)
	}

	if _, err := s.players.Get(ctx, req.PlayerID); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}

	now := s.now()
	q := s.quotes.Random(req.Difficulty)
	limit := domain.RoundTimeLimit(req.Difficulty)

	ss := &session{
		state: domain.GameSession{
			ID:             id.String(),
			PlayerID:       req.PlayerID,
			CurrentQuote:   &q,
			CurrentRound:   1,
			TotalRounds:    domain.TotalRounds,
			TimeLeft:       limit,
			RoundTimeLimit: limit,
			IsActive:       true,
			Difficulty:     req.Difficulty,
			StartTime:      now,
			UpdateTime:     now,
		},
	}

	var ended *domain.GameRecord

	s.mu.Lock()
	s.evictExpiredLocked(now)
	if prev, ok := s.sessions[s.byPlayer[req.PlayerID]]; ok && prev.state.IsActive {
		ended = s.endLocked(prev)
	}
	s.sessions[ss.state.ID] = ss
	s.byPlayer[req.PlayerID] = ss.state.ID
	s.startTimerLocked(ctx, ss)
	out := ss.state.Clone()
	s.mu.Unlock()

	if ended != nil {
		s.eb.Publish(ctx, domain.EventGameEnded{Record: *ended})
	}

	telemetry.GamesStarted.WithLabelValues(string(req.Difficulty)).Inc()
	slog.InfoContext(ctx, "game: session started",
		"session_id", out.ID,
		"player_id", out.PlayerID,
		"difficulty", out.Difficulty,
	)

	return &out, nil
}

type GetRequest struct {
	SessionID string
}

func (s *Service) Get(_ context.Context, req GetRequest) (*domain.GameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss, err := s.getLocked(req.SessionID)
	if err != nil {
		return nil, err
	}

	out := ss.state.Clone()
	return &out, nil
}

type TickRequest struct {
	SessionID string
}

// Tick takes one second off the round clock. Reaching zero times the round out.
func (s *Service) Tick(ctx context.Context, req TickRequest) (*domain.GameSession, error) {
	out, _, err := s.tick(ctx, req.SessionID, 0)
	return out, err
}

// tick decrements the clock of the given round, round 0 meaning whichever round is current.
// The returned bool reports whether the clock should keep running.
func (s *Service) tick(ctx context.Context, id string, round int) (*domain.GameSession, bool, error) {
	s.mu.Lock()

	ss, err := s.getLocked(id)
	if err != nil {
		s.mu.Unlock()
		return nil, false, err
	}

	st := &ss.state
	if !st.IsActive || st.Answered {
		s.mu.Unlock()
		return nil, false, errors.FailedPrecondition("round is not running: session=%s", id)
	}
	if round != 0 && st.CurrentRound != round {
		s.mu.Unlock()
		return nil, false, nil
	}

	st.TimeLeft = max(st.TimeLeft-1, 0)
	st.UpdateTime = s.now()

	var (
		timedOut *domain.EventRoundCompleted
		w        outcomeWrite
	)
	if st.TimeLeft == 0 {
		st.Answered = true
		st.LastAnswerCorrect = boolPtr(false)
		s.stopTimerLocked(ss)

		timedOut = &domain.EventRoundCompleted{
			SessionID: st.ID,
			PlayerID:  st.PlayerID,
			Round:     st.CurrentRound,
			TimedOut:  true,
			WasReal:   st.CurrentQuote.IsReal,
		}
		w = s.queueOutcomeLocked(st.PlayerID)
	}

	out := st.Clone()
	s.mu.Unlock()

	if timedOut != nil {
		s.applyOutcome(ctx, w, *timedOut)
		telemetry.RoundsCompleted.WithLabelValues(string(out.Difficulty), "timeout").Inc()
		s.eb.Publish(ctx, *timedOut)
		return &out, false, nil
	}

	return &out, true, nil
}

type SubmitAnswerRequest struct {
	SessionID string
	// Guess is true when the player thinks the quote is real.
	Guess bool
}

type SubmitAnswerResponse struct {
	Correct bool
	Points  int
	WasReal bool
	Session domain.GameSession
}

// SubmitAnswer scores the player's guess for the current round.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	s.mu.Lock()

	ss, err := s.getLocked(req.SessionID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	st := &ss.state
	switch {
	case !st.IsActive || st.CurrentQuote == nil:
		s.mu.Unlock()
		return nil, errors.FailedPrecondition("game is not active: session=%s", req.SessionID)
	case st.Answered:
		s.mu.Unlock()
		return nil, errors.FailedPrecondition("round %d is already answered: session=%s", st.CurrentRound, req.SessionID)
	}

	s.stopTimerLocked(ss)

	resp := &SubmitAnswerResponse{
		Correct: req.Guess == st.CurrentQuote.IsReal,
		WasReal: st.CurrentQuote.IsReal,
	}
	if resp.Correct {
		resp.Points = domain.Points(st.Difficulty, st.TimeLeft)
		st.Score += resp.Points
		st.CorrectAnswers++
	}

	st.Answered = true
	st.LastAnswerCorrect = boolPtr(resp.Correct)
	st.UpdateTime = s.now()
	resp.Session = st.Clone()
	w := s.queueOutcomeLocked(st.PlayerID)
	s.mu.Unlock()

	e := domain.EventRoundCompleted{
		SessionID: resp.Session.ID,
		PlayerID:  resp.Session.PlayerID,
		Round:     resp.Session.CurrentRound,
		Correct:   resp.Correct,
		Points:    resp.Points,
		WasReal:   resp.WasReal,
	}
	s.applyOutcome(ctx, w, e)

	outcome := "wrong"
	if resp.Correct {
		outcome = "correct"
	}
	telemetry.RoundsCompleted.WithLabelValues(string(resp.Session.Difficulty), outcome).Inc()

	s.eb.Publish(ctx, e)

	return resp, nil
}

type NextRoundRequest struct {
	SessionID string
}

// NextRound moves to the next round, or ends the game after the last one.
func (s *Service) NextRound(ctx context.Context, req NextRoundRequest) (*domain.GameSession, error) {
	s.mu.Lock()

	ss, err := s.getLocked(req.SessionID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	st := &ss.state
	switch {
	case !st.IsActive:
		s.mu.Unlock()
		return nil, errors.FailedPrecondition("game is not active: session=%s", req.SessionID)
	case !st.Answered:
		s.mu.Unlock()
		return nil, errors.FailedPrecondition("round %d is still running: session=%s", st.CurrentRound, req.SessionID)
	}

	if st.CurrentRound >= st.TotalRounds {
		rec := s.endLocked(ss)
		out := ss.state.Clone()
		s.mu.Unlock()

		s.eb.Publish(ctx, domain.EventGameEnded{Record: *rec})
		return &out, nil
	}

	q := s.quotes.Random(st.Difficulty)
	st.CurrentRound++
	st.CurrentQuote = &q
	st.TimeLeft = st.RoundTimeLimit
	st.Answered = false
	st.LastAnswerCorrect = nil
	st.UpdateTime = s.now()
	s.startTimerLocked(ctx, ss)

	out := st.Clone()
	s.mu.Unlock()

	return &out, nil
}

type EndRequest struct {
	SessionID string
}

// End stops the game. Ending a game that already ended returns it unchanged.
func (s *Service) End(ctx context.Context, req EndRequest) (*domain.GameSession, error) {
	s.mu.Lock()

	ss, err := s.getLocked(req.SessionID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	var rec *domain.GameRecord
	if ss.state.IsActive {
		rec = s.endLocked(ss)
	}
	out := ss.state.Clone()
	s.mu.Unlock()

	if rec != nil {
		s.eb.Publish(ctx, domain.EventGameEnded{Record: *rec})
	}

	return &out, nil
}

// Close stops every round clock. Sessions stay readable.
func (s *Service) Close() {
	s.once.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}

func (s *Service) getLocked(id string) (*session, error) {
	ss, ok := s.sessions[id]
	if !ok {
		return nil, errors.NotFound("game session not found: id=%s", id)
	}
	return ss, nil
}

func (s *Service) endLocked(ss *session) *domain.GameRecord {
	s.stopTimerLocked(ss)

	now := s.now()
	st := &ss.state
	st.IsActive = false
	st.CurrentQuote = nil
	st.TimeLeft = 0
	st.UpdateTime = now

	slog.Info("game: session ended",
		"session_id", st.ID,
		"player_id", st.PlayerID,
		"score", st.Score,
	)

	return &domain.GameRecord{
		SessionID:      st.ID,
		PlayerID:       st.PlayerID,
		Difficulty:     st.Difficulty,
		Score:          st.Score,
		CorrectAnswers: st.CorrectAnswers,
		Rounds:         st.CurrentRound,
		Performance:    domain.Performance(st.Score, st.TotalRounds),
		StartTime:      st.StartTime,
		EndTime:        now,
	}
}

// evictExpiredLocked drops sessions nobody touched within the TTL.
// Their clocks are stopped but no game.ended is published for them.
func (s *Service) evictExpiredLocked(now time.Time) {
	for id, ss := range s.sessions {
		if now.Sub(ss.state.UpdateTime) < s.ttl {
			continue
		}

		s.stopTimerLocked(ss)
		delete(s.sessions, id)
		if s.byPlayer[ss.state.PlayerID] == id {
			delete(s.byPlayer, ss.state.PlayerID)
		}
	}
}

// outcomeWrite is a reserved slot in a player's queue of round outcomes.
type outcomeWrite struct {
	prev <-chan struct{}
	done chan struct{}
}

// queueOutcomeLocked reserves the player's next outcome slot. Outcomes are written in
// the order their rounds were decided, so order-dependent stats such as the streak hold.
func (s *Service) queueOutcomeLocked(playerID string) outcomeWrite {
	w := outcomeWrite{
		prev: s.outcomes[playerID],
		done: make(chan struct{}),
	}
	s.outcomes[playerID] = w.done
	return w
}

// applyOutcome writes the round outcome to the player once every earlier outcome is written.
func (s *Service) applyOutcome(ctx context.Context, w outcomeWrite, e domain.EventRoundCompleted) {
	if w.prev != nil {
		<-w.prev
	}

	_, err := s.players.ApplyRound(context.WithoutCancel(ctx), player.ApplyRoundRequest{
		PlayerID: e.PlayerID,
		Correct:  e.Correct,
		Points:   e.Points,
	})
	close(w.done)

	s.mu.Lock()
	if s.outcomes[e.PlayerID] == w.done {
		delete(s.outcomes, e.PlayerID)
	}
	s.mu.Unlock()

	switch {
	case errors.Is(err, errors.CodeNotFound):
		slog.WarnContext(ctx, "game: player is gone, round outcome dropped",
			"session_id", e.SessionID,
			"player_id", e.PlayerID,
		)
	case err != nil:
		slog.ErrorContext(ctx, "game: apply round outcome failed",
			"session_id", e.SessionID,
			"player_id", e.PlayerID,
			"round", e.Round,
			"error", err,
		)
	}
}

func (s *Service) startTimerLocked(ctx context.Context, ss *session) {
	if !s.autoTick {
		return
	}

	s.stopTimerLocked(ss)
	stop := make(chan struct{})
	ss.stopTimer = stop

	id, round := ss.state.ID, ss.state.CurrentRound
	ctx = context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		t := s.newTicker(s.tickInterval)
		defer t.Stop()

		for {
			select {
			case <-stop:
				return
			case <-s.done:
				return
			case <-t.C():
				if _, running, err := s.tick(ctx, id, round); err != nil || !running {
					return
				}
			}
		}
	}()
}

func (s *Service) stopTimerLocked(ss *session) {
	if ss.stopTimer != nil {
		close(ss.stopTimer)
		ss.stopTimer = nil
	}
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }

func (t timeTicker) Stop() { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

func boolPtr(b bool) *bool {
	return &b
}
