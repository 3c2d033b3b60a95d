package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victornm/misquote/internal/domain"
	"github.com/victornm/misquote/internal/game"
	"github.com/victornm/misquote/internal/leaderboard"
)

type quoteView struct {
	ID         string            `json:"id"`
	Text       string            `json:"text"`
	Author     string            `json:"author"`
	Difficulty domain.Difficulty `json:"difficulty"`
	Category   string            `json:"category"`
	// IsReal is only revealed once the round is answered.
	IsReal *bool `json:"is_real,omitempty"`
}

func newQuoteView(q domain.Quote, reveal bool) *quoteView {
	v := &quoteView{
		ID:         q.ID,
		Text:       q.Text,
		Author:     q.Author,
		Difficulty: q.Difficulty,
		Category:   q.Category,
	}
	if reveal {
		v.IsReal = &q.IsReal
	}
	return v
}

type gameView struct {
	domain.GameSession
	CurrentQuote *quoteView `json:"current_quote,omitempty"`
}

func newGameView(g *domain.GameSession) gameView {
	v := gameView{GameSession: *g}
	if g.CurrentQuote != nil {
		v.CurrentQuote = newQuoteView(*g.CurrentQuote, g.Answered)
	}
	return v
}

type startGameRequest struct {
	PlayerID   string            `json:"player_id" binding:"required"`
	Difficulty domain.Difficulty `json:"difficulty" binding:"required"`
}

func (a *API) startGame(c *gin.Context) {
	var req startGameRequest
	if !bindJSON(c, &req) {
		return
	}

	g, err := a.games.Start(c.Request.Context(), game.StartRequest{
		PlayerID:   req.PlayerID,
		Difficulty: req.Difficulty,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newGameView(g))
}

func (a *API) getGame(c *gin.Context) {
	g, err := a.games.Get(c.Request.Context(), game.GetRequest{SessionID: c.Param("id")})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, newGameView(g))
}

func (a *API) tickGame(c *gin.Context) {
	g, err := a.games.Tick(c.Request.Context(), game.TickRequest{SessionID: c.Param("id")})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, newGameView(g))
}

type submitAnswerRequest struct {
	// Guess is true when the player believes the quote is real.
	Guess *bool `json:"guess" binding:"required"`
}

type submitAnswerResponse struct {
	Correct bool     `json:"correct"`
	Points  int      `json:"points"`
	Score   int      `json:"score"`
	WasReal bool     `json:"was_real"`
	Session gameView `json:"session"`
}

func (a *API) submitAnswer(c *gin.Context) {
	var req submitAnswerRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := a.games.SubmitAnswer(c.Request.Context(), game.SubmitAnswerRequest{
		SessionID: c.Param("id"),
		Guess:     *req.Guess,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, submitAnswerResponse{
		Correct: resp.Correct,
		Points:  resp.Points,
		Score:   resp.Session.Score,
		WasReal: resp.WasReal,
		Session: newGameView(&resp.Session),
	})
}

func (a *API) nextRound(c *gin.Context) {
	g, err := a.games.NextRound(c.Request.Context(), game.NextRoundRequest{SessionID: c.Param("id")})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, newGameView(g))
}

func (a *API) endGame(c *gin.Context) {
	g, err := a.games.End(c.Request.Context(), game.EndRequest{SessionID: c.Param("id")})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, newGameView(g))
}

// getQuote never reveals whether the quote is real, it may be the one a running round shows.
func (a *API) getQuote(c *gin.Context) {
	q, err := a.quotes.Get(c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, newQuoteView(q, false))
}

func (a *API) getLeaderboard(c *gin.Context) {
	l, err := a.leaderboard.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		Metric: domain.LeaderboardMetric(c.Query("metric")),
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, l)
}
