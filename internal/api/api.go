package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	cachecontrol "go.eigsys.de/gin-cachecontrol/v2"

	"github.com/victornm/misquote/internal/account"
	"github.com/victornm/misquote/internal/domain"
	"github.com/victornm/misquote/internal/errors"
	"github.com/victornm/misquote/internal/game"
	"github.com/victornm/misquote/internal/history"
	"github.com/victornm/misquote/internal/job"
	"github.com/victornm/misquote/internal/leaderboard"
	"github.com/victornm/misquote/internal/notification"
	"github.com/victornm/misquote/internal/player"
	"github.com/victornm/misquote/internal/quote"
)

type Config struct {
	Router gin.IRouter

	Players       *player.Service
	Games         *game.Service
	Quotes        *quote.Catalog
	Leaderboard   *leaderboard.Service
	Notifications *notification.Service
	Jobs          *job.Service
	Accounts      *account.Service
	History       *history.Service

	RateLimit RateLimitConfig
}

// API exposes the services as JSON over HTTP under /api/v1.
type API struct {
	players       *player.Service
	games         *game.Service
	quotes        *quote.Catalog
	leaderboard   *leaderboard.Service
	notifications *notification.Service
	jobs          *job.Service
	accounts      *account.Service
	history       *history.Service

	limiter *limiter
}

func New(c Config) *API {
	a := &API{
		players:       c.Players,
		games:         c.Games,
		quotes:        c.Quotes,
		leaderboard:   c.Leaderboard,
		notifications: c.Notifications,
		jobs:          c.Jobs,
		accounts:      c.Accounts,
		history:       c.History,
		limiter:       newLimiter(c.RateLimit),
	}

	a.register(c.Router)
	return a
}

func (a *API) register(r gin.IRouter) {
	v1 := r.Group("/api/v1",
		cachecontrol.New(cachecontrol.Config{
			NoStore:        true,
			NoCache:        true,
			MustRevalidate: true,
		}),
		a.rateLimit(),
	)

	players := v1.Group("/players")
	players.POST("", a.createPlayer)
	players.GET("/:id", a.getPlayer)
	players.DELETE("/:id", a.resetPlayer)
	players.GET("/:id/games", a.listPlayerGames)
	players.GET("/:id/notifications", a.listNotifications)
	players.DELETE("/:id/notifications/:nid", a.removeNotification)
	players.GET("/:id/notifications/ws", a.streamNotifications)

	games := v1.Group("/games")
	games.POST("", a.startGame)
	games.GET("/:id", a.getGame)
	games.POST("/:id/tick", a.tickGame)
	games.POST("/:id/answer", a.submitAnswer)
	games.POST("/:id/next", a.nextRound)
	games.POST("/:id/end", a.endGame)

	v1.GET("/leaderboard", a.getLeaderboard)
	v1.GET("/quotes/:id", a.getQuote)

	v1.POST("/auth/login", a.login)

	authed := v1.Group("", a.authenticate())
	authed.GET("/profile", a.getProfile)
	authed.PUT("/profile", a.updateProfile)
	authed.POST("/profile/resume", a.uploadResume)
	authed.GET("/applications/mine", a.myApplications)

	employer := authed.Group("", requireRole(domain.RoleEmployer))
	employer.POST("/jobs", a.postJob)
	employer.PATCH("/applications/:id", a.updateApplicationStatus)
	employer.GET("/dashboard", a.dashboard)

	seeker := authed.Group("", requireRole(domain.RoleJobSeeker))
	seeker.POST("/jobs/:id/applications", a.applyToJob)

	v1.GET("/jobs", a.searchJobs)
	v1.GET("/jobs/:id", a.getJob)
}

// renderError writes err as {code, message}. Causes of internal errors are logged, never returned.
func renderError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"route", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid request body: %v", err),
			errors.WithCause(err)))
		return false
	}
	return true
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
