package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/victornm/misquote/internal/domain"
	"github.com/victornm/misquote/internal/errors"
	"github.com/victornm/misquote/internal/history"
	"github.com/victornm/misquote/internal/notification"
	"github.com/victornm/misquote/internal/player"
)

type createPlayerRequest struct {
	Name   string `json:"name" binding:"required"`
	Avatar string `json:"avatar"`
}

func (a *API) createPlayer(c *gin.Context) {
	var req createPlayerRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := a.players.Create(c.Request.Context(), player.CreateRequest{
		Name:   req.Name,
		Avatar: req.Avatar,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, p)
}

func (a *API) getPlayer(c *gin.Context) {
	p, err := a.players.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

func (a *API) resetPlayer(c *gin.Context) {
	if err := a.players.Reset(c.Request.Context(), c.Param("id")); err != nil {
		renderError(c, err)
		return
	}

	noContent(c)
}

func (a *API) listPlayerGames(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			renderError(c, errors.InvalidArgument("limit must be a non-negative integer: %q", s))
			return
		}
		limit = n
	}

	records, err := a.history.ListByPlayer(c.Request.Context(), history.ListByPlayerRequest{
		PlayerID: c.Param("id"),
		Limit:    limit,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"games": records})
}

func (a *API) listNotifications(c *gin.Context) {
	ns := a.notifications.List(c.Request.Context(), notification.ListRequest{UserID: c.Param("id")})
	if ns == nil {
		ns = []domain.Notification{}
	}

	c.JSON(http.StatusOK, gin.H{"notifications": ns})
}

func (a *API) removeNotification(c *gin.Context) {
	err := a.notifications.Remove(c.Request.Context(), notification.RemoveRequest{
		UserID:         c.Param("id"),
		NotificationID: c.Param("nid"),
	})
	if err != nil {
		renderError(c, err)
		return
	}

	noContent(c)
}
