package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victornm/misquote/internal/account"
	"github.com/victornm/misquote/internal/domain"
	"github.com/victornm/misquote/internal/errors"
)

type loginRequest struct {
	Email    string      `json:"email" binding:"required"`
	Password string      `json:"password" binding:"required"`
	Role     domain.Role `json:"role" binding:"required"`
}

func (a *API) login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := a.accounts.Login(c.Request.Context(), account.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) getProfile(c *gin.Context) {
	u, err := a.accounts.Get(c.Request.Context(), identity(c).UserID)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, u)
}

type updateProfileRequest struct {
	Name       *string  `json:"name"`
	Phone      *string  `json:"phone"`
	Location   *string  `json:"location"`
	Bio        *string  `json:"bio"`
	Skills     []string `json:"skills"`
	Experience *string  `json:"experience"`
	Education  *string  `json:"education"`
}

func (a *API) updateProfile(c *gin.Context) {
	var req updateProfileRequest
	if !bindJSON(c, &req) {
		return
	}

	u, err := a.accounts.UpdateProfile(c.Request.Context(), account.UpdateProfileRequest{
		UserID:     identity(c).UserID,
		Name:       req.Name,
		Phone:      req.Phone,
		Location:   req.Location,
		Bio:        req.Bio,
		Skills:     req.Skills,
		Experience: req.Experience,
		Education:  req.Education,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, u)
}

// uploadResume accepts a multipart form with the file under "resume".
func (a *API) uploadResume(c *gin.Context) {
	fh, err := c.FormFile("resume")
	if err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("resume file is required"),
			errors.WithCause(err)))
		return
	}

	u, err := a.accounts.UploadResume(c.Request.Context(), account.UploadResumeRequest{
		UserID:   identity(c).UserID,
		Filename: fh.Filename,
		Size:     fh.Size,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, u)
}
