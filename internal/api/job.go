package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victornm/misquote/internal/domain"
	"github.com/victornm/misquote/internal/job"
)

func (a *API) searchJobs(c *gin.Context) {
	jobs := a.jobs.Search(c.Request.Context(), job.SearchRequest{
		Term:     c.Query("q"),
		Location: c.Query("location"),
		Type:     domain.JobType(c.Query("type")),
	})

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (a *API) getJob(c *gin.Context) {
	j, err := a.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, j)
}

type postJobRequest struct {
	Title        string         `json:"title"`
	Company      string         `json:"company"`
	Location     string         `json:"location"`
	Type         domain.JobType `json:"type"`
	Salary       string         `json:"salary"`
	Description  string         `json:"description"`
	Requirements []string       `json:"requirements"`
}

func (a *API) postJob(c *gin.Context) {
	var req postJobRequest
	if !bindJSON(c, &req) {
		return
	}

	j, err := a.jobs.Add(c.Request.Context(), job.AddRequest{
		EmployerID:   identity(c).UserID,
		Title:        req.Title,
		Company:      req.Company,
		Location:     req.Location,
		Type:         req.Type,
		Salary:       req.Salary,
		Description:  req.Description,
		Requirements: req.Requirements,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, j)
}

type applyRequest struct {
	// Resume defaults to the one on the candidate's profile.
	Resume      string `json:"resume"`
	CoverLetter string `json:"cover_letter"`
}

func (a *API) applyToJob(c *gin.Context) {
	var req applyRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	u, err := a.accounts.Get(ctx, identity(c).UserID)
	if err != nil {
		renderError(c, err)
		return
	}

	resume := req.Resume
	if resume == "" {
		resume = u.Resume
	}

	app, err := a.jobs.Apply(ctx, job.ApplyRequest{
		JobID:          c.Param("id"),
		CandidateID:    u.ID,
		CandidateName:  u.Name,
		CandidateEmail: u.Email,
		Resume:         resume,
		CoverLetter:    req.CoverLetter,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, app)
}

type updateApplicationStatusRequest struct {
	Status domain.ApplicationStatus `json:"status" binding:"required"`
}

func (a *API) updateApplicationStatus(c *gin.Context) {
	var req updateApplicationStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	app, err := a.jobs.UpdateApplicationStatus(c.Request.Context(), job.UpdateApplicationStatusRequest{
		ApplicationID: c.Param("id"),
		Status:        req.Status,
		EmployerID:    identity(c).UserID,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, app)
}

func (a *API) myApplications(c *gin.Context) {
	apps := a.jobs.ApplicationsByCandidate(c.Request.Context(), identity(c).UserID)
	c.JSON(http.StatusOK, gin.H{"applications": apps})
}

func (a *API) dashboard(c *gin.Context) {
	c.JSON(http.StatusOK, a.jobs.Dashboard(c.Request.Context(), identity(c).UserID))
}
