package job

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/victornm/misquote/internal/domain"
	"github.com/victornm/misquote/internal/errors"
	"github.com/victornm/misquote/internal/event"
	"github.com/victornm/misquote/internal/telemetry"
)

const recentApplications = 5

func mockJobs() []domain.Job {
	return []domain.Job{
		{
			ID:           "1",
			Title:        "Senior Software Engineer",
			Company:      "Tech Corp",
			Location:     "San Francisco, CA",
			Type:         domain.JobTypeFullTime,
			Salary:       "$120,000 - $160,000",
			Description:  "We are looking for a senior software engineer to join our team...",
			Requirements: []string{"5+ years React experience", "Node.js proficiency", "TypeScript knowledge"},
			PostedDate:   time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			EmployerID:   "emp1",
		},
		{
			ID:           "2",
			Title:        "UX/UI Designer",
			Company:      "Design Studio",
			Location:     "New York, NY",
			Type:         domain.JobTypeFullTime,
			Salary:       "$80,000 - $110,000",
			Description:  "Join our creative team as a UX/UI designer...",
			Requirements: []string{"3+ years design experience", "Figma proficiency", "Portfolio required"},
			PostedDate:   time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
			EmployerID:   "emp2",
		},
		{
			ID:           "3",
			Title:        "Product Manager",
			Company:      "StartupXYZ",
			Location:     "Austin, TX",
			Type:         domain.JobTypeFullTime,
			Salary:       "$100,000 - $130,000",
			Description:  "Lead product development initiatives...",
			Requirements: []string{"MBA preferred", "Agile experience", "5+ years product management"},
			PostedDate:   time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC),
			EmployerID:   "emp3",
		},
	}
}

type Config struct {
	EventBus *event.Bus
	// Jobs replaces the built-in listings.
	Jobs []domain.Job
	Now  func() time.Time
}

// Service is the in-memory job board. Both slices are kept newest first.
type Service struct {
	eb  *event.Bus
	now func() time.Time

	mu           sync.RWMutex
	jobs         []domain.Job
	applications []domain.Application
}

func NewService(c Config) *Service {
	jobs := c.Jobs
	if jobs == nil {
		jobs = mockJobs()
	}

	s := &Service{
		eb:   c.EventBus,
		now:  c.Now,
		jobs: slices.Clone(jobs),
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

type AddRequest struct {
	EmployerID   string
	Title        string
	Company      string
	Location     string
	Type         domain.JobType
	Salary       string
	Description  string
	Requirements []string
}

// Add posts a new job at the top of the board.
func (s *Service) Add(ctx context.Context, req AddRequest) (*domain.Job, error) {
	if req.EmployerID == "" {
		return nil, errors.InvalidArgument("employer ID is required")
	}

	required := map[string]string{
		"title":       req.Title,
		"company":     req.Company,
		"location":    req.Location,
		"salary":      req.Salary,
		"description": req.Description,
	}
	for _, field := range []string{"title", "company", "location", "salary", "description"} {
		if strings.TrimSpace(required[field]) == "" {
			return nil, errors.InvalidArgument("%s is required", field)
		}
	}
	if !req.Type.Valid() {
		return nil, errors.InvalidArgument("unknown job type: %q", req.Type)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(err)
	}

	j := domain.Job{
		ID:           id.String(),
		Title:        strings.TrimSpace(req.Title),
		Company:      strings.TrimSpace(req.Company),
		Location:     strings.TrimSpace(req.Location),
		Type:         req.Type,
		Salary:       strings.TrimSpace(req.Salary),
		Description:  strings.TrimSpace(req.Description),
		Requirements: NormalizeList(req.Requirements),
		PostedDate:   s.now().UTC(),
		EmployerID:   req.EmployerID,
		Applications: []domain.Application{},
	}

	s.mu.Lock()
	s.jobs = slices.Insert(s.jobs, 0, j)
	s.mu.Unlock()

	s.eb.Publish(ctx, domain.EventJobPosted{Job: j})
	return cloneJob(j), nil
}

type ApplyRequest struct {
	JobID          string
	CandidateID    string
	CandidateName  string
	CandidateEmail string
	Resume         string
	CoverLetter    string
}

// Apply files a pending application against an existing job.
func (s *Service) Apply(ctx context.Context, req ApplyRequest) (*domain.Application, error) {
	if req.CandidateID == "" {
		return nil, errors.InvalidArgument("candidate ID is required")
	}
	if strings.TrimSpace(req.Resume) == "" {
		return nil, errors.InvalidArgument("resume is required")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(err)
	}

	s.mu.Lock()
	i := s.indexLocked(req.JobID)
	if i < 0 {
		s.mu.Unlock()
		return nil, errors.NotFound("job not found: id=%s", req.JobID)
	}

	a := domain.Application{
		ID:             id.String(),
		JobID:          req.JobID,
		JobTitle:       s.jobs[i].Title,
		CandidateID:    req.CandidateID,
		CandidateName:  req.CandidateName,
		CandidateEmail: req.CandidateEmail,
		Resume:         req.Resume,
		CoverLetter:    req.CoverLetter,
		Status:         domain.StatusPending,
		AppliedDate:    s.now().UTC(),
	}
	s.applications = slices.Insert(s.applications, 0, a)
	s.jobs[i].Applications = slices.Insert(s.jobs[i].Applications, 0, a)
	s.mu.Unlock()

	telemetry.ApplicationsSubmitted.Inc()
	s.eb.Publish(ctx, domain.EventApplicationSubmitted{Application: a})
	return &a, nil
}

type UpdateApplicationStatusRequest struct {
	ApplicationID string
	Status        domain.ApplicationStatus
	// EmployerID, when set, must own the job the application was filed against.
	EmployerID string
}

// UpdateApplicationStatus moves an application along pending → shortlisted → hired, or to rejected.
func (s *Service) UpdateApplicationStatus(ctx context.Context, req UpdateApplicationStatusRequest) (*domain.Application, error) {
	if !req.Status.Valid() {
		return nil, errors.InvalidArgument("unknown application status: %q", req.Status)
	}

	s.mu.Lock()
	ai := slices.IndexFunc(s.applications, func(a domain.Application) bool {
		return a.ID == req.ApplicationID
	})
	if ai < 0 {
		s.mu.Unlock()
		return nil, errors.NotFound("application not found: id=%s", req.ApplicationID)
	}

	a := &s.applications[ai]
	ji := s.indexLocked(a.JobID)
	if ji < 0 {
		s.mu.Unlock()
		return nil, errors.NotFound("job not found: id=%s", a.JobID)
	}

	employer := s.jobs[ji].EmployerID
	if req.EmployerID != "" && req.EmployerID != employer {
		s.mu.Unlock()
		return nil, errors.PermissionDenied("application %s belongs to another employer", req.ApplicationID)
	}
	if !a.Status.CanTransition(req.Status) {
		s.mu.Unlock()
		return nil, errors.FailedPrecondition("application cannot move from %s to %s", a.Status, req.Status)
	}

	a.Status = req.Status
	for k := range s.jobs[ji].Applications {
		if s.jobs[ji].Applications[k].ID == a.ID {
			s.jobs[ji].Applications[k].Status = req.Status
		}
	}
	out := *a
	s.mu.Unlock()

	s.eb.Publish(ctx, domain.EventApplicationStatusUpdated{
		Application: out,
		EmployerID:  employer,
	})
	return &out, nil
}

func (s *Service) Get(_ context.Context, id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexLocked(id)
	if i < 0 {
		return nil, errors.NotFound("job not found: id=%s", id)
	}

	return cloneJob(s.jobs[i]), nil
}

type SearchRequest struct {
	// Term matches the title or the company.
	Term     string
	Location string
	Type     domain.JobType
}

// Search filters the board. Empty criteria match everything.
func (s *Service) Search(_ context.Context, req SearchRequest) []domain.Job {
	term := strings.ToLower(strings.TrimSpace(req.Term))
	location := strings.ToLower(strings.TrimSpace(req.Location))

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := lo.Filter(s.jobs, func(j domain.Job, _ int) bool {
		matchesTerm := strings.Contains(strings.ToLower(j.Title), term) ||
			strings.Contains(strings.ToLower(j.Company), term)
		matchesLocation := location == "" || strings.Contains(strings.ToLower(j.Location), location)
		matchesType := req.Type == "" || j.Type == req.Type
		return matchesTerm && matchesLocation && matchesType
	})

	return lo.Map(matches, func(j domain.Job, _ int) domain.Job {
		return *cloneJob(j)
	})
}

// ApplicationsByCandidate lists a candidate's applications, newest first.
func (s *Service) ApplicationsByCandidate(_ context.Context, candidateID string) []domain.Application {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.Filter(s.applications, func(a domain.Application, _ int) bool {
		return a.CandidateID == candidateID
	})
}

type DashboardStats struct {
	TotalJobs             int `json:"total_jobs"`
	TotalApplications     int `json:"total_applications"`
	PendingApplications   int `json:"pending_applications"`
	ShortlistedCandidates int `json:"shortlisted_candidates"`
}

type Dashboard struct {
	Jobs         []domain.Job         `json:"jobs"`
	Applications []domain.Application `json:"applications"`
	Recent       []domain.Application `json:"recent"`
	Stats        DashboardStats       `json:"stats"`
}

// Dashboard summarizes an employer's jobs and the applications filed against them.
func (s *Service) Dashboard(_ context.Context, employerID string) *Dashboard {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := lo.FilterMap(s.jobs, func(j domain.Job, _ int) (domain.Job, bool) {
		return *cloneJob(j), j.EmployerID == employerID
	})

	apps := lo.FlatMap(jobs, func(j domain.Job, _ int) []domain.Application {
		return j.Applications
	})

	countStatus := func(st domain.ApplicationStatus) int {
		return lo.CountBy(apps, func(a domain.Application) bool { return a.Status == st })
	}

	return &Dashboard{
		Jobs:         jobs,
		Applications: apps,
		Recent:       apps[:min(len(apps), recentApplications)],
		Stats: DashboardStats{
			TotalJobs:             len(jobs),
			TotalApplications:     len(apps),
			PendingApplications:   countStatus(domain.StatusPending),
			ShortlistedCandidates: countStatus(domain.StatusShortlisted),
		},
	}
}

func (s *Service) indexLocked(id string) int {
	return slices.IndexFunc(s.jobs, func(j domain.Job) bool {
		return j.ID == id
	})
}

// NormalizeList trims every item and drops blanks and duplicates, keeping first occurrences.
func NormalizeList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" || slices.Contains(out, it) {
			continue
		}
		out = append(out, it)
	}
	return out
}

func cloneJob(j domain.Job) *domain.Job {
	j.Requirements = slices.Clone(j.Requirements)
	j.Applications = slices.Clone(j.Applications)
	if j.Applications == nil {
		j.Applications = []domain.Application{}
	}
	return &j
}
