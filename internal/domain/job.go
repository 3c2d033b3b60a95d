package domain

import "time"

type JobType string

const (
	JobTypeFullTime JobType = "Full-time"
	JobTypePartTime JobType = "Part-time"
	JobTypeContract JobType = "Contract"
	JobTypeRemote   JobType = "Remote"
)

func (t JobType) Valid() bool {
	switch t {
	case JobTypeFullTime, JobTypePartTime, JobTypeContract, JobTypeRemote:
		return true
	}
	return false
}

type Job struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Company      string        `json:"company"`
	Location     string        `json:"location"`
	Type         JobType       `json:"type"`
	Salary       string        `json:"salary"`
	Description  string        `json:"description"`
	Requirements []string      `json:"requirements"`
	PostedDate   time.Time     `json:"posted_date"`
	EmployerID   string        `json:"employer_id"`
	Applications []Application `json:"applications"`
}

type ApplicationStatus string

const (
	StatusPending     ApplicationStatus = "pending"
	StatusShortlisted ApplicationStatus = "shortlisted"
	StatusRejected    ApplicationStatus = "rejected"
	StatusHired       ApplicationStatus = "hired"
)

var statusTransitions = map[ApplicationStatus][]ApplicationStatus{
	StatusPending:     {StatusShortlisted, StatusRejected, StatusHired},
	StatusShortlisted: {StatusHired, StatusRejected},
	StatusRejected:    nil,
	StatusHired:       nil,
}

func (s ApplicationStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// CanTransition reports whether an application in status s may move to next.
func (s ApplicationStatus) CanTransition(next ApplicationStatus) bool {
	for _, n := range statusTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

type Application struct {
	ID             string            `json:"id"`
	JobID          string            `json:"job_id"`
	JobTitle       string            `json:"job_title,omitempty"`
	CandidateID    string            `json:"candidate_id"`
	CandidateName  string            `json:"candidate_name"`
	CandidateEmail string            `json:"candidate_email"`
	Resume         string            `json:"resume"`
	CoverLetter    string            `json:"cover_letter"`
	Status         ApplicationStatus `json:"status"`
	AppliedDate    time.Time         `json:"applied_date"`
}

type Role string

const (
	RoleJobSeeker Role = "jobseeker"
	RoleEmployer  Role = "employer"
)

func (r Role) Valid() bool {
	return r == RoleJobSeeker || r == RoleEmployer
}

// User is a job-board account.
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Role       Role      `json:"role"`
	Phone      string    `json:"phone"`
	Location   string    `json:"location"`
	Bio        string    `json:"bio"`
	Skills     []string  `json:"skills"`
	Experience string    `json:"experience"`
	Education  string    `json:"education"`
	Resume     string    `json:"resume,omitempty"`
	CreateTime time.Time `json:"create_time"`
}
